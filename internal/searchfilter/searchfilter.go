// Package searchfilter implements §4.6: alias canonicalization, search
// request validation, and translation to the vector-store's conjunctive
// filter expression.
//
// Grounded structurally on manifold's config/loader.go validate-then-collect
// style (accumulate problems, return one wrapped error) and on the filter
// shapes vectorstore.Store expects on the wire.
package searchfilter

import (
	"strings"
	"time"

	"manifold/internal/apperr"
)

// TimeRange is an optional, half-open-or-closed bound pair; at least one of
// Start/End must be set when the field is present at all.
type TimeRange struct {
	Start *time.Time
	End   *time.Time
}

// RawRequest is the caller-supplied, possibly-aliased search input.
type RawRequest struct {
	QueryText      string
	Collection     string
	ProjectID      string // canonical
	Project        string // alias -> project_id
	MemoryType     string // canonical
	Type           string // alias -> memory_type
	Tags           []string
	TagsScalar     string // a single scalar tag value, promoted to a 1-element slice
	TimeRangeStart string // RFC3339, optional
	TimeRangeEnd   string // RFC3339, optional
	Limit          *int
	K              *int // alias -> limit
	ScoreThreshold *float64
}

// ValidatedRequest is the canonical, validated shape every downstream
// component consumes.
type ValidatedRequest struct {
	QueryText      string
	Collection     string
	ProjectID      string
	MemoryType     string
	Tags           []string
	TimeRange      *TimeRange
	Limit          int
	ScoreThreshold float64
}

var validMemoryTypes = map[string]bool{"episodic": true, "semantic": true, "procedural": true}

// Validate canonicalizes aliases (first occurrence wins when both canonical
// and alias are given; the alias is silently ignored if the canonical field
// is already present) and enforces §4.6's rules. defaultLimit/maxLimit and
// defaultThreshold come from configuration.
func Validate(req RawRequest, defaultLimit, maxLimit int, defaultThreshold float64) (ValidatedRequest, error) {
	out := ValidatedRequest{
		Collection:     req.Collection,
		Limit:          defaultLimit,
		ScoreThreshold: defaultThreshold,
	}

	queryText := strings.TrimSpace(req.QueryText)
	if queryText == "" {
		return ValidatedRequest{}, apperr.Wrap("searchfilter: query_text", apperr.ErrInvalidParameters)
	}
	out.QueryText = queryText

	projectID := req.ProjectID
	if projectID == "" {
		projectID = req.Project
	}
	out.ProjectID = strings.TrimSpace(projectID)

	memoryType := req.MemoryType
	if memoryType == "" {
		memoryType = req.Type
	}
	memoryType = strings.ToLower(strings.TrimSpace(memoryType))
	if memoryType != "" {
		if !validMemoryTypes[memoryType] {
			return ValidatedRequest{}, apperr.Wrap("searchfilter: memory_type", apperr.ErrInvalidParameters)
		}
		out.MemoryType = memoryType
	}

	tags := req.Tags
	if len(tags) == 0 && req.TagsScalar != "" {
		tags = []string{req.TagsScalar}
	}
	if len(tags) > 0 {
		canon, err := canonicalizeTags(tags)
		if err != nil {
			return ValidatedRequest{}, err
		}
		out.Tags = canon
	}

	if req.TimeRangeStart != "" || req.TimeRangeEnd != "" {
		tr, err := parseTimeRange(req.TimeRangeStart, req.TimeRangeEnd)
		if err != nil {
			return ValidatedRequest{}, err
		}
		out.TimeRange = tr
	}

	limit := req.Limit
	if limit == nil {
		limit = req.K
	}
	if limit != nil {
		if *limit < 1 || *limit > maxLimit {
			return ValidatedRequest{}, apperr.Wrap("searchfilter: limit", apperr.ErrInvalidParameters)
		}
		out.Limit = *limit
	}
	if out.Limit > maxLimit {
		out.Limit = maxLimit
	}

	if req.ScoreThreshold != nil {
		if *req.ScoreThreshold < 0.0 || *req.ScoreThreshold > 1.0 {
			return ValidatedRequest{}, apperr.Wrap("searchfilter: score_threshold", apperr.ErrInvalidParameters)
		}
		out.ScoreThreshold = *req.ScoreThreshold
	}

	return out, nil
}

// canonicalizeTags trims, requires non-empty, and dedupes preserving order.
func canonicalizeTags(tags []string) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	for _, t := range tags {
		trimmed := strings.TrimSpace(t)
		if trimmed == "" {
			continue
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	if len(out) == 0 {
		return nil, apperr.Wrap("searchfilter: tags", apperr.ErrInvalidParameters)
	}
	return out, nil
}

func parseTimeRange(start, end string) (*TimeRange, error) {
	tr := &TimeRange{}
	if start != "" {
		t, err := time.Parse(time.RFC3339, start)
		if err != nil {
			return nil, apperr.Wrap("searchfilter: time_range.start", &apperr.InvalidTimeRange{Reason: "unparseable start: " + err.Error()})
		}
		tr.Start = &t
	}
	if end != "" {
		t, err := time.Parse(time.RFC3339, end)
		if err != nil {
			return nil, apperr.Wrap("searchfilter: time_range.end", &apperr.InvalidTimeRange{Reason: "unparseable end: " + err.Error()})
		}
		tr.End = &t
	}
	if tr.Start != nil && tr.End != nil && tr.Start.After(*tr.End) {
		return nil, apperr.Wrap("searchfilter: time_range", &apperr.InvalidTimeRange{Reason: "start after end"})
	}
	return tr, nil
}

// BuildFilter translates a ValidatedRequest into the vector-store's
// conjunctive "must" filter expression. An entirely empty filter is
// represented as nil (absent), per §4.6.
func BuildFilter(req ValidatedRequest) map[string]any {
	var must []map[string]any

	if req.ProjectID != "" {
		must = append(must, map[string]any{
			"key":   "project_id",
			"match": map[string]any{"value": req.ProjectID},
		})
	}
	if req.MemoryType != "" {
		must = append(must, map[string]any{
			"key":   "memory_type",
			"match": map[string]any{"value": req.MemoryType},
		})
	}
	if len(req.Tags) > 0 {
		must = append(must, map[string]any{
			"key":   "tags",
			"match": map[string]any{"any": req.Tags},
		})
	}
	if req.TimeRange != nil {
		rng := map[string]any{}
		if req.TimeRange.Start != nil {
			rng["gte"] = req.TimeRange.Start.UTC().Format(time.RFC3339)
		}
		if req.TimeRange.End != nil {
			rng["lte"] = req.TimeRange.End.UTC().Format(time.RFC3339)
		}
		must = append(must, map[string]any{"key": "timestamp", "range": rng})
	}

	if len(must) == 0 {
		return nil
	}
	return map[string]any{"must": must}
}
