package memoryservice

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"manifold/internal/apperr"
	"manifold/internal/hashutil"
	"manifold/internal/vectorstore"
)

// SummarizeStrategy selects between the abstractive provider and the
// deterministic extractive fallback.
type SummarizeStrategy string

const (
	StrategyAuto        SummarizeStrategy = "auto"
	StrategyAbstractive SummarizeStrategy = "abstractive"
	StrategyExtractive  SummarizeStrategy = "extractive"
)

// SummarizeRequest is the §4.7 input shape.
type SummarizeRequest struct {
	Collection string
	ProjectID  string
	MemoryType string // default "episodic"
	Tags       []string
	Start      time.Time
	End        time.Time
	Limit      int // default 50, bounded by max_limit
	Strategy   SummarizeStrategy
	Model      string
	MaxWords   int
}

// SummarizeResult is the §4.7 step 8 return shape.
type SummarizeResult struct {
	SummaryText string
	Strategy    SummarizeStrategy
	Model       string
	MemoryID    string
}

type episodicMemory struct {
	memoryID  string
	text      string
	timestamp time.Time
	parsed    bool
}

var firstSentenceRe = regexp.MustCompile(`(?s)^(.*?[.!?])(\s|$)`)

const idempotencyTagPrefix = "summary:"

// Summarize implements §4.7: scroll episodic memories, order them, compute
// the idempotency key, short-circuit on an existing result, otherwise
// generate (abstractive with extractive fallback) and persist.
func (s *Service) Summarize(ctx context.Context, req SummarizeRequest) (SummarizeResult, error) {
	collection := req.Collection
	if collection == "" {
		collection = s.cfg.QdrantCollectionName
	}
	projectID := strings.TrimSpace(req.ProjectID)
	if projectID == "" {
		projectID = "default"
	}
	memoryType := strings.ToLower(strings.TrimSpace(req.MemoryType))
	if memoryType == "" {
		memoryType = "episodic"
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > s.cfg.SearchMaxLimit {
		limit = s.cfg.SearchMaxLimit
	}
	maxWords := req.MaxWords
	if maxWords <= 0 {
		maxWords = s.cfg.SummarizationMaxWords
	}

	start := req.Start.UTC().Format(timeRFC3339)
	end := req.End.UTC().Format(timeRFC3339)

	filter := map[string]any{
		"must": []map[string]any{
			{"key": "project_id", "match": map[string]any{"value": projectID}},
			{"key": "memory_type", "match": map[string]any{"value": memoryType}},
			{"key": "timestamp", "range": map[string]any{"gte": start, "lte": end}},
		},
	}
	if len(req.Tags) > 0 {
		filter["must"] = append(filter["must"].([]map[string]any), map[string]any{
			"key": "tags", "match": map[string]any{"any": req.Tags},
		})
	}

	payloads, err := s.store.ScrollPayloads(ctx, collection, filter)
	if err != nil {
		return SummarizeResult{}, apperr.Wrap("memoryservice: summarize scroll", err)
	}

	memories := toEpisodicMemories(payloads)
	sortEpisodicMemories(memories)
	if len(memories) > limit {
		memories = memories[:limit]
	}
	if len(memories) == 0 {
		return SummarizeResult{}, apperr.Wrap("memoryservice: summarize", apperr.ErrEmptyResult)
	}

	memoryIDs := make([]string, len(memories))
	for i, m := range memories {
		memoryIDs[i] = m.memoryID
	}
	summaryKey := hashutil.SummaryKey(projectID, start, end, memoryIDs)
	idempotencyTag := idempotencyTagPrefix + summaryKey

	if existing, err := s.idempotency(ctx, collection, projectID, idempotencyTag); err != nil {
		return SummarizeResult{}, err
	} else if existing != nil {
		return *existing, nil
	}

	result, groupErr, _ := s.sf.Do(summaryKey, func() (any, error) {
		return s.generateAndPersistSummary(ctx, collection, projectID, memories, memoryIDs, summaryKey, idempotencyTag, req.Strategy, req.Model, maxWords)
	})
	if groupErr != nil {
		return SummarizeResult{}, groupErr
	}
	return result.(SummarizeResult), nil
}

func (s *Service) lookupExistingSummary(ctx context.Context, collection, projectID, tag string) (*SummarizeResult, error) {
	filter := map[string]any{
		"must": []map[string]any{
			{"key": "project_id", "match": map[string]any{"value": projectID}},
			{"key": "memory_type", "match": map[string]any{"value": "semantic"}},
			{"key": "tags", "match": map[string]any{"any": []string{tag}}},
		},
	}
	payloads, err := s.store.ScrollPayloads(ctx, collection, filter)
	if err != nil {
		return nil, apperr.Wrap("memoryservice: summarize idempotency lookup", err)
	}
	if len(payloads) == 0 {
		return nil, nil
	}
	p := payloads[0].Payload
	text, _ := p["text"].(string)
	strategy, _ := p["strategy"].(string)
	return &SummarizeResult{
		SummaryText: text,
		Strategy:    SummarizeStrategy(strategy),
		MemoryID:    payloads[0].ID,
	}, nil
}

func (s *Service) generateAndPersistSummary(
	ctx context.Context,
	collection, projectID string,
	memories []episodicMemory,
	memoryIDs []string,
	summaryKey, idempotencyTag string,
	requested SummarizeStrategy,
	model string,
	maxWords int,
) (SummarizeResult, error) {
	strategy := requested
	if strategy == "" {
		strategy = StrategyAuto
	}

	var summaryText string
	usedStrategy := StrategyExtractive

	if (strategy == StrategyAuto || strategy == StrategyAbstractive) && s.summary != nil {
		prompt := buildAbstractivePrompt(memories, maxWords)
		s.logRedactedPayload(ctx, "prompt", "memoryservice: abstractive summarization request", prompt)
		text, err := s.summary.Summarize(ctx, prompt, maxWords)
		if err != nil {
			s.log.Warn().Err(err).Msg("memoryservice: abstractive summarization failed, falling back to extractive")
		} else if strings.TrimSpace(text) == "" {
			s.log.Warn().Msg("memoryservice: abstractive summarization returned empty text, falling back to extractive")
		} else {
			s.logRedactedPayload(ctx, "response", "memoryservice: abstractive summarization response", text)
			summaryText = text
			usedStrategy = StrategyAbstractive
		}
	}

	if summaryText == "" {
		summaryText = buildExtractiveSummary(memories, maxWords)
	}

	vectors, err := s.embedder.Embed(ctx, []string{summaryText})
	if err != nil {
		return SummarizeResult{}, apperr.Wrap("memoryservice: embed summary", err)
	}
	if len(vectors) == 0 || len(vectors[0]) != s.cfg.EmbeddingDimension {
		return SummarizeResult{}, &apperr.DimensionMismatch{Expected: s.cfg.EmbeddingDimension, Actual: len(firstOrEmpty(vectors))}
	}

	memoryID := uuid.NewString()
	payload := map[string]any{
		"memory_id":         memoryID,
		"project_id":        projectID,
		"memory_type":       "semantic",
		"timestamp":         s.now().UTC().Format(timeRFC3339),
		"chunk_hash":        hashutil.ChunkHash(summaryText),
		"text":              summaryText,
		"strategy":          string(usedStrategy),
		"tags":              []string{idempotencyTag},
		"source_memory_ids": memoryIDs,
		"summary_key":       summaryKey,
	}
	points := []vectorstore.Point{{ID: memoryID, Vector: vectors[0], Payload: payload}}
	if _, _, err := s.store.IndexPoints(ctx, collection, points); err != nil {
		return SummarizeResult{}, apperr.Wrap("memoryservice: persist summary", err)
	}

	return SummarizeResult{SummaryText: summaryText, Strategy: usedStrategy, Model: model, MemoryID: memoryID}, nil
}

func firstOrEmpty(vecs [][]float32) []float32 {
	if len(vecs) == 0 {
		return nil
	}
	return vecs[0]
}

func toEpisodicMemories(payloads []vectorstore.ScrollPayload) []episodicMemory {
	out := make([]episodicMemory, 0, len(payloads))
	for _, p := range payloads {
		text, _ := p.Payload["text"].(string)
		raw, _ := p.Payload["timestamp"].(string)
		ts, err := time.Parse(time.RFC3339, raw)
		out = append(out, episodicMemory{
			memoryID:  p.ID,
			text:      text,
			timestamp: ts,
			parsed:    err == nil,
		})
	}
	return out
}

// sortEpisodicMemories sorts ascending by parsed timestamp, ties by
// memory_id, unparseable timestamps sorting last (§4.7 step 2, property 8).
func sortEpisodicMemories(memories []episodicMemory) {
	sort.SliceStable(memories, func(i, j int) bool {
		a, b := memories[i], memories[j]
		if a.parsed != b.parsed {
			return a.parsed // parsed sorts before unparsed
		}
		if a.parsed && b.parsed && !a.timestamp.Equal(b.timestamp) {
			return a.timestamp.Before(b.timestamp)
		}
		return a.memoryID < b.memoryID
	})
}

func buildAbstractivePrompt(memories []episodicMemory, maxWords int) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Summarize the following dated notes in neutral, paragraph-format prose, at most %d words:\n\n", maxWords))
	for _, m := range memories {
		sb.WriteString("- ")
		if m.parsed {
			sb.WriteString(m.timestamp.UTC().Format(timeRFC3339))
			sb.WriteString(": ")
		}
		sb.WriteString(truncateChars(m.text, 180))
		sb.WriteByte('\n')
	}
	return sb.String()
}

// buildExtractiveSummary implements §4.7 step 6's deterministic fallback:
// first-sentence extraction, 180-char truncation, dated bullet prefix,
// accumulated while the running word count stays within maxWords.
func buildExtractiveSummary(memories []episodicMemory, maxWords int) string {
	var bullets []string
	wordCount := 0
	for _, m := range memories {
		sentence := firstSentence(m.text)
		sentence = truncateChars(sentence, 180)

		var bullet string
		if m.parsed {
			bullet = "- " + m.timestamp.UTC().Format(timeRFC3339) + ": " + sentence
		} else {
			bullet = "- " + sentence
		}

		words := len(strings.Fields(bullet))
		if len(bullets) > 0 && wordCount+words > maxWords {
			break
		}
		bullets = append(bullets, bullet)
		wordCount += words
	}
	return strings.Join(bullets, "\n")
}

func firstSentence(text string) string {
	trimmed := strings.TrimSpace(text)
	if m := firstSentenceRe.FindStringSubmatch(trimmed); len(m) > 1 {
		return m[1]
	}
	return trimmed
}

func truncateChars(text string, maxChars int) string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	if maxChars <= 0 {
		return ""
	}
	return string(runes[:maxChars-1]) + "…"
}
