package memoryservice

import (
	"context"
	"strings"

	"manifold/internal/apperr"
	"manifold/internal/searchfilter"
)

// SearchHit is the §3 Search hit domain type.
type SearchHit struct {
	ID         string
	Score      float32
	Text       string
	ProjectID  string
	MemoryType string
	Tags       []string
	Timestamp  string
	SourceURI  string
}

// Search implements §4.4: validate, embed the query, build the filter,
// query the backend, and map results to domain hits.
func (s *Service) Search(ctx context.Context, req searchfilter.RawRequest) ([]SearchHit, error) {
	validated, err := searchfilter.Validate(req, s.cfg.SearchDefaultLimit, s.cfg.SearchMaxLimit, s.cfg.SearchDefaultScoreThreshold)
	if err != nil {
		return nil, err
	}

	collection := validated.Collection
	if collection == "" {
		collection = s.cfg.QdrantCollectionName
	}

	vectors, err := s.embedder.Embed(ctx, []string{validated.QueryText})
	if err != nil {
		return nil, apperr.Wrap("memoryservice: embed query", err)
	}
	if len(vectors) == 0 {
		return nil, apperr.Wrap("memoryservice: embed query", apperr.ErrEmptyEmbedding)
	}
	vector := vectors[0]
	if len(vector) != s.cfg.EmbeddingDimension {
		return nil, &apperr.DimensionMismatch{Expected: s.cfg.EmbeddingDimension, Actual: len(vector)}
	}

	filter := searchfilter.BuildFilter(validated)
	threshold := validated.ScoreThreshold

	points, err := s.store.SearchPoints(ctx, collection, vector, filter, validated.Limit, &threshold, "")
	if err != nil {
		return nil, apperr.Wrap("memoryservice: search", err)
	}

	hits := make([]SearchHit, 0, len(points))
	for _, p := range points {
		hits = append(hits, hitFromPayload(p.ID, p.Score, p.Payload))
	}
	if s.otel != nil {
		s.otel.ObserveHistogram("memoryservice_search_hits", float64(len(hits)), map[string]string{"collection": collection})
	}
	return hits, nil
}

func hitFromPayload(id string, score float32, payload map[string]any) SearchHit {
	hit := SearchHit{ID: id, Score: score}
	if v, ok := payload["text"].(string); ok {
		hit.Text = strings.TrimSpace(v)
	}
	if v, ok := payload["project_id"].(string); ok {
		hit.ProjectID = v
	}
	if v, ok := payload["memory_type"].(string); ok {
		hit.MemoryType = v
	}
	if v, ok := payload["timestamp"].(string); ok {
		hit.Timestamp = v
	}
	if v, ok := payload["source_uri"].(string); ok {
		hit.SourceURI = v
	}
	if raw, ok := payload["tags"].([]any); ok {
		for _, t := range raw {
			if tag, ok := t.(string); ok {
				hit.Tags = append(hit.Tags, tag)
			}
		}
	}
	return hit
}
