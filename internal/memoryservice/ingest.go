package memoryservice

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"manifold/internal/apperr"
	"manifold/internal/rag/chunker"
	"manifold/internal/tokencount"
	"manifold/internal/vectorstore"
)

// IngestMetadata is the caller-supplied payload-override input for an
// ingest call (§3 Payload overrides, §4.3 step 6).
type IngestMetadata struct {
	ProjectID       string
	MemoryType      string
	Tags            []string
	SourceURI       string
	SourceMemoryIDs []string
	SummaryKey      string
}

// IngestOutcome is the §4.3 step 9 return shape.
type IngestOutcome struct {
	ChunkCount        int
	ChunkSize         int
	Inserted          int
	Updated           int
	SkippedDuplicates int
}

var validMemoryTypesIngest = map[string]bool{"episodic": true, "semantic": true, "procedural": true}

// ProcessAndIndex implements §4.3: ensure collection+indexes, derive the
// chunk budget, chunk, dedupe, embed, sanitize metadata, and upsert.
func (s *Service) ProcessAndIndex(ctx context.Context, collection, text string, meta IngestMetadata) (IngestOutcome, error) {
	if collection == "" {
		collection = s.cfg.QdrantCollectionName
	}

	if err := s.store.CreateCollectionIfNotExists(ctx, collection, s.cfg.EmbeddingDimension); err != nil {
		return IngestOutcome{}, apperr.Wrap("memoryservice: ensure collection", err)
	}
	if err := s.store.EnsurePayloadIndexes(ctx, collection); err != nil {
		s.log.Warn().Err(err).Str("collection", collection).Msg("memoryservice: payload index setup failed, continuing")
	}

	budget := s.chunkBudget()
	chunks, err := s.chunker.Chunk(text, budget, s.overlap(), s.counter)
	if err != nil {
		return IngestOutcome{}, apperr.Wrap("memoryservice: chunk", err)
	}

	kept, skippedDuplicates := dedupeChunks(chunks)
	if len(kept) == 0 {
		s.metrics.RecordDocument(0, budget)
		return IngestOutcome{ChunkCount: 0, ChunkSize: budget, SkippedDuplicates: skippedDuplicates}, nil
	}

	texts := make([]string, len(kept))
	for i, c := range kept {
		texts[i] = c.Text
	}
	s.logRedactedPayload(ctx, "chunks", "memoryservice: embedding request", texts)
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return IngestOutcome{}, apperr.Wrap("memoryservice: embed", err)
	}
	if len(vectors) != len(texts) {
		return IngestOutcome{}, apperr.Wrap("memoryservice: embed: vector count differs from chunk count",
			apperr.ErrGenerationFailed)
	}
	for _, v := range vectors {
		if len(v) != s.cfg.EmbeddingDimension {
			return IngestOutcome{}, &apperr.DimensionMismatch{Expected: s.cfg.EmbeddingDimension, Actual: len(v)}
		}
	}

	sanitized := sanitizeMetadata(meta)
	timestamp := s.now().UTC().Format(timeRFC3339)

	points := make([]vectorstore.Point, len(kept))
	for i, c := range kept {
		memoryID := uuid.NewString()
		payload := map[string]any{
			"memory_id":   memoryID,
			"project_id":  sanitized.ProjectID,
			"memory_type": sanitized.MemoryType,
			"timestamp":   timestamp,
			"chunk_hash":  c.ChunkHash,
			"text":        c.Text,
		}
		if sanitized.SourceURI != "" {
			payload["source_uri"] = sanitized.SourceURI
		}
		if len(sanitized.Tags) > 0 {
			payload["tags"] = sanitized.Tags
		}
		if len(sanitized.SourceMemoryIDs) > 0 {
			payload["source_memory_ids"] = sanitized.SourceMemoryIDs
		}
		if sanitized.SummaryKey != "" {
			payload["summary_key"] = sanitized.SummaryKey
		}
		points[i] = vectorstore.Point{ID: memoryID, Vector: vectors[i], Payload: payload}
	}

	inserted, updated, err := s.store.IndexPoints(ctx, collection, points)
	if err != nil {
		return IngestOutcome{}, apperr.Wrap("memoryservice: index points", err)
	}

	s.metrics.RecordDocument(len(kept), budget)
	if s.otel != nil {
		s.otel.IncCounter("memoryservice_documents_indexed", map[string]string{"collection": collection})
		s.otel.ObserveHistogram("memoryservice_chunks_per_document", float64(len(kept)), map[string]string{"collection": collection})
	}

	return IngestOutcome{
		ChunkCount:        len(kept),
		ChunkSize:         budget,
		Inserted:          inserted,
		Updated:           updated,
		SkippedDuplicates: skippedDuplicates,
	}, nil
}

const timeRFC3339 = "2006-01-02T15:04:05Z07:00"

func (s *Service) chunkBudget() int {
	return tokencount.DetermineChunkSize(s.cfg.ChunkSizeOverride, s.cfg.EmbeddingProvider, s.cfg.EmbeddingModel, s.cfg.UseSafeDefaults)
}

func (s *Service) overlap() int {
	return s.cfg.ChunkOverlap
}

// dedupeChunks keeps the first occurrence per chunk_hash, per §4.3 step 4.
func dedupeChunks(chunks []chunker.Chunk) ([]chunker.Chunk, int) {
	seen := map[string]struct{}{}
	var kept []chunker.Chunk
	skipped := 0
	for _, c := range chunks {
		if _, dup := seen[c.ChunkHash]; dup {
			skipped++
			continue
		}
		seen[c.ChunkHash] = struct{}{}
		kept = append(kept, c)
	}
	return kept, skipped
}

type sanitizedMetadata struct {
	ProjectID       string
	MemoryType      string
	Tags            []string
	SourceURI       string
	SourceMemoryIDs []string
	SummaryKey      string
}

func sanitizeMetadata(meta IngestMetadata) sanitizedMetadata {
	projectID := strings.TrimSpace(meta.ProjectID)
	if projectID == "" {
		projectID = "default"
	}

	memoryType := strings.ToLower(strings.TrimSpace(meta.MemoryType))
	if !validMemoryTypesIngest[memoryType] {
		memoryType = "semantic"
	}

	seen := map[string]struct{}{}
	var tags []string
	for _, t := range meta.Tags {
		tag := strings.ToLower(strings.TrimSpace(t))
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}

	return sanitizedMetadata{
		ProjectID:       projectID,
		MemoryType:      memoryType,
		Tags:            tags,
		SourceURI:       strings.TrimSpace(meta.SourceURI),
		SourceMemoryIDs: meta.SourceMemoryIDs,
		SummaryKey:      meta.SummaryKey,
	}
}
