package memoryservice

import (
	"context"
	"testing"

	"manifold/internal/searchfilter"
	"manifold/internal/tokencount"
	"manifold/internal/vectorstore"
)

func TestSearch_S5_MapsScoredPointsToHits(t *testing.T) {
	store := newFakeStore()
	store.searchResp = []vectorstore.ScoredPoint{
		{ID: "abc", Score: 0.9, Payload: map[string]any{
			"text": "hi", "project_id": "alpha", "memory_type": "semantic",
			"tags": []any{"docs"}, "timestamp": "2025-01-01T00:00:00Z",
		}},
	}
	embedder := &fakeEmbedder{dim: 4}
	svc := New(testConfig(), embedder, store, tokencount.WhitespaceCounter)

	k := 3
	hits, err := svc.Search(context.Background(), searchfilter.RawRequest{
		QueryText: "demo", Type: "semantic", Project: "alpha", K: &k,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "abc" || hits[0].Text != "hi" || hits[0].ProjectID != "alpha" {
		t.Fatalf("unexpected hits: %+v", hits)
	}
	if len(hits[0].Tags) != 1 || hits[0].Tags[0] != "docs" {
		t.Fatalf("expected tags=[docs], got %v", hits[0].Tags)
	}
}

func TestSearch_S6_DimensionMismatch(t *testing.T) {
	store := newFakeStore()
	embedder := &fakeEmbedder{dim: 4, vectors: [][]float32{make([]float32, 512)}}
	cfg := testConfig()
	cfg.EmbeddingDimension = 768
	svc := New(cfg, embedder, store, tokencount.WhitespaceCounter)

	_, err := svc.Search(context.Background(), searchfilter.RawRequest{QueryText: "demo"})
	if err == nil {
		t.Fatalf("expected dimension mismatch error")
	}
}

func TestSearch_InvalidRequestRejected(t *testing.T) {
	store := newFakeStore()
	embedder := &fakeEmbedder{dim: 4}
	svc := New(testConfig(), embedder, store, tokencount.WhitespaceCounter)

	_, err := svc.Search(context.Background(), searchfilter.RawRequest{QueryText: "   "})
	if err == nil {
		t.Fatalf("expected validation error for empty query_text")
	}
}
