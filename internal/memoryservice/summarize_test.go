package memoryservice

import (
	"context"
	"testing"
	"time"

	"manifold/internal/tokencount"
	"manifold/internal/vectorstore"
)

func TestSummarize_S7_IdempotentKeyAndNoRegeneration(t *testing.T) {
	store := newFakeStore()
	store.scrollResp = []vectorstore.ScrollPayload{
		{ID: "A", Payload: map[string]any{"text": "first note.", "timestamp": "2025-01-01T00:00:00Z"}},
		{ID: "B", Payload: map[string]any{"text": "second note.", "timestamp": "2025-01-02T00:00:00Z"}},
	}
	embedder := &fakeEmbedder{dim: 4}
	svc := New(testConfig(), embedder, store, tokencount.WhitespaceCounter)
	// fakeStore.ScrollPayloads ignores filters, so the real lookup would
	// mistake the episodic rows for a cached summary; report none.
	svc.idempotency = func(context.Context, string, string, string) (*SummarizeResult, error) { return nil, nil }

	req := SummarizeRequest{
		Start:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		End:      time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC),
		MaxWords: 50,
	}
	result, err := svc.Summarize(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Strategy != StrategyExtractive {
		t.Fatalf("expected extractive strategy with no provider configured, got %v", result.Strategy)
	}
	if store.indexCalls != 1 {
		t.Fatalf("expected exactly one index call, got %d", store.indexCalls)
	}
	if got := store.points[len(store.points)-1].Payload["strategy"]; got != string(StrategyExtractive) {
		t.Fatalf("expected persisted payload to record the actually used strategy, got %v", got)
	}

	// Second call: simulate the idempotency lookup finding the persisted
	// summary so no further generation/index call happens.
	store.scrollErr = nil
	originalScroll := store.scrollResp
	callCount := 0
	svc.idempotency = func(ctx context.Context, collection, projectID, tag string) (*SummarizeResult, error) {
		callCount++
		return &SummarizeResult{SummaryText: "cached", Strategy: StrategyAbstractive, MemoryID: "cached-id"}, nil
	}
	store.scrollResp = originalScroll

	second, err := svc.Summarize(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error on second call: %v", err)
	}
	if second.MemoryID != "cached-id" {
		t.Fatalf("expected cached result, got %+v", second)
	}
	if store.indexCalls != 1 {
		t.Fatalf("expected no additional index call on idempotent replay, got %d total", store.indexCalls)
	}
}

func TestLookupExistingSummary_ReportsPersistedStrategy(t *testing.T) {
	store := newFakeStore()
	store.scrollResp = []vectorstore.ScrollPayload{
		{ID: "cached-id", Payload: map[string]any{"text": "cached", "strategy": string(StrategyExtractive)}},
	}
	embedder := &fakeEmbedder{dim: 4}
	svc := New(testConfig(), embedder, store, tokencount.WhitespaceCounter)

	existing, err := svc.lookupExistingSummary(context.Background(), "collection", "default", "summary:key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if existing == nil || existing.Strategy != StrategyExtractive {
		t.Fatalf("expected cached result to report its persisted extractive strategy, got %+v", existing)
	}
}

func TestLookupExistingSummary_MissingStrategyFieldLeavesItUnset(t *testing.T) {
	store := newFakeStore()
	store.scrollResp = []vectorstore.ScrollPayload{
		{ID: "cached-id", Payload: map[string]any{"text": "cached"}},
	}
	embedder := &fakeEmbedder{dim: 4}
	svc := New(testConfig(), embedder, store, tokencount.WhitespaceCounter)

	existing, err := svc.lookupExistingSummary(context.Background(), "collection", "default", "summary:key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if existing == nil || existing.Strategy != "" {
		t.Fatalf("expected unset strategy for a payload predating the strategy field, got %+v", existing)
	}
}

func TestSummarize_EmptyWindowIsEmptyResultError(t *testing.T) {
	store := newFakeStore()
	embedder := &fakeEmbedder{dim: 4}
	svc := New(testConfig(), embedder, store, tokencount.WhitespaceCounter)

	_, err := svc.Summarize(context.Background(), SummarizeRequest{
		Start: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC),
	})
	if err == nil {
		t.Fatalf("expected EmptyResult error for empty window")
	}
}

func TestSummarize_AbstractiveFallsBackOnEmptyText(t *testing.T) {
	store := newFakeStore()
	store.scrollResp = []vectorstore.ScrollPayload{
		{ID: "A", Payload: map[string]any{"text": "first note.", "timestamp": "2025-01-01T00:00:00Z"}},
	}
	embedder := &fakeEmbedder{dim: 4}
	provider := &fakeSummaryProvider{result: ""}
	svc := New(testConfig(), embedder, store, tokencount.WhitespaceCounter, WithSummaryProvider(provider))
	// fakeStore.ScrollPayloads ignores filters; report no cached summary.
	svc.idempotency = func(context.Context, string, string, string) (*SummarizeResult, error) { return nil, nil }

	result, err := svc.Summarize(context.Background(), SummarizeRequest{
		Start:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		End:      time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC),
		MaxWords: 50,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Strategy != StrategyExtractive {
		t.Fatalf("expected fallback to extractive on empty abstractive result, got %v", result.Strategy)
	}
	if provider.calls != 1 {
		t.Fatalf("expected abstractive provider to be tried once, got %d calls", provider.calls)
	}
}

func TestSummarize_AbstractiveUsedWhenProviderSucceeds(t *testing.T) {
	store := newFakeStore()
	store.scrollResp = []vectorstore.ScrollPayload{
		{ID: "A", Payload: map[string]any{"text": "first note.", "timestamp": "2025-01-01T00:00:00Z"}},
	}
	embedder := &fakeEmbedder{dim: 4}
	provider := &fakeSummaryProvider{result: "a clean abstractive summary"}
	svc := New(testConfig(), embedder, store, tokencount.WhitespaceCounter, WithSummaryProvider(provider))
	// fakeStore.ScrollPayloads ignores filters; report no cached summary.
	svc.idempotency = func(context.Context, string, string, string) (*SummarizeResult, error) { return nil, nil }

	result, err := svc.Summarize(context.Background(), SummarizeRequest{
		Start:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		End:      time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC),
		MaxWords: 50,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Strategy != StrategyAbstractive || result.SummaryText != "a clean abstractive summary" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestBuildExtractiveSummary_OrderingAndBullets(t *testing.T) {
	memories := []episodicMemory{
		{memoryID: "B", text: "Second event happened. Ignored tail.", timestamp: mustParse("2025-01-02T00:00:00Z"), parsed: true},
		{memoryID: "A", text: "First event happened. Ignored tail.", timestamp: mustParse("2025-01-01T00:00:00Z"), parsed: true},
	}
	sortEpisodicMemories(memories)
	if memories[0].memoryID != "A" {
		t.Fatalf("expected ascending timestamp order, got %+v", memories)
	}
	summary := buildExtractiveSummary(memories, 200)
	if summary == "" {
		t.Fatalf("expected non-empty summary")
	}
}

func mustParse(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}
