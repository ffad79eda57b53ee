package hashutil

import "testing"

func TestChunkHash_DeterministicAndShape(t *testing.T) {
	a := ChunkHash("hello")
	b := ChunkHash("hello")
	if a != b {
		t.Fatalf("expected deterministic hash, got %q vs %q", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d (%q)", len(a), a)
	}
	for _, r := range a {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')) {
			t.Fatalf("expected lowercase hex, got rune %q in %q", r, a)
		}
	}
}

func TestChunkHash_DiffersForDifferentInput(t *testing.T) {
	if ChunkHash("hello") == ChunkHash("world") {
		t.Fatalf("expected different hashes for different input")
	}
}

func TestSummaryKey_MatchesS7Scenario(t *testing.T) {
	// S7: project "default", range [2025-01-01T00:00:00Z, 2025-01-03T00:00:00Z], ids A, B.
	got := SummaryKey("default", "2025-01-01T00:00:00Z", "2025-01-03T00:00:00Z", []string{"A", "B"})
	want := ChunkHash("default" + "2025-01-01T00:00:00Z" + "2025-01-03T00:00:00Z" + "A" + "B")
	if got != want {
		t.Fatalf("summary key mismatch: got %q want %q", got, want)
	}
}

func TestSummaryKey_Deterministic(t *testing.T) {
	k1 := SummaryKey("default", "a", "b", []string{"x", "y"})
	k2 := SummaryKey("default", "a", "b", []string{"x", "y"})
	if k1 != k2 {
		t.Fatalf("expected deterministic summary key")
	}
}
