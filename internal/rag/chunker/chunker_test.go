package chunker

import (
	"strings"
	"testing"

	"manifold/internal/tokencount"
)

func TestSplitText_S1_ChunkBoundary(t *testing.T) {
	chunks, err := splitText("one two three four five", 2, 0, tokencount.WhitespaceCounter)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := textsOf(chunks)
	want := []string{"one two", "three four", "five"}
	assertEqualSlices(t, got, want)
}

func TestSplitText_S2_Overlap(t *testing.T) {
	chunks, err := splitText("one two three four five", 3, 1, tokencount.WhitespaceCounter)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := textsOf(chunks)
	want := []string{"one two three", "three four five"}
	assertEqualSlices(t, got, want)
}

func TestSplitText_InvalidChunkSize(t *testing.T) {
	_, err := splitText("hello", 0, 0, tokencount.WhitespaceCounter)
	if err == nil {
		t.Fatalf("expected error for zero budget")
	}
}

func TestSplitText_WhitespaceOnlyYieldsEmpty(t *testing.T) {
	chunks, err := splitText("   \n\t  ", 10, 0, tokencount.WhitespaceCounter)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected no chunks, got %v", chunks)
	}
}

func TestProperty_ChunkBudgetRespected(t *testing.T) {
	text := genText(500)
	budget := 17
	chunks, err := splitText(text, budget, 0, tokencount.WhitespaceCounter)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, c := range chunks {
		if n := tokencount.WhitespaceCounter(c.Text); n > budget {
			t.Fatalf("chunk %d has %d tokens, exceeds budget %d: %q", c.Index, n, budget, c.Text)
		}
	}
}

func TestProperty_CoverageWithZeroOverlap(t *testing.T) {
	text := "alpha beta gamma delta epsilon zeta eta theta iota kappa"
	chunks, err := splitText(text, 3, 0, tokencount.WhitespaceCounter)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var rebuilt []string
	for _, c := range chunks {
		rebuilt = append(rebuilt, strings.Fields(c.Text)...)
	}
	assertEqualSlices(t, rebuilt, strings.Fields(text))
}

func TestProperty_OverlapBound(t *testing.T) {
	text := genText(200)
	budget, overlap := 10, 4
	chunks, err := splitText(text, budget, overlap, tokencount.WhitespaceCounter)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, c := range chunks {
		if n := tokencount.WhitespaceCounter(c.Text); n > budget {
			t.Fatalf("chunk %d exceeds budget: %d > %d", c.Index, n, budget)
		}
	}
}

func TestProperty_HashDeterminism(t *testing.T) {
	chunks, err := splitText("hello world", 5, 0, tokencount.WhitespaceCounter)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if len(chunks[0].ChunkHash) != 64 {
		t.Fatalf("expected 64-char hash, got %d", len(chunks[0].ChunkHash))
	}
}

func genText(words int) string {
	var b strings.Builder
	for i := 0; i < words; i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString("word")
	}
	return b.String()
}

func textsOf(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}

func assertEqualSlices(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %v want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("index %d: got %q want %q (full got=%v want=%v)", i, got[i], want[i], got, want)
		}
	}
}
