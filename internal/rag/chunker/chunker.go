// Package chunker implements the §4.2 chunking algorithm: token-budget-aware
// segmentation that packs words greedily, closes a segment early at a
// paragraph boundary once it is at least half full, and falls back to
// character splits for a single oversized word, plus an optional sliding
// overlap between adjacent chunks. Sentence boundaries are detected but
// are not used as break points.
//
// Grounded structurally on manifold's internal/textsplitters/boundary.go
// (groupByTarget greedy accumulation, clipOverlapTail rune-boundary-safe
// trimming) and literally on the original Rust processing/chunking.rs
// (apply_overlap, tail_with_token_limit, trim_to_token_budget).
package chunker

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"manifold/internal/apperr"
	"manifold/internal/hashutil"
	"manifold/internal/tokencount"
)

// Chunk is a single produced segment, annotated with its content hash for
// downstream per-document dedup (§4.3 step 4).
type Chunk struct {
	Index     int
	Text      string
	ChunkHash string
}

// Chunker produces chunks from raw text under a token budget and overlap.
type Chunker interface {
	Chunk(text string, budget int, overlap int, counter tokencount.Counter) ([]Chunk, error)
}

// SimpleChunker is the sole Chunker implementation: semantic segmentation
// with sliding overlap, no pluggable strategies.
type SimpleChunker struct{}

func (SimpleChunker) Chunk(text string, budget int, overlap int, counter tokencount.Counter) ([]Chunk, error) {
	return splitText(text, budget, overlap, counter)
}

var paragraphBreakRe = regexp.MustCompile(`\n\s*\n`)
var sentenceBoundaryRe = regexp.MustCompile(`(?s)([.!?])\s+`)

type boundaryKind int

const (
	boundaryWord boundaryKind = iota
	boundarySentence
	boundaryParagraph
)

type atom struct {
	word     string
	boundary boundaryKind // boundary that follows this atom
}

// splitText splits text into an ordered list of non-empty segments, each
// with tokencount(segment) <= budget, applying a sliding overlap of at most
// min(overlap, budget-1) tokens between adjacent chunks (§4.2).
func splitText(text string, budget int, overlap int, counter tokencount.Counter) ([]Chunk, error) {
	if budget <= 0 {
		return nil, apperr.Wrap("chunker", apperr.ErrInvalidChunkSize)
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	atoms := flatten(text)
	base := pack(atoms, budget, counter)
	if len(base) == 0 {
		return nil, nil
	}

	effectiveOverlap := overlap
	if effectiveOverlap > budget-1 {
		effectiveOverlap = budget - 1
	}
	if effectiveOverlap < 0 {
		effectiveOverlap = 0
	}

	out := make([]Chunk, 0, len(base))
	prev := ""
	for i, segment := range base {
		chunkText := segment
		if i > 0 && effectiveOverlap > 0 {
			tail := tailWithTokenLimit(prev, effectiveOverlap, counter)
			combined := maybeInsertWhitespace(tail, segment)
			if counter(combined) > budget {
				combined = tailWithTokenLimit(combined, budget, counter)
			}
			chunkText = combined
		}
		out = append(out, Chunk{Index: i, Text: chunkText, ChunkHash: hashutil.ChunkHash(chunkText)})
		prev = segment
	}
	return out, nil
}

// flatten breaks text into word-level atoms annotated with the strongest
// boundary (paragraph > sentence > word) that follows each one.
func flatten(text string) []atom {
	paragraphs := paragraphBreakRe.Split(text, -1)
	var atoms []atom
	for pi, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		sentences := splitSentences(para)
		for si, sentence := range sentences {
			words := strings.Fields(sentence)
			for wi, w := range words {
				kind := boundaryWord
				lastWordInSentence := wi == len(words)-1
				lastSentenceInPara := si == len(sentences)-1
				if lastWordInSentence {
					switch {
					case lastSentenceInPara && pi < len(paragraphs)-1:
						kind = boundaryParagraph
					case !lastSentenceInPara:
						kind = boundarySentence
					}
				}
				atoms = append(atoms, atom{word: w, boundary: kind})
			}
		}
	}
	if len(atoms) > 0 {
		atoms[len(atoms)-1].boundary = boundaryParagraph
	}
	return atoms
}

func splitSentences(paragraph string) []string {
	idxs := sentenceBoundaryRe.FindAllStringIndex(paragraph, -1)
	if len(idxs) == 0 {
		return []string{paragraph}
	}
	var out []string
	start := 0
	for _, loc := range idxs {
		out = append(out, paragraph[start:loc[1]])
		start = loc[1]
	}
	if start < len(paragraph) {
		out = append(out, paragraph[start:])
	}
	return out
}

// pack greedily accumulates atoms into segments no larger than budget
// tokens, preferring to break at a paragraph boundary once the running
// segment is at least half-full, splitting an individual oversized word by
// rune when even one atom alone exceeds the budget.
func pack(atoms []atom, budget int, counter tokencount.Counter) []string {
	var out []string
	var current strings.Builder
	currentWords := 0

	flush := func() {
		s := strings.TrimSpace(current.String())
		if s != "" {
			out = append(out, s)
		}
		current.Reset()
		currentWords = 0
	}

	for _, a := range atoms {
		if counter(a.word) > budget {
			for _, piece := range splitOversizedWord(a.word, budget, counter) {
				appendAtom(&current, piece, &currentWords, counter, budget, flush)
			}
			if a.boundary == boundaryParagraph {
				flush()
			}
			continue
		}

		appendAtom(&current, a.word, &currentWords, counter, budget, flush)

		if a.boundary == boundaryParagraph && currentWords > 0 {
			proposed := strings.TrimSpace(current.String())
			if counter(proposed) >= budget/2 {
				flush()
			}
		}
	}
	flush()
	return out
}

func appendAtom(current *strings.Builder, word string, currentWords *int, counter tokencount.Counter, budget int, flush func()) {
	sep := ""
	if current.Len() > 0 {
		sep = " "
	}
	candidate := current.String() + sep + word
	if current.Len() > 0 && counter(candidate) > budget {
		flush()
		candidate = word
	}
	current.Reset()
	current.WriteString(candidate)
	*currentWords++
}

// splitOversizedWord rune-splits a single token that alone exceeds budget
// into the fewest pieces that each satisfy the budget.
func splitOversizedWord(word string, budget int, counter tokencount.Counter) []string {
	runes := []rune(word)
	var pieces []string
	start := 0
	for start < len(runes) {
		end := len(runes)
		for end > start && counter(string(runes[start:end])) > budget {
			end--
		}
		if end == start {
			end = start + 1 // guarantee progress even if one rune alone exceeds budget
		}
		pieces = append(pieces, string(runes[start:end]))
		start = end
	}
	return pieces
}

// tailWithTokenLimit returns the longest suffix of text whose token count
// is <= limit, shrinking from the left rune-by-rune (never splitting a
// multi-byte rune). The suffix is left-trimmed so a cut that lands on a
// word-separating space never leaves the tail with leading whitespace.
func tailWithTokenLimit(text string, limit int, counter tokencount.Counter) string {
	if limit <= 0 || text == "" {
		return ""
	}
	if counter(text) <= limit {
		return strings.TrimLeft(text, " \t\n\r")
	}
	runes := []rune(text)
	for start := 1; start <= len(runes); start++ {
		candidate := strings.TrimLeft(string(runes[start:]), " \t\n\r")
		if counter(candidate) <= limit {
			return candidate
		}
	}
	return ""
}

func maybeInsertWhitespace(tail, current string) string {
	if tail == "" {
		return current
	}
	if current == "" {
		return tail
	}
	if endsWithSpace(tail) || startsWithSpace(current) {
		return tail + current
	}
	return tail + " " + current
}

func endsWithSpace(s string) bool {
	r, _ := utf8.DecodeLastRuneInString(s)
	return r != utf8.RuneError && unicode.IsSpace(r)
}

func startsWithSpace(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return r != utf8.RuneError && unicode.IsSpace(r)
}
