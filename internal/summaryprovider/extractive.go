package summaryprovider

import (
	"strings"
	"unicode/utf8"
)

// Extractive is a standalone extractive summarizer: join the source passages
// and character-truncate to a word-derived character budget, appending a
// single ellipsis when truncated. The summarization orchestrator does not
// call it; its own fallback is memoryservice's bullet-based extractive
// summary.
//
// Grounded literally on the original Rust processing/summarize.rs
// truncate_to_char_budget: chars().take(max_chars-1) plus a single '…'
// (U+2026), never a triple-dot ellipsis.
func Extractive(passages []string, maxWords int) string {
	joined := strings.Join(passages, " ")
	joined = strings.Join(strings.Fields(joined), " ")
	maxChars := maxWords * averageCharsPerWord
	return truncateToCharBudget(joined, maxChars)
}

const averageCharsPerWord = 6
const ellipsis = '…'

func truncateToCharBudget(text string, maxChars int) string {
	if maxChars <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	runes := []rune(text)
	if maxChars == 1 {
		return string(ellipsis)
	}
	return string(runes[:maxChars-1]) + string(ellipsis)
}
