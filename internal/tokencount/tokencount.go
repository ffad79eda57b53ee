// Package tokencount derives model-aware chunk-size budgets and builds the
// token-counting function the chunker and overlap trimmer share (§4.1).
//
// Grounded on the original Rust processing/chunking.rs: the context-window
// table, the divisor-by-safe-defaults rule, and the resolve_encoding
// fallback chain (model lookup -> named encoding -> final cl100k_base
// fallback) are ported verbatim in meaning. The BPE implementation itself
// comes from github.com/pkoukk/tiktoken-go (a real dependency already
// present, indirectly, in the example pack's AleutianAI-AleutianFOSS
// repo) rather than a hand-rolled encoder, since no example repo
// implements BPE token counting itself.
package tokencount

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog"

	"manifold/internal/config"
)

const (
	minAutomaticChunkSize = 256
	maxAutomaticChunkSize = 1024

	defaultOpenAIWindow = 8192
	defaultOllamaWindow = 4096
)

// Counter is a pure, cheaply cloneable function from text to a token count.
// It must be Send+Sync-safe in Go terms, i.e. callable concurrently without
// external synchronization; a *tiktoken.Tiktoken is safe for concurrent use
// after construction, and the whitespace fallback holds no mutable state.
type Counter func(text string) int

// DetermineChunkSize implements §4.1's chunk-size rule.
func DetermineChunkSize(override *int, provider config.EmbeddingProvider, model string, useSafeDefaults bool) int {
	if override != nil {
		if *override < 1 {
			return 1
		}
		return *override
	}

	window := embeddingContextWindow(provider, model)
	divisor := 4
	if useSafeDefaults {
		divisor = 8
	}
	size := ceilDiv(window, divisor)
	return clamp(size, minAutomaticChunkSize, maxAutomaticChunkSize)
}

func embeddingContextWindow(provider config.EmbeddingProvider, model string) int {
	lower := strings.ToLower(model)
	switch provider {
	case config.EmbeddingProviderOpenAI:
		if strings.HasPrefix(lower, "text-embedding-3") || lower == "text-embedding-ada-002" {
			return 8192
		}
		if enc, err := resolveEncoding(model); err == nil {
			if w, ok := knownEncodingWindow(enc); ok {
				return w
			}
		}
		return defaultOpenAIWindow
	case config.EmbeddingProviderOllama:
		switch {
		case lower == "nomic-embed-text", lower == "mxbai-embed-large", lower == "mxbai-embed-large-v1":
			return 8192
		case strings.Contains(lower, "all-minilm"):
			return 512
		case strings.Contains(lower, "e5-large"):
			return 4096
		default:
			return defaultOllamaWindow
		}
	default:
		return defaultOllamaWindow
	}
}

// knownEncodingWindow provides a conservative window for a resolved named
// encoding, used only when the OpenAI model name itself isn't recognized
// but a BPE encoding could still be resolved for it.
func knownEncodingWindow(encodingName string) (int, bool) {
	switch encodingName {
	case "cl100k_base", "o200k_base":
		return 8192, true
	case "p50k_base", "p50k_edit":
		return 4096, true
	case "r50k_base":
		return 2048, true
	default:
		return 0, false
	}
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// namedEncodingFallbacks is the resolution order attempted when a model id
// cannot be mapped to an encoding directly.
var namedEncodingFallbacks = []string{"cl100k_base", "o200k_base", "p50k_base", "p50k_edit", "r50k_base"}

var encodingCache sync.Map // encoding name -> *tiktoken.Tiktoken

func resolveEncoding(model string) (string, error) {
	if enc, err := tiktoken.EncodingForModel(model); err == nil {
		return enc.EncodingName(), nil
	}
	for _, name := range namedEncodingFallbacks {
		if _, err := loadEncoding(name); err == nil {
			return name, nil
		}
	}
	if strings.EqualFold(model, "gpt2") {
		return "r50k_base", nil
	}
	return "cl100k_base", nil
}

func loadEncoding(name string) (*tiktoken.Tiktoken, error) {
	if v, ok := encodingCache.Load(name); ok {
		return v.(*tiktoken.Tiktoken), nil
	}
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, err
	}
	encodingCache.Store(name, enc)
	return enc, nil
}

// BuildCounter constructs the token-counting function per §4.1's rule: try
// a BPE by model id, then by named encoding; OpenAI-style providers treat
// total failure as a hard error, Ollama-style providers fall back to a
// whitespace counter (logged at warn level).
func BuildCounter(provider config.EmbeddingProvider, model string, log zerolog.Logger) (Counter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		for _, name := range namedEncodingFallbacks {
			if e, lerr := loadEncoding(name); lerr == nil {
				enc = e
				err = nil
				break
			}
		}
	}
	if err == nil && enc != nil {
		e := enc
		return func(text string) int {
			return len(e.Encode(text, nil, nil))
		}, nil
	}

	if provider == config.EmbeddingProviderOpenAI {
		return nil, ErrNoEncodingForOpenAI(model)
	}

	log.Warn().Str("model", model).Str("provider", string(provider)).
		Msg("tokencount: no BPE encoding resolved, falling back to whitespace counter")
	return WhitespaceCounter, nil
}

// WhitespaceCounter reports at least 1 token for any non-empty segment.
func WhitespaceCounter(text string) int {
	n := len(strings.Fields(text))
	if n == 0 && strings.TrimSpace(text) != "" {
		return 1
	}
	return n
}

// ErrNoEncodingForOpenAI reports the §4.1 hard-error case: an OpenAI-style
// provider with no resolvable BPE encoding for the configured model.
type noEncodingError struct{ model string }

func (e *noEncodingError) Error() string {
	return "tokencount: no BPE encoding available for OpenAI model " + e.model
}

func ErrNoEncodingForOpenAI(model string) error { return &noEncodingError{model: model} }
