// Package config loads the memory engine's runtime configuration from
// environment variables. Loading is a one-shot operation performed at
// process start; the resulting Config is treated as immutable thereafter
// and passed explicitly into every orchestrator constructor.
package config

// EmbeddingProvider identifies which embedding backend generates vectors.
type EmbeddingProvider string

const (
	EmbeddingProviderOllama EmbeddingProvider = "ollama"
	EmbeddingProviderOpenAI EmbeddingProvider = "openai"
)

// SummarizationProvider identifies which abstractive summary backend, if
// any, the summarization orchestrator should call before falling back to
// the deterministic extractive strategy.
type SummarizationProvider string

const (
	SummarizationProviderNone      SummarizationProvider = ""
	SummarizationProviderOpenAI    SummarizationProvider = "openai"
	SummarizationProviderAnthropic SummarizationProvider = "anthropic"
)

// Config is the process-wide, immutable runtime configuration. It is loaded
// once via Load and threaded by value/pointer into every component that
// needs it; no component re-reads the environment after startup.
type Config struct {
	// Vector backend.
	QdrantURL            string
	QdrantCollectionName string
	QdrantAPIKey         string

	// Embedding.
	EmbeddingProvider  EmbeddingProvider
	EmbeddingModel     string
	EmbeddingDimension int
	OllamaURL          string

	// Chunking.
	ChunkSizeOverride *int
	ChunkOverlap      int
	UseSafeDefaults   bool

	// Search.
	SearchDefaultLimit          int
	SearchMaxLimit              int
	SearchDefaultScoreThreshold float64

	// Summarization.
	SummarizationProvider SummarizationProvider
	SummarizationModel    string
	SummarizationMaxWords int

	// Transport convenience (read but not acted on by the core; the core
	// never listens on a socket itself).
	ServerPort int

	// Logging.
	LogLevel    string
	LogPayloads bool

	// Observability (optional; tracing/metrics stay disabled when Obs.OTLP
	// is empty).
	Obs ObsConfig
}

// ObsConfig configures the optional OTLP trace/metric exporters. A zero
// value (empty OTLP) means tracing and metrics stay disabled.
type ObsConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLP           string
}
