package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"manifold/internal/apperr"
)

// Load reads the seventeen environment variables spec §6 names, plus
// LOG_LEVEL, LOG_PAYLOADS and the OTel settings, and builds a Config. Missing required variables are reported as apperr.ErrInvalidConfiguration.
//
// A .env file is loaded best-effort first (mirroring the original Rust
// server's dotenvy::dotenv().ok() — absence of a .env file is never fatal).
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{
		ChunkOverlap:                0,
		SearchDefaultLimit:          10,
		SearchMaxLimit:              100,
		SearchDefaultScoreThreshold: 0.0,
		SummarizationMaxWords:       200,
	}

	var missing []string
	require := func(key string) string {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg.QdrantURL = require("QDRANT_URL")
	cfg.QdrantCollectionName = require("QDRANT_COLLECTION_NAME")
	cfg.QdrantAPIKey = strings.TrimSpace(os.Getenv("QDRANT_API_KEY"))

	provider := strings.ToLower(require("EMBEDDING_PROVIDER"))
	switch EmbeddingProvider(provider) {
	case EmbeddingProviderOllama, EmbeddingProviderOpenAI:
		cfg.EmbeddingProvider = EmbeddingProvider(provider)
	case "":
		// already recorded as missing above
	default:
		missing = append(missing, "EMBEDDING_PROVIDER (must be ollama or openai)")
	}

	cfg.EmbeddingModel = require("EMBEDDING_MODEL")
	if v := strings.TrimSpace(os.Getenv("EMBEDDING_DIMENSION")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			missing = append(missing, "EMBEDDING_DIMENSION (must be a positive integer)")
		} else {
			cfg.EmbeddingDimension = n
		}
	} else {
		missing = append(missing, "EMBEDDING_DIMENSION")
	}
	cfg.OllamaURL = strings.TrimSpace(os.Getenv("OLLAMA_URL"))

	if v := strings.TrimSpace(os.Getenv("TEXT_SPLITTER_CHUNK_SIZE")); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			cfg.ChunkSizeOverride = &n
		}
	}
	if v := strings.TrimSpace(os.Getenv("TEXT_SPLITTER_CHUNK_OVERLAP")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.ChunkOverlap = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("TEXT_SPLITTER_USE_SAFE_DEFAULTS")); v != "" {
		cfg.UseSafeDefaults = isTruthy(v)
	}

	if v := strings.TrimSpace(os.Getenv("SERVER_PORT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ServerPort = n
		}
	}

	if v := strings.TrimSpace(os.Getenv("SEARCH_DEFAULT_LIMIT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SearchDefaultLimit = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("SEARCH_MAX_LIMIT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SearchMaxLimit = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("SEARCH_DEFAULT_SCORE_THRESHOLD")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.SearchDefaultScoreThreshold = f
		}
	}

	if v := strings.ToLower(strings.TrimSpace(os.Getenv("SUMMARIZATION_PROVIDER"))); v != "" {
		cfg.SummarizationProvider = SummarizationProvider(v)
	}
	cfg.SummarizationModel = strings.TrimSpace(os.Getenv("SUMMARIZATION_MODEL"))
	if v := strings.TrimSpace(os.Getenv("SUMMARIZATION_MAX_WORDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SummarizationMaxWords = n
		}
	}

	cfg.LogLevel = strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	cfg.LogPayloads = isTruthy(strings.TrimSpace(os.Getenv("LOG_PAYLOADS")))

	cfg.Obs.ServiceName = strings.TrimSpace(os.Getenv("OTEL_SERVICE_NAME"))
	if cfg.Obs.ServiceName == "" {
		cfg.Obs.ServiceName = "memoryengine"
	}
	cfg.Obs.ServiceVersion = strings.TrimSpace(os.Getenv("SERVICE_VERSION"))
	cfg.Obs.Environment = strings.TrimSpace(os.Getenv("ENVIRONMENT"))
	if cfg.Obs.Environment == "" {
		cfg.Obs.Environment = "development"
	}
	cfg.Obs.OTLP = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))

	if len(missing) > 0 {
		return Config{}, apperr.Wrap("config: missing/invalid environment variables: "+strings.Join(missing, ", "), apperr.ErrInvalidConfiguration)
	}

	return cfg, nil
}

func isTruthy(v string) bool {
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}
