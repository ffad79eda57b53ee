// Command memoryengine is a thin CLI wiring for the ingest/search/summarize
// orchestrators: it loads Config from the environment, constructs the
// embedding client, vector-store adapter, and summary provider named by
// that config, and dispatches one subcommand against the resulting
// memoryservice.Service. It exists to exercise the orchestrators end to
// end; a long-running HTTP/MCP front end is out of scope.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"manifold/internal/config"
	"manifold/internal/embedclient"
	"manifold/internal/memoryservice"
	"manifold/internal/observability"
	"manifold/internal/rag/obs"
	"manifold/internal/searchfilter"
	"manifold/internal/summaryprovider"
	"manifold/internal/tokencount"
	"manifold/internal/vectorstore"
)

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	observability.InitLogger("", cfg.LogLevel)
	shutdownOTel, err := observability.InitOTel(context.Background(), cfg.Obs)
	if err != nil {
		zlog.Logger.Warn().Err(err).Msg("otel init failed, continuing without tracing/metrics")
		shutdownOTel = nil
	}
	if shutdownOTel != nil {
		defer func() { _ = shutdownOTel(context.Background()) }()
		zlog.Logger = zlog.Logger.Output(zerolog.MultiLevelWriter(os.Stdout, observability.NewOTelWriter(cfg.Obs.ServiceName)))
	}
	logger := zlog.Logger
	httpClient := memoryservice.HTTPClientWithOtel(&http.Client{Timeout: 60 * time.Second})

	embedder, err := buildEmbeddingClient(cfg, httpClient)
	if err != nil {
		log.Fatalf("build embedding client: %v", err)
	}
	counter, err := tokencount.BuildCounter(cfg.EmbeddingProvider, cfg.EmbeddingModel, logger)
	if err != nil {
		log.Fatalf("build token counter: %v", err)
	}
	store := vectorstore.New(cfg.QdrantURL, cfg.QdrantAPIKey, httpClient)

	opts := []memoryservice.Option{memoryservice.WithLogger(logger), memoryservice.WithOtelSink(obs.NewOtelMetrics())}
	if provider := buildSummaryProvider(cfg, httpClient); provider != nil {
		opts = append(opts, memoryservice.WithSummaryProvider(provider))
	}
	svc := memoryservice.New(cfg, embedder, store, counter, opts...)

	ctx := context.Background()
	switch cmd {
	case "health":
		runHealth(ctx, svc)
	case "ingest":
		runIngest(ctx, svc, cfg, args)
	case "search":
		runSearch(ctx, svc, args)
	case "summarize":
		runSummarize(ctx, svc, args)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: memoryengine <health|ingest|search|summarize> [flags]")
}

func buildEmbeddingClient(cfg config.Config, httpClient *http.Client) (embedclient.EmbeddingClient, error) {
	switch cfg.EmbeddingProvider {
	case config.EmbeddingProviderOpenAI:
		apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
		baseURL := strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
		return embedclient.NewOpenAIClient(apiKey, baseURL, cfg.EmbeddingModel, cfg.EmbeddingDimension, httpClient), nil
	case config.EmbeddingProviderOllama:
		return embedclient.NewOllamaClient(cfg.OllamaURL, cfg.EmbeddingModel, cfg.EmbeddingDimension, httpClient), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", cfg.EmbeddingProvider)
	}
}

func buildSummaryProvider(cfg config.Config, httpClient *http.Client) summaryprovider.SummaryProvider {
	switch cfg.SummarizationProvider {
	case config.SummarizationProviderOpenAI:
		apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
		baseURL := strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
		return summaryprovider.NewOpenAIProvider(apiKey, baseURL, cfg.SummarizationModel, httpClient)
	case config.SummarizationProviderAnthropic:
		apiKey := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
		baseURL := strings.TrimSpace(os.Getenv("ANTHROPIC_BASE_URL"))
		return summaryprovider.NewAnthropicProvider(apiKey, baseURL, cfg.SummarizationModel, httpClient)
	default:
		return nil
	}
}

func runHealth(ctx context.Context, svc *memoryservice.Service) {
	snap := svc.QdrantHealth(ctx)
	b, _ := json.MarshalIndent(snap, "", "  ")
	fmt.Println(string(b))
}

func runIngest(ctx context.Context, svc *memoryservice.Service, cfg config.Config, args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	collection := fs.String("collection", cfg.QdrantCollectionName, "target collection")
	projectID := fs.String("project", "", "project_id")
	memType := fs.String("type", "semantic", "memory_type")
	tags := fs.String("tags", "", "comma-separated tags")
	sourceURI := fs.String("source-uri", "", "source_uri")
	text := fs.String("text", "", "text to ingest")
	_ = fs.Parse(args)

	outcome, err := svc.ProcessAndIndex(ctx, *collection, *text, memoryservice.IngestMetadata{
		ProjectID:  *projectID,
		MemoryType: *memType,
		Tags:       splitCSV(*tags),
		SourceURI:  *sourceURI,
	})
	if err != nil {
		log.Fatalf("ingest: %v", err)
	}
	b, _ := json.MarshalIndent(outcome, "", "  ")
	fmt.Println(string(b))
}

func runSearch(ctx context.Context, svc *memoryservice.Service, args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	query := fs.String("query", "", "query_text")
	projectID := fs.String("project", "", "project_id")
	memType := fs.String("type", "", "memory_type")
	limit := fs.Int("limit", 0, "limit")
	_ = fs.Parse(args)

	req := searchfilter.RawRequest{QueryText: *query, ProjectID: *projectID, MemoryType: *memType}
	if *limit > 0 {
		req.Limit = limit
	}
	hits, err := svc.Search(ctx, req)
	if err != nil {
		log.Fatalf("search: %v", err)
	}
	b, _ := json.MarshalIndent(hits, "", "  ")
	fmt.Println(string(b))
}

func runSummarize(ctx context.Context, svc *memoryservice.Service, args []string) {
	fs := flag.NewFlagSet("summarize", flag.ExitOnError)
	collection := fs.String("collection", "", "target collection")
	projectID := fs.String("project", "", "project_id")
	memType := fs.String("type", "", "memory_type")
	start := fs.String("start", "", "window start, RFC3339")
	end := fs.String("end", "", "window end, RFC3339")
	_ = fs.Parse(args)

	startTime, err := time.Parse(time.RFC3339, *start)
	if err != nil {
		log.Fatalf("summarize: invalid -start: %v", err)
	}
	endTime, err := time.Parse(time.RFC3339, *end)
	if err != nil {
		log.Fatalf("summarize: invalid -end: %v", err)
	}

	result, err := svc.Summarize(ctx, memoryservice.SummarizeRequest{
		Collection: *collection,
		ProjectID:  *projectID,
		MemoryType: *memType,
		Start:      startTime,
		End:        endTime,
	})
	if err != nil {
		log.Fatalf("summarize: %v", err)
	}
	b, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(b))
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
