// Package memoryservice implements the ingest, search, and summarization
// orchestrators of §4.3/§4.4/§4.7, wiring the chunker, token counter,
// embedding client, vector-store adapter, and summary provider behind one
// process-wide, concurrency-safe service.
//
// Grounded structurally on manifold's functional-options construction
// pattern (internal/tools/web/fetch.go, internal/objectstore/s3.go) and its
// OTel metrics adapter (internal/rag/obs/metrics.go), layered additionally
// on top of the spec-mandated atomic Metrics registry rather than
// replacing it.
package memoryservice

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"manifold/internal/config"
	"manifold/internal/embedclient"
	"manifold/internal/observability"
	"manifold/internal/rag/chunker"
	"manifold/internal/summaryprovider"
	"manifold/internal/tokencount"
	"manifold/internal/vectorstore"
)

// Store is the subset of vectorstore.Store the orchestrators depend on,
// declared locally so tests can supply an in-memory fake.
type Store interface {
	CreateCollectionIfNotExists(ctx context.Context, name string, size int) error
	EnsurePayloadIndexes(ctx context.Context, name string) error
	IndexPoints(ctx context.Context, collection string, points []vectorstore.Point) (inserted, updated int, err error)
	SearchPoints(ctx context.Context, collection string, vector []float32, filter map[string]any, limit int, threshold *float64, using string) ([]vectorstore.ScoredPoint, error)
	ScrollPayloads(ctx context.Context, collection string, filter map[string]any) ([]vectorstore.ScrollPayload, error)
	ListCollections(ctx context.Context) ([]string, error)
	ListProjects(ctx context.Context, collection string) ([]string, error)
	ListTags(ctx context.Context, collection, projectID string) ([]string, error)
}

// OtelSink is the additional observability surface layered on top of the
// atomic Metrics registry; nil is a valid no-op sink.
type OtelSink interface {
	IncCounter(name string, labels map[string]string)
	ObserveHistogram(name string, value float64, labels map[string]string)
}

// Service is the process-wide memory orchestrator. It owns the embedding
// client, vector-store adapter, and metrics registry for the process
// lifetime; callers share one Service instance across goroutines (§5).
type Service struct {
	cfg         config.Config
	embedder    embedclient.EmbeddingClient
	store       Store
	chunker     chunker.Chunker
	counter     tokencount.Counter
	summary     summaryprovider.SummaryProvider
	metrics     *Metrics
	otel        OtelSink
	log         zerolog.Logger
	now         func() time.Time
	sf          singleflight.Group
	idempotency idempotencyLookup
}

// idempotencyLookup resolves an existing summary memory by tag, kept as a
// field so tests can stub it without a live Store round-trip.
type idempotencyLookup func(ctx context.Context, collection, projectID, tag string) (*SummarizeResult, error)

// Option configures optional Service dependencies.
type Option func(*Service)

func WithSummaryProvider(p summaryprovider.SummaryProvider) Option {
	return func(s *Service) { s.summary = p }
}

func WithOtelSink(sink OtelSink) Option {
	return func(s *Service) { s.otel = sink }
}

func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) { s.log = log }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithChunker(c chunker.Chunker) Option {
	return func(s *Service) { s.chunker = c }
}

// New constructs a Service. counter is the token-counting function built
// via tokencount.BuildCounter for cfg's embedding provider/model.
func New(cfg config.Config, embedder embedclient.EmbeddingClient, store Store, counter tokencount.Counter, opts ...Option) *Service {
	s := &Service{
		cfg:      cfg,
		embedder: embedder,
		store:    store,
		chunker:  chunker.SimpleChunker{},
		counter:  counter,
		metrics:  &Metrics{},
		log:      zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.idempotency = s.lookupExistingSummary
	return s
}

func (s *Service) Metrics() *Metrics { return s.metrics }

// HTTPClientWithOtel is a convenience constructor used by wiring code to
// build the otelhttp-wrapped client shared by the embedding client, summary
// provider, and vector-store adapter.
func HTTPClientWithOtel(base *http.Client) *http.Client {
	return observability.NewHTTPClient(base)
}

// logRedactedPayload debug-logs a redacted JSON trace of an outbound or
// inbound summarization/embedding payload, enriched with the request's
// trace context. A no-op unless cfg.LogPayloads is set.
func (s *Service) logRedactedPayload(ctx context.Context, field, msg string, v any) {
	if !s.cfg.LogPayloads {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	red := observability.RedactJSON(b)
	entry := observability.LoggerWithTrace(ctx).With().RawJSON(field, red).Logger()
	entry.Debug().Msg(msg)
}
