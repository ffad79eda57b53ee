package memoryservice

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// HealthSnapshot is the §3 Health snapshot domain type, extended with an
// embedding-provider reachability flag probed concurrently alongside the
// vector-store check.
type HealthSnapshot struct {
	Reachable                  bool
	DefaultCollectionPresent   bool
	EmbeddingProviderReachable bool
	Error                      string
}

// QdrantHealth is a SUPPLEMENTED read-only probe (not named by the
// distilled spec, present in the original Rust processing/service.rs):
// lists collections, reports whether the backend is reachable and whether
// the configured default collection currently exists, and concurrently
// probes the embedding provider — both I/O-bound checks run under one
// errgroup rather than sequentially.
func (s *Service) QdrantHealth(ctx context.Context) HealthSnapshot {
	var names []string
	var listErr error
	var embeddingErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		names, listErr = s.store.ListCollections(gctx)
		return nil // collected, not propagated: a provider-reachability
		// failure must not mask the vector-store result or vice versa.
	})
	g.Go(func() error {
		embeddingErr = s.embedder.CheckReachability(gctx)
		return nil
	})
	_ = g.Wait()

	if listErr != nil {
		return HealthSnapshot{Reachable: false, Error: listErr.Error(), EmbeddingProviderReachable: embeddingErr == nil}
	}
	present := false
	for _, n := range names {
		if n == s.cfg.QdrantCollectionName {
			present = true
			break
		}
	}
	return HealthSnapshot{
		Reachable:                  true,
		DefaultCollectionPresent:   present,
		EmbeddingProviderReachable: embeddingErr == nil,
	}
}

// ListCollections is a SUPPLEMENTED standalone public operation exposing
// the vector-store's collection enumeration directly.
func (s *Service) ListCollections(ctx context.Context) ([]string, error) {
	return s.store.ListCollections(ctx)
}

// CreateCollection is a SUPPLEMENTED standalone public operation that
// creates the named collection if it does not already exist.
func (s *Service) CreateCollection(ctx context.Context, name string, size int) error {
	if size <= 0 {
		size = s.cfg.EmbeddingDimension
	}
	return s.store.CreateCollectionIfNotExists(ctx, name, size)
}

// ListProjects accumulates distinct project_id values for collection.
func (s *Service) ListProjects(ctx context.Context, collection string) ([]string, error) {
	if collection == "" {
		collection = s.cfg.QdrantCollectionName
	}
	return s.store.ListProjects(ctx, collection)
}

// ListTags accumulates distinct tags for collection, optionally scoped to
// projectID.
func (s *Service) ListTags(ctx context.Context, collection, projectID string) ([]string, error) {
	if collection == "" {
		collection = s.cfg.QdrantCollectionName
	}
	return s.store.ListTags(ctx, collection, projectID)
}
