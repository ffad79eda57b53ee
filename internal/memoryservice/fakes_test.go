package memoryservice

import (
	"context"
	"sync"

	"manifold/internal/vectorstore"
)

type fakeStore struct {
	mu          sync.Mutex
	collections map[string]int
	points      []vectorstore.Point
	scrollResp  []vectorstore.ScrollPayload
	scrollErr   error
	searchResp  []vectorstore.ScoredPoint
	searchErr   error
	indexCalls  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{collections: map[string]int{}}
}

func (f *fakeStore) CreateCollectionIfNotExists(ctx context.Context, name string, size int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.collections[name]; !ok {
		f.collections[name] = size
	}
	return nil
}

func (f *fakeStore) EnsurePayloadIndexes(ctx context.Context, name string) error { return nil }

func (f *fakeStore) IndexPoints(ctx context.Context, collection string, points []vectorstore.Point) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points = append(f.points, points...)
	f.indexCalls++
	return len(points), 0, nil
}

func (f *fakeStore) SearchPoints(ctx context.Context, collection string, vector []float32, filter map[string]any, limit int, threshold *float64, using string) ([]vectorstore.ScoredPoint, error) {
	return f.searchResp, f.searchErr
}

func (f *fakeStore) ScrollPayloads(ctx context.Context, collection string, filter map[string]any) ([]vectorstore.ScrollPayload, error) {
	return f.scrollResp, f.scrollErr
}

func (f *fakeStore) ListCollections(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for name := range f.collections {
		out = append(out, name)
	}
	return out, nil
}

func (f *fakeStore) ListProjects(ctx context.Context, collection string) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	for _, p := range f.scrollResp {
		if pid, ok := p.Payload["project_id"].(string); ok {
			if _, dup := seen[pid]; !dup {
				seen[pid] = struct{}{}
				out = append(out, pid)
			}
		}
	}
	return out, nil
}

func (f *fakeStore) ListTags(ctx context.Context, collection, projectID string) ([]string, error) {
	return nil, nil
}

type fakeEmbedder struct {
	dim     int
	vectors [][]float32
	err     error
	calls   int
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.vectors != nil {
		return f.vectors, nil
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, f.dim)
		v[0] = float32(i + 1)
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) CheckReachability(ctx context.Context) error { return f.err }
func (f *fakeEmbedder) Dimension() int                              { return f.dim }

type fakeSummaryProvider struct {
	result string
	err    error
	calls  int
}

func (f *fakeSummaryProvider) Summarize(ctx context.Context, text string, maxWords int) (string, error) {
	f.calls++
	return f.result, f.err
}
