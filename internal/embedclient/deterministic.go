package embedclient

import (
	"context"
	"hash/fnv"
	"math"
)

// DeterministicClient is a hash-based EmbeddingClient test double: no
// network calls, stable output for a given input, optional L2
// normalization. Grounded on manifold's internal/rag/embedder.deterministicEmbedder
// (byte 3-gram FNV hashing into a fixed-size vector).
//
// This is a SUPPLEMENTED feature (not named by the distilled spec): a
// deterministic local embedder lets ingest/search tests and local dev
// runs avoid a live OpenAI/Ollama dependency.
type DeterministicClient struct {
	dim       int
	normalize bool
	seed      uint64
}

func NewDeterministicClient(dim int, normalize bool, seed uint64) *DeterministicClient {
	if dim <= 0 {
		dim = 64
	}
	return &DeterministicClient{dim: dim, normalize: normalize, seed: seed}
}

func (d *DeterministicClient) Dimension() int { return d.dim }

func (d *DeterministicClient) CheckReachability(context.Context) error { return nil }

func (d *DeterministicClient) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = d.embedOne(t)
	}
	return out, nil
}

func (d *DeterministicClient) embedOne(s string) []float32 {
	v := make([]float32, d.dim)
	b := []byte(s)
	switch {
	case len(b) == 0:
		return v
	case len(b) < 3:
		addGram(d.seed, b, v)
	default:
		for i := 0; i <= len(b)-3; i++ {
			addGram(d.seed, b[i:i+3], v)
		}
	}
	if d.normalize {
		var sum float64
		for _, x := range v {
			sum += float64(x) * float64(x)
		}
		if sum > 0 {
			inv := float32(1.0 / math.Sqrt(sum))
			for i := range v {
				v[i] *= inv
			}
		}
	}
	return v
}

func addGram(seed uint64, gram []byte, v []float32) {
	h := fnv.New64a()
	if seed != 0 {
		var tmp [8]byte
		for i := 0; i < 8; i++ {
			tmp[i] = byte(seed >> (8 * i))
		}
		_, _ = h.Write(tmp[:])
	}
	_, _ = h.Write(gram)
	hv := h.Sum64()
	idx := int(hv % uint64(len(v)))
	w := float32(int32(hv>>32)) / float32(1<<31)
	v[idx] += w
}
