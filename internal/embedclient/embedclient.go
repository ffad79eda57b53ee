// Package embedclient provides the §4.3 embedding boundary: a pluggable
// EmbeddingClient interface with concrete OpenAI and Ollama implementations,
// plus the deterministic in-memory double used by tests and local dev.
//
// Grounded on manifold's internal/embedding/client.go (timeout handling,
// JSON request/response shapes, reachability probe) for the Ollama path,
// and internal/llm/openai/client.go (sdk.NewClient option wiring) for the
// OpenAI path.
package embedclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/param"

	"manifold/internal/apperr"
)

// EmbeddingClient embeds a batch of texts, returning one vector per input in
// order, or a dimension-annotated error (§7 DimensionMismatch).
type EmbeddingClient interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	CheckReachability(ctx context.Context) error
	Dimension() int
}

// OpenAIClient calls the OpenAI embeddings API via the official SDK.
type OpenAIClient struct {
	sdk       openai.Client
	model     string
	dimension int
}

// NewOpenAIClient builds an OpenAIClient. baseURL overrides the SDK default
// when set (OpenAI-compatible self-hosted servers), matching the BaseURL
// override pattern used throughout manifold's llm clients.
func NewOpenAIClient(apiKey, baseURL, model string, dimension int, httpClient *http.Client) *OpenAIClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(apiKey)),
		option.WithHTTPClient(httpClient),
	}
	if base := strings.TrimSpace(baseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}
	return &OpenAIClient{
		sdk:       openai.NewClient(opts...),
		model:     model,
		dimension: dimension,
	}
}

func (c *OpenAIClient) Dimension() int { return c.dimension }

func (c *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	params := openai.EmbeddingNewParams{
		Model: c.model,
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	}
	if c.dimension > 0 {
		params.Dimensions = param.NewOpt(int64(c.dimension))
	}
	resp, err := c.sdk.Embeddings.New(ctx, params)
	if err != nil {
		return nil, apperr.Wrap("embedclient: openai embed", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, apperr.Wrap("embedclient: openai embed",
			fmt.Errorf("unexpected embedding count: got %d, want %d", len(resp.Data), len(texts)))
	}
	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for j, f := range d.Embedding {
			vec[j] = float32(f)
		}
		if c.dimension > 0 && len(vec) != c.dimension {
			return nil, &apperr.DimensionMismatch{Expected: c.dimension, Actual: len(vec)}
		}
		out[i] = vec
	}
	return out, nil
}

func (c *OpenAIClient) CheckReachability(ctx context.Context) error {
	_, err := c.Embed(ctx, []string{"ping"})
	return err
}

// OllamaClient calls a local/self-hosted Ollama embeddings endpoint over raw
// HTTP, matching the JSON shape manifold's internal/embedding/client.go
// already speaks — Ollama has no official Go SDK in the retrieved pack.
type OllamaClient struct {
	baseURL    string
	model      string
	dimension  int
	httpClient *http.Client
	timeout    time.Duration
}

func NewOllamaClient(baseURL, model string, dimension int, httpClient *http.Client) *OllamaClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OllamaClient{
		baseURL:    strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		model:      model,
		dimension:  dimension,
		httpClient: httpClient,
		timeout:    30 * time.Second,
	}
}

func (c *OllamaClient) Dimension() int { return c.dimension }

type ollamaEmbedReq struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResp struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (c *OllamaClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(ollamaEmbedReq{Model: c.model, Input: texts})
	if err != nil {
		return nil, apperr.Wrap("embedclient: ollama marshal", err)
	}

	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodPost, c.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Wrap("embedclient: ollama request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap("embedclient: ollama do", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap("embedclient: ollama read body", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, &apperr.BackendStatus{Code: resp.StatusCode, Body: string(respBytes)}
	}

	var er ollamaEmbedResp
	if err := json.Unmarshal(respBytes, &er); err != nil {
		return nil, apperr.Wrap("embedclient: ollama unmarshal", err)
	}
	if len(er.Embeddings) != len(texts) {
		return nil, apperr.Wrap("embedclient: ollama embed",
			fmt.Errorf("unexpected embedding count: got %d, want %d", len(er.Embeddings), len(texts)))
	}
	if c.dimension > 0 {
		for _, vec := range er.Embeddings {
			if len(vec) != c.dimension {
				return nil, &apperr.DimensionMismatch{Expected: c.dimension, Actual: len(vec)}
			}
		}
	}
	return er.Embeddings, nil
}

func (c *OllamaClient) CheckReachability(ctx context.Context) error {
	_, err := c.Embed(ctx, []string{"ping"})
	if err != nil {
		return apperr.Wrap("embedclient: ollama unreachable", err)
	}
	return nil
}
