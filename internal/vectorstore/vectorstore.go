// Package vectorstore is the §4.5 vector-store adapter: a thin typed facade
// over a Qdrant-style HTTP/JSON backend — collection lifecycle,
// payload-index management, batched upsert, filtered similarity query, and
// paginated scroll.
//
// Grounded on manifold's internal/embedding/client.go for the HTTP
// request/response idiom (context-scoped timeout, io.ReadAll then
// json.Unmarshal, status-code-to-error mapping) and
// internal/observability/httpclient.go for otelhttp transport wrapping.
package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"manifold/internal/apperr"
	"manifold/internal/observability"
)

// Point is a single vector+payload to upsert.
type Point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// ScoredPoint is a single similarity-query result, payload trimmed to what
// the backend returned.
type ScoredPoint struct {
	ID      string
	Score   float32
	Payload map[string]any
}

// Store is the concrete adapter, safe for concurrent use (stdlib
// *http.Client pools connections internally).
type Store struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	pageSize   int
}

// New builds a Store. baseURL is normalized: trailing slashes are stripped
// so path composition never duplicates a slash.
func New(baseURL, apiKey string, httpClient *http.Client) *Store {
	if httpClient == nil {
		httpClient = observability.NewHTTPClient(nil)
	}
	return &Store{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: httpClient,
		pageSize:   512,
	}
}

func (s *Store) url(format string, args ...any) string {
	return s.baseURL + fmt.Sprintf(format, args...)
}

func (s *Store) newRequest(ctx context.Context, method, url string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, apperr.Wrap("vectorstore: marshal", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, apperr.Wrap("vectorstore: new request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	return req, nil
}

func (s *Store) do(req *http.Request, out any) (int, []byte, error) {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, nil, apperr.Wrap("vectorstore: transport", apperr.ErrBackendUnavailable)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, apperr.Wrap("vectorstore: read body", err)
	}
	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return resp.StatusCode, body, apperr.Wrap("vectorstore: unmarshal", err)
		}
	}
	return resp.StatusCode, body, nil
}

// ListCollections returns the ordered list of collection names.
func (s *Store) ListCollections(ctx context.Context) ([]string, error) {
	req, err := s.newRequest(ctx, http.MethodGet, s.url("/collections"), nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Result struct {
			Collections []struct {
				Name string `json:"name"`
			} `json:"collections"`
		} `json:"result"`
	}
	status, body, err := s.do(req, &out)
	if err != nil {
		return nil, err
	}
	if status/100 != 2 {
		return nil, &apperr.BackendStatus{Code: status, Body: string(body)}
	}
	names := make([]string, len(out.Result.Collections))
	for i, c := range out.Result.Collections {
		names[i] = c.Name
	}
	return names, nil
}

// CollectionExists reports whether name exists, based on 200/404 status.
func (s *Store) CollectionExists(ctx context.Context, name string) (bool, error) {
	req, err := s.newRequest(ctx, http.MethodGet, s.url("/collections/%s", name), nil)
	if err != nil {
		return false, err
	}
	status, body, err := s.do(req, nil)
	if err != nil {
		return false, err
	}
	switch status {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, &apperr.BackendStatus{Code: status, Body: string(body)}
	}
}

// CreateCollection creates name with cosine distance and the given vector
// size. Callers seeking idempotence should pair this with CollectionExists.
func (s *Store) CreateCollection(ctx context.Context, name string, size int) error {
	payload := map[string]any{
		"vectors": map[string]any{"size": size, "distance": "Cosine"},
	}
	req, err := s.newRequest(ctx, http.MethodPut, s.url("/collections/%s", name), payload)
	if err != nil {
		return err
	}
	status, body, err := s.do(req, nil)
	if err != nil {
		return err
	}
	if status/100 != 2 {
		return &apperr.BackendStatus{Code: status, Body: string(body)}
	}
	return nil
}

// CreateCollectionIfNotExists is the idempotent wrapper the ingest
// orchestrator actually calls.
func (s *Store) CreateCollectionIfNotExists(ctx context.Context, name string, size int) error {
	exists, err := s.CollectionExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return s.CreateCollection(ctx, name, size)
}

// payloadIndexFields lists the keyword-indexed fields; timestamp gets a
// datetime index separately.
var payloadIndexFields = []string{"project_id", "memory_type", "tags", "chunk_hash"}

// EnsurePayloadIndexes creates the §4.5 keyword/datetime indexes. A 409 is
// treated as success (already exists). The first other non-2xx response
// stops the loop and is returned as an error, leaving the remaining fields
// unindexed; the ingest orchestrator logs that error as a warning and
// continues, treating index setup as best-effort.
func (s *Store) EnsurePayloadIndexes(ctx context.Context, name string) error {
	for _, field := range payloadIndexFields {
		if err := s.createIndex(ctx, name, field, "keyword"); err != nil {
			return err
		}
	}
	return s.createIndex(ctx, name, "timestamp", "datetime")
}

func (s *Store) createIndex(ctx context.Context, collection, field, schema string) error {
	payload := map[string]any{"field_name": field, "field_schema": schema}
	req, err := s.newRequest(ctx, http.MethodPut, s.url("/collections/%s/index", collection), payload)
	if err != nil {
		return err
	}
	status, body, err := s.do(req, nil)
	if err != nil {
		return err
	}
	if status == http.StatusConflict || status/100 == 2 {
		return nil
	}
	return &apperr.BackendStatus{Code: status, Body: string(body)}
}

// IndexPoints batched-upserts points with wait=true semantics. The backend
// upsert does not distinguish inserted from updated; a conservative
// implementation reports inserted=count, updated=0 (§9 Open Question).
func (s *Store) IndexPoints(ctx context.Context, collection string, points []Point) (inserted, updated int, err error) {
	if len(points) == 0 {
		return 0, 0, nil
	}
	payload := map[string]any{"points": points}
	req, reqErr := s.newRequest(ctx, http.MethodPut, s.url("/collections/%s/points?wait=true", collection), payload)
	if reqErr != nil {
		return 0, 0, reqErr
	}
	status, body, doErr := s.do(req, nil)
	if doErr != nil {
		return 0, 0, doErr
	}
	if status/100 != 2 {
		return 0, 0, &apperr.BackendStatus{Code: status, Body: string(body)}
	}
	return len(points), 0, nil
}

// SearchPoints queries the similarity endpoint. using, when non-empty,
// selects a named vector.
func (s *Store) SearchPoints(ctx context.Context, collection string, vector []float32, filter map[string]any, limit int, threshold *float64, using string) ([]ScoredPoint, error) {
	payload := map[string]any{
		"query":        vector,
		"limit":        limit,
		"with_payload": true,
	}
	if threshold != nil {
		payload["score_threshold"] = *threshold
	}
	if filter != nil {
		payload["filter"] = filter
	}
	if using != "" {
		payload["using"] = using
	}
	req, err := s.newRequest(ctx, http.MethodPost, s.url("/collections/%s/points/query", collection), payload)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Result json.RawMessage `json:"result"`
	}
	status, body, err := s.do(req, &raw)
	if err != nil {
		return nil, err
	}
	if status/100 != 2 {
		return nil, &apperr.BackendStatus{Code: status, Body: string(body)}
	}
	return parseScoredPoints(raw.Result)
}

// parseScoredPoints handles both wire shapes §6 allows: a bare array of
// points, or an object carrying a "points" field.
func parseScoredPoints(raw json.RawMessage) ([]ScoredPoint, error) {
	var list []wirePoint
	if err := json.Unmarshal(raw, &list); err == nil {
		return normalizePoints(list), nil
	}
	var wrapped struct {
		Points []wirePoint `json:"points"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, apperr.Wrap("vectorstore: parse search result", err)
	}
	return normalizePoints(wrapped.Points), nil
}

type wirePoint struct {
	ID      json.RawMessage `json:"id"`
	Score   float32         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

func normalizePoints(list []wirePoint) []ScoredPoint {
	out := make([]ScoredPoint, 0, len(list))
	for _, p := range list {
		out = append(out, ScoredPoint{ID: normalizeID(p.ID), Score: p.Score, Payload: p.Payload})
	}
	return out
}

// normalizeID maps a backend id — string, number, or {"uuid": "..."} — to a
// plain string, per §4.5.
func normalizeID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	var obj struct {
		UUID string `json:"uuid"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.UUID
	}
	return ""
}

// scrollPage is one page of the backend's cursor-based scroll.
type scrollPage struct {
	Result struct {
		Points         []wireScrollPoint `json:"points"`
		NextPageOffset json.RawMessage   `json:"next_page_offset"`
	} `json:"result"`
}

type wireScrollPoint struct {
	ID      json.RawMessage `json:"id"`
	Payload map[string]any  `json:"payload"`
}

// ScrollPayload is one (id, payload) pair yielded by scroll.
type ScrollPayload struct {
	ID      string
	Payload map[string]any
}

// ScrollPayloads iterates the full cursor-based scroll for collection,
// applying filter, and returns every (id, payload) pair. Requests ask for
// timestamp-ascending ordering; backends that reject order_by are retried
// once without it (§9 Open Question: tolerate its absence).
func (s *Store) ScrollPayloads(ctx context.Context, collection string, filter map[string]any) ([]ScrollPayload, error) {
	return s.scrollAll(ctx, collection, filter, true)
}

func (s *Store) scrollAll(ctx context.Context, collection string, filter map[string]any, orderByTimestamp bool) ([]ScrollPayload, error) {
	var out []ScrollPayload
	var offset json.RawMessage
	useOrderBy := orderByTimestamp

	for {
		page, status, body, err := s.scrollPage(ctx, collection, filter, offset, useOrderBy)
		if err != nil {
			return nil, err
		}
		if status/100 != 2 {
			if useOrderBy {
				// Some backend versions reject order_by on scroll; retry
				// this page once without it. Results are then unordered;
				// callers that need ordering sort them themselves.
				useOrderBy = false
				continue
			}
			return nil, &apperr.BackendStatus{Code: status, Body: string(body)}
		}
		for _, p := range page.Result.Points {
			out = append(out, ScrollPayload{ID: normalizeID(p.ID), Payload: p.Payload})
		}
		if len(page.Result.NextPageOffset) == 0 || string(page.Result.NextPageOffset) == "null" {
			break
		}
		offset = page.Result.NextPageOffset
	}
	return out, nil
}

func (s *Store) scrollPage(ctx context.Context, collection string, filter map[string]any, offset json.RawMessage, orderByTimestamp bool) (scrollPage, int, []byte, error) {
	payload := map[string]any{
		"with_payload": true,
		"with_vector":  false,
		"limit":        s.pageSize,
	}
	if filter != nil {
		payload["filter"] = filter
	}
	if len(offset) > 0 {
		payload["offset"] = json.RawMessage(offset)
	}
	if orderByTimestamp {
		payload["order_by"] = map[string]any{"key": "timestamp", "direction": "asc"}
	}

	req, err := s.newRequest(ctx, http.MethodPost, s.url("/collections/%s/points/scroll", collection), payload)
	if err != nil {
		return scrollPage{}, 0, nil, err
	}
	var page scrollPage
	status, body, err := s.do(req, &page)
	if err != nil {
		return scrollPage{}, status, body, err
	}
	return page, status, body, nil
}

// ListProjects accumulates distinct project_id values over a full scroll.
func (s *Store) ListProjects(ctx context.Context, collection string) ([]string, error) {
	payloads, err := s.ScrollPayloads(ctx, collection, nil)
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	var out []string
	for _, p := range payloads {
		if pid, ok := p.Payload["project_id"].(string); ok && pid != "" {
			if _, dup := seen[pid]; !dup {
				seen[pid] = struct{}{}
				out = append(out, pid)
			}
		}
	}
	return out, nil
}

// ListTags accumulates distinct tags over a full scroll, optionally
// pre-filtered by project_id.
func (s *Store) ListTags(ctx context.Context, collection, projectID string) ([]string, error) {
	var filter map[string]any
	if projectID != "" {
		filter = map[string]any{
			"must": []map[string]any{{"key": "project_id", "match": map[string]any{"value": projectID}}},
		}
	}
	payloads, err := s.ScrollPayloads(ctx, collection, filter)
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	var out []string
	for _, p := range payloads {
		raw, ok := p.Payload["tags"].([]any)
		if !ok {
			continue
		}
		for _, t := range raw {
			tag, ok := t.(string)
			if !ok || tag == "" {
				continue
			}
			if _, dup := seen[tag]; !dup {
				seen[tag] = struct{}{}
				out = append(out, tag)
			}
		}
	}
	return out, nil
}
