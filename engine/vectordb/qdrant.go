package vectordb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type qdrantStore struct {
	client     *http.Client
	baseURL    string
	collection string
	dimension  int
	maxTopK    int
	metric     string
	apiKey     string
}

type qdrantSearchResult struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

const qdrantDefaultTimeout = 10 * time.Second

func newQdrantStore(ctx context.Context, cfg *Config) (Store, error) {
	base := strings.TrimRight(cfg.DSN, "/")
	if base == "" {
		return nil, errors.New("qdrant: dsn is required")
	}
	collection := cfg.Collection
	if collection == "" {
		collection = cfg.Table
	}
	if collection == "" {
		collection = "document_chunks"
	}
	store := &qdrantStore{
		client:     &http.Client{Timeout: qdrantDefaultTimeout},
		baseURL:    base,
		collection: collection,
		dimension:  cfg.Dimension,
		maxTopK:    cfg.MaxTopK,
		metric:     chooseMetric(cfg.Metric),
	}
	if key, ok := cfg.Auth["api_key"]; ok {
		store.apiKey = key
	}
	if err := store.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func chooseMetric(metric string) string {
	switch strings.ToLower(strings.TrimSpace(metric)) {
	case "euclid", "euclidean", "l2":
		return "Euclid"
	case "dot", "dotproduct":
		return "Dot"
	default:
		return "Cosine"
	}
}

func (q *qdrantStore) ensureCollection(ctx context.Context) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     q.dimension,
			"distance": q.metric,
		},
	}
	return q.doRequest(ctx, http.MethodPut, fmt.Sprintf("/collections/%s", q.collection), body, nil)
}

// documentScopeFilter matches records whose document id is in the given set.
func documentScopeFilter(ids []string) map[string]any {
	values := make([]any, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	return map[string]any{
		"must": []any{
			map[string]any{
				"key":   "document_id",
				"match": map[string]any{"any": values},
			},
		},
	}
}

func (q *qdrantStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]any, 0, len(records))
	for i := range records {
		rec := records[i]
		if len(rec.Embedding) != q.dimension {
			return fmt.Errorf("qdrant: record %q dimension mismatch", rec.ID)
		}
		payload := map[string]any{
			"text":        rec.Text,
			"document_id": rec.DocumentID,
		}
		if len(rec.Pages) > 0 {
			payload["pages"] = rec.Pages
		}
		points = append(points, map[string]any{
			"id":      rec.ID,
			"vector":  rec.Embedding,
			"payload": payload,
		})
	}
	body := map[string]any{"points": points}
	return q.doRequest(ctx, http.MethodPut, fmt.Sprintf("/collections/%s/points", q.collection), body, nil)
}

func (q *qdrantStore) Search(ctx context.Context, query []float32, opts SearchOptions) ([]Match, error) {
	if len(query) != q.dimension {
		return nil, fmt.Errorf("qdrant: query dimension mismatch")
	}
	if len(opts.DocumentIDs) == 0 {
		return nil, ErrNoDocumentFilter
	}
	request := map[string]any{
		"vector":       query,
		"limit":        clampTopK(opts.TopK, q.maxTopK),
		"with_payload": true,
		"filter":       documentScopeFilter(opts.DocumentIDs),
	}
	var response struct {
		Result []qdrantSearchResult `json:"result"`
	}
	searchPath := fmt.Sprintf("/collections/%s/points/search", q.collection)
	if err := q.doRequest(ctx, http.MethodPost, searchPath, request, &response); err != nil {
		return nil, err
	}
	matches := make([]Match, 0, len(response.Result))
	for _, res := range response.Result {
		if res.Score < opts.MinScore {
			continue
		}
		match := Match{ID: fmt.Sprint(res.ID), Score: res.Score}
		if raw, ok := res.Payload["text"].(string); ok {
			match.Text = raw
		}
		if raw, ok := res.Payload["document_id"].(string); ok {
			match.DocumentID = raw
		}
		if raw, ok := res.Payload["pages"].([]any); ok {
			match.Pages = toPages(raw)
		}
		matches = append(matches, match)
	}
	return matches, nil
}

func toPages(raw []any) []int {
	pages := make([]int, 0, len(raw))
	for _, value := range raw {
		if num, ok := value.(float64); ok {
			pages = append(pages, int(num))
		}
	}
	if len(pages) == 0 {
		return nil
	}
	return pages
}

// Delete issues one request per selector: the points-delete endpoint accepts
// either explicit ids or a filter, not both in one body.
func (q *qdrantStore) Delete(ctx context.Context, filter Filter) error {
	path := fmt.Sprintf("/collections/%s/points/delete", q.collection)
	if len(filter.IDs) > 0 {
		request := map[string]any{"points": filter.IDs}
		if err := q.doRequest(ctx, http.MethodPost, path, request, nil); err != nil {
			return err
		}
	}
	if filter.DocumentID != "" {
		request := map[string]any{"filter": documentScopeFilter([]string{filter.DocumentID})}
		if err := q.doRequest(ctx, http.MethodPost, path, request, nil); err != nil {
			return err
		}
	}
	return nil
}

func (q *qdrantStore) Close(context.Context) error {
	return nil
}

func (q *qdrantStore) doRequest(ctx context.Context, method, path string, body any, out any) error {
	var buf *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("qdrant: marshal request: %w", err)
		}
		buf = bytes.NewReader(payload)
	} else {
		buf = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, buf)
	if err != nil {
		return fmt.Errorf("qdrant: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
	resp, err := q.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant: request failed: %w", err)
	}
	defer resp.Body.Close()
	payload, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return fmt.Errorf("qdrant: read response: %w", readErr)
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		}
		if err := json.Unmarshal(payload, &apiErr); err != nil {
			return fmt.Errorf("qdrant: request failed with status %d", resp.StatusCode)
		}
		return fmt.Errorf("qdrant: %s (%d): %s", apiErr.Error, resp.StatusCode, apiErr.Status)
	}
	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("qdrant: decode response: %w", err)
		}
	}
	return nil
}
