package kb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout = 30 * time.Second
	maxRetries     = 3
	initialBackoff = 500 * time.Millisecond

	// defaultCandidates over-fetches so the reranker has a meaningful
	// selection pool to cut down from.
	defaultCandidates = 10
)

// Client communicates with the remote knowledge-base backend: passage
// retrieval, document upload, and ingestion job control. It is stateless and
// safe for concurrent use.
type Client struct {
	baseURL         string
	apiKey          string
	knowledgeBaseID string
	dataSourceID    string
	httpClient      *http.Client
}

// Config carries the backend coordinates shared by search and ingestion.
type Config struct {
	BaseURL         string
	APIKey          string
	KnowledgeBaseID string
	DataSourceID    string
}

// NewClient creates a knowledge-base client.
func NewClient(cfg Config) *Client {
	return &Client{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:          cfg.APIKey,
		knowledgeBaseID: cfg.KnowledgeBaseID,
		dataSourceID:    cfg.DataSourceID,
		httpClient:      &http.Client{Timeout: defaultTimeout},
	}
}

type retrieveRequest struct {
	KnowledgeBaseID string     `json:"knowledge_base_id"`
	Query           string     `json:"query"`
	ResultCount     int        `json:"result_count"`
	SearchMode      SearchMode `json:"search_mode"`
}

type retrieveResponse struct {
	Results []struct {
		Text     string            `json:"text"`
		Score    float64           `json:"score"`
		Metadata map[string]string `json:"metadata"`
	} `json:"results"`
}

// Metadata keys returned by the retrieval backend.
const (
	metaSourceURI  = "source-uri"
	metaPageNumber = "page-number"
)

// Search retrieves up to k candidate passages for the query using hybrid
// (lexical + semantic) search. Blank queries are rejected with
// ErrInvalidQuery before any network call; transport and upstream failures
// are wrapped in ErrBackendUnavailable.
func (c *Client) Search(ctx context.Context, query string, k int) ([]Passage, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is empty", ErrInvalidQuery)
	}
	if k <= 0 {
		k = defaultCandidates
	}

	body, err := json.Marshal(retrieveRequest{
		KnowledgeBaseID: c.knowledgeBaseID,
		Query:           query,
		ResultCount:     k,
		SearchMode:      SearchModeHybrid,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling retrieve request: %w", err)
	}

	data, err := c.doJSON(ctx, http.MethodPost, "/retrieve", body)
	if err != nil {
		return nil, err
	}

	var resp retrieveResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: decoding retrieve response: %v", ErrBackendUnavailable, err)
	}

	passages := make([]Passage, 0, len(resp.Results))
	for _, r := range resp.Results {
		p := Passage{
			Text:      r.Text,
			Score:     r.Score,
			SourceURI: r.Metadata[metaSourceURI],
		}
		if raw := r.Metadata[metaPageNumber]; raw != "" {
			// Backends report pages as "2" or "2.0"; tolerate both.
			var page float64
			if _, err := fmt.Sscanf(raw, "%g", &page); err == nil && page > 0 {
				p.PageNumber = int(page)
			}
		}
		passages = append(passages, p)
	}
	return passages, nil
}

// doJSON performs a request with bounded retries on HTTP 429. Every other
// failure is returned immediately, wrapped in ErrBackendUnavailable.
func (c *Client) doJSON(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var lastErr error
	for attempt := range maxRetries {
		data, retryable, err := c.doOnce(ctx, method, path, body)
		if err == nil {
			return data, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
		if attempt < maxRetries-1 {
			backoff := time.Duration(float64(initialBackoff) * math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, ctx.Err())
			case <-time.After(backoff):
			}
		}
	}
	return nil, fmt.Errorf("rate limited after %d retries: %w", maxRetries, lastErr)
}

func (c *Client) doOnce(ctx context.Context, method, path string, body []byte) (data []byte, retryable bool, err error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, false, fmt.Errorf("%w: creating request: %v", ErrBackendUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, true, fmt.Errorf("%w: rate limited (HTTP 429)", ErrBackendUnavailable)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, false, fmt.Errorf("%w: unexpected status %d: %s", ErrBackendUnavailable, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	data, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("%w: reading response: %v", ErrBackendUnavailable, err)
	}
	return data, false, nil
}
