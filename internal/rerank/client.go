package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/mskwm/briefd/internal/kb"
)

// DefaultTopN is how many passages survive reranking unless the caller asks
// for more.
const DefaultTopN = 3

const defaultTimeout = 30 * time.Second

// Reranker re-scores retrieved passages by query relevance and truncates to
// the top N. Implementations must be deterministic for identical scores:
// stable sort by score descending, ties broken by original retrieval order.
type Reranker interface {
	Rerank(ctx context.Context, query string, passages []kb.Passage, topN int) ([]kb.Passage, error)
}

// Client calls a remote cross-encoder rerank endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// Config configures the rerank backend.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
}

// NewClient creates a rerank client. It is stateless and safe for concurrent use.
func NewClient(cfg Config) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

type rerankRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Rerank scores every passage against the query and returns the topN most
// relevant, re-scored and in descending score order. The input slice is
// never mutated. Failures are returned to the caller; falling back to
// retrieval order is the pipeline's decision, not this client's.
func (c *Client) Rerank(ctx context.Context, query string, passages []kb.Passage, topN int) ([]kb.Passage, error) {
	if topN <= 0 {
		topN = DefaultTopN
	}
	if len(passages) == 0 {
		return nil, nil
	}

	docs := make([]string, len(passages))
	for i, p := range passages {
		docs[i] = p.Text
	}

	body, err := json.Marshal(rerankRequest{
		Model:     c.model,
		Query:     query,
		Documents: docs,
		TopN:      topN,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", kb.ErrBackendUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kb.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: rerank returned status %d: %s", kb.ErrBackendUnavailable, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var rr rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return nil, fmt.Errorf("%w: decoding rerank response: %v", kb.ErrBackendUnavailable, err)
	}

	type scored struct {
		orig  int
		score float64
	}
	entries := make([]scored, 0, len(rr.Results))
	for _, r := range rr.Results {
		if r.Index < 0 || r.Index >= len(passages) {
			return nil, fmt.Errorf("%w: rerank returned out-of-range index %d", kb.ErrBackendUnavailable, r.Index)
		}
		entries = append(entries, scored{orig: r.Index, score: r.RelevanceScore})
	}

	// Stable by construction: equal scores keep retrieval order.
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		return entries[i].orig < entries[j].orig
	})

	if len(entries) > topN {
		entries = entries[:topN]
	}

	out := make([]kb.Passage, len(entries))
	for i, e := range entries {
		p := passages[e.orig]
		p.Score = e.score
		out[i] = p
	}
	return out, nil
}

// Fallback returns the retrieval-order top-N unchanged. It is the explicit
// degradation policy applied when reranking is unavailable.
func Fallback(passages []kb.Passage, topN int) []kb.Passage {
	if topN <= 0 {
		topN = DefaultTopN
	}
	if len(passages) <= topN {
		out := make([]kb.Passage, len(passages))
		copy(out, passages)
		return out
	}
	out := make([]kb.Passage, topN)
	copy(out, passages[:topN])
	return out
}
