package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/mskwm/briefd/internal/kb"
	"github.com/mskwm/briefd/internal/llm"
	"github.com/mskwm/briefd/internal/rerank"
)

// ToolName is how the reasoning backend addresses the knowledge-base search
// capability.
const ToolName = "search_knowledge_base"

const toolDescription = "Search for specific financial data, trust documents, " +
	"and company policies in the firm's knowledge base. Use it whenever the " +
	"answer depends on client records, regulations, or internal policy."

const defaultCandidates = 10

// Searcher retrieves candidate passages from the knowledge base.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]kb.Passage, error)
}

// Result is the outcome of one knowledge-base query: the passages that
// survived reranking, in final rank order, and their texts joined for prompt
// injection.
type Result struct {
	Passages []kb.Passage
	Context  string
}

// Pipeline composes retrieval and reranking into the single searchable
// capability exposed to both the reasoning loop and the citation path.
// Stateless and safe for concurrent use.
type Pipeline struct {
	searcher   Searcher
	reranker   rerank.Reranker
	candidates int
	topN       int
	logger     *slog.Logger
}

// New creates a Pipeline. candidates is how many passages retrieval fetches
// (default 10) and topN how many survive reranking (default 3).
func New(searcher Searcher, reranker rerank.Reranker, candidates, topN int) *Pipeline {
	if candidates <= 0 {
		candidates = defaultCandidates
	}
	if topN <= 0 {
		topN = rerank.DefaultTopN
	}
	return &Pipeline{
		searcher:   searcher,
		reranker:   reranker,
		candidates: candidates,
		topN:       topN,
		logger:     slog.Default(),
	}
}

// Query retrieves candidates for text and reranks them down to topN. If the
// reranker fails, the retrieval-order top-N is returned instead: degraded
// ordering is preferable to failing the whole turn, and the fallback is
// deliberate policy rather than incidental behavior.
func (p *Pipeline) Query(ctx context.Context, text string) (Result, error) {
	passages, err := p.searcher.Search(ctx, text, p.candidates)
	if err != nil {
		return Result{}, err
	}
	if len(passages) == 0 {
		return Result{}, nil
	}

	ranked, err := p.reranker.Rerank(ctx, text, passages, p.topN)
	if err != nil {
		p.logger.Warn("rerank failed, falling back to retrieval order", "error", err)
		ranked = rerank.Fallback(passages, p.topN)
	}

	return Result{Passages: ranked, Context: joinPassages(ranked)}, nil
}

// ToolDefinition describes the pipeline as a callable tool for the reasoning
// backend.
func (p *Pipeline) ToolDefinition() llm.Tool {
	return llm.Tool{
		Name:        ToolName,
		Description: toolDescription,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Natural-language search query for the knowledge base.",
				},
			},
			"required": []string{"query"},
		},
	}
}

func joinPassages(passages []kb.Passage) string {
	var sb strings.Builder
	for i, p := range passages {
		if i > 0 {
			sb.WriteString("\n\n---\n\n")
		}
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// Querier is the capability consumed by the agent and the chat session.
type Querier interface {
	Query(ctx context.Context, text string) (Result, error)
	ToolDefinition() llm.Tool
}

// Cached wraps a Querier and memoizes the most recent query's result. A chat
// turn queries the pipeline twice (once inside the agent's tool call and
// once for citations), and when both use the same query text the second call
// reuses the first result instead of paying for a fresh retrieval. Scope a
// Cached to a single turn; it is safe for concurrent use within it.
type Cached struct {
	Querier

	mu        sync.Mutex
	lastQuery string
	lastRes   Result
	primed    bool
}

// NewCached wraps q with single-entry memoization.
func NewCached(q Querier) *Cached {
	return &Cached{Querier: q}
}

// Query returns the memoized result when text matches the previous call,
// otherwise delegates and records the outcome. Failed queries are not cached.
func (c *Cached) Query(ctx context.Context, text string) (Result, error) {
	c.mu.Lock()
	if c.primed && c.lastQuery == text {
		res := c.lastRes
		c.mu.Unlock()
		return res, nil
	}
	c.mu.Unlock()

	res, err := c.Querier.Query(ctx, text)
	if err != nil {
		return Result{}, err
	}

	c.mu.Lock()
	c.lastQuery = text
	c.lastRes = res
	c.primed = true
	c.mu.Unlock()
	return res, nil
}
