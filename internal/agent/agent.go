// Package agent implements the tool-calling reasoning loop that turns a user
// question plus conversation history into a final answer, invoking the
// knowledge-base search pipeline when the reasoning backend asks for it.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mskwm/briefd/internal/llm"
	"github.com/mskwm/briefd/internal/pipeline"
)

// ErrLoopExceeded is returned when the reasoning loop hits the configured
// round limit without producing a final answer.
var ErrLoopExceeded = errors.New("reasoning loop exceeded maximum rounds")

// DefaultMaxRounds bounds latency and token cost per turn.
const DefaultMaxRounds = 6

// Turn is one prior exchange in a conversation. The in-flight user message
// is passed to Run separately and must not appear in the history.
type Turn struct {
	Role    string // llm.RoleUser or llm.RoleAssistant
	Content string
}

// Backend is the reasoning service the agent loops against.
type Backend interface {
	Complete(ctx context.Context, messages []llm.Message, tools []llm.Tool) (llm.Completion, error)
}

// Agent runs the think → act → observe cycle until the backend emits a final
// answer or the round limit fires. Stateless across turns; safe to share.
type Agent struct {
	backend   Backend
	maxRounds int
	logger    *slog.Logger
}

// New creates an Agent. maxRounds <= 0 selects DefaultMaxRounds.
func New(backend Backend, maxRounds int) *Agent {
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	return &Agent{
		backend:   backend,
		maxRounds: maxRounds,
		logger:    slog.Default(),
	}
}

// Run answers userMessage in the context of history, searching through the
// supplied querier. Each round the backend either returns final text (done)
// or requests tool calls, whose outputs are appended to the conversation
// before the next round. The caller scopes search to the turn, typically a
// pipeline.Cached shared with the citation path.
func (a *Agent) Run(ctx context.Context, search pipeline.Querier, userMessage string, history []Turn) (string, error) {
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	for _, t := range history {
		messages = append(messages, llm.Message{Role: t.Role, Content: t.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: userMessage})

	tools := []llm.Tool{search.ToolDefinition()}

	for round := 0; round < a.maxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		comp, err := a.backend.Complete(ctx, messages, tools)
		if err != nil {
			return "", err
		}

		if !comp.IsToolCall() {
			return comp.Content, nil
		}

		// Echo the assistant's decision so the next round sees the
		// call/result pairing it expects.
		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   comp.Content,
			ToolCalls: comp.ToolCalls,
		})

		for _, call := range comp.ToolCalls {
			output := a.executeTool(ctx, search, call)
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    output,
				Name:       call.Name,
				ToolCallID: call.ID,
			})
		}

		if round == a.maxRounds-2 {
			messages = append(messages, llm.Message{Role: llm.RoleUser, Content: synthesizeNote})
		}
	}

	return "", fmt.Errorf("%w (%d)", ErrLoopExceeded, a.maxRounds)
}

// executeTool runs a single tool call. Failures become tool output rather
// than turn failures: the backend can usually still answer, or explain why
// it cannot.
func (a *Agent) executeTool(ctx context.Context, search pipeline.Querier, call llm.ToolCall) string {
	if call.Name != pipeline.ToolName {
		a.logger.Warn("backend requested unknown tool", "tool", call.Name)
		return fmt.Sprintf("Unknown tool %q. Available tools: %s.", call.Name, pipeline.ToolName)
	}

	args, err := llm.ParseSearchArguments(call.Arguments)
	if err != nil {
		a.logger.Warn("unparseable tool arguments", "tool", call.Name, "error", err)
		return fmt.Sprintf("Could not parse tool arguments: %v. Provide a JSON object with a \"query\" string.", err)
	}

	res, err := search.Query(ctx, args.Query)
	if err != nil {
		a.logger.Warn("knowledge base search failed", "query", args.Query, "error", err)
		return fmt.Sprintf("Knowledge base search failed: %v.", err)
	}
	if len(res.Passages) == 0 {
		return noResultsMessage
	}
	return res.Context
}
