package llm

import (
	"encoding/json"
	"errors"
)

// ErrUnavailable wraps transport and upstream failures of the reasoning
// backend.
var ErrUnavailable = errors.New("reasoning backend unavailable")

// Message is a role-tagged chat message. Tool result messages carry the
// name of the tool that produced them and the ID of the call they answer.
type Message struct {
	Role       string `json:"role"`
	Content    string `json:"content"`
	Name       string `json:"name,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`

	// ToolCalls echoes a prior assistant decision back to the backend so the
	// next round sees the call/result pairing it expects.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Tool describes a capability the backend may invoke mid-reasoning.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolCall is a backend-requested tool invocation.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Completion is the tagged result of one reasoning call: either a final text
// answer or a set of tool calls to execute, never both meaningfully. Keeping
// the decision as data keeps the agent's state machine explicit and testable.
type Completion struct {
	Content   string
	ToolCalls []ToolCall
}

// IsToolCall reports whether the backend decided to invoke tools this round.
func (c Completion) IsToolCall() bool {
	return len(c.ToolCalls) > 0
}

// SearchArguments is the argument payload of a knowledge-base search call.
type SearchArguments struct {
	Query string `json:"query"`
}

// ParseSearchArguments decodes the query string from raw tool-call arguments.
func ParseSearchArguments(raw string) (SearchArguments, error) {
	var args SearchArguments
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return SearchArguments{}, err
	}
	return args, nil
}
