package api

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mskwm/briefd/internal/kb"
	"github.com/mskwm/briefd/internal/pipeline"
)

type mockMCPQuerier struct {
	result pipeline.Result
	err    error
}

func (m *mockMCPQuerier) Query(_ context.Context, _ string) (pipeline.Result, error) {
	return m.result, m.err
}

type mockSync struct {
	jobID  string
	status string
	err    error
}

func (m *mockSync) StartSync(_ context.Context) (string, string, error) {
	return m.jobID, m.status, m.err
}

func (m *mockSync) SyncStatus(_ context.Context, jobID string) (string, error) {
	return m.status, m.err
}

func makeToolRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func TestMCPSearch(t *testing.T) {
	deps := MCPDeps{Querier: &mockMCPQuerier{result: pipeline.Result{
		Passages: []kb.Passage{
			{Text: "Deadline is March 15.", Score: 0.92, SourceURI: "s3://docs/trust.pdf", PageNumber: 4},
			{Text: "Policy applies to all accounts.", Score: 0.71, SourceURI: "s3://docs/policy.pdf"},
		},
	}}}

	result, err := mcpSearch(deps)(context.Background(), makeToolRequest("search_knowledge_base", map[string]any{"query": "deadlines"}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, result))
	}

	text := resultText(t, result)
	if !strings.Contains(text, "[score 0.92, source s3://docs/trust.pdf, page 4]") {
		t.Errorf("missing passage header: %q", text)
	}
	if !strings.Contains(text, "Deadline is March 15.") {
		t.Errorf("missing passage text: %q", text)
	}
}

func TestMCPSearch_MissingQuery(t *testing.T) {
	deps := MCPDeps{Querier: &mockMCPQuerier{}}

	result, err := mcpSearch(deps)(context.Background(), makeToolRequest("search_knowledge_base", map[string]any{}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Error("expected tool error for missing query")
	}
}

func TestMCPSearch_NoResults(t *testing.T) {
	deps := MCPDeps{Querier: &mockMCPQuerier{}}

	result, err := mcpSearch(deps)(context.Background(), makeToolRequest("search_knowledge_base", map[string]any{"query": "obscure"}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Error("empty result set is not an error")
	}
	if !strings.Contains(resultText(t, result), "No relevant documents") {
		t.Errorf("text = %q", resultText(t, result))
	}
}

func TestMCPSearch_BackendFailure(t *testing.T) {
	deps := MCPDeps{Querier: &mockMCPQuerier{err: kb.ErrBackendUnavailable}}

	result, err := mcpSearch(deps)(context.Background(), makeToolRequest("search_knowledge_base", map[string]any{"query": "q"}))
	if err != nil {
		t.Fatalf("failures surface as tool errors, not handler errors: %v", err)
	}
	if !result.IsError {
		t.Error("expected tool error")
	}
}

func TestMCPStartSync(t *testing.T) {
	deps := MCPDeps{Sync: &mockSync{jobID: "job-1", status: "STARTING"}}

	result, err := mcpStartSync(deps)(context.Background(), makeToolRequest("start_sync", nil))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	text := resultText(t, result)
	if !strings.Contains(text, "job-1") || !strings.Contains(text, "STARTING") {
		t.Errorf("text = %q", text)
	}
}

func TestMCPStartSync_Failure(t *testing.T) {
	deps := MCPDeps{Sync: &mockSync{err: errors.New("backend down")}}

	result, err := mcpStartSync(deps)(context.Background(), makeToolRequest("start_sync", nil))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Error("expected tool error")
	}
}

func TestMCPSyncStatus(t *testing.T) {
	deps := MCPDeps{Sync: &mockSync{status: "COMPLETE"}}

	result, err := mcpSyncStatus(deps)(context.Background(), makeToolRequest("sync_status", map[string]any{"job_id": "job-1"}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !strings.Contains(resultText(t, result), "COMPLETE") {
		t.Errorf("text = %q", resultText(t, result))
	}

	missing, err := mcpSyncStatus(deps)(context.Background(), makeToolRequest("sync_status", map[string]any{}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !missing.IsError {
		t.Error("expected tool error for missing job_id")
	}
}
