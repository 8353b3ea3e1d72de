package api

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mskwm/briefd/internal/pipeline"
)

// MCPQuerier is the knowledge-base search capability exposed over MCP.
type MCPQuerier interface {
	Query(ctx context.Context, text string) (pipeline.Result, error)
}

// MCPSyncStarter triggers ingestion jobs for MCP hosts. MCP tool calls are
// one-shot, so only the trigger is exposed; hosts poll sync_status for
// progress.
type MCPSyncStarter interface {
	StartSync(ctx context.Context) (jobID, status string, err error)
	SyncStatus(ctx context.Context, jobID string) (status string, err error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Querier MCPQuerier
	Sync    MCPSyncStarter
}

// NewMCPServer creates an MCP server exposing briefd's knowledge-base search
// and sync controls to external hosts.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"briefd",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("briefd: retrieval-augmented assistant over the MSK Wealth Management knowledge base."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search_knowledge_base",
			mcp.WithDescription("Search financial data, trust documents, and company policies in the knowledge base. Returns the most relevant passages with their sources."),
			mcp.WithString("query", mcp.Description("Natural-language search query"), mcp.Required()),
		),
		mcpSearch(deps),
	)

	s.AddTool(
		mcp.NewTool("start_sync",
			mcp.WithDescription("Trigger a knowledge-base ingestion job so newly uploaded documents become searchable."),
		),
		mcpStartSync(deps),
	)

	s.AddTool(
		mcp.NewTool("sync_status",
			mcp.WithDescription("Check the status of a previously started ingestion job."),
			mcp.WithString("job_id", mcp.Description("ID returned by start_sync"), mcp.Required()),
		),
		mcpSyncStatus(deps),
	)

	return s
}

func mcpSearch(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		res, err := deps.Querier.Query(ctx, query)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(res.Passages) == 0 {
			return mcpText("No relevant documents found."), nil
		}

		var sb strings.Builder
		for i, p := range res.Passages {
			if i > 0 {
				sb.WriteString("\n\n---\n\n")
			}
			fmt.Fprintf(&sb, "[score %.2f", p.Score)
			if p.SourceURI != "" {
				fmt.Fprintf(&sb, ", source %s", p.SourceURI)
			}
			if p.PageNumber > 0 {
				fmt.Fprintf(&sb, ", page %d", p.PageNumber)
			}
			sb.WriteString("]\n")
			sb.WriteString(p.Text)
		}
		return mcpText(sb.String()), nil
	}
}

func mcpStartSync(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID, status, err := deps.Sync.StartSync(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("sync trigger failed: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Started ingestion job %s (status %s)", jobID, status)), nil
	}
}

func mcpSyncStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID, err := req.RequireString("job_id")
		if err != nil {
			return mcpError("job_id is required"), nil
		}
		status, err := deps.Sync.SyncStatus(ctx, jobID)
		if err != nil {
			return mcpError(fmt.Sprintf("status check failed: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Job %s: %s", jobID, status)), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
