package memtools

import (
	"context"
	"fmt"

	"github.com/HendryAvila/recall/internal/memory"
	"github.com/mark3labs/mcp-go/mcp"
)

// RecallTool handles the memory_recall MCP tool.
type RecallTool struct {
	store   *memory.Store
	session *SessionContext
}

// NewRecallTool creates a RecallTool.
func NewRecallTool(store *memory.Store, session *SessionContext) *RecallTool {
	return &RecallTool{store: store, session: session}
}

// Definition returns the MCP tool definition for memory_recall.
func (t *RecallTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_recall",
		mcp.WithDescription(
			"Retrieve past memories. Strategies cascade: memory_id fetches directly, file matches the "+
				"file index, query ranks semantically, and the structured filters are the fallback. "+
				"The first applicable strategy answers alone. Start with depth=summary and drill into "+
				"specific memories at a deeper level only when needed.",
		),
		mcp.WithString("memory_id",
			mcp.Description("Fetch one memory directly by id"),
		),
		mcp.WithString("file",
			mcp.Description("Find memories that touched this file (substring match)"),
		),
		mcp.WithString("query",
			mcp.Description("Natural-language query for semantic search"),
		),
		mcp.WithString("agent_id",
			mcp.Description("Restrict to one agent's memories"),
		),
		mcp.WithString("task_type",
			mcp.Description("Filter by task type, e.g. bugfix or feature"),
		),
		mcp.WithBoolean("success",
			mcp.Description("Filter by outcome: true for successes, false for failures"),
		),
		mcp.WithNumber("since",
			mcp.Description("Only memories created at or after this epoch-millisecond timestamp"),
		),
		mcp.WithNumber("until",
			mcp.Description("Only memories created at or before this epoch-millisecond timestamp"),
		),
		mcp.WithArray("tags",
			mcp.Description("Only memories carrying all of these tags"),
		),
		mcp.WithString("depth",
			mcp.Description("How much of each memory to return (default summary)"),
			mcp.Enum(memory.DepthValues()...),
		),
		mcp.WithBoolean("include_links",
			mcp.Description("Include causal links (full and complete depth only)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum memories to return"),
		),
	)
}

// Handle processes the memory_recall tool call.
func (t *RecallTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p := memory.RecallParams{
		MemoryID:     req.GetString("memory_id", ""),
		File:         req.GetString("file", ""),
		Query:        req.GetString("query", ""),
		AgentID:      req.GetString("agent_id", ""),
		TaskType:     req.GetString("task_type", ""),
		Success:      boolArgPtr(req, "success"),
		Since:        int64Arg(req, "since", 0),
		Until:        int64Arg(req, "until", 0),
		Tags:         stringSliceArg(req, "tags"),
		Depth:        req.GetString("depth", ""),
		IncludeLinks: boolArg(req, "include_links", false),
		Limit:        intArg(req, "limit", 0),
	}
	if _, sessionID, ok := t.session.Current(); ok {
		p.SessionID = sessionID
	}

	res, err := t.store.Recall(ctx, p)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("recall failed: %v", err)), nil
	}
	return jsonResult(res), nil
}
