package memtools

import (
	"context"
	"fmt"

	"github.com/HendryAvila/recall/internal/memory"
	"github.com/mark3labs/mcp-go/mcp"
)

// TraceTool handles the memory_trace MCP tool.
type TraceTool struct {
	store *memory.Store
}

// NewTraceTool creates a TraceTool.
func NewTraceTool(store *memory.Store) *TraceTool {
	return &TraceTool{store: store}
}

// Definition returns the MCP tool definition for memory_trace.
func (t *TraceTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_trace",
		mcp.WithDescription(
			"Walk the causal graph from a memory. direction=causes answers \"why did this happen\" by "+
				"following caused_by links; effects answers \"what did this lead to\"; both walks in "+
				"each direction. Entries carry their hop distance from the origin.",
		),
		mcp.WithString("memory_id",
			mcp.Required(),
			mcp.Description("Memory to trace from"),
		),
		mcp.WithString("direction",
			mcp.Description("Walk direction (default causes)"),
			mcp.Enum("causes", "effects", "both"),
		),
		mcp.WithNumber("max_depth",
			mcp.Description("Maximum hops from the origin (default 3)"),
		),
		mcp.WithString("depth",
			mcp.Description("Projection depth for chain entries (default summary)"),
			mcp.Enum(memory.DepthValues()...),
		),
	)
}

// Handle processes the memory_trace tool call.
func (t *TraceTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("memory_id", "")
	if id == "" {
		return mcp.NewToolResultError("'memory_id' is required"), nil
	}

	res, err := t.store.Trace(memory.TraceParams{
		MemoryID:  id,
		Direction: req.GetString("direction", ""),
		MaxDepth:  intArg(req, "max_depth", 0),
		Depth:     req.GetString("depth", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("trace failed: %v", err)), nil
	}
	return jsonResult(res), nil
}
