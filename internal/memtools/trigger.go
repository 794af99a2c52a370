package memtools

import (
	"context"
	"fmt"

	"github.com/HendryAvila/recall/internal/memory"
	"github.com/mark3labs/mcp-go/mcp"
)

// FileTouchTool handles the trigger_file_touch MCP tool.
type FileTouchTool struct {
	engine *memory.TriggerEngine
}

// NewFileTouchTool creates a FileTouchTool.
func NewFileTouchTool(engine *memory.TriggerEngine) *FileTouchTool {
	return &FileTouchTool{engine: engine}
}

// Definition returns the MCP tool definition for trigger_file_touch.
func (t *FileTouchTool) Definition() mcp.Tool {
	return mcp.NewTool("trigger_file_touch",
		mcp.WithDescription(
			"Report that you are about to work on a file. Returns a context notification when past "+
				"memories involve it, or nothing when there is nothing worth surfacing. Repeated touches "+
				"of the same file are rate limited, so call this freely.",
		),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("File path being touched"),
		),
	)
}

// Handle processes the trigger_file_touch tool call.
func (t *FileTouchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", "")
	if path == "" {
		return mcp.NewToolResultError("'path' is required"), nil
	}

	n, err := t.engine.FileTouch(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("file touch check failed: %v", err)), nil
	}
	if n == nil {
		return mcp.NewToolResultText("No relevant memories for this file."), nil
	}
	return jsonResult(n), nil
}

// ─── ConflictCheckTool ──────────────────────────────────────────────────────

// ConflictCheckTool handles the trigger_conflict_check MCP tool.
type ConflictCheckTool struct {
	engine *memory.TriggerEngine
}

// NewConflictCheckTool creates a ConflictCheckTool.
func NewConflictCheckTool(engine *memory.TriggerEngine) *ConflictCheckTool {
	return &ConflictCheckTool{engine: engine}
}

// Definition returns the MCP tool definition for trigger_conflict_check.
func (t *ConflictCheckTool) Definition() mcp.Tool {
	return mcp.NewTool("trigger_conflict_check",
		mcp.WithDescription(
			"Check whether an action you are about to take on a file resembles one that failed before. "+
				"Returns a conflict warning with the past failure's reason, or nothing when no similar "+
				"failure is recorded. Never rate limited; safety checks always run.",
		),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("File path the action targets"),
		),
		mcp.WithString("intended_action",
			mcp.Required(),
			mcp.Description("What you are about to do, in a short sentence"),
		),
	)
}

// Handle processes the trigger_conflict_check tool call.
func (t *ConflictCheckTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", "")
	action := req.GetString("intended_action", "")
	if path == "" || action == "" {
		return mcp.NewToolResultError("'path' and 'intended_action' are required"), nil
	}

	n, err := t.engine.ConflictCheck(path, action)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("conflict check failed: %v", err)), nil
	}
	if n == nil {
		return mcp.NewToolResultText("No similar past failures recorded."), nil
	}
	return jsonResult(n), nil
}
