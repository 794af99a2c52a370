package memtools

import (
	"context"
	"fmt"

	"github.com/HendryAvila/recall/internal/memory"
	"github.com/mark3labs/mcp-go/mcp"
)

// StatsTool handles the memory_stats MCP tool.
type StatsTool struct {
	store *memory.Store
}

// NewStatsTool creates a StatsTool.
func NewStatsTool(store *memory.Store) *StatsTool {
	return &StatsTool{store: store}
}

// Definition returns the MCP tool definition for memory_stats.
func (t *StatsTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_stats",
		mcp.WithDescription(
			"Show aggregate counts for the current project: agents, sessions, memories, links, chapters, and wisdom.",
		),
	)
}

// Handle processes the memory_stats tool call.
func (t *StatsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := t.store.Stats()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to gather stats: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"project": t.store.Config().ProjectID,
		"stats":   stats,
	}), nil
}

// ─── ResetTool ──────────────────────────────────────────────────────────────

// resetConfirmToken must be passed verbatim before memory_reset wipes
// anything.
const resetConfirmToken = "CONFIRM_RESET"

// ResetTool handles the memory_reset MCP tool.
type ResetTool struct {
	store   *memory.Store
	session *SessionContext
}

// NewResetTool creates a ResetTool.
func NewResetTool(store *memory.Store, session *SessionContext) *ResetTool {
	return &ResetTool{store: store, session: session}
}

// Definition returns the MCP tool definition for memory_reset.
func (t *ResetTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_reset",
		mcp.WithDescription(
			"Erase ALL memory data for the current project: agents, sessions, memories, links, chapters, "+
				"and wisdom. Irreversible. Requires confirm=\""+resetConfirmToken+"\".",
		),
		mcp.WithString("confirm",
			mcp.Required(),
			mcp.Description("Must be exactly "+resetConfirmToken),
		),
	)
}

// Handle processes the memory_reset tool call.
func (t *ResetTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if req.GetString("confirm", "") != resetConfirmToken {
		return mcp.NewToolResultError(fmt.Sprintf("refusing to reset: pass confirm=%q to erase all project data", resetConfirmToken)), nil
	}

	if err := t.store.Reset(); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reset failed: %v", err)), nil
	}
	t.session.Clear()

	return mcp.NewToolResultText(fmt.Sprintf("All memory data for project %q has been erased.", t.store.Config().ProjectID)), nil
}
