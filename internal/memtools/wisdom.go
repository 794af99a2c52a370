package memtools

import (
	"context"
	"fmt"

	"github.com/HendryAvila/recall/internal/memory"
	"github.com/mark3labs/mcp-go/mcp"
)

// WisdomSynthesizeTool handles the wisdom_synthesize MCP tool.
type WisdomSynthesizeTool struct {
	store *memory.Store
}

// NewWisdomSynthesizeTool creates a WisdomSynthesizeTool.
func NewWisdomSynthesizeTool(store *memory.Store) *WisdomSynthesizeTool {
	return &WisdomSynthesizeTool{store: store}
}

// Definition returns the MCP tool definition for wisdom_synthesize.
func (t *WisdomSynthesizeTool) Definition() mcp.Tool {
	return mcp.NewTool("wisdom_synthesize",
		mcp.WithDescription(
			"Distill chapters into project-level wisdom: recurring patterns, insights, and best "+
				"practices. Pass chapter_ids explicitly, or omit them to synthesize from chapters "+
				"matching the filters. Needs at least two chapters.",
		),
		mcp.WithArray("chapter_ids",
			mcp.Description("Chapters to synthesize from"),
		),
		mcp.WithNumber("since",
			mcp.Description("Without chapter_ids: only chapters whose span ends at or after this epoch-ms timestamp"),
		),
		mcp.WithArray("tags",
			mcp.Description("Without chapter_ids: only chapters carrying all of these tags"),
		),
	)
}

// Handle processes the wisdom_synthesize tool call.
func (t *WisdomSynthesizeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	w, err := t.store.SynthesizeWisdom(memory.SynthesizeWisdomParams{
		ChapterIDs: stringSliceArg(req, "chapter_ids"),
		Since:      int64Arg(req, "since", 0),
		Tags:       stringSliceArg(req, "tags"),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("wisdom synthesis failed: %v", err)), nil
	}
	return jsonResult(w), nil
}

// ─── WisdomListTool ─────────────────────────────────────────────────────────

// WisdomListTool handles the wisdom_list MCP tool.
type WisdomListTool struct {
	store *memory.Store
}

// NewWisdomListTool creates a WisdomListTool.
func NewWisdomListTool(store *memory.Store) *WisdomListTool {
	return &WisdomListTool{store: store}
}

// Definition returns the MCP tool definition for wisdom_list.
func (t *WisdomListTool) Definition() mcp.Tool {
	return mcp.NewTool("wisdom_list",
		mcp.WithDescription(
			"List synthesized wisdom, most recent first. Pass an id to fetch one entry with its source chapter ids.",
		),
		mcp.WithString("id",
			mcp.Description("Fetch a single wisdom entry by id"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum entries to return (default 20)"),
		),
	)
}

// Handle processes the wisdom_list tool call.
func (t *WisdomListTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if id := req.GetString("id", ""); id != "" {
		w, err := t.store.GetWisdom(id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to get wisdom: %v", err)), nil
		}
		chapterIDs, err := t.store.WisdomChapterIDs(id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to list source chapters: %v", err)), nil
		}
		return jsonResult(map[string]any{
			"wisdom":      w,
			"chapter_ids": chapterIDs,
		}), nil
	}

	entries, err := t.store.ListWisdom(intArg(req, "limit", 0))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list wisdom: %v", err)), nil
	}
	return jsonResult(entries), nil
}

// ─── WisdomDeleteTool ───────────────────────────────────────────────────────

// WisdomDeleteTool handles the wisdom_delete MCP tool.
type WisdomDeleteTool struct {
	store *memory.Store
}

// NewWisdomDeleteTool creates a WisdomDeleteTool.
func NewWisdomDeleteTool(store *memory.Store) *WisdomDeleteTool {
	return &WisdomDeleteTool{store: store}
}

// Definition returns the MCP tool definition for wisdom_delete.
func (t *WisdomDeleteTool) Definition() mcp.Tool {
	return mcp.NewTool("wisdom_delete",
		mcp.WithDescription(
			"Delete a wisdom entry and its provenance records. Source chapters are kept.",
		),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Wisdom id to delete"),
		),
	)
}

// Handle processes the wisdom_delete tool call.
func (t *WisdomDeleteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}

	deleted, err := t.store.DeleteWisdom(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to delete wisdom: %v", err)), nil
	}
	if !deleted {
		return mcp.NewToolResultText(fmt.Sprintf("No wisdom found with id %s.", id)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Deleted wisdom %s. Its chapters are untouched.", id)), nil
}
