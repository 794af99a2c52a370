package memtools

import (
	"context"
	"fmt"

	"github.com/HendryAvila/recall/internal/memory"
	"github.com/mark3labs/mcp-go/mcp"
)

// ChapterCreateTool handles the chapter_create MCP tool.
type ChapterCreateTool struct {
	store *memory.Store
}

// NewChapterCreateTool creates a ChapterCreateTool.
func NewChapterCreateTool(store *memory.Store) *ChapterCreateTool {
	return &ChapterCreateTool{store: store}
}

// Definition returns the MCP tool definition for chapter_create.
func (t *ChapterCreateTool) Definition() mcp.Tool {
	return mcp.NewTool("chapter_create",
		mcp.WithDescription(
			"Group memories into a narrative chapter. Pass memory_ids to build one explicitly, or "+
				"auto_detect=true to cluster recent memories by dominant tag. Chapters summarize their "+
				"members and collect their learnings.",
		),
		mcp.WithString("title",
			mcp.Description("Chapter title (default: derived from member goals)"),
		),
		mcp.WithArray("memory_ids",
			mcp.Description("Memories to group. Unresolvable ids are skipped."),
		),
		mcp.WithBoolean("auto_detect",
			mcp.Description("Cluster recent memories into chapters automatically instead"),
		),
		mcp.WithNumber("since",
			mcp.Description("auto_detect: only scan memories created at or after this epoch-ms timestamp"),
		),
		mcp.WithNumber("limit",
			mcp.Description("auto_detect: maximum memories to scan (default 100)"),
		),
		mcp.WithArray("tags",
			mcp.Description("Extra tags for the chapter"),
		),
		mcp.WithArray("topics",
			mcp.Description("Extra topics for the chapter"),
		),
	)
}

// Handle processes the chapter_create tool call.
func (t *ChapterCreateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if boolArg(req, "auto_detect", false) {
		chapters, err := t.store.AutoDetectChapters(memory.AutoDetectParams{
			Since: int64Arg(req, "since", 0),
			Limit: intArg(req, "limit", 0),
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("chapter detection failed: %v", err)), nil
		}
		return jsonResult(map[string]any{
			"detected": len(chapters),
			"chapters": chapters,
		}), nil
	}

	ids := stringSliceArg(req, "memory_ids")
	if len(ids) == 0 {
		return mcp.NewToolResultError("'memory_ids' is required unless auto_detect is true"), nil
	}

	ch, err := t.store.CreateChapter(memory.CreateChapterParams{
		Title:     req.GetString("title", ""),
		MemoryIDs: ids,
		Tags:      stringSliceArg(req, "tags"),
		Topics:    stringSliceArg(req, "topics"),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create chapter: %v", err)), nil
	}
	return jsonResult(ch), nil
}

// ─── ChapterListTool ────────────────────────────────────────────────────────

// ChapterListTool handles the chapter_list MCP tool.
type ChapterListTool struct {
	store *memory.Store
}

// NewChapterListTool creates a ChapterListTool.
func NewChapterListTool(store *memory.Store) *ChapterListTool {
	return &ChapterListTool{store: store}
}

// Definition returns the MCP tool definition for chapter_list.
func (t *ChapterListTool) Definition() mcp.Tool {
	return mcp.NewTool("chapter_list",
		mcp.WithDescription(
			"List chapters, most recent first. Pass an id to fetch one chapter with its member memory ids.",
		),
		mcp.WithString("id",
			mcp.Description("Fetch a single chapter by id"),
		),
		mcp.WithNumber("since",
			mcp.Description("Only chapters whose span ends at or after this epoch-ms timestamp"),
		),
		mcp.WithNumber("until",
			mcp.Description("Only chapters whose span starts at or before this epoch-ms timestamp"),
		),
		mcp.WithArray("tags",
			mcp.Description("Only chapters carrying all of these tags"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum chapters to return (default 50)"),
		),
	)
}

// Handle processes the chapter_list tool call.
func (t *ChapterListTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if id := req.GetString("id", ""); id != "" {
		ch, err := t.store.GetChapter(id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to get chapter: %v", err)), nil
		}
		memberIDs, err := t.store.ChapterMemoryIDs(id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to list chapter members: %v", err)), nil
		}
		return jsonResult(map[string]any{
			"chapter":    ch,
			"memory_ids": memberIDs,
		}), nil
	}

	chapters, err := t.store.ListChapters(memory.ChapterFilter{
		Since: int64Arg(req, "since", 0),
		Until: int64Arg(req, "until", 0),
		Tags:  stringSliceArg(req, "tags"),
		Limit: intArg(req, "limit", 0),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list chapters: %v", err)), nil
	}
	return jsonResult(chapters), nil
}

// ─── ChapterDeleteTool ──────────────────────────────────────────────────────

// ChapterDeleteTool handles the chapter_delete MCP tool.
type ChapterDeleteTool struct {
	store *memory.Store
}

// NewChapterDeleteTool creates a ChapterDeleteTool.
func NewChapterDeleteTool(store *memory.Store) *ChapterDeleteTool {
	return &ChapterDeleteTool{store: store}
}

// Definition returns the MCP tool definition for chapter_delete.
func (t *ChapterDeleteTool) Definition() mcp.Tool {
	return mcp.NewTool("chapter_delete",
		mcp.WithDescription(
			"Delete a chapter and its membership records. Member memories are kept.",
		),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Chapter id to delete"),
		),
	)
}

// Handle processes the chapter_delete tool call.
func (t *ChapterDeleteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}

	deleted, err := t.store.DeleteChapter(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to delete chapter: %v", err)), nil
	}
	if !deleted {
		return mcp.NewToolResultText(fmt.Sprintf("No chapter found with id %s.", id)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Deleted chapter %s. Its memories are untouched.", id)), nil
}
