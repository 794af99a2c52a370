package memtools

import (
	"context"
	"fmt"

	"github.com/HendryAvila/recall/internal/memory"
	"github.com/mark3labs/mcp-go/mcp"
)

// MemoryStoreTool handles the memory_store MCP tool.
type MemoryStoreTool struct {
	store   *memory.Store
	session *SessionContext
}

// NewMemoryStoreTool creates a MemoryStoreTool.
func NewMemoryStoreTool(store *memory.Store, session *SessionContext) *MemoryStoreTool {
	return &MemoryStoreTool{store: store, session: session}
}

// Definition returns the MCP tool definition for memory_store.
func (t *MemoryStoreTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_store",
		mcp.WithDescription(
			"Store a memory of completed work: what you set out to do (intent), what you saw (perception), "+
				"how you decided (reasoning), what you did (actions), and how it went (outcome). "+
				"Intent.goal and outcome.summary are required; the other layers are optional. "+
				"Agent and session default to the current registration.",
		),
		mcp.WithObject("intent",
			mcp.Required(),
			mcp.Description(`What the work set out to do: {"goal": "...", "task_type": "...", "context": "...", "constraints": [...]}`),
		),
		mcp.WithObject("perception",
			mcp.Description(`What was observed: {"observations": [...], "relevant_files": [...], "patterns": [...], "anomalies": [...]}`),
		),
		mcp.WithObject("reasoning",
			mcp.Description(`How the approach was chosen: {"approach": "...", "rationale": "...", "alternatives": [...], "assumptions": [...], "risks": [...]}`),
		),
		mcp.WithArray("actions",
			mcp.Description(`Steps taken: [{"type": "edit|create|delete|run|test", "file": "...", "description": "..."}]`),
		),
		mcp.WithObject("outcome",
			mcp.Required(),
			mcp.Description(`How it went: {"success": true, "summary": "...", "learnings": [...], "failure_reason": "...", "failure_category": "...", "verification": "..."}`),
		),
		mcp.WithArray("tags",
			mcp.Description("Free-form tags for later filtering"),
		),
		mcp.WithNumber("importance",
			mcp.Description("Importance from 0 to 1 (default 0.5)"),
		),
		mcp.WithString("agent_id",
			mcp.Description("Owning agent (default: current)"),
		),
		mcp.WithString("session_id",
			mcp.Description("Owning session (default: current)"),
		),
	)
}

// Handle processes the memory_store tool call.
func (t *MemoryStoreTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p := memory.CreateMemoryParams{
		AgentID:   req.GetString("agent_id", ""),
		SessionID: req.GetString("session_id", ""),
		Tags:      stringSliceArg(req, "tags"),
	}

	if p.AgentID == "" || p.SessionID == "" {
		agentID, sessionID, ok := t.session.Current()
		if !ok {
			return mcp.NewToolResultError("no active session; call agent_register first or pass agent_id and session_id"), nil
		}
		if p.AgentID == "" {
			p.AgentID = agentID
		}
		if p.SessionID == "" {
			p.SessionID = sessionID
		}
	}

	if _, err := decodeArg(req, "intent", &p.Intent); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := decodeArg(req, "outcome", &p.Outcome); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := decodeArg(req, "perception", &p.Perception); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := decodeArg(req, "reasoning", &p.Reasoning); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := decodeArg(req, "actions", &p.Actions); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if v, ok := req.GetArguments()["importance"].(float64); ok {
		p.Importance = &v
	}

	if p.Intent.Goal == "" {
		return mcp.NewToolResultError("'intent.goal' is required"), nil
	}
	if p.Outcome.Summary == "" {
		return mcp.NewToolResultError("'outcome.summary' is required"), nil
	}

	m, err := t.store.CreateMemory(ctx, p)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to store memory: %v", err)), nil
	}
	return jsonResult(m), nil
}

// ─── MemoryUpdateTool ───────────────────────────────────────────────────────

// MemoryUpdateTool handles the memory_update MCP tool.
type MemoryUpdateTool struct {
	store *memory.Store
}

// NewMemoryUpdateTool creates a MemoryUpdateTool.
func NewMemoryUpdateTool(store *memory.Store) *MemoryUpdateTool {
	return &MemoryUpdateTool{store: store}
}

// Definition returns the MCP tool definition for memory_update.
func (t *MemoryUpdateTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_update",
		mcp.WithDescription(
			"Update an existing memory. Provided layer objects merge field-by-field into the stored "+
				"ones; actions and tags replace their stored arrays when present. Omitted fields are untouched.",
		),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Memory id to update"),
		),
		mcp.WithObject("intent", mcp.Description("Intent fields to merge")),
		mcp.WithObject("perception", mcp.Description("Perception fields to merge")),
		mcp.WithObject("reasoning", mcp.Description("Reasoning fields to merge")),
		mcp.WithArray("actions", mcp.Description("Replacement action list")),
		mcp.WithObject("outcome", mcp.Description("Outcome fields to merge")),
		mcp.WithArray("tags", mcp.Description("Replacement tag list")),
		mcp.WithNumber("importance", mcp.Description("New importance from 0 to 1")),
	)
}

// Handle processes the memory_update tool call.
func (t *MemoryUpdateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}

	var p memory.UpdateMemoryParams
	if _, err := decodeArg(req, "intent", &p.Intent); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := decodeArg(req, "perception", &p.Perception); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := decodeArg(req, "reasoning", &p.Reasoning); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := decodeArg(req, "outcome", &p.Outcome); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := decodeArg(req, "actions", &p.Actions); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if tags := stringSliceArg(req, "tags"); tags != nil {
		p.Tags = tags
	}
	if v, ok := req.GetArguments()["importance"].(float64); ok {
		p.Importance = &v
	}

	m, err := t.store.UpdateMemory(id, p)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to update memory: %v", err)), nil
	}
	return jsonResult(m), nil
}

// ─── MemoryDeleteTool ───────────────────────────────────────────────────────

// MemoryDeleteTool handles the memory_delete MCP tool.
type MemoryDeleteTool struct {
	store *memory.Store
}

// NewMemoryDeleteTool creates a MemoryDeleteTool.
func NewMemoryDeleteTool(store *memory.Store) *MemoryDeleteTool {
	return &MemoryDeleteTool{store: store}
}

// Definition returns the MCP tool definition for memory_delete.
func (t *MemoryDeleteTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_delete",
		mcp.WithDescription(
			"Delete a memory along with its file index entries and causal links. "+
				"Chapters that referenced it keep their synthesized content.",
		),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Memory id to delete"),
		),
	)
}

// Handle processes the memory_delete tool call.
func (t *MemoryDeleteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}

	deleted, err := t.store.DeleteMemory(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to delete memory: %v", err)), nil
	}
	if !deleted {
		return mcp.NewToolResultText(fmt.Sprintf("No memory found with id %s.", id)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Deleted memory %s.", id)), nil
}

// ─── MemoryLinkTool ─────────────────────────────────────────────────────────

// MemoryLinkTool handles the memory_link MCP tool.
type MemoryLinkTool struct {
	store *memory.Store
}

// NewMemoryLinkTool creates a MemoryLinkTool.
func NewMemoryLinkTool(store *memory.Store) *MemoryLinkTool {
	return &MemoryLinkTool{store: store}
}

// Definition returns the MCP tool definition for memory_link.
func (t *MemoryLinkTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_link",
		mcp.WithDescription(
			"Link two memories. caused_by builds the causal graph walked by memory_trace; "+
				"led_to is accepted as convenience shorthand and stored as the inverse caused_by. "+
				"Creating an existing link is a silent no-op.",
		),
		mcp.WithString("source_id",
			mcp.Required(),
			mcp.Description("Source memory id"),
		),
		mcp.WithString("target_id",
			mcp.Required(),
			mcp.Description("Target memory id"),
		),
		mcp.WithString("link_type",
			mcp.Required(),
			mcp.Description("Relationship type"),
			mcp.Enum(memory.LinkCausedBy, memory.LinkLedTo, memory.LinkRelatedTo, memory.LinkSupersede, memory.LinkBlockedBy),
		),
	)
}

// Handle processes the memory_link tool call.
func (t *MemoryLinkTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sourceID := req.GetString("source_id", "")
	targetID := req.GetString("target_id", "")
	linkType := req.GetString("link_type", "")
	if sourceID == "" || targetID == "" || linkType == "" {
		return mcp.NewToolResultError("'source_id', 'target_id' and 'link_type' are required"), nil
	}

	link, err := t.store.CreateLink(sourceID, targetID, linkType)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to link memories: %v", err)), nil
	}
	return jsonResult(link), nil
}
