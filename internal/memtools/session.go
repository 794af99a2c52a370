package memtools

import (
	"context"
	"fmt"

	"github.com/HendryAvila/recall/internal/memory"
	"github.com/mark3labs/mcp-go/mcp"
)

// AgentRegisterTool handles the agent_register MCP tool.
type AgentRegisterTool struct {
	store   *memory.Store
	session *SessionContext
}

// NewAgentRegisterTool creates an AgentRegisterTool.
func NewAgentRegisterTool(store *memory.Store, session *SessionContext) *AgentRegisterTool {
	return &AgentRegisterTool{store: store, session: session}
}

// Definition returns the MCP tool definition for agent_register.
func (t *AgentRegisterTool) Definition() mcp.Tool {
	return mcp.NewTool("agent_register",
		mcp.WithDescription(
			"Register yourself as an agent and open a working session. Call this FIRST, before storing "+
				"or recalling any memories. Registering an existing id reuses the agent and opens a new session.",
		),
		mcp.WithString("id",
			mcp.Description("Stable agent identifier. Omit to have one assigned."),
		),
		mcp.WithString("type",
			mcp.Description("Agent type: main (default) or subagent"),
			mcp.Enum(memory.AgentMain, memory.AgentSubagent),
		),
		mcp.WithString("parent_id",
			mcp.Description("Parent agent id. Required for subagents."),
		),
		mcp.WithString("initial_intent",
			mcp.Description("What this session sets out to do"),
		),
	)
}

// Handle processes the agent_register tool call.
func (t *AgentRegisterTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agent, sess, err := t.store.RegisterAgent(memory.RegisterAgentParams{
		ID:            req.GetString("id", ""),
		Type:          req.GetString("type", memory.AgentMain),
		ParentID:      req.GetString("parent_id", ""),
		InitialIntent: req.GetString("initial_intent", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to register agent: %v", err)), nil
	}

	t.session.Set(agent.ID, sess.ID)

	return jsonResult(map[string]any{
		"agent":   agent,
		"session": sess,
	}), nil
}

// ─── AgentResumeTool ────────────────────────────────────────────────────────

// AgentResumeTool handles the agent_resume MCP tool.
type AgentResumeTool struct {
	store   *memory.Store
	session *SessionContext
}

// NewAgentResumeTool creates an AgentResumeTool.
func NewAgentResumeTool(store *memory.Store, session *SessionContext) *AgentResumeTool {
	return &AgentResumeTool{store: store, session: session}
}

// Definition returns the MCP tool definition for agent_resume.
func (t *AgentResumeTool) Definition() mcp.Tool {
	return mcp.NewTool("agent_resume",
		mcp.WithDescription(
			"Resume work as a previously registered agent: opens a new session and returns the agent's "+
				"accumulated stats. Fails for unknown agents — use agent_register for first contact.",
		),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Agent identifier to resume"),
		),
		mcp.WithString("initial_intent",
			mcp.Description("What this session sets out to do"),
		),
	)
}

// Handle processes the agent_resume tool call.
func (t *AgentResumeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}

	agent, sess, err := t.store.ResumeAgent(id, req.GetString("initial_intent", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to resume agent: %v", err)), nil
	}

	t.session.Set(agent.ID, sess.ID)

	return jsonResult(map[string]any{
		"agent":   agent,
		"session": sess,
	}), nil
}

// ─── SessionEndTool ─────────────────────────────────────────────────────────

// SessionEndTool handles the session_end MCP tool.
type SessionEndTool struct {
	store   *memory.Store
	session *SessionContext
}

// NewSessionEndTool creates a SessionEndTool.
func NewSessionEndTool(store *memory.Store, session *SessionContext) *SessionEndTool {
	return &SessionEndTool{store: store, session: session}
}

// Definition returns the MCP tool definition for session_end.
func (t *SessionEndTool) Definition() mcp.Tool {
	return mcp.NewTool("session_end",
		mcp.WithDescription(
			"Close the current working session with an optional outcome summary. "+
				"Ending an already-closed session is a no-op.",
		),
		mcp.WithString("session_id",
			mcp.Description("Session to close (default: the current one)"),
		),
		mcp.WithString("final_outcome",
			mcp.Description("Summary of what the session accomplished"),
		),
	)
}

// Handle processes the session_end tool call.
func (t *SessionEndTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessID := req.GetString("session_id", "")
	if sessID == "" {
		_, current, ok := t.session.Current()
		if !ok {
			return mcp.NewToolResultError("no active session; pass 'session_id' or call agent_register first"), nil
		}
		sessID = current
	}

	sess, err := t.store.EndSession(sessID, req.GetString("final_outcome", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to end session: %v", err)), nil
	}

	// Only forget the adapter context when it was this session.
	if _, current, ok := t.session.Current(); ok && current == sessID {
		t.session.Clear()
	}

	return jsonResult(sess), nil
}
