// Package memtools provides the MCP tool handlers for the Recall
// memory engine.
//
// Each tool handler follows the same pattern:
// - A struct with dependencies (memory.Store, SessionContext) injected via constructor
// - Definition() returns the mcp.Tool schema
// - Handle() processes the request and returns a result
//
// Handlers validate input and translate engine errors into tool error
// results; all persistence and retrieval semantics live in
// internal/memory.
package memtools

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
)

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// int64Arg extracts an epoch-millisecond argument.
func int64Arg(req mcp.CallToolRequest, key string, defaultVal int64) int64 {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int64(v)
}

// boolArg extracts a boolean argument from a tool request.
func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

// boolArgPtr extracts an optional boolean, nil when absent. Used for
// tri-state filters like success.
func boolArgPtr(req mcp.CallToolRequest, key string) *bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return nil
	}
	return &v
}

// stringSliceArg extracts a string array argument. Missing keys and
// non-string entries yield nil/skip.
func stringSliceArg(req mcp.CallToolRequest, key string) []string {
	raw, ok := req.GetArguments()[key].([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

// decodeArg decodes a structured argument (object or array) into out
// via a JSON round trip. Returns false when the key is absent.
func decodeArg(req mcp.CallToolRequest, key string, out any) (bool, error) {
	raw, ok := req.GetArguments()[key]
	if !ok || raw == nil {
		return false, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return false, fmt.Errorf("encode %q: %w", key, err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return false, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}

// jsonResult marshals v as an indented JSON tool result.
func jsonResult(v any) *mcp.CallToolResult {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err))
	}
	return mcp.NewToolResultText(string(b))
}

// ─── SessionContext ─────────────────────────────────────────────────────────

// SessionContext is the adapter-level record of which agent and
// session the connected client is acting as. agent_register and
// agent_resume set it, session_end clears it, and mutating tools
// consult it when no explicit ids are supplied. One context per server
// process; an MCP stdio server serves one client.
type SessionContext struct {
	mu        sync.Mutex
	agentID   string
	sessionID string
}

// NewSessionContext creates an empty session context.
func NewSessionContext() *SessionContext {
	return &SessionContext{}
}

// Set records the active agent and session.
func (c *SessionContext) Set(agentID, sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.agentID = agentID
	c.sessionID = sessionID
}

// Clear forgets the active agent and session.
func (c *SessionContext) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.agentID = ""
	c.sessionID = ""
}

// Current returns the active agent and session ids; ok is false when
// no session has been opened.
func (c *SessionContext) Current() (agentID, sessionID string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.agentID, c.sessionID, c.agentID != ""
}
