// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it resolves configuration from the
// environment, creates the memory store and trigger engine, and
// injects them into the tool handlers. No business logic lives here —
// only wiring.
package server

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/HendryAvila/recall/internal/memory"
	"github.com/HendryAvila/recall/internal/memtools"
	"github.com/mark3labs/mcp-go/server"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates and configures the MCP server with all memory tools
// registered. This is the single place where all dependencies are
// resolved.
//
// The returned cleanup function closes the memory store's database
// connection and must be called on shutdown (typically via defer).
func New() (*server.MCPServer, func(), error) {
	cfg := configFromEnv()

	// Without an OPENAI_API_KEY the provider starts disabled and
	// recall degrades to the non-semantic strategies. That is a
	// supported mode, not an error.
	embedder := memory.NewEmbeddingProvider(memory.EmbeddingConfig{
		APIKey:  os.Getenv("OPENAI_API_KEY"),
		BaseURL: os.Getenv("RECALL_EMBEDDING_BASE_URL"),
		Model:   os.Getenv("RECALL_EMBEDDING_MODEL"),
		Dim:     cfg.EmbeddingDim,
	})
	if !embedder.Enabled() {
		log.Printf("semantic recall disabled: no OPENAI_API_KEY set")
	}

	store, err := memory.New(cfg, embedder)
	if err != nil {
		return nil, func() {}, fmt.Errorf("opening memory store: %w", err)
	}
	cleanup := func() {
		if err := store.Close(); err != nil {
			log.Printf("WARNING: memory store close: %v", err)
		}
	}

	s := server.NewMCPServer(
		"recall",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	registerTools(s, store)

	return s, cleanup, nil
}

// configFromEnv builds the store configuration from RECALL_* variables,
// falling back to defaults.
func configFromEnv() memory.Config {
	cfg := memory.DefaultConfig()
	if dir := os.Getenv("RECALL_DATA_DIR"); dir != "" {
		cfg.DataDir = dir
	}
	if project := os.Getenv("RECALL_PROJECT"); project != "" {
		cfg.ProjectID = project
	}
	if raw := os.Getenv("RECALL_EMBEDDING_DIM"); raw != "" {
		if dim, err := strconv.Atoi(raw); err == nil && dim > 0 {
			cfg.EmbeddingDim = dim
		} else {
			log.Printf("WARNING: ignoring invalid RECALL_EMBEDDING_DIM=%q", raw)
		}
	}
	return cfg
}

// registerTools registers all 19 memory MCP tools with the server.
func registerTools(s *server.MCPServer, store *memory.Store) {
	session := memtools.NewSessionContext()

	// --- Agent & session lifecycle ---
	register := memtools.NewAgentRegisterTool(store, session)
	s.AddTool(register.Definition(), register.Handle)

	resume := memtools.NewAgentResumeTool(store, session)
	s.AddTool(resume.Definition(), resume.Handle)

	sessionEnd := memtools.NewSessionEndTool(store, session)
	s.AddTool(sessionEnd.Definition(), sessionEnd.Handle)

	// --- Memory CRUD & linking ---
	memStore := memtools.NewMemoryStoreTool(store, session)
	s.AddTool(memStore.Definition(), memStore.Handle)

	memUpdate := memtools.NewMemoryUpdateTool(store)
	s.AddTool(memUpdate.Definition(), memUpdate.Handle)

	memDelete := memtools.NewMemoryDeleteTool(store)
	s.AddTool(memDelete.Definition(), memDelete.Handle)

	memLink := memtools.NewMemoryLinkTool(store)
	s.AddTool(memLink.Definition(), memLink.Handle)

	// --- Retrieval ---
	recall := memtools.NewRecallTool(store, session)
	s.AddTool(recall.Definition(), recall.Handle)

	trace := memtools.NewTraceTool(store)
	s.AddTool(trace.Definition(), trace.Handle)

	// --- Chapters ---
	chapterCreate := memtools.NewChapterCreateTool(store)
	s.AddTool(chapterCreate.Definition(), chapterCreate.Handle)

	chapterList := memtools.NewChapterListTool(store)
	s.AddTool(chapterList.Definition(), chapterList.Handle)

	chapterDelete := memtools.NewChapterDeleteTool(store)
	s.AddTool(chapterDelete.Definition(), chapterDelete.Handle)

	// --- Wisdom ---
	wisdomSynthesize := memtools.NewWisdomSynthesizeTool(store)
	s.AddTool(wisdomSynthesize.Definition(), wisdomSynthesize.Handle)

	wisdomList := memtools.NewWisdomListTool(store)
	s.AddTool(wisdomList.Definition(), wisdomList.Handle)

	wisdomDelete := memtools.NewWisdomDeleteTool(store)
	s.AddTool(wisdomDelete.Definition(), wisdomDelete.Handle)

	// --- Proactive triggers ---
	engine := memory.NewTriggerEngine(store, memory.DefaultTriggerConfig())

	fileTouch := memtools.NewFileTouchTool(engine)
	s.AddTool(fileTouch.Definition(), fileTouch.Handle)

	conflictCheck := memtools.NewConflictCheckTool(engine)
	s.AddTool(conflictCheck.Definition(), conflictCheck.Handle)

	// --- Statistics & maintenance ---
	stats := memtools.NewStatsTool(store)
	s.AddTool(stats.Definition(), stats.Handle)

	reset := memtools.NewResetTool(store, session)
	s.AddTool(reset.Definition(), reset.Handle)
}

// serverInstructions returns the system instructions that tell the AI
// how to use Recall effectively.
func serverInstructions() string {
	return `You have access to Recall, a long-term memory MCP server for coding agents.

## SESSION LIFECYCLE

1. Call agent_register (or agent_resume with your known id) before anything else.
2. Store a memory with memory_store after each meaningful unit of work.
3. Call session_end with a final outcome when you are done.

## STORING MEMORIES

A memory captures one unit of work in layers:
- intent: what you set out to do (goal is required)
- perception: what you observed (files, patterns, anomalies)
- reasoning: how you chose the approach
- actions: the concrete steps taken
- outcome: how it went (summary is required; record failures honestly, they are the most valuable memories)

Link related memories with memory_link. Use caused_by when one piece of work
directly caused another — memory_trace walks those links to answer "why".

## RETRIEVING MEMORIES

Use memory_recall. Pick ONE entry point per call:
- memory_id for a known memory
- file to find work that touched a file
- query for semantic search
- or structured filters (agent_id, task_type, success, tags, since/until)

Start with depth=summary; drill into single memories with a deeper depth
only when the summary is not enough.

## STAYING OUT OF TROUBLE

Before editing a file, call trigger_file_touch with its path — past work on
that file will surface if there is any. Before repeating something that may
have failed before, call trigger_conflict_check with the path and a short
description of the intended action.

## HOUSEKEEPING

Group finished work into chapters (chapter_create, or auto_detect=true
periodically). Once a few chapters exist, wisdom_synthesize distills them
into project-level insights worth reading at session start.`
}
