// Recall: Long-Term Memory MCP Server for coding agents
//
// A universal MCP server that gives any AI coding tool (Claude Code,
// OpenCode, Gemini CLI, Codex, Cursor, VS Code Copilot) a persistent
// memory of past work: what was attempted, why, and how it turned out.
//
// Usage:
//
//	recall serve    # Start MCP server (stdio transport)
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	recallserver "github.com/HendryAvila/recall/internal/server"
	"github.com/mark3labs/mcp-go/server"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "--help", "-h", "help":
		printUsage()
		os.Exit(0)
	case "--version", "-v", "version":
		fmt.Printf("recall v%s\n", recallserver.Version)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func run() error {
	s, cleanup, err := recallserver.New()
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer cleanup()

	// Run cleanup on interrupt too — ServeStdio returns when stdin
	// closes, but a signal can arrive first.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cleanup()
		os.Exit(0)
	}()

	return server.ServeStdio(s)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Recall v%s — Long-Term Memory MCP Server

Usage:
  recall serve    Start the MCP server (stdio transport)

Configuration (environment):
  RECALL_DATA_DIR             Data directory (default ~/.recall)
  RECALL_PROJECT              Project id, one database per project (default "default")
  OPENAI_API_KEY              Enables semantic recall via embeddings
  RECALL_EMBEDDING_BASE_URL   OpenAI-compatible embeddings endpoint override
  RECALL_EMBEDDING_MODEL      Embedding model (default text-embedding-3-small)
  RECALL_EMBEDDING_DIM        Embedding dimension (default 1536)

  Add to your AI tool's MCP config:

  {
    "mcpServers": {
      "recall": {
        "command": "recall",
        "args": ["serve"]
      }
    }
  }
`, recallserver.Version)
}
