// Package memory implements the persistent memory engine for Recall.
//
// It uses SQLite to store atomic records of agent work (memories with
// intent, perception, reasoning, actions, and outcome layers), the
// causal links between them, and the two synthesis tiers built on top
// of them (chapters and wisdom). One store owns one project's data for
// the lifetime of the process; every query is scoped by project_id.
package memory

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// Sentinel errors for the conditions callers branch on.
var (
	// ErrNotFound reports a referenced agent, memory, chapter, or
	// wisdom row that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPrecondition reports an operation whose inputs resolve to
	// something the engine cannot act on (missing parent agent, too
	// few chapters, zero resolvable memories, no active session).
	ErrPrecondition = errors.New("precondition failed")
)

// ─── Config ──────────────────────────────────────────────────────────────────

// Config holds memory store configuration.
type Config struct {
	DataDir          string
	ProjectID        string
	EmbeddingDim     int
	MinClusterSize   int // auto-detect chapter minimum member count
	MinChapters      int // wisdom synthesis minimum chapter count
	MaxRecallResults int
}

// DefaultConfig returns the default configuration for the memory store.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DataDir:          filepath.Join(home, ".recall"),
		ProjectID:        "default",
		EmbeddingDim:     1536,
		MinClusterSize:   3,
		MinChapters:      2,
		MaxRecallResults: 20,
	}
}

// ─── Store ───────────────────────────────────────────────────────────────────

// Store is the persistent memory engine backed by SQLite.
type Store struct {
	db       *sql.DB
	cfg      Config
	embedder *EmbeddingProvider
}

// New creates a Store with the given configuration and optional
// embedding provider (nil disables the semantic retrieval strategy).
// It creates the data directory if needed, opens SQLite with WAL mode,
// and runs migrations. The database file is named after the project so
// one directory can hold several project stores.
func New(cfg Config, embedder *EmbeddingProvider) (*Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("memory: create data dir: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, cfg.ProjectID+".db")
	db, err := openDB("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("memory: open database: %w", err)
	}

	// SQLite performance pragmas
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("memory: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, cfg: cfg, embedder: embedder}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("memory: migration: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Config returns the store configuration.
func (s *Store) Config() Config {
	return s.cfg
}

// ─── Migrations ──────────────────────────────────────────────────────────────

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS agents (
			id             TEXT PRIMARY KEY,
			project_id     TEXT    NOT NULL,
			type           TEXT    NOT NULL DEFAULT 'main',
			parent_id      TEXT,
			memory_count   INTEGER NOT NULL DEFAULT 0,
			success_count  INTEGER NOT NULL DEFAULT 0,
			failure_count  INTEGER NOT NULL DEFAULT 0,
			session_count  INTEGER NOT NULL DEFAULT 0,
			last_active_at INTEGER NOT NULL,
			created_at     INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS sessions (
			id             TEXT PRIMARY KEY,
			agent_id       TEXT    NOT NULL,
			project_id     TEXT    NOT NULL,
			started_at     INTEGER NOT NULL,
			ended_at       INTEGER,
			memory_count   INTEGER NOT NULL DEFAULT 0,
			query_count    INTEGER NOT NULL DEFAULT 0,
			initial_intent TEXT,
			final_outcome  TEXT,
			FOREIGN KEY (agent_id) REFERENCES agents(id)
		);

		CREATE TABLE IF NOT EXISTS memories (
			id              TEXT PRIMARY KEY,
			agent_id        TEXT    NOT NULL,
			project_id      TEXT    NOT NULL,
			session_id      TEXT    NOT NULL,
			created_at      INTEGER NOT NULL,
			intent_goal     TEXT    NOT NULL,
			intent_type     TEXT    NOT NULL,
			outcome_success INTEGER NOT NULL,
			outcome_summary TEXT    NOT NULL,
			intent_json     TEXT    NOT NULL,
			perception_json TEXT,
			reasoning_json  TEXT,
			actions_json    TEXT,
			outcome_json    TEXT    NOT NULL,
			tags_json       TEXT,
			importance      REAL    NOT NULL DEFAULT 0.5,
			access_count    INTEGER NOT NULL DEFAULT 0,
			last_accessed   INTEGER,
			embedding       BLOB
		);

		CREATE INDEX IF NOT EXISTS idx_mem_project  ON memories(project_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_mem_agent    ON memories(agent_id);
		CREATE INDEX IF NOT EXISTS idx_mem_type     ON memories(intent_type);
		CREATE INDEX IF NOT EXISTS idx_mem_success  ON memories(outcome_success);

		CREATE TABLE IF NOT EXISTS memory_files (
			memory_id TEXT NOT NULL,
			file_path TEXT NOT NULL,
			operation TEXT,
			PRIMARY KEY (memory_id, file_path),
			FOREIGN KEY (memory_id) REFERENCES memories(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_files_path ON memory_files(file_path);

		CREATE TABLE IF NOT EXISTS memory_links (
			source_id  TEXT    NOT NULL,
			target_id  TEXT    NOT NULL,
			link_type  TEXT    NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (source_id, target_id, link_type),
			FOREIGN KEY (source_id) REFERENCES memories(id) ON DELETE CASCADE,
			FOREIGN KEY (target_id) REFERENCES memories(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_links_target ON memory_links(target_id);

		CREATE TABLE IF NOT EXISTS chapters (
			id             TEXT PRIMARY KEY,
			project_id     TEXT    NOT NULL,
			title          TEXT    NOT NULL,
			summary        TEXT    NOT NULL,
			learnings_json TEXT,
			tags_json      TEXT,
			topics_json    TEXT,
			start_ts       INTEGER NOT NULL,
			end_ts         INTEGER NOT NULL,
			origin         TEXT    NOT NULL DEFAULT 'manual',
			created_at     INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_chapters_project ON chapters(project_id, created_at DESC);

		CREATE TABLE IF NOT EXISTS chapter_memories (
			chapter_id TEXT    NOT NULL,
			memory_id  TEXT    NOT NULL,
			position   INTEGER NOT NULL,
			PRIMARY KEY (chapter_id, memory_id),
			FOREIGN KEY (chapter_id) REFERENCES chapters(id) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS wisdom (
			id                  TEXT PRIMARY KEY,
			project_id          TEXT    NOT NULL,
			summary             TEXT    NOT NULL,
			insights_json       TEXT,
			patterns_json       TEXT,
			best_practices_json TEXT,
			tags_json           TEXT,
			start_ts            INTEGER NOT NULL,
			end_ts              INTEGER NOT NULL,
			created_at          INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS wisdom_chapters (
			wisdom_id  TEXT NOT NULL,
			chapter_id TEXT NOT NULL,
			PRIMARY KEY (wisdom_id, chapter_id),
			FOREIGN KEY (wisdom_id) REFERENCES wisdom(id) ON DELETE CASCADE
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// ─── Reset ───────────────────────────────────────────────────────────────────

// Reset wipes every relation for the current project while preserving
// the schema. All rows are removed in a single transaction. The caller
// (the tool adapter) is responsible for requiring an explicit
// confirmation token before invoking this.
func (s *Store) Reset() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("memory: reset: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	p := s.cfg.ProjectID
	stmts := []string{
		`DELETE FROM wisdom_chapters WHERE wisdom_id IN (SELECT id FROM wisdom WHERE project_id = ?)`,
		`DELETE FROM wisdom WHERE project_id = ?`,
		`DELETE FROM chapter_memories WHERE chapter_id IN (SELECT id FROM chapters WHERE project_id = ?)`,
		`DELETE FROM chapters WHERE project_id = ?`,
		`DELETE FROM memory_links WHERE source_id IN (SELECT id FROM memories WHERE project_id = ?)`,
		`DELETE FROM memory_files WHERE memory_id IN (SELECT id FROM memories WHERE project_id = ?)`,
		`DELETE FROM memories WHERE project_id = ?`,
		`DELETE FROM sessions WHERE project_id = ?`,
		`DELETE FROM agents WHERE project_id = ?`,
	}
	for _, q := range stmts {
		if _, err := tx.Exec(q, p); err != nil {
			return fmt.Errorf("memory: reset: %w", err)
		}
	}

	return tx.Commit()
}

// ─── Stats ───────────────────────────────────────────────────────────────────

// Stats holds aggregate counts for the current project.
type Stats struct {
	Agents   int `json:"agents"`
	Sessions int `json:"sessions"`
	Memories int `json:"memories"`
	Links    int `json:"links"`
	Chapters int `json:"chapters"`
	Wisdom   int `json:"wisdom"`
}

// Stats returns aggregate counts for the current project.
func (s *Store) Stats() (*Stats, error) {
	p := s.cfg.ProjectID
	stats := &Stats{}

	_ = s.db.QueryRow("SELECT COUNT(*) FROM agents WHERE project_id = ?", p).Scan(&stats.Agents)
	_ = s.db.QueryRow("SELECT COUNT(*) FROM sessions WHERE project_id = ?", p).Scan(&stats.Sessions)
	_ = s.db.QueryRow("SELECT COUNT(*) FROM memories WHERE project_id = ?", p).Scan(&stats.Memories)
	_ = s.db.QueryRow(
		"SELECT COUNT(*) FROM memory_links WHERE source_id IN (SELECT id FROM memories WHERE project_id = ?)", p,
	).Scan(&stats.Links)
	_ = s.db.QueryRow("SELECT COUNT(*) FROM chapters WHERE project_id = ?", p).Scan(&stats.Chapters)
	_ = s.db.QueryRow("SELECT COUNT(*) FROM wisdom WHERE project_id = ?", p).Scan(&stats.Wisdom)

	return stats, nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// nowMillis returns the current time as epoch milliseconds, the
// timestamp unit for every persisted row.
func nowMillis() int64 {
	return time.Now().UnixMilli()
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func derefInt64(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

// marshalJSON serializes v to a nullable TEXT column value. Nil
// pointers and empty slices become NULL rather than "null" or "[]".
func marshalJSON(v any) (*string, error) {
	switch t := v.(type) {
	case *Perception:
		if t == nil {
			return nil, nil
		}
	case *Reasoning:
		if t == nil {
			return nil, nil
		}
	case []Action:
		if len(t) == 0 {
			return nil, nil
		}
	case []string:
		if len(t) == 0 {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	str := string(b)
	return &str, nil
}

// unmarshalJSON deserializes a nullable TEXT column into out. NULL
// leaves out untouched.
func unmarshalJSON(raw *string, out any) error {
	if raw == nil || *raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(*raw), out)
}

// Truncate shortens a string to max length with ellipsis.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// dedupeStrings returns the input with duplicates removed, preserving
// first-occurrence order.
func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, v := range in {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// rankByFrequency counts occurrences and returns distinct values
// ordered by descending count; ties keep first-occurrence order.
func rankByFrequency(in []string) []string {
	counts := make(map[string]int, len(in))
	var order []string
	for _, v := range in {
		if v == "" {
			continue
		}
		if counts[v] == 0 {
			order = append(order, v)
		}
		counts[v]++
	}
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && counts[order[j]] > counts[order[j-1]]; j-- {
			order[j], order[j-1] = order[j-1], order[j]
		}
	}
	return order
}

// isUniqueViolation checks if an error is a SQLite UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
