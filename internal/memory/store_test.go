package memory_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/HendryAvila/recall/internal/memory"
)

// newTestStore creates a Store backed by a temp directory for isolation.
// The embedding provider is nil, so semantic recall is disabled.
func newTestStore(t *testing.T) *memory.Store {
	t.Helper()
	return newTestStoreWithEmbedder(t, nil)
}

func newTestStoreWithEmbedder(t *testing.T, embedder *memory.EmbeddingProvider) *memory.Store {
	t.Helper()
	cfg := memory.Config{
		DataDir:          t.TempDir(),
		ProjectID:        "testproj",
		EmbeddingDim:     4,
		MinClusterSize:   3,
		MinChapters:      2,
		MaxRecallResults: 20,
	}
	s, err := memory.New(cfg, embedder)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// registerAgent registers a main agent with a fixed id and returns its
// open session id.
func registerAgent(t *testing.T, s *memory.Store, id string) string {
	t.Helper()
	_, sess, err := s.RegisterAgent(memory.RegisterAgentParams{ID: id})
	if err != nil {
		t.Fatalf("failed to register agent %q: %v", id, err)
	}
	return sess.ID
}

// storeMemory stores a minimal memory and returns it.
func storeMemory(t *testing.T, s *memory.Store, agentID, sessionID string, p memory.CreateMemoryParams) *memory.Memory {
	t.Helper()
	p.AgentID = agentID
	p.SessionID = sessionID
	if p.Intent.Goal == "" {
		p.Intent.Goal = "test goal"
	}
	if p.Intent.TaskType == "" {
		p.Intent.TaskType = "feature"
	}
	if p.Outcome.Summary == "" {
		p.Outcome.Summary = "test summary"
	}
	m, err := s.CreateMemory(context.Background(), p)
	if err != nil {
		t.Fatalf("failed to store memory: %v", err)
	}
	return m
}

// ─── New / Initialization ───────────────────────────────────────────────────

func TestNew_CreatesProjectDBFile(t *testing.T) {
	dir := t.TempDir()
	cfg := memory.Config{
		DataDir:          dir,
		ProjectID:        "alpha",
		MinClusterSize:   3,
		MinChapters:      2,
		MaxRecallResults: 20,
	}
	s, err := memory.New(cfg, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(filepath.Join(dir, "alpha.db")); err != nil {
		t.Errorf("expected alpha.db to exist: %v", err)
	}
}

func TestNew_IdempotentReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := memory.Config{
		DataDir:          dir,
		ProjectID:        "reopen",
		MinClusterSize:   3,
		MinChapters:      2,
		MaxRecallResults: 20,
	}

	// Open, insert, close
	s1, err := memory.New(cfg, nil)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if _, _, err := s1.RegisterAgent(memory.RegisterAgentParams{ID: "agent-1"}); err != nil {
		t.Fatalf("register agent: %v", err)
	}
	s1.Close()

	// Reopen — data should persist
	s2, err := memory.New(cfg, nil)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer s2.Close()

	a, err := s2.GetAgent("agent-1")
	if err != nil {
		t.Fatalf("agent not found after reopen: %v", err)
	}
	if a.Type != memory.AgentMain {
		t.Errorf("Type = %q, want %q", a.Type, memory.AgentMain)
	}
}

func TestNew_ProjectIsolation(t *testing.T) {
	dir := t.TempDir()
	open := func(project string) *memory.Store {
		s, err := memory.New(memory.Config{
			DataDir: dir, ProjectID: project,
			MinClusterSize: 3, MinChapters: 2, MaxRecallResults: 20,
		}, nil)
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	}

	sa := open("proj-a")
	sb := open("proj-b")
	registerAgent(t, sa, "shared-id")

	if _, err := sb.GetAgent("shared-id"); err == nil {
		t.Error("agent from proj-a should not be visible in proj-b")
	}
}

// ─── Agents / Sessions ──────────────────────────────────────────────────────

func TestRegisterAgent_OpensSession(t *testing.T) {
	s := newTestStore(t)

	agent, sess, err := s.RegisterAgent(memory.RegisterAgentParams{
		ID: "a1", InitialIntent: "fix the login flow",
	})
	if err != nil {
		t.Fatalf("RegisterAgent error: %v", err)
	}
	if agent.Type != memory.AgentMain {
		t.Errorf("Type = %q, want %q", agent.Type, memory.AgentMain)
	}
	if agent.SessionCount != 1 {
		t.Errorf("SessionCount = %d, want 1", agent.SessionCount)
	}
	if sess.AgentID != "a1" {
		t.Errorf("session AgentID = %q, want a1", sess.AgentID)
	}
	if sess.InitialIntent != "fix the login flow" {
		t.Errorf("InitialIntent = %q", sess.InitialIntent)
	}
	if sess.EndedAt != 0 {
		t.Errorf("EndedAt = %d, want 0 while open", sess.EndedAt)
	}
}

func TestRegisterAgent_AssignsIDWhenEmpty(t *testing.T) {
	s := newTestStore(t)
	agent, _, err := s.RegisterAgent(memory.RegisterAgentParams{})
	if err != nil {
		t.Fatal(err)
	}
	if agent.ID == "" {
		t.Error("expected generated agent id")
	}
}

func TestRegisterAgent_ReuseExistingID(t *testing.T) {
	s := newTestStore(t)
	registerAgent(t, s, "same")

	// Second register with the same id reuses the agent and opens a
	// fresh session.
	agent, _, err := s.RegisterAgent(memory.RegisterAgentParams{ID: "same"})
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if agent.SessionCount != 2 {
		t.Errorf("SessionCount = %d, want 2", agent.SessionCount)
	}

	agents, err := s.ListAgents()
	if err != nil {
		t.Fatal(err)
	}
	if len(agents) != 1 {
		t.Errorf("agents = %d, want 1", len(agents))
	}
}

func TestRegisterAgent_SubagentRequiresParent(t *testing.T) {
	s := newTestStore(t)

	_, _, err := s.RegisterAgent(memory.RegisterAgentParams{
		ID: "sub", Type: memory.AgentSubagent, ParentID: "ghost",
	})
	if !errors.Is(err, memory.ErrPrecondition) {
		t.Errorf("err = %v, want ErrPrecondition for missing parent", err)
	}

	registerAgent(t, s, "parent")
	agent, _, err := s.RegisterAgent(memory.RegisterAgentParams{
		ID: "sub", Type: memory.AgentSubagent, ParentID: "parent",
	})
	if err != nil {
		t.Fatalf("subagent with real parent: %v", err)
	}
	if agent.ParentID != "parent" {
		t.Errorf("ParentID = %q, want parent", agent.ParentID)
	}
}

func TestResumeAgent_UnknownIsNotFound(t *testing.T) {
	s := newTestStore(t)
	_, _, err := s.ResumeAgent("ghost", "")
	if !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestResumeAgent_OpensNewSession(t *testing.T) {
	s := newTestStore(t)
	first := registerAgent(t, s, "a1")

	agent, sess, err := s.ResumeAgent("a1", "continue refactor")
	if err != nil {
		t.Fatalf("ResumeAgent error: %v", err)
	}
	if sess.ID == first {
		t.Error("resume should open a new session, not reuse the old one")
	}
	if agent.SessionCount != 2 {
		t.Errorf("SessionCount = %d, want 2", agent.SessionCount)
	}
	if sess.InitialIntent != "continue refactor" {
		t.Errorf("InitialIntent = %q", sess.InitialIntent)
	}
}

func TestEndSession(t *testing.T) {
	s := newTestStore(t)
	sessID := registerAgent(t, s, "a1")

	sess, err := s.EndSession(sessID, "shipped the feature")
	if err != nil {
		t.Fatalf("EndSession error: %v", err)
	}
	if sess.EndedAt == 0 {
		t.Error("EndedAt should be set after EndSession")
	}
	if sess.FinalOutcome != "shipped the feature" {
		t.Errorf("FinalOutcome = %q", sess.FinalOutcome)
	}
}

func TestEndSession_AlreadyEndedUntouched(t *testing.T) {
	s := newTestStore(t)
	sessID := registerAgent(t, s, "a1")

	first, err := s.EndSession(sessID, "done")
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.EndSession(sessID, "overwritten?")
	if err != nil {
		t.Fatal(err)
	}
	if second.FinalOutcome != first.FinalOutcome {
		t.Errorf("FinalOutcome changed on second end: %q", second.FinalOutcome)
	}
	if second.EndedAt != first.EndedAt {
		t.Errorf("EndedAt changed on second end")
	}
}

func TestGetSession_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetSession("nonexistent")
	if !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

// ─── Stats / Reset ──────────────────────────────────────────────────────────

func TestStats_Empty(t *testing.T) {
	s := newTestStore(t)
	stats, err := s.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Agents != 0 || stats.Memories != 0 || stats.Chapters != 0 {
		t.Errorf("expected zero stats, got %+v", stats)
	}
}

func TestStats_WithData(t *testing.T) {
	s := newTestStore(t)
	sessID := registerAgent(t, s, "a1")
	m1 := storeMemory(t, s, "a1", sessID, memory.CreateMemoryParams{})
	m2 := storeMemory(t, s, "a1", sessID, memory.CreateMemoryParams{})
	if _, err := s.CreateLink(m1.ID, m2.ID, memory.LinkCausedBy); err != nil {
		t.Fatal(err)
	}

	stats, err := s.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Agents != 1 {
		t.Errorf("Agents = %d, want 1", stats.Agents)
	}
	if stats.Sessions != 1 {
		t.Errorf("Sessions = %d, want 1", stats.Sessions)
	}
	if stats.Memories != 2 {
		t.Errorf("Memories = %d, want 2", stats.Memories)
	}
	if stats.Links != 1 {
		t.Errorf("Links = %d, want 1", stats.Links)
	}
}

func TestReset_WipesProject(t *testing.T) {
	s := newTestStore(t)
	sessID := registerAgent(t, s, "a1")
	storeMemory(t, s, "a1", sessID, memory.CreateMemoryParams{})

	if err := s.Reset(); err != nil {
		t.Fatalf("Reset error: %v", err)
	}

	stats, _ := s.Stats()
	if stats.Agents != 0 || stats.Sessions != 0 || stats.Memories != 0 {
		t.Errorf("expected empty stats after reset, got %+v", stats)
	}

	// Schema survives: the store keeps working after a reset.
	registerAgent(t, s, "a2")
	stats, _ = s.Stats()
	if stats.Agents != 1 {
		t.Errorf("Agents = %d, want 1 after re-register", stats.Agents)
	}
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func TestTruncate(t *testing.T) {
	tests := []struct {
		input string
		max   int
		want  string
	}{
		{"hello", 10, "hello"},
		{"hello world", 5, "hello..."},
		{"abc", 3, "abc"},
		{"abcd", 3, "abc..."},
		{"", 5, ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := memory.Truncate(tt.input, tt.max)
			if got != tt.want {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tt.input, tt.max, got, tt.want)
			}
		})
	}
}
