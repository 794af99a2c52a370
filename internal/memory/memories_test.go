package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/HendryAvila/recall/internal/memory"
)

func TestCreateMemory_Basic(t *testing.T) {
	s := newTestStore(t)
	sessID := registerAgent(t, s, "a1")

	m := storeMemory(t, s, "a1", sessID, memory.CreateMemoryParams{
		Intent: memory.Intent{Goal: "Add rate limiting", TaskType: "feature", Context: "api gateway"},
		Reasoning: &memory.Reasoning{
			Approach:  "token bucket per client",
			Rationale: "smooth bursts without hard cutoffs",
		},
		Actions: []memory.Action{
			{Type: "edit", File: "internal/gateway/limiter.go", Description: "add bucket"},
		},
		Outcome: memory.Outcome{
			Success:   true,
			Summary:   "Rate limiting live behind a flag",
			Learnings: []string{"Always load-test limiter changes before rollout"},
		},
		Tags: []string{"gateway", "gateway", "perf"},
	})

	got, err := s.GetMemory(m.ID)
	if err != nil {
		t.Fatalf("GetMemory error: %v", err)
	}
	if got.Intent.Goal != "Add rate limiting" {
		t.Errorf("Goal = %q", got.Intent.Goal)
	}
	if got.Reasoning == nil || got.Reasoning.Approach != "token bucket per client" {
		t.Errorf("Reasoning not round-tripped: %+v", got.Reasoning)
	}
	if len(got.Actions) != 1 || got.Actions[0].File != "internal/gateway/limiter.go" {
		t.Errorf("Actions = %+v", got.Actions)
	}
	if !got.Outcome.Success {
		t.Error("Success should be true")
	}
	// Duplicate tag deduped at write time
	if len(got.Tags) != 2 {
		t.Errorf("Tags = %v, want 2 deduped", got.Tags)
	}
	if got.Importance != 0.5 {
		t.Errorf("Importance = %v, want default 0.5", got.Importance)
	}
}

func TestCreateMemory_RequiresAgentAndSession(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateMemory(context.Background(), memory.CreateMemoryParams{
		Intent:  memory.Intent{Goal: "orphan", TaskType: "feature"},
		Outcome: memory.Outcome{Summary: "nope"},
	})
	if !errors.Is(err, memory.ErrPrecondition) {
		t.Errorf("err = %v, want ErrPrecondition", err)
	}
}

func TestCreateMemory_ImportanceClamped(t *testing.T) {
	s := newTestStore(t)
	sessID := registerAgent(t, s, "a1")

	high := 3.5
	m := storeMemory(t, s, "a1", sessID, memory.CreateMemoryParams{Importance: &high})
	if m.Importance != 1.0 {
		t.Errorf("Importance = %v, want clamped to 1.0", m.Importance)
	}
}

func TestCreateMemory_DuplicateIDRejected(t *testing.T) {
	s := newTestStore(t)
	sessID := registerAgent(t, s, "a1")

	storeMemory(t, s, "a1", sessID, memory.CreateMemoryParams{ID: "fixed-id"})

	_, err := s.CreateMemory(context.Background(), memory.CreateMemoryParams{
		ID:        "fixed-id",
		AgentID:   "a1",
		SessionID: sessID,
		Intent:    memory.Intent{Goal: "second attempt", TaskType: "feature"},
		Actions:   []memory.Action{{Type: "edit", File: "other.go"}},
		Outcome:   memory.Outcome{Success: true, Summary: "should not land"},
	})
	if !errors.Is(err, memory.ErrPrecondition) {
		t.Fatalf("duplicate id error = %v, want ErrPrecondition", err)
	}

	// The rejected call must leave no trace: counters stay at one
	// memory and the colliding call's file refs are not attached.
	agent, aerr := s.GetAgent("a1")
	if aerr != nil {
		t.Fatal(aerr)
	}
	if agent.MemoryCount != 1 {
		t.Errorf("MemoryCount = %d, want 1", agent.MemoryCount)
	}
	refs, rerr := s.FileRefs("fixed-id")
	if rerr != nil {
		t.Fatal(rerr)
	}
	for _, ref := range refs {
		if ref.Path == "other.go" {
			t.Error("rejected create attached its file refs to the existing memory")
		}
	}
}

func TestCreateMemory_BumpsCounters(t *testing.T) {
	s := newTestStore(t)
	sessID := registerAgent(t, s, "a1")

	storeMemory(t, s, "a1", sessID, memory.CreateMemoryParams{
		Outcome: memory.Outcome{Success: true, Summary: "ok"},
	})
	storeMemory(t, s, "a1", sessID, memory.CreateMemoryParams{
		Outcome: memory.Outcome{Success: false, Summary: "broke", FailureReason: "tests red"},
	})

	agent, err := s.GetAgent("a1")
	if err != nil {
		t.Fatal(err)
	}
	if agent.MemoryCount != 2 {
		t.Errorf("MemoryCount = %d, want 2", agent.MemoryCount)
	}
	if agent.SuccessCount != 1 {
		t.Errorf("SuccessCount = %d, want 1", agent.SuccessCount)
	}
	if agent.FailureCount != 1 {
		t.Errorf("FailureCount = %d, want 1", agent.FailureCount)
	}

	sess, err := s.GetSession(sessID)
	if err != nil {
		t.Fatal(err)
	}
	if sess.MemoryCount != 2 {
		t.Errorf("session MemoryCount = %d, want 2", sess.MemoryCount)
	}
}

func TestCreateMemory_IndexesFiles(t *testing.T) {
	s := newTestStore(t)
	sessID := registerAgent(t, s, "a1")

	m := storeMemory(t, s, "a1", sessID, memory.CreateMemoryParams{
		Perception: &memory.Perception{RelevantFiles: []string{"docs/api.md"}},
		Actions: []memory.Action{
			{Type: "edit", File: "internal/api/handler.go"},
			{Type: "create", File: "internal/api/handler_test.go"},
			{Type: "run", Description: "no file on this one"},
		},
	})

	refs, err := s.FileRefs(m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 3 {
		t.Fatalf("refs = %d, want 3 (two actions + one perception)", len(refs))
	}
	byPath := map[string]string{}
	for _, r := range refs {
		byPath[r.Path] = r.Operation
	}
	if byPath["docs/api.md"] != "reference" {
		t.Errorf("perception file operation = %q, want reference", byPath["docs/api.md"])
	}
	if byPath["internal/api/handler.go"] != "edit" {
		t.Errorf("action file operation = %q, want edit", byPath["internal/api/handler.go"])
	}
}

func TestGetMemory_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetMemory("ghost")
	if !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateMemory_DeepMerge(t *testing.T) {
	s := newTestStore(t)
	sessID := registerAgent(t, s, "a1")

	m := storeMemory(t, s, "a1", sessID, memory.CreateMemoryParams{
		Intent: memory.Intent{Goal: "Original goal", TaskType: "bugfix", Context: "keep me"},
		Outcome: memory.Outcome{
			Success: false, Summary: "First attempt failed", FailureReason: "flaky test",
		},
	})

	succeeded := true
	updated, err := s.UpdateMemory(m.ID, memory.UpdateMemoryParams{
		Intent: &memory.Intent{Goal: "Revised goal"},
		Outcome: &memory.OutcomePatch{
			Success: &succeeded, Summary: "Second attempt passed",
			Learnings: []string{"Pin the clock in flaky tests"},
		},
	})
	if err != nil {
		t.Fatalf("UpdateMemory error: %v", err)
	}

	if updated.Intent.Goal != "Revised goal" {
		t.Errorf("Goal = %q", updated.Intent.Goal)
	}
	// Fields absent from the patch survive the merge.
	if updated.Intent.TaskType != "bugfix" || updated.Intent.Context != "keep me" {
		t.Errorf("merge lost intent fields: %+v", updated.Intent)
	}
	if !updated.Outcome.Success || updated.Outcome.Summary != "Second attempt passed" {
		t.Errorf("Outcome = %+v", updated.Outcome)
	}
	if updated.CreatedAt != m.CreatedAt {
		t.Error("CreatedAt must not change on update")
	}

	// Denormalized columns re-synced: a success filter now matches.
	yes := true
	found, err := s.QueryMemories(memory.MemoryFilter{Success: &yes})
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 || found[0].ID != m.ID {
		t.Errorf("success filter found %d memories", len(found))
	}
}

func TestUpdateMemory_PartialOutcomeKeepsSuccess(t *testing.T) {
	s := newTestStore(t)
	sessID := registerAgent(t, s, "a1")

	m := storeMemory(t, s, "a1", sessID, memory.CreateMemoryParams{
		Outcome: memory.Outcome{Success: true, Summary: "shipped"},
	})

	// A patch that only adds a verification note must not touch the
	// success flag.
	updated, err := s.UpdateMemory(m.ID, memory.UpdateMemoryParams{
		Outcome: &memory.OutcomePatch{Verification: "ran the full suite"},
	})
	if err != nil {
		t.Fatalf("UpdateMemory error: %v", err)
	}
	if !updated.Outcome.Success {
		t.Error("partial outcome patch flipped Success")
	}
	if updated.Outcome.Verification != "ran the full suite" {
		t.Errorf("Verification = %q", updated.Outcome.Verification)
	}

	// The denormalized column stays in sync: no failure filter match.
	no := false
	found, err := s.QueryMemories(memory.MemoryFilter{Success: &no})
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 0 {
		t.Errorf("memory matches success=false filter after unrelated patch")
	}
}

func TestUpdateMemory_ActionsReplaceAndReindex(t *testing.T) {
	s := newTestStore(t)
	sessID := registerAgent(t, s, "a1")

	m := storeMemory(t, s, "a1", sessID, memory.CreateMemoryParams{
		Actions: []memory.Action{{Type: "edit", File: "old/path.go"}},
	})

	_, err := s.UpdateMemory(m.ID, memory.UpdateMemoryParams{
		Actions: []memory.Action{{Type: "edit", File: "new/path.go"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	refs, err := s.FileRefs(m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 1 || refs[0].Path != "new/path.go" {
		t.Errorf("refs = %+v, want only new/path.go", refs)
	}
}

func TestUpdateMemory_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.UpdateMemory("ghost", memory.UpdateMemoryParams{})
	if !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteMemory_Cascades(t *testing.T) {
	s := newTestStore(t)
	sessID := registerAgent(t, s, "a1")

	m1 := storeMemory(t, s, "a1", sessID, memory.CreateMemoryParams{
		Actions: []memory.Action{{Type: "edit", File: "a.go"}},
	})
	m2 := storeMemory(t, s, "a1", sessID, memory.CreateMemoryParams{})
	if _, err := s.CreateLink(m1.ID, m2.ID, memory.LinkCausedBy); err != nil {
		t.Fatal(err)
	}

	deleted, err := s.DeleteMemory(m1.ID)
	if err != nil {
		t.Fatalf("DeleteMemory error: %v", err)
	}
	if !deleted {
		t.Fatal("expected deleted = true")
	}

	if _, err := s.GetMemory(m1.ID); !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("deleted memory still readable: %v", err)
	}
	refs, _ := s.FileRefs(m1.ID)
	if len(refs) != 0 {
		t.Errorf("file refs survived delete: %+v", refs)
	}
	links, _ := s.LinksFor(m2.ID)
	if len(links) != 0 {
		t.Errorf("links survived delete: %+v", links)
	}
}

func TestDeleteMemory_MissingReturnsFalse(t *testing.T) {
	s := newTestStore(t)
	deleted, err := s.DeleteMemory("ghost")
	if err != nil {
		t.Fatal(err)
	}
	if deleted {
		t.Error("expected deleted = false for unknown id")
	}
}

func TestQueryMemories_Filters(t *testing.T) {
	s := newTestStore(t)
	sessID := registerAgent(t, s, "a1")
	registerAgent(t, s, "a2")

	storeMemory(t, s, "a1", sessID, memory.CreateMemoryParams{
		Intent:  memory.Intent{Goal: "g1", TaskType: "bugfix"},
		Outcome: memory.Outcome{Success: true, Summary: "ok"},
		Tags:    []string{"auth"},
	})
	storeMemory(t, s, "a1", sessID, memory.CreateMemoryParams{
		Intent:  memory.Intent{Goal: "g2", TaskType: "feature"},
		Outcome: memory.Outcome{Success: false, Summary: "broke"},
		Tags:    []string{"auth", "session"},
	})
	storeMemory(t, s, "a2", sessID, memory.CreateMemoryParams{
		Intent:  memory.Intent{Goal: "g3", TaskType: "feature"},
		Outcome: memory.Outcome{Success: true, Summary: "ok"},
	})

	tests := []struct {
		name   string
		filter memory.MemoryFilter
		want   int
	}{
		{"by agent", memory.MemoryFilter{AgentID: "a1"}, 2},
		{"by task type", memory.MemoryFilter{TaskType: "feature"}, 2},
		{"by tag", memory.MemoryFilter{Tags: []string{"session"}}, 1},
		{"conjunctive", memory.MemoryFilter{AgentID: "a1", TaskType: "feature"}, 1},
		{"no match", memory.MemoryFilter{TaskType: "refactor"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.QueryMemories(tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != tt.want {
				t.Errorf("len = %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestQueryMemories_SortByImportance(t *testing.T) {
	s := newTestStore(t)
	sessID := registerAgent(t, s, "a1")

	low, high := 0.2, 0.9
	storeMemory(t, s, "a1", sessID, memory.CreateMemoryParams{
		Intent: memory.Intent{Goal: "minor", TaskType: "chore"}, Importance: &low,
	})
	storeMemory(t, s, "a1", sessID, memory.CreateMemoryParams{
		Intent: memory.Intent{Goal: "major", TaskType: "chore"}, Importance: &high,
	})

	got, err := s.QueryMemories(memory.MemoryFilter{SortBy: "importance"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Intent.Goal != "major" {
		t.Errorf("order wrong: %+v", got)
	}
}

func TestMemoriesByFile_SubstringMatch(t *testing.T) {
	s := newTestStore(t)
	sessID := registerAgent(t, s, "a1")

	m := storeMemory(t, s, "a1", sessID, memory.CreateMemoryParams{
		Actions: []memory.Action{{Type: "edit", File: "internal/auth/token.go"}},
	})
	storeMemory(t, s, "a1", sessID, memory.CreateMemoryParams{
		Actions: []memory.Action{{Type: "edit", File: "cmd/main.go"}},
	})

	got, err := s.MemoriesByFile("auth/token", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != m.ID {
		t.Errorf("got %d memories, want the auth one", len(got))
	}
}
