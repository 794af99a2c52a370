package memory_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/HendryAvila/recall/internal/memory"
)

func TestCreateChapter_Basic(t *testing.T) {
	s := newTestStore(t)
	sessID := registerAgent(t, s, "a1")

	m1 := storeMemory(t, s, "a1", sessID, memory.CreateMemoryParams{
		Intent:  memory.Intent{Goal: "Fix cache bug", TaskType: "bugfix"},
		Outcome: memory.Outcome{Success: true, Summary: "cache fixed", Learnings: []string{"check TTLs first"}},
		Tags:    []string{"cache"},
	})
	m2 := storeMemory(t, s, "a1", sessID, memory.CreateMemoryParams{
		Intent:  memory.Intent{Goal: "Improve caching", TaskType: "perf"},
		Outcome: memory.Outcome{Success: true, Summary: "hit rate up", Learnings: []string{"measure before tuning"}},
		Tags:    []string{"cache", "perf"},
	})

	ch, err := s.CreateChapter(memory.CreateChapterParams{
		Title:     "Cache work",
		MemoryIDs: []string{m1.ID, m2.ID},
	})
	if err != nil {
		t.Fatalf("CreateChapter error: %v", err)
	}
	if ch.Title != "Cache work" {
		t.Errorf("Title = %q", ch.Title)
	}
	if ch.MemoryCount != 2 {
		t.Errorf("MemoryCount = %d, want 2", ch.MemoryCount)
	}
	if !strings.Contains(ch.Summary, "Fix cache bug") {
		t.Errorf("Summary = %q, want goal included", ch.Summary)
	}
	if len(ch.Learnings) != 2 {
		t.Errorf("Learnings = %v", ch.Learnings)
	}
	// cache appears twice, perf once: frequency order
	if len(ch.Tags) != 2 || ch.Tags[0] != "cache" {
		t.Errorf("Tags = %v, want cache first", ch.Tags)
	}
	if ch.Origin != memory.OriginManual {
		t.Errorf("Origin = %q, want manual", ch.Origin)
	}
	if ch.StartTS == 0 || ch.EndTS < ch.StartTS {
		t.Errorf("span = [%d, %d]", ch.StartTS, ch.EndTS)
	}
}

func TestCreateChapter_SkipsUnresolvableIDs(t *testing.T) {
	s := newTestStore(t)
	sessID := registerAgent(t, s, "a1")
	m := storeMemory(t, s, "a1", sessID, memory.CreateMemoryParams{})

	ch, err := s.CreateChapter(memory.CreateChapterParams{
		MemoryIDs: []string{m.ID, "ghost-1", "ghost-2"},
	})
	if err != nil {
		t.Fatalf("CreateChapter error: %v", err)
	}
	if ch.MemoryCount != 1 {
		t.Errorf("MemoryCount = %d, want 1", ch.MemoryCount)
	}
}

func TestCreateChapter_AllUnresolvableFails(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateChapter(memory.CreateChapterParams{MemoryIDs: []string{"ghost"}})
	if !errors.Is(err, memory.ErrPrecondition) {
		t.Errorf("err = %v, want ErrPrecondition", err)
	}
}

func TestCreateChapter_TitleFallsBackToSummary(t *testing.T) {
	s := newTestStore(t)
	sessID := registerAgent(t, s, "a1")
	m := storeMemory(t, s, "a1", sessID, memory.CreateMemoryParams{
		Intent: memory.Intent{Goal: "Only goal", TaskType: "feature"},
	})

	ch, err := s.CreateChapter(memory.CreateChapterParams{MemoryIDs: []string{m.ID}})
	if err != nil {
		t.Fatal(err)
	}
	if ch.Title == "" {
		t.Error("title should derive from the summary when omitted")
	}
}

func TestChapterMemoryIDs_PositionByCreation(t *testing.T) {
	s := newTestStore(t)
	sessID := registerAgent(t, s, "a1")
	m1 := storeMemory(t, s, "a1", sessID, memory.CreateMemoryParams{})
	// CreatedAt has millisecond granularity; ensure m2 is strictly newer.
	time.Sleep(2 * time.Millisecond)
	m2 := storeMemory(t, s, "a1", sessID, memory.CreateMemoryParams{})

	// Supply newest first; positions still follow creation order.
	ch, err := s.CreateChapter(memory.CreateChapterParams{MemoryIDs: []string{m2.ID, m1.ID}})
	if err != nil {
		t.Fatal(err)
	}

	ids, err := s.ChapterMemoryIDs(ch.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 {
		t.Fatalf("ids = %d, want 2", len(ids))
	}
	if ids[0] != m1.ID {
		t.Errorf("first position = %q, want the older memory", ids[0])
	}
}

func TestAutoDetectChapters_TagBuckets(t *testing.T) {
	s := newTestStore(t) // MinClusterSize 3
	sessID := registerAgent(t, s, "a1")

	for i := 0; i < 3; i++ {
		storeMemory(t, s, "a1", sessID, memory.CreateMemoryParams{
			Intent: memory.Intent{Goal: "auth work", TaskType: "feature"},
			Tags:   []string{"auth"},
		})
	}
	// One below threshold: never becomes a chapter
	for i := 0; i < 2; i++ {
		storeMemory(t, s, "a1", sessID, memory.CreateMemoryParams{
			Intent: memory.Intent{Goal: "db work", TaskType: "feature"},
			Tags:   []string{"database"},
		})
	}

	chapters, err := s.AutoDetectChapters(memory.AutoDetectParams{})
	if err != nil {
		t.Fatalf("AutoDetectChapters error: %v", err)
	}
	if len(chapters) != 1 {
		t.Fatalf("chapters = %d, want 1 (database bucket below threshold)", len(chapters))
	}
	if chapters[0].Title != "auth" {
		t.Errorf("Title = %q, want the bucket key", chapters[0].Title)
	}
	if chapters[0].Origin != memory.OriginAuto {
		t.Errorf("Origin = %q, want auto", chapters[0].Origin)
	}
	if chapters[0].MemoryCount != 3 {
		t.Errorf("MemoryCount = %d, want 3", chapters[0].MemoryCount)
	}
}

func TestAutoDetectChapters_TaglessBucketByTaskType(t *testing.T) {
	s := newTestStore(t)
	sessID := registerAgent(t, s, "a1")

	for i := 0; i < 3; i++ {
		storeMemory(t, s, "a1", sessID, memory.CreateMemoryParams{
			Intent: memory.Intent{Goal: "untagged refactor", TaskType: "refactor"},
		})
	}

	chapters, err := s.AutoDetectChapters(memory.AutoDetectParams{})
	if err != nil {
		t.Fatal(err)
	}
	if len(chapters) != 1 {
		t.Fatalf("chapters = %d, want 1", len(chapters))
	}
	if chapters[0].Title != "task:refactor" {
		t.Errorf("Title = %q, want task:refactor", chapters[0].Title)
	}
}

func TestAutoDetectChapters_NothingBelowThreshold(t *testing.T) {
	s := newTestStore(t)
	sessID := registerAgent(t, s, "a1")
	storeMemory(t, s, "a1", sessID, memory.CreateMemoryParams{Tags: []string{"solo"}})

	chapters, err := s.AutoDetectChapters(memory.AutoDetectParams{})
	if err != nil {
		t.Fatal(err)
	}
	if len(chapters) != 0 {
		t.Errorf("chapters = %d, want 0", len(chapters))
	}
}

func TestListChapters_FilterAndCap(t *testing.T) {
	s := newTestStore(t)
	sessID := registerAgent(t, s, "a1")
	m := storeMemory(t, s, "a1", sessID, memory.CreateMemoryParams{Tags: []string{"alpha"}})

	if _, err := s.CreateChapter(memory.CreateChapterParams{
		Title: "c1", MemoryIDs: []string{m.ID}, Tags: []string{"alpha"},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateChapter(memory.CreateChapterParams{
		Title: "c2", MemoryIDs: []string{m.ID}, Tags: []string{"beta"},
	}); err != nil {
		t.Fatal(err)
	}

	all, err := s.ListChapters(memory.ChapterFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("all = %d, want 2", len(all))
	}

	filtered, err := s.ListChapters(memory.ChapterFilter{Tags: []string{"beta"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(filtered) != 1 || filtered[0].Title != "c2" {
		t.Errorf("filtered = %+v", filtered)
	}
}

func TestListChapters_FiltersBySpan(t *testing.T) {
	s := newTestStore(t)
	sessID := registerAgent(t, s, "a1")
	m := storeMemory(t, s, "a1", sessID, memory.CreateMemoryParams{})

	ch, err := s.CreateChapter(memory.CreateChapterParams{MemoryIDs: []string{m.ID}})
	if err != nil {
		t.Fatal(err)
	}

	// Since/Until select by the memory span, not the chapter's own
	// creation time.
	tests := []struct {
		name   string
		filter memory.ChapterFilter
		want   int
	}{
		{"since within span", memory.ChapterFilter{Since: ch.EndTS}, 1},
		{"since after span", memory.ChapterFilter{Since: ch.EndTS + 1}, 0},
		{"until within span", memory.ChapterFilter{Until: ch.StartTS}, 1},
		{"until before span", memory.ChapterFilter{Until: ch.StartTS - 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListChapters(tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d chapters, want %d", len(got), tt.want)
			}
		})
	}
}

func TestGetChapter_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetChapter("ghost")
	if !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteChapter_KeepsMemories(t *testing.T) {
	s := newTestStore(t)
	sessID := registerAgent(t, s, "a1")
	m := storeMemory(t, s, "a1", sessID, memory.CreateMemoryParams{})

	ch, err := s.CreateChapter(memory.CreateChapterParams{MemoryIDs: []string{m.ID}})
	if err != nil {
		t.Fatal(err)
	}

	deleted, err := s.DeleteChapter(ch.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !deleted {
		t.Fatal("expected deleted = true")
	}

	if _, err := s.GetChapter(ch.ID); !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("chapter still readable: %v", err)
	}
	// The member memory survives.
	if _, err := s.GetMemory(m.ID); err != nil {
		t.Errorf("member memory deleted with chapter: %v", err)
	}

	deleted, err = s.DeleteChapter(ch.ID)
	if err != nil {
		t.Fatal(err)
	}
	if deleted {
		t.Error("expected deleted = false on second delete")
	}
}
