package memory

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// CreateChapterParams holds the input for manual chapter creation.
// Caller-supplied tags and topics are unioned with the derived ones.
type CreateChapterParams struct {
	Title     string   `json:"title,omitempty"`
	MemoryIDs []string `json:"memory_ids"`
	Tags      []string `json:"tags,omitempty"`
	Topics    []string `json:"topics,omitempty"`
}

// AutoDetectParams bounds the memory scan for automatic chapter
// detection.
type AutoDetectParams struct {
	Since int64 `json:"since,omitempty"`
	Limit int   `json:"limit,omitempty"`
}

// CreateChapter groups an explicit set of memories into a chapter. Ids
// that do not resolve are skipped; when none resolve the call fails.
// The chapter row and its memberships are written atomically, with
// position following member creation time ascending.
func (s *Store) CreateChapter(p CreateChapterParams) (*Chapter, error) {
	var members []*Memory
	for _, id := range p.MemoryIDs {
		m, err := s.GetMemory(id)
		if err != nil {
			continue
		}
		members = append(members, m)
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("memory: create chapter: no resolvable memories: %w", ErrPrecondition)
	}
	return s.persistChapter(p.Title, OriginManual, members, p.Tags, p.Topics)
}

// AutoDetectChapters scans recent memories and buckets them by tag;
// memories with no tags fall into a synthetic task:<task_type> bucket.
// Every bucket with at least MinClusterSize members becomes its own
// chapter — a single invocation may create zero, one, or many.
func (s *Store) AutoDetectChapters(p AutoDetectParams) ([]*Chapter, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 100
	}
	memories, err := s.QueryMemories(MemoryFilter{Since: p.Since, Limit: limit})
	if err != nil {
		return nil, err
	}

	buckets := make(map[string][]*Memory)
	var order []string
	add := func(key string, m *Memory) {
		if _, ok := buckets[key]; !ok {
			order = append(order, key)
		}
		buckets[key] = append(buckets[key], m)
	}
	for _, m := range memories {
		if len(m.Tags) == 0 {
			add("task:"+m.Intent.TaskType, m)
			continue
		}
		for _, tag := range m.Tags {
			add(tag, m)
		}
	}

	var chapters []*Chapter
	for _, key := range order {
		members := buckets[key]
		if len(members) < s.cfg.MinClusterSize {
			continue
		}
		ch, err := s.persistChapter(key, OriginAuto, members, nil, nil)
		if err != nil {
			return nil, err
		}
		chapters = append(chapters, ch)
	}
	return chapters, nil
}

// persistChapter synthesizes and stores a chapter from a member set.
func (s *Store) persistChapter(title, origin string, members []*Memory, extraTags, extraTopics []string) (*Chapter, error) {
	syn := synthesizeChapter(members)
	if title == "" {
		title = Truncate(syn.summary, 60)
	}

	ch := &Chapter{
		ID:          uuid.New().String(),
		ProjectID:   s.cfg.ProjectID,
		Title:       title,
		Summary:     syn.summary,
		Learnings:   syn.learnings,
		Tags:        dedupeStrings(append(syn.tags, extraTags...)),
		Topics:      dedupeStrings(append(syn.topics, extraTopics...)),
		StartTS:     syn.startTS,
		EndTS:       syn.endTS,
		Origin:      origin,
		MemoryCount: len(members),
		CreatedAt:   nowMillis(),
	}

	learningsJSON, _ := marshalJSON(ch.Learnings)
	tagsJSON, _ := marshalJSON(ch.Tags)
	topicsJSON, _ := marshalJSON(ch.Topics)

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("memory: create chapter: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(
		`INSERT INTO chapters (id, project_id, title, summary, learnings_json, tags_json, topics_json,
		 start_ts, end_ts, origin, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ch.ID, ch.ProjectID, ch.Title, ch.Summary, learningsJSON, tagsJSON, topicsJSON,
		ch.StartTS, ch.EndTS, ch.Origin, ch.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("memory: create chapter: %w", err)
	}

	// Membership position follows creation time ascending — this is
	// the chapter's narrative order, independent of later mutation.
	ordered := make([]*Memory, len(members))
	copy(ordered, members)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt < ordered[j].CreatedAt
	})
	for pos, m := range ordered {
		_, err := tx.Exec(
			`INSERT OR IGNORE INTO chapter_memories (chapter_id, memory_id, position) VALUES (?, ?, ?)`,
			ch.ID, m.ID, pos,
		)
		if err != nil {
			return nil, fmt.Errorf("memory: create chapter: membership %s: %w", m.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("memory: create chapter: commit: %w", err)
	}
	return ch, nil
}

// chapterSynthesis is the derived content of a chapter.
type chapterSynthesis struct {
	summary   string
	learnings []string
	tags      []string
	topics    []string
	startTS   int64
	endTS     int64
}

// synthesizeChapter derives a chapter's summary, learnings, tags,
// topics, and time span from its member memories.
func synthesizeChapter(members []*Memory) chapterSynthesis {
	var syn chapterSynthesis

	var goals, outcomes, learnings, allTags []string
	for _, m := range members {
		if syn.startTS == 0 || m.CreatedAt < syn.startTS {
			syn.startTS = m.CreatedAt
		}
		if m.CreatedAt > syn.endTS {
			syn.endTS = m.CreatedAt
		}
		if m.Intent.Goal != "" {
			goals = append(goals, m.Intent.Goal)
		}
		if m.Outcome.Summary != "" {
			outcomes = append(outcomes, m.Outcome.Summary)
		}
		learnings = append(learnings, m.Outcome.Learnings...)
		allTags = append(allTags, m.Tags...)
	}

	var clauses []string
	if len(goals) > 0 {
		clauses = append(clauses, "Goals: "+strings.Join(firstN(goals, 3), "; "))
	}
	if len(outcomes) > 0 {
		clauses = append(clauses, "Outcomes: "+strings.Join(firstN(outcomes, 3), "; "))
	}
	if len(clauses) == 0 {
		syn.summary = fmt.Sprintf("A chapter of %d memories.", len(members))
	} else {
		syn.summary = strings.Join(clauses, ". ")
	}

	syn.learnings = dedupeStrings(learnings)
	syn.tags = rankByFrequency(allTags)
	syn.topics = firstN(syn.tags, 5)
	return syn
}

func firstN(in []string, n int) []string {
	if len(in) <= n {
		return in
	}
	return in[:n]
}

// GetChapter retrieves a chapter by id within the current project.
func (s *Store) GetChapter(id string) (*Chapter, error) {
	row := s.db.QueryRow(
		`SELECT id, project_id, title, summary, learnings_json, tags_json, topics_json,
		 start_ts, end_ts, origin, created_at,
		 (SELECT COUNT(*) FROM chapter_memories WHERE chapter_id = chapters.id)
		 FROM chapters WHERE id = ? AND project_id = ?`,
		id, s.cfg.ProjectID,
	)
	ch, err := scanChapter(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("memory: chapter %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("memory: get chapter: %w", err)
	}
	return ch, nil
}

// ChapterFilter holds conjunctive filters for chapter listings. Since
// and Until select by the chapter's memory span, not its creation
// time: a chapter matches Since when its span ends at or after it, and
// Until when its span starts at or before it.
type ChapterFilter struct {
	Since int64    `json:"since,omitempty"`
	Until int64    `json:"until,omitempty"`
	Tags  []string `json:"tags,omitempty"`
	Limit int      `json:"limit,omitempty"`
}

// ListChapters returns chapters matching the filter, most recent
// first, capped at 50.
func (s *Store) ListChapters(f ChapterFilter) ([]*Chapter, error) {
	limit := f.Limit
	if limit <= 0 || limit > 50 {
		limit = 50
	}

	query := `SELECT id, project_id, title, summary, learnings_json, tags_json, topics_json,
		 start_ts, end_ts, origin, created_at,
		 (SELECT COUNT(*) FROM chapter_memories WHERE chapter_id = chapters.id)
		 FROM chapters WHERE project_id = ?`
	args := []any{s.cfg.ProjectID}

	if f.Since > 0 {
		query += ` AND end_ts >= ?`
		args = append(args, f.Since)
	}
	if f.Until > 0 {
		query += ` AND start_ts <= ?`
		args = append(args, f.Until)
	}
	for _, tag := range f.Tags {
		query += ` AND tags_json LIKE ?`
		args = append(args, `%"`+tag+`"%`)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("memory: list chapters: %w", err)
	}
	defer rows.Close()

	var result []*Chapter
	for rows.Next() {
		ch, err := scanChapter(rows)
		if err != nil {
			return nil, fmt.Errorf("memory: list chapters: %w", err)
		}
		result = append(result, ch)
	}
	return result, rows.Err()
}

// ChapterMemoryIDs returns a chapter's member memory ids in position
// order.
func (s *Store) ChapterMemoryIDs(chapterID string) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT memory_id FROM chapter_memories WHERE chapter_id = ? ORDER BY position ASC`,
		chapterID,
	)
	if err != nil {
		return nil, fmt.Errorf("memory: chapter members: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteChapter removes a chapter, its memberships, and its wisdom
// references in one transaction. Member memories and wisdom rows are
// never deleted. Returns false when the id does not exist.
func (s *Store) DeleteChapter(id string) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("memory: delete chapter: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM chapter_memories WHERE chapter_id = ?`, id); err != nil {
		return false, fmt.Errorf("memory: delete chapter: memberships: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM wisdom_chapters WHERE chapter_id = ?`, id); err != nil {
		return false, fmt.Errorf("memory: delete chapter: wisdom refs: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM chapters WHERE id = ? AND project_id = ?`, id, s.cfg.ProjectID)
	if err != nil {
		return false, fmt.Errorf("memory: delete chapter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("memory: delete chapter: commit: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func scanChapter(row rowLike) (*Chapter, error) {
	var ch Chapter
	var learnings, tags, topics *string
	err := row.Scan(
		&ch.ID, &ch.ProjectID, &ch.Title, &ch.Summary, &learnings, &tags, &topics,
		&ch.StartTS, &ch.EndTS, &ch.Origin, &ch.CreatedAt, &ch.MemoryCount,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalJSON(learnings, &ch.Learnings); err != nil {
		return nil, fmt.Errorf("decode learnings: %w", err)
	}
	if err := unmarshalJSON(tags, &ch.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	if err := unmarshalJSON(topics, &ch.Topics); err != nil {
		return nil, fmt.Errorf("decode topics: %w", err)
	}
	return &ch, nil
}
