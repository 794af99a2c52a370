package memory

import (
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// SynthesizeWisdomParams holds the input for wisdom synthesis: either
// explicit chapter ids or a filtered listing.
type SynthesizeWisdomParams struct {
	ChapterIDs []string `json:"chapter_ids,omitempty"`
	Since      int64    `json:"since,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

// SynthesizeWisdom aggregates two or more chapters into a project-level
// insight summary and links the wisdom to every contributing chapter
// as a permanent provenance record.
func (s *Store) SynthesizeWisdom(p SynthesizeWisdomParams) (*Wisdom, error) {
	var chapters []*Chapter
	if len(p.ChapterIDs) > 0 {
		for _, id := range p.ChapterIDs {
			ch, err := s.GetChapter(id)
			if err != nil {
				return nil, err
			}
			chapters = append(chapters, ch)
		}
	} else {
		var err error
		chapters, err = s.ListChapters(ChapterFilter{Since: p.Since, Tags: p.Tags})
		if err != nil {
			return nil, err
		}
	}

	if len(chapters) < s.cfg.MinChapters {
		return nil, fmt.Errorf("memory: synthesize wisdom: %d chapters, need at least %d: %w",
			len(chapters), s.cfg.MinChapters, ErrPrecondition)
	}

	w := synthesizeWisdom(chapters)
	w.ID = uuid.New().String()
	w.ProjectID = s.cfg.ProjectID
	w.CreatedAt = nowMillis()

	insightsJSON, _ := marshalJSON(w.Insights)
	patternsJSON, _ := marshalJSON(w.Patterns)
	practicesJSON, _ := marshalJSON(w.BestPractices)
	tagsJSON, _ := marshalJSON(w.Tags)

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("memory: synthesize wisdom: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(
		`INSERT INTO wisdom (id, project_id, summary, insights_json, patterns_json, best_practices_json,
		 tags_json, start_ts, end_ts, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.ProjectID, w.Summary, insightsJSON, patternsJSON, practicesJSON,
		tagsJSON, w.StartTS, w.EndTS, w.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("memory: synthesize wisdom: %w", err)
	}
	for _, ch := range chapters {
		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO wisdom_chapters (wisdom_id, chapter_id) VALUES (?, ?)`,
			w.ID, ch.ID,
		); err != nil {
			return nil, fmt.Errorf("memory: synthesize wisdom: link chapter %s: %w", ch.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("memory: synthesize wisdom: commit: %w", err)
	}
	return w, nil
}

// synthesizeWisdom derives the aggregate content from the contributing
// chapters.
func synthesizeWisdom(chapters []*Chapter) *Wisdom {
	w := &Wisdom{ChapterCount: len(chapters)}

	var summaries, learnings, tagsAndTopics []string
	for _, ch := range chapters {
		if w.StartTS == 0 || ch.StartTS < w.StartTS {
			w.StartTS = ch.StartTS
		}
		if ch.EndTS > w.EndTS {
			w.EndTS = ch.EndTS
		}
		if ch.Summary != "" {
			summaries = append(summaries, ch.Summary)
		}
		learnings = append(learnings, ch.Learnings...)
		tagsAndTopics = append(tagsAndTopics, dedupeStrings(append(append([]string{}, ch.Tags...), ch.Topics...))...)
	}

	w.Summary = fmt.Sprintf("Across %d chapters: %s",
		len(chapters), strings.Join(firstN(summaries, 3), " | "))
	w.Insights = dedupeStrings(learnings)

	// A tag or topic seen in two or more chapters is a pattern.
	// Patterns double as the wisdom's tags.
	counts := make(map[string]int)
	var order []string
	for _, v := range tagsAndTopics {
		if counts[v] == 0 {
			order = append(order, v)
		}
		counts[v]++
	}
	var patterns []string
	for _, v := range order {
		if counts[v] >= 2 {
			patterns = append(patterns, v)
		}
	}
	sort.SliceStable(patterns, func(i, j int) bool {
		return counts[patterns[i]] > counts[patterns[j]]
	})
	w.Patterns = patterns
	w.Tags = patterns

	for _, insight := range w.Insights {
		if isBestPractice(insight) {
			w.BestPractices = append(w.BestPractices, insight)
		}
	}
	return w
}

// normativePattern matches the prescriptive language that marks an
// insight as a best practice rather than a plain observation.
var normativePattern = regexp.MustCompile(`(?i)\b(should|avoid|prefer|never|always|must|do not|don't)\b`)

// isBestPractice reports whether an insight reads as normative
// guidance. Deliberately a simple heuristic, not NLP.
func isBestPractice(text string) bool {
	return normativePattern.MatchString(text)
}

// GetWisdom retrieves a wisdom row by id within the current project.
func (s *Store) GetWisdom(id string) (*Wisdom, error) {
	row := s.db.QueryRow(
		`SELECT id, project_id, summary, insights_json, patterns_json, best_practices_json,
		 tags_json, start_ts, end_ts, created_at,
		 (SELECT COUNT(*) FROM wisdom_chapters WHERE wisdom_id = wisdom.id)
		 FROM wisdom WHERE id = ? AND project_id = ?`,
		id, s.cfg.ProjectID,
	)
	w, err := scanWisdom(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("memory: wisdom %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("memory: get wisdom: %w", err)
	}
	return w, nil
}

// ListWisdom returns wisdom rows for the project, most recent first.
func (s *Store) ListWisdom(limit int) ([]*Wisdom, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT id, project_id, summary, insights_json, patterns_json, best_practices_json,
		 tags_json, start_ts, end_ts, created_at,
		 (SELECT COUNT(*) FROM wisdom_chapters WHERE wisdom_id = wisdom.id)
		 FROM wisdom WHERE project_id = ? ORDER BY created_at DESC LIMIT ?`,
		s.cfg.ProjectID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("memory: list wisdom: %w", err)
	}
	defer rows.Close()

	var result []*Wisdom
	for rows.Next() {
		w, err := scanWisdom(rows)
		if err != nil {
			return nil, fmt.Errorf("memory: list wisdom: %w", err)
		}
		result = append(result, w)
	}
	return result, rows.Err()
}

// WisdomChapterIDs returns the chapters a wisdom row aggregates.
func (s *Store) WisdomChapterIDs(wisdomID string) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT chapter_id FROM wisdom_chapters WHERE wisdom_id = ?`, wisdomID,
	)
	if err != nil {
		return nil, fmt.Errorf("memory: wisdom chapters: %w", err)
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

// DeleteWisdom removes a wisdom row and its chapter references in one
// transaction; the chapters themselves are untouched. Returns false
// when the id does not exist.
func (s *Store) DeleteWisdom(id string) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("memory: delete wisdom: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM wisdom_chapters WHERE wisdom_id = ?`, id); err != nil {
		return false, fmt.Errorf("memory: delete wisdom: refs: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM wisdom WHERE id = ? AND project_id = ?`, id, s.cfg.ProjectID)
	if err != nil {
		return false, fmt.Errorf("memory: delete wisdom: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("memory: delete wisdom: commit: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func scanWisdom(row rowLike) (*Wisdom, error) {
	var w Wisdom
	var insights, patterns, practices, tags *string
	err := row.Scan(
		&w.ID, &w.ProjectID, &w.Summary, &insights, &patterns, &practices,
		&tags, &w.StartTS, &w.EndTS, &w.CreatedAt, &w.ChapterCount,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalJSON(insights, &w.Insights); err != nil {
		return nil, fmt.Errorf("decode insights: %w", err)
	}
	if err := unmarshalJSON(patterns, &w.Patterns); err != nil {
		return nil, fmt.Errorf("decode patterns: %w", err)
	}
	if err := unmarshalJSON(practices, &w.BestPractices); err != nil {
		return nil, fmt.Errorf("decode best practices: %w", err)
	}
	if err := unmarshalJSON(tags, &w.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	return &w, nil
}
