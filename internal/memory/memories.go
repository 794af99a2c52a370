package memory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// memoryColumns is the SELECT list for full memory rows. Keep in sync
// with scanMemory.
const memoryColumns = `id, agent_id, project_id, session_id, created_at, intent_goal, intent_type, outcome_success, outcome_summary, intent_json, perception_json, reasoning_json, actions_json, outcome_json, tags_json, importance, access_count, last_accessed, embedding`

// CreateMemoryParams holds the input for storing a new memory.
type CreateMemoryParams struct {
	ID         string      `json:"id,omitempty"` // assigned when empty
	AgentID    string      `json:"agent_id"`
	SessionID  string      `json:"session_id"`
	Intent     Intent      `json:"intent"`
	Perception *Perception `json:"perception,omitempty"`
	Reasoning  *Reasoning  `json:"reasoning,omitempty"`
	Actions    []Action    `json:"actions,omitempty"`
	Outcome    Outcome     `json:"outcome"`
	Tags       []string    `json:"tags,omitempty"`
	Importance *float64    `json:"importance,omitempty"`
}

// UpdateMemoryParams holds partial update fields for a memory. Provided
// layer objects deep-merge into the stored ones; Actions and Tags
// replace the stored arrays entirely when non-nil.
type UpdateMemoryParams struct {
	Intent     *Intent       `json:"intent,omitempty"`
	Perception *Perception   `json:"perception,omitempty"`
	Reasoning  *Reasoning    `json:"reasoning,omitempty"`
	Actions    []Action      `json:"actions,omitempty"`
	Outcome    *OutcomePatch `json:"outcome,omitempty"`
	Tags       []string      `json:"tags,omitempty"`
	Importance *float64      `json:"importance,omitempty"`
}

// OutcomePatch is a partial outcome update. Success is tri-state: nil
// leaves the stored flag untouched, so a patch that only adds, say, a
// verification note cannot flip a success into a failure.
type OutcomePatch struct {
	Success         *bool    `json:"success,omitempty"`
	Summary         string   `json:"summary,omitempty"`
	Learnings       []string `json:"learnings,omitempty"`
	FailureReason   string   `json:"failure_reason,omitempty"`
	FailureCategory string   `json:"failure_category,omitempty"`
	Verification    string   `json:"verification,omitempty"`
}

// MemoryFilter holds conjunctive filters for memory queries. File
// matches by substring, not exact path.
type MemoryFilter struct {
	AgentID  string   `json:"agent_id,omitempty"`
	File     string   `json:"file,omitempty"`
	TaskType string   `json:"task_type,omitempty"`
	Success  *bool    `json:"success,omitempty"`
	Since    int64    `json:"since,omitempty"`
	Until    int64    `json:"until,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	SortBy   string   `json:"sort_by,omitempty"` // created_at (default), importance, access_count
	Limit    int      `json:"limit,omitempty"`
}

// CreateMemory stores a new memory. The embedding (when the provider is
// enabled) is computed before the row is persisted, so semantic search
// never has to backfill vectors. The row, its file index entries, and
// the owning agent/session counters change in one transaction.
func (s *Store) CreateMemory(ctx context.Context, p CreateMemoryParams) (*Memory, error) {
	if p.AgentID == "" || p.SessionID == "" {
		return nil, fmt.Errorf("memory: create memory: agent and session required: %w", ErrPrecondition)
	}

	id := p.ID
	if id == "" {
		id = uuid.New().String()
	}
	importance := 0.5
	if p.Importance != nil {
		importance = clamp01(*p.Importance)
	}

	m := &Memory{
		ID:         id,
		AgentID:    p.AgentID,
		ProjectID:  s.cfg.ProjectID,
		SessionID:  p.SessionID,
		CreatedAt:  nowMillis(),
		Intent:     p.Intent,
		Perception: p.Perception,
		Reasoning:  p.Reasoning,
		Actions:    p.Actions,
		Outcome:    p.Outcome,
		Tags:       dedupeStrings(p.Tags),
		Importance: importance,
	}

	// Embed before persisting. The provider fails open: a disabled or
	// failing provider yields nil and the memory is stored without a
	// vector.
	if s.embedder != nil {
		m.Embedding = s.embedder.Embed(ctx, embeddingText(m))
	}

	intentJSON, err := marshalJSON(m.Intent)
	if err != nil {
		return nil, fmt.Errorf("memory: create memory: encode intent: %w", err)
	}
	perceptionJSON, _ := marshalJSON(m.Perception)
	reasoningJSON, _ := marshalJSON(m.Reasoning)
	actionsJSON, _ := marshalJSON(m.Actions)
	outcomeJSON, err := marshalJSON(m.Outcome)
	if err != nil {
		return nil, fmt.Errorf("memory: create memory: encode outcome: %w", err)
	}
	tagsJSON, _ := marshalJSON(m.Tags)

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("memory: create memory: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.Exec(
		`INSERT OR IGNORE INTO memories
		 (id, agent_id, project_id, session_id, created_at,
		  intent_goal, intent_type, outcome_success, outcome_summary,
		  intent_json, perception_json, reasoning_json, actions_json, outcome_json,
		  tags_json, importance, embedding)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.AgentID, m.ProjectID, m.SessionID, m.CreatedAt,
		m.Intent.Goal, m.Intent.TaskType, boolToInt(m.Outcome.Success), m.Outcome.Summary,
		derefString(intentJSON), perceptionJSON, reasoningJSON, actionsJSON, derefString(outcomeJSON),
		tagsJSON, m.Importance, encodeEmbedding(m.Embedding),
	)
	if err != nil {
		return nil, fmt.Errorf("memory: create memory: %w", err)
	}
	// An ignored insert means a caller-supplied id collided with an
	// existing row; proceeding would bump counters and attach file
	// refs to someone else's memory.
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("memory: create memory: id %s already exists: %w", m.ID, ErrPrecondition)
	}

	if err := insertFileRefs(tx, m); err != nil {
		return nil, err
	}

	now := m.CreatedAt
	successCol := "success_count"
	if !m.Outcome.Success {
		successCol = "failure_count"
	}
	_, err = tx.Exec(
		`UPDATE agents SET memory_count = memory_count + 1, `+successCol+` = `+successCol+` + 1,
		 last_active_at = ? WHERE id = ? AND project_id = ?`,
		now, m.AgentID, s.cfg.ProjectID,
	)
	if err != nil {
		return nil, fmt.Errorf("memory: create memory: touch agent: %w", err)
	}
	_, err = tx.Exec(
		`UPDATE sessions SET memory_count = memory_count + 1 WHERE id = ? AND project_id = ?`,
		m.SessionID, s.cfg.ProjectID,
	)
	if err != nil {
		return nil, fmt.Errorf("memory: create memory: touch session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("memory: create memory: commit: %w", err)
	}
	return m, nil
}

// insertFileRefs mirrors file references from the actions and
// perception layers into memory_files. Duplicate paths are ignored.
func insertFileRefs(tx *sql.Tx, m *Memory) error {
	for _, a := range m.Actions {
		if a.File == "" {
			continue
		}
		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO memory_files (memory_id, file_path, operation) VALUES (?, ?, ?)`,
			m.ID, a.File, nullableString(a.Type),
		); err != nil {
			return fmt.Errorf("memory: index file %s: %w", a.File, err)
		}
	}
	if m.Perception != nil {
		for _, f := range m.Perception.RelevantFiles {
			if f == "" {
				continue
			}
			if _, err := tx.Exec(
				`INSERT OR IGNORE INTO memory_files (memory_id, file_path, operation) VALUES (?, ?, 'reference')`,
				m.ID, f,
			); err != nil {
				return fmt.Errorf("memory: index file %s: %w", f, err)
			}
		}
	}
	return nil
}

// GetMemory retrieves a single memory by id within the current project.
func (s *Store) GetMemory(id string) (*Memory, error) {
	row := s.db.QueryRow(
		`SELECT `+memoryColumns+` FROM memories WHERE id = ? AND project_id = ?`,
		id, s.cfg.ProjectID,
	)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("memory: memory %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("memory: get memory: %w", err)
	}
	return m, nil
}

// UpdateMemory applies a patch to a memory. Layer objects deep-merge
// (non-empty fields win, array fields inside a layer replace when
// provided); Actions and Tags replace entirely. The denormalized
// intent/outcome columns and the file index are re-synced from the
// merged result — the file mirror is fully replaced, not merged.
// ID and created_at never change.
func (s *Store) UpdateMemory(id string, p UpdateMemoryParams) (*Memory, error) {
	m, err := s.GetMemory(id)
	if err != nil {
		return nil, err
	}

	if p.Intent != nil {
		mergeIntent(&m.Intent, p.Intent)
	}
	if p.Perception != nil {
		if m.Perception == nil {
			m.Perception = &Perception{}
		}
		mergePerception(m.Perception, p.Perception)
	}
	if p.Reasoning != nil {
		if m.Reasoning == nil {
			m.Reasoning = &Reasoning{}
		}
		mergeReasoning(m.Reasoning, p.Reasoning)
	}
	if p.Actions != nil {
		m.Actions = p.Actions
	}
	if p.Outcome != nil {
		mergeOutcome(&m.Outcome, p.Outcome)
	}
	if p.Tags != nil {
		m.Tags = dedupeStrings(p.Tags)
	}
	if p.Importance != nil {
		m.Importance = clamp01(*p.Importance)
	}

	intentJSON, err := marshalJSON(m.Intent)
	if err != nil {
		return nil, fmt.Errorf("memory: update memory: encode intent: %w", err)
	}
	perceptionJSON, _ := marshalJSON(m.Perception)
	reasoningJSON, _ := marshalJSON(m.Reasoning)
	actionsJSON, _ := marshalJSON(m.Actions)
	outcomeJSON, err := marshalJSON(m.Outcome)
	if err != nil {
		return nil, fmt.Errorf("memory: update memory: encode outcome: %w", err)
	}
	tagsJSON, _ := marshalJSON(m.Tags)

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("memory: update memory: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(
		`UPDATE memories SET
		 intent_goal = ?, intent_type = ?, outcome_success = ?, outcome_summary = ?,
		 intent_json = ?, perception_json = ?, reasoning_json = ?, actions_json = ?, outcome_json = ?,
		 tags_json = ?, importance = ?
		 WHERE id = ? AND project_id = ?`,
		m.Intent.Goal, m.Intent.TaskType, boolToInt(m.Outcome.Success), m.Outcome.Summary,
		derefString(intentJSON), perceptionJSON, reasoningJSON, actionsJSON, derefString(outcomeJSON),
		tagsJSON, m.Importance,
		id, s.cfg.ProjectID,
	)
	if err != nil {
		return nil, fmt.Errorf("memory: update memory: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM memory_files WHERE memory_id = ?`, id); err != nil {
		return nil, fmt.Errorf("memory: update memory: clear file index: %w", err)
	}
	if err := insertFileRefs(tx, m); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("memory: update memory: commit: %w", err)
	}
	return m, nil
}

// DeleteMemory removes a memory together with its file index rows, all
// incident links (either direction), and its chapter memberships, in
// one transaction. Returns false when the id does not exist.
func (s *Store) DeleteMemory(id string) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("memory: delete memory: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM memory_files WHERE memory_id = ?`, id); err != nil {
		return false, fmt.Errorf("memory: delete memory: files: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM memory_links WHERE source_id = ? OR target_id = ?`, id, id); err != nil {
		return false, fmt.Errorf("memory: delete memory: links: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM chapter_memories WHERE memory_id = ?`, id); err != nil {
		return false, fmt.Errorf("memory: delete memory: memberships: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM memories WHERE id = ? AND project_id = ?`, id, s.cfg.ProjectID)
	if err != nil {
		return false, fmt.Errorf("memory: delete memory: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("memory: delete memory: commit: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// QueryMemories returns memories matching the filter, all clauses
// composed conjunctively.
func (s *Store) QueryMemories(f MemoryFilter) ([]*Memory, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = s.cfg.MaxRecallResults
	}

	query := `SELECT DISTINCT m.` + strings.ReplaceAll(memoryColumns, ", ", ", m.") + ` FROM memories m`
	args := []any{}

	if f.File != "" {
		query += ` JOIN memory_files mf ON mf.memory_id = m.id`
	}
	query += ` WHERE m.project_id = ?`
	args = append(args, s.cfg.ProjectID)

	if f.File != "" {
		query += ` AND mf.file_path LIKE ?`
		args = append(args, "%"+f.File+"%")
	}
	if f.AgentID != "" {
		query += ` AND m.agent_id = ?`
		args = append(args, f.AgentID)
	}
	if f.TaskType != "" {
		query += ` AND m.intent_type = ?`
		args = append(args, f.TaskType)
	}
	if f.Success != nil {
		query += ` AND m.outcome_success = ?`
		args = append(args, boolToInt(*f.Success))
	}
	if f.Since > 0 {
		query += ` AND m.created_at >= ?`
		args = append(args, f.Since)
	}
	if f.Until > 0 {
		query += ` AND m.created_at <= ?`
		args = append(args, f.Until)
	}
	for _, tag := range f.Tags {
		// tags_json holds a JSON string array; substring match on the
		// quoted tag is exact enough for tag tokens.
		query += ` AND m.tags_json LIKE ?`
		args = append(args, `%"`+tag+`"%`)
	}

	switch f.SortBy {
	case "importance":
		query += ` ORDER BY m.importance DESC, m.created_at DESC`
	case "access_count":
		query += ` ORDER BY m.access_count DESC, m.created_at DESC`
	default:
		query += ` ORDER BY m.created_at DESC`
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("memory: query memories: %w", err)
	}
	defer rows.Close()

	var result []*Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("memory: query memories: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

// MemoriesByFile returns memories whose file index matches the path
// substring, newest first.
func (s *Store) MemoriesByFile(path string, limit int) ([]*Memory, error) {
	return s.QueryMemories(MemoryFilter{File: path, Limit: limit})
}

// FileRefs returns the file index rows for a memory.
func (s *Store) FileRefs(memoryID string) ([]FileRef, error) {
	rows, err := s.db.Query(
		`SELECT memory_id, file_path, operation FROM memory_files WHERE memory_id = ? ORDER BY file_path`,
		memoryID,
	)
	if err != nil {
		return nil, fmt.Errorf("memory: file refs: %w", err)
	}
	defer rows.Close()

	var result []FileRef
	for rows.Next() {
		var fr FileRef
		var op *string
		if err := rows.Scan(&fr.MemoryID, &fr.Path, &op); err != nil {
			return nil, err
		}
		fr.Operation = derefString(op)
		result = append(result, fr)
	}
	return result, rows.Err()
}

// touchMemories bumps access counters and timestamps for retrieved
// memories. This is an observable side effect of every recall.
func (s *Store) touchMemories(ids []string) {
	if len(ids) == 0 {
		return
	}
	now := nowMillis()
	for _, id := range ids {
		_, _ = s.db.Exec(
			`UPDATE memories SET access_count = access_count + 1, last_accessed = ? WHERE id = ?`,
			now, id,
		)
	}
}

// ─── Row scanning ────────────────────────────────────────────────────────────

type rowLike interface {
	Scan(dest ...any) error
}

// scanMemory decodes one full memory row. Keep in sync with memoryColumns.
func scanMemory(row rowLike) (*Memory, error) {
	var m Memory
	var success int
	var perception, reasoning, actions, tags *string
	var intent, outcome string
	var lastAccessed *int64
	var blob []byte

	err := row.Scan(
		&m.ID, &m.AgentID, &m.ProjectID, &m.SessionID, &m.CreatedAt,
		&m.Intent.Goal, &m.Intent.TaskType, &success, &m.Outcome.Summary,
		&intent, &perception, &reasoning, &actions, &outcome,
		&tags, &m.Importance, &m.AccessCount, &lastAccessed, &blob,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalJSON(&intent, &m.Intent); err != nil {
		return nil, fmt.Errorf("decode intent: %w", err)
	}
	if perception != nil {
		m.Perception = &Perception{}
		if err := unmarshalJSON(perception, m.Perception); err != nil {
			return nil, fmt.Errorf("decode perception: %w", err)
		}
	}
	if reasoning != nil {
		m.Reasoning = &Reasoning{}
		if err := unmarshalJSON(reasoning, m.Reasoning); err != nil {
			return nil, fmt.Errorf("decode reasoning: %w", err)
		}
	}
	if err := unmarshalJSON(actions, &m.Actions); err != nil {
		return nil, fmt.Errorf("decode actions: %w", err)
	}
	if err := unmarshalJSON(&outcome, &m.Outcome); err != nil {
		return nil, fmt.Errorf("decode outcome: %w", err)
	}
	if err := unmarshalJSON(tags, &m.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	m.Outcome.Success = success != 0
	m.LastAccessed = derefInt64(lastAccessed)
	m.Embedding = decodeEmbedding(blob)
	return &m, nil
}

// embeddingText composes the text embedded for a memory: the goal, the
// outcome summary, and any learnings. This is what semantic recall
// ranks against.
func embeddingText(m *Memory) string {
	parts := []string{m.Intent.Goal, m.Outcome.Summary}
	parts = append(parts, m.Outcome.Learnings...)
	var filled []string
	for _, p := range parts {
		if p != "" {
			filled = append(filled, p)
		}
	}
	return strings.Join(filled, "\n")
}

// ─── Layer merging ───────────────────────────────────────────────────────────

func mergeIntent(dst, src *Intent) {
	if src.Goal != "" {
		dst.Goal = src.Goal
	}
	if src.TaskType != "" {
		dst.TaskType = src.TaskType
	}
	if src.Context != "" {
		dst.Context = src.Context
	}
	if src.Constraints != nil {
		dst.Constraints = src.Constraints
	}
}

func mergePerception(dst, src *Perception) {
	if src.Observations != nil {
		dst.Observations = src.Observations
	}
	if src.RelevantFiles != nil {
		dst.RelevantFiles = src.RelevantFiles
	}
	if src.Patterns != nil {
		dst.Patterns = src.Patterns
	}
	if src.Anomalies != nil {
		dst.Anomalies = src.Anomalies
	}
}

func mergeReasoning(dst, src *Reasoning) {
	if src.Approach != "" {
		dst.Approach = src.Approach
	}
	if src.Rationale != "" {
		dst.Rationale = src.Rationale
	}
	if src.Alternatives != nil {
		dst.Alternatives = src.Alternatives
	}
	if src.Assumptions != nil {
		dst.Assumptions = src.Assumptions
	}
	if src.Risks != nil {
		dst.Risks = src.Risks
	}
}

func mergeOutcome(dst *Outcome, src *OutcomePatch) {
	if src.Success != nil {
		dst.Success = *src.Success
	}
	if src.Summary != "" {
		dst.Summary = src.Summary
	}
	if src.Learnings != nil {
		dst.Learnings = src.Learnings
	}
	if src.FailureReason != "" {
		dst.FailureReason = src.FailureReason
	}
	if src.FailureCategory != "" {
		dst.FailureCategory = src.FailureCategory
	}
	if src.Verification != "" {
		dst.Verification = src.Verification
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
