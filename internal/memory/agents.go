package memory

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// RegisterAgentParams holds the input for registering an agent.
type RegisterAgentParams struct {
	ID            string `json:"id,omitempty"` // assigned when empty
	Type          string `json:"type"`
	ParentID      string `json:"parent_id,omitempty"`
	InitialIntent string `json:"initial_intent,omitempty"`
}

// RegisterAgent creates an agent (or reuses an existing one with the
// same id) and opens a fresh session for it. Subagents must reference
// an existing parent agent.
func (s *Store) RegisterAgent(p RegisterAgentParams) (*Agent, *Session, error) {
	typ := p.Type
	if typ != AgentSubagent {
		typ = AgentMain
	}
	if typ == AgentSubagent {
		if p.ParentID == "" {
			return nil, nil, fmt.Errorf("memory: register subagent: parent_id required: %w", ErrPrecondition)
		}
		if _, err := s.GetAgent(p.ParentID); err != nil {
			return nil, nil, fmt.Errorf("memory: register subagent: parent %s: %w", p.ParentID, ErrPrecondition)
		}
	}

	id := p.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := nowMillis()

	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO agents (id, project_id, type, parent_id, last_active_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, s.cfg.ProjectID, typ, nullableString(p.ParentID), now, now,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("memory: register agent: %w", err)
	}

	sess, err := s.openSession(id, p.InitialIntent)
	if err != nil {
		return nil, nil, err
	}

	agent, err := s.GetAgent(id)
	if err != nil {
		return nil, nil, err
	}
	return agent, sess, nil
}

// ResumeAgent reopens activity for a known agent: updates its activity
// timestamp and starts a new session. Unknown agents are a not-found
// error, not an implicit registration.
func (s *Store) ResumeAgent(id, initialIntent string) (*Agent, *Session, error) {
	if _, err := s.GetAgent(id); err != nil {
		return nil, nil, err
	}

	sess, err := s.openSession(id, initialIntent)
	if err != nil {
		return nil, nil, err
	}

	agent, err := s.GetAgent(id)
	if err != nil {
		return nil, nil, err
	}
	return agent, sess, nil
}

// openSession creates a session row and bumps the agent's session and
// activity counters.
func (s *Store) openSession(agentID, initialIntent string) (*Session, error) {
	now := nowMillis()
	sessID := uuid.New().String()

	_, err := s.db.Exec(
		`INSERT INTO sessions (id, agent_id, project_id, started_at, initial_intent)
		 VALUES (?, ?, ?, ?, ?)`,
		sessID, agentID, s.cfg.ProjectID, now, nullableString(initialIntent),
	)
	if err != nil {
		return nil, fmt.Errorf("memory: open session: %w", err)
	}

	_, err = s.db.Exec(
		`UPDATE agents SET session_count = session_count + 1, last_active_at = ? WHERE id = ? AND project_id = ?`,
		now, agentID, s.cfg.ProjectID,
	)
	if err != nil {
		return nil, fmt.Errorf("memory: open session: touch agent: %w", err)
	}

	return s.GetSession(sessID)
}

// GetAgent retrieves an agent by id within the current project.
func (s *Store) GetAgent(id string) (*Agent, error) {
	row := s.db.QueryRow(
		`SELECT id, project_id, type, parent_id, memory_count, success_count, failure_count,
		        session_count, last_active_at, created_at
		 FROM agents WHERE id = ? AND project_id = ?`,
		id, s.cfg.ProjectID,
	)
	var a Agent
	var parent *string
	err := row.Scan(
		&a.ID, &a.ProjectID, &a.Type, &parent,
		&a.MemoryCount, &a.SuccessCount, &a.FailureCount, &a.SessionCount,
		&a.LastActiveAt, &a.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("memory: agent %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("memory: get agent: %w", err)
	}
	a.ParentID = derefString(parent)
	return &a, nil
}

// ListAgents returns all agents in the current project, most recently
// active first.
func (s *Store) ListAgents() ([]Agent, error) {
	rows, err := s.db.Query(
		`SELECT id, project_id, type, parent_id, memory_count, success_count, failure_count,
		        session_count, last_active_at, created_at
		 FROM agents WHERE project_id = ? ORDER BY last_active_at DESC`,
		s.cfg.ProjectID,
	)
	if err != nil {
		return nil, fmt.Errorf("memory: list agents: %w", err)
	}
	defer rows.Close()

	var result []Agent
	for rows.Next() {
		var a Agent
		var parent *string
		if err := rows.Scan(
			&a.ID, &a.ProjectID, &a.Type, &parent,
			&a.MemoryCount, &a.SuccessCount, &a.FailureCount, &a.SessionCount,
			&a.LastActiveAt, &a.CreatedAt,
		); err != nil {
			return nil, err
		}
		a.ParentID = derefString(parent)
		result = append(result, a)
	}
	return result, rows.Err()
}

// GetSession retrieves a session by id within the current project.
func (s *Store) GetSession(id string) (*Session, error) {
	row := s.db.QueryRow(
		`SELECT id, agent_id, project_id, started_at, ended_at, memory_count, query_count,
		        initial_intent, final_outcome
		 FROM sessions WHERE id = ? AND project_id = ?`,
		id, s.cfg.ProjectID,
	)
	var sess Session
	var ended *int64
	var intent, outcome *string
	err := row.Scan(
		&sess.ID, &sess.AgentID, &sess.ProjectID, &sess.StartedAt, &ended,
		&sess.MemoryCount, &sess.QueryCount, &intent, &outcome,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("memory: session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("memory: get session: %w", err)
	}
	sess.EndedAt = derefInt64(ended)
	sess.InitialIntent = derefString(intent)
	sess.FinalOutcome = derefString(outcome)
	return &sess, nil
}

// EndSession marks a session as completed with an optional outcome
// summary. A session that already ended is left untouched.
func (s *Store) EndSession(id, finalOutcome string) (*Session, error) {
	sess, err := s.GetSession(id)
	if err != nil {
		return nil, err
	}
	if sess.EndedAt != 0 {
		return sess, nil
	}

	_, err = s.db.Exec(
		`UPDATE sessions SET ended_at = ?, final_outcome = ? WHERE id = ? AND ended_at IS NULL`,
		nowMillis(), nullableString(finalOutcome), id,
	)
	if err != nil {
		return nil, fmt.Errorf("memory: end session: %w", err)
	}
	return s.GetSession(id)
}

// bumpSessionQueries increments a session's query counter. Called once
// per recall, regardless of how many memories matched. Missing or
// empty session ids are ignored.
func (s *Store) bumpSessionQueries(sessionID string) {
	if sessionID == "" {
		return
	}
	_, _ = s.db.Exec(
		`UPDATE sessions SET query_count = query_count + 1 WHERE id = ? AND project_id = ?`,
		sessionID, s.cfg.ProjectID,
	)
}
