package memory

// Agent types.
const (
	AgentMain     = "main"
	AgentSubagent = "subagent"
)

// Link types. led_to is virtual: it is accepted on write but stored as
// the inverse caused_by edge, and reappears on read when a caused_by
// edge points at the memory being inspected.
const (
	LinkCausedBy  = "caused_by"
	LinkLedTo     = "led_to"
	LinkRelatedTo = "related_to"
	LinkSupersede = "supersedes"
	LinkBlockedBy = "blocked_by"
)

// Chapter origins.
const (
	OriginManual = "manual"
	OriginAuto   = "auto"
)

// Agent is a registered actor that stores and recalls memories.
type Agent struct {
	ID           string `json:"id"`
	ProjectID    string `json:"project_id"`
	Type         string `json:"type"`
	ParentID     string `json:"parent_id,omitempty"`
	MemoryCount  int    `json:"memory_count"`
	SuccessCount int    `json:"success_count"`
	FailureCount int    `json:"failure_count"`
	SessionCount int    `json:"session_count"`
	LastActiveAt int64  `json:"last_active_at"`
	CreatedAt    int64  `json:"created_at"`
}

// Session is one continuous span of agent activity. EndedAt is zero
// while the session is open.
type Session struct {
	ID            string `json:"id"`
	AgentID       string `json:"agent_id"`
	ProjectID     string `json:"project_id"`
	StartedAt     int64  `json:"started_at"`
	EndedAt       int64  `json:"ended_at,omitempty"`
	MemoryCount   int    `json:"memory_count"`
	QueryCount    int    `json:"query_count"`
	InitialIntent string `json:"initial_intent,omitempty"`
	FinalOutcome  string `json:"final_outcome,omitempty"`
}

// Intent is what the agent set out to do.
type Intent struct {
	Goal        string   `json:"goal"`
	TaskType    string   `json:"task_type"`
	Context     string   `json:"context,omitempty"`
	Constraints []string `json:"constraints,omitempty"`
}

// Perception is what the agent observed while working.
type Perception struct {
	Observations  []string `json:"observations,omitempty"`
	RelevantFiles []string `json:"relevant_files,omitempty"`
	Patterns      []string `json:"patterns,omitempty"`
	Anomalies     []string `json:"anomalies,omitempty"`
}

// Reasoning is how the agent decided on its approach.
type Reasoning struct {
	Approach     string   `json:"approach"`
	Rationale    string   `json:"rationale,omitempty"`
	Alternatives []string `json:"alternatives,omitempty"`
	Assumptions  []string `json:"assumptions,omitempty"`
	Risks        []string `json:"risks,omitempty"`
}

// Action is one concrete step the agent took.
type Action struct {
	Type        string `json:"type"`
	File        string `json:"file,omitempty"`
	Description string `json:"description,omitempty"`
}

// Outcome is how the work ended.
type Outcome struct {
	Success         bool     `json:"success"`
	Summary         string   `json:"summary"`
	Learnings       []string `json:"learnings,omitempty"`
	FailureReason   string   `json:"failure_reason,omitempty"`
	FailureCategory string   `json:"failure_category,omitempty"`
	Verification    string   `json:"verification,omitempty"`
}

// Memory is one atomic record of agent work: an intent, optional
// perception and reasoning layers, the actions taken, and the outcome.
// The embedding never round-trips through JSON; it lives only in the
// database BLOB column.
type Memory struct {
	ID           string      `json:"id"`
	AgentID      string      `json:"agent_id"`
	ProjectID    string      `json:"project_id"`
	SessionID    string      `json:"session_id"`
	CreatedAt    int64       `json:"created_at"`
	Intent       Intent      `json:"intent"`
	Perception   *Perception `json:"perception,omitempty"`
	Reasoning    *Reasoning  `json:"reasoning,omitempty"`
	Actions      []Action    `json:"actions,omitempty"`
	Outcome      Outcome     `json:"outcome"`
	Tags         []string    `json:"tags,omitempty"`
	Importance   float64     `json:"importance"`
	AccessCount  int         `json:"access_count"`
	LastAccessed int64       `json:"last_accessed,omitempty"`
	Embedding    []float32   `json:"-"`
}

// MemoryLink is a directed typed edge between two memories.
type MemoryLink struct {
	SourceID  string `json:"source_id"`
	TargetID  string `json:"target_id"`
	LinkType  string `json:"link_type"`
	CreatedAt int64  `json:"created_at"`
}

// FileRef is one row of the file index that maps paths back to the
// memories that touched them.
type FileRef struct {
	MemoryID  string `json:"memory_id"`
	Path      string `json:"path"`
	Operation string `json:"operation,omitempty"`
}

// Chapter groups related memories into a narrative unit with derived
// summary, learnings, and topics.
type Chapter struct {
	ID          string   `json:"id"`
	ProjectID   string   `json:"project_id"`
	Title       string   `json:"title"`
	Summary     string   `json:"summary"`
	Learnings   []string `json:"learnings,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Topics      []string `json:"topics,omitempty"`
	StartTS     int64    `json:"start_ts"`
	EndTS       int64    `json:"end_ts"`
	Origin      string   `json:"origin"`
	MemoryCount int      `json:"memory_count"`
	CreatedAt   int64    `json:"created_at"`
}

// Wisdom is the top synthesis tier: cross-chapter insights, recurring
// patterns, and best practices.
type Wisdom struct {
	ID            string   `json:"id"`
	ProjectID     string   `json:"project_id"`
	Summary       string   `json:"summary"`
	Insights      []string `json:"insights,omitempty"`
	Patterns      []string `json:"patterns,omitempty"`
	BestPractices []string `json:"best_practices,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	StartTS       int64    `json:"start_ts"`
	EndTS         int64    `json:"end_ts"`
	ChapterCount  int      `json:"chapter_count"`
	CreatedAt     int64    `json:"created_at"`
}
