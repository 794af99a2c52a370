// depth.go provides the projection depths used across recall and trace
// tools.
//
// Five levels enable progressive disclosure, each a strict superset of
// the one before:
//   - summary: goal, task type, success flag, outcome summary
//   - outcome: adds learnings
//   - reasoning: adds the reasoning layer
//   - full: adds the perception layer (and links when requested)
//   - complete: adds the actions layer (and links when requested)
package memory

// Depth constants.
const (
	DepthSummary   = "summary"
	DepthOutcome   = "outcome"
	DepthReasoning = "reasoning"
	DepthFull      = "full"
	DepthComplete  = "complete"
)

// DepthValues returns the enum values for MCP tool definitions.
func DepthValues() []string {
	return []string{DepthSummary, DepthOutcome, DepthReasoning, DepthFull, DepthComplete}
}

// ParseDepth normalizes a depth string, defaulting to "summary" for
// empty or unrecognized values.
func ParseDepth(s string) string {
	switch s {
	case DepthOutcome, DepthReasoning, DepthFull, DepthComplete:
		return s
	default:
		return DepthSummary
	}
}

// depthRank orders depths for inclusion checks.
func depthRank(depth string) int {
	switch depth {
	case DepthOutcome:
		return 1
	case DepthReasoning:
		return 2
	case DepthFull:
		return 3
	case DepthComplete:
		return 4
	default:
		return 0
	}
}

// depthTokens is the deterministic per-memory token estimate at each
// depth. It is a caller-facing budget signal only, never used to
// truncate results.
var depthTokens = map[string]int{
	DepthSummary:   40,
	DepthOutcome:   90,
	DepthReasoning: 160,
	DepthFull:      260,
	DepthComplete:  360,
}

// EstimateTokens returns the token budget estimate for count memories
// projected at the given depth.
func EstimateTokens(depth string, count int) int {
	return depthTokens[ParseDepth(depth)] * count
}

// MemoryView is a memory projected to a caller-requested depth. Fields
// beyond the requested depth are left zero.
type MemoryView struct {
	ID             string       `json:"id"`
	AgentID        string       `json:"agent_id"`
	CreatedAt      int64        `json:"created_at"`
	Importance     float64      `json:"importance"`
	Tags           []string     `json:"tags,omitempty"`
	Goal           string       `json:"goal"`
	TaskType       string       `json:"task_type"`
	Success        bool         `json:"success"`
	OutcomeSummary string       `json:"outcome_summary"`
	Learnings      []string     `json:"learnings,omitempty"`
	Reasoning      *Reasoning   `json:"reasoning,omitempty"`
	Perception     *Perception  `json:"perception,omitempty"`
	Actions        []Action     `json:"actions,omitempty"`
	Links          []MemoryLink `json:"links,omitempty"`
}

// Project reduces a memory to the requested depth. Links are attached
// only at full or complete depth and only when the caller asked for
// them; the store lookup for links happens in projectWithLinks.
func Project(m *Memory, depth string) MemoryView {
	depth = ParseDepth(depth)
	rank := depthRank(depth)

	v := MemoryView{
		ID:             m.ID,
		AgentID:        m.AgentID,
		CreatedAt:      m.CreatedAt,
		Importance:     m.Importance,
		Tags:           m.Tags,
		Goal:           m.Intent.Goal,
		TaskType:       m.Intent.TaskType,
		Success:        m.Outcome.Success,
		OutcomeSummary: m.Outcome.Summary,
	}
	if rank >= depthRank(DepthOutcome) {
		v.Learnings = m.Outcome.Learnings
	}
	if rank >= depthRank(DepthReasoning) {
		v.Reasoning = m.Reasoning
	}
	if rank >= depthRank(DepthFull) {
		v.Perception = m.Perception
	}
	if rank >= depthRank(DepthComplete) {
		v.Actions = m.Actions
	}
	return v
}

// projectWithLinks projects a memory and, when includeLinks is set and
// the depth reaches full, attaches its link set.
func (s *Store) projectWithLinks(m *Memory, depth string, includeLinks bool) MemoryView {
	v := Project(m, depth)
	if includeLinks && depthRank(ParseDepth(depth)) >= depthRank(DepthFull) {
		if links, err := s.LinksFor(m.ID); err == nil {
			v.Links = links
		}
	}
	return v
}
