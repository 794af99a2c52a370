package memory

import "fmt"

// Trace directions.
const (
	DirectionCauses  = "causes"
	DirectionEffects = "effects"
	DirectionBoth    = "both"
)

// DefaultTraceDepth is the hop bound applied when the caller does not
// supply one.
const DefaultTraceDepth = 3

// TraceEntry is one memory reached during a causal walk. Relationship
// is caused_by when walking toward causes and led_to when walking
// toward effects; Distance is the hop count from the origin.
type TraceEntry struct {
	Memory       MemoryView `json:"memory"`
	Relationship string     `json:"relationship"`
	Distance     int        `json:"distance"`
}

// TraceResult holds a full causal trace: the origin (fully projected),
// the ordered chain of reached memories, and the total node count
// including the origin.
type TraceResult struct {
	Origin     MemoryView   `json:"origin"`
	Chain      []TraceEntry `json:"chain"`
	TotalNodes int          `json:"total_nodes"`
}

// TraceParams holds the input for a causal trace.
type TraceParams struct {
	MemoryID  string `json:"memory_id"`
	Direction string `json:"direction,omitempty"` // causes (default), effects, both
	MaxDepth  int    `json:"max_depth,omitempty"`
	Depth     string `json:"depth,omitempty"` // projection depth for chain entries
}

// Trace walks the causal graph from an origin memory. "causes" follows
// outgoing caused_by edges, "effects" follows incoming ones (presented
// as led_to), and "both" runs the two walks from the origin over a
// shared visited set, so a node reached in one direction is never
// revisited by the other. The walk is iterative with an explicit queue
// — mixed edge types can form cycles even though caused_by chains are
// intended to be acyclic, and the visited set guarantees termination.
func (s *Store) Trace(p TraceParams) (*TraceResult, error) {
	origin, err := s.GetMemory(p.MemoryID)
	if err != nil {
		return nil, err
	}

	maxDepth := p.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultTraceDepth
	}
	direction := p.Direction
	if direction == "" {
		direction = DirectionCauses
	}
	projDepth := ParseDepth(p.Depth)

	visited := map[string]bool{origin.ID: true}
	var chain []TraceEntry

	if direction == DirectionCauses || direction == DirectionBoth {
		entries, err := s.walkCausal(origin.ID, maxDepth, projDepth, visited, false)
		if err != nil {
			return nil, err
		}
		chain = append(chain, entries...)
	}
	if direction == DirectionEffects || direction == DirectionBoth {
		entries, err := s.walkCausal(origin.ID, maxDepth, projDepth, visited, true)
		if err != nil {
			return nil, err
		}
		chain = append(chain, entries...)
	}

	return &TraceResult{
		Origin:     s.projectWithLinks(origin, DepthComplete, true),
		Chain:      chain,
		TotalNodes: len(chain) + 1,
	}, nil
}

// walkCausal runs one directional traversal. When incoming is false it
// follows outgoing caused_by edges (toward causes); when true it
// follows incoming caused_by edges (toward effects, tagged led_to).
func (s *Store) walkCausal(originID string, maxDepth int, projDepth string, visited map[string]bool, incoming bool) ([]TraceEntry, error) {
	type queueItem struct {
		id    string
		depth int
	}

	relationship := LinkCausedBy
	if incoming {
		relationship = LinkLedTo
	}

	queue := []queueItem{{id: originID, depth: 1}}
	var entries []TraceEntry

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if current.depth > maxDepth {
			continue
		}

		var links []MemoryLink
		var err error
		if incoming {
			links, err = s.GetLinksTo(current.id, LinkCausedBy)
		} else {
			links, err = s.GetLinksFrom(current.id, LinkCausedBy)
		}
		if err != nil {
			return nil, fmt.Errorf("memory: trace from %s: %w", current.id, err)
		}

		for _, link := range links {
			nextID := link.TargetID
			if incoming {
				nextID = link.SourceID
			}
			if visited[nextID] {
				continue
			}
			visited[nextID] = true

			m, err := s.GetMemory(nextID)
			if err != nil {
				// edge to a row deleted between queries; skip
				continue
			}
			entries = append(entries, TraceEntry{
				Memory:       Project(m, projDepth),
				Relationship: relationship,
				Distance:     current.depth,
			})
			queue = append(queue, queueItem{id: nextID, depth: current.depth + 1})
		}
	}
	return entries, nil
}
