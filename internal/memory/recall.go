package memory

import (
	"context"
	"fmt"
)

// Retrieval strategy names, in cascade precision order.
const (
	StrategyDirect     = "direct"
	StrategyFile       = "file"
	StrategySemantic   = "semantic"
	StrategyStructured = "structured"
)

// Strategy confidence constants. Semantic confidence is computed from
// match similarity instead.
const (
	confidenceDirect     = 1.0
	confidenceFile       = 0.95
	confidenceStructured = 0.5

	// semanticFloor is the minimum cosine similarity a semantic match
	// must reach to be returned.
	semanticFloor = 0.4
)

// RecallParams holds the input for a recall query. The populated
// fields select the strategy: a memory id wins over a file path, which
// wins over a free-text query, which wins over pure structured filters.
type RecallParams struct {
	MemoryID     string   `json:"memory_id,omitempty"`
	File         string   `json:"file,omitempty"`
	Query        string   `json:"query,omitempty"`
	AgentID      string   `json:"agent_id,omitempty"`
	TaskType     string   `json:"task_type,omitempty"`
	Success      *bool    `json:"success,omitempty"`
	Since        int64    `json:"since,omitempty"`
	Until        int64    `json:"until,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	Depth        string   `json:"depth,omitempty"`
	IncludeLinks bool     `json:"include_links,omitempty"`
	Limit        int      `json:"limit,omitempty"`

	// SessionID is the calling session; its query counter increments
	// once per recall regardless of how many memories matched.
	SessionID string `json:"session_id,omitempty"`
}

// RecallResult is the outcome of one recall: which strategy answered,
// how confident it is, and the memories projected to the requested
// depth. TokenEstimate is a budget signal, never a truncation bound.
type RecallResult struct {
	Strategy      string       `json:"strategy"`
	Confidence    float64      `json:"confidence"`
	Memories      []MemoryView `json:"memories"`
	TokenEstimate int          `json:"token_estimate"`
}

// Recall answers a "what happened" query through the strategy cascade:
// direct id fetch, file-index lookup, semantic ranking, then the
// structured filter fallback. The first applicable strategy wins;
// results are never merged across strategies. Every returned memory
// has its access counter bumped as an observable side effect.
func (s *Store) Recall(ctx context.Context, p RecallParams) (*RecallResult, error) {
	s.bumpSessionQueries(p.SessionID)
	depth := ParseDepth(p.Depth)

	var (
		strategy   string
		confidence float64
		memories   []*Memory
	)

	switch {
	case p.MemoryID != "":
		m, err := s.GetMemory(p.MemoryID)
		if err != nil {
			return nil, err
		}
		strategy = StrategyDirect
		confidence = confidenceDirect
		memories = []*Memory{m}

	case p.File != "":
		found, err := s.QueryMemories(MemoryFilter{
			File:     p.File,
			AgentID:  p.AgentID,
			TaskType: p.TaskType,
			Success:  p.Success,
			Since:    p.Since,
			Until:    p.Until,
			Tags:     p.Tags,
			Limit:    p.Limit,
		})
		if err != nil {
			return nil, err
		}
		strategy = StrategyFile
		confidence = confidenceFile
		memories = found

	case p.Query != "" && s.embedder.Enabled():
		found, meanSim, err := s.semanticRecall(ctx, p)
		if err != nil {
			return nil, err
		}
		strategy = StrategySemantic
		confidence = meanSim
		memories = found

	default:
		found, err := s.QueryMemories(MemoryFilter{
			AgentID:  p.AgentID,
			TaskType: p.TaskType,
			Success:  p.Success,
			Since:    p.Since,
			Until:    p.Until,
			Tags:     p.Tags,
			Limit:    p.Limit,
		})
		if err != nil {
			return nil, err
		}
		strategy = StrategyStructured
		confidence = confidenceStructured
		memories = found
	}

	if len(memories) == 0 {
		confidence = 0
	}

	ids := make([]string, len(memories))
	views := make([]MemoryView, len(memories))
	for i, m := range memories {
		ids[i] = m.ID
		views[i] = s.projectWithLinks(m, depth, p.IncludeLinks)
	}
	s.touchMemories(ids)

	return &RecallResult{
		Strategy:      strategy,
		Confidence:    confidence,
		Memories:      views,
		TokenEstimate: EstimateTokens(depth, len(views)),
	}, nil
}

// semanticRecall embeds the query, ranks it against every stored
// vector, and loads the full rows for matches at or above the floor.
// Returns the matched memories and the mean similarity. A provider
// that disables itself mid-call yields an empty result, which Recall
// reports as semantic with confidence 0.
func (s *Store) semanticRecall(ctx context.Context, p RecallParams) ([]*Memory, float64, error) {
	qvec := s.embedder.Embed(ctx, p.Query)
	if qvec == nil {
		return nil, 0, nil
	}

	candidates, err := s.MemoriesWithEmbeddings(p.Success)
	if err != nil {
		return nil, 0, err
	}

	limit := p.Limit
	if limit <= 0 {
		limit = s.cfg.MaxRecallResults
	}
	matches := FindSimilar(qvec, candidates, limit, semanticFloor)
	if len(matches) == 0 {
		return nil, 0, nil
	}

	var total float64
	memories := make([]*Memory, 0, len(matches))
	for _, match := range matches {
		m, err := s.GetMemory(match.ID)
		if err != nil {
			return nil, 0, fmt.Errorf("memory: semantic recall: load %s: %w", match.ID, err)
		}
		memories = append(memories, m)
		total += match.Similarity
	}
	return memories, total / float64(len(matches)), nil
}
