package memory

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Notification types.
const (
	NotifyFileContext     = "file_context"
	NotifyConflictWarning = "conflict_warning"
)

// TriggerConfig holds the notification policy knobs.
type TriggerConfig struct {
	Enabled         bool
	Cooldown        time.Duration // per-file quiet period
	MaxPerMinute    int           // process-wide notification budget
	MaxMemoryAge    time.Duration // memories older than this never trigger
	MinMemories     int           // suppress below this many qualifying memories
	IncludeFailures bool          // when false, failed memories don't count
}

// DefaultTriggerConfig returns the default notification policy.
func DefaultTriggerConfig() TriggerConfig {
	return TriggerConfig{
		Enabled:         true,
		Cooldown:        5 * time.Minute,
		MaxPerMinute:    5,
		MaxMemoryAge:    30 * 24 * time.Hour,
		MinMemories:     1,
		IncludeFailures: true,
	}
}

// MemoryHint is a reduced memory reference carried in a notification.
type MemoryHint struct {
	ID      string `json:"id"`
	AgentID string `json:"agent_id"`
	Age     string `json:"age"`
	Goal    string `json:"goal"`
	Success bool   `json:"success"`
}

// Notification is a proactive surfacing of relevant history.
type Notification struct {
	Type     string       `json:"type"`
	Message  string       `json:"message"`
	Memories []MemoryHint `json:"memories,omitempty"`
	Hint     string       `json:"hint,omitempty"`
}

// TriggerEngine decides when touching a file or announcing an action
// should surface past memories. All of its policy state — the per-file
// cooldown map and the sliding one-minute counter — lives on the
// instance, in process memory only: it resets on restart and is not
// shared across processes. One engine per store; independent engines
// never interfere.
type TriggerEngine struct {
	store     *Store
	cfg       TriggerConfig
	cooldowns map[string]time.Time
	fired     []time.Time
	now       func() time.Time // test injection
}

// NewTriggerEngine creates a trigger engine over the given store.
func NewTriggerEngine(store *Store, cfg TriggerConfig) *TriggerEngine {
	return &TriggerEngine{
		store:     store,
		cfg:       cfg,
		cooldowns: make(map[string]time.Time),
		now:       time.Now,
	}
}

// FileTouch reports relevant history for a file the agent is touching.
// Returns nil (no notification) when triggers are disabled, the file
// is on cooldown, the per-minute budget is exhausted, or too few
// qualifying memories exist. A returned notification arms the file's
// cooldown and consumes budget.
func (t *TriggerEngine) FileTouch(path string) (*Notification, error) {
	if !t.cfg.Enabled || path == "" {
		return nil, nil
	}
	now := t.now()
	if until, ok := t.cooldowns[path]; ok && now.Before(until) {
		return nil, nil
	}
	if t.budgetExhausted(now) {
		return nil, nil
	}

	memories, err := t.store.MemoriesByFile(path, 50)
	if err != nil {
		return nil, err
	}

	cutoff := now.Add(-t.cfg.MaxMemoryAge).UnixMilli()
	var qualifying []*Memory
	failures := 0
	for _, m := range memories {
		if m.CreatedAt < cutoff {
			continue
		}
		if !m.Outcome.Success {
			if !t.cfg.IncludeFailures {
				continue
			}
			failures++
		}
		qualifying = append(qualifying, m)
	}
	if len(qualifying) < t.cfg.MinMemories {
		return nil, nil
	}

	t.cooldowns[path] = now.Add(t.cfg.Cooldown)
	t.fired = append(t.fired, now)

	hints := make([]MemoryHint, 0, 3)
	for _, m := range firstMemories(qualifying, 3) {
		hints = append(hints, MemoryHint{
			ID:      m.ID,
			AgentID: m.AgentID,
			Age:     relativeAge(m.CreatedAt, now),
			Goal:    m.Intent.Goal,
			Success: m.Outcome.Success,
		})
	}

	base := filepath.Base(path)
	msg := fmt.Sprintf("%d past memories involve %s", len(qualifying), base)
	if len(qualifying) == 1 {
		msg = fmt.Sprintf("1 past memory involves %s", base)
	}
	switch {
	case failures == 1:
		msg += " (1 failure)"
	case failures > 1:
		msg += fmt.Sprintf(" (%d failures)", failures)
	}

	return &Notification{
		Type:     NotifyFileContext,
		Message:  msg,
		Memories: hints,
		Hint:     fmt.Sprintf("Use memory_recall with file=%q for details.", path),
	}, nil
}

// ConflictCheck warns when an intended action on a file resembles a
// past failure on that file. It applies no cooldown and consumes no
// per-minute budget — conflict warnings follow an independent policy.
func (t *TriggerEngine) ConflictCheck(path, intendedAction string) (*Notification, error) {
	if !t.cfg.Enabled || path == "" || intendedAction == "" {
		return nil, nil
	}

	failed := false
	failures, err := t.store.QueryMemories(MemoryFilter{File: path, Success: &failed, Limit: 50})
	if err != nil {
		return nil, err
	}
	if len(failures) == 0 {
		return nil, nil
	}

	var best *Memory
	bestScore := 0.0
	for _, m := range failures {
		match, score := goalMatches(m.Intent.Goal, intendedAction)
		if !match {
			continue
		}
		if best == nil || score > bestScore || (score == bestScore && m.CreatedAt > best.CreatedAt) {
			best = m
			bestScore = score
		}
	}
	if best == nil {
		return nil, nil
	}

	reason := best.Outcome.FailureReason
	if reason == "" {
		reason = best.Outcome.Summary
	}
	return &Notification{
		Type: NotifyConflictWarning,
		Message: fmt.Sprintf("A similar attempt on %s failed before: %q. Recall memory %s before proceeding.",
			filepath.Base(path), Truncate(reason, 120), best.ID),
		Memories: []MemoryHint{{
			ID:      best.ID,
			AgentID: best.AgentID,
			Age:     relativeAge(best.CreatedAt, t.now()),
			Goal:    best.Intent.Goal,
			Success: false,
		}},
		Hint: fmt.Sprintf("Use memory_recall with memory_id=%q for the full failure record.", best.ID),
	}, nil
}

// budgetExhausted prunes the sliding window and reports whether the
// per-minute budget is used up.
func (t *TriggerEngine) budgetExhausted(now time.Time) bool {
	cutoff := now.Add(-time.Minute)
	kept := t.fired[:0]
	for _, ts := range t.fired {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	t.fired = kept
	return t.cfg.MaxPerMinute > 0 && len(t.fired) >= t.cfg.MaxPerMinute
}

func firstMemories(in []*Memory, n int) []*Memory {
	if len(in) <= n {
		return in
	}
	return in[:n]
}

// ─── Matching heuristics ────────────────────────────────────────────────────

// overlapThreshold is the word-overlap ratio above which an intended
// action is considered to match a past goal.
const overlapThreshold = 0.3

// goalMatches tests whether an intended action resembles a stored
// goal: case-folded substring containment in either direction, or a
// word-overlap ratio above the threshold. The returned score orders
// competing matches (containment counts as a full match).
func goalMatches(goal, action string) (bool, float64) {
	g := strings.ToLower(strings.TrimSpace(goal))
	a := strings.ToLower(strings.TrimSpace(action))
	if g == "" || a == "" {
		return false, 0
	}
	if strings.Contains(g, a) || strings.Contains(a, g) {
		return true, 1.0
	}
	ratio := wordOverlap(g, a)
	return ratio > overlapThreshold, ratio
}

// wordOverlap computes the share of long words (more than 3
// characters, case-folded) the two texts have in common, divided by
// the larger token-set size.
func wordOverlap(a, b string) float64 {
	setA := longWords(a)
	setB := longWords(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	shared := 0
	for w := range setA {
		if setB[w] {
			shared++
		}
	}
	larger := len(setA)
	if len(setB) > larger {
		larger = len(setB)
	}
	return float64(shared) / float64(larger)
}

func longWords(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,;:!?\"'()[]")
		if len(w) > 3 {
			set[w] = true
		}
	}
	return set
}

// relativeAge buckets a timestamp into a human age label relative to
// now: "just now", "Nh ago", "yesterday", "Nd ago", "Nw ago".
func relativeAge(createdAt int64, now time.Time) string {
	elapsed := now.Sub(time.UnixMilli(createdAt))
	switch {
	case elapsed < time.Hour:
		return "just now"
	case elapsed < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(elapsed.Hours()))
	case elapsed < 48*time.Hour:
		return "yesterday"
	case elapsed < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(elapsed.Hours()/24))
	default:
		return fmt.Sprintf("%dw ago", int(elapsed.Hours()/(24*7)))
	}
}
