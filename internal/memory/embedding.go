package memory

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"

	chromem "github.com/philippgille/chromem-go"
)

// ErrDimensionMismatch reports a cosine comparison between vectors of
// different lengths.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// EmbeddingConfig holds embedding provider configuration. The backend
// is any OpenAI-compatible embeddings endpoint.
type EmbeddingConfig struct {
	APIKey  string
	BaseURL string // empty uses the OpenAI API
	Model   string
	Dim     int
}

// EmbeddingProvider turns text into fixed-dimension vectors. It is a
// best-effort accelerator for semantic recall: constructed without
// credentials it is disabled from the start, and the first call
// failure disables it for the remainder of the process. Callers never
// see an error from Embed — a nil vector means "no embedding" and
// retrieval degrades to the non-semantic strategies.
type EmbeddingProvider struct {
	fn       chromem.EmbeddingFunc
	dim      int
	disabled bool
}

// NewEmbeddingProvider creates a provider backed by an
// OpenAI-compatible embeddings API via chromem-go. Without an API key
// the provider starts disabled.
func NewEmbeddingProvider(cfg EmbeddingConfig) *EmbeddingProvider {
	if cfg.Model == "" {
		cfg.Model = string(chromem.EmbeddingModelOpenAI3Small)
	}
	if cfg.Dim <= 0 {
		cfg.Dim = 1536
	}
	p := &EmbeddingProvider{dim: cfg.Dim}
	if cfg.APIKey == "" {
		p.disabled = true
		return p
	}
	if cfg.BaseURL != "" {
		normalized := true
		p.fn = chromem.NewEmbeddingFuncOpenAICompat(cfg.BaseURL, cfg.APIKey, cfg.Model, &normalized)
	} else {
		p.fn = chromem.NewEmbeddingFuncOpenAI(cfg.APIKey, chromem.EmbeddingModelOpenAI(cfg.Model))
	}
	return p
}

// NewEmbeddingProviderFunc creates a provider from a raw embedding
// function. Used by tests to inject deterministic embedders.
func NewEmbeddingProviderFunc(fn chromem.EmbeddingFunc, dim int) *EmbeddingProvider {
	return &EmbeddingProvider{fn: fn, dim: dim}
}

// Enabled reports whether the provider can still embed.
func (p *EmbeddingProvider) Enabled() bool {
	return p != nil && !p.disabled && p.fn != nil
}

// Dim returns the configured vector dimension.
func (p *EmbeddingProvider) Dim() int {
	return p.dim
}

// Embed converts text to a vector, or nil when the provider is
// disabled or the call fails. A failed call permanently disables the
// provider — no retries.
func (p *EmbeddingProvider) Embed(ctx context.Context, text string) []float32 {
	if !p.Enabled() || text == "" {
		return nil
	}
	vec, err := p.fn(ctx, text)
	if err != nil {
		p.disabled = true
		return nil
	}
	return vec
}

// EmbedBatch embeds several texts. Entries for failed or disabled
// calls are nil.
func (p *EmbeddingProvider) EmbedBatch(ctx context.Context, texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.Embed(ctx, t)
	}
	return out
}

// CosineSimilarity computes the cosine of the angle between two
// vectors. Comparing vectors of different lengths is an error.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("memory: cosine %d vs %d: %w", len(a), len(b), ErrDimensionMismatch)
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// EmbeddedMemory pairs a stored vector with enough denormalized fields
// to rank and filter without a second fetch.
type EmbeddedMemory struct {
	ID        string
	AgentID   string
	CreatedAt int64
	Goal      string
	TaskType  string
	Success   bool
	Summary   string
	Embedding []float32
}

// SimilarMatch is one ranked semantic search hit.
type SimilarMatch struct {
	EmbeddedMemory
	Similarity float64
}

// FindSimilar ranks candidates against the query vector, drops matches
// below minSimilarity, and caps the result at topK. Candidates with a
// mismatched dimension are skipped rather than failing the search.
func FindSimilar(query []float32, candidates []EmbeddedMemory, topK int, minSimilarity float64) []SimilarMatch {
	var matches []SimilarMatch
	for _, c := range candidates {
		sim, err := CosineSimilarity(query, c.Embedding)
		if err != nil || sim < minSimilarity {
			continue
		}
		matches = append(matches, SimilarMatch{EmbeddedMemory: c, Similarity: sim})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}

// ─── Vector codec ────────────────────────────────────────────────────────────

// encodeEmbedding converts a vector to a little-endian float32 blob.
// Nil and empty vectors become a NULL column.
func encodeEmbedding(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	data := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(data[i*4:i*4+4], math.Float32bits(v))
	}
	return data
}

// decodeEmbedding converts a little-endian byte slice to []float32.
// Each 4 bytes = one LE float32; trailing partial chunks are dropped.
func decodeEmbedding(data []byte) []float32 {
	if len(data) < 4 {
		return nil
	}
	n := len(data) / 4
	result := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(data[i*4 : i*4+4])
		result[i] = math.Float32frombits(bits)
	}
	return result
}

// MemoriesWithEmbeddings returns every memory in the project that has
// a stored vector, with the decoded vector and the denormalized fields
// semantic recall needs. An optional success filter is applied in SQL.
func (s *Store) MemoriesWithEmbeddings(success *bool) ([]EmbeddedMemory, error) {
	query := `SELECT id, agent_id, created_at, intent_goal, intent_type, outcome_success, outcome_summary, embedding
		FROM memories WHERE project_id = ? AND embedding IS NOT NULL`
	args := []any{s.cfg.ProjectID}
	if success != nil {
		query += ` AND outcome_success = ?`
		args = append(args, boolToInt(*success))
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("memory: memories with embeddings: %w", err)
	}
	defer rows.Close()

	var result []EmbeddedMemory
	for rows.Next() {
		var em EmbeddedMemory
		var successInt int
		var blob []byte
		if err := rows.Scan(&em.ID, &em.AgentID, &em.CreatedAt, &em.Goal, &em.TaskType, &successInt, &em.Summary, &blob); err != nil {
			return nil, err
		}
		em.Success = successInt != 0
		em.Embedding = decodeEmbedding(blob)
		result = append(result, em)
	}
	return result, rows.Err()
}
