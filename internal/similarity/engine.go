package similarity

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/orgscan/backend/internal/metrics"
	"github.com/orgscan/backend/internal/storage/models"
	"github.com/orgscan/backend/pkg/logger"
	"github.com/orgscan/backend/pkg/textutil"
)

// Risk tier boundaries on the renormalized similarity score.
const (
	highSimilarityThreshold   = 0.85
	mediumSimilarityThreshold = 0.7
)

// Embedder produces the document embedding. Ready reports whether the
// provider is usable at all; a not-ready embedder skips the whole
// similarity stage.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	Ready() bool
}

// EmbeddingCache is an optional read-through cache keyed by text hash.
type EmbeddingCache interface {
	GetEmbedding(ctx context.Context, key string) ([]float64, bool, error)
	SetEmbedding(ctx context.Context, key string, embedding []float64) error
}

// BestMatch is the raw nearest neighbor an Index found.
type BestMatch struct {
	ID       string
	Score    float64
	Rejected bool
}

// Index is the historical-corpus search contract. The default
// implementation scans the record store; an ANN-backed implementation
// can substitute without touching the engine.
type Index interface {
	Add(ctx context.Context, id string, embedding []float64, rejected bool) error
	MaxSimilarity(ctx context.Context, embedding []float64, excludeID string) (BestMatch, error)
	MarkRejected(ctx context.Context, id string) error
}

// Match is the engine's tiered verdict for a submission.
type Match struct {
	Score float64
	Risk  models.RiskLevel
	// RejectedMatch is set when the closest historical record was
	// itself rejected and the similarity exceeds the HIGH threshold.
	RejectedMatch bool
}

type Engine struct {
	embedder Embedder
	index    Index
	cache    EmbeddingCache
	maxChars int
}

func NewEngine(embedder Embedder, index Index, cache EmbeddingCache, maxChars int) *Engine {
	if maxChars <= 0 {
		maxChars = 2000
	}
	return &Engine{
		embedder: embedder,
		index:    index,
		cache:    cache,
		maxChars: maxChars,
	}
}

func (e *Engine) Ready() bool {
	return e.embedder != nil && e.embedder.Ready() && e.index != nil
}

// Embed generates the embedding for text, bounded to a fixed prefix
// so a pathological document can't blow up provider cost.
func (e *Engine) Embed(ctx context.Context, text string) ([]float64, error) {
	if !e.Ready() {
		return nil, fmt.Errorf("similarity engine not ready")
	}

	truncated := textutil.Truncate(text, e.maxChars)
	key := textutil.Hash(truncated)

	if e.cache != nil {
		if embedding, ok, err := e.cache.GetEmbedding(ctx, key); err == nil && ok {
			logger.Debug("Embedding cache hit", zap.String("key", key))
			metrics.CacheHits.WithLabelValues("embedding").Inc()
			return embedding, nil
		}
	}

	embedding, err := e.embedder.Embed(ctx, truncated)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}

	if e.cache != nil {
		if err := e.cache.SetEmbedding(ctx, key, embedding); err != nil {
			logger.Warn("Failed to cache embedding", zap.Error(err))
		}
	}

	return embedding, nil
}

// FindMaxSimilarity searches the historical corpus for the closest
// prior submission and tiers the result.
func (e *Engine) FindMaxSimilarity(ctx context.Context, embedding []float64, excludeID string) (Match, error) {
	if len(embedding) == 0 {
		return Match{Risk: models.RiskLow}, nil
	}

	best, err := e.index.MaxSimilarity(ctx, embedding, excludeID)
	if err != nil {
		return Match{Risk: models.RiskLow}, fmt.Errorf("failed to search similarity index: %w", err)
	}

	match := Match{
		Score:         best.Score,
		Risk:          RiskForScore(best.Score),
		RejectedMatch: best.Rejected && best.Score > highSimilarityThreshold,
	}

	logger.Info("Similarity search completed",
		zap.Float64("max_similarity", match.Score),
		zap.String("risk", string(match.Risk)),
		zap.Bool("rejected_match", match.RejectedMatch),
	)

	return match, nil
}

func RiskForScore(score float64) models.RiskLevel {
	switch {
	case score > highSimilarityThreshold:
		return models.RiskHigh
	case score > mediumSimilarityThreshold:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

// Cosine computes cosine similarity renormalized from [-1,1] to
// [0,1]. Empty or dimension-mismatched vectors score 0; a mismatch is
// logged since it means two incompatible embedding models met.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(a) != len(b) {
		logger.Warn("Vector dimension mismatch",
			zap.Int("len_a", len(a)),
			zap.Int("len_b", len(b)),
		)
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	magnitude := math.Sqrt(normA) * math.Sqrt(normB)
	if magnitude == 0 {
		return 0
	}

	cos := dot / magnitude
	renormalized := (cos + 1) / 2
	return math.Max(0, math.Min(1, renormalized))
}
