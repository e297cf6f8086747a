package similarity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orgscan/backend/internal/storage/models"
)

type stubEmbedder struct {
	embedding []float64
	err       error
	ready     bool
	calls     int
}

func (s *stubEmbedder) Embed(_ context.Context, _ string) ([]float64, error) {
	s.calls++
	return s.embedding, s.err
}

func (s *stubEmbedder) Ready() bool { return s.ready }

type stubIndex struct {
	best BestMatch
	err  error
}

func (s *stubIndex) Add(context.Context, string, []float64, bool) error { return nil }
func (s *stubIndex) MarkRejected(context.Context, string) error         { return nil }
func (s *stubIndex) MaxSimilarity(context.Context, []float64, string) (BestMatch, error) {
	return s.best, s.err
}

type memoryCache struct {
	entries map[string][]float64
	gets    int
	hits    int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string][]float64{}}
}

func (m *memoryCache) GetEmbedding(_ context.Context, key string) ([]float64, bool, error) {
	m.gets++
	embedding, ok := m.entries[key]
	if ok {
		m.hits++
	}
	return embedding, ok, nil
}

func (m *memoryCache) SetEmbedding(_ context.Context, key string, embedding []float64) error {
	m.entries[key] = embedding
	return nil
}

func TestCosine(t *testing.T) {
	a := []float64{1, 0, 0}
	b := []float64{0, 1, 0}

	assert.InDelta(t, 1.0, Cosine(a, a), 1e-9)
	assert.InDelta(t, 0.5, Cosine(a, b), 1e-9)
	assert.InDelta(t, 0.0, Cosine(a, []float64{-1, 0, 0}), 1e-9)
	assert.Equal(t, Cosine(a, b), Cosine(b, a))
}

func TestCosineDegenerateInputs(t *testing.T) {
	assert.Equal(t, 0.0, Cosine(nil, []float64{1}))
	assert.Equal(t, 0.0, Cosine([]float64{1}, nil))
	assert.Equal(t, 0.0, Cosine([]float64{1, 2}, []float64{1}))
	assert.Equal(t, 0.0, Cosine([]float64{0, 0}, []float64{1, 1}))
}

func TestRiskForScoreTiers(t *testing.T) {
	tests := []struct {
		score float64
		level models.RiskLevel
	}{
		{0.0, models.RiskLow},
		{0.7, models.RiskLow},
		{0.70001, models.RiskMedium},
		{0.85, models.RiskMedium},
		{0.85001, models.RiskHigh},
		{1.0, models.RiskHigh},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.level, RiskForScore(tt.score), "score %v", tt.score)
	}
}

func TestEmbedUsesCache(t *testing.T) {
	embedder := &stubEmbedder{embedding: []float64{0.1, 0.2}, ready: true}
	cache := newMemoryCache()
	engine := NewEngine(embedder, &stubIndex{}, cache, 2000)

	first, err := engine.Embed(context.Background(), "certificate text")
	require.NoError(t, err)

	second, err := engine.Embed(context.Background(), "certificate text")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, embedder.calls)
	assert.Equal(t, 1, cache.hits)
}

func TestEmbedTruncatesBeforeHashing(t *testing.T) {
	embedder := &stubEmbedder{embedding: []float64{0.1}, ready: true}
	cache := newMemoryCache()
	engine := NewEngine(embedder, &stubIndex{}, cache, 10)

	_, err := engine.Embed(context.Background(), "0123456789 first tail")
	require.NoError(t, err)

	// Same prefix, different tail: must hit the cache entry.
	_, err = engine.Embed(context.Background(), "0123456789 second tail")
	require.NoError(t, err)

	assert.Equal(t, 1, embedder.calls)
}

func TestEmbedNotReady(t *testing.T) {
	engine := NewEngine(&stubEmbedder{ready: false}, &stubIndex{}, nil, 2000)

	_, err := engine.Embed(context.Background(), "text")

	assert.Error(t, err)
}

func TestFindMaxSimilarityEmptyEmbedding(t *testing.T) {
	engine := NewEngine(&stubEmbedder{ready: true}, &stubIndex{}, nil, 2000)

	match, err := engine.FindMaxSimilarity(context.Background(), nil, "")

	require.NoError(t, err)
	assert.Equal(t, Match{Risk: models.RiskLow}, match)
}

func TestFindMaxSimilarityTiersResult(t *testing.T) {
	index := &stubIndex{best: BestMatch{ID: "prev", Score: 0.9}}
	engine := NewEngine(&stubEmbedder{ready: true}, index, nil, 2000)

	match, err := engine.FindMaxSimilarity(context.Background(), []float64{0.1}, "")

	require.NoError(t, err)
	assert.Equal(t, 0.9, match.Score)
	assert.Equal(t, models.RiskHigh, match.Risk)
	assert.False(t, match.RejectedMatch)
}

func TestFindMaxSimilarityRejectedMatch(t *testing.T) {
	index := &stubIndex{best: BestMatch{ID: "prev", Score: 0.9, Rejected: true}}
	engine := NewEngine(&stubEmbedder{ready: true}, index, nil, 2000)

	match, err := engine.FindMaxSimilarity(context.Background(), []float64{0.1}, "")

	require.NoError(t, err)
	assert.True(t, match.RejectedMatch)
}

func TestFindMaxSimilarityRejectedBelowThreshold(t *testing.T) {
	index := &stubIndex{best: BestMatch{ID: "prev", Score: 0.8, Rejected: true}}
	engine := NewEngine(&stubEmbedder{ready: true}, index, nil, 2000)

	match, err := engine.FindMaxSimilarity(context.Background(), []float64{0.1}, "")

	require.NoError(t, err)
	assert.False(t, match.RejectedMatch)
	assert.Equal(t, models.RiskMedium, match.Risk)
}

func TestFindMaxSimilarityIndexError(t *testing.T) {
	index := &stubIndex{err: errors.New("corpus unavailable")}
	engine := NewEngine(&stubEmbedder{ready: true}, index, nil, 2000)

	_, err := engine.FindMaxSimilarity(context.Background(), []float64{0.1}, "")

	assert.Error(t, err)
}
