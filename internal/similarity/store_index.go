package similarity

import (
	"context"
	"fmt"

	"github.com/orgscan/backend/internal/storage"
	"github.com/orgscan/backend/pkg/logger"
)

// StoreIndex is the default Index: a brute-force O(n) scan over every
// persisted record with an embedding. Fine at single-tenant vetting
// scale; swap in the milvus index when the corpus outgrows it.
type StoreIndex struct {
	store storage.Store
}

func NewStoreIndex(store storage.Store) *StoreIndex {
	return &StoreIndex{store: store}
}

// Add is a no-op: the corpus is the record store itself, so a
// persisted record is already searchable.
func (s *StoreIndex) Add(ctx context.Context, id string, embedding []float64, rejected bool) error {
	return nil
}

// MarkRejected is a no-op for the same reason: the scan reads the
// rejection flag straight off the records.
func (s *StoreIndex) MarkRejected(ctx context.Context, id string) error {
	return nil
}

func (s *StoreIndex) MaxSimilarity(ctx context.Context, embedding []float64, excludeID string) (BestMatch, error) {
	refs, err := s.store.ListEmbeddings(ctx, excludeID)
	if err != nil {
		return BestMatch{}, fmt.Errorf("failed to load embedding corpus: %w", err)
	}

	if len(refs) == 0 {
		logger.Debug("No previous submissions found for comparison")
		return BestMatch{}, nil
	}

	var best BestMatch
	for _, ref := range refs {
		score := Cosine(embedding, ref.Embedding)
		if score > best.Score {
			best = BestMatch{ID: ref.ID, Score: score, Rejected: ref.IsRejected}
		}
	}

	return best, nil
}
