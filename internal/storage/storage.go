package storage

import (
	"context"
	"errors"

	"github.com/orgscan/backend/internal/storage/models"
)

// ErrNotFound is returned when an id does not resolve to a record.
var ErrNotFound = errors.New("analysis record not found")

// Store is the durable record contract the pipeline and review
// workflow depend on. The sqlite implementation is the default; any
// store with by-id lookup and filtered queries can stand in.
type Store interface {
	Insert(ctx context.Context, record *models.AnalysisRecord) error
	GetByID(ctx context.Context, id string) (*models.AnalysisRecord, error)
	GetByOrganization(ctx context.Context, orgID string) ([]models.AnalysisRecord, error)

	// ListEmbeddings returns every record with a non-empty embedding,
	// optionally excluding one id (the record being analyzed).
	ListEmbeddings(ctx context.Context, excludeID string) ([]models.EmbeddingRef, error)

	// ListPendingReview returns unreviewed records, filtered to a risk
	// level when level is non-empty, sorted by fraud risk score
	// descending then creation time descending.
	ListPendingReview(ctx context.Context, level models.RiskLevel) ([]models.AnalysisRecord, error)

	// UpdateReview overwrites the review fields and returns the
	// updated record, or ErrNotFound.
	UpdateReview(ctx context.Context, id string, review models.Review) (*models.AnalysisRecord, error)

	Stats(ctx context.Context) (*models.Stats, error)
}
