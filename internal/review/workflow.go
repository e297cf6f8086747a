package review

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/orgscan/backend/internal/metrics"
	"github.com/orgscan/backend/internal/similarity"
	"github.com/orgscan/backend/internal/storage"
	"github.com/orgscan/backend/internal/storage/models"
	"github.com/orgscan/backend/pkg/logger"
)

// AccountDeleter receives deletion intents for rejected organizations.
// Delivery is best effort: a failed emission is logged and counted but
// never rolls the review decision back.
type AccountDeleter interface {
	RequestDeletion(ctx context.Context, organizationID string) error
}

// Workflow applies reviewer decisions to persisted analyses and
// serves the read side of the review queue.
type Workflow struct {
	store   storage.Store
	index   similarity.Index
	deleter AccountDeleter
	now     func() time.Time
}

func NewWorkflow(store storage.Store, index similarity.Index, deleter AccountDeleter) *Workflow {
	return &Workflow{
		store:   store,
		index:   index,
		deleter: deleter,
		now:     time.Now,
	}
}

func (w *Workflow) GetByID(ctx context.Context, id string) (*models.AnalysisRecord, error) {
	return w.store.GetByID(ctx, id)
}

func (w *Workflow) GetByOrganization(ctx context.Context, organizationID string) ([]models.AnalysisRecord, error) {
	return w.store.GetByOrganization(ctx, organizationID)
}

func (w *Workflow) GetHighRiskPendingReview(ctx context.Context) ([]models.AnalysisRecord, error) {
	return w.store.ListPendingReview(ctx, models.RiskHigh)
}

func (w *Workflow) GetAllPendingReview(ctx context.Context) ([]models.AnalysisRecord, error) {
	return w.store.ListPendingReview(ctx, "")
}

func (w *Workflow) Stats(ctx context.Context) (*models.Stats, error) {
	return w.store.Stats(ctx)
}

// MarkApproved records an approval. Approving a previously rejected
// analysis clears the rejection, so re-review always reflects the
// latest decision.
func (w *Workflow) MarkApproved(ctx context.Context, id, reviewedBy, notes string) (*models.AnalysisRecord, error) {
	reviewedAt := w.now()
	record, err := w.store.UpdateReview(ctx, id, models.Review{
		IsRejected:  false,
		ReviewedAt:  reviewedAt,
		ReviewedBy:  reviewedBy,
		ReviewNotes: notes,
	})
	if err != nil {
		return nil, err
	}

	metrics.ReviewDecisions.WithLabelValues("approved").Inc()
	logger.Info("Analysis approved",
		zap.String("analysis_id", id),
		zap.String("reviewed_by", reviewedBy),
	)
	return record, nil
}

// MarkRejected records a rejection, marks the stored embedding as
// rejected so future similar submissions are flagged, and emits one
// deletion intent for the organization's account.
func (w *Workflow) MarkRejected(ctx context.Context, id, reviewedBy, notes string) (*models.AnalysisRecord, error) {
	reviewedAt := w.now()
	record, err := w.store.UpdateReview(ctx, id, models.Review{
		IsRejected:  true,
		ReviewedAt:  reviewedAt,
		ReviewedBy:  reviewedBy,
		ReviewNotes: notes,
	})
	if err != nil {
		return nil, err
	}

	if w.index != nil {
		if idxErr := w.index.MarkRejected(ctx, id); idxErr != nil {
			logger.Warn("Failed to mark embedding as rejected",
				zap.String("analysis_id", id), zap.Error(idxErr))
		}
	}

	if w.deleter != nil {
		if delErr := w.deleter.RequestDeletion(ctx, record.OrganizationID); delErr != nil {
			metrics.DeletionIntentFailures.Inc()
			logger.Error("Failed to emit account deletion intent",
				zap.String("analysis_id", id),
				zap.String("organization_id", record.OrganizationID),
				zap.Error(delErr))
		}
	}

	metrics.ReviewDecisions.WithLabelValues("rejected").Inc()
	logger.Info("Analysis rejected",
		zap.String("analysis_id", id),
		zap.String("organization_id", record.OrganizationID),
		zap.String("reviewed_by", reviewedBy),
	)
	return record, nil
}

// LoggingDeleter is the default intent sink: it records the intent in
// the log stream for a downstream account service to pick up.
type LoggingDeleter struct{}

func (LoggingDeleter) RequestDeletion(_ context.Context, organizationID string) error {
	logger.Info("Account deletion requested for rejected organization",
		zap.String("organization_id", organizationID))
	return nil
}

var _ AccountDeleter = LoggingDeleter{}
