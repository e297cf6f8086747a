package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/orgscan/backend/internal/metrics"
	"github.com/orgscan/backend/internal/risk"
	"github.com/orgscan/backend/internal/similarity"
	"github.com/orgscan/backend/internal/storage"
	"github.com/orgscan/backend/internal/storage/models"
	"github.com/orgscan/backend/pkg/logger"
)

// ErrExtraction marks the one analysis failure with no recovery: if
// the document yields no text there is nothing to score.
var ErrExtraction = errors.New("document text extraction failed")

// TextExtractor is the document-to-text collaborator. Raw PDF
// extraction lives behind this boundary.
type TextExtractor interface {
	Extract(document []byte) (string, error)
}

// IntelligenceProvider is the AI field-extraction/assessment
// collaborator. It may fail or time out; the pipeline then falls back
// to fallbackAnalysis.
type IntelligenceProvider interface {
	Analyze(ctx context.Context, text string) (string, error)
}

// fallbackAnalysis is the deliberate conservative-bias policy: when
// the AI signal is absent the record leans suspicious, never clean.
const fallbackAnalysis = `{
  "organization_name": null,
  "registration_number": null,
  "issuing_authority": null,
  "expiration_date": null,
  "address": null,
  "issues_found": ["AI analysis unavailable"],
  "suspicious_elements": [],
  "overall_assessment": "suspicious"
}`

const aiUnavailableFlag = "AI analysis service unavailable"

type Input struct {
	OrganizationID string
	Document       []byte
	Email          string
	WebsiteDomain  string
}

type Service struct {
	store     storage.Store
	extractor TextExtractor
	intel     IntelligenceProvider
	engine    *similarity.Engine
	index     similarity.Index
	domains   *risk.DomainEvaluator

	now   func() time.Time
	newID func() string
}

func NewService(
	store storage.Store,
	extractor TextExtractor,
	intel IntelligenceProvider,
	engine *similarity.Engine,
	index similarity.Index,
	domains *risk.DomainEvaluator,
) *Service {
	return &Service{
		store:     store,
		extractor: extractor,
		intel:     intel,
		engine:    engine,
		index:     index,
		domains:   domains,
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
}

// Analyze runs the full analysis for one submission and persists the
// resulting record. Extraction and persistence failures (and caller
// cancellation) are fatal; every other stage degrades to a missing or
// pessimistic signal so the pipeline always converges on a decision.
// Flags land in fixed stage order (AI fallback, document, similarity,
// domain, aggregate summary) regardless of which concurrent branch
// finished first, so identical inputs produce identical records.
func (s *Service) Analyze(ctx context.Context, input Input) (*models.AnalysisRecord, error) {
	start := s.now()

	logger.Info("Starting fraud analysis",
		zap.String("organization_id", input.OrganizationID),
	)

	text, err := s.extractor.Extract(input.Document)
	if err != nil {
		metrics.AnalysisFailures.WithLabelValues("extraction").Inc()
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	// The AI call and the embedding call have no data dependency on
	// each other; fan out and join before scoring.
	aiRaw, aiFallback, embedding, err := s.gatherSignals(ctx, text)
	if err != nil {
		return nil, err
	}

	fields := risk.ParseExtractedFields(aiRaw)

	docScore, simMatch, simRan, domScore, err := s.scoreStages(ctx, aiRaw, fields, embedding, input)
	if err != nil {
		return nil, err
	}

	var flags []string
	if aiFallback {
		flags = append(flags, aiUnavailableFlag)
	}
	flags = append(flags, docScore.Flags...)
	switch simMatch.Risk {
	case models.RiskHigh:
		flags = append(flags, "High similarity to previous submission (potential template reuse)")
	case models.RiskMedium:
		flags = append(flags, "Moderate similarity to previous submissions")
	}
	if simMatch.RejectedMatch {
		flags = append(flags, "Similar to previously rejected submission")
	}
	flags = append(flags, domScore.Flags...)

	fraud := risk.Aggregate(docScore.Score, simMatch.Score, domScore.Score, flags)

	if !simRan {
		metrics.SimilaritySkipped.Inc()
	}

	// A cancelled analysis must never leave a partial record behind.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	record := &models.AnalysisRecord{
		ID:                         s.newID(),
		OrganizationID:             input.OrganizationID,
		ExtractedFields:            fields,
		AIRawResponse:              aiRaw,
		DocumentInconsistencyScore: docScore.Score,
		SimilarityScore:            simMatch.Score,
		SimilarityRisk:             similarityRiskOrLow(simMatch.Risk),
		DomainRiskScore:            domScore.Score,
		FraudRiskScore:             fraud.Score,
		FraudRiskLevel:             fraud.Level,
		Flags:                      fraud.Flags,
		Embedding:                  embedding,
		EmailDomain:                risk.EmailDomain(input.Email),
		WebsiteDomain:              input.WebsiteDomain,
		CreatedAt:                  s.now(),
	}

	if err := s.store.Insert(ctx, record); err != nil {
		metrics.AnalysisFailures.WithLabelValues("persistence").Inc()
		return nil, fmt.Errorf("failed to persist analysis record: %w", err)
	}

	if s.index != nil && len(embedding) > 0 {
		if err := s.index.Add(ctx, record.ID, embedding, false); err != nil {
			logger.Warn("Failed to index embedding", zap.String("id", record.ID), zap.Error(err))
		}
	}

	metrics.AnalysesTotal.WithLabelValues(string(fraud.Level)).Inc()
	metrics.FraudRiskScore.Observe(fraud.Score)
	metrics.AnalysisDuration.Observe(s.now().Sub(start).Seconds())

	logger.Info("Fraud analysis completed",
		zap.String("analysis_id", record.ID),
		zap.String("organization_id", input.OrganizationID),
		zap.Float64("fraud_risk", fraud.Score),
		zap.String("level", string(fraud.Level)),
		zap.Int("flags", len(fraud.Flags)),
	)

	return record, nil
}

// gatherSignals runs the AI analysis and the embedding generation
// concurrently. Only caller cancellation is returned as an error; a
// failed AI call yields the pessimistic fallback and a failed or
// not-ready embedding stage yields an empty vector.
func (s *Service) gatherSignals(ctx context.Context, text string) (aiRaw string, aiFallback bool, embedding []float64, err error) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		raw, aiErr := s.intel.Analyze(gctx, text)
		if aiErr != nil {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			logger.Error("AI analysis failed, using fallback analysis", zap.Error(aiErr))
			metrics.AIFallbacks.Inc()
			aiRaw = fallbackAnalysis
			aiFallback = true
			return nil
		}
		aiRaw = raw
		return nil
	})

	g.Go(func() error {
		if s.engine == nil || !s.engine.Ready() {
			logger.Warn("Similarity engine not ready, skipping embedding")
			return nil
		}
		emb, embErr := s.engine.Embed(gctx, text)
		if embErr != nil {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			logger.Warn("Embedding generation failed, continuing without it", zap.Error(embErr))
			return nil
		}
		embedding = emb
		return nil
	})

	if waitErr := g.Wait(); waitErr != nil {
		return "", false, nil, waitErr
	}
	return aiRaw, aiFallback, embedding, nil
}

// scoreStages runs the three scorers. Document scoring is pure;
// similarity search and domain-age lookup are independent I/O, so all
// three fan out.
func (s *Service) scoreStages(
	ctx context.Context,
	aiRaw string,
	fields models.ExtractedFields,
	embedding []float64,
	input Input,
) (docScore risk.DocumentScore, simMatch similarity.Match, simRan bool, domScore risk.DomainScore, err error) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		docScore = risk.ScoreDocument(aiRaw, fields, s.now())
		return nil
	})

	g.Go(func() error {
		if len(embedding) == 0 {
			return nil
		}
		match, simErr := s.engine.FindMaxSimilarity(gctx, embedding, "")
		if simErr != nil {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			logger.Warn("Similarity analysis failed, continuing without it", zap.Error(simErr))
			return nil
		}
		simMatch = match
		simRan = true
		return nil
	})

	g.Go(func() error {
		domScore = s.domains.Evaluate(gctx, input.Email, input.WebsiteDomain)
		return nil
	})

	if waitErr := g.Wait(); waitErr != nil {
		return docScore, simMatch, simRan, domScore, waitErr
	}
	return docScore, simMatch, simRan, domScore, nil
}

func similarityRiskOrLow(level models.RiskLevel) models.RiskLevel {
	if level == "" {
		return models.RiskLow
	}
	return level
}
