package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AnalysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orgscan_analyses_total",
			Help: "Completed fraud analyses by resulting risk level",
		},
		[]string{"level"},
	)

	AnalysisDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orgscan_analysis_duration_seconds",
			Help:    "End-to-end analysis pipeline duration",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40},
		},
	)

	AnalysisFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orgscan_analysis_failures_total",
			Help: "Analyses aborted by fatal stage",
		},
		[]string{"stage"},
	)

	AIFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orgscan_ai_fallbacks_total",
			Help: "Analyses that used the pessimistic AI fallback payload",
		},
	)

	SimilaritySkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orgscan_similarity_skipped_total",
			Help: "Analyses that ran without a similarity signal",
		},
	)

	FraudRiskScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orgscan_fraud_risk_score",
			Help:    "Distribution of fused fraud risk scores",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	ReviewDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orgscan_review_decisions_total",
			Help: "Human review decisions recorded",
		},
		[]string{"decision"},
	)

	DeletionIntentFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orgscan_deletion_intent_failures_total",
			Help: "Account deletion intents that the downstream sink failed to accept",
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orgscan_cache_hits_total",
			Help: "Cache hits by cache type",
		},
		[]string{"cache_type"},
	)
)

func Init() {
	prometheus.MustRegister(AnalysesTotal)
	prometheus.MustRegister(AnalysisDuration)
	prometheus.MustRegister(AnalysisFailures)
	prometheus.MustRegister(AIFallbacks)
	prometheus.MustRegister(SimilaritySkipped)
	prometheus.MustRegister(FraudRiskScore)
	prometheus.MustRegister(ReviewDecisions)
	prometheus.MustRegister(DeletionIntentFailures)
	prometheus.MustRegister(CacheHits)
}

func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
