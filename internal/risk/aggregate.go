package risk

import (
	"go.uber.org/zap"

	"github.com/orgscan/backend/internal/storage/models"
	"github.com/orgscan/backend/pkg/logger"
)

// Weights of the three component scores in the fused fraud risk.
const (
	documentWeight   = 0.4
	similarityWeight = 0.3
	domainWeight     = 0.3
)

// Level thresholds on the fused score.
const (
	highRiskThreshold   = 0.6
	mediumRiskThreshold = 0.3
)

// Summary-flag thresholds on the individual components.
const (
	documentFlagThreshold   = 0.5
	similarityFlagThreshold = 0.85
	domainFlagThreshold     = 0.3
)

type FraudRisk struct {
	Score float64
	Level models.RiskLevel
	Flags []string
}

// Aggregate fuses the component scores into the final fraud risk.
// Upstream flags are carried through in order and deliberately not
// deduplicated: repetition means multiple independent signals fired.
func Aggregate(docScore, simScore, domainScore float64, upstreamFlags []string) FraudRisk {
	score := documentWeight*docScore + similarityWeight*simScore + domainWeight*domainScore
	if score > 1.0 {
		score = 1.0
	}

	flags := append([]string{}, upstreamFlags...)
	if docScore > documentFlagThreshold {
		flags = append(flags, "High document inconsistency")
	}
	if simScore > similarityFlagThreshold {
		flags = append(flags, "High similarity to previous submission")
	}
	if domainScore > domainFlagThreshold {
		flags = append(flags, "Domain risk factors detected")
	}

	level := LevelForScore(score)

	logger.Info("Fraud risk calculated",
		zap.Float64("score", score),
		zap.String("level", string(level)),
		zap.Float64("document", docScore),
		zap.Float64("similarity", simScore),
		zap.Float64("domain", domainScore),
	)

	return FraudRisk{Score: score, Level: level, Flags: flags}
}

func LevelForScore(score float64) models.RiskLevel {
	switch {
	case score >= highRiskThreshold:
		return models.RiskHigh
	case score >= mediumRiskThreshold:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}
