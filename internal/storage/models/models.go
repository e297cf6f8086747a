package models

import "time"

type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// ExtractedFields holds the structured fields pulled out of the AI
// response. Every field is optional; absence is itself a signal.
type ExtractedFields struct {
	Name               string `json:"name,omitempty"`
	RegistrationNumber string `json:"registration_number,omitempty"`
	IssuingAuthority   string `json:"issuing_authority,omitempty"`
	ExpirationDate     string `json:"expiration_date,omitempty"`
	Address            string `json:"address,omitempty"`
}

// AnalysisRecord is the persisted outcome of one pipeline run. It is
// immutable after insert except for the review fields.
type AnalysisRecord struct {
	ID                         string          `json:"id"`
	OrganizationID             string          `json:"organization_id"`
	ExtractedFields            ExtractedFields `json:"extracted_fields"`
	AIRawResponse              string          `json:"ai_raw_response"`
	DocumentInconsistencyScore float64         `json:"document_inconsistency_score"`
	SimilarityScore            float64         `json:"similarity_score"`
	SimilarityRisk             RiskLevel       `json:"similarity_risk"`
	DomainRiskScore            float64         `json:"domain_risk_score"`
	FraudRiskScore             float64         `json:"fraud_risk_score"`
	FraudRiskLevel             RiskLevel       `json:"fraud_risk_level"`
	Flags                      []string        `json:"flags"`
	Embedding                  []float64       `json:"embedding,omitempty"`
	EmailDomain                string          `json:"email_domain,omitempty"`
	WebsiteDomain              string          `json:"website_domain,omitempty"`
	IsRejected                 bool            `json:"is_rejected"`
	ReviewedAt                 *time.Time      `json:"reviewed_at,omitempty"`
	ReviewedBy                 string          `json:"reviewed_by,omitempty"`
	ReviewNotes                string          `json:"review_notes,omitempty"`
	CreatedAt                  time.Time       `json:"created_at"`
}

// Reviewed reports whether a human decision has been recorded.
func (r *AnalysisRecord) Reviewed() bool {
	return r.ReviewedAt != nil
}

// Review is the mutable slice of an AnalysisRecord. Re-applying a
// review overwrites the previous one (last write wins).
type Review struct {
	IsRejected  bool
	ReviewedAt  time.Time
	ReviewedBy  string
	ReviewNotes string
}

// EmbeddingRef is the projection the similarity scan works over.
type EmbeddingRef struct {
	ID         string
	Embedding  []float64
	IsRejected bool
}

type Stats struct {
	Total         int `json:"total"`
	HighRisk      int `json:"high_risk"`
	MediumRisk    int `json:"medium_risk"`
	LowRisk       int `json:"low_risk"`
	PendingReview int `json:"pending_review"`
	Rejected      int `json:"rejected"`
}
