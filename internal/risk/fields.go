package risk

import (
	"encoding/json"
	"strings"

	"github.com/orgscan/backend/internal/storage/models"
	"github.com/orgscan/backend/pkg/logger"
)

// aiPayload mirrors the JSON object the intelligence provider is
// prompted to return. Alternate key spellings the model sometimes
// produces are accepted field by field.
type aiPayload struct {
	OrganizationName    string   `json:"organization_name"`
	OrganizationNameAlt string   `json:"organizationName"`
	Name                string   `json:"name"`
	RegistrationNumber  string   `json:"registration_number"`
	RegistrationAlt     string   `json:"registrationNumber"`
	IssuingAuthority    string   `json:"issuing_authority"`
	IssuingAuthorityAlt string   `json:"issuingAuthority"`
	ExpirationDate      string   `json:"expiration_date"`
	ExpirationDateAlt   string   `json:"expirationDate"`
	Address             string   `json:"address"`
	IssuesFound         []string `json:"issues_found"`
	SuspiciousElements  []string `json:"suspicious_elements"`
	OverallAssessment   string   `json:"overall_assessment"`
}

// ParseExtractedFields pulls structured fields out of a raw AI
// response. The model is told to return bare JSON but regularly wraps
// it in prose or code fences, so the first {...} substring is parsed.
// Malformed or absent JSON yields empty fields, never an error:
// partial AI output is expected, and missing fields are scored as
// their own signal downstream.
func ParseExtractedFields(aiResponse string) models.ExtractedFields {
	start := strings.Index(aiResponse, "{")
	end := strings.LastIndex(aiResponse, "}")
	if start < 0 || end <= start {
		return models.ExtractedFields{}
	}

	var payload aiPayload
	if err := json.Unmarshal([]byte(aiResponse[start:end+1]), &payload); err != nil {
		logger.Warn("Failed to parse AI response as JSON")
		return models.ExtractedFields{}
	}

	return models.ExtractedFields{
		Name:               firstNonEmpty(payload.OrganizationName, payload.OrganizationNameAlt, payload.Name),
		RegistrationNumber: firstNonEmpty(payload.RegistrationNumber, payload.RegistrationAlt),
		IssuingAuthority:   firstNonEmpty(payload.IssuingAuthority, payload.IssuingAuthorityAlt),
		ExpirationDate:     firstNonEmpty(payload.ExpirationDate, payload.ExpirationDateAlt),
		Address:            payload.Address,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
