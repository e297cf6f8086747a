package risk

import (
	"fmt"
	"strings"
	"time"

	"github.com/orgscan/backend/internal/storage/models"
)

type DocumentScore struct {
	Score float64
	Flags []string
}

// keywordRule fires when the raw AI response contains the keyword
// (case-insensitive). Rules are independent and may all fire.
type keywordRule struct {
	keyword string
	weight  float64
	flag    string
}

var keywordRules = []keywordRule{
	{"missing", 0.15, "AI detected missing information"},
	{"expired", 0.25, "Expired document detected"},
	{"inconsistent", 0.2, "Inconsistent data detected"},
	{"suspicious", 0.2, "Suspicious elements detected"},
	{"invalid", 0.2, "Invalid information detected"},
	{"mismatch", 0.15, "Information mismatch detected"},
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006/01/02",
}

// ScoreDocument computes the rule-based inconsistency score from the
// raw AI response and the fields extracted from it. Deterministic
// given its inputs and the supplied clock; capped at 1.0.
func ScoreDocument(aiResponse string, fields models.ExtractedFields, now time.Time) DocumentScore {
	var result DocumentScore
	lower := strings.ToLower(aiResponse)

	required := []struct {
		name  string
		value string
	}{
		{"name", fields.Name},
		{"registrationNumber", fields.RegistrationNumber},
		{"issuingAuthority", fields.IssuingAuthority},
		{"expirationDate", fields.ExpirationDate},
	}
	for _, field := range required {
		if field.value == "" {
			result.add(0.15, "Missing field: "+field.name)
		}
	}

	for _, rule := range keywordRules {
		if strings.Contains(lower, rule.keyword) {
			result.add(rule.weight, rule.flag)
		}
	}
	if strings.Contains(lower, "forged") || strings.Contains(lower, "fake") {
		result.add(0.4, "Potential forgery indicators")
	}

	if fields.ExpirationDate != "" {
		expiry, err := parseDate(fields.ExpirationDate)
		switch {
		case err != nil:
			result.add(0.1, "Unable to parse expiration date")
		case expiry.Before(now):
			result.add(0.3, "Document has expired")
		case monthsBetween(now, expiry) < 3:
			result.add(0.1, "Document expiring soon (< 3 months)")
		}
	}

	if result.Score > 1.0 {
		result.Score = 1.0
	}
	return result
}

func (d *DocumentScore) add(weight float64, flag string) {
	d.Score += weight
	d.Flags = append(d.Flags, flag)
}

func parseDate(value string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported date format: %q", value)
}

// monthsBetween counts whole calendar months from a to b, matching
// the review policy's "fewer than 3 calendar months" wording.
func monthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}
