package risk

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/orgscan/backend/pkg/logger"
)

// DomainAgeProvider resolves how many months ago a domain was
// registered. Lookups are best-effort; errors are never fatal to the
// evaluation.
type DomainAgeProvider interface {
	Lookup(ctx context.Context, domain string) (int, error)
}

const youngDomainMonths = 6

type DomainScore struct {
	Score       float64
	Flags       []string
	IsFreeEmail bool
	DomainAge   *int
}

// DomainEvaluator scores contact-information trustworthiness from
// the submitter's email and website domains. Every rule is additive
// and independent; the result is capped at 1.0 and degrades to
// whatever information is available.
type DomainEvaluator struct {
	ages DomainAgeProvider
}

func NewDomainEvaluator(ages DomainAgeProvider) *DomainEvaluator {
	return &DomainEvaluator{ages: ages}
}

func (e *DomainEvaluator) Evaluate(ctx context.Context, email, websiteDomain string) DomainScore {
	var result DomainScore

	emailDomain := EmailDomain(email)
	websiteDomain = strings.ToLower(strings.TrimSpace(websiteDomain))

	if emailDomain != "" && IsFreeEmailProvider(emailDomain) {
		result.IsFreeEmail = true
		result.Score += 0.2
		result.Flags = append(result.Flags, "Free email provider detected")
	}

	domainToCheck := websiteDomain
	if domainToCheck == "" {
		domainToCheck = emailDomain
	}
	if domainToCheck != "" && !IsFreeEmailProvider(domainToCheck) {
		if age, ok := e.lookupAge(ctx, domainToCheck); ok {
			result.DomainAge = &age
			if age < youngDomainMonths {
				result.Score += 0.4
				result.Flags = append(result.Flags,
					fmt.Sprintf("Domain younger than %d months (%d months)", youngDomainMonths, age))
			}
		}
	}

	if emailDomain != "" && websiteDomain != "" &&
		!IsFreeEmailProvider(emailDomain) && !IsFreeEmailProvider(websiteDomain) &&
		normalizeDomain(emailDomain) != normalizeDomain(websiteDomain) {
		result.Score += 0.15
		result.Flags = append(result.Flags, "Email domain differs from website domain")
	}

	if emailDomain != "" {
		if digitRatio(emailDomain) > 0.3 {
			result.Score += 0.1
			result.Flags = append(result.Flags, "Suspicious domain pattern (numeric-heavy)")
		}
		if label := firstLabel(emailDomain); label != "" && len(label) < 3 {
			result.Score += 0.1
			result.Flags = append(result.Flags, "Unusually short domain name")
		}
	}

	if result.Score > 1.0 {
		result.Score = 1.0
	}
	return result
}

// lookupAge queries the age provider, swallowing failures: an
// unresolvable domain simply contributes no age signal.
func (e *DomainEvaluator) lookupAge(ctx context.Context, domain string) (int, bool) {
	if e.ages == nil {
		return 0, false
	}
	age, err := e.ages.Lookup(ctx, domain)
	if err != nil {
		logger.Debug("Domain age lookup failed",
			zap.String("domain", domain),
			zap.Error(err),
		)
		return 0, false
	}
	return age, true
}

func normalizeDomain(domain string) string {
	return strings.TrimPrefix(strings.ToLower(domain), "www.")
}

func digitRatio(domain string) float64 {
	if domain == "" {
		return 0
	}
	digits := 0
	for _, r := range domain {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return float64(digits) / float64(len(domain))
}

func firstLabel(domain string) string {
	if i := strings.Index(domain, "."); i >= 0 {
		return domain[:i]
	}
	return domain
}
