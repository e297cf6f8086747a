package domainage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/orgscan/backend/internal/metrics"
	"github.com/orgscan/backend/pkg/circuitbreaker"
	"github.com/orgscan/backend/pkg/logger"
)

// AgeCache is an optional lookup cache; whois data changes on the
// order of months, so cached ages are served without revalidation.
type AgeCache interface {
	GetDomainAge(ctx context.Context, domain string) (int, bool, error)
	SetDomainAge(ctx context.Context, domain string, months int) error
}

type whoisResponse struct {
	CreationDate string `json:"creation_date"`
	CreationAlt  string `json:"creationDate"`
}

// Client resolves domain registration age from a whois JSON API.
// Callers treat every error as a silently missing signal.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cb         *circuitbreaker.Breaker
	cache      AgeCache
	now        func() time.Time
}

func NewClient(baseURL string, timeoutSec int, cache AgeCache) *Client {
	if timeoutSec <= 0 {
		timeoutSec = 5
	}

	cb := circuitbreaker.New("whois", circuitbreaker.Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Cooldown:         time.Minute,
		Logger:           logger.Named("domain_age"),
	})

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		cb:         cb,
		cache:      cache,
		now:        time.Now,
	}
}

// Lookup returns the months elapsed since the domain's registration.
func (c *Client) Lookup(ctx context.Context, domain string) (int, error) {
	if c.cache != nil {
		if months, ok, err := c.cache.GetDomainAge(ctx, domain); err == nil && ok {
			logger.Debug("Domain age cache hit", zap.String("domain", domain))
			metrics.CacheHits.WithLabelValues("domain_age").Inc()
			return months, nil
		}
	}

	var months int
	err := c.cb.Execute(func() error {
		var err error
		months, err = c.fetch(ctx, domain)
		return err
	})
	if err != nil {
		return 0, err
	}

	if c.cache != nil {
		if err := c.cache.SetDomainAge(ctx, domain, months); err != nil {
			logger.Warn("Failed to cache domain age", zap.Error(err))
		}
	}

	return months, nil
}

func (c *Client) fetch(ctx context.Context, domain string) (int, error) {
	endpoint := fmt.Sprintf("%s/?name=%s", c.baseURL, url.QueryEscape(domain))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build whois request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to query whois API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("whois API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return 0, fmt.Errorf("failed to read whois response: %w", err)
	}

	var parsed whoisResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, fmt.Errorf("failed to parse whois response: %w", err)
	}

	raw := parsed.CreationDate
	if raw == "" {
		raw = parsed.CreationAlt
	}
	if raw == "" {
		return 0, fmt.Errorf("whois response has no creation date for %s", domain)
	}

	created, err := parseCreationDate(raw)
	if err != nil {
		return 0, err
	}

	now := c.now()
	months := (now.Year()-created.Year())*12 + int(now.Month()) - int(created.Month())
	if months < 0 {
		months = 0
	}

	logger.Debug("Domain age resolved",
		zap.String("domain", domain),
		zap.Int("months", months),
	)

	return months, nil
}

func parseCreationDate(value string) (time.Time, error) {
	layouts := []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported creation date format: %q", value)
}
