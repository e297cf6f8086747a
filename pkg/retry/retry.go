package retry

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Policy describes a bounded exponential backoff. The zero value is
// not usable; call DefaultPolicy and override what you need.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Jitter    float64
	Logger    *zap.Logger
}

func DefaultPolicy() Policy {
	return Policy{
		Attempts:  3,
		BaseDelay: 500 * time.Millisecond,
		MaxDelay:  5 * time.Second,
		Jitter:    0.1,
		Logger:    zap.NewNop(),
	}
}

// Do runs op until it succeeds, the attempts are exhausted, or ctx is
// done. The last error is returned unwrapped so callers can inspect it.
func (p Policy) Do(ctx context.Context, name string, op func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	log := p.Logger
	if log == nil {
		log = zap.NewNop()
	}

	var lastErr error
	delay := p.BaseDelay

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op()
		if lastErr == nil {
			if attempt > 1 {
				log.Info("Operation succeeded after retry",
					zap.String("op", name),
					zap.Int("attempt", attempt),
				)
			}
			return nil
		}

		if attempt == attempts {
			break
		}

		log.Warn("Operation failed, retrying",
			zap.String("op", name),
			zap.Error(lastErr),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jittered(delay, p.Jitter)):
		}

		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}

	return lastErr
}

func jittered(d time.Duration, fraction float64) time.Duration {
	if fraction <= 0 {
		return d
	}
	spread := float64(d) * fraction
	return d + time.Duration((rand.Float64()*2-1)*spread)
}
