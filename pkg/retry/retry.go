// Package retry runs provider calls under a bounded exponential back-off.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/glorpus-work/hoard/pkg/errors"
)

// Config holds retry configuration.
type Config struct {
	MaxAttempts int           // Maximum number of attempts for retryable failures
	InitialWait time.Duration // Wait after the first failed attempt
	MaxWait     time.Duration // Cap on a single wait
	Multiplier  float64       // Backoff multiplier
	Jitter      float64       // Jitter factor (0-1)

	// MaxRateLimitWaits bounds how many rate limited responses are waited out.
	// They do not count against MaxAttempts.
	MaxRateLimitWaits int
	// MinInterval is the shortest wait after a rate limited response.
	MinInterval time.Duration

	// OnRetry, if set, is called before every wait.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// DefaultConfig returns the sync defaults: 5 attempts, 1s doubling to 30s.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       5,
		InitialWait:       time.Second,
		MaxWait:           30 * time.Second,
		Multiplier:        2.0,
		Jitter:            0.1,
		MaxRateLimitWaits: 10,
	}
}

// Backoff returns the wait after the given failed attempt (1-based).
func (c Config) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	multiplier := c.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	wait := float64(c.InitialWait) * math.Pow(multiplier, float64(attempt-1))
	if c.MaxWait > 0 && wait > float64(c.MaxWait) {
		wait = float64(c.MaxWait)
	}
	if c.Jitter > 0 {
		wait += wait * c.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(wait)
}

// RateLimitWait returns how long to wait after a rate limited error.
func (c Config) RateLimitWait(err error, attempt int) time.Duration {
	wait, ok := errors.RetryAfter(err)
	if !ok || wait <= 0 {
		wait = c.Backoff(attempt)
	}
	if wait < c.MinInterval {
		wait = c.MinInterval
	}
	return wait
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do executes fn until it succeeds, fails with a non-retryable error, or the
// attempt budget is spent. Network and integrity errors consume attempts; rate
// limited errors wait without consuming one, up to MaxRateLimitWaits.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	_, err := DoWithResult(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoWithResult executes fn with retries and returns its result.
func DoWithResult[T any](ctx context.Context, cfg Config, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts, rateLimitWaits := 0, 0

	for {
		r, err := fn(ctx)
		if err == nil {
			return r, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if !errors.IsRetryable(err) {
			return zero, err
		}

		var wait time.Duration
		if errors.Is(err, errors.ErrRateLimited) {
			rateLimitWaits++
			if rateLimitWaits > cfg.MaxRateLimitWaits {
				return zero, err
			}
			wait = cfg.RateLimitWait(err, rateLimitWaits)
		} else {
			attempts++
			if attempts >= cfg.MaxAttempts {
				return zero, err
			}
			wait = cfg.Backoff(attempts)
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempts, wait, err)
		}
		if err := Sleep(ctx, wait); err != nil {
			return zero, err
		}
	}
}
