// Package ratelimit spaces requests to each provider by the minimum interval
// the provider declares, and holds back all requests to a provider after it
// answers with a rate limit.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a set of per-provider limiters. The zero value is not usable;
// create one with New.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	holdTill map[string]time.Time
	now      func() time.Time
}

// New creates an empty Limiter. Providers without a configured interval are
// not limited.
func New() *Limiter {
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		holdTill: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Set configures the minimum interval between requests to provider. Setting
// the interval a provider already has keeps its current schedule.
func (l *Limiter) Set(provider string, minInterval time.Duration) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if minInterval <= 0 {
		delete(l.limiters, provider)
		return
	}
	limit := rate.Every(minInterval)
	if cur, ok := l.limiters[provider]; ok && cur.Limit() == limit {
		return
	}
	l.limiters[provider] = rate.NewLimiter(limit, 1)
}

// Hold blocks requests to provider for d, for example after a Retry-After.
// A shorter hold never shortens an existing one.
func (l *Limiter) Hold(provider string, d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	until := l.now().Add(d)
	if until.After(l.holdTill[provider]) {
		l.holdTill[provider] = until
	}
}

// Wait blocks until a request to provider is allowed or ctx is done.
func (l *Limiter) Wait(ctx context.Context, provider string) error {
	if l == nil {
		return ctx.Err()
	}
	l.mu.Lock()
	lim := l.limiters[provider]
	hold := l.holdTill[provider].Sub(l.now())
	l.mu.Unlock()

	if hold > 0 {
		timer := time.NewTimer(hold)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	if lim == nil {
		return ctx.Err()
	}
	return lim.Wait(ctx)
}
