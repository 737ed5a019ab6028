// Package retry provides bounded exponential backoff with jitter for
// transient provider failures.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/tessera-labs/verso/internal/core/domain"
	"github.com/tessera-labs/verso/internal/logger"
)

// Default policy values.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 500 * time.Millisecond
	DefaultMaxDelay    = 8 * time.Second
	DefaultTotalBudget = 20 * time.Second
)

// Policy bounds a retry loop in both attempts and wall-clock time.
type Policy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int

	// BaseDelay is the delay before the first retry; it doubles each
	// attempt.
	BaseDelay time.Duration

	// MaxDelay caps a single backoff sleep.
	MaxDelay time.Duration

	// TotalBudget caps the accumulated sleep time across all retries.
	// Once exceeded, the last error is surfaced immediately.
	TotalBudget time.Duration

	// sleep is replaceable for tests.
	sleep func(ctx context.Context, d time.Duration) error

	// jitter is replaceable for tests; returns a multiplier in [0.5, 1.5).
	jitter func() float64
}

// DefaultPolicy returns the standard policy used by the embedder and
// the answer generator.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		TotalBudget: DefaultTotalBudget,
	}
}

// Do runs fn, retrying only while the error is domain.ErrRateLimited.
// Every other error (including domain.ErrProviderUnavailable, which
// callers handle with fallback chains, and validation errors) is
// returned on first occurrence.
func (p Policy) Do(ctx context.Context, label string, fn func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.TotalBudget <= 0 {
		p.TotalBudget = DefaultTotalBudget
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	jitter := p.jitter
	if jitter == nil {
		jitter = func() float64 { return 0.5 + rand.Float64() }
	}

	var lastErr error
	var slept time.Duration
	delay := p.BaseDelay

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, domain.ErrRateLimited) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}

		wait := time.Duration(float64(delay) * jitter())
		if wait > p.MaxDelay {
			wait = p.MaxDelay
		}
		if slept+wait > p.TotalBudget {
			logger.Warn("%s: retry budget exhausted after %d attempts", label, attempt)
			return lastErr
		}

		logger.Debug("%s: rate limited, retrying in %s (attempt %d/%d)",
			label, wait, attempt, p.MaxAttempts)
		if err := sleep(ctx, wait); err != nil {
			return err
		}
		slept += wait
		delay *= 2
	}

	logger.Warn("%s: giving up after %d attempts: %v", label, p.MaxAttempts, lastErr)
	return lastErr
}

// sleepCtx sleeps for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
