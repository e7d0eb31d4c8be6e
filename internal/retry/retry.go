// Package retry provides the retry-with-backoff helper shared by every
// component that calls an external dependency (discovery service, source
// document fetch). Backoff doubles per attempt up to a cap, with optional
// jitter to avoid synchronized retries across concurrent lookups.
package retry

import (
	"context"
	"math/rand"
	"time"

	"playlist-resolver/internal/logging"
)

// Config controls retry behavior.
type Config struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int
	// InitialBackoff is the delay before the second attempt.
	InitialBackoff time.Duration
	// MaxBackoff caps the exponential growth.
	MaxBackoff time.Duration
	// Jitter is the fraction of each backoff randomized (0 disables).
	Jitter float64
}

// DefaultConfig returns the defaults used against the discovery service.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialBackoff: 250 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		Jitter:         0.2,
	}
}

// Do runs fn until it succeeds, the attempt budget is exhausted, the error is
// not retryable, or ctx is done. The last error is returned. A nil retryable
// predicate retries every error.
func Do(ctx context.Context, cfg Config, retryable func(error) bool, fn func(context.Context) error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	backoff := cfg.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		delay := withJitter(backoff, cfg.Jitter)
		logging.Debug("retrying after error (attempt %d/%d, backoff %v): %v",
			attempt, cfg.MaxAttempts, delay, lastErr)

		if !sleep(ctx, delay) {
			return lastErr
		}

		backoff *= 2
		if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}

	return lastErr
}

func withJitter(d time.Duration, jitter float64) time.Duration {
	if jitter <= 0 || d <= 0 {
		return d
	}
	// Spread the delay across [d*(1-jitter), d*(1+jitter)].
	delta := float64(d) * jitter
	return time.Duration(float64(d) - delta + rand.Float64()*2*delta)
}

// sleep waits for d or until ctx is done; it reports whether the full wait
// completed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
