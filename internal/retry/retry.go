// Package retry provides an exponential-backoff combinator for one-shot
// operations against flaky collaborators (scale, valve, sample store).
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tomnis/coldbrewer/internal/brewerr"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = time.Second
)

// Policy holds the backoff parameters. The zero value is usable and falls
// back to 3 attempts with a 1s base delay.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Logger      *slog.Logger

	// sleepFn is injectable for tests.
	sleepFn func(ctx context.Context, d time.Duration) error
}

func (p Policy) maxAttempts() int {
	if p.MaxAttempts <= 0 {
		return defaultMaxAttempts
	}
	return p.MaxAttempts
}

func (p Policy) baseDelay() time.Duration {
	if p.BaseDelay <= 0 {
		return defaultBaseDelay
	}
	return p.BaseDelay
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.sleepFn != nil {
		return p.sleepFn(ctx, d)
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

// Do runs fn until it succeeds, the attempts are exhausted, or the error is
// permanent. The delay before attempt n (zero-based) is base·2^n. Permanent
// errors are returned immediately, never retried.
func (p Policy) Do(ctx context.Context, label string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < p.maxAttempts(); attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if brewerr.IsPermanent(err) {
			return err
		}
		lastErr = err

		delay := p.baseDelay() << attempt
		if p.Logger != nil {
			p.Logger.Warn("operation failed, backing off",
				"op", label,
				"attempt", attempt+1,
				"max_attempts", p.maxAttempts(),
				"delay", delay,
				"error", err,
			)
		}
		if attempt == p.maxAttempts()-1 {
			break
		}
		if err := p.sleep(ctx, delay); err != nil {
			return err
		}
	}
	return fmt.Errorf("%s: retries exhausted: %w", label, lastErr)
}
