package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomnis/coldbrewer/internal/brewerr"
)

func newTestPolicy(maxAttempts int, slept *[]time.Duration) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		BaseDelay:   10 * time.Millisecond,
		sleepFn: func(_ context.Context, d time.Duration) error {
			*slept = append(*slept, d)
			return nil
		},
	}
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	var slept []time.Duration
	p := newTestPolicy(3, &slept)

	calls := 0
	err := p.Do(context.Background(), "op", func(context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, slept)
}

func TestDo_ExponentialDelays(t *testing.T) {
	var slept []time.Duration
	p := newTestPolicy(4, &slept)

	calls := 0
	err := p.Do(context.Background(), "op", func(context.Context) error {
		calls++
		if calls < 4 {
			return errors.New("flaky")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 4, calls)
	// base·2^0, base·2^1, base·2^2
	assert.Equal(t, []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		40 * time.Millisecond,
	}, slept)
}

func TestDo_NeverRetriesPermanent(t *testing.T) {
	var slept []time.Duration
	p := newTestPolicy(5, &slept)

	calls := 0
	err := p.Do(context.Background(), "op", func(context.Context) error {
		calls++
		return brewerr.ValveNotAcquired("step_forward")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, slept)
	assert.True(t, brewerr.IsPermanent(err))
}

func TestDo_ExhaustionWrapsLastError(t *testing.T) {
	var slept []time.Duration
	p := newTestPolicy(2, &slept)

	sentinel := errors.New("still down")
	err := p.Do(context.Background(), "write_sample", func(context.Context) error {
		return sentinel
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Contains(t, err.Error(), "write_sample")
	// no sleep after the final attempt
	assert.Len(t, slept, 1)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{
		MaxAttempts: 3,
		BaseDelay:   10 * time.Millisecond,
		sleepFn: func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		},
	}

	err := p.Do(ctx, "op", func(context.Context) error {
		return errors.New("flaky")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPolicy_ZeroValueDefaults(t *testing.T) {
	var p Policy
	assert.Equal(t, 3, p.maxAttempts())
	assert.Equal(t, time.Second, p.baseDelay())
}
