package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomnis/coldbrewer/internal/brewerr"
)

// fakeClock lets tests advance the breaker's view of time directly.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(cfg Config) (*Breaker, *fakeClock) {
	b := New(cfg)
	clk := &fakeClock{t: time.Unix(1700000000, 0)}
	b.nowFn = clk.now
	return b, clk
}

func TestNew_Defaults(t *testing.T) {
	b := New(Config{})
	assert.Equal(t, 3, b.cfg.FailureThreshold)
	assert.Equal(t, 1, b.cfg.SuccessThreshold)
	assert.Equal(t, 15*time.Second, b.cfg.Cooldown)
	assert.Equal(t, StateClosed, b.CurrentState())
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 3})

	fail := errors.New("dial failed")
	b.Record(fail)
	b.Record(fail)
	require.NoError(t, b.Allow(), "below threshold, still closed")

	b.Record(fail)
	assert.Equal(t, StateOpen, b.CurrentState())

	err := b.Allow()
	require.Error(t, err)
	assert.True(t, brewerr.IsRetryable(err), "rejection surfaces as a transient scale error")
}

func TestBreaker_SuccessResetsFailureStreak(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 3})

	fail := errors.New("dial failed")
	b.Record(fail)
	b.Record(fail)
	b.Record(nil)
	b.Record(fail)
	b.Record(fail)

	require.NoError(t, b.Allow())
	assert.Equal(t, StateClosed, b.CurrentState())
}

func TestBreaker_HalfOpensAfterCooldown(t *testing.T) {
	b, clk := newTestBreaker(Config{FailureThreshold: 1, Cooldown: 15 * time.Second})

	b.Record(errors.New("dial failed"))
	require.Error(t, b.Allow())

	clk.advance(15 * time.Second)
	require.NoError(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.CurrentState())
}

func TestBreaker_ProbeSuccessCloses(t *testing.T) {
	b, clk := newTestBreaker(Config{FailureThreshold: 1, Cooldown: time.Second})

	b.Record(errors.New("dial failed"))
	clk.advance(time.Second)
	require.NoError(t, b.Allow())

	b.Record(nil)
	assert.Equal(t, StateClosed, b.CurrentState())
}

func TestBreaker_ProbeFailureReopens(t *testing.T) {
	b, clk := newTestBreaker(Config{FailureThreshold: 1, Cooldown: time.Second})

	b.Record(errors.New("dial failed"))
	clk.advance(time.Second)
	require.NoError(t, b.Allow())

	b.Record(errors.New("still down"))
	assert.Equal(t, StateOpen, b.CurrentState())
	require.Error(t, b.Allow())
}

func TestBreaker_StateChangeCallback(t *testing.T) {
	var transitions []struct{ from, to State }
	b, clk := newTestBreaker(Config{
		FailureThreshold: 2,
		Cooldown:         time.Second,
		OnStateChange: func(from, to State) {
			transitions = append(transitions, struct{ from, to State }{from, to})
		},
	})

	b.Record(errors.New("x"))
	b.Record(errors.New("x"))
	clk.advance(time.Second)
	_ = b.Allow()
	b.Record(nil)

	require.Len(t, transitions, 3)
	assert.Equal(t, StateClosed, transitions[0].from)
	assert.Equal(t, StateOpen, transitions[0].to)
	assert.Equal(t, StateHalfOpen, transitions[1].to)
	assert.Equal(t, StateClosed, transitions[2].to)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(42).String())
}
