// Package circuitbreaker guards the scale's Bluetooth link. Reconnect
// attempts against a powered-off scale take seconds each; the breaker stops
// the collector from burning its whole cadence on doomed dials.
package circuitbreaker

import (
	"sync"
	"time"

	"github.com/tomnis/coldbrewer/internal/brewerr"
)

// State of the breaker.
type State int

const (
	StateClosed   State = iota // link healthy, attempts pass through
	StateOpen                  // link down, attempts rejected until cooldown
	StateHalfOpen              // probing: attempts allowed through
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

const (
	defaultFailureThreshold = 3
	defaultSuccessThreshold = 1
	defaultCooldown         = 15 * time.Second
)

// Config tunes the breaker. Zero fields take the defaults above, sized for
// a Bluetooth scale: trip after 3 consecutive failures, probe again after
// 15s, close on the first successful probe.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	Cooldown         time.Duration
	OnStateChange    func(from, to State)
}

// Breaker is safe for concurrent use, though in practice only the sample
// collector touches it.
type Breaker struct {
	mu sync.Mutex

	state     State
	failures  int
	successes int
	openedAt  time.Time
	cfg       Config
	nowFn     func() time.Time // injectable clock for tests
}

func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = defaultFailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = defaultSuccessThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultCooldown
	}
	return &Breaker{cfg: cfg, nowFn: time.Now}
}

// Allow reports whether an attempt may proceed. While open it returns a
// transient scale-connection error so callers surface it through the normal
// degraded-state path; once the cooldown elapses the breaker half-opens and
// lets a probe through.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if b.nowFn().Sub(b.openedAt) >= b.cfg.Cooldown {
			b.transition(StateHalfOpen)
			return nil
		}
		return brewerr.ScaleConnection(nil)
	}
	return nil
}

// Record feeds the outcome of an attempt back into the breaker.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.failures = 0
		if b.state == StateHalfOpen {
			b.successes++
			if b.successes >= b.cfg.SuccessThreshold {
				b.transition(StateClosed)
			}
		}
		return
	}

	b.successes = 0
	b.failures++
	b.openedAt = b.nowFn()
	if b.state == StateHalfOpen || (b.state == StateClosed && b.failures >= b.cfg.FailureThreshold) {
		b.transition(StateOpen)
	}
}

// CurrentState returns the breaker state, half-opening first if the open
// cooldown has elapsed.
func (b *Breaker) CurrentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.nowFn().Sub(b.openedAt) >= b.cfg.Cooldown {
		b.transition(StateHalfOpen)
	}
	return b.state
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.successes = 0
	if to == StateClosed {
		b.failures = 0
	}
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
}
