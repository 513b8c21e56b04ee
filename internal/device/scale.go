// Package device defines the capability interfaces for the rig's hardware,
// a Bluetooth kitchen scale and a stepper-driven needle valve, plus mock
// implementations for development and tests. Physical transports live
// outside this module and plug in behind these interfaces.
package device

import (
	"sync"
	"time"

	"github.com/tomnis/coldbrewer/internal/brewerr"
)

// Scale is the weight sensor. Implementations must be safe for concurrent
// use: the sample collector and the HTTP surface both read it.
type Scale interface {
	Connected() bool
	Connect() error
	Disconnect() error

	// Weight returns the current reading in grams.
	Weight() (float64, error)
	Units() (string, error)
	BatteryPercentage() (int, error)
}

// MockScale simulates a scale under a dripping vessel: once connected, the
// reported weight grows at DripRate grams per second of wall time. Tests
// pin the clock to get exact readings.
type MockScale struct {
	mu sync.Mutex

	connected bool
	weight    float64
	battery   int
	units     string

	// DripRate is the simulated inflow in g/s while connected.
	DripRate float64
	// FailConnect makes Connect return a transient error, for exercising
	// the breaker and retry paths.
	FailConnect bool

	lastTick time.Time
	nowFn    func() time.Time
}

// NewMockScale returns a disconnected mock at zero weight with a full
// battery.
func NewMockScale() *MockScale {
	return &MockScale{
		battery: 100,
		units:   "grams",
		nowFn:   time.Now,
	}
}

func (s *MockScale) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *MockScale) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailConnect {
		return brewerr.ScaleConnection(nil)
	}
	s.connected = true
	s.lastTick = s.nowFn()
	return nil
}

// Disconnect resets the simulated weight, mirroring a real scale that tares
// on reconnect.
func (s *MockScale) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	s.weight = 0
	return nil
}

func (s *MockScale) Weight() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return 0, brewerr.ScaleRead(nil)
	}
	s.advance()
	return s.weight, nil
}

func (s *MockScale) Units() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return "", brewerr.ScaleRead(nil)
	}
	return s.units, nil
}

func (s *MockScale) BatteryPercentage() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return 0, brewerr.ScaleRead(nil)
	}
	return s.battery, nil
}

// SetWeight pins the reading directly, bypassing the drip simulation.
func (s *MockScale) SetWeight(grams float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.weight = grams
	s.lastTick = s.nowFn()
}

// SetFailConnect toggles connect failures while goroutines are using the
// scale.
func (s *MockScale) SetFailConnect(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FailConnect = fail
}

// SetBattery pins the reported battery percentage.
func (s *MockScale) SetBattery(pct int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.battery = pct
}

// advance accrues drip since the last read. Caller holds mu.
func (s *MockScale) advance() {
	now := s.nowFn()
	if s.DripRate != 0 && !s.lastTick.IsZero() {
		s.weight += s.DripRate * now.Sub(s.lastTick).Seconds()
	}
	s.lastTick = now
}
