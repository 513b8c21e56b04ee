package device

import "sync"

// Valve is the stepper-driven needle valve. One step is one motor
// increment; implementations decide step size and direction mapping.
type Valve interface {
	StepForward() error
	StepBackward() error

	// ReturnToStart homes the valve to the fully-closed position.
	ReturnToStart() error
	// Release de-energizes the motor so it does not cook between brews.
	Release() error
}

// MockValve tracks position in memory and counts releases, for asserting
// teardown behavior in tests.
type MockValve struct {
	mu sync.Mutex

	position int
	releases int

	// StepErr, when set, is returned by both step operations, for
	// exercising valve fault handling.
	StepErr error
}

// NewMockValve returns a mock homed at position zero.
func NewMockValve() *MockValve { return &MockValve{} }

func (v *MockValve) StepForward() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.StepErr != nil {
		return v.StepErr
	}
	v.position++
	return nil
}

func (v *MockValve) StepBackward() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.StepErr != nil {
		return v.StepErr
	}
	v.position--
	return nil
}

func (v *MockValve) ReturnToStart() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.position = 0
	return nil
}

func (v *MockValve) Release() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.releases++
	return nil
}

// Position reports the net step count since homing.
func (v *MockValve) Position() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.position
}

// Releases reports how many times Release has been called.
func (v *MockValve) Releases() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.releases
}
