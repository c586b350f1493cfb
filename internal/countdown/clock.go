package countdown

import "time"

// Clock provides the current time.
// This interface allows time to be mocked in tests.
type Clock interface {
	Now() time.Time
}

// RealClock provides actual system time.
type RealClock struct{}

// Now returns the current system time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// MockClock provides settable time for testing.
type MockClock struct {
	CurrentTime time.Time
}

// Now returns the mocked time.
func (m *MockClock) Now() time.Time {
	return m.CurrentTime
}

// Advance moves the mocked time forward by d.
func (m *MockClock) Advance(d time.Duration) {
	m.CurrentTime = m.CurrentTime.Add(d)
}

// Set sets the mocked time.
func (m *MockClock) Set(t time.Time) {
	m.CurrentTime = t
}

var (
	_ Clock = RealClock{}
	_ Clock = (*MockClock)(nil)
)
