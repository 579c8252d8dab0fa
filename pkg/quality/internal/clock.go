// Package internal provides the time source shared by the quality packages.
package internal

import (
	"sync"
	"time"
)

// Clock is an interface for obtaining the current time.
// Decision code never calls time.Now directly so that gate timing can be
// driven deterministically in tests.
type Clock interface {
	Now() time.Time
}

// MonotonicClock is a Clock backed by time.Now, which carries a monotonic
// reading in Go and is therefore safe for measuring switch intervals.
type MonotonicClock struct{}

// Now returns the current system time.
func (MonotonicClock) Now() time.Time {
	return time.Now()
}

// MockClock is a manually driven Clock for tests. It is safe for concurrent
// use so that it can be shared between a session and its sampler goroutines.
type MockClock struct {
	mu      sync.Mutex
	current time.Time
}

// NewMockClock creates a MockClock at t. A zero t starts the clock at a fixed
// non-zero instant so that "zero time" keeps meaning "never".
func NewMockClock(t time.Time) *MockClock {
	if t.IsZero() {
		t = time.Unix(1_000_000_000, 0)
	}
	return &MockClock{current: t}
}

// Now returns the mock clock's current time.
func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Advance moves the clock forward by d and returns the new time.
// Panics if d is negative.
func (m *MockClock) Advance(d time.Duration) time.Time {
	if d < 0 {
		panic("MockClock.Advance: duration must be non-negative")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.current.Add(d)
	return m.current
}

// Set moves the clock to t.
func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = t
}
