// Package clock provides wall and monotonic time sources.
package clock

import (
	"sync"
	"time"
)

// Clock is the time source used by the dispatch core.
type Clock interface {
	// Now returns the current wall time in UTC.
	Now() time.Time
	// Monotonic returns the time elapsed since the clock was created.
	Monotonic() time.Duration
}

// Real reads the system clock.
type Real struct {
	start time.Time
}

// NewReal returns a system clock.
func NewReal() *Real {
	return &Real{start: time.Now()}
}

func (r *Real) Now() time.Time { return time.Now().UTC() }

func (r *Real) Monotonic() time.Duration { return time.Since(r.start) }

// Manual is a settable clock for tests.
type Manual struct {
	mu    sync.Mutex
	now   time.Time
	start time.Time
}

// NewManual returns a clock frozen at t.
func NewManual(t time.Time) *Manual {
	return &Manual{now: t.UTC(), start: t.UTC()}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Monotonic() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now.Sub(m.start)
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

// Set moves the clock to t. Monotonic time never goes backwards.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.Before(m.now) {
		return
	}
	m.now = t.UTC()
}

var (
	_ Clock = (*Real)(nil)
	_ Clock = (*Manual)(nil)
)
