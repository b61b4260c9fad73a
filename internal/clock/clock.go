package clock

import (
	"sync"
	"sync/atomic"
	"time"
)

// Clock reports the current unix time in seconds.
type Clock interface {
	Now() int64
}

// System reads the wall clock but never reports a value lower than one it has
// already returned.
type System struct {
	last atomic.Int64
}

// NewSystem returns a clock that follows the wall clock.
func NewSystem() *System {
	return &System{}
}

// Now returns unix seconds, never less than a previous call returned.
func (s *System) Now() int64 {
	now := time.Now().Unix()
	for {
		prev := s.last.Load()
		if now <= prev {
			return prev
		}
		if s.last.CompareAndSwap(prev, now) {
			return now
		}
	}
}

// Manual is a clock that only moves when told to. Used by tests and replays.
type Manual struct {
	mu  sync.Mutex
	now int64
}

// NewManual returns a clock stopped at now.
func NewManual(now int64) *Manual {
	return &Manual{now: now}
}

// Now returns the current setting.
func (m *Manual) Now() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set moves the clock to now, backwards included.
func (m *Manual) Set(now int64) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// Advance moves the clock forward by d, truncated to whole seconds.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now += int64(d / time.Second)
	m.mu.Unlock()
}
