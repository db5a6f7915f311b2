package library

import (
	"sync"
	"time"
)

// Clock supplies timestamps for loans and history events.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SteppingClock is a deterministic Clock that advances by a fixed step on
// every call. The first call returns the start time.
//
// Safe for concurrent use.
type SteppingClock struct {
	mu   sync.Mutex
	next time.Time
	step time.Duration
}

// NewSteppingClock creates a clock starting at start and advancing by step.
func NewSteppingClock(start time.Time, step time.Duration) *SteppingClock {
	return &SteppingClock{next: start, step: step}
}

// Now returns the current time and advances the clock.
func (c *SteppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.next
	c.next = c.next.Add(c.step)
	return t
}

// monotonic wraps a Clock so that consecutive readings never go backwards,
// even if the wall clock is adjusted.
type monotonic struct {
	clock Clock
	last  time.Time
}

func (m *monotonic) now() time.Time {
	t := m.clock.Now()
	if t.Before(m.last) {
		return m.last
	}
	m.last = t
	return t
}
