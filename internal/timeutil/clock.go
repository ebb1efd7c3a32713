// Package timeutil lets the live pipeline, the telemetry sinks and the mock
// serial source read time and tick through an interface, so tests can step
// time by hand.
package timeutil

import (
	"sync"
	"time"
)

// Clock is the time source used for sample timestamps and pacing.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	// NewTicker ticks every d until stopped.
	NewTicker(d time.Duration) Ticker
}

// Ticker is the subset of *time.Ticker the callers use.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock reads the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time                  { return time.Now() }
func (RealClock) Since(t time.Time) time.Duration { return time.Since(t) }
func (RealClock) NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// MockClock only moves when told to. Tickers created from it fire during
// Advance.
type MockClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers map[*MockTicker]struct{}
}

func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t, tickers: make(map[*MockTicker]struct{})}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *MockClock) Since(t time.Time) time.Duration { return c.Now().Sub(t) }

// Set jumps to t without firing tickers.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d and fires every ticker whose next
// tick has been reached.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	due := make([]*MockTicker, 0, len(c.tickers))
	for t := range c.tickers {
		due = append(due, t)
	}
	c.mu.Unlock()

	for _, t := range due {
		t.fire(now)
	}
}

func (c *MockClock) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("timeutil: non-positive interval for NewTicker")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &MockTicker{clock: c, ch: make(chan time.Time, 1), every: d, next: c.now.Add(d)}
	c.tickers[t] = struct{}{}
	return t
}

// MockTicker delivers the scheduled tick time. Like time.Ticker it keeps its
// phase, holds at most one pending tick and drops ticks missed by a large
// Advance.
type MockTicker struct {
	clock *MockClock
	ch    chan time.Time
	every time.Duration

	mu   sync.Mutex
	next time.Time
}

func (t *MockTicker) C() <-chan time.Time { return t.ch }

// Stop detaches the ticker from its clock. No ticks follow.
func (t *MockTicker) Stop() {
	t.clock.mu.Lock()
	delete(t.clock.tickers, t)
	t.clock.mu.Unlock()
}

func (t *MockTicker) fire(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if now.Before(t.next) {
		return
	}
	tick := t.next
	for !t.next.After(now) {
		t.next = t.next.Add(t.every)
	}
	select {
	case t.ch <- tick:
	default:
	}
}
