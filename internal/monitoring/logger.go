// Package monitoring holds the diagnostic logger shared by library packages.
package monitoring

import (
	"log"
	"sync"
	"time"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Throttle logs at most one message per key per interval. The live loop runs
// at camera frame rate, so a dead telemetry sink would otherwise log on every
// frame. Suppressed messages are counted and reported with the next one that
// gets through.
type Throttle struct {
	every time.Duration
	now   func() time.Time

	mu         sync.Mutex
	last       map[string]time.Time
	suppressed map[string]int
}

// NewThrottle returns a throttle using now as its time source; nil uses
// time.Now.
func NewThrottle(every time.Duration, now func() time.Time) *Throttle {
	if now == nil {
		now = time.Now
	}
	return &Throttle{
		every:      every,
		now:        now,
		last:       make(map[string]time.Time),
		suppressed: make(map[string]int),
	}
}

// Logf logs through the package logger unless key logged within the interval.
func (t *Throttle) Logf(key, format string, v ...interface{}) {
	t.mu.Lock()
	now := t.now()
	if last, ok := t.last[key]; ok && now.Sub(last) < t.every {
		t.suppressed[key]++
		t.mu.Unlock()
		return
	}
	n := t.suppressed[key]
	t.last[key] = now
	delete(t.suppressed, key)
	t.mu.Unlock()

	if n > 0 {
		format += " (%d similar suppressed)"
		v = append(v, n)
	}
	Logf(format, v...)
}
