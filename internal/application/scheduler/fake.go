package scheduler

import (
	"sync"
	"time"
)

// Fake is a hand-driven scheduler for tests: nothing fires until FireNext
// or FireAll is called.
type Fake struct {
	mu      sync.Mutex
	entries []*fakeEntry
}

type fakeEntry struct {
	Deadline  time.Time
	Fn        func()
	cancelled bool
	fired     bool
}

// NewFake creates an empty fake scheduler.
func NewFake() *Fake {
	return &Fake{}
}

// ScheduleOnce records the callback without starting any timer.
func (f *Fake) ScheduleOnce(deadline time.Time, fn func()) CancelFunc {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := &fakeEntry{Deadline: deadline, Fn: fn}
	f.entries = append(f.entries, e)
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		e.cancelled = true
	}
}

// Pending reports how many callbacks are scheduled and neither fired nor
// cancelled.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.entries {
		if !e.fired && !e.cancelled {
			n++
		}
	}
	return n
}

// FireNext runs the oldest pending callback synchronously. Returns false
// when nothing is pending.
func (f *Fake) FireNext() bool {
	f.mu.Lock()
	var next *fakeEntry
	for _, e := range f.entries {
		if !e.fired && !e.cancelled {
			next = e
			break
		}
	}
	if next == nil {
		f.mu.Unlock()
		return false
	}
	next.fired = true
	f.mu.Unlock()

	next.Fn()
	return true
}

// FireAll runs pending callbacks until none remain, including ones scheduled
// by the callbacks themselves, up to a fixed bound to avoid chaining forever.
func (f *Fake) FireAll(limit int) int {
	fired := 0
	for fired < limit && f.FireNext() {
		fired++
	}
	return fired
}
