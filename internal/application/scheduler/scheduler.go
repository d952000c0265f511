package scheduler

import "time"

// CancelFunc stops a scheduled firing. Calling it after the callback ran, or
// more than once, is harmless.
type CancelFunc func()

// Scheduler fires a callback exactly once at a deadline unless cancelled.
// An abstraction over ambient timers so tests can drive time by hand.
type Scheduler interface {
	ScheduleOnce(deadline time.Time, fn func()) CancelFunc
}

// TimerScheduler schedules on process timers.
type TimerScheduler struct{}

// NewTimerScheduler creates the production scheduler.
func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{}
}

// ScheduleOnce runs fn in its own goroutine once the deadline passes.
// Deadlines already in the past fire immediately.
func (s *TimerScheduler) ScheduleOnce(deadline time.Time, fn func()) CancelFunc {
	timer := time.AfterFunc(time.Until(deadline), fn)
	return func() { timer.Stop() }
}
