// Package sched provides a small timer abstraction: after(duration, task)
// returning a cancellable handle, used by the Composite for its 200ms
// end-of-transition debounce. The Composite's 10ms bus-error retry runs
// through retry-go instead.
//
// Callbacks run on their own goroutine (mirroring time.AfterFunc) rather
// than a shared single-threaded loop; callers that must not race with each
// other serialize through their own lock, exactly as the Composite already
// does via its transition/adjustment locks.
package sched

import "time"

// Handle is a cancellable scheduled task.
type Handle struct {
	timer *time.Timer
}

// Cancel stops the task if it has not yet fired. It is safe to call
// multiple times.
func (h *Handle) Cancel() {
	if h == nil || h.timer == nil {
		return
	}
	h.timer.Stop()
}

// After schedules task to run once after d elapses.
func After(d time.Duration, task func()) *Handle {
	return &Handle{timer: time.AfterFunc(d, task)}
}
