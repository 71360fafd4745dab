// Package timer schedules single-shot actions that can be replaced or
// cancelled through a handle.
package timer

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	statePending int32 = iota
	stateFired
	stateCancelled
)

// Handle identifies one scheduled action.
type Handle struct {
	t        *time.Timer
	state    atomic.Int32
	onCancel func()
}

// Cancel stops the action if it has not started. It reports false when the
// action already fired or was cancelled before.
func (h *Handle) Cancel() bool {
	if h == nil || !h.state.CompareAndSwap(statePending, stateCancelled) {
		return false
	}
	h.t.Stop()
	if h.onCancel != nil {
		h.onCancel()
	}
	return true
}

// Stopped reports whether the action fired or was cancelled.
func (h *Handle) Stopped() bool {
	return h == nil || h.state.Load() != statePending
}

// ScheduleOption customizes a scheduled action.
type ScheduleOption func(*Handle)

// OnCancel registers fn to run once if the action is cancelled or replaced
// before it fires.
func OnCancel(fn func()) ScheduleOption {
	return func(h *Handle) { h.onCancel = fn }
}

// Timer holds at most one pending action.
type Timer struct {
	mu      sync.Mutex
	current *Handle
}

// New returns an idle Timer.
func New() *Timer { return &Timer{} }

// ScheduleAndCancelPrevious cancels any pending action and schedules action
// to run once after the delay.
func (t *Timer) ScheduleAndCancelPrevious(after time.Duration, action func(), opts ...ScheduleOption) *Handle {
	t.mu.Lock()
	prev := t.current
	h := t.scheduleLocked(after, action, opts)
	t.mu.Unlock()

	prev.Cancel()
	return h
}

// ScheduleIfNotScheduled schedules action unless one is already pending.
func (t *Timer) ScheduleIfNotScheduled(after time.Duration, action func(), opts ...ScheduleOption) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current != nil && !t.current.Stopped() {
		return false
	}
	t.scheduleLocked(after, action, opts)
	return true
}

func (t *Timer) scheduleLocked(after time.Duration, action func(), opts []ScheduleOption) *Handle {
	h := &Handle{}
	for _, opt := range opts {
		opt(h)
	}
	h.t = time.AfterFunc(after, func() {
		if !h.state.CompareAndSwap(statePending, stateFired) {
			return
		}
		t.mu.Lock()
		if t.current == h {
			t.current = nil
		}
		t.mu.Unlock()
		action()
	})
	t.current = h
	return h
}

// Cancel cancels the pending action, if any.
func (t *Timer) Cancel() bool {
	t.mu.Lock()
	h := t.current
	t.current = nil
	t.mu.Unlock()
	return h.Cancel()
}

// Pending reports whether an action is scheduled and has not fired.
func (t *Timer) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current != nil && !t.current.Stopped()
}
