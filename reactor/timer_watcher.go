// File: reactor/timer_watcher.go
// Author: momentics <momentics@gmail.com>
//
// TimerWatcher fires repeatedly every N seconds while armed.

package reactor

import "github.com/momentics/evreactor/api"

// TimerCallback receives the watcher handle (primitive form).
type TimerCallback func(w *TimerWatcher)

// TimerWatcher is a repeating interval timer.
type TimerWatcher struct {
	watcherBase
	seconds float64
	entry   *timerEntry
	cb      TimerCallback
}

// NewTimerWatcher builds a repeating timer with the given period in
// seconds. A non-positive period leaves the timer disabled until Seconds
// is set to a positive value.
func (l *Loop) NewTimerWatcher(seconds float64, cb TimerCallback) *TimerWatcher {
	return &TimerWatcher{
		watcherBase: watcherBase{loop: l, priority: PriorityNormal},
		seconds:     seconds,
		cb:          cb,
	}
}

// NewTimerWatcherFunc is arity-reduced sugar over NewTimerWatcher.
func (l *Loop) NewTimerWatcherFunc(seconds float64, fn func()) *TimerWatcher {
	return l.NewTimerWatcher(seconds, func(*TimerWatcher) { fn() })
}

// Start arms the timer if its period is positive. A non-positive period
// still registers the cleanup subscription, so a later SetSeconds can arm
// a dormant timer created with period 0 (the "0 seconds = disabled" idle
// timer pattern).
func (w *TimerWatcher) Start() (*TimerWatcher, error) {
	if w.cancelled {
		return nil, api.ErrWatcherCancelled
	}
	if w.active {
		return w, nil
	}
	w.registerCleanup(w.onCleanup)
	if w.seconds <= 0 {
		return w, nil
	}
	w.arm()
	return w, nil
}

func (w *TimerWatcher) arm() {
	l := w.loop
	l.timerSeq++
	e := &timerEntry{
		deadline: l.Time() + w.seconds,
		seq:      l.timerSeq,
		period:   w.seconds,
	}
	e.fire = func() { w.fire(e) }
	w.entry = e
	l.timers.push(e)
	w.active = true
}

func (w *TimerWatcher) fire(e *timerEntry) {
	if e.cancelled {
		return
	}
	if w.cb != nil {
		w.cb(w)
	}
	if e.cancelled || !w.active {
		return
	}
	// reschedule for the next period, measured from the deadline that just
	// fired (not "now") so a slow callback does not drift the phase.
	l := w.loop
	l.timerSeq++
	e2 := &timerEntry{deadline: e.deadline + w.seconds, seq: l.timerSeq, period: w.seconds}
	e2.fire = func() { w.fire(e2) }
	w.entry = e2
	l.timers.push(e2)
}

// Stop disarms the timer without cancelling its cleanup subscription.
func (w *TimerWatcher) Stop() bool {
	if !w.active {
		return false
	}
	if w.entry != nil {
		w.entry.cancelled = true
		w.loop.timers.removeEntry(w.entry)
		w.entry = nil
	}
	w.active = false
	return true
}

// Cancel disarms and permanently retires the timer.
func (w *TimerWatcher) Cancel() {
	w.Stop()
	w.deregisterCleanup()
	w.cancelled = true
}

// Seconds returns the configured period.
func (w *TimerWatcher) Seconds() float64 { return w.seconds }

// SetSeconds re-initializes the repeat period. A positive value stops any
// running timer, restarts it with the new period; a non-positive value
// disables the timer.
func (w *TimerWatcher) SetSeconds(seconds float64) {
	w.Stop()
	w.seconds = seconds
	if seconds > 0 && w.hasCleanup {
		w.arm()
	}
}

func (w *TimerWatcher) SetPriority(p Priority) { w.priority = p }

func (w *TimerWatcher) onCleanup() {
	if w.cancelled {
		return
	}
	w.Stop()
	w.cancelled = true
}
