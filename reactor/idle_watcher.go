// File: reactor/idle_watcher.go
// Author: momentics <momentics@gmail.com>
//
// IdleWatcher fires once per loop iteration while armed, after I/O, timers
// and signals have been dispatched; while any idle watcher is armed the
// loop polls the backend without blocking. The Loop
// keeps exactly one internal IdleWatcher of its own to drain the
// deferred-call queue (see Loop.Call); user code may register additional
// ones for the same "run when otherwise idle" semantics.

package reactor

import "github.com/momentics/evreactor/api"

// IdleCallback receives the watcher handle (primitive form).
type IdleCallback func(w *IdleWatcher)

// IdleWatcher runs its callback once per dispatch pass while armed.
type IdleWatcher struct {
	watcherBase
	cb IdleCallback
}

// NewIdleWatcher constructs a user idle watcher.
func (l *Loop) NewIdleWatcher(cb IdleCallback) *IdleWatcher {
	return &IdleWatcher{watcherBase: watcherBase{loop: l, priority: PriorityNormal}, cb: cb}
}

// NewIdleWatcherFunc is arity-reduced sugar over NewIdleWatcher.
func (l *Loop) NewIdleWatcherFunc(fn func()) *IdleWatcher {
	return l.NewIdleWatcher(func(*IdleWatcher) { fn() })
}

// Start arms the watcher.
func (w *IdleWatcher) Start() (*IdleWatcher, error) {
	if w.cancelled {
		return nil, api.ErrWatcherCancelled
	}
	if w.active {
		return w, nil
	}
	w.active = true
	w.loop.idleWatchers = append(w.loop.idleWatchers, w)
	w.registerCleanup(w.onCleanup)
	return w, nil
}

// Stop disarms the watcher.
func (w *IdleWatcher) Stop() bool {
	if !w.active {
		return false
	}
	w.loop.removeIdleWatcher(w)
	w.active = false
	return true
}

// Cancel disarms and permanently retires the watcher.
func (w *IdleWatcher) Cancel() {
	w.Stop()
	w.deregisterCleanup()
	w.cancelled = true
}

func (w *IdleWatcher) SetPriority(p Priority) { w.priority = p }

func (w *IdleWatcher) onCleanup() {
	if w.cancelled {
		return
	}
	w.Stop()
	w.cancelled = true
}

func (l *Loop) removeIdleWatcher(w *IdleWatcher) {
	for i, iw := range l.idleWatchers {
		if iw == w {
			l.idleWatchers = append(l.idleWatchers[:i], l.idleWatchers[i+1:]...)
			return
		}
	}
}
