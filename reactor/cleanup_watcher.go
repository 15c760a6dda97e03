// File: reactor/cleanup_watcher.go
// Author: momentics <momentics@gmail.com>
//
// CleanupWatcher lets user code hook Loop teardown directly, on top of the
// implicit cleanup subscription every other watcher already carries.

package reactor

import "github.com/momentics/evreactor/api"

// CleanupCallback fires exactly once, when the owning Loop is destroyed.
type CleanupCallback func(w *CleanupWatcher)

// CleanupWatcher runs its callback exactly once at Loop teardown.
type CleanupWatcher struct {
	watcherBase
	cb CleanupCallback
}

// NewCleanupWatcher constructs a teardown hook.
func (l *Loop) NewCleanupWatcher(cb CleanupCallback) *CleanupWatcher {
	return &CleanupWatcher{watcherBase: watcherBase{loop: l, priority: PriorityNormal}, cb: cb}
}

// NewCleanupWatcherFunc is arity-reduced sugar over NewCleanupWatcher.
func (l *Loop) NewCleanupWatcherFunc(fn func()) *CleanupWatcher {
	return l.NewCleanupWatcher(func(*CleanupWatcher) { fn() })
}

// Start arms the watcher.
func (w *CleanupWatcher) Start() (*CleanupWatcher, error) {
	if w.cancelled {
		return nil, api.ErrWatcherCancelled
	}
	if w.active {
		return w, nil
	}
	w.active = true
	w.registerCleanup(w.fire)
	return w, nil
}

// Stop disarms the watcher; since a cleanup watcher has no other armed
// state, Stop is equivalent to Cancel minus the "permanently dead" mark.
func (w *CleanupWatcher) Stop() bool {
	if !w.active {
		return false
	}
	w.deregisterCleanup()
	w.active = false
	return true
}

// Cancel disarms and permanently retires the watcher.
func (w *CleanupWatcher) Cancel() {
	w.Stop()
	w.cancelled = true
}

func (w *CleanupWatcher) SetPriority(p Priority) { w.priority = p }

func (w *CleanupWatcher) fire() {
	if w.cancelled || !w.active {
		return
	}
	w.active = false
	if w.cb != nil {
		w.cb(w)
	}
}
