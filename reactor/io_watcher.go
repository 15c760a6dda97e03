// File: reactor/io_watcher.go
// Author: momentics <momentics@gmail.com>
//
// IOWatcher bridges backend readiness on one file descriptor to a user
// callback. One IOWatcher owns one fd; READ and WRITE interest are both
// expressed through EventMask mutation on the same watcher, matching
// spec's "write watcher may be the same watcher with mask mutation".

package reactor

import "github.com/momentics/evreactor/api"

// IOCallback receives the watcher handle plus the readiness bitmask that
// triggered the call. This is the primitive form (design note: "the handle
// variant of the callback is the primitive, the arity-reduced variant is
// sugar").
type IOCallback func(w *IOWatcher, revents EventMask)

// IOWatcher watches one fd for readiness.
type IOWatcher struct {
	watcherBase
	fd   int
	mask EventMask
	cb   IOCallback
}

// NewIOWatcher constructs an IOWatcher for fd with the given initial
// interest mask. It is not armed until Start is called.
func (l *Loop) NewIOWatcher(fd int, mask EventMask, cb IOCallback) *IOWatcher {
	return &IOWatcher{
		watcherBase: watcherBase{loop: l, priority: PriorityNormal},
		fd:          fd,
		mask:        mask,
		cb:          cb,
	}
}

// NewIOWatcherFunc is sugar over NewIOWatcher for callers that don't need
// the watcher handle inside the callback.
func (l *Loop) NewIOWatcherFunc(fd int, mask EventMask, fn func(revents EventMask)) *IOWatcher {
	return l.NewIOWatcher(fd, mask, func(_ *IOWatcher, revents EventMask) { fn(revents) })
}

// Start arms the watcher, registering fd with the backend.
func (w *IOWatcher) Start() (*IOWatcher, error) {
	if w.cancelled {
		return nil, api.ErrWatcherCancelled
	}
	if w.active {
		return w, nil
	}
	if err := w.loop.backend.Add(w.fd, w.mask); err != nil {
		return nil, err
	}
	w.active = true
	w.loop.ioWatchers[w.fd] = w
	w.registerCleanup(w.onCleanup)
	return w, nil
}

// Stop disarms the watcher, returning whether it had been armed.
func (w *IOWatcher) Stop() bool {
	if !w.active {
		return false
	}
	_ = w.loop.backend.Remove(w.fd)
	delete(w.loop.ioWatchers, w.fd)
	w.active = false
	return true
}

// Cancel disarms and permanently retires the watcher.
func (w *IOWatcher) Cancel() {
	w.Stop()
	w.deregisterCleanup()
	w.cancelled = true
}

// EventMask returns the currently registered interest mask.
func (w *IOWatcher) EventMask() EventMask { return w.mask }

// SetEventMask changes interest, transparently re-arming if active.
func (w *IOWatcher) SetEventMask(mask EventMask) {
	w.mask = mask
	if w.active {
		_ = w.loop.backend.Modify(w.fd, mask)
	}
}

// SetPriority changes dispatch ordering; priority is consulted live at
// each dispatch pass so no backend re-registration is required.
func (w *IOWatcher) SetPriority(p Priority) { w.priority = p }

func (w *IOWatcher) onCleanup() {
	if w.cancelled {
		return
	}
	if w.active && w.cb != nil {
		w.cb(w, EventCleanup)
	}
	w.active = false
	w.cancelled = true
	delete(w.loop.ioWatchers, w.fd)
}
