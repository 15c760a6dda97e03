// File: reactor/signal_watcher.go
// Author: momentics <momentics@gmail.com>
//
// SignalWatcher fires whenever the process receives a given signal number.
// Actual OS signal delivery is POSIX-flavored (see spec's "Signals" note);
// Go only offers one way to receive it, os/signal, which we wire into a
// single shared channel polled once per Loop iteration so delivery still
// happens on the reactor's own goroutine.

package reactor

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/momentics/evreactor/api"
)

// SignalCallback receives the watcher handle (primitive form).
type SignalCallback func(w *SignalWatcher)

// SignalWatcher fires on every delivery of a given signal number while armed.
type SignalWatcher struct {
	watcherBase
	signum int
	cb     SignalCallback
}

// NewSignalWatcher builds a watcher for the given signal number.
func (l *Loop) NewSignalWatcher(signum int, cb SignalCallback) *SignalWatcher {
	return &SignalWatcher{
		watcherBase: watcherBase{loop: l, priority: PriorityNormal},
		signum:      signum,
		cb:          cb,
	}
}

// NewSignalWatcherFunc is arity-reduced sugar over NewSignalWatcher.
func (l *Loop) NewSignalWatcherFunc(signum int, fn func()) *SignalWatcher {
	return l.NewSignalWatcher(signum, func(*SignalWatcher) { fn() })
}

// Start arms the watcher.
func (w *SignalWatcher) Start() (*SignalWatcher, error) {
	if w.cancelled {
		return nil, api.ErrWatcherCancelled
	}
	if w.active {
		return w, nil
	}
	w.loop.ensureSignalChan()
	signal.Notify(w.loop.signalCh, syscall.Signal(w.signum))
	w.loop.signalWatchers[w.signum] = append(w.loop.signalWatchers[w.signum], w)
	w.active = true
	w.registerCleanup(w.onCleanup)
	return w, nil
}

// Stop disarms the watcher.
func (w *SignalWatcher) Stop() bool {
	if !w.active {
		return false
	}
	w.loop.removeSignalWatcher(w)
	w.active = false
	return true
}

// Cancel disarms and permanently retires the watcher.
func (w *SignalWatcher) Cancel() {
	w.Stop()
	w.deregisterCleanup()
	w.cancelled = true
}

func (w *SignalWatcher) SetPriority(p Priority) { w.priority = p }

func (w *SignalWatcher) onCleanup() {
	if w.cancelled {
		return
	}
	w.Stop()
	w.cancelled = true
}

func (l *Loop) ensureSignalChan() {
	if l.signalCh == nil {
		l.signalCh = make(chan os.Signal, 16)
	}
}

func (l *Loop) removeSignalWatcher(w *SignalWatcher) {
	list := l.signalWatchers[w.signum]
	for i, sw := range list {
		if sw == w {
			l.signalWatchers[w.signum] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

// drainSignals dispatches any signals received since the last pass without
// blocking, in priority order among watchers registered for the same
// signal number.
func (l *Loop) drainSignals() {
	if l.signalCh == nil {
		return
	}
	for {
		select {
		case sig := <-l.signalCh:
			l.dispatchSignal(int(sig.(syscall.Signal)))
		default:
			return
		}
	}
}

func (l *Loop) dispatchSignal(signum int) {
	watchers := append([]*SignalWatcher(nil), l.signalWatchers[signum]...)
	sortByPriority(watchers, func(w *SignalWatcher) Priority { return w.Priority() })
	for _, w := range watchers {
		if w.active {
			w.cb(w)
		}
	}
}
