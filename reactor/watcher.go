// File: reactor/watcher.go
// Author: momentics <momentics@gmail.com>
//
// Common watcher contract shared by every concrete watcher type. A watcher
// is a subscription to one event source on a Loop: it is either armed in
// the backend (or the Loop's timer/signal registries) or it is not, and
// every watcher registers a cleanup subscription so Loop teardown reaches
// it even if the user never explicitly stops it.

package reactor

// Watcher is the behavior shared by IOWatcher, TimerWatcher, SignalWatcher,
// IdleWatcher, and CleanupWatcher. Concrete types return themselves from
// Start so call sites can chain construction and arming without a type
// assertion; that is why Start is not part of this interface (Go has no
// covariant return types) — it is a per-type method with an identical
// contract everywhere.
type Watcher interface {
	// Stop disarms the watcher and reports whether it had been armed.
	Stop() bool
	// Cancel disarms the watcher and deregisters its cleanup subscription.
	// After Cancel, the watcher is permanently dead: Start returns
	// api.ErrWatcherCancelled.
	Cancel()
	// Active reports whether the watcher is currently armed.
	Active() bool
	// Priority returns the watcher's dispatch priority.
	Priority() Priority
	// SetPriority changes dispatch priority. Priority is read at each
	// dispatch pass, so the change takes effect without re-arming.
	SetPriority(Priority)
}

// watcherBase implements the bookkeeping shared by every watcher variant.
// Concrete types embed it and implement the arm/disarm mechanics specific
// to their event source.
type watcherBase struct {
	loop       *Loop
	priority   Priority
	active     bool
	cancelled  bool
	cleanupID  int
	hasCleanup bool
}

func (b *watcherBase) Active() bool       { return b.active }
func (b *watcherBase) Priority() Priority { return b.priority }

func (b *watcherBase) registerCleanup(fn func()) {
	if b.hasCleanup {
		return
	}
	b.cleanupID = b.loop.registerCleanup(fn)
	b.hasCleanup = true
}

func (b *watcherBase) deregisterCleanup() {
	if !b.hasCleanup {
		return
	}
	b.loop.cancelCleanup(b.cleanupID)
	b.hasCleanup = false
}
