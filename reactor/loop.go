// File: reactor/loop.go
// Author: momentics <momentics@gmail.com>
//
// Loop is the reactor: it owns exactly one backend, drives dispatch, and
// offers a deferred-call queue, one-shot timeouts, one-shot signal hooks,
// and orderly shutdown. Everything on a Loop, including every watcher and
// protocol callback it drives, runs on the single goroutine that calls
// Start. Nothing here takes a lock; there is nothing to protect against,
// because there is only one goroutine.

package reactor

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/eapache/queue"
	"go.uber.org/zap"

	"github.com/momentics/evreactor/api"
	"github.com/momentics/evreactor/control"
)

// maxPollInterval bounds how long a single Backend.Wait call may block when
// no timer is pending, so that signals delivered asynchronously by the Go
// runtime are still polled with bounded latency. It does not affect timer
// precision: the actual wait timeout is always min(maxPollInterval, time
// until next timer deadline).
const maxPollInterval = 200 * time.Millisecond

type deferredCall struct {
	fn   func(args ...any)
	args []any
}

// Loop is a single-threaded reactor bound to one backend multiplexer.
type Loop struct {
	backend Backend
	logger  *zap.Logger
	metrics *control.Registry
	start   time.Time

	ioWatchers   map[int]*IOWatcher
	idleWatchers []*IdleWatcher

	timers   timerHeap
	timerSeq uint64

	signalCh       chan os.Signal
	signalWatchers map[int][]*SignalWatcher

	deferred     *queue.Queue
	deferredIdle *IdleWatcher

	cleanups   map[int]func()
	cleanupSeq int

	running bool
	stopReq bool
	closed  bool

	readyBuf []ReadyEvent
}

// Option configures a Loop at construction time.
type Option func(*Loop)

// WithLogger injects a structured logger used for lifecycle and error
// events. The zero value logs nothing (zap.NewNop()).
func WithLogger(l *zap.Logger) Option {
	return func(lp *Loop) {
		if l != nil {
			lp.logger = l
		}
	}
}

// WithMetrics attaches a metrics registry; when set, the Loop reports its
// deferred-call queue depth on every Call/drain so callers can spot a
// Call-flooding backlog.
func WithMetrics(m *control.Registry) Option {
	return func(lp *Loop) { lp.metrics = m }
}

// NewLoop constructs a Loop bound to a fresh platform backend.
func NewLoop(opts ...Option) (*Loop, error) {
	backend, err := newBackend()
	if err != nil {
		return nil, fmt.Errorf("reactor: create backend: %w", err)
	}
	l := &Loop{
		backend:        backend,
		logger:         zap.NewNop(),
		start:          time.Now(),
		ioWatchers:     make(map[int]*IOWatcher),
		signalWatchers: make(map[int][]*SignalWatcher),
		deferred:       queue.New(),
		cleanups:       make(map[int]func()),
		readyBuf:       make([]ReadyEvent, 256),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.deferredIdle = l.NewIdleWatcher(func(*IdleWatcher) { l.drainOneDeferred() })
	return l, nil
}

var (
	defaultLoopOnce sync.Once
	defaultLoop     *Loop
)

// DefaultLoop returns the process-wide singleton Loop, constructing it on
// first access. Access must be confined to the owning goroutine; using the
// default loop from more than one goroutine is undefined behavior, exactly
// as with any other Loop.
func DefaultLoop() *Loop {
	defaultLoopOnce.Do(func() {
		l, err := NewLoop()
		if err != nil {
			panic(fmt.Sprintf("reactor: default loop: %v", err))
		}
		defaultLoop = l
	})
	return defaultLoop
}

// Time returns a monotonic timestamp in seconds, relative to Loop
// construction.
func (l *Loop) Time() float64 { return time.Since(l.start).Seconds() }

// Logger returns the logger this Loop was constructed with.
func (l *Loop) Logger() *zap.Logger { return l.logger }

// Call enqueues fn(args...) for execution at the next idle point, in FIFO
// order relative to other deferred calls. Safe to call from any callback
// running on this Loop's goroutine.
func (l *Loop) Call(fn func(args ...any), args ...any) {
	l.deferred.Add(deferredCall{fn: fn, args: args})
	if !l.deferredIdle.Active() {
		_, _ = l.deferredIdle.Start()
	}
	l.reportDeferredDepth()
}

// CallFunc is arity-reduced sugar over Call for plain closures.
func (l *Loop) CallFunc(fn func()) {
	l.Call(func(...any) { fn() })
}

func (l *Loop) drainOneDeferred() {
	if l.deferred.Length() == 0 {
		l.deferredIdle.Stop()
		return
	}
	// self-disarm when, after popping, the queue would be empty.
	if l.deferred.Length() <= 1 {
		defer l.deferredIdle.Stop()
	}
	v := l.deferred.Remove()
	dc := v.(deferredCall)
	l.reportDeferredDepth()
	dc.fn(dc.args...)
}

func (l *Loop) reportDeferredDepth() {
	if l.metrics != nil {
		l.metrics.SetDeferredDepth(l.deferred.Length())
	}
}

// TimeoutHandle cancels a one-shot timeout registered with OnTimeout.
type TimeoutHandle struct {
	loop  *Loop
	entry *timerEntry
}

// Cancel disarms the timeout if it has not already fired.
func (h *TimeoutHandle) Cancel() {
	if h.entry == nil || h.entry.cancelled {
		return
	}
	h.entry.cancelled = true
	h.loop.timers.removeEntry(h.entry)
}

// OnTimeout registers a one-shot timer. On fire it executes fn(args...),
// then permanently removes itself from the Loop's timer registry.
func (l *Loop) OnTimeout(delaySeconds float64, fn func(args ...any), args ...any) *TimeoutHandle {
	l.timerSeq++
	e := &timerEntry{deadline: l.Time() + delaySeconds, seq: l.timerSeq}
	e.fire = func() { fn(args...) }
	l.timers.push(e)
	return &TimeoutHandle{loop: l, entry: e}
}

// OnTimeoutFunc is arity-reduced sugar over OnTimeout.
func (l *Loop) OnTimeoutFunc(delaySeconds float64, fn func()) *TimeoutHandle {
	return l.OnTimeout(delaySeconds, func(...any) { fn() })
}

// OnSignal registers a one-shot signal hook: on the next delivery of
// signum it executes fn(args...) and permanently deregisters itself.
func (l *Loop) OnSignal(signum int, fn func(args ...any), args ...any) *SignalWatcher {
	var w *SignalWatcher
	w = l.NewSignalWatcher(signum, func(sw *SignalWatcher) {
		sw.Cancel()
		fn(args...)
	})
	_, _ = w.Start()
	return w
}

// OnSignalFunc is arity-reduced sugar over OnSignal.
func (l *Loop) OnSignalFunc(signum int, fn func()) *SignalWatcher {
	return l.OnSignal(signum, func(...any) { fn() })
}

func (l *Loop) registerCleanup(fn func()) int {
	l.cleanupSeq++
	id := l.cleanupSeq
	l.cleanups[id] = fn
	return id
}

func (l *Loop) cancelCleanup(id int) {
	delete(l.cleanups, id)
}

// Stop requests dispatch to exit at the next safe point.
func (l *Loop) Stop() {
	l.stopReq = true
}

// Start enters the dispatch loop. It returns nil after Stop is called, or
// a non-nil error if the backend fails fatally. User-callback panics are
// not recovered: they propagate out of Start, matching spec's reference
// behavior of surfacing callback failures to the caller of Start.
func (l *Loop) Start() error {
	if l.running {
		return api.ErrLoopAlreadyRunning
	}
	l.running = true
	l.stopReq = false
	defer func() { l.running = false }()

	for !l.stopReq {
		if err := l.iterate(); err != nil {
			l.logger.Error("reactor: backend wait failed", zap.Error(err))
			return fmt.Errorf("reactor: backend wait: %w", err)
		}
	}
	return nil
}

func (l *Loop) iterate() error {
	timeout := l.computeTimeout()
	n, err := l.backend.Wait(timeout, l.readyBuf)
	if err != nil {
		return err
	}
	l.dispatchIO(l.readyBuf[:n])
	l.fireExpiredTimers()
	l.drainSignals()
	l.fireIdleWatchers()
	return nil
}

func (l *Loop) computeTimeout() time.Duration {
	for _, iw := range l.idleWatchers {
		if iw.Active() {
			return 0
		}
	}
	deadline, ok := l.timers.nextDeadline()
	if !ok {
		return maxPollInterval
	}
	remaining := time.Duration((deadline - l.Time()) * float64(time.Second))
	if remaining < 0 {
		remaining = 0
	}
	if remaining > maxPollInterval {
		remaining = maxPollInterval
	}
	return remaining
}

func (l *Loop) dispatchIO(events []ReadyEvent) {
	if len(events) == 0 {
		return
	}
	type pending struct {
		w    *IOWatcher
		mask EventMask
	}
	batch := make([]pending, 0, len(events))
	for _, ev := range events {
		w, ok := l.ioWatchers[ev.Fd]
		if !ok || !w.Active() {
			continue
		}
		batch = append(batch, pending{w: w, mask: ev.Mask})
	}
	sortByPriority(batch, func(p pending) Priority { return p.w.Priority() })
	for _, p := range batch {
		if !p.w.Active() {
			continue
		}
		p.w.cb(p.w, p.mask)
	}
}

func (l *Loop) fireExpiredTimers() {
	due := l.timers.popExpired(l.Time())
	for _, e := range due {
		if !e.cancelled {
			e.fire()
		}
	}
}

func (l *Loop) fireIdleWatchers() {
	watchers := append([]*IdleWatcher(nil), l.idleWatchers...)
	sortByPriority(watchers, func(w *IdleWatcher) Priority { return w.Priority() })
	for _, w := range watchers {
		if w.Active() && w.cb != nil {
			w.cb(w)
		}
	}
}

// Close tears down the Loop: every registered cleanup subscription fires
// exactly once (releasing watchers and, transitively, sockets), then the
// backend handle is released. Close is idempotent.
func (l *Loop) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	snapshot := make([]func(), 0, len(l.cleanups))
	for _, fn := range l.cleanups {
		snapshot = append(snapshot, fn)
	}
	l.cleanups = make(map[int]func())
	for _, fn := range snapshot {
		fn()
	}
	return l.backend.Close()
}
