// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics collector, adapted from a generic map[string]any registry
// into typed atomic counters for the connection lifecycle events a
// reactor-driven TCP server produces.

package control

import "sync/atomic"

// Registry holds atomic counters for connection-lifecycle telemetry. All
// methods are safe to call from any goroutine; the reactor itself is
// single-threaded, but a Registry is commonly polled by a separate
// metrics-exporter or admin-HTTP goroutine.
type Registry struct {
	accepted      atomic.Int64
	aborted       atomic.Int64
	active        atomic.Int64
	bytesRead     atomic.Int64
	bytesWritten  atomic.Int64
	deferredDepth atomic.Int64
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry { return &Registry{} }

// IncAccepted records one accepted connection.
func (r *Registry) IncAccepted() { r.accepted.Add(1) }

// IncAborted records one connection that terminated with a non-nil error.
func (r *Registry) IncAborted() { r.aborted.Add(1) }

// SetActive records the current number of live connections.
func (r *Registry) SetActive(n int) { r.active.Store(int64(n)) }

// AddBytesRead accumulates bytes received across all connections.
func (r *Registry) AddBytesRead(n int) { r.bytesRead.Add(int64(n)) }

// AddBytesWritten accumulates bytes queued for send across all connections.
func (r *Registry) AddBytesWritten(n int) { r.bytesWritten.Add(int64(n)) }

// SetDeferredDepth records the current length of the reactor's deferred
// call queue, useful for spotting a Call-flooding backlog.
func (r *Registry) SetDeferredDepth(n int) { r.deferredDepth.Store(int64(n)) }

// Snapshot is a point-in-time copy of every counter.
type Snapshot struct {
	Accepted      int64
	Aborted       int64
	Active        int64
	BytesRead     int64
	BytesWritten  int64
	DeferredDepth int64
}

// Snapshot returns the current value of every counter.
func (r *Registry) Snapshot() Snapshot {
	return Snapshot{
		Accepted:      r.accepted.Load(),
		Aborted:       r.aborted.Load(),
		Active:        r.active.Load(),
		BytesRead:     r.bytesRead.Load(),
		BytesWritten:  r.bytesWritten.Load(),
		DeferredDepth: r.deferredDepth.Load(),
	}
}
