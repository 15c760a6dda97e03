// Package reactor implements a single-threaded event loop ("Loop") driven by
// a readiness-based OS multiplexer, plus the typed Watcher objects (I/O,
// timer, signal, idle, cleanup) that bridge backend events to user
// callbacks.
//
// The loop, its watchers, and every callback they invoke run on exactly one
// goroutine: the one that calls Loop.Start. Nothing in this package takes a
// lock, because nothing here is meant to be touched from more than one
// goroutine. See Loop for the concurrency contract.
//
// Author: momentics <momentics@gmail.com>
package reactor
