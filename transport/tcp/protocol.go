// File: transport/tcp/protocol.go
// Author: momentics <momentics@gmail.com>
//
// Protocol is the application's contract with a Transport. It mirrors an
// asyncio/Twisted-style protocol object: the transport calls it, it never
// calls back synchronously into transport construction.

package tcp

// Protocol receives lifecycle and data events for one connection. A single
// Protocol value is bound to exactly one Transport for the lifetime of that
// connection; server listeners construct a fresh Protocol per accepted
// connection via a Factory.
type Protocol interface {
	// ConnectionMade is invoked once, synchronously, from within the
	// Transport constructor, before any data can arrive. Implementations
	// typically stash the transport for later writes.
	ConnectionMade(t *Transport)
	// DataReceived delivers one recv's worth of bytes. buf is a borrowed
	// view into a pooled scratch buffer: it is only valid for the duration
	// of the call and must be copied if retained.
	DataReceived(buf []byte)
	// ConnectionLost is invoked exactly once, when the transport reaches
	// its terminal state. err is nil for a clean shutdown (peer closed, or
	// local graceful close finished draining) and non-nil for an abort
	// caused by an I/O error.
	ConnectionLost(err error)
}

// FlowControlHandler is an optional capability a Protocol may implement to
// be notified when the transport's write buffer crosses the high or low
// water mark. Detected via type assertion at connection_made time.
type FlowControlHandler interface {
	// PauseWriting is called once when the write buffer exceeds the high
	// water mark; the protocol should stop calling Write until resumed.
	PauseWriting()
	// ResumeWriting is called once when the write buffer drains below the
	// low water mark after a prior PauseWriting.
	ResumeWriting()
}

// TimeoutHandler is an optional capability a Protocol may implement to be
// notified when the transport's idle timer elapses. The transport does not
// close itself on timeout; the handler decides (typically by calling
// Transport.Close).
type TimeoutHandler interface {
	ConnectionTimeout()
}
