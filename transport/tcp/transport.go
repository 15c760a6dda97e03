// File: transport/tcp/transport.go
// Author: momentics <momentics@gmail.com>
//
// Transport owns one nonblocking TCP socket and mediates between it and a
// Protocol: buffered, flow-controlled writes; a single combined read/write
// IOWatcher; an idle timer; and an OPEN -> CLOSING -> CLOSED state machine
// with a distinct abort path for I/O errors and peer resets.

package tcp

import (
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/momentics/evreactor/api"
	"github.com/momentics/evreactor/control"
	"github.com/momentics/evreactor/reactor"
)

// defaultHighWaterMark is the default write-buffer size above which a
// FlowControlHandler protocol is told to pause writing.
const defaultHighWaterMark = 384 * 1024

// TransportOption configures a Transport at construction time.
type TransportOption func(*Transport)

// WithLogger injects a structured logger for this transport's diagnostics.
func WithLogger(l *zap.Logger) TransportOption {
	return func(t *Transport) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithMetrics attaches a shared metrics registry.
func WithMetrics(m *control.Registry) TransportOption {
	return func(t *Transport) { t.metrics = m }
}

// WithRemoteAddress pre-populates RemoteAddress, avoiding a getpeername(2)
// call when the caller (a Listener) already knows the peer address from
// accept(2).
func WithRemoteAddress(addr string) TransportOption {
	return func(t *Transport) { t.remoteAddr = addr }
}

// Transport is one nonblocking TCP connection, driven by a reactor.Loop.
type Transport struct {
	loop   *reactor.Loop
	logger *zap.Logger

	fd int
	io *reactor.IOWatcher

	timer          *reactor.TimerWatcher
	timeoutSeconds float64

	protocol       Protocol
	flow           FlowControlHandler
	timeoutHandler TimeoutHandler

	writeBuf []byte

	high int
	low  int

	pausedReading         bool
	pausedWriting         bool
	protocolPausedWriting bool

	closing bool
	closed  bool

	flushCallback func()
	onClose       func(fd int)

	remoteAddr string
	metrics    *control.Registry
}

// NewTransport takes ownership of fd (already accepted or dialed, in
// blocking mode) and wires it to protocol, arming it for read readiness.
// It calls protocol.ConnectionMade(t) synchronously before returning.
func NewTransport(loop *reactor.Loop, fd int, protocol Protocol, opts ...TransportOption) (*Transport, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, api.NewError(api.ErrCodeIO, "tcp: set nonblocking failed", err)
	}
	t := &Transport{
		loop:     loop,
		logger:   zap.NewNop(),
		fd:       fd,
		protocol: protocol,
		high:     defaultHighWaterMark,
		low:      defaultHighWaterMark * 67 / 100,
		// the write buffer starts empty, so WRITE interest starts off.
		pausedWriting: true,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.remoteAddr == "" {
		t.remoteAddr = peerAddrString(fd)
	}
	if fc, ok := protocol.(FlowControlHandler); ok {
		t.flow = fc
	}
	if th, ok := protocol.(TimeoutHandler); ok {
		t.timeoutHandler = th
	}

	t.io = loop.NewIOWatcher(fd, reactor.EventRead, t.onIO)
	if _, err := t.io.Start(); err != nil {
		unix.Close(fd)
		return nil, err
	}
	// dormant timer watcher: 0 seconds means SetTimeout has not been
	// called yet, so Start is a no-op until the protocol arms it.
	t.timer = loop.NewTimerWatcher(0, t.onTimerFire)
	_, _ = t.timer.Start()

	protocol.ConnectionMade(t)
	return t, nil
}

// RemoteAddress returns the peer's "host:port" string, or "" if it could
// not be determined.
func (t *Transport) RemoteAddress() string { return t.remoteAddr }

// Write appends data to the write buffer. It returns ErrTransportClosed
// once Close has been requested or the transport has already reached
// CLOSED; callers that don't care may ignore the error, matching the
// spec's "all operations become no-ops" terminal-state contract.
func (t *Transport) Write(data []byte) error {
	if t.closed || t.closing {
		return api.ErrTransportClosed
	}
	if len(data) == 0 {
		return nil
	}
	t.writeBuf = append(t.writeBuf, data...)
	if t.metrics != nil {
		t.metrics.AddBytesWritten(len(data))
	}
	t.reconcileWriteState()
	return nil
}

// SetTimeout arms (seconds > 0) or disarms (seconds <= 0) the idle timer.
// Successful reads and writes refresh the deadline automatically.
func (t *Transport) SetTimeout(seconds float64) {
	t.timeoutSeconds = seconds
	t.timer.SetSeconds(seconds)
}

// SetWriteLimit changes the high water mark; the low water mark is
// recomputed as floor(0.67 * high). Rejects limits below 64KiB.
func (t *Transport) SetWriteLimit(high int) error {
	if t.closed || t.closing {
		return api.ErrTransportClosed
	}
	if high < 64*1024 {
		return api.ErrInvalidWriteLimit
	}
	t.high = high
	t.low = int(float64(high) * 0.67)
	t.reconcileWriteState()
	return nil
}

// PauseReading drops READ interest from the watcher's mask.
func (t *Transport) PauseReading() {
	if t.pausedReading {
		return
	}
	t.pausedReading = true
	t.applyIOMask()
}

// ResumeReading restores READ interest, unless the transport is closing.
func (t *Transport) ResumeReading() {
	if t.closing || t.closed || !t.pausedReading {
		return
	}
	t.pausedReading = false
	t.applyIOMask()
}

// Flush invokes cb once the write buffer has fully drained. If the buffer
// is already empty, cb runs immediately, synchronously.
func (t *Transport) Flush(cb func()) {
	if len(t.writeBuf) == 0 {
		cb()
		return
	}
	t.flushCallback = cb
}

// Close requests a graceful shutdown: no more reads are dispatched, and
// the transport aborts (clean, err == nil) once the write buffer drains.
// If the buffer is already empty, it aborts immediately. Idempotent.
func (t *Transport) Close() {
	if t.closed || t.closing {
		return
	}
	t.closing = true
	t.PauseReading()
	t.reconcileWriteState()
}

// Abort immediately tears the transport down: cancels both watchers,
// notifies the protocol (ConnectionLost(cause)), invokes the on_close
// hook if set, and releases the socket. Idempotent.
func (t *Transport) Abort(cause error, reason string) {
	if t.closed {
		return
	}
	t.closed = true
	t.closing = true
	t.io.Cancel()
	t.timer.Cancel()

	if cause != nil {
		t.logger.Debug("tcp: transport aborted", zap.String("reason", reason), zap.Error(cause), zap.String("remote", t.remoteAddr))
	} else {
		t.logger.Debug("tcp: transport closed", zap.String("reason", reason), zap.String("remote", t.remoteAddr))
	}
	if t.metrics != nil && cause != nil {
		t.metrics.IncAborted()
	}

	t.protocol.ConnectionLost(cause)
	if t.onClose != nil {
		t.onClose(t.fd)
	}
	_ = unix.Shutdown(t.fd, unix.SHUT_RDWR)
	_ = unix.Close(t.fd)
	t.fd = -1
}

func (t *Transport) applyIOMask() {
	var mask reactor.EventMask
	if !t.pausedReading {
		mask |= reactor.EventRead
	}
	if !t.pausedWriting {
		mask |= reactor.EventWrite
	}
	if mask == 0 {
		t.io.Stop()
		return
	}
	t.io.SetEventMask(mask)
	if !t.io.Active() {
		_, _ = t.io.Start()
	}
}

// reconcileWriteState is run after every mutation of writeBuf, closing,
// or the water marks: it toggles write-side I/O interest, fires flow
// control callbacks on water mark crossings, runs the pending flush
// callback once drained, and completes a graceful close once the buffer
// empties while closing.
func (t *Transport) reconcileWriteState() {
	t.pausedWriting = len(t.writeBuf) == 0
	t.applyIOMask()

	if t.flow != nil {
		n := len(t.writeBuf)
		if !t.protocolPausedWriting && n > t.high {
			t.protocolPausedWriting = true
			t.flow.PauseWriting()
		} else if t.protocolPausedWriting && n < t.low {
			t.protocolPausedWriting = false
			t.flow.ResumeWriting()
		}
	}

	if len(t.writeBuf) == 0 {
		if t.flushCallback != nil {
			cb := t.flushCallback
			t.flushCallback = nil
			cb()
		}
		if t.closing && !t.closed {
			t.Abort(nil, "graceful close complete")
		}
	}
}

func (t *Transport) onIO(_ *reactor.IOWatcher, revents reactor.EventMask) {
	if t.closed {
		return
	}
	if revents&reactor.EventCleanup != 0 {
		t.Abort(nil, "reactor shutting down")
		return
	}
	if revents&reactor.EventError != 0 {
		t.Abort(socketError(t.fd), "error from reactor")
		return
	}
	if revents&reactor.EventRead != 0 && !t.pausedReading {
		t.handleReadable()
	}
	if t.closed {
		return
	}
	if revents&reactor.EventWrite != 0 {
		t.handleWritable()
	}
}

// socketError reads and clears SO_ERROR, translating an EPOLLERR/EPOLLHUP or
// POLLERR/POLLHUP/POLLNVAL readiness event into the underlying errno. Falls
// back to a generic error if the socket has nothing pending (e.g. a bare
// HUP with no queued error).
func socketError(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if errno == 0 {
		return unix.ECONNRESET
	}
	return unix.Errno(errno)
}

func (t *Transport) handleReadable() {
	buf := getScratch()
	defer putScratch(buf)

	n, err := unix.Read(t.fd, buf)
	switch {
	case n > 0:
		if t.metrics != nil {
			t.metrics.AddBytesRead(n)
		}
		t.protocol.DataReceived(buf[:n])
		t.refreshTimeout()
	case n == 0 && err == nil:
		t.Abort(nil, "closed while reading")
	case errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK):
		// spurious wakeup under level-triggered epoll; nothing to do.
	default:
		t.Abort(err, "error while reading")
	}
}

func (t *Transport) handleWritable() {
	if len(t.writeBuf) == 0 {
		return
	}
	n, err := unix.Write(t.fd, t.writeBuf)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return
		}
		t.Abort(err, "error while writing")
		return
	}
	if n > 0 {
		t.writeBuf = t.writeBuf[n:]
		t.refreshTimeout()
	}
	t.reconcileWriteState()
}

func (t *Transport) refreshTimeout() {
	if t.timeoutSeconds > 0 {
		t.timer.SetSeconds(t.timeoutSeconds)
	}
}

func (t *Transport) onTimerFire(*reactor.TimerWatcher) {
	if t.timeoutHandler != nil {
		t.timeoutHandler.ConnectionTimeout()
	}
}
