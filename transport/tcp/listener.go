// File: transport/tcp/listener.go
// Author: momentics <momentics@gmail.com>
//
// Listener owns one bound, listening socket and accepts connections one at
// a time per readiness event, handing each off to a Factory that builds the
// application's Transport/Protocol pair.

package tcp

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/momentics/evreactor/api"
	"github.com/momentics/evreactor/control"
	"github.com/momentics/evreactor/reactor"
)

const defaultBacklog = 64

// Factory builds a Transport (and, inside it, a fresh Protocol) for a newly
// accepted connection. Returning a nil Transport with a nil error is
// treated as "reject the connection".
type Factory func(loop *reactor.Loop, fd int, remoteAddr string) (*Transport, error)

// ListenerOption configures a Listener at construction time.
type ListenerOption func(*Listener)

// WithListenerLogger injects a structured logger.
func WithListenerLogger(l *zap.Logger) ListenerOption {
	return func(ln *Listener) {
		if l != nil {
			ln.logger = l
		}
	}
}

// WithListenerMetrics attaches a shared metrics registry.
func WithListenerMetrics(m *control.Registry) ListenerOption {
	return func(ln *Listener) { ln.metrics = m }
}

// Listener accepts TCP connections on one bound socket and dispatches each
// to a Factory, tracking the resulting Transports so Stop can drain them.
type Listener struct {
	loop    *reactor.Loop
	logger  *zap.Logger
	metrics *control.Registry
	factory Factory

	fd     int
	accept *reactor.IOWatcher

	conns   map[int]*Transport
	stopped bool
}

// NewListener constructs an unbound Listener; call Start to bind and begin
// accepting.
func NewListener(loop *reactor.Loop, factory Factory, opts ...ListenerOption) *Listener {
	ln := &Listener{
		loop:    loop,
		logger:  zap.NewNop(),
		factory: factory,
		fd:      -1,
		conns:   make(map[int]*Transport),
	}
	for _, opt := range opts {
		opt(ln)
	}
	return ln
}

// Start binds address ("host:port"), begins listening with the given
// backlog (<=0 uses a default of 64), and arms the accept watcher.
func (ln *Listener) Start(address string, backlog int) error {
	if backlog <= 0 {
		backlog = defaultBacklog
	}
	fd, err := bindListenSocket(address, backlog)
	if err != nil {
		return api.NewError(api.ErrCodeIO, "tcp: listen failed", err).WithContext("address", address)
	}
	ln.fd = fd
	ln.accept = ln.loop.NewIOWatcher(fd, reactor.EventRead, ln.onAcceptable)
	if _, err := ln.accept.Start(); err != nil {
		_ = unix.Close(fd)
		ln.fd = -1
		return err
	}
	ln.logger.Info("tcp: listening", zap.String("address", address), zap.Int("backlog", backlog))
	return nil
}

func (ln *Listener) onAcceptable(_ *reactor.IOWatcher, revents reactor.EventMask) {
	if revents&reactor.EventCleanup != 0 {
		ln.Stop()
		return
	}
	connFd, sa, err := unix.Accept(ln.fd)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return
		}
		ln.logger.Warn("tcp: accept failed", zap.Error(err))
		return
	}
	remote := sockaddrString(sa)
	t, err := ln.factory(ln.loop, connFd, remote)
	if err != nil {
		ln.logger.Warn("tcp: factory rejected connection", zap.Error(err), zap.String("remote", remote))
		_ = unix.Close(connFd)
		return
	}
	if t == nil {
		_ = unix.Close(connFd)
		return
	}
	t.onClose = ln.removeConn
	ln.conns[connFd] = t
	if ln.metrics != nil {
		ln.metrics.IncAccepted()
		ln.metrics.SetActive(len(ln.conns))
	}
}

func (ln *Listener) removeConn(fd int) {
	delete(ln.conns, fd)
	if ln.metrics != nil {
		ln.metrics.SetActive(len(ln.conns))
	}
}

// Stop cancels the accept watcher, closes every tracked connection
// gracefully, and closes the listening socket. Idempotent.
func (ln *Listener) Stop() {
	if ln.stopped {
		return
	}
	ln.stopped = true
	if ln.accept != nil {
		ln.accept.Cancel()
	}
	for _, t := range ln.snapshotConns() {
		t.Close()
	}
	ln.closeSocket()
}

// StopWithDeadline requests a graceful shutdown: the accept watcher is
// cancelled and every tracked connection is asked to Close() (drain then
// abort); any connection still open after graceful seconds is force-
// aborted and the listening socket is released.
func (ln *Listener) StopWithDeadline(graceful float64) {
	if ln.stopped {
		return
	}
	ln.stopped = true
	if ln.accept != nil {
		ln.accept.Cancel()
	}
	pending := ln.snapshotConns()
	for _, t := range pending {
		t.Close()
	}
	ln.loop.OnTimeoutFunc(graceful, func() {
		for _, t := range pending {
			t.Abort(nil, "shutdown deadline exceeded")
		}
		ln.closeSocket()
	})
}

func (ln *Listener) snapshotConns() []*Transport {
	out := make([]*Transport, 0, len(ln.conns))
	for _, t := range ln.conns {
		out = append(out, t)
	}
	return out
}

func (ln *Listener) closeSocket() {
	if ln.fd < 0 {
		return
	}
	_ = unix.Shutdown(ln.fd, unix.SHUT_RDWR)
	_ = unix.Close(ln.fd)
	ln.fd = -1
}

// ActiveConnections returns the number of connections currently tracked.
func (ln *Listener) ActiveConnections() int { return len(ln.conns) }

// Addr returns the listener's bound local address, useful when Start was
// called with an ephemeral port (":0").
func (ln *Listener) Addr() string {
	if ln.fd < 0 {
		return ""
	}
	sa, err := unix.Getsockname(ln.fd)
	if err != nil {
		return ""
	}
	return sockaddrString(sa)
}

func bindListenSocket(address string, backlog int) (int, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return -1, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return -1, fmt.Errorf("tcp: invalid port %q: %w", portStr, err)
	}

	ip := net.ParseIP(host)
	if ip == nil {
		if host == "" {
			ip = net.IPv4zero
		} else {
			return -1, fmt.Errorf("tcp: invalid address %q", address)
		}
	}

	var fd int
	var sa unix.Sockaddr
	if v4 := ip.To4(); v4 != nil {
		fd, err = unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
		if err != nil {
			return -1, err
		}
		a := &unix.SockaddrInet4{Port: port}
		copy(a.Addr[:], v4)
		sa = a
	} else {
		fd, err = unix.Socket(unix.AF_INET6, unix.SOCK_STREAM, 0)
		if err != nil {
			return -1, err
		}
		a := &unix.SockaddrInet6{Port: port}
		copy(a.Addr[:], ip.To16())
		sa = a
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	if err := unix.Listen(fd, backlog); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

func sockaddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	default:
		return ""
	}
}

func peerAddrString(fd int) string {
	sa, err := unix.Getpeername(fd)
	if err != nil {
		return ""
	}
	return sockaddrString(sa)
}
