// Author: momentics <momentics@gmail.com>
package tcp_test

import (
	"net"
	"testing"
	"time"

	"github.com/momentics/evreactor/reactor"
	"github.com/momentics/evreactor/transport/tcp"
)

// echoProtocol mirrors every byte it receives back to the peer and reports
// its terminal state on lostCh.
type echoProtocol struct {
	t      *tcp.Transport
	lostCh chan error
}

func (p *echoProtocol) ConnectionMade(t *tcp.Transport) { p.t = t }
func (p *echoProtocol) DataReceived(b []byte) {
	cp := append([]byte(nil), b...)
	p.t.Write(cp)
}
func (p *echoProtocol) ConnectionLost(err error) {
	select {
	case p.lostCh <- err:
	default:
	}
}

func newEchoListener(t *testing.T, l *reactor.Loop) (*tcp.Listener, chan error) {
	t.Helper()
	lost := make(chan error, 4)
	factory := func(loop *reactor.Loop, fd int, remote string) (*tcp.Transport, error) {
		proto := &echoProtocol{lostCh: lost}
		return tcp.NewTransport(loop, fd, proto, tcp.WithRemoteAddress(remote))
	}
	ln := tcp.NewListener(l, factory)
	if err := ln.Start("127.0.0.1:0", 0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return ln, lost
}

// runLoop starts l in a goroutine and returns a channel closed once Start
// returns, so tests can drive real socket I/O from their own goroutine
// while the reactor runs on its own, exactly as it would in production.
func runLoop(l *reactor.Loop) <-chan error {
	done := make(chan error, 1)
	go func() { done <- l.Start() }()
	return done
}

func TestTransport_EchoRoundTrip(t *testing.T) {
	l, err := reactor.NewLoop()
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	defer l.Close()

	ln, lost := newEchoListener(t, l)
	addr := ln.Addr()
	if addr == "" {
		t.Fatal("expected non-empty listener address")
	}

	l.OnTimeoutFunc(0.5, l.Stop)
	done := runLoop(l)

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	conn.SetDeadline(time.Now().Add(time.Second))
	if _, err := conn.Write([]byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	buf := make([]byte, 16)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Fatalf("expected echo of 'hello', got %q", buf[:n])
	}
	conn.Close()

	select {
	case err := <-lost:
		if err != nil {
			t.Fatalf("expected clean connection_lost, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("expected connection_lost after peer close")
	}
	<-done
}

// timeoutProtocol closes itself when its idle timer fires.
type timeoutProtocol struct {
	t      *tcp.Transport
	lostCh chan error
	fired  chan struct{}
}

func (p *timeoutProtocol) ConnectionMade(t *tcp.Transport) {
	p.t = t
	t.SetTimeout(0.05)
}
func (p *timeoutProtocol) DataReceived([]byte) {}
func (p *timeoutProtocol) ConnectionLost(err error) {
	select {
	case p.lostCh <- err:
	default:
	}
}
func (p *timeoutProtocol) ConnectionTimeout() {
	close(p.fired)
	p.t.Close()
}

func TestTransport_IdleTimeoutClosesConnection(t *testing.T) {
	l, err := reactor.NewLoop()
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	defer l.Close()

	lost := make(chan error, 1)
	fired := make(chan struct{})
	factory := func(loop *reactor.Loop, fd int, remote string) (*tcp.Transport, error) {
		proto := &timeoutProtocol{lostCh: lost, fired: fired}
		return tcp.NewTransport(loop, fd, proto, tcp.WithRemoteAddress(remote))
	}
	ln := tcp.NewListener(l, factory)
	if err := ln.Start("127.0.0.1:0", 0); err != nil {
		t.Fatalf("Start: %v", err)
	}

	l.OnTimeoutFunc(0.5, l.Stop)
	done := runLoop(l)

	conn, err := net.DialTimeout("tcp", ln.Addr(), time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	select {
	case <-fired:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected idle timeout to fire")
	}
	select {
	case err := <-lost:
		if err != nil {
			t.Fatalf("expected clean connection_lost after protocol-initiated close, got %v", err)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected connection_lost after protocol closed idle connection")
	}
	<-done
}

// flowProtocol records PauseWriting/ResumeWriting crossings. It queues its
// entire payload from within ConnectionMade, which already runs on the
// loop's own goroutine (invoked synchronously by NewTransport during
// accept dispatch), so the test never needs to reach back into a running
// Loop from another goroutine.
type flowProtocol struct {
	t       *tcp.Transport
	payload []byte
	ready   chan struct{}
	paused  int
	resumed int
	lostCh  chan error
}

func (p *flowProtocol) ConnectionMade(t *tcp.Transport) {
	p.t = t
	_ = t.SetWriteLimit(64 * 1024)
	t.Write(p.payload)
	close(p.ready)
}
func (p *flowProtocol) DataReceived([]byte)      {}
func (p *flowProtocol) ConnectionLost(err error) { p.lostCh <- err }
func (p *flowProtocol) PauseWriting()            { p.paused++ }
func (p *flowProtocol) ResumeWriting()           { p.resumed++ }

func TestTransport_FlowControlHysteresis(t *testing.T) {
	l, err := reactor.NewLoop()
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	defer l.Close()

	payload := make([]byte, 200*1024)
	proto := &flowProtocol{payload: payload, ready: make(chan struct{}), lostCh: make(chan error, 1)}
	factory := func(loop *reactor.Loop, fd int, remote string) (*tcp.Transport, error) {
		return tcp.NewTransport(loop, fd, proto, tcp.WithRemoteAddress(remote))
	}
	ln := tcp.NewListener(l, factory)
	if err := ln.Start("127.0.0.1:0", 0); err != nil {
		t.Fatalf("Start: %v", err)
	}

	l.OnTimeoutFunc(1.5, l.Stop)
	done := runLoop(l)

	conn, err := net.DialTimeout("tcp", ln.Addr(), time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	<-proto.ready

	buf := make([]byte, 32*1024)
	total := 0
	conn.SetReadDeadline(time.Now().Add(time.Second))
	for total < len(payload) {
		n, err := conn.Read(buf)
		if err != nil {
			t.Fatalf("Read: %v (received %d/%d bytes)", err, total, len(payload))
		}
		total += n
	}

	<-done

	if proto.paused == 0 {
		t.Fatalf("expected at least one PauseWriting crossing, got %d", proto.paused)
	}
	if proto.resumed == 0 {
		t.Fatalf("expected at least one ResumeWriting crossing, got %d", proto.resumed)
	}
}

// flushProtocol queues a payload on connect and asks for a Flush callback
// once the accept-side write has a chance to sit in the buffer, so the test
// exercises the deferred (buffer-not-yet-empty) path through Flush rather
// than its immediate-callback shortcut.
type flushProtocol struct {
	t         *tcp.Transport
	payload   []byte
	ready     chan struct{}
	flushedCh chan struct{}
	flushed   int
}

func (p *flushProtocol) ConnectionMade(t *tcp.Transport) {
	p.t = t
	t.Write(p.payload)
	t.Flush(func() {
		p.flushed++
		close(p.flushedCh)
	})
	close(p.ready)
}
func (p *flushProtocol) DataReceived([]byte)  {}
func (p *flushProtocol) ConnectionLost(error) {}

func TestTransport_FlushFiresExactlyOnceAfterDrain(t *testing.T) {
	l, err := reactor.NewLoop()
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	defer l.Close()

	payload := make([]byte, 64*1024)
	proto := &flushProtocol{payload: payload, ready: make(chan struct{}), flushedCh: make(chan struct{})}
	factory := func(loop *reactor.Loop, fd int, remote string) (*tcp.Transport, error) {
		return tcp.NewTransport(loop, fd, proto, tcp.WithRemoteAddress(remote))
	}
	ln := tcp.NewListener(l, factory)
	if err := ln.Start("127.0.0.1:0", 0); err != nil {
		t.Fatalf("Start: %v", err)
	}

	l.OnTimeoutFunc(1.5, l.Stop)
	done := runLoop(l)

	conn, err := net.DialTimeout("tcp", ln.Addr(), time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	<-proto.ready

	buf := make([]byte, 32*1024)
	total := 0
	conn.SetReadDeadline(time.Now().Add(time.Second))
	for total < len(payload) {
		n, err := conn.Read(buf)
		if err != nil {
			t.Fatalf("Read: %v (received %d/%d bytes)", err, total, len(payload))
		}
		total += n
	}

	select {
	case <-proto.flushedCh:
	case <-time.After(time.Second):
		t.Fatal("expected Flush callback to fire after the write buffer drained")
	}

	l.Stop()
	<-done

	if proto.flushed != 1 {
		t.Fatalf("expected Flush callback to fire exactly once, fired %d times", proto.flushed)
	}
}
