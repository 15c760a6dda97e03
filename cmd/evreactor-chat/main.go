// Author: momentics <momentics@gmail.com>
//
// evreactor-chat is a line-oriented broadcast server: every line received
// from one connection is relayed to every other connected client.
// Demonstrates Loop.Call-mediated fan-out and the Broadcast helper.
package main

import (
	"bytes"
	"fmt"
	"syscall"

	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/momentics/evreactor/control"
	"github.com/momentics/evreactor/reactor"
	"github.com/momentics/evreactor/transport/tcp"
)

// room tracks every connected chat participant. It is only ever touched
// from the reactor's own goroutine (protocol callbacks and the accept
// path both run there), so it needs no locking.
type room struct {
	loop    *reactor.Loop
	logger  *zap.Logger
	members map[*tcp.Transport]*chatProtocol
	nextID  int
}

func newRoom(loop *reactor.Loop, logger *zap.Logger) *room {
	return &room{loop: loop, logger: logger, members: make(map[*tcp.Transport]*chatProtocol)}
}

func (r *room) join(p *chatProtocol) {
	r.nextID++
	p.id = r.nextID
	r.members[p.t] = p
	r.broadcastExcept(p, fmt.Sprintf("* user%d joined\n", p.id))
}

func (r *room) leave(p *chatProtocol) {
	delete(r.members, p.t)
	r.broadcastExcept(p, fmt.Sprintf("* user%d left\n", p.id))
}

// broadcastExcept defers the actual fan-out to the reactor's deferred-call
// queue rather than writing inline: the target list is snapshotted now, and
// the write happens at the next idle point via Loop.Call, decoupling the
// triggering event (a join/leave/line) from the fan-out itself.
func (r *room) broadcastExcept(from *chatProtocol, line string) {
	targets := make([]*tcp.Transport, 0, len(r.members))
	for t, p := range r.members {
		if p != from {
			targets = append(targets, t)
		}
	}
	data := []byte(line)
	r.loop.CallFunc(func() { tcp.Broadcast(targets, data) })
}

type chatProtocol struct {
	t    *tcp.Transport
	room *room
	id   int
	buf  []byte
}

func (p *chatProtocol) ConnectionMade(t *tcp.Transport) {
	p.t = t
	p.room.join(p)
}

func (p *chatProtocol) DataReceived(b []byte) {
	p.buf = append(p.buf, b...)
	for {
		i := bytes.IndexByte(p.buf, '\n')
		if i < 0 {
			return
		}
		line := p.buf[:i+1]
		p.buf = p.buf[i+1:]
		p.room.broadcastExcept(p, fmt.Sprintf("user%d: %s", p.id, line))
	}
}

func (p *chatProtocol) ConnectionLost(error) {
	p.room.leave(p)
}

func main() {
	var addr string
	var verbose bool
	flag.StringVarP(&addr, "listen", "l", "127.0.0.1:9998", "address to listen on")
	flag.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	flag.Parse()

	var logger *zap.Logger
	var err error
	if verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	metrics := control.NewRegistry()

	loop, err := reactor.NewLoop(reactor.WithLogger(logger), reactor.WithMetrics(metrics))
	if err != nil {
		logger.Fatal("create reactor loop", zap.Error(err))
	}
	defer loop.Close()

	r := newRoom(loop, logger)

	factory := func(l *reactor.Loop, fd int, remote string) (*tcp.Transport, error) {
		proto := &chatProtocol{room: r}
		return tcp.NewTransport(l, fd, proto, tcp.WithLogger(logger), tcp.WithMetrics(metrics), tcp.WithRemoteAddress(remote))
	}

	listener := tcp.NewListener(loop, factory, tcp.WithListenerLogger(logger), tcp.WithListenerMetrics(metrics))
	if err := listener.Start(addr, 0); err != nil {
		logger.Fatal("start listener", zap.Error(err))
	}

	loop.OnSignalFunc(int(syscall.SIGINT), func() {
		logger.Info("received SIGINT, shutting down")
		listener.Stop()
		loop.Stop()
	})

	logger.Info("evreactor-chat listening", zap.String("addr", listener.Addr()))
	if err := loop.Start(); err != nil {
		logger.Fatal("reactor loop exited with error", zap.Error(err))
	}
}
