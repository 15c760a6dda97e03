// Author: momentics <momentics@gmail.com>
//
// evreactor-echo runs a single-threaded echo server: every byte received
// on a connection is written back to the same connection. Demonstrates
// idle timeouts end to end and a configurable write high water mark, plus
// SIGUSR1-triggered probe dumps via control.Controller. echoProtocol does
// not implement tcp.FlowControlHandler, so it receives no pause/resume
// notifications.
package main

import (
	"syscall"

	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/momentics/evreactor/control"
	"github.com/momentics/evreactor/reactor"
	"github.com/momentics/evreactor/transport/tcp"
)

type echoProtocol struct {
	t       *tcp.Transport
	logger  *zap.Logger
	metrics *control.Registry
	timeout float64
}

func (p *echoProtocol) ConnectionMade(t *tcp.Transport) {
	p.t = t
	if p.timeout > 0 {
		t.SetTimeout(p.timeout)
	}
	p.logger.Info("connection made", zap.String("remote", t.RemoteAddress()))
}

func (p *echoProtocol) DataReceived(buf []byte) {
	echoed := append([]byte(nil), buf...)
	p.t.Write(echoed)
}

func (p *echoProtocol) ConnectionLost(err error) {
	if err != nil {
		p.logger.Warn("connection lost", zap.Error(err))
		return
	}
	p.logger.Info("connection closed")
}

func (p *echoProtocol) ConnectionTimeout() {
	p.logger.Info("idle timeout, closing")
	p.t.Close()
}

func main() {
	var (
		addr        string
		verbose     bool
		idleTimeout float64
		writeHigh   int
	)
	flag.StringVarP(&addr, "listen", "l", "127.0.0.1:9999", "address to listen on")
	flag.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	flag.Float64Var(&idleTimeout, "idle-timeout", 30, "idle timeout in seconds (0 disables)")
	flag.IntVar(&writeHigh, "write-high-water-mark", 0, "write buffer high water mark in bytes (0 uses the default)")
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

	configStore := control.NewConfigStore(control.Config{IdleTimeoutSeconds: idleTimeout, WriteHighWaterMark: writeHigh})
	cfg := configStore.Snapshot()
	metrics := control.NewRegistry()
	ctl := control.NewController(configStore, metrics)

	loop, err := reactor.NewLoop(reactor.WithLogger(logger), reactor.WithMetrics(metrics))
	if err != nil {
		logger.Fatal("create reactor loop", zap.Error(err))
	}
	defer loop.Close()

	factory := func(l *reactor.Loop, fd int, remote string) (*tcp.Transport, error) {
		live := configStore.Snapshot()
		proto := &echoProtocol{logger: logger, metrics: metrics, timeout: live.IdleTimeoutSeconds}
		t, err := tcp.NewTransport(l, fd, proto, tcp.WithLogger(logger), tcp.WithMetrics(metrics), tcp.WithRemoteAddress(remote))
		if err != nil {
			return nil, err
		}
		_ = t.SetWriteLimit(live.WriteHighWaterMark)
		return t, nil
	}

	listener := tcp.NewListener(loop, factory, tcp.WithListenerLogger(logger), tcp.WithListenerMetrics(metrics))
	if err := listener.Start(addr, cfg.ListenBacklog); err != nil {
		logger.Fatal("start listener", zap.Error(err))
	}
	ctl.Probes.Register("listener", func() any {
		return map[string]any{"active_connections": listener.ActiveConnections(), "addr": listener.Addr()}
	})

	shutdown := func(signal string) {
		logger.Info("received "+signal+", shutting down", zap.Float64("grace_seconds", cfg.AcceptGraceSeconds))
		listener.StopWithDeadline(cfg.AcceptGraceSeconds)
		loop.OnTimeoutFunc(cfg.AcceptGraceSeconds+0.05, loop.Stop)
	}
	loop.OnSignalFunc(int(syscall.SIGINT), func() { shutdown("SIGINT") })
	loop.OnSignalFunc(int(syscall.SIGTERM), func() { shutdown("SIGTERM") })
	loop.OnSignalFunc(int(syscall.SIGUSR1), func() {
		for name, state := range ctl.Probes.DumpState() {
			logger.Info("debug probe", zap.String("probe", name), zap.Any("state", state))
		}
	})

	logger.Info("evreactor-echo listening", zap.String("addr", listener.Addr()))
	if err := loop.Start(); err != nil {
		logger.Fatal("reactor loop exited with error", zap.Error(err))
	}
}
