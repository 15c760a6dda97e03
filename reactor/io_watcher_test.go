// Author: momentics <momentics@gmail.com>
package reactor

import (
	"os"
	"syscall"
	"testing"
)

func newNonblockingPipe(t *testing.T) (r, w *os.File) {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	if err := syscall.SetNonblock(int(r.Fd()), true); err != nil {
		t.Fatalf("set nonblock: %v", err)
	}
	if err := syscall.SetNonblock(int(w.Fd()), true); err != nil {
		t.Fatalf("set nonblock: %v", err)
	}
	return r, w
}

func TestIOWatcher_ReadReadiness(t *testing.T) {
	l, err := NewLoop()
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	defer l.Close()

	r, w := newNonblockingPipe(t)
	defer r.Close()
	defer w.Close()

	got := make(chan []byte, 1)
	var iw *IOWatcher
	iw = l.NewIOWatcherFunc(int(r.Fd()), EventRead, func(revents EventMask) {
		if revents&EventRead == 0 {
			return
		}
		buf := make([]byte, 64)
		n, _ := syscall.Read(int(r.Fd()), buf)
		if n > 0 {
			got <- buf[:n]
			iw.Stop()
			l.Stop()
		}
	})
	if _, err := iw.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	l.CallFunc(func() { _, _ = w.Write([]byte("hello")) })
	l.OnTimeoutFunc(0.2, func() { l.Stop() })

	if err := l.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case b := <-got:
		if string(b) != "hello" {
			t.Fatalf("expected 'hello', got %q", b)
		}
	default:
		t.Fatal("expected read callback to fire")
	}
}

func TestIOWatcher_PriorityOrdering(t *testing.T) {
	l, err := NewLoop()
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	defer l.Close()

	r1, w1 := newNonblockingPipe(t)
	defer r1.Close()
	defer w1.Close()
	r2, w2 := newNonblockingPipe(t)
	defer r2.Close()
	defer w2.Close()

	var order []string
	drain := func(fd int) {
		buf := make([]byte, 8)
		_, _ = syscall.Read(fd, buf)
	}

	loW := l.NewIOWatcherFunc(int(r1.Fd()), EventRead, func(EventMask) {
		order = append(order, "low")
		drain(int(r1.Fd()))
	})
	loW.SetPriority(PriorityLow)
	hiW := l.NewIOWatcherFunc(int(r2.Fd()), EventRead, func(EventMask) {
		order = append(order, "high")
		drain(int(r2.Fd()))
	})
	hiW.SetPriority(PriorityHighest)

	if _, err := loW.Start(); err != nil {
		t.Fatalf("Start low: %v", err)
	}
	if _, err := hiW.Start(); err != nil {
		t.Fatalf("Start high: %v", err)
	}

	_, _ = w1.Write([]byte("a"))
	_, _ = w2.Write([]byte("b"))

	l.OnTimeoutFunc(0.02, func() { l.Stop() })
	if err := l.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if len(order) != 2 || order[0] != "high" || order[1] != "low" {
		t.Fatalf("expected high before low, got %v", order)
	}
}

func TestIOWatcher_CancelIsPermanent(t *testing.T) {
	l, err := NewLoop()
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	defer l.Close()

	r, w := newNonblockingPipe(t)
	defer r.Close()
	defer w.Close()

	iw := l.NewIOWatcherFunc(int(r.Fd()), EventRead, func(EventMask) {})
	if _, err := iw.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	iw.Cancel()

	if _, err := iw.Start(); err == nil {
		t.Fatal("expected Start after Cancel to fail")
	}
}

func TestLoop_CleanupFiresOnClose(t *testing.T) {
	l, err := NewLoop()
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}

	fired := false
	cw, _ := l.NewCleanupWatcherFunc(func() { fired = true }).Start()
	_ = cw

	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !fired {
		t.Fatal("expected cleanup watcher to fire on Close")
	}
}
