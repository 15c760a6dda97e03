//go:build linux
// +build linux

// File: reactor/backend_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux epoll(7)-based Backend. Level-triggered by construction: we never
// set EPOLLET, matching the level-triggered assumption the reactor design
// is built on.

package reactor

import (
	"time"

	"golang.org/x/sys/unix"
)

type epollBackend struct {
	epfd int
	raw  []unix.EpollEvent
}

func newBackend() (Backend, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollBackend{epfd: epfd, raw: make([]unix.EpollEvent, 256)}, nil
}

func toEpollEvents(mask EventMask) uint32 {
	var ev uint32
	if mask&EventRead != 0 {
		ev |= unix.EPOLLIN
	}
	if mask&EventWrite != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func fromEpollEvents(ev uint32) EventMask {
	var mask EventMask
	if ev&unix.EPOLLIN != 0 {
		mask |= EventRead
	}
	if ev&unix.EPOLLOUT != 0 {
		mask |= EventWrite
	}
	if ev&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		mask |= EventError
	}
	return mask
}

func (b *epollBackend) Add(fd int, mask EventMask) error {
	ev := unix.EpollEvent{Events: toEpollEvents(mask), Fd: int32(fd)}
	return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (b *epollBackend) Modify(fd int, mask EventMask) error {
	ev := unix.EpollEvent{Events: toEpollEvents(mask), Fd: int32(fd)}
	return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (b *epollBackend) Remove(fd int) error {
	err := unix.EpollCtl(b.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if err == unix.ENOENT {
		return nil
	}
	return err
}

func (b *epollBackend) Wait(timeout time.Duration, out []ReadyEvent) (int, error) {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}
	if cap(b.raw) < len(out) {
		b.raw = make([]unix.EpollEvent, len(out))
	}
	n, err := unix.EpollWait(b.epfd, b.raw[:cap(b.raw)], ms)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	limit := n
	if limit > len(out) {
		limit = len(out)
	}
	for i := 0; i < limit; i++ {
		out[i] = ReadyEvent{Fd: int(b.raw[i].Fd), Mask: fromEpollEvents(b.raw[i].Events)}
	}
	return limit, nil
}

func (b *epollBackend) Close() error {
	return unix.Close(b.epfd)
}
