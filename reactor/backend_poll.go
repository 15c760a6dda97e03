//go:build unix && !linux
// +build unix,!linux

// File: reactor/backend_poll.go
// Author: momentics <momentics@gmail.com>
//
// Portable poll(2)-based Backend for non-Linux unices (darwin/bsd/etc.).
// Kept deliberately simple: it re-derives the pollfd slice on every Wait
// call instead of maintaining a persistent kernel-side interest set the
// way kqueue would. Level-triggered, same as the epoll backend.

package reactor

import (
	"sort"
	"time"

	"golang.org/x/sys/unix"
)

type pollBackend struct {
	interest map[int]EventMask
}

func newBackend() (Backend, error) {
	return &pollBackend{interest: make(map[int]EventMask)}, nil
}

func (b *pollBackend) Add(fd int, mask EventMask) error {
	b.interest[fd] = mask
	return nil
}

func (b *pollBackend) Modify(fd int, mask EventMask) error {
	b.interest[fd] = mask
	return nil
}

func (b *pollBackend) Remove(fd int) error {
	delete(b.interest, fd)
	return nil
}

func (b *pollBackend) Wait(timeout time.Duration, out []ReadyEvent) (int, error) {
	if len(b.interest) == 0 {
		if timeout > 0 {
			time.Sleep(timeout)
		}
		return 0, nil
	}
	fds := make([]int, 0, len(b.interest))
	for fd := range b.interest {
		fds = append(fds, fd)
	}
	sort.Ints(fds)

	pfds := make([]unix.PollFd, len(fds))
	for i, fd := range fds {
		var events int16
		mask := b.interest[fd]
		if mask&EventRead != 0 {
			events |= unix.POLLIN
		}
		if mask&EventWrite != 0 {
			events |= unix.POLLOUT
		}
		pfds[i] = unix.PollFd{Fd: int32(fd), Events: events}
	}

	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}
	n, err := unix.Poll(pfds, ms)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	count := 0
	for i, pfd := range pfds {
		if pfd.Revents == 0 {
			continue
		}
		var mask EventMask
		if pfd.Revents&unix.POLLIN != 0 {
			mask |= EventRead
		}
		if pfd.Revents&unix.POLLOUT != 0 {
			mask |= EventWrite
		}
		if pfd.Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			mask |= EventError
		}
		if count < len(out) {
			out[count] = ReadyEvent{Fd: fds[i], Mask: mask}
			count++
		}
	}
	return count, nil
}

func (b *pollBackend) Close() error {
	b.interest = nil
	return nil
}
