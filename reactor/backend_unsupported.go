//go:build !unix

// File: reactor/backend_unsupported.go
// Author: momentics <momentics@gmail.com>
//
// No readiness-based backend is wired for non-unix platforms. Windows'
// natural multiplexer, IOCP, is completion-based rather than
// readiness-based and does not implement this interface faithfully;
// see DESIGN.md for the rationale.

package reactor

import (
	"errors"
	"time"
)

type unsupportedBackend struct{}

func newBackend() (Backend, error) {
	return nil, errors.New("reactor: no readiness-based backend on this platform")
}

func (unsupportedBackend) Add(int, EventMask) error    { return errUnsupported }
func (unsupportedBackend) Modify(int, EventMask) error { return errUnsupported }
func (unsupportedBackend) Remove(int) error            { return errUnsupported }
func (unsupportedBackend) Wait(time.Duration, []ReadyEvent) (int, error) {
	return 0, errUnsupported
}
func (unsupportedBackend) Close() error { return nil }

var errUnsupported = errors.New("reactor: unsupported platform")
