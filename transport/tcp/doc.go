// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package tcp implements a buffered, half-closeable TCP transport and
// listener on top of a reactor.Loop: nonblocking sockets, read/write flow
// control with hysteresis, idle timeouts, and graceful shutdown, mediating
// between the raw OS socket and a user-supplied Protocol.
package tcp
