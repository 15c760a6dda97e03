// File: transport/tcp/broadcast.go
// Author: momentics <momentics@gmail.com>
//
// Broadcast is a small convenience for chat/pubsub-style protocols: write
// the same payload to every transport in a set, skipping any that have
// already closed.

package tcp

// Broadcast writes data to every transport in conns. Transports that are
// closing or closed silently drop the write, matching Transport.Write's
// own idempotence.
func Broadcast(conns []*Transport, data []byte) {
	for _, t := range conns {
		t.Write(data)
	}
}
