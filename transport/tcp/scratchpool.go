// File: transport/tcp/scratchpool.go
// Author: momentics <momentics@gmail.com>
//
// A single sync.Pool-backed scratch buffer for socket reads. Reads never
// retain the buffer past the DataReceived call, and the reactor has exactly
// one goroutine touching it at a time, so a segmented (per-CPU/per-NUMA-
// node) pool buys nothing here.

package tcp

import "sync"

const scratchBufSize = 8 * 1024

var scratchPool = sync.Pool{
	New: func() any {
		b := make([]byte, scratchBufSize)
		return &b
	},
}

func getScratch() []byte {
	return *(scratchPool.Get().(*[]byte))
}

func putScratch(b []byte) {
	scratchPool.Put(&b)
}
