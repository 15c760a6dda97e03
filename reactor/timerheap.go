// File: reactor/timerheap.go
// Author: momentics <momentics@gmail.com>
//
// Min-heap of pending timer/one-shot entries ordered by deadline, with a
// monotonic sequence number breaking ties in registration order, so two
// timers scheduled for the same deadline fire in the order they were
// registered.

package reactor

import "container/heap"

// timerEntry is a single scheduled timer or one-shot callback.
type timerEntry struct {
	deadline  float64 // loop-relative seconds, see Loop.Time
	seq       uint64
	period    float64 // 0 => one-shot
	index     int     // heap.Interface bookkeeping
	cancelled bool
	fire      func()
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline != h[j].deadline {
		return h[i].deadline < h[j].deadline
	}
	return h[i].seq < h[j].seq
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

func (h *timerHeap) push(e *timerEntry) { heap.Push(h, e) }

func (h *timerHeap) removeEntry(e *timerEntry) {
	if e.index < 0 || e.index >= len(*h) || (*h)[e.index] != e {
		return
	}
	heap.Remove(h, e.index)
}

// popExpired pops and returns every entry whose deadline is <= now, in
// deadline (then registration) order.
func (h *timerHeap) popExpired(now float64) []*timerEntry {
	var due []*timerEntry
	for h.Len() > 0 && (*h)[0].deadline <= now {
		e := heap.Pop(h).(*timerEntry)
		if e.cancelled {
			continue
		}
		due = append(due, e)
	}
	return due
}

func (h timerHeap) nextDeadline() (float64, bool) {
	if len(h) == 0 {
		return 0, false
	}
	return h[0].deadline, true
}
