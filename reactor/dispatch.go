// File: reactor/dispatch.go
// Author: momentics <momentics@gmail.com>
//
// Shared priority-ordering helper used when dispatching a batch of ready
// watchers within a single loop iteration. Sorting is stable so
// equal-priority watchers keep an unspecified-but-stable relative order,
// matching spec's ordering guarantee.

package reactor

import "sort"

func sortByPriority[T any](items []T, prio func(T) Priority) {
	sort.SliceStable(items, func(i, j int) bool {
		return prio(items[i]) > prio(items[j])
	})
}
