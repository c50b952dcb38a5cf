package replicator

import (
	"container/heap"

	"github.com/peerlog/peerlog/internal/entry"
)

// readyQueue orders entries that have all ancestors resolved by the oplog's
// deterministic total order (clock time, clock id, cid), so the merge loop
// always processes the causally- and tie-break-earliest ready entry next.
type readyQueue struct {
	items []*entry.Entry
}

func (q *readyQueue) Len() int { return len(q.items) }

func (q *readyQueue) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if a.Clock.Time != b.Clock.Time {
		return a.Clock.Time < b.Clock.Time
	}
	if a.Clock.ID != b.Clock.ID {
		return a.Clock.ID < b.Clock.ID
	}
	return a.Hash.String() < b.Hash.String()
}

func (q *readyQueue) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }

func (q *readyQueue) Push(x any) { q.items = append(q.items, x.(*entry.Entry)) }

func (q *readyQueue) Pop() any {
	old := q.items
	n := len(old)
	item := old[n-1]
	q.items = old[:n-1]
	return item
}

func newReadyQueue() *readyQueue {
	q := &readyQueue{}
	heap.Init(q)
	return q
}

func (q *readyQueue) push(e *entry.Entry) { heap.Push(q, e) }

func (q *readyQueue) pop() *entry.Entry {
	if q.Len() == 0 {
		return nil
	}
	return heap.Pop(q).(*entry.Entry)
}
