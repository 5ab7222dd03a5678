package action

import (
	"container/heap"
	"fmt"
	"sort"
	"sync"
)

// Queue is the pending-action priority queue. The analyzer and baseline
// monitor enqueue, the execution engine takes. Ordering is by priority
// rank, then creation time, then arrival order for identical timestamps.
//
// The queue holds only pending actions: an action leaves the queue before
// any status transition, so a snapshot never observes an in_progress entry.
//
// Thread Safety: all methods are safe for concurrent use.
type Queue struct {
	mu    sync.Mutex
	items queueHeap
	seq   uint64
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue adds a pending action. Non-pending actions are rejected, which
// keeps the queue invariant checkable at the boundary.
func (q *Queue) Enqueue(a *Action) error {
	if a == nil {
		return fmt.Errorf("action cannot be nil")
	}
	if a.Status != StatusPending {
		return fmt.Errorf("action %s: cannot enqueue with status %q", a.ID, a.Status)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.seq++
	heap.Push(&q.items, &queued{action: a, seq: q.seq})
	return nil
}

// Next removes and returns the action with the lexicographically smallest
// (priority rank, created_at) tuple, or nil when the queue is empty. It
// never blocks.
func (q *Queue) Next() *Action {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.Len() == 0 {
		return nil
	}
	return heap.Pop(&q.items).(*queued).action
}

// Len returns the number of pending actions.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Pending returns a copy of the queued actions in execution order. The
// copies are safe to serialize without racing the executor.
func (q *Queue) Pending() []Action {
	q.mu.Lock()
	defer q.mu.Unlock()

	snapshot := make([]*queued, len(q.items))
	copy(snapshot, q.items)
	sort.Slice(snapshot, func(i, j int) bool {
		return snapshot[i].less(snapshot[j])
	})

	out := make([]Action, len(snapshot))
	for i, item := range snapshot {
		out[i] = *item.action
	}
	return out
}

// queued pairs an action with its arrival sequence for stable ordering.
type queued struct {
	action *Action
	seq    uint64
}

func (a *queued) less(b *queued) bool {
	ra, rb := a.action.Priority.Rank(), b.action.Priority.Rank()
	if ra != rb {
		return ra < rb
	}
	if !a.action.CreatedAt.Equal(b.action.CreatedAt) {
		return a.action.CreatedAt.Before(b.action.CreatedAt)
	}
	return a.seq < b.seq
}

// queueHeap implements heap.Interface.
type queueHeap []*queued

func (h queueHeap) Len() int           { return len(h) }
func (h queueHeap) Less(i, j int) bool { return h[i].less(h[j]) }
func (h queueHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *queueHeap) Push(x any) {
	*h = append(*h, x.(*queued))
}

func (h *queueHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
