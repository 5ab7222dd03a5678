package feedback

import "sync"

// Queue is the in-process pending-feedback queue. The ingestor appends,
// the analyzer drains, the baseline monitor reads the length for its
// volume trigger.
//
// Thread Safety: all methods are safe for concurrent use; a single mutex
// linearizes access.
type Queue struct {
	mu      sync.Mutex
	entries []*Entry
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Append adds an entry to the tail of the queue.
func (q *Queue) Append(e *Entry) {
	if e == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, e)
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// DrainRecent empties the queue and returns the most recent max entries in
// arrival order. Entries older than the returned batch are discarded
// unanalyzed; a drained entry is never re-analyzed. A non-positive max
// applies no cap.
func (q *Queue) DrainRecent(max int) []*Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return nil
	}

	batch := q.entries
	if max > 0 && len(batch) > max {
		batch = batch[len(batch)-max:]
	}

	// Copy so the queue's backing array is released with the old slice.
	out := make([]*Entry, len(batch))
	copy(out, batch)
	q.entries = nil

	return out
}
