// Package notifyqueue implements C3, the bounded FIFO of unsolicited
// item notifications described in spec.md §4.3.
package notifyqueue

import (
	"sync"

	"github.com/nugget/miopubsub/internal/model"
)

// SignalFunc is called after an enqueue, giving the owner a chance to
// wake a waiter registered under the fixed request id "notifications"
// (spec.md §4.3). It's a function rather than a direct dependency on
// internal/reqtable to keep this package free of that import cycle
// risk and independently testable.
type SignalFunc func()

// Queue is a bounded, drop-oldest-on-overflow FIFO of decoded
// responses (spec.md §3 invariant I3, §4.3).
type Queue struct {
	mu      sync.Mutex
	items   []*model.Response
	max     int
	onEnque SignalFunc
}

// New creates a Queue bounded at max entries. A nil onEnqueue is
// allowed; callers that don't need the wakeup can pass nil.
func New(max int, onEnqueue SignalFunc) *Queue {
	if max < 1 {
		max = 1
	}
	if onEnqueue == nil {
		onEnqueue = func() {}
	}
	return &Queue{max: max, onEnque: onEnqueue}
}

// Enqueue appends response, dropping the oldest entry first if the
// queue is already at capacity (spec.md §4.3 "Why drop-oldest").
func (q *Queue) Enqueue(resp *model.Response) {
	q.mu.Lock()
	if len(q.items) >= q.max {
		q.items = q.items[1:]
	}
	q.items = append(q.items, resp)
	q.mu.Unlock()
	q.onEnque()
}

// Dequeue pops and returns the oldest entry, or nil if the queue is
// empty.
func (q *Queue) Dequeue() *model.Response {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item
}

// Clear drains the queue without delivering any entry.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()
}

// Len reports the current queue length, bounded by NOTIFY_QUEUE_MAX
// per invariant I3.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Empty reports whether the queue currently has no entries.
func (q *Queue) Empty() bool {
	return q.Len() == 0
}
