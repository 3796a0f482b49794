package pipeline

import (
	"sync"

	"github.com/lumenscale/engine/frame"
)

// frameQueue is the bounded input queue between capture and the worker pool: capacity
// W+1, drop-oldest when full so the producer (the capture thread) never blocks. A
// plain Go channel can't peek-and-evict its oldest element, so this is a
// mutex+condvar-guarded ring instead.
type frameQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	cap      int
	items    []*frame.Raw
	closed   bool
}

func newFrameQueue(capacity int) *frameQueue {
	q := &frameQueue{cap: capacity}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// push appends f, evicting and returning the oldest queued frame if the queue was
// already at capacity. Never blocks.
func (q *frameQueue) push(f *frame.Raw) (dropped *frame.Raw) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	if len(q.items) >= q.cap && len(q.items) > 0 {
		dropped = q.items[0]
		q.items = q.items[1:]
	}
	q.items = append(q.items, f)
	q.notEmpty.Signal()
	return dropped
}

// pop blocks until a frame is available or the queue is closed, returning (nil, false)
// in the latter case.
func (q *frameQueue) pop() (*frame.Raw, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	f := q.items[0]
	q.items = q.items[1:]
	return f, true
}

// close unblocks every pending and future pop call.
func (q *frameQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.notEmpty.Broadcast()
}
