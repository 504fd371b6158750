package transfer

import (
	"sync"
	"time"

	"github.com/Tyrowin/relaychat/internal/protocol"
)

// Queue hands chunks from network dispatch goroutines to a session's
// consumer. Offer never blocks; Poll waits at most timeout.
type Queue interface {
	Offer(c protocol.Chunk)
	Poll(timeout time.Duration) (protocol.Chunk, bool)
	Len() int
}

// BufferQueue is an unbounded FIFO safe for many producers and one consumer.
type BufferQueue struct {
	mu     sync.Mutex
	items  []protocol.Chunk
	notify chan struct{}
}

// NewBufferQueue returns an empty queue.
func NewBufferQueue() *BufferQueue {
	return &BufferQueue{
		notify: make(chan struct{}, 1),
	}
}

// Offer appends a chunk and wakes a waiting Poll.
func (q *BufferQueue) Offer(c protocol.Chunk) {
	q.mu.Lock()
	q.items = append(q.items, c)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// TryDequeue removes the head if there is one.
func (q *BufferQueue) TryDequeue() (protocol.Chunk, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return protocol.Chunk{}, false
	}

	c := q.items[0]
	q.items[0] = protocol.Chunk{}
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return c, true
}

// Poll dequeues the head, waiting up to timeout for one to arrive.
// A false result always means the full timeout elapsed with the queue empty.
func (q *BufferQueue) Poll(timeout time.Duration) (protocol.Chunk, bool) {
	if c, ok := q.TryDequeue(); ok {
		return c, true
	}
	if timeout <= 0 {
		return protocol.Chunk{}, false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-q.notify:
			if c, ok := q.TryDequeue(); ok {
				return c, true
			}
		case <-timer.C:
			return q.TryDequeue()
		}
	}
}

// Len returns the number of queued chunks.
func (q *BufferQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
