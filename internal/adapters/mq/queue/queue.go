// Package queue is the bounded in-memory outbox that decouples the pipeline
// from email delivery.
//
// Enqueue never blocks: a full or closed outbox refuses the notification and
// the caller decides what to do with it.
package queue

import (
	"context"
	"sync"

	"github.com/okian/sudea/internal/domain/model"
	"github.com/okian/sudea/pkg/metrics"
)

const defaultCapacity = 256

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds n to the outbox. It returns ErrFull or ErrClosed when the
	// notification was not accepted.
	Enqueue(ctx context.Context, n model.Notification) error

	// Dequeue returns the channel workers read from. It is closed, after
	// draining, once the queue is closed.
	Dequeue() <-chan model.Notification

	// Len returns the number of buffered notifications.
	Len() int

	// Close stops accepting notifications.
	Close() error
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	items    chan model.Notification
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates an outbox with the given options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.items = make(chan model.Notification, q.capacity)

	metrics.UpdateOutboxCapacity(q.capacity)
	metrics.UpdateOutboxSize(0)
	return q
}

// Enqueue implements Queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, n model.Notification) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordOutboxEnqueueError("closed")
		return ErrClosed
	}

	select {
	case q.items <- n:
		metrics.UpdateOutboxSize(len(q.items))
		return nil
	case <-ctx.Done():
		metrics.RecordOutboxEnqueueError("context_cancelled")
		return ctx.Err()
	default:
		metrics.RecordOutboxEnqueueError("full")
		return ErrFull
	}
}

// Dequeue implements Queue. Every caller shares the same channel, so several
// workers compete for items.
func (q *InMemoryQueue) Dequeue() <-chan model.Notification {
	return q.items
}

// Len implements Queue.
func (q *InMemoryQueue) Len() int {
	size := len(q.items)
	metrics.UpdateOutboxSize(size)
	return size
}

// Close implements Queue. Buffered notifications remain readable.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.items)
	q.closed = true
	return nil
}

// IsClosed reports whether Close has been called.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
