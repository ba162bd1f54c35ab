// Package queue defines the contract for enqueuing and consuming notifications.
//
// Admission never waits on the queue: a full or closed queue rejects the
// notification immediately and the caller decides whether to log the drop.
package queue

import (
	"context"
	"sync"

	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 10_000
	defaultBufferSize    = 10_000
)

// Notification is the payload type flowing through the queue.
type Notification = model.Notification

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a notification to the queue.
	// Returns ErrFull or ErrClosed when the notification was not enqueued.
	Enqueue(ctx context.Context, n Notification) error

	// Dequeue returns a channel that will receive notifications as they become available.
	Dequeue(ctx context.Context) <-chan Notification

	// Len returns the current number of queued notifications.
	Len(ctx context.Context) int

	// Close gracefully shuts down the queue.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	items      chan Notification
	capacity   int
	bufferSize int
	mu         sync.RWMutex
	closed     bool

	// held keeps notifications a consumer took off items but could not hand
	// over before its context ended. They are served first on the next Dequeue.
	heldMu sync.Mutex
	held   []Notification
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity:   defaultQueueCapacity,
		bufferSize: defaultBufferSize,
	}

	for _, opt := range opts {
		opt(q)
	}
	if q.bufferSize < q.capacity {
		q.bufferSize = q.capacity
	}

	q.items = make(chan Notification, q.bufferSize)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0.0)

	return q
}

// Enqueue adds a notification to the queue without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, n Notification) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueDropped("closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueDropped("context_cancelled")
		return err
	}
	if len(q.items) >= q.capacity {
		metrics.RecordQueueDropped("capacity_exceeded")
		return ErrFull
	}

	select {
	case q.items <- n:
		metrics.RecordQueueEnqueue()
		q.observe()
		return nil
	default:
		metrics.RecordQueueDropped("queue_full")
		return ErrFull
	}
}

// Dequeue returns a channel that will receive notifications as they become available.
// A notification taken off the queue when ctx ends is held back for the next
// consumer rather than lost.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Notification {
	out := make(chan Notification)
	go func() {
		defer close(out)
		for {
			n, ok := q.takeHeld()
			if !ok {
				break
			}
			if !q.hand(ctx, out, n) {
				return
			}
		}
		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-q.items:
				if !ok {
					return
				}
				if !q.hand(ctx, out, n) {
					return
				}
			}
		}
	}()
	return out
}

func (q *InMemoryQueue) hand(ctx context.Context, out chan<- Notification, n Notification) bool {
	select {
	case out <- n:
		metrics.RecordQueueDequeue()
		q.observe()
		return true
	case <-ctx.Done():
		q.holdBack(n)
		return false
	}
}

func (q *InMemoryQueue) takeHeld() (Notification, bool) {
	q.heldMu.Lock()
	defer q.heldMu.Unlock()
	if len(q.held) == 0 {
		return Notification{}, false
	}
	n := q.held[0]
	q.held = q.held[1:]
	return n, true
}

func (q *InMemoryQueue) holdBack(n Notification) {
	q.heldMu.Lock()
	defer q.heldMu.Unlock()
	q.held = append([]Notification{n}, q.held...)
}

func (q *InMemoryQueue) heldLen() int {
	q.heldMu.Lock()
	defer q.heldMu.Unlock()
	return len(q.held)
}

// Len returns the current number of queued notifications.
func (q *InMemoryQueue) Len(_ context.Context) int {
	q.observe()
	return len(q.items) + q.heldLen()
}

func (q *InMemoryQueue) observe() {
	size := len(q.items) + q.heldLen()
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}

// Close gracefully shuts down the queue. Already queued notifications
// remain readable through Dequeue.
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

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
