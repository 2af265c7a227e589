package events

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrQueueClosed is returned for operations on a closed queue.
var ErrQueueClosed = errors.New("events: queue closed")

// Queue is the durable event sink. Writes must be acknowledged by the
// backing log before Write returns: a posted event survives controller
// restarts.
type Queue interface {
	// Write appends the event to the queue, suspending until the backing
	// log has acknowledged it.
	Write(ctx context.Context, event SealStreamEvent) error

	// Close releases the queue's resources.
	Close() error
}

// MemoryQueue is an in-process Queue for tests. It records every write
// in order and can hand events back to a test-driven consumer.
type MemoryQueue struct {
	mu     sync.Mutex
	events []SealStreamEvent
	closed bool
}

// NewMemoryQueue creates an empty in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

// Write appends the event.
func (q *MemoryQueue) Write(ctx context.Context, event SealStreamEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.events = append(q.events, event)
	return nil
}

// Close marks the queue closed. Subsequent writes fail.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

// Take removes and returns the oldest queued event, reporting false
// when the queue is empty.
func (q *MemoryQueue) Take() (SealStreamEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return SealStreamEvent{}, false
	}
	e := q.events[0]
	q.events = q.events[1:]
	return e, true
}

// Events returns a copy of the queued events in write order.
func (q *MemoryQueue) Events() []SealStreamEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]SealStreamEvent, len(q.events))
	copy(out, q.events)
	return out
}

// Len returns the number of queued events.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Keys returns the distinct partitioning keys present in the queue,
// sorted. Useful for asserting per-stream ordering in tests.
func (q *MemoryQueue) Keys() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	seen := make(map[string]struct{})
	for _, e := range q.events {
		seen[e.Key()] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var _ Queue = (*MemoryQueue)(nil)
