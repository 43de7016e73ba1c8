// Package queue provides the bounded FIFO used to hand values between the
// pipeline's execution contexts.
package queue

import (
	"context"
	"time"
)

// DefaultCapacity matches the depth of both pipeline queues.
const DefaultCapacity = 8

// Queue is a fixed-capacity FIFO backed by a buffered channel. It is safe for
// one producer and one consumer per direction; once a value is sent the
// producer must not touch it again.
type Queue[T any] struct {
	ch chan T
}

// New creates a queue holding at most capacity values. A non-positive
// capacity falls back to DefaultCapacity.
func New[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue[T]{ch: make(chan T, capacity)}
}

// TrySend enqueues v without blocking. It returns false if the queue is
// full and v was dropped. Safe to call from a timer tick.
func (q *Queue[T]) TrySend(v T) bool {
	select {
	case q.ch <- v:
		return true
	default:
		return false
	}
}

// SendTimeout enqueues v, waiting at most d for a free slot. It returns
// false if the wait expired and v was dropped.
func (q *Queue[T]) SendTimeout(v T, d time.Duration) bool {
	if q.TrySend(v) {
		return true
	}
	if d <= 0 {
		return false
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case q.ch <- v:
		return true
	case <-timer.C:
		return false
	}
}

// Receive blocks until a value is available or ctx is done. The second
// return value is false only when ctx ended the wait.
func (q *Queue[T]) Receive(ctx context.Context) (T, bool) {
	select {
	case v := <-q.ch:
		return v, true
	case <-ctx.Done():
		var zero T
		return zero, false
	}
}

// Len returns the number of values currently buffered.
func (q *Queue[T]) Len() int { return len(q.ch) }

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int { return cap(q.ch) }
