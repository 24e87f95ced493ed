package pool

import (
	"context"
	"time"
)

// Request describes one unit of work submitted to the pool.
type Request struct {
	// Kind labels the task for handlers, logs and metrics.
	Kind string
	// Input is handed to the executor unchanged.
	Input any
	// Priority orders the queue: higher first, FIFO among equals.
	Priority int
	// Fn executes the task. When nil, the handler registered for Kind is used.
	Fn Handler
}

type taskState int

const (
	taskQueued taskState = iota
	taskAssigned
	taskFinished
)

// task is owned by the queue while queued, by its unit while assigned, and
// is dropped from the pool once finished. Guarded by Pool.mu.
type task struct {
	id         string
	kind       string
	input      any
	priority   int
	fn         Handler
	enqueuedAt time.Time
	startedAt  time.Time

	seq   uint64 // submission order, breaks priority ties
	index int    // heap position while queued
	state taskState
	unit  int
	timer *time.Timer

	future *Future
}

// Future is the pending result of a submitted task. It is resolved exactly
// once: with the executor's result, or with one of the pool errors.
type Future struct {
	id   string
	done chan struct{}
	val  any
	err  error
}

func newFuture(id string) *Future {
	return &Future{id: id, done: make(chan struct{})}
}

// ID returns the task id.
func (f *Future) ID() string { return f.id }

// Done is closed once the result is available.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the task resolves or ctx ends. A ctx error only stops
// this caller from waiting; the task itself is unaffected.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// resolve publishes the result. Callers hold Pool.mu and guarantee a
// single call per future through the task state machine.
func (f *Future) resolve(v any, err error) {
	f.val, f.err = v, err
	close(f.done)
}
