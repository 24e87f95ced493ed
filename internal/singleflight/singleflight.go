// Package singleflight collapses concurrent calls for the same key into one
// underlying execution whose result every caller shares.
package singleflight

import (
	"context"
	"fmt"
	"sync"
)

// Group coalesces concurrent calls for the same key K so that fn runs at
// most once per in-flight window. Callers that arrive while a call is
// running join it instead of starting another one.
//
// Concurrency notes:
//   - fn runs on its own goroutine, detached from every caller. Cancelling
//     one caller's ctx releases only that caller; the call keeps running and
//     the remaining callers still observe its result.
//   - Publishing (val, err) happens-before close(c.done), so reads after
//     <-done observe the final values.
//   - The key is dropped from the group before done is closed, so a caller
//     woken by done that immediately calls Do again starts a fresh call.
type Group[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]*call[V]
}

type call[V any] struct {
	done  chan struct{} // closed when val/err are published
	val   V
	err   error
	joins int
}

// Do runs fn once for key and waits for its result. shared reports whether
// the caller joined a call started by someone else. If ctx ends first, Do
// returns ctx.Err() while fn continues in the background.
func (g *Group[K, V]) Do(ctx context.Context, key K, fn func() (V, error)) (v V, err error, shared bool) {
	g.mu.Lock()
	if g.m == nil {
		g.m = make(map[K]*call[V])
	}
	c, ok := g.m[key]
	if ok {
		c.joins++
	} else {
		c = &call[V]{done: make(chan struct{})}
		g.m[key] = c
		go g.run(key, c, fn)
	}
	g.mu.Unlock()

	select {
	case <-c.done:
		return c.val, c.err, ok
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err(), ok
	}
}

// InFlight reports whether a call for key is currently running.
func (g *Group[K, V]) InFlight(key K) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.m[key]
	return ok
}

// Len returns the number of calls currently running.
func (g *Group[K, V]) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.m)
}

func (g *Group[K, V]) run(key K, c *call[V], fn func() (V, error)) {
	defer func() {
		if r := recover(); r != nil {
			c.err = fmt.Errorf("singleflight: call panicked: %v", r)
		}
		g.mu.Lock()
		delete(g.m, key)
		g.mu.Unlock()
		close(c.done)
	}()
	c.val, c.err = fn()
}
