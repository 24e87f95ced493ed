// Package fifo implements insertion-order eviction: the oldest inserted
// entry goes first and hits never reorder the list.
package fifo

import "github.com/IvanBrykalov/computecore/policy"

type fifo[K comparable, V any] struct {
	h policy.Hooks[K, V]
}

type fifoPolicy[K comparable, V any] struct{}

// New returns a Policy factory for insertion-order eviction. It is the
// cache default; bookkeeping is one PushFront per insert and nothing on hit.
func New[K comparable, V any]() policy.Policy[K, V] { return fifoPolicy[K, V]{} }

func (fifoPolicy[K, V]) New(h policy.Hooks[K, V]) policy.Instance[K, V] {
	return &fifo[K, V]{h: h}
}

// OnAdd links the entry as the newest one.
func (p *fifo[K, V]) OnAdd(n policy.Node[K, V]) { p.h.PushFront(n) }

// OnGet never promotes: the entry keeps its insertion position.
func (p *fifo[K, V]) OnGet(policy.Node[K, V]) {}

func (p *fifo[K, V]) OnRemove(policy.Node[K, V]) {}
