// Package policy defines the contract between the cache store and its
// eviction ordering.
package policy

// Node is the minimal contract a cache entry exposes to a policy.
type Node[K comparable, V any] interface {
	Key() K
}

// Hooks expose O(1) list operations over the store's intrusive
// newest/oldest list. The store implements them.
//
// Concurrency: all hook calls happen under the store lock.
// Hooks manage only the list; the store owns the key->node map.
type Hooks[K comparable, V any] interface {
	// MoveToFront makes the node the next one to survive eviction.
	MoveToFront(Node[K, V])
	// PushFront links a freshly admitted node at the front.
	PushFront(Node[K, V])
	// Back returns the current eviction candidate (or nil if empty).
	Back() Node[K, V]
	// Len returns the number of resident nodes.
	Len() int
}

// Instance is a policy bound to one store. All methods are invoked under the
// store lock. The store always evicts Back(); a policy only controls where
// nodes sit in the list.
//
//   - OnAdd must link the node (PushFront for both bundled policies).
//   - OnGet runs on every hit.
//   - OnRemove is a notification; the store unlinks and deletes the node.
type Instance[K comparable, V any] interface {
	OnAdd(Node[K, V])
	OnGet(Node[K, V])
	OnRemove(Node[K, V])
}

// Policy is a factory that creates store-local policy instances.
type Policy[K comparable, V any] interface {
	New(Hooks[K, V]) Instance[K, V]
}
