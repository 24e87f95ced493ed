package cache

// node is an intrusive doubly linked list element owned by the cache.
type node[K comparable, V any] struct {
	key K
	val V

	// Intrusive list links: head is the newest entry, tail the eviction candidate.
	prev *node[K, V]
	next *node[K, V]

	exp  int64 // UnixNano deadline, 0 = no TTL
	hits uint64
	size int64
}

// Key returns the node key (part of policy.Node).
func (n *node[K, V]) Key() K { return n.key }
