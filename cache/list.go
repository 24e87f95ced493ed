package cache

import "github.com/IvanBrykalov/computecore/policy"

// -------------------- list internals (mu held) --------------------

// insertFront links n as the newest entry in O(1).
func (c *cache[K, V]) insertFront(n *node[K, V]) {
	n.prev = nil
	n.next = c.head
	if c.head != nil {
		c.head.prev = n
	}
	c.head = n
	if c.tail == nil {
		c.tail = n
	}
	c.len++
	c.bytes += n.size
}

// moveToFront relinks n at the head in O(1).
func (c *cache[K, V]) moveToFront(n *node[K, V]) {
	if n == c.head {
		return
	}
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if c.tail == n {
		c.tail = n.prev
	}
	n.prev = nil
	n.next = c.head
	if c.head != nil {
		c.head.prev = n
	}
	c.head = n
	if c.tail == nil {
		c.tail = n
	}
}

// unlink detaches n and updates counters in O(1).
func (c *cache[K, V]) unlink(n *node[K, V]) {
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if c.head == n {
		c.head = n.next
	}
	if c.tail == n {
		c.tail = n.prev
	}
	n.prev, n.next = nil, nil
	c.len--
	c.bytes -= n.size
	if c.bytes < 0 {
		c.bytes = 0
	}
	c.hits -= n.hits
}

func (c *cache[K, V]) back() *node[K, V] { return c.tail }

// removeLocked drops n from the list and the map without eviction accounting.
func (c *cache[K, V]) removeLocked(n *node[K, V]) {
	c.pol.OnRemove(n)
	c.unlink(n)
	delete(c.m, n.key)
}

// evictLocked removes n, updates eviction counters and calls OnEvict.
func (c *cache[K, V]) evictLocked(n *node[K, V], reason EvictReason) {
	c.removeLocked(n)
	c.evicts.Inc()
	c.opt.Metrics.Evict(reason)
	if cb := c.opt.OnEvict; cb != nil {
		cb(n.key, n.val, reason)
	}
}

// -------------------- policy hooks --------------------

// listHooks adapts the cache's list operations to policy.Hooks.
type listHooks[K comparable, V any] struct{ c *cache[K, V] }

func (h listHooks[K, V]) MoveToFront(x policy.Node[K, V]) { h.c.moveToFront(x.(*node[K, V])) }
func (h listHooks[K, V]) PushFront(x policy.Node[K, V])   { h.c.insertFront(x.(*node[K, V])) }
func (h listHooks[K, V]) Back() policy.Node[K, V] {
	// Avoid returning a typed nil inside the interface.
	if h.c.tail == nil {
		return nil
	}
	return h.c.tail
}
func (h listHooks[K, V]) Len() int { return h.c.len }
