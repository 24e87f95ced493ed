package cache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/computecore/internal/util"
	"github.com/IvanBrykalov/computecore/policy"
	"github.com/IvanBrykalov/computecore/policy/fifo"
)

// cache is the single-list implementation of Cache.
type cache[K comparable, V any] struct {
	// ---- guarded by mu ----
	mu    sync.Mutex
	m     map[K]*node[K, V]
	head  *node[K, V] // newest
	tail  *node[K, V] // eviction candidate
	len   int
	bytes int64
	hits  uint64 // sum of resident hit counts

	pol    policy.Instance[K, V]
	opt    Options[K, V]
	closed atomic.Bool

	// ---- lock-free counters ----
	_        util.CacheLinePad
	misses   util.Counter
	evicts   util.Counter
	rejected util.Counter
}

// New constructs a cache with the provided Options.
// It panics if MaxSize <= 0 or MaxMemory < 0.
func New[K comparable, V any](opt Options[K, V]) Cache[K, V] {
	if opt.MaxSize <= 0 {
		panic("cache: MaxSize must be > 0")
	}
	if opt.MaxMemory < 0 {
		panic("cache: MaxMemory must be >= 0")
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Policy == nil {
		opt.Policy = fifo.New[K, V]()
	}
	if opt.Size == nil {
		opt.Size = JSONSize[V]
	}
	if opt.Logger == nil {
		opt.Logger = slog.New(slog.DiscardHandler)
	}

	c := &cache[K, V]{
		m:   make(map[K]*node[K, V]),
		opt: opt,
	}
	c.pol = opt.Policy.New(listHooks[K, V]{c: c})
	return c
}

// JSONSize approximates the serialized size of v. Strings and byte slices
// are measured directly; everything else by its JSON encoding.
func JSONSize[V any](v V) (int64, error) {
	switch x := any(v).(type) {
	case string:
		return int64(len(x)), nil
	case []byte:
		return int64(len(x)), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("size value: %w", err)
	}
	return int64(len(b)), nil
}

func (c *cache[K, V]) Get(k K) (V, bool) {
	var zero V
	if c.closed.Load() {
		return zero, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.m[k]
	if !ok {
		c.missLocked()
		return zero, false
	}
	if c.expiredLocked(n) {
		c.evictLocked(n, EvictTTL)
		c.missLocked()
		return zero, false
	}

	n.hits++
	c.hits++
	c.pol.OnGet(n)
	c.opt.Metrics.Hit()
	return n.val, true
}

func (c *cache[K, V]) Peek(k K) (V, bool) {
	var zero V
	if c.closed.Load() {
		return zero, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.m[k]
	if !ok || c.expiredLocked(n) {
		return zero, false
	}
	return n.val, true
}

func (c *cache[K, V]) SizeOf(k K) (int64, bool) {
	if c.closed.Load() {
		return 0, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.m[k]
	if !ok || c.expiredLocked(n) {
		return 0, false
	}
	return n.size, true
}

func (c *cache[K, V]) Set(k K, v V) error {
	return c.set(k, v, c.opt.DefaultTTL)
}

func (c *cache[K, V]) SetWithTTL(k K, v V, ttl time.Duration) error {
	return c.set(k, v, ttl)
}

func (c *cache[K, V]) Delete(k K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.m[k]
	if !ok {
		return false
	}
	c.removeLocked(n)
	c.opt.Metrics.Size(c.len, c.bytes)
	return true
}

func (c *cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.m = make(map[K]*node[K, V])
	c.head, c.tail = nil, nil
	c.len, c.bytes, c.hits = 0, 0, 0
	c.opt.Metrics.Size(0, 0)
}

func (c *cache[K, V]) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for n := c.tail; n != nil; {
		prev := n.prev
		if c.expiredLocked(n) {
			c.evictLocked(n, EvictTTL)
			removed++
		}
		n = prev
	}
	if removed > 0 {
		c.opt.Logger.Debug("cache cleanup", "removed", removed, "entries", c.len)
	}
	return removed
}

func (c *cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.len
}

func (c *cache[K, V]) Stats() Stats {
	c.mu.Lock()
	s := Stats{
		Entries:   c.len,
		Bytes:     c.bytes,
		MaxSize:   c.opt.MaxSize,
		MaxMemory: c.opt.MaxMemory,
		Hits:      c.hits,
	}
	c.mu.Unlock()

	if s.Entries > 0 {
		s.AvgHits = float64(s.Hits) / float64(s.Entries)
	}
	s.Misses = c.misses.Load()
	s.Evictions = c.evicts.Load()
	s.Rejected = c.rejected.Load()
	return s
}

func (c *cache[K, V]) Close() error {
	c.closed.Store(true)
	return nil
}

// ---- helpers ----

// set sizes v outside the lock, then enforces both bounds and links the
// new entry. A replaced key is unlinked first and does not count as an
// eviction.
func (c *cache[K, V]) set(k K, v V, ttl time.Duration) error {
	if c.closed.Load() {
		return ErrClosed
	}
	size, err := c.opt.Size(v)
	switch {
	case err != nil:
		return c.reject(&IntegrityError{Key: k, Err: err})
	case size < 0:
		return c.reject(&IntegrityError{Key: k, Size: size})
	case c.opt.MaxMemory > 0 && size > c.opt.MaxMemory:
		return c.reject(&IntegrityError{Key: k, Size: size, Limit: c.opt.MaxMemory})
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.m[k]; ok {
		c.removeLocked(old)
	}
	if c.opt.MaxMemory > 0 {
		for c.bytes+size > c.opt.MaxMemory {
			tail := c.back()
			if tail == nil {
				break
			}
			c.evictLocked(tail, EvictMemory)
		}
	}
	if c.len+1 > c.opt.MaxSize {
		if tail := c.back(); tail != nil {
			c.evictLocked(tail, EvictCount)
		}
	}

	now := c.now()
	n := &node[K, V]{key: k, val: v, size: size}
	if ttl > 0 {
		n.exp = now + int64(ttl)
	}
	c.m[k] = n
	c.pol.OnAdd(n)
	c.opt.Metrics.Size(c.len, c.bytes)
	return nil
}

func (c *cache[K, V]) reject(err *IntegrityError) error {
	c.rejected.Inc()
	c.opt.Metrics.Reject()
	c.opt.Logger.Warn("cache entry rejected", "key", fmt.Sprint(err.Key), "size", err.Size, "error", err)
	return err
}

func (c *cache[K, V]) missLocked() {
	c.misses.Inc()
	c.opt.Metrics.Miss()
}

func (c *cache[K, V]) expiredLocked(n *node[K, V]) bool {
	return n.exp != 0 && c.now() > n.exp
}

func (c *cache[K, V]) now() int64 {
	if c.opt.Clock != nil {
		return c.opt.Clock.NowUnixNano()
	}
	return time.Now().UnixNano()
}
