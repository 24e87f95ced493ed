// Package cache stores computation results keyed by a caller-supplied
// fingerprint, bounded by time, entry count and approximate memory.
//
// Design
//
//   - Storage: one map[K]*node for lookups and an intrusive newest↔oldest
//     doubly linked list for ordering, both guarded by a single mutex. A single
//     list (rather than shards) keeps the eviction order and both bounds global.
//
//   - Eviction: insertion order by default (policy/fifo). Hits never reorder
//     entries, so the list is sorted by creation time and the eviction
//     candidate is always the tail. policy/lru is available for access order.
//
//   - Bounds: before an insert the cache frees memory by evicting the oldest
//     entries until the new entry fits in MaxMemory, then evicts one more entry
//     if the insert would exceed MaxSize.
//
//   - Size: each value is sized once on Set (Options.Size, JSON length by
//     default). Values that cannot be sized or that are larger than MaxMemory
//     alone are rejected with *IntegrityError; existing entries are untouched.
//
//   - TTL: deadlines are absolute UnixNano. Expiration is lazy on read, and
//     Cleanup sweeps everything that expired; run it from a timer.
//
//   - Metrics: Options.Metrics receives Hit/Miss/Evict/Reject/Size signals.
//     NoopMetrics is the default; metrics/prom exports them to Prometheus.
//
// Basic usage
//
//	c := cache.New[string, []byte](cache.Options[string, []byte]{
//	    MaxSize:   10_000,
//	    MaxMemory: 64 << 20,
//	    DefaultTTL: time.Hour,
//	})
//	if err := c.Set("a", []byte("1")); err != nil {
//	    // *cache.IntegrityError: value was not admitted
//	}
//	if v, ok := c.Get("a"); ok {
//	    _ = v
//	}
//
// Thread-safety & complexity
//
// All methods are safe for concurrent use. Get, Set and Delete are O(1)
// expected time plus O(evicted) for Set; Cleanup is O(n).
package cache
