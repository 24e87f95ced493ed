package cache

import "time"

// Cache is an in-memory key/value result cache.
// All methods are safe for concurrent use by multiple goroutines.
type Cache[K comparable, V any] interface {
	// Get returns the value for k and whether it was present and fresh.
	// An expired entry is deleted and reported as a miss. On hit the entry's
	// hit count is incremented.
	Get(k K) (V, bool)

	// Peek is Get without hit/miss accounting or policy notification.
	Peek(k K) (V, bool)

	// SizeOf returns the accounted size of a fresh entry without hit/miss
	// accounting.
	SizeOf(k K) (int64, bool)

	// Set inserts or replaces k→v using DefaultTTL (0 = no expiry).
	Set(k K, v V) error

	// SetWithTTL inserts or replaces k→v with a per-key TTL.
	// A non-positive ttl disables expiration for this entry.
	SetWithTTL(k K, v V, ttl time.Duration) error

	// Delete removes k and reports whether it was present.
	Delete(k K) bool

	// Clear removes every entry.
	Clear()

	// Cleanup removes every expired entry and returns how many were removed.
	Cleanup() int

	// Len returns the number of resident entries (expired ones included
	// until they are read or swept).
	Len() int

	// Stats returns a snapshot of the cache counters.
	Stats() Stats

	// Close marks the cache closed; later writes fail with ErrClosed and
	// reads miss.
	Close() error
}

// Stats is a point-in-time view of the cache.
type Stats struct {
	Entries   int     `json:"entries"`
	Bytes     int64   `json:"bytes"`
	MaxSize   int     `json:"max_size"`
	MaxMemory int64   `json:"max_memory"`
	Hits      uint64  `json:"hits"` // sum of hit counts of resident entries
	AvgHits   float64 `json:"avg_hits_per_entry"`
	Misses    uint64  `json:"misses"`
	Evictions uint64  `json:"evictions"`
	Rejected  uint64  `json:"rejected"`
}
