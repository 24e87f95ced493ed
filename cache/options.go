package cache

import (
	"log/slog"
	"time"

	"github.com/IvanBrykalov/computecore/policy"
)

// EvictReason explains why an entry was removed.
type EvictReason int

const (
	// EvictCount: removed because the insert would exceed MaxSize.
	EvictCount EvictReason = iota
	// EvictMemory: removed to make room under MaxMemory.
	EvictMemory
	// EvictTTL: expired, either on read or by Cleanup.
	EvictTTL
)

func (r EvictReason) String() string {
	switch r {
	case EvictCount:
		return "count"
	case EvictMemory:
		return "memory"
	case EvictTTL:
		return "ttl"
	default:
		return "unknown"
	}
}

// Metrics exposes cache-level observability hooks.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	Reject()
	Size(entries int, bytes int64)
}

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

// Options configures the cache. Defaults applied in New():
//   - nil Policy  => insertion order (policy/fifo)
//   - nil Size    => JSONSize
//   - nil Metrics => NoopMetrics
//   - nil Logger  => discard
type Options[K comparable, V any] struct {
	// MaxSize is the entry count limit. Must be > 0.
	MaxSize int

	// MaxMemory bounds the sum of entry sizes in bytes; 0 disables it.
	MaxMemory int64

	// DefaultTTL applies to Set (0 = no TTL).
	DefaultTTL time.Duration

	// Policy orders entries for eviction.
	Policy policy.Policy[K, V]

	// Size returns the approximate serialized size of a value in bytes.
	// An error rejects the value.
	Size func(v V) (int64, error)

	// OnEvict is called on eviction under the cache lock; keep it lightweight.
	OnEvict func(k K, v V, reason EvictReason)
	Metrics Metrics
	Logger  *slog.Logger

	// Clock overrides the time source (tests). Nil => time.Now().
	Clock Clock
}
