// Package util contains internal helpers shared by the pool and the cache.
//revive:disable:var-naming  // allow 'util' as an internal helpers package name
package util

import (
	"sync/atomic"
	"unsafe"
)

// CacheLineSize is a reasonable default for most modern CPUs.
const CacheLineSize = 64

// CacheLinePad separates groups of hot fields into distinct cache lines.
type CacheLinePad struct{ _ [CacheLineSize]byte }

// Counter is an atomic uint64 padded to one cache line. Pool and cache
// counters are bumped from several goroutines and read lock-free by Stats.
type Counter struct {
	atomic.Uint64
	_ [CacheLineSize - 8]byte
}

// Inc adds one and returns the new value.
func (c *Counter) Inc() uint64 { return c.Add(1) }

var _ [CacheLineSize - int(unsafe.Sizeof(Counter{}))]byte
