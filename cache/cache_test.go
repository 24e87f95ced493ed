package cache

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/IvanBrykalov/computecore/policy/lru"
)

type fakeClock struct{ t int64 }

func (f *fakeClock) NowUnixNano() int64  { return f.t }
func (f *fakeClock) add(d time.Duration) { f.t += int64(d) }

// byteLen sizes string values by length so tests can reason about bytes.
func byteLen(v string) (int64, error) { return int64(len(v)), nil }

// Uses a fake clock to avoid timing flakiness.
// An expired entry is a miss even though Cleanup never ran.
func TestCache_TTL_FakeClock(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{t: 1}
	c := New[string, string](Options[string, string]{MaxSize: 4, Clock: clk})
	t.Cleanup(func() { _ = c.Close() })

	if err := c.SetWithTTL("x", "v", 100*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get("x"); !ok {
		t.Fatal("fresh miss")
	}
	clk.add(100 * time.Millisecond)
	if _, ok := c.Get("x"); !ok {
		t.Fatal("entry must live until now > expiresAt")
	}
	clk.add(time.Nanosecond)
	if _, ok := c.Get("x"); ok {
		t.Fatal("expired hit")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry must be deleted on access, len=%d", c.Len())
	}
}

func TestCache_DefaultTTL(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{t: 1}
	c := New[string, string](Options[string, string]{MaxSize: 4, DefaultTTL: time.Second, Clock: clk})

	_ = c.Set("a", "1")
	_ = c.SetWithTTL("b", "2", 0) // no expiry
	clk.add(2 * time.Second)

	if _, ok := c.Get("a"); ok {
		t.Fatal("a must expire with the default TTL")
	}
	if _, ok := c.Get("b"); !ok {
		t.Fatal("b has no TTL and must survive")
	}
}

// Basic Set/Get/Delete/Clear semantics.
func TestCache_BasicSetGetDelete(t *testing.T) {
	t.Parallel()

	c := New[string, int](Options[string, int]{MaxSize: 8})
	t.Cleanup(func() { _ = c.Close() })

	if err := c.Set("a", 1); err != nil {
		t.Fatal(err)
	}
	if err := c.Set("a", 11); err != nil {
		t.Fatal(err)
	}
	if v, ok := c.Get("a"); !ok || v != 11 {
		t.Fatalf("Get a want 11, got %v ok=%v", v, ok)
	}
	if c.Len() != 1 {
		t.Fatalf("replace must not duplicate, len=%d", c.Len())
	}

	if !c.Delete("a") {
		t.Fatal("Delete a must be true")
	}
	if c.Delete("a") {
		t.Fatal("second Delete must be false")
	}
	if _, ok := c.Get("a"); ok {
		t.Fatal("a must be absent after Delete")
	}

	_ = c.Set("b", 2)
	_ = c.Set("c", 3)
	c.Clear()
	if c.Len() != 0 || c.Stats().Bytes != 0 {
		t.Fatalf("Clear must empty the cache: %+v", c.Stats())
	}
}

// set(a), set(b), set(c) with MaxSize 2: a is gone, b and c remain.
func TestCache_EvictionInsertionOrder(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{t: 1}
	var evicted []string
	c := New[string, string](Options[string, string]{
		MaxSize: 2,
		Clock:   clk,
		OnEvict: func(k, _ string, r EvictReason) {
			if r != EvictCount {
				t.Errorf("want count eviction, got %v", r)
			}
			evicted = append(evicted, k)
		},
	})

	_ = c.Set("a", "A")
	clk.add(time.Millisecond)
	_ = c.Set("b", "B")
	clk.add(time.Millisecond)

	// Hits must not protect a from eviction.
	for i := 0; i < 3; i++ {
		if _, ok := c.Get("a"); !ok {
			t.Fatal("a must be present before overflow")
		}
	}
	_ = c.Set("c", "C")

	if _, ok := c.Get("a"); ok {
		t.Fatal("a must be evicted (oldest insertion)")
	}
	for _, k := range []string{"b", "c"} {
		if v, ok := c.Get(k); !ok || v != strings.ToUpper(k) {
			t.Fatalf("%s must survive, got %q ok=%v", k, v, ok)
		}
	}
	if len(evicted) != 1 || evicted[0] != "a" {
		t.Fatalf("evicted %v, want [a]", evicted)
	}
}

// Access-order policy: a hit protects the entry.
func TestCache_EvictionLRUPolicy(t *testing.T) {
	t.Parallel()

	c := New[string, int](Options[string, int]{MaxSize: 2, Policy: lru.New[string, int]()})
	_ = c.Set("a", 1)
	_ = c.Set("b", 2)
	c.Get("a")
	_ = c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatal("b must be evicted under LRU")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a must survive (promoted)")
	}
}

// Memory bound: oldest entries go until the new one fits.
func TestCache_EvictionMemory(t *testing.T) {
	t.Parallel()

	reasons := map[EvictReason]int{}
	c := New[string, string](Options[string, string]{
		MaxSize:   100,
		MaxMemory: 10,
		Size:      byteLen,
		OnEvict:   func(_, _ string, r EvictReason) { reasons[r]++ },
	})

	_ = c.Set("a", "xxxx") // 4
	_ = c.Set("b", "xxxx") // 8
	_ = c.Set("c", "xx")   // 10
	if st := c.Stats(); st.Bytes != 10 || st.Entries != 3 {
		t.Fatalf("want 10 bytes / 3 entries, got %+v", st)
	}

	_ = c.Set("d", "xxxxxx") // 6: needs a and b gone
	if _, ok := c.Peek("a"); ok {
		t.Fatal("a must be evicted")
	}
	if _, ok := c.Peek("b"); ok {
		t.Fatal("b must be evicted")
	}
	if _, ok := c.Peek("c"); !ok {
		t.Fatal("c must survive")
	}
	if st := c.Stats(); st.Bytes != 8 || st.Entries != 2 {
		t.Fatalf("want 8 bytes / 2 entries, got %+v", st)
	}
	if reasons[EvictMemory] != 2 {
		t.Fatalf("want 2 memory evictions, got %v", reasons)
	}
}

func TestCache_IntegrityError(t *testing.T) {
	t.Parallel()

	boom := errors.New("unmarshalable")
	c := New[string, string](Options[string, string]{
		MaxSize:   4,
		MaxMemory: 8,
		Size: func(v string) (int64, error) {
			if v == "bad" {
				return 0, boom
			}
			return int64(len(v)), nil
		},
	})
	_ = c.Set("keep", "1234")

	var ie *IntegrityError
	err := c.Set("big", "123456789")
	if !errors.As(err, &ie) || ie.Size != 9 || ie.Limit != 8 {
		t.Fatalf("oversized: want IntegrityError, got %v", err)
	}
	err = c.Set("bad", "bad")
	if !errors.As(err, &ie) || !errors.Is(err, boom) {
		t.Fatalf("malformed: want IntegrityError wrapping cause, got %v", err)
	}

	if v, ok := c.Get("keep"); !ok || v != "1234" {
		t.Fatal("rejections must not disturb existing entries")
	}
	if st := c.Stats(); st.Entries != 1 || st.Rejected != 2 || st.Evictions != 0 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestCache_JSONSizeRejectsUnencodable(t *testing.T) {
	t.Parallel()

	c := New[string, any](Options[string, any]{MaxSize: 2})
	var ie *IntegrityError
	if err := c.Set("ch", make(chan int)); !errors.As(err, &ie) {
		t.Fatalf("channel value must be rejected, got %v", err)
	}
	if err := c.Set("ok", map[string]int{"a": 1}); err != nil {
		t.Fatalf("map value: %v", err)
	}
	if st := c.Stats(); st.Bytes != int64(len(`{"a":1}`)) {
		t.Fatalf("want JSON length, got %d", st.Bytes)
	}
}

func TestCache_CleanupAndStats(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{t: 1}
	c := New[string, string](Options[string, string]{MaxSize: 16, Clock: clk, Size: byteLen})
	for i := 0; i < 6; i++ {
		ttl := time.Duration(0)
		if i%2 == 0 {
			ttl = time.Second
		}
		_ = c.SetWithTTL(fmt.Sprintf("k%d", i), "vv", ttl)
	}
	c.Get("k1")
	c.Get("k1")
	c.Get("k3")
	c.Get("missing")

	clk.add(2 * time.Second)
	if n := c.Cleanup(); n != 3 {
		t.Fatalf("Cleanup removed %d, want 3", n)
	}

	st := c.Stats()
	if st.Entries != 3 || st.Bytes != 6 {
		t.Fatalf("want 3 entries / 6 bytes, got %+v", st)
	}
	if st.Hits != 3 || st.AvgHits != 1 {
		t.Fatalf("want 3 hits avg 1, got hits=%d avg=%v", st.Hits, st.AvgHits)
	}
	if st.Misses != 1 || st.Evictions != 3 {
		t.Fatalf("want 1 miss / 3 evictions, got %+v", st)
	}
}

func TestCache_Closed(t *testing.T) {
	t.Parallel()

	c := New[string, int](Options[string, int]{MaxSize: 2})
	_ = c.Set("a", 1)
	_ = c.Close()
	if _, ok := c.Get("a"); ok {
		t.Fatal("closed cache must miss")
	}
	if err := c.Set("b", 2); !errors.Is(err, ErrClosed) {
		t.Fatalf("want ErrClosed, got %v", err)
	}
}

func TestNew_PanicsOnZeroSize(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	New[string, int](Options[string, int]{})
}

// SizeOf reports the accounted size and leaves hit/miss counters alone.
func TestCache_SizeOf(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{t: 1}
	c := New[string, string](Options[string, string]{MaxSize: 4, Clock: clk, Size: byteLen})
	t.Cleanup(func() { _ = c.Close() })

	_ = c.Set("a", "abc")
	_ = c.SetWithTTL("b", "defgh", time.Second)
	if n, ok := c.SizeOf("a"); !ok || n != 3 {
		t.Fatalf("SizeOf(a) = %d, %v", n, ok)
	}
	if n, ok := c.SizeOf("b"); !ok || n != 5 {
		t.Fatalf("SizeOf(b) = %d, %v", n, ok)
	}
	if _, ok := c.SizeOf("missing"); ok {
		t.Fatal("missing key has no size")
	}
	clk.add(2 * time.Second)
	if _, ok := c.SizeOf("b"); ok {
		t.Fatal("expired entry has no size")
	}
	if st := c.Stats(); st.Hits != 0 || st.Misses != 0 {
		t.Fatalf("SizeOf must not count lookups: %+v", st)
	}
}
