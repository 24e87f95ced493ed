package cache

import (
	"strings"
	"testing"
)

// Fuzz basic Set/Get/Delete semantics under arbitrary string inputs.
// Lengths are capped to keep memory bounded during fuzzing.
func FuzzCache_SetGetDelete(f *testing.F) {
	f.Add("", "")
	f.Add("a", "1")
	f.Add("αβγ", "δ")
	f.Add("emoji🙂", "🙂🙂")
	f.Add("long", strings.Repeat("x", 1024))

	f.Fuzz(func(t *testing.T, k, v string) {
		const limit = 1 << 12
		if len(k) > limit {
			k = k[:limit]
		}
		if len(v) > limit {
			v = v[:limit]
		}

		c := New[string, string](Options[string, string]{MaxSize: 16, MaxMemory: 2 * limit})
		t.Cleanup(func() { _ = c.Close() })

		if err := c.Set(k, v); err != nil {
			t.Fatalf("Set: %v", err)
		}
		got, ok := c.Get(k)
		if !ok || got != v {
			t.Fatalf("after Set/Get: want %q, got %q ok=%v", v, got, ok)
		}
		if st := c.Stats(); st.Bytes != int64(len(v)) {
			t.Fatalf("bytes: want %d, got %d", len(v), st.Bytes)
		}

		if !c.Delete(k) {
			t.Fatal("Delete must return true for existing key")
		}
		if _, ok := c.Get(k); ok {
			t.Fatal("Get after Delete must miss")
		}
	})
}
