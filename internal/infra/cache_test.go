package infra

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type page struct {
	title string
	links []string
}

func newPageCache(t *testing.T, maxEntries int, opts ...CacheOption) *Cache[*page] {
	t.Helper()
	c := NewCache[*page](maxEntries, opts...)
	t.Cleanup(c.Close)
	return c
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewCache_MaxEntries(t *testing.T) {
	tests := []struct {
		in   int
		want int64
	}{
		{250, 250},
		{0, DefaultMaxCacheEntries},
		{-3, DefaultMaxCacheEntries},
	}
	for _, tt := range tests {
		c := newPageCache(t, tt.in)
		if c.maxEntries != tt.want {
			t.Errorf("NewCache(%d).maxEntries = %d, want %d", tt.in, c.maxEntries, tt.want)
		}
	}
}

func TestCache_RoundTrip(t *testing.T) {
	c := newPageCache(t, 10)
	python := &page{title: "Python (programming language)", links: []string{"Guido van Rossum"}}

	if _, ok := c.Get("wiki:article:python"); ok {
		t.Fatal("empty cache should miss")
	}

	c.Set("wiki:article:python", python, time.Hour)
	got, ok := c.Get("wiki:article:python")
	if !ok || got != python {
		t.Fatalf("Get = %v, %v; want the stored page", got, ok)
	}
	if c.Size() != 1 {
		t.Errorf("Size = %d, want 1", c.Size())
	}

	// Replacing a key keeps the count stable and returns the new value
	rust := &page{title: "Rust (programming language)"}
	c.Set("wiki:article:python", rust, time.Hour)
	if got, _ := c.Get("wiki:article:python"); got != rust {
		t.Errorf("Get after replace = %v", got)
	}
	if c.Size() != 1 {
		t.Errorf("Size after replace = %d, want 1", c.Size())
	}
}

func TestCache_ExpiredEntryIsDroppedOnRead(t *testing.T) {
	c := newPageCache(t, 10)
	c.Set("wiki:article:ephemera", &page{title: "Ephemera"}, 10*time.Millisecond)

	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get("wiki:article:ephemera"); ok {
		t.Error("expired entry should miss")
	}
	if c.Size() != 0 {
		t.Errorf("Size = %d, expired read should drop the entry", c.Size())
	}
}

func TestCache_ResetTTL(t *testing.T) {
	c := newPageCache(t, 10)
	c.Set("k", &page{title: "v1"}, 30*time.Millisecond)
	time.Sleep(15 * time.Millisecond)
	c.Set("k", &page{title: "v2"}, time.Hour)
	time.Sleep(25 * time.Millisecond)

	got, ok := c.Get("k")
	if !ok || got.title != "v2" {
		t.Errorf("rewritten entry should carry the new TTL, got %v %v", got, ok)
	}
}

func TestCache_CleanupSweepsExpired(t *testing.T) {
	var evicted atomic.Int64
	c := newPageCache(t, 10, WithEvictionHook(func(n int) { evicted.Add(int64(n)) }))

	c.Set("stale-1", &page{}, time.Millisecond)
	c.Set("stale-2", &page{}, time.Millisecond)
	c.Set("fresh", &page{}, time.Hour)
	time.Sleep(5 * time.Millisecond)

	c.cleanup()

	if c.Size() != 1 {
		t.Errorf("Size = %d, want 1", c.Size())
	}
	if evicted.Load() != 2 {
		t.Errorf("eviction hook saw %d, want 2", evicted.Load())
	}
	if _, ok := c.Get("fresh"); !ok {
		t.Error("unexpired entry should survive the sweep")
	}
}

func TestCache_BackgroundCleanup(t *testing.T) {
	c := newPageCache(t, 10, WithCleanupInterval(10*time.Millisecond))
	c.Set("stale", &page{}, time.Millisecond)

	waitFor(t, func() bool { return c.Size() == 0 })
}

func TestCache_LRUEviction(t *testing.T) {
	var evicted atomic.Int64
	c := newPageCache(t, 5, WithEvictionHook(func(n int) { evicted.Add(int64(n)) }))

	titles := []string{"Ada", "Basic", "C", "Dart", "Erlang"}
	for _, title := range titles {
		c.Set(title, &page{title: title}, time.Hour)
		time.Sleep(time.Millisecond)
	}

	// Reading Ada makes Basic the least recently used
	if _, ok := c.Get("Ada"); !ok {
		t.Fatal("Ada should be cached")
	}

	c.Set("Fortran", &page{title: "Fortran"}, time.Hour)

	waitFor(t, func() bool { return evicted.Load() > 0 })

	if _, ok := c.Get("Basic"); ok {
		t.Error("least recently used entry should be evicted")
	}
	if _, ok := c.Get("Ada"); !ok {
		t.Error("recently read entry should survive")
	}
	if c.Size() > 5 {
		t.Errorf("Size = %d, want at most 5", c.Size())
	}
}

func TestCache_CloseIsIdempotent(t *testing.T) {
	c := NewCache[*page](10)
	c.Close()
	c.Close()
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := newPageCache(t, 50)
	var wg sync.WaitGroup

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("wiki:article:%d", i%80)
				if i%3 == 0 {
					c.Set(key, &page{title: key}, time.Minute)
				} else if got, ok := c.Get(key); ok && got.title != key {
					t.Errorf("Get(%q) returned %q", key, got.title)
				}
			}
		}(w)
	}
	wg.Wait()
}
