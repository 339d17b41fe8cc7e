package cache

import (
	"context"
	"testing"
	"time"

	"fluxo/internal/log"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

func newTestCache(size int, ttl time.Duration) (*LRUCache[int], *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[int](size, ttl)
	c.now = clock.now
	return c, clock
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestCache(2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a")
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("a=%v ok=%v", v, ok)
	}
	if c.Size() != 2 {
		t.Errorf("Size()=%d", c.Size())
	}
}

func TestLRUExpiry(t *testing.T) {
	c, clock := newTestCache(10, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	clock.t = clock.t.Add(30 * time.Second)
	c.Set("b", 3)

	clock.t = clock.t.Add(45 * time.Second)
	if _, ok := c.Get("a"); ok {
		t.Error("a should have expired")
	}
	if v, ok := c.Get("b"); !ok || v != 3 {
		t.Errorf("b=%v ok=%v", v, ok)
	}

	clock.t = clock.t.Add(time.Hour)
	if n := c.CleanExpired(); n != 1 {
		t.Errorf("CleanExpired()=%d want 1", n)
	}
	if c.Size() != 0 {
		t.Errorf("Size()=%d", c.Size())
	}
}

func TestLRUZeroTTLNeverExpires(t *testing.T) {
	c, clock := newTestCache(10, 0)
	c.Set("a", 1)
	clock.t = clock.t.Add(24 * 365 * time.Hour)
	if _, ok := c.Get("a"); !ok {
		t.Error("entry should not expire with zero ttl")
	}
}

func TestSetIfAbsent(t *testing.T) {
	c, clock := newTestCache(10, time.Minute)
	if !c.SetIfAbsent("a", 1) {
		t.Fatal("first SetIfAbsent should store")
	}
	if c.SetIfAbsent("a", 2) {
		t.Fatal("second SetIfAbsent should not store")
	}
	clock.t = clock.t.Add(2 * time.Minute)
	if !c.SetIfAbsent("a", 3) {
		t.Fatal("expired key should be replaced")
	}
}

func TestDeduper(t *testing.T) {
	d := NewDeduper(100, time.Minute)
	if !d.FirstSeen("m1") {
		t.Fatal("m1 should be new")
	}
	if d.FirstSeen("m1") {
		t.Fatal("m1 should be a duplicate")
	}
	if !d.FirstSeen("") || !d.FirstSeen("") {
		t.Fatal("empty ids are never duplicates")
	}
	d.Forget("m1")
	if !d.FirstSeen("m1") {
		t.Fatal("forgotten id should be new again")
	}
}

func TestManagerCleansRegisteredCaches(t *testing.T) {
	c, clock := newTestCache(10, time.Minute)
	c.Set("a", 1)
	clock.t = clock.t.Add(time.Hour)

	m := NewManager(log.Discard())
	m.Register(c)
	if n := m.CleanAll(); n != 1 {
		t.Errorf("CleanAll()=%d want 1", n)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx, time.Millisecond)
	cancel()
	m.Wait()
}
