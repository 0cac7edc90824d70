package gate

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestTryAcquireAdmitsOncePerWindow(t *testing.T) {
	clk := newFakeClock()
	r := New(WithClock(clk.Now))
	t.Cleanup(r.Close)

	if !r.TryAcquire("k") {
		t.Fatal("first TryAcquire should admit")
	}
	clk.Advance(4 * time.Second)
	if r.TryAcquire("k") {
		t.Fatal("second TryAcquire within 5s should be refused")
	}
	clk.Advance(time.Second) // exactly 5s after admission
	if !r.TryAcquire("k") {
		t.Fatal("TryAcquire after the admission window should admit")
	}
}

func TestTryAcquireKeysAreIndependent(t *testing.T) {
	r := New()
	t.Cleanup(r.Close)

	if !r.TryAcquire("a") || !r.TryAcquire("b") {
		t.Fatal("distinct keys must not share a window")
	}
	if r.Len() != 2 {
		t.Fatalf("Len=%d want 2", r.Len())
	}
}

func TestRearmSlowLoadHoldsThirtyMinutes(t *testing.T) {
	clk := newFakeClock()
	r := New(WithClock(clk.Now))
	t.Cleanup(r.Close)

	r.Rearm("k", 2001*time.Millisecond)

	clk.Advance(30*time.Minute - time.Millisecond)
	if r.TryAcquire("k") {
		t.Fatal("slow load cooldown should still hold just before 30m")
	}
	clk.Advance(time.Millisecond)
	if !r.TryAcquire("k") {
		t.Fatal("TryAcquire should admit once 30m have passed")
	}
}

func TestRearmFastLoadHoldsSixtySeconds(t *testing.T) {
	clk := newFakeClock()
	r := New(WithClock(clk.Now))
	t.Cleanup(r.Close)

	start := clk.Now()
	r.Rearm("k", 2*time.Second) // boundary counts as fast

	until, ok := r.ReloadableAfter("k")
	if !ok {
		t.Fatal("Rearm should create an entry")
	}
	if got := until.Sub(start); got != time.Minute {
		t.Fatalf("fast cooldown=%v want 60s", got)
	}

	clk.Advance(59 * time.Second)
	if r.TryAcquire("k") {
		t.Fatal("fast cooldown should hold before 60s")
	}
	clk.Advance(time.Second)
	if !r.TryAcquire("k") {
		t.Fatal("TryAcquire should admit after 60s")
	}
}

func TestRearmWithoutPriorAcquire(t *testing.T) {
	r := New()
	t.Cleanup(r.Close)

	r.Rearm("never-acquired", 0)
	if r.TryAcquire("never-acquired") {
		t.Fatal("Rearm must arm the key even if it was never acquired")
	}
}

func TestWithCooldownsOverridesDefaults(t *testing.T) {
	r := New(WithCooldowns(time.Second, 2*time.Second, 3*time.Second, 100*time.Millisecond))
	t.Cleanup(r.Close)

	if got := r.Cooldown(100 * time.Millisecond); got != 2*time.Second {
		t.Fatalf("fast=%v want 2s", got)
	}
	if got := r.Cooldown(101 * time.Millisecond); got != 3*time.Second {
		t.Fatalf("slow=%v want 3s", got)
	}

	keep := New(WithCooldowns(0, -1, 0, 0))
	t.Cleanup(keep.Close)
	if keep.Cooldown(0) != DefaultFastCooldown || keep.Cooldown(time.Hour) != DefaultSlowCooldown {
		t.Fatal("non-positive overrides should keep defaults")
	}
}

func TestConcurrentTryAcquireAdmitsExactlyOne(t *testing.T) {
	r := New()
	t.Cleanup(r.Close)

	var admitted atomic.Int64
	var g errgroup.Group
	for i := 0; i < 64; i++ {
		g.Go(func() error {
			if r.TryAcquire("hot") {
				admitted.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	if n := admitted.Load(); n != 1 {
		t.Fatalf("admitted=%d want 1", n)
	}
}

func TestSweepDropsElapsedOnly(t *testing.T) {
	clk := newFakeClock()
	r := New(WithClock(clk.Now))
	t.Cleanup(r.Close)

	r.TryAcquire("short")          // 5s
	r.Rearm("long", 3*time.Second) // 30m
	clk.Advance(10 * time.Second)

	if removed := r.Sweep(); removed != 1 {
		t.Fatalf("removed=%d want 1", removed)
	}
	if _, ok := r.ReloadableAfter("short"); ok {
		t.Fatal("elapsed entry should be swept")
	}
	if _, ok := r.ReloadableAfter("long"); !ok {
		t.Fatal("active entry must survive a sweep")
	}
}

func TestSweepLoopStopsOnClose(t *testing.T) {
	r := New(WithSweep(10 * time.Millisecond))
	r.TryAcquire("k")
	r.Close()
	r.Close() // idempotent
}

func TestHashKeyNeverCollides(t *testing.T) {
	cases := [][2]string{
		{"a_b", "c"},
		{"a", "b_c"},
		{"a", "b"},
		{"ab", ""},
		{"", "ab"},
		{"3:abc", "x"},
	}
	seen := make(map[string][2]string)
	for _, c := range cases {
		k := HashKey(c[0], c[1])
		if prev, dup := seen[k]; dup {
			t.Fatalf("collision: %v and %v -> %q", prev, c, k)
		}
		seen[k] = c
		if Key(c[0]+"_"+c[1]) == k {
			t.Fatalf("hash key %q collides with scalar key", k)
		}
	}
}
