package lazycache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/unkn0wn-root/lazycache/gate"
)

func TestLazyOrTwiceRunsProducerOnce(t *testing.T) {
	env := newTestClient(t)
	ctx := context.Background()

	var (
		mu    sync.Mutex
		calls int
	)
	p := counting(&calls, &mu, []user{{1, "a"}})

	first := Open[user](env.c).Get(ctx, "k").LazyOr(ctx, p)
	if got := first.ToArray(); len(got) != 0 {
		t.Fatalf("the triggering request must see a miss, got %+v", got)
	}
	Open[user](env.c).Get(ctx, "k").LazyOr(ctx, p)
	env.drain(t)

	if calls != 1 {
		t.Fatalf("producer calls=%d want 1", calls)
	}
	if got := Open[user](env.c).Get(ctx, "k").ToArray(); len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("background load not stored: %+v", got)
	}
}

func TestNilBackgroundLoadReadsAsMiss(t *testing.T) {
	env := newTestClient(t)
	ctx := context.Background()

	if !env.c.Scheduler().ScheduleScalarLoad(ctx, "u", func(context.Context) (any, error) { return nil, nil }) {
		t.Fatal("load not queued")
	}
	env.drain(t)

	if v, _ := env.st.scalar("u"); v != "null" {
		t.Fatalf("stored %q", v)
	}
	if got := Open[user](env.c).Get(ctx, "u").ToClass(); got != nil {
		t.Fatalf("ToClass=%+v want nil", got)
	}
}

func TestLazyOrSkipsOnHit(t *testing.T) {
	env := newTestClient(t)
	ctx := context.Background()
	env.st.hashes["h"] = map[string]string{"f": `[{"id":1}]`}

	Open[user](env.c).HGet(ctx, "h", "f").LazyOr(ctx, func(context.Context) (any, error) {
		t.Error("producer must not run on a hit")
		return nil, nil
	})
	if env.hooks.count("admitted") != 0 {
		t.Fatal("hit must not consult the registry")
	}
}

func TestScheduleAdmissionWindow(t *testing.T) {
	env := newTestClient(t)
	ctx := context.Background()

	release := make(chan struct{})
	p := func(context.Context) (any, error) {
		<-release
		return "v", nil
	}

	if !env.c.Scheduler().ScheduleScalarLoad(ctx, "k", p) {
		t.Fatal("first load must be admitted")
	}
	env.clk.Advance(4 * time.Second)
	if env.c.Scheduler().ScheduleScalarLoad(ctx, "k", p) {
		t.Fatal("load inside the 5s window must be gated")
	}
	env.clk.Advance(time.Second)
	if !env.c.Scheduler().ScheduleScalarLoad(ctx, "k", p) {
		t.Fatal("load after the 5s window must be admitted")
	}

	close(release)
	env.waitLoad(t)
	env.waitLoad(t)
	if env.hooks.count("gated") != 1 || env.hooks.count("admitted") != 2 {
		t.Fatalf("admitted=%d gated=%d", env.hooks.count("admitted"), env.hooks.count("gated"))
	}
}

func TestFastLoadCoolsDownOneMinute(t *testing.T) {
	env := newTestClient(t)
	ctx := context.Background()
	sched := env.c.Scheduler()

	// exactly 2s counts as fast
	p := func(context.Context) (any, error) {
		env.clk.Advance(2 * time.Second)
		return user{ID: 1}, nil
	}
	if !sched.ScheduleHashLoad(ctx, "h", "f", p) {
		t.Fatal("first load must be admitted")
	}
	if k := env.waitLoad(t); k != gate.HashKey("h", "f") {
		t.Fatalf("lock key %q", k)
	}

	env.clk.Advance(59 * time.Second)
	if sched.ScheduleHashLoad(ctx, "h", "f", p) {
		t.Fatal("still cooling down after 59s")
	}
	env.clk.Advance(time.Second)
	if !sched.ScheduleHashLoad(ctx, "h", "f", p) {
		t.Fatal("cooldown of 60s should have elapsed")
	}
	env.waitLoad(t)
}

func TestSlowLoadCoolsDownThirtyMinutes(t *testing.T) {
	env := newTestClient(t)
	ctx := context.Background()
	sched := env.c.Scheduler()

	p := func(context.Context) (any, error) {
		env.clk.Advance(2*time.Second + time.Millisecond)
		return user{ID: 1}, nil
	}
	if !sched.ScheduleScalarLoad(ctx, "k", p) {
		t.Fatal("first load must be admitted")
	}
	env.waitLoad(t)

	env.clk.Advance(29 * time.Minute)
	if sched.ScheduleScalarLoad(ctx, "k", p) {
		t.Fatal("still cooling down after 29m")
	}
	env.clk.Advance(time.Minute)
	if !sched.ScheduleScalarLoad(ctx, "k", p) {
		t.Fatal("cooldown of 30m should have elapsed")
	}
	env.waitLoad(t)
}

func TestScalarAndHashLocksAreIndependent(t *testing.T) {
	env := newTestClient(t)
	ctx := context.Background()
	p := func(context.Context) (any, error) { return 1, nil }

	if !env.c.Scheduler().ScheduleScalarLoad(ctx, "k", p) {
		t.Fatal("scalar load must be admitted")
	}
	if !env.c.Scheduler().ScheduleHashLoad(ctx, "k", "f", p) {
		t.Fatal("hash load on the same key must be admitted")
	}
	env.drain(t)
}

func TestProducerErrorWritesEmptyAndRearms(t *testing.T) {
	env := newTestClient(t)
	ctx := context.Background()

	env.c.Scheduler().ScheduleHashLoad(ctx, "h", "f", func(context.Context) (any, error) {
		return nil, errBoom
	})
	env.waitLoad(t)

	if v, ok := env.st.field("h", "f"); !ok || v != "" {
		t.Fatalf("want empty payload stored, got %q ok=%v", v, ok)
	}
	if env.hooks.count("load_failed") != 1 || env.hooks.count("producer_error") != 1 {
		t.Fatalf("events=%v", env.hooks.events)
	}
	at, ok := env.c.Gate().ReloadableAfter(gate.HashKey("h", "f"))
	if !ok || !at.Equal(env.clk.Now().Add(gate.DefaultFastCooldown)) {
		t.Fatalf("registry not re-armed: %v %v", at, ok)
	}
}

func TestProducerPanicIsRecovered(t *testing.T) {
	env := newTestClient(t)
	ctx := context.Background()

	env.c.Scheduler().ScheduleScalarLoad(ctx, "k", func(context.Context) (any, error) {
		panic("db driver bug")
	})
	env.waitLoad(t)

	if v, ok := env.st.scalar("k"); !ok || v != "" {
		t.Fatalf("stored %q ok=%v", v, ok)
	}
	if ErrorKind(env.hooks.errs[0]) != "producer" {
		t.Fatalf("err=%v", env.hooks.errs[0])
	}
}

func TestBackgroundLoadEncodesEveryValue(t *testing.T) {
	env := newTestClient(t)
	ctx := context.Background()

	env.c.Scheduler().ScheduleScalarLoad(ctx, "s", func(context.Context) (any, error) { return "abc", nil })
	env.waitLoad(t)
	if v, _ := env.st.scalar("s"); v != `"abc"` {
		t.Fatalf("stored %q", v)
	}
}

func TestStoreWriteFailureStillRearms(t *testing.T) {
	env := newTestClient(t)
	ctx := context.Background()
	env.st.setFail(false, true)

	env.c.Scheduler().ScheduleScalarLoad(ctx, "k", func(context.Context) (any, error) {
		env.clk.Advance(3 * time.Second)
		return 1, nil
	})
	env.waitLoad(t)

	at, ok := env.c.Gate().ReloadableAfter(gate.Key("k"))
	if !ok || !at.Equal(env.clk.Now().Add(gate.DefaultSlowCooldown)) {
		t.Fatalf("registry not re-armed with the slow cooldown: %v", at)
	}
	if env.hooks.count("store_error") != 1 || env.hooks.count("load_failed") != 1 {
		t.Fatalf("events=%v", env.hooks.events)
	}
}

func TestLoadContextIsDetached(t *testing.T) {
	env := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	errc := make(chan error, 1)
	env.c.Scheduler().ScheduleScalarLoad(ctx, "k", func(ctx context.Context) (any, error) {
		errc <- ctx.Err()
		return 1, nil
	})
	env.waitLoad(t)
	if err := <-errc; err != nil {
		t.Fatalf("producer saw %v", err)
	}
}

func TestQueueFullDropsAndKeepsWindow(t *testing.T) {
	env := newTestClient(t, func(o *Options) {
		o.Workers = 1
		o.QueueSize = 1
	})
	ctx := context.Background()
	sched := env.c.Scheduler()

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	block := func(context.Context) (any, error) {
		started <- struct{}{}
		<-release
		return 1, nil
	}
	noop := func(context.Context) (any, error) { return 1, nil }

	if !sched.ScheduleScalarLoad(ctx, "a", block) {
		t.Fatal("a must be queued")
	}
	<-started
	if !sched.ScheduleScalarLoad(ctx, "b", noop) {
		t.Fatal("b must be queued")
	}
	if sched.ScheduleScalarLoad(ctx, "c", noop) {
		t.Fatal("c must be dropped on a full queue")
	}
	if env.hooks.count("dropped_"+DropQueueFull) != 1 {
		t.Fatalf("events=%v", env.hooks.events)
	}

	// the admission window stays armed for the dropped key
	if sched.ScheduleScalarLoad(ctx, "c", noop) {
		t.Fatal("c must stay gated for the admission window")
	}
	at, ok := env.c.Gate().ReloadableAfter(gate.Key("c"))
	if !ok || !at.Equal(env.clk.Now().Add(gate.DefaultAdmitWindow)) {
		t.Fatalf("window=%v ok=%v", at, ok)
	}

	close(release)
	env.drain(t)
	if _, ok := env.st.scalar("c"); ok {
		t.Fatal("dropped load must not write")
	}
}

func TestScheduleAfterCloseIsDropped(t *testing.T) {
	env := newTestClient(t)
	ctx := context.Background()
	env.drain(t)

	if env.c.Scheduler().ScheduleScalarLoad(ctx, "k", func(context.Context) (any, error) { return 1, nil }) {
		t.Fatal("closed scheduler must not queue loads")
	}
	if env.hooks.count("dropped_"+DropClosed) != 1 {
		t.Fatalf("events=%v", env.hooks.events)
	}
	if env.c.Scheduler().Pending() != 0 {
		t.Fatal("nothing should be pending")
	}
}

func TestSchedulerCloseHonorsContext(t *testing.T) {
	env := newTestClient(t, func(o *Options) { o.Workers = 1 })
	release := make(chan struct{})
	started := make(chan struct{})
	env.c.Scheduler().ScheduleScalarLoad(context.Background(), "k", func(context.Context) (any, error) {
		close(started)
		<-release
		return 1, nil
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := env.c.Scheduler().Close(ctx); err == nil {
		t.Fatal("Close must give up when ctx expires")
	}
	close(release)
	env.drain(t)
}
