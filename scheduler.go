package lazycache

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/unkn0wn-root/lazycache/gate"
)

type loadTask struct {
	ctx      context.Context
	lockKey  string
	key      string
	field    string
	hash     bool
	producer Producer
}

// Scheduler runs fallback loads on a bounded worker pool. Each load is
// admitted by the client's gate.Registry on the caller's goroutine, so at most
// one load per lock key is in flight per cooldown window.
type Scheduler struct {
	c *Client
	q chan loadTask

	mu     sync.RWMutex // guards closed against sends on a closed queue
	closed bool
	wg     sync.WaitGroup
}

func newScheduler(c *Client, workers, queue int) *Scheduler {
	s := &Scheduler{c: c, q: make(chan loadTask, queue)}
	s.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go s.worker()
	}
	return s
}

// ScheduleScalarLoad queues a load of key unless one ran recently.
// It reports whether a load was queued.
func (s *Scheduler) ScheduleScalarLoad(ctx context.Context, key string, p Producer) bool {
	return s.schedule(ctx, loadTask{lockKey: gate.Key(key), key: key, producer: p})
}

// ScheduleHashLoad queues a load of field in hash key unless one ran recently.
// It reports whether a load was queued.
func (s *Scheduler) ScheduleHashLoad(ctx context.Context, key, field string, p Producer) bool {
	return s.schedule(ctx, loadTask{lockKey: gate.HashKey(key, field), key: key, field: field, hash: true, producer: p})
}

func (s *Scheduler) schedule(ctx context.Context, t loadTask) bool {
	if !s.c.gate.TryAcquire(t.lockKey) {
		s.c.log.Debug("lazycache: load gated", Fields{"lock": t.lockKey})
		s.c.hooks.LoadGated(t.lockKey)
		return false
	}
	s.c.hooks.LoadAdmitted(t.lockKey)
	t.ctx = context.WithoutCancel(ctx)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.drop(t, DropClosed)
		return false
	}
	select {
	case s.q <- t:
		return true
	default:
		s.drop(t, DropQueueFull)
		return false
	}
}

// drop leaves the admission window armed; the key becomes loadable again once it lapses.
func (s *Scheduler) drop(t loadTask, reason string) {
	s.c.log.Warn("lazycache: load dropped", Fields{"lock": t.lockKey, "key": t.key, "field": t.field, "reason": reason})
	s.c.hooks.LoadDropped(t.lockKey, reason)
}

func (s *Scheduler) worker() {
	defer s.wg.Done()
	for t := range s.q {
		s.run(t)
	}
}

func (s *Scheduler) run(t loadTask) {
	start := s.c.now()
	failed := false

	// A failed producer still fills the entry with an empty payload so the
	// miss is served from cache until the next reload.
	var payload string
	v, err := callProducer(t.ctx, t.producer)
	if err != nil {
		failed = true
		s.c.producerError(t.key, t.field, err)
	} else if payload, err = s.c.encode(t.key, t.field, v); err != nil {
		failed = true
	}

	if s.c.write(t.ctx, t.hash, t.key, t.field, payload) != nil {
		failed = true
	}

	cost := s.c.now().Sub(start)
	s.c.gate.Rearm(t.lockKey, cost)
	s.c.log.Debug("lazycache: load completed", Fields{"lock": t.lockKey, "cost": cost, "failed": failed})
	s.c.hooks.LoadCompleted(t.lockKey, cost, failed)
}

func callProducer(ctx context.Context, p Producer) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("producer panic: %v", r)
		}
	}()
	return p(ctx)
}

// Close stops accepting loads, finishes queued ones and waits for the workers
// or ctx, whichever comes first.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.q)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "lazycache: scheduler close")
	}
}

// Pending reports queued loads not yet picked up by a worker.
func (s *Scheduler) Pending() int { return len(s.q) }
