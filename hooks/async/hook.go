// usage:
//
// import (
//
//	"log/slog"
//
//	"github.com/unkn0wn-root/lazycache"
//	"github.com/unkn0wn-root/lazycache/hooks/async"
//	"github.com/unkn0wn-root/lazycache/sloghooks"
//
// )
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    GatedEvery: 100, // sample logs: ~every 100th gated load
//	})
//
// hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
// defer hooks.Close()
//
//	c, _ := lazycache.New(lazycache.Options{
//	    Store: st,
//	    Hooks: hooks, // or `raw` if you don’t want async
//	})
package asynchook

import (
	"sync"
	"time"

	"github.com/unkn0wn-root/lazycache"
)

type Hooks struct {
	inner lazycache.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ lazycache.Hooks = (*Hooks)(nil)

func New(inner lazycache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) LoadAdmitted(k string)     { h.try(func() { h.inner.LoadAdmitted(k) }) }
func (h *Hooks) LoadGated(k string)        { h.try(func() { h.inner.LoadGated(k) }) }
func (h *Hooks) LoadDropped(k, r string)   { h.try(func() { h.inner.LoadDropped(k, r) }) }
func (h *Hooks) FallbackFired(k, f string) { h.try(func() { h.inner.FallbackFired(k, f) }) }
func (h *Hooks) LoadCompleted(k string, cost time.Duration, failed bool) {
	h.try(func() { h.inner.LoadCompleted(k, cost, failed) })
}
func (h *Hooks) StoreError(op, k string, err error) {
	h.try(func() { h.inner.StoreError(op, k, err) })
}
func (h *Hooks) CodecError(op, k string, err error) {
	h.try(func() { h.inner.CodecError(op, k, err) })
}
func (h *Hooks) ProducerError(k, f string, err error) {
	h.try(func() { h.inner.ProducerError(k, f, err) })
}
func (h *Hooks) ModeConflict(k, bound, attempted string) {
	h.try(func() { h.inner.ModeConflict(k, bound, attempted) })
}
