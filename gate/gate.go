// Package gate is the process-local stampede gate used by lazycache's
// asynchronous loads.
//
// Every lock key maps to the earliest time it may be (re)loaded. TryAcquire
// admits a load when that time has passed and arms a short admission window;
// Rearm sets a cooldown sized by how long the load took, so a slow or failing
// source is left alone for a long while.
//
// Entries are never removed by TryAcquire or Rearm. Memory therefore grows with
// the number of distinct lock keys ever used; this is bounded by the distinct
// cache keys/fields the application touches. WithSweep enables an opt-in loop
// that drops entries whose window already elapsed (an elapsed entry behaves
// exactly like an absent one).
package gate

import (
	"sync"
	"time"
)

const (
	// DefaultAdmitWindow is armed by a successful TryAcquire.
	DefaultAdmitWindow = 5 * time.Second
	// DefaultFastCooldown follows a load that finished within the slow threshold.
	DefaultFastCooldown = time.Minute
	// DefaultSlowCooldown follows a load slower than the slow threshold:
	// the source is likely struggling.
	DefaultSlowCooldown = 30 * time.Minute
	// DefaultSlowThreshold separates fast loads from slow ones (strictly greater is slow).
	DefaultSlowThreshold = 2 * time.Second
)

// Registry maps lock keys to their reloadable-after time.
// All access goes through one mutex so check-then-set in TryAcquire is atomic.
type Registry struct {
	mu      sync.Mutex
	entries map[string]time.Time

	now           func() time.Time
	admitWindow   time.Duration
	fastCooldown  time.Duration
	slowCooldown  time.Duration
	slowThreshold time.Duration

	sweepEvery time.Duration
	ticker     *time.Ticker
	stopCh     chan struct{}
	wg         sync.WaitGroup
	closeOnce  sync.Once
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock replaces time.Now. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithCooldowns overrides the admission window and cooldowns.
// Non-positive values keep the defaults.
func WithCooldowns(admit, fast, slow, slowThreshold time.Duration) Option {
	return func(r *Registry) {
		if admit > 0 {
			r.admitWindow = admit
		}
		if fast > 0 {
			r.fastCooldown = fast
		}
		if slow > 0 {
			r.slowCooldown = slow
		}
		if slowThreshold > 0 {
			r.slowThreshold = slowThreshold
		}
	}
}

// WithSweep starts a background loop that removes elapsed entries every interval.
// Disabled by default. Call Close to stop it.
func WithSweep(interval time.Duration) Option {
	return func(r *Registry) {
		r.sweepEvery = interval
	}
}

// New returns an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		entries:       make(map[string]time.Time),
		now:           time.Now,
		admitWindow:   DefaultAdmitWindow,
		fastCooldown:  DefaultFastCooldown,
		slowCooldown:  DefaultSlowCooldown,
		slowThreshold: DefaultSlowThreshold,
	}
	for _, o := range opts {
		o(r)
	}
	if r.sweepEvery > 0 {
		r.ticker = time.NewTicker(r.sweepEvery)
		r.stopCh = make(chan struct{})
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			for {
				select {
				case <-r.ticker.C:
					r.Sweep()
				case <-r.stopCh:
					return
				}
			}
		}()
	}
	return r
}

// TryAcquire reports whether a load for lockKey may start now.
// On true the key is armed for the admission window, so concurrent callers
// are refused until the window elapses or Rearm sets a cooldown.
func (r *Registry) TryAcquire(lockKey string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if until, ok := r.entries[lockKey]; ok && until.After(now) {
		return false
	}
	r.entries[lockKey] = now.Add(r.admitWindow)
	return true
}

// Rearm sets the cooldown for lockKey from the observed load cost.
// It applies whether or not the caller held the gate.
func (r *Registry) Rearm(lockKey string, cost time.Duration) {
	cooldown := r.Cooldown(cost)
	r.mu.Lock()
	r.entries[lockKey] = r.now().Add(cooldown)
	r.mu.Unlock()
}

// Cooldown returns the cooldown Rearm would apply for cost.
func (r *Registry) Cooldown(cost time.Duration) time.Duration {
	if cost > r.slowThreshold {
		return r.slowCooldown
	}
	return r.fastCooldown
}

// ReloadableAfter returns the stored time for lockKey, if any.
func (r *Registry) ReloadableAfter(lockKey string) (time.Time, bool) {
	r.mu.Lock()
	t, ok := r.entries[lockKey]
	r.mu.Unlock()
	return t, ok
}

// Len returns the number of tracked lock keys.
func (r *Registry) Len() int {
	r.mu.Lock()
	n := len(r.entries)
	r.mu.Unlock()
	return n
}

// Sweep removes entries whose window has elapsed and returns how many were dropped.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for k, until := range r.entries {
		if !until.After(now) {
			delete(r.entries, k)
			removed++
		}
	}
	return removed
}

// Close stops the sweep loop if one was started. Safe to call multiple times.
func (r *Registry) Close() {
	r.closeOnce.Do(func() {
		if r.stopCh != nil {
			close(r.stopCh)
			r.ticker.Stop()
			r.wg.Wait()
		}
	})
}
