// Package ristretto is an in-process Store on top of dgraph-io/ristretto.
//
// Scalars and hashes share one keyspace, like Redis. Hash writes copy the
// field map, so a value returned by Get is never mutated afterwards.
// Useful for single-instance deployments and local development.
package ristretto

import (
	"context"
	"errors"
	"sync"
	"time"

	rc "github.com/dgraph-io/ristretto"

	"github.com/unkn0wn-root/lazycache/store"
)

type entry struct {
	scalar    string
	fields    map[string]string // non-nil for hashes
	expiresAt time.Time         // zero => no TTL
}

func (e *entry) isHash() bool { return e.fields != nil }

func (e *entry) cost(key string) int64 {
	n := len(key) + len(e.scalar)
	for f, v := range e.fields {
		n += len(f) + len(v)
	}
	return int64(n)
}

type Store struct {
	c   *rc.Cache
	now func() time.Time
	// serializes read-modify-write of hash entries and TTL updates
	mu sync.Mutex
}

var _ store.Store = (*Store)(nil)

type Config struct {
	NumCounters int64
	MaxCost     int64 // in bytes of key + payload
	BufferItems int64
	Metrics     bool
	// Clock overrides time.Now for expiry checks (tests).
	Clock func() time.Time
}

func New(cfg Config) (*Store, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Store{c: c, now: now}, nil
}

func (s *Store) load(key string) (*entry, bool) {
	v, ok := s.c.Get(key)
	if !ok {
		return nil, false
	}
	e, _ := v.(*entry)
	if e == nil {
		// self-heal: drop unexpected entry shape
		s.c.Del(key)
		return nil, false
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		return nil, false
	}
	return e, true
}

func (s *Store) store(key string, e *entry) error {
	var ttl time.Duration
	if !e.expiresAt.IsZero() {
		ttl = e.expiresAt.Sub(s.now())
		if ttl <= 0 {
			s.c.Del(key)
			return nil
		}
	}
	if !s.c.SetWithTTL(key, e, e.cost(key), ttl) {
		return store.ErrRejected
	}
	s.c.Wait()
	return nil
}

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	e, ok := s.load(key)
	if !ok {
		return "", false, nil
	}
	if e.isHash() {
		return "", false, store.ErrWrongType
	}
	return e.scalar, true, nil
}

func (s *Store) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store(key, &entry{scalar: value})
}

func (s *Store) HGet(_ context.Context, key, field string) (string, bool, error) {
	e, ok := s.load(key)
	if !ok {
		return "", false, nil
	}
	if !e.isHash() {
		return "", false, store.ErrWrongType
	}
	v, ok := e.fields[field]
	return v, ok, nil
}

func (s *Store) HSet(_ context.Context, key, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := &entry{fields: map[string]string{field: value}}
	if cur, ok := s.load(key); ok {
		if !cur.isHash() {
			return store.ErrWrongType
		}
		for f, v := range cur.fields {
			if f != field {
				next.fields[f] = v
			}
		}
		next.expiresAt = cur.expiresAt
	}
	return s.store(key, next)
}

func (s *Store) Expire(_ context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.load(key)
	if !ok {
		return store.ErrNotFound
	}
	next := *cur
	next.expiresAt = s.now().Add(ttl)
	return s.store(key, &next)
}

func (s *Store) Close(_ context.Context) error {
	s.c.Wait()
	s.c.Close()
	return nil
}

// Metrics exposes ristretto metrics if enabled (not part of store.Store).
func (s *Store) Metrics() *rc.Metrics { return s.c.Metrics }
