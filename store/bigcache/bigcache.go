// Package bigcache is an in-process Store on top of allegro/bigcache.
//
// BigCache has no per-entry TTL: every entry lives for the configured
// LifeWindow, and Expire only checks that the key exists. Hash entries are
// stored as msgpack-encoded field maps.
package bigcache

import (
	"context"
	"errors"
	"sync"
	"time"

	bc "github.com/allegro/bigcache/v3"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/unkn0wn-root/lazycache/store"
)

const (
	tagScalar byte = 's'
	tagHash   byte = 'h'
)

type Store struct {
	c  *bc.BigCache
	mu sync.Mutex // serializes hash read-modify-write
}

var _ store.Store = (*Store)(nil)

type Config struct {
	LifeWindow         time.Duration
	CleanWindow        time.Duration
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited
}

func New(cfg Config) (*Store, error) {
	conf := bc.DefaultConfig(cfg.LifeWindow)
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.New(context.Background(), conf)
	if err != nil {
		return nil, err
	}
	return &Store{c: c}, nil
}

func (s *Store) raw(key string) ([]byte, bool, error) {
	b, err := s.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if len(b) == 0 {
		// self-heal: untagged entry
		_ = s.c.Delete(key)
		return nil, false, nil
	}
	return b, true, nil
}

func (s *Store) fields(key string) (map[string]string, bool, error) {
	b, ok, err := s.raw(key)
	if err != nil || !ok {
		return nil, false, err
	}
	if b[0] != tagHash {
		return nil, false, store.ErrWrongType
	}
	m := make(map[string]string)
	if err := msgpack.Unmarshal(b[1:], &m); err != nil {
		return nil, false, err
	}
	return m, true, nil
}

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	b, ok, err := s.raw(key)
	if err != nil || !ok {
		return "", false, err
	}
	if b[0] != tagScalar {
		return "", false, store.ErrWrongType
	}
	return string(b[1:]), true, nil
}

func (s *Store) Set(_ context.Context, key, value string) error {
	b := make([]byte, 0, len(value)+1)
	b = append(b, tagScalar)
	b = append(b, value...)
	return s.c.Set(key, b)
}

func (s *Store) HGet(_ context.Context, key, field string) (string, bool, error) {
	m, ok, err := s.fields(key)
	if err != nil || !ok {
		return "", false, err
	}
	v, ok := m[field]
	return v, ok, nil
}

func (s *Store) HSet(_ context.Context, key, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok, err := s.fields(key)
	if err != nil {
		return err
	}
	if !ok {
		m = make(map[string]string, 1)
	}
	m[field] = value

	enc, err := msgpack.Marshal(m)
	if err != nil {
		return err
	}
	return s.c.Set(key, append([]byte{tagHash}, enc...))
}

// Expire cannot shorten or extend a BigCache entry; it reports whether key exists.
func (s *Store) Expire(_ context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	_, ok, err := s.raw(key)
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) Close(_ context.Context) error {
	return s.c.Close()
}
