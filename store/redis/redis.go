// Package redis is the go-redis backed Store.
package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/lazycache/store"
)

var ErrNilClient = errors.New("redis store: nil client")

type Redis struct {
	rdb         goredis.UniversalClient
	prefix      string
	opTimeout   time.Duration
	closeClient bool
}

var _ store.Store = (*Redis)(nil)

type Config struct {
	Client goredis.UniversalClient
	// KeyPrefix is prepended as "<prefix>:<key>" when non-empty.
	KeyPrefix string
	// OpTimeout bounds each command; 0 means the caller's ctx alone applies.
	OpTimeout time.Duration
	// CloseClient set true only if this store exclusively owns the client.
	CloseClient bool
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Redis{
		rdb:         cfg.Client,
		prefix:      cfg.KeyPrefix,
		opTimeout:   cfg.OpTimeout,
		closeClient: cfg.CloseClient,
	}, nil
}

// Client exposes the underlying client for operations the Store does not cover.
func (s *Redis) Client() goredis.UniversalClient { return s.rdb }

func (s *Redis) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}

func (s *Redis) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

func (s *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	v, err := s.rdb.Get(ctx, s.key(key)).Result()
	return result(v, err)
}

func (s *Redis) Set(ctx context.Context, key, value string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	return mapErr(s.rdb.Set(ctx, s.key(key), value, 0).Err())
}

func (s *Redis) HGet(ctx context.Context, key, field string) (string, bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	v, err := s.rdb.HGet(ctx, s.key(key), field).Result()
	return result(v, err)
}

func (s *Redis) HSet(ctx context.Context, key, field, value string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	return mapErr(s.rdb.HSet(ctx, s.key(key), field, value).Err())
}

func (s *Redis) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	ok, err := s.rdb.Expire(ctx, s.key(key), ttl).Result()
	if err != nil {
		return mapErr(err)
	}
	if !ok {
		return store.ErrNotFound
	}
	return nil
}

// Close releases the underlying redis client only when this store owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (s *Redis) Close(context.Context) error {
	if s.closeClient {
		if err := s.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}

func result(v string, err error) (string, bool, error) {
	if errors.Is(err, goredis.Nil) {
		return "", false, nil // miss
	}
	if err != nil {
		return "", false, mapErr(err) // transport/server error
	}
	return v, true, nil
}

func mapErr(err error) error {
	if err != nil && isWrongType(err) {
		return errors.Join(store.ErrWrongType, err)
	}
	return err
}

func isWrongType(err error) bool {
	var rerr goredis.Error
	if errors.As(err, &rerr) {
		return strings.HasPrefix(rerr.Error(), "WRONGTYPE")
	}
	return false
}
