package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/lazycache/store"
	"github.com/unkn0wn-root/lazycache/store/storetest"
)

func newTestStore(t *testing.T, prefix string) (*Redis, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := goredis.NewClient(&goredis.Options{
		Addr:         mr.Addr(),
		DialTimeout:  100 * time.Millisecond,
		ReadTimeout:  100 * time.Millisecond,
		WriteTimeout: 100 * time.Millisecond,
		PoolSize:     2,
		MaxRetries:   -1,
	})

	s, err := New(Config{Client: client, KeyPrefix: prefix, OpTimeout: time.Second, CloseClient: true})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = s.Close(context.Background())
		mr.Close()
	})
	return s, mr
}

func TestConformance(t *testing.T) {
	var mr *miniredis.Miniredis
	storetest.Run(t, func(t *testing.T) store.Store {
		var s *Redis
		s, mr = newTestStore(t, "")
		return s
	}, storetest.Options{
		Expire: func(_ string, ttl time.Duration) { mr.FastForward(ttl) },
	})
}

func TestNewRequiresClient(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNilClient)
}

func TestGetSetMissAndHit(t *testing.T) {
	s, mr := newTestStore(t, "")
	ctx := context.Background()

	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, v)

	require.NoError(t, s.Set(ctx, "k", `{"id":1}`))
	v, ok, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"id":1}`, v)

	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, `{"id":1}`, got)
}

func TestHashFields(t *testing.T) {
	s, mr := newTestStore(t, "")
	ctx := context.Background()

	_, ok, err := s.HGet(ctx, "h", "f")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.HSet(ctx, "h", "f", "[1,2]"))
	require.NoError(t, s.HSet(ctx, "h", "g", "[]"))

	v, ok, err := s.HGet(ctx, "h", "f")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "[1,2]", v)
	assert.Equal(t, "[]", mr.HGet("h", "g"))
}

func TestKeyPrefixIsApplied(t *testing.T) {
	s, mr := newTestStore(t, "app")
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", "v"))
	require.NoError(t, s.HSet(ctx, "h", "f", "v"))

	assert.True(t, mr.Exists("app:k"))
	assert.True(t, mr.Exists("app:h"))
	assert.False(t, mr.Exists("k"))
}

func TestExpire(t *testing.T) {
	s, mr := newTestStore(t, "")
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", "v"))
	require.NoError(t, s.Expire(ctx, "k", time.Hour))
	assert.Equal(t, time.Hour, mr.TTL("k"))

	require.NoError(t, s.HSet(ctx, "h", "f", "v"))
	require.NoError(t, s.Expire(ctx, "h", time.Minute))
	require.NoError(t, s.HSet(ctx, "h", "g", "v"))
	assert.Equal(t, time.Minute, mr.TTL("h"), "HSET keeps the hash TTL")

	mr.FastForward(2 * time.Minute)
	_, ok, err := s.HGet(ctx, "h", "f")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, s.Expire(ctx, "missing", time.Minute), store.ErrNotFound)
	assert.NoError(t, s.Expire(ctx, "missing", 0), "non-positive ttl is ignored")
}

func TestSetClearsTTL(t *testing.T) {
	s, mr := newTestStore(t, "")
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", "v1"))
	require.NoError(t, s.Expire(ctx, "k", time.Hour))
	require.NoError(t, s.Set(ctx, "k", "v2"))
	assert.Equal(t, time.Duration(0), mr.TTL("k"))
}

func TestWrongTypeIsMapped(t *testing.T) {
	s, _ := newTestStore(t, "")
	ctx := context.Background()

	require.NoError(t, s.HSet(ctx, "h", "f", "v"))
	_, _, err := s.Get(ctx, "h")
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrWrongType), "err=%v", err)
}

func TestServerErrorsPropagate(t *testing.T) {
	s, mr := newTestStore(t, "")
	ctx := context.Background()

	mr.SetError("ERR boom")
	_, ok, err := s.Get(ctx, "k")
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Error(t, s.HSet(ctx, "h", "f", "v"))
	mr.SetError("")
}

func TestCloseIsIdempotent(t *testing.T) {
	s, _ := newTestStore(t, "")
	assert.NoError(t, s.Close(context.Background()))
	assert.NoError(t, s.Close(context.Background()))
}
