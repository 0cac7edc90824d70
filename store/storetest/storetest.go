// Package storetest holds a conformance suite for store.Store implementations.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/lazycache/store"
)

// Options tweak the suite for backends with reduced capabilities.
type Options struct {
	// NoTTL skips assertions that need per-key expiry (e.g. BigCache).
	NoTTL bool
	// Expire moves the backend's clock forward past ttl.
	// Required unless NoTTL is set.
	Expire func(key string, ttl time.Duration)
}

// Run exercises the Store contract against fresh stores from newStore.
func Run(t *testing.T, newStore func(t *testing.T) store.Store, opts Options) {
	t.Run("ScalarMissThenHit", func(t *testing.T) {
		s := newStore(t)
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

		require.NoError(t, s.Set(ctx, "k", ""))
		v, ok, err = s.Get(ctx, "k")
		require.NoError(t, err)
		assert.True(t, ok, "an empty payload is still a hit")
		assert.Empty(t, v)
	})

	t.Run("HashFields", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, ok, err := s.HGet(ctx, "h", "a")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, s.HSet(ctx, "h", "a", "1"))
		require.NoError(t, s.HSet(ctx, "h", "b", "2"))
		require.NoError(t, s.HSet(ctx, "h", "a", "3"))

		v, ok, err := s.HGet(ctx, "h", "a")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "3", v)

		v, ok, err = s.HGet(ctx, "h", "b")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "2", v)

		_, ok, err = s.HGet(ctx, "h", "c")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("WrongType", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Set(ctx, "scalar", "v"))
		require.NoError(t, s.HSet(ctx, "hash", "f", "v"))

		_, _, err := s.HGet(ctx, "scalar", "f")
		assert.True(t, errors.Is(err, store.ErrWrongType), "HGet on scalar: %v", err)
		_, _, err = s.Get(ctx, "hash")
		assert.True(t, errors.Is(err, store.ErrWrongType), "Get on hash: %v", err)
	})

	t.Run("ExpireMissing", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		assert.ErrorIs(t, s.Expire(ctx, "missing", time.Minute), store.ErrNotFound)
		assert.NoError(t, s.Expire(ctx, "missing", 0))
	})

	if opts.NoTTL {
		return
	}

	t.Run("ExpireScalarAndHash", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Set(ctx, "k", "v"))
		require.NoError(t, s.HSet(ctx, "h", "f", "v"))
		require.NoError(t, s.Expire(ctx, "k", time.Second))
		require.NoError(t, s.Expire(ctx, "h", time.Second))
		require.NoError(t, s.HSet(ctx, "h", "g", "v")) // keeps TTL

		opts.Expire("k", time.Second)
		opts.Expire("h", time.Second)

		_, ok, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.False(t, ok)
		_, ok, err = s.HGet(ctx, "h", "g")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
