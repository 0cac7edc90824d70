// Package store defines the key-value backend lazycache reads and writes.
//
// A Store holds string payloads under scalar keys and under fields of hash
// keys, and can put a TTL on a key. It is treated as unreliable: any call may
// fail, and callers downgrade failures to misses.
//
// Implementations must be byte-for-byte transparent: Get/HGet return exactly
// the string previously written with Set/HSet.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrWrongType is returned when a scalar operation hits a hash key or vice versa.
	ErrWrongType = errors.New("store: operation against a key holding the wrong kind of value")
	// ErrRejected is returned when an in-process store refuses a write under pressure.
	ErrRejected = errors.New("store: write rejected")
	// ErrNotFound is returned by Expire for a missing key on stores that can tell.
	ErrNotFound = errors.New("store: key not found")
)

// Store must be safe for concurrent use.
type Store interface {
	// Get returns (value, true, nil) on hit and ("", false, nil) on miss.
	// Transport/server failures return ("", false, err).
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key. Like Redis SET it clears any TTL on key.
	Set(ctx context.Context, key, value string) error

	// HGet returns a field of the hash at key with the same contract as Get.
	HGet(ctx context.Context, key, field string) (string, bool, error)

	// HSet stores value in a field of the hash at key. Existing TTL is kept.
	HSet(ctx context.Context, key, field, value string) error

	// Expire sets a TTL on key (the whole hash for hash keys).
	// Non-positive ttl is ignored.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Close releases resources.
	Close(ctx context.Context) error
}
