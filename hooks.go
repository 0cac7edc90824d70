package lazycache

import "time"

// Drop reasons passed to Hooks.LoadDropped.
const (
	DropQueueFull = "queue_full"
	DropClosed    = "closed"
)

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The client calls them on hot paths.
type Hooks interface {
	// The registry admitted a background load for lockKey.
	LoadAdmitted(lockKey string)
	// A background load was refused because lockKey is cooling down.
	LoadGated(lockKey string)
	// An admitted load never ran. reason ∈ {"queue_full", "closed"}
	LoadDropped(lockKey, reason string)
	// A background load finished and the registry was re-armed.
	// failed is true if the producer, codec or store write failed.
	LoadCompleted(lockKey string, cost time.Duration, failed bool)

	// Or computed a value and wrote it to the store. field is "" for scalars.
	FallbackFired(key, field string)

	// op ∈ {"get", "hget", "set", "hset", "expire"}
	StoreError(op, key string, err error)
	// op ∈ {"encode", "decode"}
	CodecError(op, key string, err error)
	ProducerError(key, field string, err error)

	// A session bound in one mode was asked to read in the other.
	ModeConflict(key string, bound, attempted string)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) LoadAdmitted(string)                       {}
func (NopHooks) LoadGated(string)                          {}
func (NopHooks) LoadDropped(string, string)                {}
func (NopHooks) LoadCompleted(string, time.Duration, bool) {}
func (NopHooks) FallbackFired(string, string)              {}
func (NopHooks) StoreError(string, string, error)          {}
func (NopHooks) CodecError(string, string, error)          {}
func (NopHooks) ProducerError(string, string, error)       {}
func (NopHooks) ModeConflict(string, string, string)       {}
