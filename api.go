package lazycache

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/unkn0wn-root/lazycache/codec"
	"github.com/unkn0wn-root/lazycache/gate"
	"github.com/unkn0wn-root/lazycache/store"
)

// Producer computes a value from the authoritative source on a cache miss.
// A string result is stored verbatim; anything else goes through the Codec.
type Producer func(ctx context.Context) (any, error)

// Options wire a Client. Only Store is required; others have sensible defaults.
type Options struct {
	// Required
	Store store.Store

	Codec     codec.Codec      // nil => codec.JSON
	Logger    Logger           // nil => NopLogger
	Hooks     Hooks            // nil => NopHooks
	Workers   int              // background loaders; 0 => 4
	QueueSize int              // pending background loads; 0 => 1024
	Gate      *gate.Registry   // nil => private registry with default cooldowns
	Clock     func() time.Time // measures load cost; nil => time.Now
}

// Client owns the store, codec, load registry and scheduler shared by all
// sessions. It is safe for concurrent use.
type Client struct {
	store    store.Store
	codec    codec.Codec
	log      Logger
	hooks    Hooks
	gate     *gate.Registry
	ownsGate bool
	now      func() time.Time
	sched    *Scheduler
}

func New(opts Options) (*Client, error) {
	if opts.Store == nil {
		return nil, ErrNilStore
	}
	if opts.Workers < 0 || opts.QueueSize < 0 {
		return nil, errors.Newf("lazycache: invalid scheduler size workers=%d queue=%d", opts.Workers, opts.QueueSize)
	}

	c := &Client{
		store: opts.Store,
		codec: opts.Codec,
		log:   opts.Logger,
		hooks: opts.Hooks,
		gate:  opts.Gate,
		now:   opts.Clock,
	}
	if c.codec == nil {
		c.codec = codec.JSON{}
	}
	if c.log == nil {
		c.log = NopLogger{}
	}
	if c.hooks == nil {
		c.hooks = NopHooks{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.gate == nil {
		c.gate = gate.New(gate.WithClock(c.now))
		c.ownsGate = true
	}

	c.sched = newScheduler(c, coalesce(opts.Workers, 4), coalesce(opts.QueueSize, 1024))
	return c, nil
}

// Close drains the scheduler, stops a privately owned registry and closes the store.
func (c *Client) Close(ctx context.Context) error {
	err := c.sched.Close(ctx)
	if c.ownsGate {
		c.gate.Close()
	}
	if serr := c.store.Close(ctx); serr != nil {
		err = errors.CombineErrors(err, errors.Wrap(serr, "lazycache: close store"))
	}
	return err
}

func (c *Client) Scheduler() *Scheduler { return c.sched }
func (c *Client) Gate() *gate.Registry  { return c.gate }
func (c *Client) Store() store.Store    { return c.store }
func (c *Client) Codec() codec.Codec    { return c.codec }

// read fetches the raw payload for key (field == "" and hash == false) or key/field.
// Store failures are reported and treated as a miss.
func (c *Client) read(ctx context.Context, hash bool, key, field string) (string, bool) {
	var (
		v   string
		ok  bool
		err error
		op  = "get"
	)
	if hash {
		op = "hget"
		v, ok, err = c.store.HGet(ctx, key, field)
	} else {
		v, ok, err = c.store.Get(ctx, key)
	}
	if err != nil {
		c.storeError(op, key, field, err)
		return "", false
	}
	return v, ok
}

func (c *Client) write(ctx context.Context, hash bool, key, field, payload string) error {
	var (
		err error
		op  = "set"
	)
	if hash {
		op = "hset"
		err = c.store.HSet(ctx, key, field, payload)
	} else {
		err = c.store.Set(ctx, key, payload)
	}
	if err != nil {
		return c.storeError(op, key, field, err)
	}
	return nil
}

func (c *Client) expire(ctx context.Context, key string, ttl time.Duration) {
	err := c.store.Expire(ctx, key, ttl)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		c.log.Debug("lazycache: expire on missing key", Fields{"key": key, "ttl": ttl})
	default:
		c.storeError("expire", key, "", err)
	}
}

func (c *Client) encode(key, field string, v any) (string, error) {
	b, err := c.codec.Marshal(v)
	if err != nil {
		err = mark(err, ErrEncode, "encode %q with %s", key, c.codec.Name())
		c.log.Error("lazycache: encode failed", Fields{"key": key, "field": field, "codec": c.codec.Name(), "err": err})
		c.hooks.CodecError("encode", key, err)
		return "", err
	}
	return string(b), nil
}

// encodeAndWrite is the direct write path shared by Session.Set/HSet and the list helpers.
func (c *Client) encodeAndWrite(ctx context.Context, hash bool, key, field string, v any) bool {
	payload, err := c.encode(key, field, v)
	if err != nil {
		return false
	}
	return c.write(ctx, hash, key, field, payload) == nil
}

func (c *Client) decode(key, field, payload string, dst any) bool {
	if err := c.codec.Unmarshal([]byte(payload), dst); err != nil {
		err = mark(err, ErrDecode, "decode %q with %s", key, c.codec.Name())
		c.log.Warn("lazycache: decode failed", Fields{"key": key, "field": field, "codec": c.codec.Name(), "err": err})
		c.hooks.CodecError("decode", key, err)
		return false
	}
	return true
}

func (c *Client) storeError(op, key, field string, err error) error {
	err = mark(err, ErrStoreUnavailable, "%s %q", op, key)
	c.log.Warn("lazycache: store "+op+" failed", Fields{"key": key, "field": field, "err": err})
	c.hooks.StoreError(op, key, err)
	return err
}

func (c *Client) producerError(key, field string, err error) {
	err = mark(err, ErrProducer, "load %q", key)
	c.log.Error("lazycache: producer failed", Fields{"key": key, "field": field, "err": err})
	c.hooks.ProducerError(key, field, err)
}
