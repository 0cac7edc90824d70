package lazycache

import (
	"context"
	"reflect"
	"slices"
	"time"

	"github.com/cockroachdb/errors"
)

// NoDataMarker is written when a fallback yields nothing and the session has
// EnableNoData set. It is not valid JSON and decodes to an empty result.
const NoDataMarker = "no data"

type mode uint8

const (
	modeUnbound mode = iota
	modeScalar
	modeHash
)

func (m mode) String() string {
	switch m {
	case modeScalar:
		return "scalar"
	case modeHash:
		return "hash"
	default:
		return "unbound"
	}
}

// Session is a fluent, per-request view of one cache entry holding values of
// type T. Every chain method returns an updated copy, so a Session may be
// stored and reused without observing later calls.
//
//	users := lazycache.Open[User](c).
//		HGet(ctx, "team:42", "members").
//		Or(ctx, loadMembers).
//		Expire(ctx, time.Hour).
//		ToArray()
type Session[T any] struct {
	c *Client

	key, field string
	mode       mode

	value     string
	present   bool
	fired     bool // Or wrote a value for the current binding
	noData    bool
	keepEmpty bool // Or stores non-nil empty lists, skipping only nil
	equal     func(a, b T) bool
}

// Open starts an unbound session on c.
func Open[T any](c *Client) Session[T] {
	return Session[T]{c: c}
}

// Get reads key and binds the session to it in scalar mode.
func (s Session[T]) Get(ctx context.Context, key string) Session[T] {
	if !s.bind(modeScalar, key) {
		return s
	}
	s.key, s.field, s.mode = key, "", modeScalar
	s.value, s.present = s.c.read(ctx, false, key, "")
	s.fired = false
	return s
}

// HGet reads field of hash key and binds the session to it in hash mode.
func (s Session[T]) HGet(ctx context.Context, key, field string) Session[T] {
	if !s.bind(modeHash, key) {
		return s
	}
	s.key, s.field, s.mode = key, field, modeHash
	s.value, s.present = s.c.read(ctx, true, key, field)
	s.fired = false
	return s
}

func (s Session[T]) bind(m mode, key string) bool {
	if s.mode == modeUnbound || s.mode == m {
		return true
	}
	err := errors.Wrapf(ErrModeConflict, "bound %s %q, attempted %s %q", s.mode, s.key, m, key)
	s.c.log.Warn("lazycache: session mode conflict", Fields{"key": key, "bound": s.mode.String(), "attempted": m.String(), "err": err})
	s.c.hooks.ModeConflict(key, s.mode.String(), m.String())
	return false
}

func (s Session[T]) unbound(op string) {
	s.c.log.Warn("lazycache: "+op+" on unbound session", Fields{"err": ErrUnbound})
}

// EnableNoData makes Or write NoDataMarker when the producer yields nothing,
// so later reads hit the cache instead of the source.
func (s Session[T]) EnableNoData() Session[T] {
	s.noData = true
	return s
}

// WithEqual sets the equality used by InsertToArray and HInsertToArray.
// The default is reflect.DeepEqual.
func (s Session[T]) WithEqual(eq func(a, b T) bool) Session[T] {
	s.equal = eq
	return s
}

// Or calls p synchronously when the bound value is empty and writes its result back.
func (s Session[T]) Or(ctx context.Context, p Producer) Session[T] {
	if s.mode == modeUnbound {
		s.unbound("or")
		return s
	}
	if s.value != "" {
		return s
	}

	v, err := p(ctx)
	if err != nil {
		s.c.producerError(s.key, s.field, err)
		return s
	}

	var payload string
	switch tv := v.(type) {
	case string:
		payload = tv
	default:
		if isEmptyResult(v) && !(s.keepEmpty && !isNilResult(v)) {
			if !s.noData {
				return s
			}
			payload = NoDataMarker
			break
		}
		if payload, err = s.c.encode(s.key, s.field, v); err != nil {
			return s
		}
	}

	s.value, s.present = payload, true
	if s.c.write(ctx, s.mode == modeHash, s.key, s.field, payload) != nil {
		return s
	}
	s.fired = true
	s.c.hooks.FallbackFired(s.key, s.field)
	return s
}

// LazyOr schedules p on the background loader when the bound value is empty.
// The session itself is left unchanged: this request still sees a miss.
func (s Session[T]) LazyOr(ctx context.Context, p Producer) Session[T] {
	if s.value != "" {
		return s
	}
	switch s.mode {
	case modeScalar:
		s.c.sched.ScheduleScalarLoad(ctx, s.key, p)
	case modeHash:
		s.c.sched.ScheduleHashLoad(ctx, s.key, s.field, p)
	default:
		s.unbound("lazy_or")
	}
	return s
}

// Expire sets ttl on the bound key only if Or wrote a value.
func (s Session[T]) Expire(ctx context.Context, ttl time.Duration) Session[T] {
	return s.ExpireMust(ctx, ttl, false)
}

// ExpireMust sets ttl on the bound key if must is true or Or wrote a value.
// In hash mode the whole hash expires.
func (s Session[T]) ExpireMust(ctx context.Context, ttl time.Duration, must bool) Session[T] {
	if s.mode == modeUnbound {
		s.unbound("expire")
		return s
	}
	if must || s.fired {
		s.c.expire(ctx, s.key, ttl)
	}
	return s
}

func (s Session[T]) empty() bool {
	return s.value == "" || s.value == NoDataMarker
}

// ToArray decodes the bound value as a list. It never returns nil.
func (s Session[T]) ToArray() []T {
	if s.empty() {
		return []T{}
	}
	var out []T
	if !s.c.decode(s.key, s.field, s.value, &out) || out == nil {
		return []T{}
	}
	return out
}

// ToClass decodes the bound value as a single T, or returns nil. A stored
// null decodes to nil.
func (s Session[T]) ToClass() *T {
	if s.empty() {
		return nil
	}
	var v *T
	if !s.c.decode(s.key, s.field, s.value, &v) {
		return nil
	}
	return v
}

// ToStr returns the raw payload, which may be NoDataMarker.
func (s Session[T]) ToStr() string { return s.value }

// Set encodes obj and writes it to key.
func (s Session[T]) Set(ctx context.Context, key string, obj any) {
	s.c.encodeAndWrite(ctx, false, key, "", obj)
}

// SetEx is Set followed by an unconditional expiry.
func (s Session[T]) SetEx(ctx context.Context, key string, obj any, ttl time.Duration) {
	if s.c.encodeAndWrite(ctx, false, key, "", obj) {
		s.c.expire(ctx, key, ttl)
	}
}

// HSet encodes obj and writes it to field of hash key.
func (s Session[T]) HSet(ctx context.Context, key, field string, obj any) {
	s.c.encodeAndWrite(ctx, true, key, field, obj)
}

// InsertToArray re-reads the list at key, moves obj to the end and writes it back.
// An equal element at index 0 is kept, so obj may appear twice. Not atomic.
func (s Session[T]) InsertToArray(ctx context.Context, key string, obj T) {
	list := Open[T](s.c).Get(ctx, key).ToArray()
	s.Set(ctx, key, s.insert(list, obj))
}

// HInsertToArray is InsertToArray for field of hash key.
func (s Session[T]) HInsertToArray(ctx context.Context, key, field string, obj T) {
	list := Open[T](s.c).HGet(ctx, key, field).ToArray()
	s.HSet(ctx, key, field, s.insert(list, obj))
}

func (s Session[T]) insert(list []T, obj T) []T {
	eq := orDeepEqual(s.equal)
	if i := slices.IndexFunc(list, func(e T) bool { return eq(e, obj) }); i > 0 {
		list = slices.Delete(list, i, i+1)
	}
	return append(list, obj)
}

// isNilResult reports a nil or typed nil result.
func isNilResult(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Interface, reflect.Func, reflect.Chan, reflect.Slice:
		return rv.IsNil()
	}
	return false
}

// isEmptyResult reports a nil (including typed nil) or zero-length list result.
func isEmptyResult(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	case reflect.Slice:
		return rv.IsNil() || rv.Len() == 0
	case reflect.Array:
		return rv.Len() == 0
	}
	return false
}
