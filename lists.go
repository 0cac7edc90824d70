package lazycache

import (
	"context"
	"reflect"
	"time"
)

// The list helpers below operate on a JSON-style array stored in one hash
// field. Each is a plain read-modify-write cycle with no locking: concurrent
// writers to the same field can lose updates.

// readList returns the decoded list at key/field, or false when the field is
// absent, blank, the no-data marker, null or not decodable.
func readList[T any](ctx context.Context, c *Client, key, field string) ([]T, bool) {
	v, ok := c.read(ctx, true, key, field)
	if !ok || v == "" || v == NoDataMarker {
		return nil, false
	}
	var list []T
	if !c.decode(key, field, v, &list) || list == nil {
		return nil, false
	}
	return list, true
}

// AppendToList appends item to an existing list. It returns false, writing
// nothing, when there is no list to append to.
func AppendToList[T any](ctx context.Context, c *Client, key, field string, item T) bool {
	list, ok := readList[T](ctx, c, key, field)
	if !ok {
		return false
	}
	c.encodeAndWrite(ctx, true, key, field, append(list, item))
	return true
}

// ReplaceInList merges newItem into the first element eq reports equal to it,
// or appends newItem when none matches. A missing list starts empty. A nil eq
// means reflect.DeepEqual and a nil merge replaces the element with newItem.
func ReplaceInList[T any](ctx context.Context, c *Client, key, field string, newItem T, eq func(a, b T) bool, merge func(dst *T, src T)) bool {
	list, _ := readList[T](ctx, c, key, field)
	eq = orDeepEqual(eq)
	if merge == nil {
		merge = func(dst *T, src T) { *dst = src }
	}

	replaced := false
	for i := range list {
		if eq(list[i], newItem) {
			merge(&list[i], newItem)
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, newItem)
	}
	c.encodeAndWrite(ctx, true, key, field, list)
	return true
}

// DeleteFromList removes the first element eq reports equal to item and writes
// the list back. It returns false when there is no list. A nil eq means
// reflect.DeepEqual.
func DeleteFromList[T any](ctx context.Context, c *Client, key, field string, item T, eq func(a, b T) bool) bool {
	list, ok := readList[T](ctx, c, key, field)
	if !ok {
		return false
	}
	eq = orDeepEqual(eq)
	for i := range list {
		if eq(list[i], item) {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if list == nil {
		list = []T{}
	}
	c.encodeAndWrite(ctx, true, key, field, list)
	return true
}

// GetListOr returns the list at key, loading it with p and writing it back on
// a miss. An empty list is cached as such; a nil list is not written.
// ttl > 0 is applied only when the load wrote a value.
func GetListOr[T any](ctx context.Context, c *Client, key string, p func(ctx context.Context) ([]T, error), ttl time.Duration) []T {
	return listSession[T](c).Get(ctx, key).Or(ctx, listProducer(p)).Expire(ctx, ttl).ToArray()
}

// HGetListOr is GetListOr for field of hash key.
func HGetListOr[T any](ctx context.Context, c *Client, key, field string, p func(ctx context.Context) ([]T, error), ttl time.Duration) []T {
	return listSession[T](c).HGet(ctx, key, field).Or(ctx, listProducer(p)).Expire(ctx, ttl).ToArray()
}

// HGetOr returns the value at field of hash key. When the field is missing,
// null or undecodable it calls p and writes a non-nil result back. A producer
// error is reported and yields nil.
func HGetOr[T any](ctx context.Context, c *Client, key, field string, p func(ctx context.Context) (*T, error)) *T {
	if v := Open[T](c).HGet(ctx, key, field).ToClass(); v != nil {
		return v
	}
	v, err := p(ctx)
	if err != nil {
		c.producerError(key, field, err)
		return nil
	}
	if v != nil && c.encodeAndWrite(ctx, true, key, field, v) {
		c.hooks.FallbackFired(key, field)
	}
	return v
}

func listSession[T any](c *Client) Session[T] {
	s := Open[T](c)
	s.keepEmpty = true
	return s
}

func listProducer[T any](p func(ctx context.Context) ([]T, error)) Producer {
	return func(ctx context.Context) (any, error) { return p(ctx) }
}

func orDeepEqual[T any](eq func(a, b T) bool) func(a, b T) bool {
	if eq != nil {
		return eq
	}
	return func(a, b T) bool { return reflect.DeepEqual(a, b) }
}
