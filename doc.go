// Package lazycache is a read-through / write-back cache layer in front of a
// key-value store (Redis or an in-process store) and a slow authoritative
// source. It favors availability: every store, codec or producer failure is
// logged and served as a miss.
//
// Components:
//   - store.Store: string payloads under scalar keys or hash fields.
//   - codec.Codec: (de)serializes values <-> payloads (JSON by default).
//   - gate.Registry: process-local load locks with adaptive cooldown.
//   - Scheduler: bounded worker pool running admitted background loads.
//   - Session[T]: fluent read / fallback / expire / decode chain.
//
// Blocking fallback (the request waits for the source):
//
//	u := lazycache.Open[User](c).
//		Get(ctx, "user:42").
//		Or(ctx, loadUser).
//		Expire(ctx, time.Hour).
//		ToClass()
//
// Lazy fallback (the request gets a miss; one background load per cooldown):
//
//	items := lazycache.Open[Item](c).HGet(ctx, "cart", "42").LazyOr(ctx, loadCart).ToArray()
//
// After a background load the lock key cools down for 60s, or for 30m if the
// load took longer than 2s, which keeps a struggling source from being hit
// again while it recovers.
package lazycache
