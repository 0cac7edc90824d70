package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/lazycache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	GatedEvery    uint64
	CompleteEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	gatedCtr    atomic.Uint64
	completeCtr atomic.Uint64
}

var _ lazycache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) LoadAdmitted(lockKey string) {
	if h.l == nil {
		return
	}
	h.l.Debug("lazycache.load_admitted",
		"lock", h.redact(lockKey))
}

func (h *Hooks) LoadGated(lockKey string) {
	if h.l == nil || !sample(h.opts.GatedEvery, &h.gatedCtr) {
		return
	}
	h.l.Debug("lazycache.load_gated",
		"lock", h.redact(lockKey))
}

func (h *Hooks) LoadDropped(lockKey, reason string) {
	if h.l == nil {
		return
	}
	h.l.Warn("lazycache.load_dropped",
		"lock", h.redact(lockKey),
		"reason", reason)
}

func (h *Hooks) LoadCompleted(lockKey string, cost time.Duration, failed bool) {
	if h.l == nil {
		return
	}
	if failed {
		h.l.Warn("lazycache.load_failed",
			"lock", h.redact(lockKey),
			"cost", cost)
		return
	}
	if !sample(h.opts.CompleteEvery, &h.completeCtr) {
		return
	}
	h.l.Info("lazycache.load_completed",
		"lock", h.redact(lockKey),
		"cost", cost)
}

func (h *Hooks) FallbackFired(key, field string) {
	if h.l == nil {
		return
	}
	h.l.Debug("lazycache.fallback_fired",
		"key", h.redact(key),
		"hash", field != "")
}

func (h *Hooks) StoreError(op, key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("lazycache.store_error",
		"op", op,
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) CodecError(op, key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("lazycache.codec_error",
		"op", op,
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) ProducerError(key, field string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("lazycache.producer_error",
		"key", h.redact(key),
		"hash", field != "",
		"err", err)
}

func (h *Hooks) ModeConflict(key, bound, attempted string) {
	if h.l == nil {
		return
	}
	h.l.Warn("lazycache.mode_conflict",
		"key", h.redact(key),
		"bound", bound,
		"attempted", attempted)
}
