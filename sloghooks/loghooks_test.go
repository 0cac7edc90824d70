package sloghooks

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func newTestHooks(opts Options) (*Hooks, *bytes.Buffer) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return New(l, opts), &buf
}

func TestKeysAreRedacted(t *testing.T) {
	h, buf := newTestHooks(Options{})
	h.StoreError("get", "user:secret", errors.New("boom"))

	out := buf.String()
	if strings.Contains(out, "user:secret") {
		t.Fatalf("raw key leaked: %s", out)
	}
	if !strings.Contains(out, "lazycache.store_error") || !strings.Contains(out, "boom") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestCustomRedact(t *testing.T) {
	h, buf := newTestHooks(Options{Redact: func(string) string { return "xxx" }})
	h.ModeConflict("k", "scalar", "hash")
	if !strings.Contains(buf.String(), "key=xxx") {
		t.Fatalf("custom redactor not used: %s", buf.String())
	}
}

func TestGatedSampling(t *testing.T) {
	h, buf := newTestHooks(Options{GatedEvery: 10})
	for i := 0; i < 30; i++ {
		h.LoadGated("v:k")
	}
	if n := strings.Count(buf.String(), "lazycache.load_gated"); n != 3 {
		t.Fatalf("logged %d gated events, want 3", n)
	}
}

func TestFailedLoadsAreNeverSampled(t *testing.T) {
	h, buf := newTestHooks(Options{CompleteEvery: 1000})
	h.LoadCompleted("v:k", time.Second, true)
	h.LoadCompleted("v:k", time.Second, false)
	out := buf.String()
	if !strings.Contains(out, "lazycache.load_failed") {
		t.Fatalf("failed load not logged: %s", out)
	}
	if strings.Contains(out, "lazycache.load_completed") {
		t.Fatalf("successful load should be sampled out: %s", out)
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	h := New(nil, Options{})
	h.LoadDropped("v:k", "closed")
	h.ProducerError("k", "", errors.New("x"))
}
