// Package testutil provides test helpers shared across packages.
package testutil

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

// LogRecord is a captured slog record.
type LogRecord struct {
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

// CaptureHandler is a slog.Handler that retains records for assertions.
// Safe for concurrent use.
type CaptureHandler struct {
	mu      sync.Mutex
	records []LogRecord
	attrs   []slog.Attr
}

// NewCaptureLogger returns a logger whose output can be inspected.
func NewCaptureLogger() (*slog.Logger, *CaptureHandler) {
	h := &CaptureHandler{}
	return slog.New(h), h
}

// Enabled captures every level.
func (h *CaptureHandler) Enabled(context.Context, slog.Level) bool { return true }

// Handle implements slog.Handler.
func (h *CaptureHandler) Handle(_ context.Context, r slog.Record) error {
	attrs := make(map[string]any, r.NumAttrs()+len(h.attrs))
	for _, a := range h.attrs {
		attrs[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})

	h.mu.Lock()
	h.records = append(h.records, LogRecord{Level: r.Level, Message: r.Message, Attrs: attrs})
	h.mu.Unlock()
	return nil
}

// WithAttrs implements slog.Handler; derived handlers share the record
// buffer so assertions see logs from child loggers too.
func (h *CaptureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &derivedHandler{parent: h, attrs: attrs}
}

// WithGroup implements slog.Handler. Groups are flattened.
func (h *CaptureHandler) WithGroup(string) slog.Handler { return h }

type derivedHandler struct {
	parent *CaptureHandler
	attrs  []slog.Attr
}

func (d *derivedHandler) Enabled(context.Context, slog.Level) bool { return true }

func (d *derivedHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, a := range d.attrs {
		r.AddAttrs(a)
	}
	return d.parent.Handle(ctx, r)
}

func (d *derivedHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &derivedHandler{parent: d.parent, attrs: append(append([]slog.Attr{}, d.attrs...), attrs...)}
}

func (d *derivedHandler) WithGroup(string) slog.Handler { return d }

// Records returns a copy of the captured records.
func (h *CaptureHandler) Records() []LogRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]LogRecord, len(h.records))
	copy(out, h.records)
	return out
}

// HasMessage reports whether any record's message contains substr.
func (h *CaptureHandler) HasMessage(substr string) bool {
	for _, r := range h.Records() {
		if strings.Contains(r.Message, substr) {
			return true
		}
	}
	return false
}

// HasAttr reports whether any record carries key=value.
func (h *CaptureHandler) HasAttr(key string, value any) bool {
	want := slog.AnyValue(value)
	for _, r := range h.Records() {
		if v, ok := r.Attrs[key]; ok && slog.AnyValue(v).Equal(want) {
			return true
		}
	}
	return false
}

// AssertLogged fails the test unless a record at level contains substr.
func AssertLogged(t *testing.T, h *CaptureHandler, level slog.Level, substr string) {
	t.Helper()

	for _, r := range h.Records() {
		if r.Level == level && strings.Contains(r.Message, substr) {
			return
		}
	}
	t.Errorf("no %s log containing %q; captured:", level, substr)
	for _, r := range h.Records() {
		t.Logf("  [%s] %s %v", r.Level, r.Message, r.Attrs)
	}
}
