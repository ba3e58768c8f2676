package logs

import (
	"context"
	"log/slog"

	"github.com/lavacast/lavacast/internal/observability"
)

// TeeHandler is an slog.Handler that mirrors every record into the log
// service before delegating to the inner handler. Wrapping the application
// logger with it makes the operator log a superset of stderr output.
type TeeHandler struct {
	inner slog.Handler
	svc   *Service
	attrs []slog.Attr
}

// NewTeeHandler wraps inner so records also land in svc.
func NewTeeHandler(inner slog.Handler, svc *Service) *TeeHandler {
	return &TeeHandler{inner: inner, svc: svc}
}

// Enabled implements slog.Handler.
func (h *TeeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *TeeHandler) Handle(ctx context.Context, r slog.Record) error {
	data := make(map[string]any, r.NumAttrs()+len(h.attrs))
	for _, a := range h.attrs {
		data[a.Key] = a.Value.Resolve().Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		data[a.Key] = a.Value.Resolve().Any()
		return true
	})
	if len(data) == 0 {
		data = nil
	}

	h.svc.Append(Entry{
		Time:    r.Time.Format(timeLayout),
		Level:   observability.LevelName(r.Level),
		Message: r.Message,
		Data:    data,
	})
	return h.inner.Handle(ctx, r)
}

// WithAttrs implements slog.Handler.
func (h *TeeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &TeeHandler{inner: h.inner.WithAttrs(attrs), svc: h.svc, attrs: merged}
}

// WithGroup implements slog.Handler. Groups flatten into the entry data;
// the operator log does not nest.
func (h *TeeHandler) WithGroup(name string) slog.Handler {
	return &TeeHandler{inner: h.inner.WithGroup(name), svc: h.svc, attrs: h.attrs}
}
