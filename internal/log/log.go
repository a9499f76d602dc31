// Package log wires slog with context-scoped attributes, so every log
// line produced on behalf of one diagnostic run carries the run metadata
// without threading a logger through each call site.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
)

type slogKeyT struct{}

var slogKey slogKeyT

// ContextHandler injects attributes stored in the context into every
// record it handles.
type ContextHandler struct {
	slog.Handler
}

func NewContextHandler(handler slog.Handler) ContextHandler {
	return ContextHandler{
		Handler: handler,
	}
}

func (h ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if a, ok := ctx.Value(slogKey).([]slog.Attr); ok {
		r.AddAttrs(a...)
	}

	return h.Handler.Handle(ctx, r)
}

// ContextAttrs returns a context carrying attrs for ContextHandler to pick
// up; attrs accumulate across nested calls.
func ContextAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	a, ok := ctx.Value(slogKey).([]slog.Attr)
	if !ok || a == nil {
		a = make([]slog.Attr, 0, len(attrs))
	}
	a = append(a, attrs...)
	return context.WithValue(ctx, slogKey, a)
}

// New builds the process logger: JSON records on w (stderr when nil),
// debug level when verbose.
func New(verbose bool, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	base := slog.NewJSONHandler(w, &slog.HandlerOptions{
		AddSource: false,
		Level:     level,
	})
	return slog.New(NewContextHandler(base))
}

// HostAttrs tags a context with the daemon a run is addressed to.
func HostAttrs(ctx context.Context, host string) context.Context {
	return ContextAttrs(ctx, slog.String("host", host))
}
