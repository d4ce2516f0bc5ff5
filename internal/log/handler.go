package log

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// HandlerOptions configures the log handler.
type HandlerOptions struct {
	Level  slog.Leveler
	Format string // "text" or "json"
	Output io.Writer
	// OmitTime drops the timestamp from text output.
	OmitTime  bool
	AddSource bool
}

// NewHandler creates a text or JSON handler writing to Output (stderr when
// nil; stdout is reserved for command results).
func NewHandler(opts HandlerOptions) slog.Handler {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	omitTime := opts.OmitTime && opts.Format != "json"
	handlerOpts := &slog.HandlerOptions{
		Level:     opts.Level,
		AddSource: opts.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return a
			}
			switch a.Key {
			case slog.TimeKey:
				if omitTime {
					return slog.Attr{}
				}
			case slog.LevelKey:
				if level, ok := a.Value.Any().(slog.Level); ok {
					a.Value = slog.StringValue(LevelName(level))
				}
			}
			return a
		},
	}

	if opts.Format == "json" {
		return slog.NewJSONHandler(out, handlerOpts)
	}
	return slog.NewTextHandler(out, handlerOpts)
}

// liveHandler resolves the global handler on every record, so loggers
// created before Init still follow the configured level and format.
type liveHandler struct {
	wrap []func(slog.Handler) slog.Handler
}

func (h liveHandler) resolve() slog.Handler {
	handler := logger.Load().Handler()
	for _, w := range h.wrap {
		handler = w(handler)
	}
	return handler
}

func (h liveHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return logger.Load().Handler().Enabled(ctx, l)
}

func (h liveHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.resolve().Handle(ctx, r)
}

func (h liveHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.with(func(next slog.Handler) slog.Handler { return next.WithAttrs(attrs) })
}

func (h liveHandler) WithGroup(name string) slog.Handler {
	return h.with(func(next slog.Handler) slog.Handler { return next.WithGroup(name) })
}

func (h liveHandler) with(w func(slog.Handler) slog.Handler) liveHandler {
	wrap := make([]func(slog.Handler) slog.Handler, len(h.wrap), len(h.wrap)+1)
	copy(wrap, h.wrap)
	return liveHandler{wrap: append(wrap, w)}
}
