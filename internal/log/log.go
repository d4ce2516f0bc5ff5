// Package log is testmemo's process-wide structured logger. Verbosity
// follows the -v flag: 0=error, 1=warn, 2=info, 3=debug, 4=trace.
package log

import (
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

var (
	logger    atomic.Pointer[slog.Logger]
	level     = new(slog.LevelVar)
	verbosity atomic.Int32
)

func init() {
	level.Set(VerbosityToLevel(VerbosityWarn))
	verbosity.Store(VerbosityWarn)
	logger.Store(slog.New(NewHandler(HandlerOptions{
		Level:    level,
		Format:   "text",
		OmitTime: true,
	})))
}

// Init configures the global logger to write to stderr.
func Init(v int, format string) {
	InitWithOutput(v, format, os.Stderr)
}

// InitWithOutput configures the global logger to write to w.
func InitWithOutput(v int, format string, w io.Writer) {
	verbosity.Store(int32(v))
	level.Set(VerbosityToLevel(v))

	l := slog.New(NewHandler(HandlerOptions{
		Level:     level,
		Format:    format,
		Output:    w,
		OmitTime:  v < VerbosityDebug,
		AddSource: v >= VerbosityTrace,
	}))
	logger.Store(l)
	slog.SetDefault(l)
}

// Verbosity returns the current verbosity level.
func Verbosity() int {
	return int(verbosity.Load())
}

// Logger returns the current global logger.
func Logger() *slog.Logger {
	return logger.Load()
}

// Component returns a logger tagged with the component name. It keeps
// following the global logger across Init calls.
func Component(name string) *slog.Logger {
	return slog.New(liveHandler{}).With("component", name)
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
