package log

import "log/slog"

// LevelTrace is below debug; it carries per-file and per-target detail.
const LevelTrace = slog.Level(-8)

// Verbosity levels accepted by -v.
const (
	VerbosityError = 0 // Errors only (quiet)
	VerbosityWarn  = 1 // + Warnings (toolchain probe failures, config parse errors)
	VerbosityInfo  = 2 // + Info (toolchain version, store location, step timings)
	VerbosityDebug = 3 // + Debug (targets resolved, fingerprint layers, records read)
	VerbosityTrace = 4 // + Trace (per-target fingerprints, per-file hashes)
)

var verbosityLevels = [...]slog.Level{
	VerbosityError: slog.LevelError,
	VerbosityWarn:  slog.LevelWarn,
	VerbosityInfo:  slog.LevelInfo,
	VerbosityDebug: slog.LevelDebug,
	VerbosityTrace: LevelTrace,
}

// VerbosityToLevel maps -v=N to a slog level, clamping out-of-range values.
func VerbosityToLevel(v int) slog.Level {
	v = max(VerbosityError, min(v, VerbosityTrace))
	return verbosityLevels[v]
}

// LevelName returns the display name for a level, including TRACE.
func LevelName(l slog.Level) string {
	if l == LevelTrace {
		return "TRACE"
	}
	return l.String()
}
