// Package toolchain locates the Bazel launcher and reports its version.
package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/albertocavalcante/testmemo/internal/log"
	"github.com/albertocavalcante/testmemo/pkg/config"
)

// ErrToolchainNotFound is returned when no Bazel launcher can be located.
var ErrToolchainNotFound = errors.New("bazel launcher not found")

// Launchers are the executable names tried on PATH, in order.
var Launchers = []string{"bazelisk", "bazel"}

// DefaultTimeout bounds the version probe.
const DefaultTimeout = config.DefaultProbeTimeout

// Toolchain finds and queries the Bazel launcher.
type Toolchain struct {
	binary   string
	dir      string
	timeout  time.Duration
	lookPath func(string) (string, error)
	logger   *slog.Logger
}

// Option configures a Toolchain.
type Option func(*Toolchain)

// WithBinary sets an explicit launcher name or path, tried first.
func WithBinary(binary string) Option {
	return func(t *Toolchain) {
		t.binary = binary
	}
}

// WithDir sets the working directory for launcher invocations.
func WithDir(dir string) Option {
	return func(t *Toolchain) {
		t.dir = dir
	}
}

// WithTimeout bounds each version probe.
func WithTimeout(d time.Duration) Option {
	return func(t *Toolchain) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithLookPath replaces PATH lookup. Used primarily for testing.
func WithLookPath(fn func(string) (string, error)) Option {
	return func(t *Toolchain) {
		t.lookPath = fn
	}
}

// WithLogger sets the logger that receives the version line.
func WithLogger(l *slog.Logger) Option {
	return func(t *Toolchain) {
		t.logger = l
	}
}

// New creates a Toolchain with the given options.
func New(opts ...Option) *Toolchain {
	t := &Toolchain{
		timeout:  DefaultTimeout,
		lookPath: exec.LookPath,
		logger:   log.Component("toolchain"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// FromConfig creates a Toolchain from the [toolchain] settings.
func FromConfig(cfg *config.Config, root string) *Toolchain {
	return New(
		WithBinary(cfg.Toolchain.Binary),
		WithTimeout(cfg.ProbeTimeout()),
		WithDir(root),
	)
}

// Find locates the launcher using the following search order:
// 1. The configured binary
// 2. $TESTMEMO_BAZEL
// 3. bazelisk, then bazel on PATH
func (t *Toolchain) Find() (string, error) {
	candidates := make([]string, 0, len(Launchers)+2)
	if t.binary != "" {
		candidates = append(candidates, t.binary)
	}
	if env := os.Getenv(config.EnvBazel); env != "" && env != t.binary {
		candidates = append(candidates, env)
	}
	candidates = append(candidates, Launchers...)

	for _, name := range candidates {
		if path, err := t.lookPath(name); err == nil {
			return path, nil
		}
		t.logger.Debug("launcher candidate not found", "name", name)
	}
	return "", ErrToolchainNotFound
}

// Version runs `<launcher> --version` and returns its trimmed output.
func (t *Toolchain) Version(ctx context.Context) (string, error) {
	path, err := t.Find()
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, "--version")
	cmd.Dir = t.dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%s --version timed out after %s", path, t.timeout)
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%s --version: %w: %s", path, err, msg)
		}
		return "", fmt.Errorf("%s --version: %w", path, err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// LogToolchainVersion logs the launcher version at info. Failures are
// logged as warnings and otherwise ignored.
func (t *Toolchain) LogToolchainVersion(ctx context.Context) {
	version, err := t.Version(ctx)
	if err != nil {
		t.logger.Warn("could not determine toolchain version", "error", err)
		return
	}
	t.logger.Info("toolchain version", "version", version)
}
