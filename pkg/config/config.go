// Package config provides configuration management for testmemo.
// It supports multi-layer configuration with precedence:
//  1. Built-in defaults (lowest priority)
//  2. Global user config (~/.config/testmemo/config.toml)
//  3. Project config (.testmemo/config.toml or testmemo.toml)
//  4. Environment variables (TESTMEMO_*)
//  5. CLI flags (highest priority)
package config

import (
	"path/filepath"
	"runtime"
	"slices"
	"time"

	"github.com/albertocavalcante/testmemo/pkg/target"
)

// Defaults.
const (
	DefaultPlatform      = "host"
	DefaultConfiguration = "fastbuild"
	DefaultBackend       = "json"
	DefaultStateDir      = ".testmemo"
	DefaultProbeTimeout  = 10 * time.Second
	DefaultDebounceMS    = 500
)

// Config is the main configuration struct for testmemo.
type Config struct {
	// Build describes the build configuration pass records are scoped to.
	Build BuildConfig `toml:"build"`

	// Targets configures target selection.
	Targets TargetsConfig `toml:"targets"`

	// Storage configures where pass records live.
	Storage StorageConfig `toml:"storage"`

	// Toolchain configures the Bazel launcher.
	Toolchain ToolchainConfig `toml:"toolchain"`

	// Watch configures `impact --watch`.
	Watch WatchConfig `toml:"watch"`
}

// BuildConfig holds the build axis.
type BuildConfig struct {
	// Platform is the target platform or SDK (e.g., "linux", "ios").
	Platform string `toml:"platform"`

	// Configuration is the compilation mode (e.g., "fastbuild", "opt").
	Configuration string `toml:"configuration"`

	// Arch is the target architecture (e.g., "arm64").
	Arch string `toml:"arch"`

	// Args are extra build arguments, in order.
	Args []string `toml:"args"`

	// OutputPath is an optional output location that distinguishes builds.
	OutputPath string `toml:"output_path"`
}

// TargetsConfig holds target selection defaults.
type TargetsConfig struct {
	// Include is a regular expression matched against target labels.
	Include string `toml:"include"`

	// Exclude is a regular expression removing matching targets.
	Exclude string `toml:"exclude"`

	// TestKinds are extra rule kinds (usually macros) treated as tests.
	TestKinds []string `toml:"test_kinds"`

	// IgnoreDirs are extra directory name prefixes skipped when resolving
	// and watching (e.g. "third_party").
	IgnoreDirs []string `toml:"ignore_dirs"`
}

// StorageConfig selects the pass record backend.
type StorageConfig struct {
	// Backend is the backend name ("json" or "badger").
	Backend string `toml:"backend"`

	// Dir is the state directory, relative to the workspace root unless absolute.
	Dir string `toml:"dir"`

	// SyncWrites makes the badger backend fsync every write.
	SyncWrites *bool `toml:"sync_writes"`
}

// ToolchainConfig holds Bazel launcher settings.
type ToolchainConfig struct {
	// Binary is an explicit path to bazel or bazelisk.
	Binary string `toml:"binary"`

	// Timeout bounds the version probe (Go duration syntax, e.g. "10s").
	Timeout string `toml:"timeout"`
}

// WatchConfig holds watch mode settings.
type WatchConfig struct {
	// DebounceMS is the quiet period before re-running impact.
	DebounceMS int `toml:"debounce_ms"`
}

// NewConfig creates a new Config with built-in defaults.
func NewConfig() *Config {
	trueVal := true
	return &Config{
		Build: BuildConfig{
			Platform:      DefaultPlatform,
			Configuration: DefaultConfiguration,
			Arch:          runtime.GOARCH,
			Args:          []string{},
		},
		Targets: TargetsConfig{
			TestKinds:  []string{},
			IgnoreDirs: []string{},
		},
		Storage: StorageConfig{
			Backend:    DefaultBackend,
			Dir:        DefaultStateDir,
			SyncWrites: &trueVal,
		},
		Toolchain: ToolchainConfig{
			Timeout: DefaultProbeTimeout.String(),
		},
		Watch: WatchConfig{
			DebounceMS: DefaultDebounceMS,
		},
	}
}

// BuildConfiguration returns the build configuration value used to scope
// fingerprints and pass records.
func (c *Config) BuildConfiguration() target.BuildConfig {
	return target.BuildConfig{
		Platform:      c.Build.Platform,
		Configuration: c.Build.Configuration,
		Arch:          c.Build.Arch,
		Args:          slices.Clone(c.Build.Args),
		OutputPath:    c.Build.OutputPath,
	}
}

// StateDir returns the absolute state directory for the workspace at root.
func (c *Config) StateDir(root string) string {
	dir := c.Storage.Dir
	if dir == "" {
		dir = DefaultStateDir
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(root, dir)
}

// SyncWrites reports whether storage writes should be synchronous.
func (c *Config) SyncWrites() bool {
	return c.Storage.SyncWrites == nil || *c.Storage.SyncWrites
}

// ProbeTimeout returns the toolchain probe timeout. Invalid or non-positive
// values fall back to DefaultProbeTimeout.
func (c *Config) ProbeTimeout() time.Duration {
	d, err := time.ParseDuration(c.Toolchain.Timeout)
	if err != nil || d <= 0 {
		return DefaultProbeTimeout
	}
	return d
}

// Debounce returns the watch debounce interval.
func (c *Config) Debounce() time.Duration {
	if c.Watch.DebounceMS <= 0 {
		return DefaultDebounceMS * time.Millisecond
	}
	return time.Duration(c.Watch.DebounceMS) * time.Millisecond
}

// Merge merges another config into this one (other takes precedence).
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Merge build config
	if other.Build.Platform != "" {
		c.Build.Platform = other.Build.Platform
	}
	if other.Build.Configuration != "" {
		c.Build.Configuration = other.Build.Configuration
	}
	if other.Build.Arch != "" {
		c.Build.Arch = other.Build.Arch
	}
	if len(other.Build.Args) > 0 {
		c.Build.Args = other.Build.Args
	}
	if other.Build.OutputPath != "" {
		c.Build.OutputPath = other.Build.OutputPath
	}

	// Merge targets config
	if other.Targets.Include != "" {
		c.Targets.Include = other.Targets.Include
	}
	if other.Targets.Exclude != "" {
		c.Targets.Exclude = other.Targets.Exclude
	}
	for _, kind := range other.Targets.TestKinds {
		if !slices.Contains(c.Targets.TestKinds, kind) {
			c.Targets.TestKinds = append(c.Targets.TestKinds, kind)
		}
	}
	for _, dir := range other.Targets.IgnoreDirs {
		if !slices.Contains(c.Targets.IgnoreDirs, dir) {
			c.Targets.IgnoreDirs = append(c.Targets.IgnoreDirs, dir)
		}
	}

	// Merge storage config
	if other.Storage.Backend != "" {
		c.Storage.Backend = other.Storage.Backend
	}
	if other.Storage.Dir != "" {
		c.Storage.Dir = other.Storage.Dir
	}
	if other.Storage.SyncWrites != nil {
		c.Storage.SyncWrites = other.Storage.SyncWrites
	}

	// Merge toolchain config
	if other.Toolchain.Binary != "" {
		c.Toolchain.Binary = other.Toolchain.Binary
	}
	if other.Toolchain.Timeout != "" {
		c.Toolchain.Timeout = other.Toolchain.Timeout
	}

	// Merge watch config
	if other.Watch.DebounceMS > 0 {
		c.Watch.DebounceMS = other.Watch.DebounceMS
	}
}
