package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/albertocavalcante/testmemo/internal/log"
)

// ConfigFileName is the name of the project-level config file.
const ConfigFileName = "testmemo.toml"

// ConfigDirName is the name of the project-level config directory.
const ConfigDirName = ".testmemo"

// GlobalConfigDir is the name of the global config directory inside user's config.
const GlobalConfigDir = "testmemo"

// Environment variables.
const (
	EnvPlatform      = "TESTMEMO_BUILD_PLATFORM"
	EnvConfiguration = "TESTMEMO_BUILD_CONFIGURATION"
	EnvArch          = "TESTMEMO_BUILD_ARCH"
	EnvArgs          = "TESTMEMO_BUILD_ARGS"
	EnvBackend       = "TESTMEMO_STORAGE_BACKEND"
	EnvStorageDir    = "TESTMEMO_STORAGE_DIR"
	EnvSyncWrites    = "TESTMEMO_STORAGE_SYNC_WRITES"
	EnvBazel         = "TESTMEMO_BAZEL"
	EnvTestKinds     = "TESTMEMO_TARGETS_TEST_KINDS"
)

// Load loads configuration from all layers in order of precedence:
//  1. Built-in defaults
//  2. Global user config (~/.config/testmemo/config.toml)
//  3. Project config (.testmemo/config.toml or testmemo.toml)
//  4. Environment variables (TESTMEMO_*)
//
// CLI flags are applied separately after Load() returns.
func Load() *Config {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	return LoadFrom(wd)
}

// LoadFrom loads configuration starting from a specific directory.
func LoadFrom(dir string) *Config {
	cfg := NewConfig()

	// Layer 2: Global user config
	if globalCfg := loadConfigFile(GetGlobalConfigPath()); globalCfg != nil {
		cfg.Merge(globalCfg)
	}

	// Layer 3: Project config from specified directory
	if projectCfg := loadProjectConfigFrom(dir); projectCfg != nil {
		cfg.Merge(projectCfg)
	}

	// Layer 4: Environment variables
	applyEnvironmentVariables(cfg)

	return cfg
}

// loadProjectConfigFrom looks for project configuration starting from the given directory.
func loadProjectConfigFrom(dir string) *Config {
	// Search up the directory tree for config files
	current := dir
	for {
		for _, path := range GetProjectConfigPaths(current) {
			if cfg := loadConfigFile(path); cfg != nil {
				return cfg
			}
		}

		// Stop at filesystem root or git/bazel workspace root
		if isWorkspaceRoot(current) {
			break
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	return nil
}

// isWorkspaceRoot checks if the directory is a workspace root (has .git, WORKSPACE, or MODULE.bazel).
func isWorkspaceRoot(dir string) bool {
	markers := []string{".git", "WORKSPACE", "WORKSPACE.bazel", "MODULE.bazel"}
	for _, marker := range markers {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return true
		}
	}
	return false
}

// loadConfigFile loads a configuration from a TOML file. Missing files
// yield nil; malformed files are reported and skipped.
func loadConfigFile(path string) *Config {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Component("config").Warn("cannot read config file", "path", path, "error", err)
		}
		return nil
	}

	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		log.Component("config").Warn("ignoring malformed config file", "path", path, "error", err)
		return nil
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		log.Component("config").Warn("unknown config keys", "path", path, "keys", undecoded)
	}

	return &cfg
}

// applyEnvironmentVariables applies TESTMEMO_* environment variables to the config.
func applyEnvironmentVariables(cfg *Config) {
	if v := os.Getenv(EnvPlatform); v != "" {
		cfg.Build.Platform = v
	}
	if v := os.Getenv(EnvConfiguration); v != "" {
		cfg.Build.Configuration = v
	}
	if v := os.Getenv(EnvArch); v != "" {
		cfg.Build.Arch = v
	}
	// TESTMEMO_BUILD_ARGS: comma-separated list of extra build arguments
	if v := os.Getenv(EnvArgs); v != "" {
		cfg.Build.Args = splitAndTrim(v)
	}
	if v := os.Getenv(EnvTestKinds); v != "" {
		cfg.Targets.TestKinds = splitAndTrim(v)
	}

	if v := os.Getenv(EnvBackend); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv(EnvStorageDir); v != "" {
		cfg.Storage.Dir = v
	}
	applyBoolEnv(EnvSyncWrites, &cfg.Storage.SyncWrites)

	if v := os.Getenv(EnvBazel); v != "" {
		cfg.Toolchain.Binary = v
	}
}

// splitAndTrim splits a comma-separated string and trims whitespace.
func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// applyBoolEnv applies a boolean environment variable to a pointer.
func applyBoolEnv(envVar string, target **bool) {
	if v := os.Getenv(envVar); v != "" {
		v = strings.ToLower(v)
		if v == "true" || v == "1" || v == "yes" {
			t := true
			*target = &t
		} else if v == "false" || v == "0" || v == "no" {
			f := false
			*target = &f
		}
	}
}

// GetGlobalConfigPath returns the path to the global config file.
func GetGlobalConfigPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(configDir, GlobalConfigDir, "config.toml")
}

// GetProjectConfigPaths returns potential project config paths for a given directory.
func GetProjectConfigPaths(dir string) []string {
	return []string{
		filepath.Join(dir, ConfigDirName, "config.toml"),
		filepath.Join(dir, ConfigFileName),
	}
}
