package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/albertocavalcante/testmemo/cmd/testmemo/internal/impact"
	"github.com/albertocavalcante/testmemo/pkg/config"
)

// TestNoFlagConflicts verifies that all subcommands can be initialized
// without flag shorthand conflicts.
func TestNoFlagConflicts(t *testing.T) {
	root := RootCmd()
	if len(root.Commands()) == 0 {
		t.Fatal("expected at least one subcommand")
	}

	for _, cmd := range root.Commands() {
		t.Run(cmd.Name(), func(t *testing.T) {
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("flag conflict in %q command: %v", cmd.Name(), r)
				}
			}()
			_ = cmd.Flags()
			_ = cmd.InheritedFlags()
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	root := RootCmd()

	tests := []struct {
		name      string
		shorthand string
		def       string
	}{
		{"verbosity", "v", "1"},
		{"log-format", "", "text"},
		{"workspace", "", ""},
	}
	for _, tt := range tests {
		flag := root.PersistentFlags().Lookup(tt.name)
		if flag == nil {
			t.Fatalf("expected persistent %q flag on root command", tt.name)
		}
		if flag.Shorthand != tt.shorthand {
			t.Errorf("%s shorthand = %q, want %q", tt.name, flag.Shorthand, tt.shorthand)
		}
		if flag.DefValue != tt.def {
			t.Errorf("%s default = %q, want %q", tt.name, flag.DefValue, tt.def)
		}
	}
}

func TestSubcommandsExist(t *testing.T) {
	root := RootCmd()
	for _, name := range []string{"impact", "mark-passed", "clean", "version"} {
		if findCommand(root, name) == nil {
			t.Errorf("expected subcommand %q not found", name)
		}
	}
}

func TestBuildFlags(t *testing.T) {
	root := RootCmd()

	tests := []struct {
		flag      string
		shorthand string
	}{
		{"targets", "t"},
		{"except", "e"},
		{"platform", ""},
		{"configuration", "c"},
		{"arch", ""},
		{"build-arg", ""},
		{"output-path", ""},
		{"json", ""},
		{"no-color", ""},
	}

	for _, name := range []string{"impact", "mark-passed"} {
		cmd := findCommand(root, name)
		if cmd == nil {
			t.Fatalf("%s command not found", name)
		}
		for _, tt := range tests {
			flag := cmd.Flags().Lookup(tt.flag)
			if flag == nil {
				t.Errorf("%s: flag %q not found", name, tt.flag)
				continue
			}
			if flag.Shorthand != tt.shorthand {
				t.Errorf("%s: flag %q shorthand = %q, want %q", name, tt.flag, flag.Shorthand, tt.shorthand)
			}
		}
	}

	impactCmd := findCommand(root, "impact")
	for _, name := range []string{"watch", "debounce"} {
		if impactCmd.Flags().Lookup(name) == nil {
			t.Errorf("impact: flag %q not found", name)
		}
	}
}

func TestCompileFilter(t *testing.T) {
	tests := []struct {
		name        string
		include     string
		exclude     string
		wantErr     string
		wantInclude bool
		wantExclude bool
	}{
		{name: "empty selects all"},
		{name: "include", include: `^//lib`, wantInclude: true},
		{name: "both", include: `^//lib`, exclude: `_test$`, wantInclude: true, wantExclude: true},
		{name: "invalid include", include: `(`, wantErr: "--targets"},
		{name: "invalid exclude", exclude: `[`, wantErr: "--except"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := compileFilter(tt.include, tt.exclude)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("compileFilter() error = %v, want mention of %s", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("compileFilter() error = %v", err)
			}
			if (f.Include != nil) != tt.wantInclude || (f.Exclude != nil) != tt.wantExclude {
				t.Errorf("compileFilter() = %+v", f)
			}
		})
	}
}

func TestBuildFlags_ApplyTo(t *testing.T) {
	cmd := &cobra.Command{Use: "probe"}
	var f buildFlags
	addBuildFlags(cmd, &f)

	args := []string{"-c", "opt", "--build-arg", "--copt=-O2", "--build-arg", "--strip=never", "-t", "^//lib"}
	if err := cmd.Flags().Parse(args); err != nil {
		t.Fatal(err)
	}

	cfg := config.NewConfig()
	cfg.Build.Platform = "ios"
	f.applyTo(cmd, cfg)

	if cfg.Build.Configuration != "opt" {
		t.Errorf("Configuration = %q, want opt", cfg.Build.Configuration)
	}
	if got := strings.Join(cfg.Build.Args, " "); got != "--copt=-O2 --strip=never" {
		t.Errorf("Args = %q", got)
	}
	if cfg.Targets.Include != "^//lib" {
		t.Errorf("Include = %q", cfg.Targets.Include)
	}
	if cfg.Build.Platform != "ios" {
		t.Errorf("unset flag overrode Platform: %q", cfg.Build.Platform)
	}
}

func findCommand(root *cobra.Command, name string) *cobra.Command {
	for _, c := range root.Commands() {
		if c.Name() == name {
			return c
		}
	}
	return nil
}

// resetFlags restores every flag to its default so runs do not leak state.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// isolate keeps user config, environment and real launchers out of the run.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PATH", t.TempDir())
	for _, env := range []string{
		config.EnvPlatform, config.EnvConfiguration, config.EnvArch,
		config.EnvArgs, config.EnvBackend, config.EnvStorageDir,
		config.EnvSyncWrites, config.EnvBazel, config.EnvTestKinds,
	} {
		t.Setenv(env, "")
	}
}

// execute runs the CLI with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := RootCmd()
	resetFlags(root)

	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	t.Cleanup(func() {
		root.SetOut(nil)
		root.SetErr(nil)
		root.SetArgs(nil)
	})

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func writeWorkspace(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

var sampleFiles = map[string]string{
	"MODULE.bazel": `module(name = "sample")`,
	"lib/BUILD.bazel": `
go_library(
    name = "lib",
    srcs = ["lib.go"],
)

go_test(
    name = "lib_test",
    srcs = ["lib_test.go"],
    deps = [":lib"],
)
`,
	"lib/lib.go":      "package lib\n",
	"lib/lib_test.go": "package lib\n",
	"app/BUILD.bazel": `
go_binary(
    name = "app",
    srcs = ["main.go"],
    deps = ["//lib"],
)
`,
	"app/main.go": "package main\n",
}

func TestImpactWorkflow(t *testing.T) {
	isolate(t)
	root := writeWorkspace(t, sampleFiles)

	stdout, _, err := execute(t, "impact", "--workspace", root, "--no-color")
	if err != nil {
		t.Fatalf("impact error = %v", err)
	}
	if !strings.HasPrefix(stdout, "//lib:lib_test (") || strings.Count(stdout, "\n") != 1 {
		t.Fatalf("first impact stdout = %q, want the single test target", stdout)
	}

	if _, _, err := execute(t, "mark-passed", "--workspace", root); err != nil {
		t.Fatalf("mark-passed error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, ".testmemo", "tests.json")); err != nil {
		t.Errorf("ledger not written: %v", err)
	}

	stdout, stderr, err := execute(t, "impact", "--workspace", root, "--no-color")
	if err != nil {
		t.Fatalf("impact error = %v", err)
	}
	if stdout != "" {
		t.Errorf("impact after mark-passed stdout = %q, want empty", stdout)
	}
	if !strings.Contains(stderr, "No Affected Test Targets") {
		t.Errorf("stderr = %q, want notice", stderr)
	}

	// Another build configuration has no records.
	stdout, _, err = execute(t, "impact", "--workspace", root, "-c", "opt")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "//lib:lib_test") {
		t.Errorf("impact -c opt stdout = %q, want the test target", stdout)
	}

	// A dependency change invalidates the record.
	if err := os.WriteFile(filepath.Join(root, "lib", "lib.go"), []byte("package lib\n\nvar X = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	stdout, _, err = execute(t, "impact", "--workspace", root)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "//lib:lib_test") {
		t.Errorf("impact after change stdout = %q, want the test target", stdout)
	}
}

func TestMarkPassed_ExceptSkipsSuiteMembers(t *testing.T) {
	isolate(t)
	root := writeWorkspace(t, map[string]string{
		"MODULE.bazel": `module(name = "suite")`,
		"lib/BUILD.bazel": `
go_test(name = "fast_test", srcs = ["fast_test.go"])

go_test(name = "slow_test", srcs = ["slow_test.go"])

test_suite(
    name = "all_tests",
    tests = [":fast_test", ":slow_test"],
)
`,
		"lib/fast_test.go": "package lib\n",
		"lib/slow_test.go": "package lib\n",
	})

	if _, _, err := execute(t, "mark-passed", "--workspace", root, "-e", "slow_test"); err != nil {
		t.Fatalf("mark-passed error = %v", err)
	}

	stdout, _, err := execute(t, "impact", "--workspace", root, "--no-color")
	if err != nil {
		t.Fatalf("impact error = %v", err)
	}
	if !strings.HasPrefix(stdout, "//lib:slow_test (") || strings.Count(stdout, "\n") != 1 {
		t.Errorf("impact stdout = %q, want only the excluded test", stdout)
	}
}

func TestClean(t *testing.T) {
	isolate(t)
	root := writeWorkspace(t, sampleFiles)

	if _, _, err := execute(t, "mark-passed", "--workspace", root); err != nil {
		t.Fatal(err)
	}
	stdout, _, err := execute(t, "clean", "--workspace", root)
	if err != nil {
		t.Fatalf("clean error = %v", err)
	}
	if !strings.Contains(stdout, "Cleared pass records") {
		t.Errorf("clean stdout = %q", stdout)
	}

	stdout, _, err = execute(t, "impact", "--workspace", root)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "//lib:lib_test") {
		t.Errorf("impact after clean stdout = %q, want the test target", stdout)
	}
}

func TestImpact_JSON(t *testing.T) {
	isolate(t)
	root := writeWorkspace(t, sampleFiles)

	stdout, stderr, err := execute(t, "impact", "--workspace", root, "--json")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, `"event":"result"`) || !strings.Contains(stdout, "//lib:lib_test") {
		t.Errorf("stdout = %q, want JSON result events", stdout)
	}
	if strings.Contains(stderr, "Finding Targets") {
		t.Errorf("JSON mode wrote progress to stderr: %q", stderr)
	}
}

func TestImpact_InvalidPattern(t *testing.T) {
	isolate(t)
	root := writeWorkspace(t, sampleFiles)

	_, _, err := execute(t, "impact", "--workspace", root, "-t", "(")
	if err == nil || !strings.Contains(err.Error(), "--targets") {
		t.Fatalf("impact error = %v, want invalid pattern", err)
	}
	if _, err := os.Stat(filepath.Join(root, ".testmemo")); !os.IsNotExist(err) {
		t.Errorf("invalid pattern should fail before storage is touched: %v", err)
	}
}

func TestImpact_AlreadyManaged(t *testing.T) {
	isolate(t)
	files := map[string]string{
		"BUILD.bazel": `load("@testmemo//:hooks.bzl", "testmemo_hooks")` + "\n\ntestmemo_hooks()\n",
	}
	for k, v := range sampleFiles {
		files[k] = v
	}
	root := writeWorkspace(t, files)

	for _, cmd := range []string{"impact", "mark-passed"} {
		stdout, _, err := execute(t, cmd, "--workspace", root)
		if !errors.Is(err, impact.ErrAlreadyManaged) {
			t.Errorf("%s error = %v, want ErrAlreadyManaged", cmd, err)
		}
		if stdout != "" {
			t.Errorf("%s stdout = %q, want empty", cmd, stdout)
		}
	}
}

func TestVersion(t *testing.T) {
	stdout, _, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(stdout, "testmemo ") {
		t.Errorf("version stdout = %q", stdout)
	}
}

func TestInvalidWorkspace(t *testing.T) {
	isolate(t)
	missing := filepath.Join(t.TempDir(), "missing")

	if _, _, err := execute(t, "impact", "--workspace", missing); err == nil {
		t.Error("impact with a missing workspace should fail")
	}
}
