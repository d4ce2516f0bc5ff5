package workspace_test

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"testing"

	"github.com/albertocavalcante/testmemo/cmd/testmemo/internal/kinds"
	"github.com/albertocavalcante/testmemo/cmd/testmemo/internal/workspace"
	"github.com/albertocavalcante/testmemo/internal/log"
)

// writeFiles creates files relative to root.
func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

// sampleWorkspace lays out a small Go workspace:
//
//	//app:app -> //lib:auth -> //util:strings
//	//lib:auth_test -> //lib:auth
func sampleWorkspace(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"MODULE.bazel": `module(name = "sample")`,
		"app/BUILD.bazel": `
go_binary(
    name = "app",
    srcs = ["main.go"],
    deps = ["//lib:auth"],
)
`,
		"app/main.go": "package main",
		"lib/BUILD.bazel": `
load("@rules_go//go:def.bzl", "go_library", "go_test")

go_library(
    name = "auth",
    srcs = glob(["**/*.go"], exclude = ["*_test.go"]),
    importpath = "example.com/lib/auth",
    visibility = ["//visibility:public"],
    deps = ["//util:strings"],
)

go_test(
    name = "auth_test",
    srcs = ["auth_test.go"],
    deps = [":auth"],
)
`,
		"lib/auth.go":           "package auth",
		"lib/auth_test.go":      "package auth",
		"lib/sub/BUILD.bazel":   `filegroup(name = "files", srcs = ["x.go"])`,
		"lib/sub/x.go":          "package sub",
		"util/BUILD":            `go_library(name = "strings", srcs = ["strings.go"])`,
		"util/strings.go":       "package strings",
		"bazel-out/BUILD.bazel": `go_library(name = "ignored")`,
	})
	return root
}

func TestFindRoot(t *testing.T) {
	t.Setenv(workspace.EnvWorkspaceDir, "")
	root := sampleWorkspace(t)

	got, err := workspace.FindRoot(filepath.Join(root, "lib", "sub"))
	if err != nil {
		t.Fatalf("FindRoot() error = %v", err)
	}
	want, _ := filepath.Abs(root)
	if got != want {
		t.Errorf("FindRoot() = %q, want %q", got, want)
	}
}

func TestFindRoot_Env(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(workspace.EnvWorkspaceDir, dir)

	got, err := workspace.FindRoot("/somewhere/else")
	if err != nil {
		t.Fatalf("FindRoot() error = %v", err)
	}
	if got != dir {
		t.Errorf("FindRoot() = %q, want %q", got, dir)
	}
}

func TestFindRoot_NoWorkspace(t *testing.T) {
	t.Setenv(workspace.EnvWorkspaceDir, "")
	if _, err := workspace.FindRoot(t.TempDir()); err != workspace.ErrNoWorkspace {
		t.Errorf("FindRoot() error = %v, want ErrNoWorkspace", err)
	}
}

func TestPackages(t *testing.T) {
	root := sampleWorkspace(t)

	pkgs, err := workspace.Packages(context.Background(), root, nil)
	if err != nil {
		t.Fatalf("Packages() error = %v", err)
	}
	for _, pkg := range []string{"app", "lib", "lib/sub", "util"} {
		if _, ok := pkgs[pkg]; !ok {
			t.Errorf("Packages() missing %q", pkg)
		}
	}
	if _, ok := pkgs["bazel-out"]; ok {
		t.Error("Packages() should skip bazel-out")
	}
	if got := filepath.Base(pkgs["util"]); got != "BUILD" {
		t.Errorf("util BUILD file = %q, want BUILD", got)
	}

	pkgs, err = workspace.Packages(context.Background(), root, kinds.IgnoreDirSet([]string{"util"}))
	if err != nil {
		t.Fatalf("Packages() error = %v", err)
	}
	if _, ok := pkgs["util"]; ok {
		t.Error("Packages() should skip a configured ignore dir")
	}
	if _, ok := pkgs["lib"]; !ok {
		t.Error("Packages() should keep lib with extra ignore dirs")
	}
}

func TestResolver_IgnoreDirs(t *testing.T) {
	root := sampleWorkspace(t)
	r := workspace.NewResolver(root,
		workspace.WithLogger(log.Discard()),
		workspace.WithIgnoreDirs([]string{"util"}),
	)

	set, err := r.FindTargets(context.Background(), nil, nil, true)
	if err != nil {
		t.Fatalf("FindTargets() error = %v", err)
	}
	if set.Contains("//util:strings") {
		t.Error("targets under an ignored dir should not be resolved")
	}
	auth, ok := set.Get("//lib:auth")
	if !ok || !slices.Contains(auth.Deps, "//util:strings") {
		t.Errorf("//lib:auth should keep its dependency label, got %+v", auth)
	}
}

func TestResolver_FindTargets(t *testing.T) {
	root := sampleWorkspace(t)
	r := workspace.NewResolver(root, workspace.WithLogger(log.Discard()))
	ctx := context.Background()

	tests := []struct {
		name         string
		include      string
		exclude      string
		includeTests bool
		want         []string
	}{
		{
			name:         "everything",
			includeTests: true,
			want:         []string{"//app:app", "//lib/sub:files", "//lib:auth", "//lib:auth_test", "//util:strings"},
		},
		{
			name:         "test pulls in dependency closure",
			include:      `^//lib:auth_test$`,
			includeTests: true,
			want:         []string{"//lib:auth", "//lib:auth_test", "//util:strings"},
		},
		{
			name:    "tests dropped",
			include: `^//lib:`,
			want:    []string{"//lib:auth", "//util:strings"},
		},
		{
			name:         "exclude",
			exclude:      `_test$|//app`,
			includeTests: true,
			want:         []string{"//lib/sub:files", "//lib:auth", "//util:strings"},
		},
		{
			name:         "no match",
			include:      `^//nothing`,
			includeTests: true,
			want:         nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var include, exclude *regexp.Regexp
			if tt.include != "" {
				include = regexp.MustCompile(tt.include)
			}
			if tt.exclude != "" {
				exclude = regexp.MustCompile(tt.exclude)
			}

			set, err := r.FindTargets(ctx, include, exclude, tt.includeTests)
			if err != nil {
				t.Fatalf("FindTargets() error = %v", err)
			}
			if got := set.IDs(); !slices.Equal(got, tt.want) {
				t.Errorf("FindTargets() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolver_ExcludedTestInSuite(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"MODULE.bazel": "",
		"lib/BUILD.bazel": `
go_test(name = "fast_test", srcs = ["fast_test.go"])

go_test(name = "slow_test", srcs = ["slow_test.go"])

test_suite(
    name = "all_tests",
    tests = [":fast_test", ":slow_test"],
)
`,
		"lib/fast_test.go": "package lib",
		"lib/slow_test.go": "package lib",
	})

	r := workspace.NewResolver(root, workspace.WithLogger(log.Discard()))
	set, err := r.FindTargets(context.Background(), nil, regexp.MustCompile("slow_test"), true)
	if err != nil {
		t.Fatalf("FindTargets() error = %v", err)
	}

	// The excluded test stays in the set so the suite's fingerprint covers it.
	slow, ok := set.Get("//lib:slow_test")
	if !ok {
		t.Fatal("//lib:slow_test should be kept as a dependency of //lib:all_tests")
	}
	if !slow.Dependency {
		t.Error("//lib:slow_test should be marked as a dependency")
	}

	want := []string{"//lib:all_tests", "//lib:fast_test"}
	if got := set.Tests().IDs(); !slices.Equal(got, want) {
		t.Errorf("Tests() = %v, want %v", got, want)
	}
}

func TestResolver_TargetDetails(t *testing.T) {
	root := sampleWorkspace(t)
	r := workspace.NewResolver(root, workspace.WithLogger(log.Discard()))

	all, err := r.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	auth := all["//lib:auth"]
	if auth == nil {
		t.Fatal("//lib:auth not loaded")
	}
	if auth.Kind != "go_library" || auth.IsTest || auth.Package != "lib" {
		t.Errorf("auth = %+v", auth)
	}
	if !slices.Equal(auth.Srcs, []string{"lib/auth.go"}) {
		t.Errorf("auth.Srcs = %v, want [lib/auth.go]", auth.Srcs)
	}
	if !slices.Equal(auth.Deps, []string{"//util:strings"}) {
		t.Errorf("auth.Deps = %v", auth.Deps)
	}
	if auth.Attrs["importpath"] != "example.com/lib/auth" {
		t.Errorf("auth.Attrs = %v", auth.Attrs)
	}
	if _, ok := auth.Attrs["visibility"]; ok {
		t.Error("visibility should not be recorded")
	}

	test := all["//lib:auth_test"]
	if test == nil || !test.IsTest {
		t.Fatalf("auth_test = %+v, want test target", test)
	}
	if !slices.Equal(test.Deps, []string{"//lib:auth"}) {
		t.Errorf("auth_test.Deps = %v", test.Deps)
	}
	if test.Name != "//lib:auth_test" {
		t.Errorf("auth_test.Name = %q", test.Name)
	}
}

func TestResolver_GeneratedSourcesAndSelect(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"MODULE.bazel": "",
		"gen/BUILD.bazel": `
genrule(
    name = "version",
    outs = ["version.go"],
    cmd = "echo package gen > $@",
)

go_library(
    name = "gen_lib",
    srcs = [":version", "plain.go"] + select({
        "//conditions:default": ["default.go"],
    }),
)
`,
		"gen/plain.go": "package gen",
	})

	all, err := workspace.NewResolver(root, workspace.WithLogger(log.Discard())).Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	lib := all["//gen:gen_lib"]
	if lib == nil {
		t.Fatal("//gen:gen_lib not loaded")
	}
	if !slices.Equal(lib.Deps, []string{"//gen:version"}) {
		t.Errorf("Deps = %v, want generated rule as dependency", lib.Deps)
	}
	if !slices.Equal(lib.Srcs, []string{"gen/plain.go"}) {
		t.Errorf("Srcs = %v, want [gen/plain.go]", lib.Srcs)
	}
	if lib.Attrs["srcs"] == "" {
		t.Error("select() in srcs should be recorded in Attrs")
	}
}

func TestResolver_ExtraTestKinds(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"MODULE.bazel":      "",
		"pkg/BUILD.bazel":   `company_unit_tests(name = "unit")`,
		"other/BUILD.bazel": `company_unit_tests(name = "unit")`,
	})

	plain := workspace.NewResolver(root, workspace.WithLogger(log.Discard()))
	set, err := plain.FindTargets(context.Background(), nil, nil, true)
	if err != nil {
		t.Fatalf("FindTargets() error = %v", err)
	}
	if !set.Tests().IsEmpty() {
		t.Errorf("Tests() = %v, want none without configured kinds", set.Tests().IDs())
	}

	configured := workspace.NewResolver(root,
		workspace.WithLogger(log.Discard()),
		workspace.WithTestKinds([]string{"company_unit_tests"}),
	)
	set, err = configured.FindTargets(context.Background(), nil, nil, true)
	if err != nil {
		t.Fatalf("FindTargets() error = %v", err)
	}
	if got := set.Tests().Len(); got != 2 {
		t.Errorf("Tests().Len() = %d, want 2", got)
	}
}

func TestResolver_ParseError(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"MODULE.bazel":       "",
		"broken/BUILD.bazel": `go_library(name = "x",`,
	})

	_, err := workspace.NewResolver(root, workspace.WithLogger(log.Discard())).
		FindTargets(context.Background(), nil, nil, true)
	if err == nil {
		t.Error("FindTargets() should fail on a malformed BUILD file")
	}
}

func TestResolver_Canceled(t *testing.T) {
	root := sampleWorkspace(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := workspace.NewResolver(root, workspace.WithLogger(log.Discard())).FindTargets(ctx, nil, nil, true)
	if err == nil {
		t.Error("FindTargets() should fail on a canceled context")
	}
}
