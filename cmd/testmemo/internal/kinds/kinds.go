// Package kinds provides the shared rule-kind and directory tables used by
// testmemo.
//
// # Single Source of Truth
//
// This package defines the DETERMINISTIC classification of Bazel rule kinds
// (test or not) and of BUILD attributes (sources, dependencies, other). The
// resolver, the fingerprinter and the watcher all consult these tables rather
// than defining their own.
//
// # Adding New Rule Kinds
//
// Test rules named "<lang>_test" are recognised automatically. Rules that run
// tests under another name belong in TestKinds; project-specific macros can
// be added through configuration (targets.test_kinds).
package kinds

import (
	"slices"
	"strings"
)

// TestSuffix marks a rule kind as a test rule (go_test, py_test, cc_test...).
const TestSuffix = "_test"

// TestKinds lists test rule kinds that do not end in TestSuffix.
var TestKinds = []string{
	"test_suite",
	"android_instrumentation_test",
	"ios_unit_test",
	"ios_ui_test",
	"macos_unit_test",
	"kt_jvm_test",
	"spock_test",
	"scala_test",
	"scala_specs2_junit_test",
}

// SourceAttrs are the attributes whose entries name source files (or labels
// of rules producing them).
var SourceAttrs = []string{
	"srcs",
	"hdrs",
	"textual_hdrs",
	"data",
	"resources",
	"embedsrcs",
}

// DepAttrs are the attributes whose entries are dependency labels.
var DepAttrs = []string{
	"deps",
	"runtime_deps",
	"exports",
	"implementation_deps",
	"embed",
	"tests",
}

// MetadataAttrs do not influence what a target builds and are left out of
// fingerprints.
var MetadataAttrs = []string{
	"name",
	"visibility",
	"generator_name",
	"generator_function",
	"generator_location",
}

// IgnoredDirs contains directory prefixes to skip during resolution and
// watching.
//
// Note: Prefix matching means "bazel-" matches "bazel-out", "bazel-bin", etc.
var IgnoredDirs = []string{
	"bazel-",       // Bazel output directories
	".",            // Hidden directories (.git, .testmemo, ...)
	"node_modules", // Node.js dependencies
	"__pycache__",  // Python cache
}

// IsTestKind reports whether kind is a test rule kind. extra lists
// additional kinds (typically test macros) configured by the project.
func IsTestKind(kind string, extra []string) bool {
	if kind == "" {
		return false
	}
	if strings.HasSuffix(kind, TestSuffix) {
		return true
	}
	return slices.Contains(TestKinds, kind) || slices.Contains(extra, kind)
}

// IsSourceAttr reports whether attr names source files.
func IsSourceAttr(attr string) bool {
	return slices.Contains(SourceAttrs, attr)
}

// IsDepAttr reports whether attr holds dependency labels.
func IsDepAttr(attr string) bool {
	return slices.Contains(DepAttrs, attr)
}

// IsMetadataAttr reports whether attr is excluded from fingerprints.
func IsMetadataAttr(attr string) bool {
	return slices.Contains(MetadataAttrs, attr)
}

// IsIgnoredDir reports whether a directory with the given base name is
// skipped. The workspace root itself is never passed here.
func IsIgnoredDir(name string) bool {
	for _, prefix := range IgnoredDirs {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// DirSet is a set of ignored directory name prefixes.
type DirSet map[string]bool

// IgnoreDirSet returns IgnoredDirs plus the additional prefixes, usually the
// project's targets.ignore_dirs setting. Empty prefixes are dropped.
func IgnoreDirSet(additional []string) DirSet {
	set := make(DirSet, len(IgnoredDirs)+len(additional))
	for _, prefix := range slices.Concat(IgnoredDirs, additional) {
		if prefix != "" {
			set[prefix] = true
		}
	}
	return set
}

// Ignores reports whether a directory with the given base name is skipped.
// A nil set uses IgnoredDirs.
func (s DirSet) Ignores(name string) bool {
	if s == nil {
		return IsIgnoredDir(name)
	}
	for prefix := range s {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
