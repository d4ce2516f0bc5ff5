// Package target defines the build units testmemo reasons about: targets,
// ordered target sets and the build configuration that scopes fingerprints
// and pass records.
package target

// Target is a single build unit resolved from the workspace.
type Target struct {
	// ID is the absolute label of the target (e.g. "//lib/auth:auth_test").
	// It is unique within a resolved set.
	ID string

	// Name is the display name used in reports.
	Name string

	// Kind is the rule kind (e.g. "go_library", "kt_jvm_test").
	Kind string

	// Package is the workspace-relative package directory ("" for the root).
	Package string

	// IsTest reports whether the target is a test target.
	IsTest bool

	// Dependency is set when the target did not match the selection filters
	// and is only present because a selected target depends on it.
	Dependency bool

	// Srcs are workspace-relative source files owned by the target.
	Srcs []string

	// Deps are the labels of the target's dependencies. Labels that are not
	// part of the resolved set are external to the fingerprint roll-up.
	Deps []string

	// Attrs holds the remaining rule attributes in canonical text form.
	Attrs map[string]string

	// Fingerprint is the content fingerprint. Empty until fingerprinting runs.
	Fingerprint string
}

// HasFingerprint reports whether a fingerprint has been attached.
func (t *Target) HasFingerprint() bool {
	return t != nil && t.Fingerprint != ""
}
