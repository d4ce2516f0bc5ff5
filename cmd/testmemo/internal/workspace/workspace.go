// Package workspace resolves Bazel packages and targets from a workspace on
// disk and detects whether the workspace is already managed by testmemo.
//
// # Resolution Algorithm
//
// Resolution is DETERMINISTIC: given the same workspace contents it always
// yields the same targets in the same order.
//
//  1. Walk the workspace, skipping ignored directories (kinds.IgnoredDirs plus
//     targets.ignore_dirs)
//  2. Parse every BUILD.bazel / BUILD file
//  3. Convert each rule into a target, expanding glob() source patterns
//  4. Select targets with the include/exclude filters and close the selection
//     over in-workspace dependencies
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/albertocavalcante/testmemo/cmd/testmemo/internal/kinds"
)

// ErrNoWorkspace is returned when no workspace root can be found.
var ErrNoWorkspace = errors.New("not inside a Bazel workspace (no MODULE.bazel or WORKSPACE found)")

// EnvWorkspaceDir is set by `bazel run` to the workspace the command was
// invoked from.
const EnvWorkspaceDir = "BUILD_WORKSPACE_DIRECTORY"

// RootMarkers are the files that identify a workspace root.
var RootMarkers = []string{"MODULE.bazel", "WORKSPACE.bazel", "WORKSPACE"}

// BuildFileNames are the recognised BUILD file names in order of preference.
var BuildFileNames = []string{"BUILD.bazel", "BUILD"}

// FindRoot locates the workspace root for start.
func FindRoot(start string) (string, error) {
	if dir := os.Getenv(EnvWorkspaceDir); dir != "" {
		return filepath.Abs(dir)
	}

	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	for {
		for _, marker := range RootMarkers {
			if isFile(filepath.Join(dir, marker)) {
				return dir, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNoWorkspace
		}
		dir = parent
	}
}

// BuildFile returns the path of the BUILD file in dir, or "" if dir is not
// a package.
func BuildFile(dir string) string {
	for _, name := range BuildFileNames {
		p := filepath.Join(dir, name)
		if isFile(p) {
			return p
		}
	}
	return ""
}

// Packages walks root and returns the workspace-relative package paths
// (slash separated, "" for the root package) mapped to their BUILD file.
// Directories matched by ignore are skipped; nil uses the default set.
func Packages(ctx context.Context, root string, ignore kinds.DirSet) (map[string]string, error) {
	pkgs := make(map[string]string)

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && ignore.Ignores(d.Name()) {
			return filepath.SkipDir
		}

		if buildFile := BuildFile(p); buildFile != "" {
			rel, err := filepath.Rel(root, p)
			if err != nil {
				return err
			}
			pkgs[relPackage(rel)] = buildFile
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk workspace: %w", err)
	}

	return pkgs, nil
}

func relPackage(rel string) string {
	rel = filepath.ToSlash(rel)
	if rel == "." {
		return ""
	}
	return rel
}

func isFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}
