package workspace

import (
	"context"
	"fmt"
	"os"

	"github.com/bazelbuild/bazel-gazelle/label"
	"github.com/bazelbuild/bazel-gazelle/rule"
)

// ManagedRepo is the repository name of testmemo's managed build hooks.
// A root BUILD file loading from @testmemo// marks the workspace as managed.
const ManagedRepo = "testmemo"

// Guard detects workspaces that are already under active management.
type Guard struct {
	root string
}

// NewGuard creates a guard for the workspace at root.
func NewGuard(root string) *Guard {
	return &Guard{root: root}
}

// IsAlreadyManaged reports whether the root BUILD file loads any symbol from
// the managed repository. A workspace without a root BUILD file is not
// managed.
func (g *Guard) IsAlreadyManaged(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	buildFile := BuildFile(g.root)
	if buildFile == "" {
		return false, nil
	}
	data, err := os.ReadFile(buildFile)
	if err != nil {
		return false, fmt.Errorf("read root BUILD file: %w", err)
	}
	f, err := rule.LoadData(buildFile, "", data)
	if err != nil {
		return false, fmt.Errorf("parse root BUILD file: %w", err)
	}

	for _, load := range f.Loads {
		l, err := label.Parse(load.Name())
		if err != nil {
			continue
		}
		if l.Repo == ManagedRepo {
			return true, nil
		}
	}
	return false, nil
}
