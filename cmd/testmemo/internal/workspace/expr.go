package workspace

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	bzl "github.com/bazelbuild/buildtools/build"
	"github.com/bmatcuk/doublestar/v4"

	"github.com/albertocavalcante/testmemo/cmd/testmemo/internal/kinds"
)

// listValue is the decoded form of a list-valued rule attribute such as
// `srcs = ["a.go"] + glob(["*.txt"]) + select({...})`.
type listValue struct {
	Strings []string
	Globs   []globCall
	// Other holds the parts that cannot be evaluated statically.
	Other []bzl.Expr
}

type globCall struct {
	Include []string
	Exclude []string
}

func decodeList(expr bzl.Expr) listValue {
	var v listValue
	v.add(expr)
	return v
}

func (v *listValue) add(expr bzl.Expr) {
	switch e := expr.(type) {
	case nil:
	case *bzl.ListExpr:
		for _, item := range e.List {
			if s, ok := item.(*bzl.StringExpr); ok {
				v.Strings = append(v.Strings, s.Value)
			} else {
				v.Other = append(v.Other, item)
			}
		}
	case *bzl.StringExpr:
		v.Strings = append(v.Strings, e.Value)
	case *bzl.BinaryExpr:
		if e.Op != "+" {
			v.Other = append(v.Other, e)
			return
		}
		v.add(e.X)
		v.add(e.Y)
	case *bzl.CallExpr:
		if g, ok := parseGlob(e); ok {
			v.Globs = append(v.Globs, g)
			return
		}
		v.Other = append(v.Other, e)
	default:
		v.Other = append(v.Other, e)
	}
}

// otherText renders the non-static parts in canonical Starlark form.
func (v listValue) otherText() string {
	parts := make([]string, 0, len(v.Other))
	for _, e := range v.Other {
		parts = append(parts, bzl.FormatString(e))
	}
	return strings.Join(parts, " + ")
}

// scalarText renders a non-list attribute value: plain strings verbatim,
// everything else in canonical Starlark form.
func scalarText(expr bzl.Expr) string {
	if s, ok := expr.(*bzl.StringExpr); ok {
		return s.Value
	}
	return bzl.FormatString(expr)
}

// parseGlob decodes glob(include, exclude = [...], ...). Options that do not
// change which files match (allow_empty, exclude_directories) are ignored.
func parseGlob(call *bzl.CallExpr) (globCall, bool) {
	ident, ok := call.X.(*bzl.Ident)
	if !ok || ident.Name != "glob" {
		return globCall{}, false
	}

	var g globCall
	positional := 0
	for _, arg := range call.List {
		if assign, ok := arg.(*bzl.AssignExpr); ok {
			key, ok := assign.LHS.(*bzl.Ident)
			if !ok {
				return globCall{}, false
			}
			switch key.Name {
			case "include":
				if g.Include, ok = stringList(assign.RHS); !ok {
					return globCall{}, false
				}
			case "exclude":
				if g.Exclude, ok = stringList(assign.RHS); !ok {
					return globCall{}, false
				}
			}
			continue
		}

		var ok bool
		switch positional {
		case 0:
			g.Include, ok = stringList(arg)
		case 1:
			g.Exclude, ok = stringList(arg)
		}
		if !ok {
			return globCall{}, false
		}
		positional++
	}
	return g, true
}

func stringList(expr bzl.Expr) ([]string, bool) {
	list, ok := expr.(*bzl.ListExpr)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(list.List))
	for _, item := range list.List {
		s, ok := item.(*bzl.StringExpr)
		if !ok {
			return nil, false
		}
		out = append(out, s.Value)
	}
	return out, true
}

// expandGlob evaluates g inside package pkg. Matches are package-relative,
// sorted, and never descend into subpackages or ignored directories.
func expandGlob(root, pkg string, pkgs map[string]string, ignore kinds.DirSet, g globCall) ([]string, error) {
	fsys := os.DirFS(filepath.Join(root, filepath.FromSlash(pkg)))

	seen := make(map[string]bool)
	var out []string
	for _, pattern := range g.Include {
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob %q in //%s: %w", pattern, pkg, err)
		}
		for _, m := range matches {
			if seen[m] || crossesBoundary(pkgs, ignore, pkg, m) {
				continue
			}
			excluded, err := matchesAny(g.Exclude, m)
			if err != nil {
				return nil, fmt.Errorf("glob exclude in //%s: %w", pkg, err)
			}
			if excluded {
				continue
			}
			seen[m] = true
			out = append(out, m)
		}
	}

	slices.Sort(out)
	return out, nil
}

func matchesAny(patterns []string, name string) (bool, error) {
	for _, pattern := range patterns {
		ok, err := doublestar.Match(pattern, name)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// crossesBoundary reports whether the package-relative file rel lives in a
// subpackage of pkg or under an ignored directory.
func crossesBoundary(pkgs map[string]string, ignore kinds.DirSet, pkg, rel string) bool {
	dir := path.Dir(rel)
	for dir != "." && dir != "/" {
		if ignore.Ignores(path.Base(dir)) {
			return true
		}
		if _, ok := pkgs[path.Join(pkg, dir)]; ok {
			return true
		}
		dir = path.Dir(dir)
	}
	return false
}
