package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path"
	"regexp"
	"slices"

	"github.com/bazelbuild/bazel-gazelle/label"
	"github.com/bazelbuild/bazel-gazelle/rule"

	"github.com/albertocavalcante/testmemo/cmd/testmemo/internal/kinds"
	"github.com/albertocavalcante/testmemo/internal/log"
	"github.com/albertocavalcante/testmemo/pkg/target"
)

// Resolver turns the BUILD files of a workspace into targets.
type Resolver struct {
	root      string
	testKinds []string
	ignore    kinds.DirSet
	logger    *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithTestKinds treats the given rule kinds (typically test macros) as tests
// in addition to the built-in kinds.
func WithTestKinds(testKinds []string) Option {
	return func(r *Resolver) {
		r.testKinds = testKinds
	}
}

// WithIgnoreDirs skips directories whose name starts with one of dirs, in
// addition to the built-in ignored directories.
func WithIgnoreDirs(dirs []string) Option {
	return func(r *Resolver) {
		r.ignore = kinds.IgnoreDirSet(dirs)
	}
}

// WithLogger sets the logger used for resolution diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver creates a resolver for the workspace at root.
func NewResolver(root string, opts ...Option) *Resolver {
	r := &Resolver{
		root:   root,
		logger: log.Component("workspace"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FindTargets resolves the targets whose ID matches include (nil matches
// everything) and does not match exclude. Test targets are dropped unless
// includeTests is set. The result also contains every in-workspace target
// the selection depends on, transitively, marked as Dependency so that
// excluded tests reached through a test_suite never count as selected.
// The result is ordered by ID.
func (r *Resolver) FindTargets(ctx context.Context, include, exclude *regexp.Regexp, includeTests bool) (*target.Set, error) {
	all, err := r.Load(ctx)
	if err != nil {
		return nil, err
	}

	ids := slices.Sorted(maps.Keys(all))

	selected := make(map[string]bool)
	var queue []string
	for _, id := range ids {
		t := all[id]
		if include != nil && !include.MatchString(id) {
			continue
		}
		if exclude != nil && exclude.MatchString(id) {
			continue
		}
		if t.IsTest && !includeTests {
			continue
		}
		selected[id] = true
		queue = append(queue, id)
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, dep := range all[id].Deps {
			if d, known := all[dep]; known && !selected[dep] {
				selected[dep] = true
				d.Dependency = true
				queue = append(queue, dep)
			}
		}
	}

	set := target.NewSet()
	for _, id := range ids {
		if selected[id] {
			set.Add(all[id])
		}
	}

	r.logger.Debug("resolved targets",
		"known", len(all),
		"selected", set.Len(),
		"include_tests", includeTests,
	)
	return set, nil
}

// Load parses every package of the workspace and returns all targets keyed
// by ID.
func (r *Resolver) Load(ctx context.Context) (map[string]*target.Target, error) {
	pkgs, err := Packages(ctx, r.root, r.ignore)
	if err != nil {
		return nil, err
	}

	var pending []*pendingTarget
	for _, pkg := range slices.Sorted(maps.Keys(pkgs)) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		parsed, err := r.parsePackage(pkgs, pkg, pkgs[pkg])
		if err != nil {
			return nil, err
		}
		pending = append(pending, parsed...)
	}

	all := make(map[string]*target.Target, len(pending))
	for _, p := range pending {
		all[p.target.ID] = p.target
	}

	// Source labels naming a rule (e.g. a genrule output) are dependencies;
	// everything else is a file.
	for _, p := range pending {
		for _, src := range p.srcLabels {
			id := labelID(src)
			if _, isRule := all[id]; isRule || src.Repo != "" {
				p.target.Deps = appendUnique(p.target.Deps, id)
				continue
			}
			p.target.Srcs = appendUnique(p.target.Srcs, path.Join(src.Pkg, src.Name))
		}
	}

	r.logger.Debug("loaded workspace", "root", r.root, "packages", len(pkgs), "targets", len(all))
	return all, nil
}

type pendingTarget struct {
	target    *target.Target
	srcLabels []label.Label
}

func (r *Resolver) parsePackage(pkgs map[string]string, pkg, buildFile string) ([]*pendingTarget, error) {
	data, err := os.ReadFile(buildFile)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", buildFile, err)
	}
	f, err := rule.LoadData(buildFile, pkg, data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", buildFile, err)
	}

	out := make([]*pendingTarget, 0, len(f.Rules))
	for _, rl := range f.Rules {
		if rl.Name() == "" {
			continue
		}
		p, err := r.convertRule(pkgs, pkg, rl)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", buildFile, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *Resolver) convertRule(pkgs map[string]string, pkg string, rl *rule.Rule) (*pendingTarget, error) {
	id := labelID(label.New("", pkg, rl.Name()))
	t := &target.Target{
		ID:      id,
		Name:    id,
		Kind:    rl.Kind(),
		Package: pkg,
		IsTest:  kinds.IsTestKind(rl.Kind(), r.testKinds),
		Attrs:   make(map[string]string),
	}
	p := &pendingTarget{target: t}

	for _, key := range rl.AttrKeys() {
		expr := rl.Attr(key)
		switch {
		case kinds.IsMetadataAttr(key):
		case kinds.IsSourceAttr(key):
			v := decodeList(expr)
			for _, s := range v.Strings {
				l, err := parseLabel(s, pkg)
				if err != nil {
					return nil, fmt.Errorf("%s %s: %w", id, key, err)
				}
				p.srcLabels = append(p.srcLabels, l)
			}
			for _, g := range v.Globs {
				files, err := expandGlob(r.root, pkg, pkgs, r.ignore, g)
				if err != nil {
					return nil, err
				}
				for _, f := range files {
					t.Srcs = appendUnique(t.Srcs, path.Join(pkg, f))
				}
			}
			if len(v.Other) > 0 {
				t.Attrs[key] = v.otherText()
			}
		case kinds.IsDepAttr(key):
			v := decodeList(expr)
			for _, s := range v.Strings {
				l, err := parseLabel(s, pkg)
				if err != nil {
					return nil, fmt.Errorf("%s %s: %w", id, key, err)
				}
				t.Deps = appendUnique(t.Deps, labelID(l))
			}
			if len(v.Other) > 0 || len(v.Globs) > 0 {
				t.Attrs[key] = v.otherText()
			}
		default:
			t.Attrs[key] = scalarText(expr)
		}
	}

	return p, nil
}

func parseLabel(s, pkg string) (label.Label, error) {
	l, err := label.Parse(s)
	if err != nil {
		return label.NoLabel, err
	}
	if l.Repo == "@" {
		// "@//pkg:name" names the main repository.
		l.Repo = ""
	}
	return l.Abs("", pkg), nil
}

// labelID formats an absolute label. Unlike label.Label.String it never
// shortens //pkg:pkg to //pkg, so IDs are unambiguous map keys.
func labelID(l label.Label) string {
	id := "//" + l.Pkg + ":" + l.Name
	if l.Repo != "" {
		prefix := "@"
		if l.Canonical {
			prefix = "@@"
		}
		id = prefix + l.Repo + id
	}
	return id
}

func appendUnique(list []string, s string) []string {
	if slices.Contains(list, s) {
		return list
	}
	return append(list, s)
}
