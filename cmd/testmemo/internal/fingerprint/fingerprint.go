// Package fingerprint attaches content fingerprints to resolved targets.
//
// A target's fingerprint covers its kind, identifier, attributes, the
// contents of its source files, the extra build arguments and the
// fingerprints of its in-set dependencies. Changing any source file
// therefore changes the fingerprint of every target that transitively
// depends on it.
//
// Targets are hashed in dependency layers: a layer only contains targets
// whose dependencies were fingerprinted by earlier layers, so each layer can
// be hashed in parallel.
package fingerprint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"runtime"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/albertocavalcante/testmemo/internal/log"
	"github.com/albertocavalcante/testmemo/pkg/target"
)

// FormatVersion is mixed into every fingerprint. Bump it whenever the
// encoding changes so that old pass records stop matching.
const FormatVersion = "1"

// ErrCycle is returned when the in-set dependency graph contains a cycle.
var ErrCycle = errors.New("dependency cycle")

// Hasher computes target fingerprints for a workspace.
type Hasher struct {
	root        string
	concurrency int
	logger      *slog.Logger
}

// Option configures a Hasher.
type Option func(*Hasher)

// WithConcurrency bounds the number of targets hashed at once.
// Values below 1 select GOMAXPROCS.
func WithConcurrency(n int) Option {
	return func(h *Hasher) {
		h.concurrency = n
	}
}

// WithLogger sets the logger used for timing diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hasher) {
		h.logger = logger
	}
}

// New creates a Hasher reading source files relative to root.
func New(root string, opts ...Option) *Hasher {
	h := &Hasher{
		root:   root,
		logger: log.Component("fingerprint"),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.concurrency < 1 {
		h.concurrency = runtime.GOMAXPROCS(0)
	}
	return h
}

// Fingerprint attaches a fingerprint to every target in set, in place.
// Running it again over unchanged content yields identical fingerprints.
func (h *Hasher) Fingerprint(ctx context.Context, set *target.Set, buildArgs []string) error {
	start := time.Now()

	layers, err := Layers(set)
	if err != nil {
		return err
	}

	files := newFileCache(h.root)
	for _, layer := range layers {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(h.concurrency)
		for _, t := range layer {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				fp, err := h.compute(set, t, buildArgs, files)
				if err != nil {
					return fmt.Errorf("fingerprint %s: %w", t.ID, err)
				}
				t.Fingerprint = fp
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	h.logger.Debug("fingerprinted targets",
		"targets", set.Len(),
		"layers", len(layers),
		"files", files.len(),
		"elapsed", time.Since(start),
	)
	return nil
}

func (h *Hasher) compute(set *target.Set, t *target.Target, buildArgs []string, files *fileCache) (string, error) {
	enc := newEncoder()
	enc.field(FormatVersion)
	enc.field(t.Kind)
	enc.field(t.ID)

	keys := slices.Sorted(maps.Keys(t.Attrs))
	enc.count(len(keys))
	for _, k := range keys {
		enc.field(k)
		enc.field(t.Attrs[k])
	}

	srcs := slices.Sorted(slices.Values(t.Srcs))
	srcs = slices.Compact(srcs)
	enc.count(len(srcs))
	for _, src := range srcs {
		sum, err := files.hash(src)
		if err != nil {
			return "", err
		}
		enc.field(src)
		enc.field(sum)
	}

	enc.count(len(buildArgs))
	for _, arg := range buildArgs {
		enc.field(arg)
	}

	deps := slices.Sorted(slices.Values(t.Deps))
	deps = slices.Compact(deps)
	enc.count(len(deps))
	for _, dep := range deps {
		enc.field(dep)
		// Dependencies outside the set contribute their label only.
		if d, ok := set.Get(dep); ok {
			enc.field(d.Fingerprint)
		} else {
			enc.field("")
		}
	}

	return enc.sum(), nil
}

// Layers groups the targets of set so that every in-set dependency of a
// target appears in an earlier layer. Within a layer targets keep set order.
func Layers(set *target.Set) ([][]*target.Target, error) {
	pending := make(map[string]int, set.Len())
	dependents := make(map[string][]string)
	for t := range set.All() {
		n := 0
		for _, dep := range slices.Compact(slices.Sorted(slices.Values(t.Deps))) {
			if dep == t.ID {
				return nil, fmt.Errorf("%w: %s depends on itself", ErrCycle, t.ID)
			}
			if set.Contains(dep) {
				n++
				dependents[dep] = append(dependents[dep], t.ID)
			}
		}
		pending[t.ID] = n
	}

	var layers [][]*target.Target
	done := 0
	for done < set.Len() {
		var layer []*target.Target
		for t := range set.All() {
			if n, ok := pending[t.ID]; ok && n == 0 {
				layer = append(layer, t)
			}
		}
		if len(layer) == 0 {
			return nil, fmt.Errorf("%w among %s", ErrCycle, strings.Join(slices.Sorted(maps.Keys(pending)), ", "))
		}
		for _, t := range layer {
			delete(pending, t.ID)
			for _, dependent := range dependents[t.ID] {
				pending[dependent]--
			}
		}
		layers = append(layers, layer)
		done += len(layer)
	}
	return layers, nil
}
