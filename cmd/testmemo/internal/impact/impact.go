// Package impact decides which test targets must run again.
//
// The Coordinator runs a fixed pipeline per invocation:
//
//	guard -> resolve targets -> fingerprint all -> keep selected tests -> compare
//
// Impact reports the test targets whose current fingerprint has no pass
// record under the build configuration; MarkAsPassed records the current
// fingerprints of all selected test targets. Collaborators are injected
// through Deps so that each stage can be replaced in tests.
package impact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/albertocavalcante/testmemo/internal/log"
	"github.com/albertocavalcante/testmemo/pkg/target"
)

// ErrAlreadyManaged is returned when the workspace already has testmemo's
// managed build hooks installed.
var ErrAlreadyManaged = errors.New("workspace is already managed by testmemo")

// AlreadyManagedHint tells the user how to recover from ErrAlreadyManaged.
const AlreadyManagedHint = "Remove the @testmemo// hooks from the root BUILD file (or restore it from version control) and try again."

// Step headers and notices shown to the user.
const (
	StepFindingTargets  = "Finding Targets"
	StepHashingTargets  = "Hashing Targets"
	StepMarkingPassed   = "Marking Tests as Passed"
	NoticeNoneAffected  = "No Affected Test Targets"
	affectedStepPattern = "Affected Test Targets (%d)"
)

// Guard detects workspaces that must not be operated on.
type Guard interface {
	IsAlreadyManaged(ctx context.Context) (bool, error)
}

// Diagnostics logs environment information. It never fails.
type Diagnostics interface {
	LogToolchainVersion(ctx context.Context)
}

// Resolver resolves the targets selected by the filters.
type Resolver interface {
	FindTargets(ctx context.Context, include, exclude *regexp.Regexp, includeTests bool) (*target.Set, error)
}

// Fingerprinter attaches fingerprints to targets in place.
type Fingerprinter interface {
	Fingerprint(ctx context.Context, set *target.Set, buildArgs []string) error
}

// Store holds pass records.
type Store interface {
	FindMissing(ctx context.Context, tests *target.Set, cfg target.BuildConfig) (*target.Set, error)
	SaveTests(ctx context.Context, tests *target.Set, cfg target.BuildConfig) error
}

// Reporter shows progress and results to the user. Step must return the
// error of fn unchanged.
type Reporter interface {
	Step(header string, fn func() error) error
	Notice(text string)
	Result(line string)
}

// Deps are the collaborators of a Coordinator. Reporter and Logger are
// optional.
type Deps struct {
	Guard         Guard
	Diagnostics   Diagnostics
	Resolver      Resolver
	Fingerprinter Fingerprinter
	Store         Store
	Reporter      Reporter
	Logger        *slog.Logger
}

// Filter selects targets by label.
type Filter struct {
	// Include keeps only targets whose label matches. Nil keeps everything.
	Include *regexp.Regexp
	// Exclude drops targets whose label matches. Nil drops nothing.
	Exclude *regexp.Regexp
}

// Coordinator implements the impact and mark-passed operations.
// It holds no mutable state; concurrent calls are as safe as the
// collaborators they share.
type Coordinator struct {
	deps Deps
}

// New creates a Coordinator.
func New(deps Deps) *Coordinator {
	if deps.Reporter == nil {
		deps.Reporter = nopReporter{}
	}
	if deps.Logger == nil {
		deps.Logger = log.Component("impact")
	}
	return &Coordinator{deps: deps}
}

// Impact reports the test targets that need to run under cfg and returns
// them. It never changes persisted state.
func (c *Coordinator) Impact(ctx context.Context, f Filter, cfg target.BuildConfig) (*target.Set, error) {
	if err := c.preflight(ctx); err != nil {
		return nil, err
	}

	tests, err := c.resolveTestTargets(ctx, f, cfg)
	if err != nil {
		return nil, err
	}

	missing, err := c.deps.Store.FindMissing(ctx, tests, cfg)
	if err != nil {
		return nil, err
	}
	c.deps.Logger.Debug("compared pass records",
		"config", cfg.String(),
		"tests", tests.Len(),
		"missing", missing.Len(),
	)

	if missing.IsEmpty() {
		c.deps.Reporter.Notice(NoticeNoneAffected)
		return missing, nil
	}

	// Targets without a fingerprint cannot be shown meaningfully. They are
	// still affected, so a header counting zero lines is expected when no
	// missing target has a fingerprint.
	shown := missing.Filter((*target.Target).HasFingerprint)
	err = c.deps.Reporter.Step(fmt.Sprintf(affectedStepPattern, shown.Len()), func() error {
		for t := range shown.All() {
			c.deps.Reporter.Result(fmt.Sprintf("%s (%s)", t.Name, t.Fingerprint))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return missing, nil
}

// MarkAsPassed records every selected test target as passed with its
// current fingerprint under cfg.
func (c *Coordinator) MarkAsPassed(ctx context.Context, f Filter, cfg target.BuildConfig) error {
	if err := c.preflight(ctx); err != nil {
		return err
	}

	tests, err := c.resolveTestTargets(ctx, f, cfg)
	if err != nil {
		return err
	}

	err = c.deps.Reporter.Step(StepMarkingPassed, func() error {
		return c.deps.Store.SaveTests(ctx, tests, cfg)
	})
	if err != nil {
		return err
	}
	c.deps.Logger.Debug("recorded passed tests", "config", cfg.String(), "tests", tests.Len())
	return nil
}

// preflight logs the toolchain version and refuses managed workspaces.
func (c *Coordinator) preflight(ctx context.Context) error {
	c.deps.Diagnostics.LogToolchainVersion(ctx)

	managed, err := c.deps.Guard.IsAlreadyManaged(ctx)
	if err != nil {
		return err
	}
	if managed {
		return ErrAlreadyManaged
	}
	return nil
}

// resolveTestTargets resolves targets including tests, fingerprints the
// whole resolved set and returns its test subset.
func (c *Coordinator) resolveTestTargets(ctx context.Context, f Filter, cfg target.BuildConfig) (*target.Set, error) {
	var targets *target.Set
	err := c.deps.Reporter.Step(StepFindingTargets, func() error {
		var err error
		targets, err = c.deps.Resolver.FindTargets(ctx, f.Include, f.Exclude, true)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = c.deps.Reporter.Step(StepHashingTargets, func() error {
		return c.deps.Fingerprinter.Fingerprint(ctx, targets, cfg.Args)
	})
	if err != nil {
		return nil, err
	}

	tests := targets.Tests()
	c.deps.Logger.Debug("resolved test targets", "targets", targets.Len(), "tests", tests.Len())
	return tests, nil
}

type nopReporter struct{}

func (nopReporter) Step(_ string, fn func() error) error { return fn() }
func (nopReporter) Notice(string)                        {}
func (nopReporter) Result(string)                        {}
