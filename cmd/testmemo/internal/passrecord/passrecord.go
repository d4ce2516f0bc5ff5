// Package passrecord persists which test targets passed with which
// fingerprint, per build configuration.
//
// A test target is "missing" when no record exists for its identifier under
// the configuration, or when the recorded fingerprint differs from the
// current one. Records are upserted: saving a target replaces whatever was
// stored for the same identifier and configuration.
package passrecord

import (
	"context"
	"time"

	"github.com/albertocavalcante/testmemo/pkg/config"
	"github.com/albertocavalcante/testmemo/pkg/registry"
	"github.com/albertocavalcante/testmemo/pkg/target"
)

// Store persists pass records.
type Store interface {
	// FindMissing returns the targets of tests that lack a record matching
	// their current fingerprint under cfg, in the order of tests.
	FindMissing(ctx context.Context, tests *target.Set, cfg target.BuildConfig) (*target.Set, error)

	// SaveTests records every target of tests as passed under cfg.
	SaveTests(ctx context.Context, tests *target.Set, cfg target.BuildConfig) error

	// Clear forgets all records.
	Clear(ctx context.Context) error

	// Close releases the resources held by the store.
	Close() error
}

// Record is a single "passed" entry.
type Record struct {
	Fingerprint string    `json:"fingerprint"`
	PassedAt    time.Time `json:"passed_at"`
}

// Matches reports whether the record covers t's current fingerprint.
// A target without a fingerprint never matches.
func (r *Record) Matches(t *target.Target) bool {
	return r != nil && t.HasFingerprint() && r.Fingerprint == t.Fingerprint
}

// Backends holds the registered store backends, keyed by config name.
var Backends = registry.New[Store]("storage")

func init() {
	Backends.Register(BackendJSON, func(cfg *config.Config, root string) (Store, error) {
		return NewJSONStore(cfg.StateDir(root)), nil
	})
	Backends.Register(BackendBadger, func(cfg *config.Config, root string) (Store, error) {
		bcfg := DefaultBadgerConfig()
		bcfg.Path = BadgerPath(cfg.StateDir(root))
		bcfg.SyncWrites = cfg.SyncWrites()
		return OpenBadgerStore(bcfg)
	})
}

// Open opens the backend selected by cfg.Storage.Backend.
func Open(cfg *config.Config, root string) (Store, error) {
	return Backends.Open(cfg.Storage.Backend, cfg, root)
}

// findMissing applies the staleness rule given a record lookup.
func findMissing(tests *target.Set, lookup func(id string) (*Record, error)) (*target.Set, error) {
	missing := target.NewSet()
	for t := range tests.All() {
		rec, err := lookup(t.ID)
		if err != nil {
			return nil, err
		}
		if !rec.Matches(t) {
			missing.Add(t)
		}
	}
	return missing, nil
}
