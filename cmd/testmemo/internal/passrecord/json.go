package passrecord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/albertocavalcante/testmemo/pkg/target"
)

const (
	// BackendJSON is the name of the JSON ledger backend.
	BackendJSON = "json"

	// ledgerFile is the name of the ledger file inside the state directory.
	ledgerFile = "tests.json"
)

// LedgerVersion is the current version of the ledger format.
const LedgerVersion = 1

// Ledger is the on-disk form of the JSON backend.
type Ledger struct {
	Version   int                       `json:"version"`
	UpdatedAt time.Time                 `json:"updated_at"`
	Configs   map[string]*ConfigRecords `json:"configs"`
}

// ConfigRecords holds the records of one build configuration.
type ConfigRecords struct {
	Build target.BuildConfig `json:"build"`
	Tests map[string]*Record `json:"tests"`
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		Version:   LedgerVersion,
		UpdatedAt: time.Now(),
		Configs:   make(map[string]*ConfigRecords),
	}
}

// Lookup returns the record for id under cfg. Records stored under the same
// key for a different configuration never match.
func (l *Ledger) Lookup(cfg target.BuildConfig, id string) (*Record, bool) {
	if l == nil || l.Configs == nil {
		return nil, false
	}
	cr, ok := l.Configs[cfg.Key()]
	if !ok || cr.Tests == nil || !cr.Build.Equal(cfg) {
		return nil, false
	}
	rec, ok := cr.Tests[id]
	return rec, ok
}

// Put upserts a record for id under cfg. Records of a different
// configuration sharing the key are replaced.
func (l *Ledger) Put(cfg target.BuildConfig, id string, rec *Record) {
	if l.Configs == nil {
		l.Configs = make(map[string]*ConfigRecords)
	}
	key := cfg.Key()
	cr, ok := l.Configs[key]
	if !ok || !cr.Build.Equal(cfg) {
		cr = &ConfigRecords{Build: cfg.Clone()}
		l.Configs[key] = cr
	}
	if cr.Tests == nil {
		cr.Tests = make(map[string]*Record)
	}
	cr.Tests[id] = rec
}

// JSONStore implements Store with a single JSON ledger file.
type JSONStore struct {
	dir  string
	path string

	// mu serializes read-modify-write cycles within this process.
	mu sync.Mutex
}

// NewJSONStore creates a store keeping its ledger in dir.
func NewJSONStore(dir string) *JSONStore {
	return &JSONStore{
		dir:  dir,
		path: filepath.Join(dir, ledgerFile),
	}
}

// Path returns the ledger file path.
func (s *JSONStore) Path() string {
	return s.path
}

// FindMissing implements Store.
func (s *JSONStore) FindMissing(ctx context.Context, tests *target.Set, cfg target.BuildConfig) (*target.Set, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	ledger, err := s.load()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	return findMissing(tests, func(id string) (*Record, error) {
		rec, _ := ledger.Lookup(cfg, id)
		return rec, nil
	})
}

// SaveTests implements Store.
func (s *JSONStore) SaveTests(ctx context.Context, tests *target.Set, cfg target.BuildConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ledger, err := s.load()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for t := range tests.All() {
		ledger.Put(cfg, t.ID, &Record{Fingerprint: t.Fingerprint, PassedAt: now})
	}
	return s.save(ledger)
}

// Clear implements Store. Only the ledger file is removed; the state
// directory may hold other files such as the project config.
func (s *JSONStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove ledger: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *JSONStore) Close() error {
	return nil
}

// load reads the ledger from disk. If the file doesn't exist, returns an empty ledger.
func (s *JSONStore) load() (*Ledger, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewLedger(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}

	var ledger Ledger
	if err := json.Unmarshal(data, &ledger); err != nil {
		return nil, fmt.Errorf("failed to parse ledger %s: %w", s.path, err)
	}

	// Check version compatibility
	if ledger.Version > LedgerVersion {
		return nil, fmt.Errorf("ledger version %d is newer than supported version %d", ledger.Version, LedgerVersion)
	}

	if ledger.Configs == nil {
		ledger.Configs = make(map[string]*ConfigRecords)
	}

	return &ledger, nil
}

// save writes the ledger to disk atomically.
func (s *JSONStore) save(ledger *Ledger) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	ledger.UpdatedAt = time.Now().UTC()
	ledger.Version = LedgerVersion

	data, err := json.MarshalIndent(ledger, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}

	// Write to temp file first for atomic update
	tmp, err := os.CreateTemp(s.dir, ledgerFile+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp ledger: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp ledger: %w", err)
	}

	// Rename temp file to actual file (atomic on POSIX)
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename ledger: %w", err)
	}

	return nil
}
