package passrecord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/albertocavalcante/testmemo/internal/log"
	"github.com/albertocavalcante/testmemo/pkg/target"
)

const (
	// BackendBadger is the name of the BadgerDB backend.
	BackendBadger = "badger"

	badgerDir = "badger"

	testsPrefix   = "tests/"
	configsPrefix = "configs/"
)

// BadgerPath returns the database directory inside the state directory.
func BadgerPath(stateDir string) string {
	return filepath.Join(stateDir, badgerDir)
}

// BadgerConfig holds configuration for the BadgerDB backend.
type BadgerConfig struct {
	// Path is the directory for BadgerDB files.
	// Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal logs.
	// If nil, BadgerDB's internal logging is disabled.
	Logger *slog.Logger
}

// DefaultBadgerConfig returns defaults for on-disk use.
func DefaultBadgerConfig() BadgerConfig {
	return BadgerConfig{
		SyncWrites: true,
		Logger:     log.Component("badger"),
	}
}

// InMemoryBadgerConfig returns configuration for tests.
func InMemoryBadgerConfig() BadgerConfig {
	return BadgerConfig{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
// BadgerDB is chatty at info level, so its info output is logged at debug.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Log(context.Background(), log.LevelTrace, fmt.Sprintf(format, args...))
}

// BadgerStore implements Store on BadgerDB. Records live under
// "tests/<configKey>/<id>"; the configuration itself under
// "configs/<configKey>".
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (creating if needed) a BadgerDB-backed store.
func OpenBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func testKey(configKey, id string) []byte {
	return []byte(testsPrefix + configKey + "/" + id)
}

// storedConfig returns the configuration saved under configKey, or nil.
func storedConfig(txn *badger.Txn, configKey string) (*target.BuildConfig, error) {
	item, err := txn.Get([]byte(configsPrefix + configKey))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cfg target.BuildConfig
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &cfg)
	}); err != nil {
		return nil, fmt.Errorf("decode build configuration: %w", err)
	}
	return &cfg, nil
}

func keysWithPrefix(txn *badger.Txn, prefix string) [][]byte {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys
}

// FindMissing implements Store.
func (s *BadgerStore) FindMissing(ctx context.Context, tests *target.Set, cfg target.BuildConfig) (*target.Set, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	configKey := cfg.Key()
	var missing *target.Set
	err := s.db.View(func(txn *badger.Txn) error {
		stored, err := storedConfig(txn, configKey)
		if err != nil {
			return err
		}
		missing, err = findMissing(tests, func(id string) (*Record, error) {
			if stored == nil || !stored.Equal(cfg) {
				return nil, nil
			}
			item, err := txn.Get(testKey(configKey, id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil, nil
			}
			if err != nil {
				return nil, err
			}
			var rec Record
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return nil, fmt.Errorf("decode record %s: %w", id, err)
			}
			return &rec, nil
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("read pass records: %w", err)
	}
	return missing, nil
}

// SaveTests implements Store.
func (s *BadgerStore) SaveTests(ctx context.Context, tests *target.Set, cfg target.BuildConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	configKey := cfg.Key()
	build, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode build configuration: %w", err)
	}

	// Records of another configuration sharing the key are dropped.
	var stale [][]byte
	err = s.db.View(func(txn *badger.Txn) error {
		stored, err := storedConfig(txn, configKey)
		if err != nil || stored == nil || stored.Equal(cfg) {
			return err
		}
		stale = keysWithPrefix(txn, testsPrefix+configKey+"/")
		return nil
	})
	if err != nil {
		return fmt.Errorf("read pass records: %w", err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, key := range stale {
		if err := wb.Delete(key); err != nil {
			return fmt.Errorf("write pass records: %w", err)
		}
	}
	if err := wb.Set([]byte(configsPrefix+configKey), build); err != nil {
		return fmt.Errorf("write pass records: %w", err)
	}

	now := time.Now().UTC()
	for t := range tests.All() {
		val, err := json.Marshal(Record{Fingerprint: t.Fingerprint, PassedAt: now})
		if err != nil {
			return fmt.Errorf("encode record %s: %w", t.ID, err)
		}
		if err := wb.Set(testKey(configKey, t.ID), val); err != nil {
			return fmt.Errorf("write pass records: %w", err)
		}
	}

	if err := wb.Flush(); err != nil {
		return fmt.Errorf("write pass records: %w", err)
	}
	return nil
}

// Clear implements Store.
func (s *BadgerStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		keys = append(keysWithPrefix(txn, testsPrefix), keysWithPrefix(txn, configsPrefix)...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("clear pass records: %w", err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return fmt.Errorf("clear pass records: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("clear pass records: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
