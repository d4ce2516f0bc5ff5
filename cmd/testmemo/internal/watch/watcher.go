// Package watch re-runs impact analysis when workspace files change.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/albertocavalcante/testmemo/cmd/testmemo/internal/kinds"
	"github.com/albertocavalcante/testmemo/internal/log"
)

// ErrWatchLimitReached is returned when the OS watch limit is exceeded.
var ErrWatchLimitReached = errors.New("filesystem watch limit reached")

// RunFunc re-runs the watched operation. changed lists the directories
// (workspace-relative, "." for the root) that triggered the run.
type RunFunc func(ctx context.Context, changed []string) error

// Config configures the watcher.
type Config struct {
	Root     string
	Debounce time.Duration
	Run      RunFunc
	Logger   *slog.Logger

	// IgnoreDirs are directory name prefixes skipped in addition to
	// kinds.IgnoredDirs.
	IgnoreDirs []string
}

// Watcher watches a workspace and calls Run after each burst of changes.
type Watcher struct {
	root     string
	debounce time.Duration
	run      RunFunc
	ignore   kinds.DirSet
	logger   *slog.Logger

	fsWatcher *fsnotify.Watcher
	debouncer *Debouncer

	// runMu serializes runs; a burst arriving mid-run waits for it.
	runMu sync.Mutex
	ctx   context.Context
}

// New creates a watcher for cfg.Root.
func New(cfg Config) (*Watcher, error) {
	if cfg.Run == nil {
		return nil, errors.New("watch: Run is required")
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.Component("watch")
	}

	return &Watcher{
		root:      filepath.Clean(cfg.Root),
		debounce:  cfg.Debounce,
		run:       cfg.Run,
		ignore:    kinds.IgnoreDirSet(cfg.IgnoreDirs),
		logger:    logger,
		fsWatcher: fsWatcher,
	}, nil
}

// Run watches until ctx is canceled. Changes pending at shutdown are
// dropped.
func (w *Watcher) Run(ctx context.Context) error {
	w.ctx = ctx
	w.debouncer = NewDebouncer(w.debounce, w.rerun)
	defer w.debouncer.Stop()

	if err := w.addRecursive(w.root); err != nil {
		return fmt.Errorf("failed to watch workspace: %w", err)
	}
	w.logger.Info("watching workspace", "root", w.root, "debounce", w.debouncer.window)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watch stopped")
			return nil

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

// Close releases the underlying watcher.
func (w *Watcher) Close() error {
	return w.fsWatcher.Close()
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Debug("skipping unreadable path", "path", path, "error", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.ignore.Ignores(d.Name()) {
			return filepath.SkipDir
		}

		if err := w.fsWatcher.Add(path); err != nil {
			if isWatchLimitError(err) {
				return fmt.Errorf("%w at %s: %v\n"+
					"Increase limit with: sudo sysctl fs.inotify.max_user_watches=524288",
					ErrWatchLimitReached, path, err)
			}
			w.logger.Debug("failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

func isWatchLimitError(err error) bool {
	return errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EMFILE)
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}
	rel, ok := w.relevant(event.Name)
	if !ok {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				w.logger.Warn("failed to watch new directory", "path", rel, "error", err)
			}
		}
	}

	w.logger.Debug("file changed", "path", rel, "op", event.Op.String())
	w.debouncer.Add(filepath.ToSlash(filepath.Dir(rel)))
}

// relevant maps path to a workspace-relative path, rejecting paths outside
// the workspace or under an ignored directory.
func (w *Watcher) relevant(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if w.ignore.Ignores(part) {
			return "", false
		}
	}
	return rel, true
}

// rerun is the debouncer callback.
func (w *Watcher) rerun(changed []string) {
	w.runMu.Lock()
	defer w.runMu.Unlock()

	if w.ctx.Err() != nil {
		return
	}
	w.logger.Info("changes detected", "dirs", len(changed))
	if err := w.run(w.ctx, changed); err != nil {
		w.logger.Error("impact run failed", "error", err)
	}
}
