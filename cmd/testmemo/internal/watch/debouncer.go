package watch

import (
	"slices"
	"sync"
	"time"
)

// MaxPending is the number of distinct pending packages that forces an
// immediate flush.
const MaxPending = 1000

// DefaultDebounce is the quiet period used when none is configured.
const DefaultDebounce = 500 * time.Millisecond

// Debouncer coalesces bursts of changed packages into a single flush once
// no new change has arrived for the window.
type Debouncer struct {
	window  time.Duration
	onFlush func(pkgs []string)

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	stopped bool
}

// NewDebouncer creates a debouncer. onFlush receives the sorted packages and
// is never called with the lock held.
func NewDebouncer(window time.Duration, onFlush func(pkgs []string)) *Debouncer {
	if window <= 0 {
		window = DefaultDebounce
	}
	return &Debouncer{
		window:  window,
		onFlush: onFlush,
		pending: make(map[string]struct{}),
	}
}

// Add records a change in pkg and restarts the quiet period.
func (d *Debouncer) Add(pkg string) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}

	d.pending[pkg] = struct{}{}
	if len(d.pending) >= MaxPending {
		pkgs := d.takeLocked()
		d.mu.Unlock()
		d.deliver(pkgs)
		return
	}

	// A timer that already fired finds nothing pending or flushes the
	// newer batch early; both are harmless.
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.FlushNow)
	d.mu.Unlock()
}

// FlushNow delivers pending packages immediately.
func (d *Debouncer) FlushNow() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	pkgs := d.takeLocked()
	d.mu.Unlock()
	d.deliver(pkgs)
}

// Stop discards pending packages and disables the debouncer.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	_ = d.takeLocked()
	d.mu.Unlock()
}

// PendingCount returns the number of packages waiting to be flushed.
func (d *Debouncer) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// takeLocked stops the timer and drains the pending set. Caller must hold d.mu.
func (d *Debouncer) takeLocked() []string {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if len(d.pending) == 0 {
		return nil
	}
	pkgs := make([]string, 0, len(d.pending))
	for pkg := range d.pending {
		pkgs = append(pkgs, pkg)
	}
	clear(d.pending)
	slices.Sort(pkgs)
	return pkgs
}

func (d *Debouncer) deliver(pkgs []string) {
	if len(pkgs) > 0 && d.onFlush != nil {
		d.onFlush(pkgs)
	}
}
