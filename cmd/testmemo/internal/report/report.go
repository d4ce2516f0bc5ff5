// Package report renders coordinator progress and results for the terminal.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/term"
)

const (
	colorGreen = "\033[32m"
	colorRed   = "\033[31m"
	colorBold  = "\033[1m"
	colorReset = "\033[0m"
)

// Printer writes step headers and notices to Err and result lines to Out.
// It is safe for concurrent use.
type Printer struct {
	out     io.Writer
	err     io.Writer
	color   bool
	timings bool
	jsonOut bool

	mu  sync.Mutex
	now func() time.Time
}

// Config configures a Printer.
type Config struct {
	// Out receives result lines. Defaults to os.Stdout.
	Out io.Writer
	// Err receives step headers and notices. Defaults to os.Stderr.
	Err io.Writer
	// Timings appends elapsed time to finished steps.
	Timings bool
	NoColor bool
	JSON    bool
}

// New creates a Printer.
func New(cfg Config) *Printer {
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	errw := cfg.Err
	if errw == nil {
		errw = os.Stderr
	}

	return &Printer{
		out:     out,
		err:     errw,
		color:   !cfg.NoColor && isTerminal(errw),
		timings: cfg.Timings,
		jsonOut: cfg.JSON,
		now:     time.Now,
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Step prints header, runs fn and returns its error unchanged.
func (p *Printer) Step(header string, fn func() error) error {
	if p.jsonOut {
		p.writeJSON(p.out, map[string]any{"event": "step", "step": header})
	} else {
		p.printf(p.err, "%s\n", p.paint(colorBold, "» "+header))
	}

	start := p.now()
	err := fn()
	elapsed := p.now().Sub(start)

	switch {
	case p.jsonOut:
		event := map[string]any{
			"event":       "step_done",
			"step":        header,
			"duration_ms": elapsed.Milliseconds(),
		}
		if err != nil {
			event["error"] = err.Error()
		}
		p.writeJSON(p.out, event)
	case err != nil:
		p.printf(p.err, "%s %s\n", p.paint(colorRed, "✗"), header)
	case p.timings:
		p.printf(p.err, "%s %s (%s)\n", p.paint(colorGreen, "✓"), header, formatDuration(elapsed))
	}
	return err
}

// Notice prints a standalone message.
func (p *Printer) Notice(text string) {
	if p.jsonOut {
		p.writeJSON(p.out, map[string]any{"event": "notice", "text": text})
		return
	}
	p.printf(p.err, "%s\n", p.paint(colorGreen, "✓ "+text))
}

// Result prints one result line.
func (p *Printer) Result(line string) {
	if p.jsonOut {
		p.writeJSON(p.out, map[string]any{"event": "result", "line": line})
		return
	}
	p.printf(p.out, "%s\n", line)
}

// Error prints a failure that ends an operation.
func (p *Printer) Error(err error) {
	if p.jsonOut {
		p.writeJSON(p.out, map[string]any{"event": "error", "error": err.Error()})
		return
	}
	p.printf(p.err, "%s %v\n", p.paint(colorRed, "error:"), err)
}

func (p *Printer) paint(color, s string) string {
	if !p.color {
		return s
	}
	return color + s + colorReset
}

func (p *Printer) writeJSON(w io.Writer, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		p.printf(w, "%s\n", `{"event":"internal_error","error":"json marshal failed"}`)
		return
	}
	p.printf(w, "%s\n", data)
}

// printf serializes writes; output errors are ignored.
func (p *Printer) printf(w io.Writer, format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintf(w, format, args...)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
