package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

const spinnerInterval = 120 * time.Millisecond

// busyRenderer is the single consumer of the orchestrator's busy signal. On a
// terminal it shows an indeterminate spinner; elsewhere it prints converter
// output as plain lines.
type busyRenderer struct {
	w     io.Writer
	label string
	tty   bool

	mu      sync.Mutex
	bar     *progressbar.ProgressBar
	stop    chan struct{}
	done    chan struct{}
	started time.Time
}

func newBusyRenderer(w io.Writer, label string) *busyRenderer {
	return &busyRenderer{w: w, label: label, tty: isTerminal(w)}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// BusyChanged starts or stops the indicator.
func (b *busyRenderer) BusyChanged(busy bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if busy {
		b.start()
		return
	}
	b.finish()
}

func (b *busyRenderer) start() {
	b.started = time.Now()
	if !b.tty {
		fmt.Fprintf(b.w, "%s...\n", b.label)
		return
	}
	b.bar = progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(b.w),
		progressbar.OptionSetDescription(b.label),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionThrottle(spinnerInterval),
	)
	b.stop = make(chan struct{})
	b.done = make(chan struct{})
	go b.spin(b.bar, b.stop, b.done)
}

func (b *busyRenderer) spin(bar *progressbar.ProgressBar, stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(spinnerInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			_ = bar.Add(1)
		}
	}
}

func (b *busyRenderer) finish() {
	elapsed := time.Since(b.started).Round(time.Second)
	if b.bar == nil {
		if !b.tty {
			fmt.Fprintf(b.w, "Converter exited after %s\n", elapsed)
		}
		return
	}
	close(b.stop)
	<-b.done
	_ = b.bar.Finish()
	b.bar = nil
}

// Line receives converter output. On a terminal the latest line replaces the
// spinner description.
func (b *busyRenderer) Line(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bar != nil {
		b.bar.Describe(b.label + ": " + truncate(line, 60))
		return
	}
	if !b.tty {
		fmt.Fprintln(b.w, line)
	}
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
