// Package progress renders fetch progress for humans.
package progress

import (
	"fmt"
	"io"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// LinePrinter prints "position/duration s; size" after every update. On a
// terminal the line is redrawn in place, otherwise one line is written per
// update.
type LinePrinter struct {
	mu       sync.Mutex
	w        io.Writer
	tty      bool
	size     uint64
	position float64
	duration float64
	printed  bool
}

// NewLinePrinter creates a LinePrinter writing to w.
func NewLinePrinter(w io.Writer) *LinePrinter {
	return &LinePrinter{w: w, tty: IsTerminal(w)}
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(f.Fd()))
}

// SetFraction is a no-op; the line shows media time instead.
func (p *LinePrinter) SetFraction(float64) {}

// SetTime records the media position shown with the next line.
func (p *LinePrinter) SetTime(position, duration float64) {
	p.mu.Lock()
	p.position, p.duration = position, duration
	p.mu.Unlock()
}

// SetSize records the output size and prints the line.
func (p *LinePrinter) SetSize(bytes uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.size = bytes
	p.print()
}

func (p *LinePrinter) print() {
	line := Line(p.position, p.duration, p.size)
	if p.tty {
		fmt.Fprintf(p.w, "\r%s", line)
	} else {
		fmt.Fprintln(p.w, line)
	}
	p.printed = true
}

// Done terminates a redrawn line.
func (p *LinePrinter) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tty && p.printed {
		fmt.Fprintln(p.w)
	}
}

// Line formats one progress line. A zero duration is left out.
func Line(position, duration float64, size uint64) string {
	if duration > 0 {
		return fmt.Sprintf("%.1f/%.1f s; %s", position, duration, humanize.Bytes(size))
	}
	return fmt.Sprintf("%.1f s; %s", position, humanize.Bytes(size))
}

const barSteps = 1000

// Bar draws a progress bar for one download.
type Bar struct {
	mu          sync.Mutex
	bar         *progressbar.ProgressBar
	description string
}

// NewBar creates a Bar writing to w.
func NewBar(w io.Writer, description string) *Bar {
	bar := progressbar.NewOptions(barSteps,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(w) }),
	)
	return &Bar{bar: bar, description: description}
}

// SetFraction moves the bar.
func (b *Bar) SetFraction(fraction float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fraction = max(0, min(fraction, 1))
	_ = b.bar.Set(int(fraction * barSteps))
}

// SetSize shows the output size next to the description.
func (b *Bar) SetSize(bytes uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bar.Describe(fmt.Sprintf("%s (%s)", b.description, humanize.Bytes(bytes)))
}

// Finish fills the bar.
func (b *Bar) Finish() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bar.Finish()
}

// Abandon leaves the bar where it is and moves to a new line.
func (b *Bar) Abandon() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bar.Exit()
}
