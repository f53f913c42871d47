// Package ui implements the output contract of the pipeline for a
// terminal: status lines and a scan spinner on stderr, the final report
// on stdout.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/dustin/go-humanize"

	"github.com/audiovet/audiovet/internal/scan"
)

// Console is a scan.Sink for interactive runs. All methods are safe for
// concurrent use; workers call them from the pool goroutines.
type Console struct {
	mu      sync.Mutex
	out     io.Writer
	status  io.Writer
	spin    *spinner.Spinner
	verbose bool

	total int64
	done  int64

	reports chan *scan.Report
}

// NewConsole returns a Console writing the report to stdout and status
// to stderr. With verbose set, every processed file is echoed.
func NewConsole(verbose bool) *Console {
	return &Console{
		out:     os.Stdout,
		status:  os.Stderr,
		verbose: verbose,
		reports: make(chan *scan.Report, 8),
	}
}

// TotalSet records the cumulative file total.
func (c *Console) TotalSet(n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total = n
}

// DoneInc advances the overall progress line.
func (c *Console) DoneInc() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.done++
	if c.total > 0 {
		fmt.Fprintf(c.status, "\rProcessing... %d%% (%s/%s)",
			c.done*100/c.total, humanize.Comma(c.done), humanize.Comma(c.total))
	}
}

// WorkerFraction is accepted and dropped: the terminal renders overall
// progress only.
func (c *Console) WorkerFraction(int, float64) {}

// Status prints a durable state change in verbose mode; otherwise it is
// dropped.
func (c *Console) Status(text string) {
	if !c.verbose {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.status, "\n%s\n", text)
}

// StatusTransient prints short-lived messages and drives the directory
// scan spinner.
func (c *Console) StatusTransient(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case strings.Contains(text, "Searching for supported Files"):
		if c.spin == nil {
			c.spin = spinner.New(spinner.CharSets[14], 100*time.Millisecond,
				spinner.WithWriter(c.status))
			c.spin.Suffix = " scanning for supported files..."
			c.spin.Start()
		}
	case strings.Contains(text, "Finished searching"):
		if c.spin != nil {
			c.spin.Stop()
			c.spin = nil
		}
	default:
		if c.verbose {
			fmt.Fprintf(c.status, "\n%s\n", text)
		}
	}
}

// FinalReport prints the report and hands it to NextReport.
func (c *Console) FinalReport(r *scan.Report) {
	c.mu.Lock()
	if c.spin != nil {
		c.spin.Stop()
		c.spin = nil
	}
	fmt.Fprintln(c.status)
	fmt.Fprintln(c.out, r.String())
	c.mu.Unlock()

	select {
	case c.reports <- r:
	default:
	}
}

// NextReport pops a delivered report without blocking. Call after the
// coordinator reports idle to collect every run's results.
func (c *Console) NextReport() (*scan.Report, bool) {
	select {
	case r := <-c.reports:
		return r, true
	default:
		return nil, false
	}
}
