// Package progress renders run events for a terminal and fans them out to
// several orchestrator.ProgressSink implementations.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/fatih/color"

	"batchgen/orchestrator"
)

const promptPreviewRunes = 48

// Console prints one colored line per event. Rows are shown 1-based.
type Console struct {
	mu      sync.Mutex
	out     io.Writer
	prompts []string
	now     func() time.Time
	started time.Time

	succeeded int
	failed    int

	startLabel *color.Color
	okLabel    *color.Color
	failLabel  *color.Color
	dim        *color.Color
}

// NewConsole writes to out, or stdout when out is nil. prompts lets each
// start line show a preview of the row's prompt.
func NewConsole(out io.Writer, prompts []string) *Console {
	if out == nil {
		out = os.Stdout
	}
	return &Console{
		out:        out,
		prompts:    prompts,
		now:        time.Now,
		startLabel: color.New(color.FgCyan),
		okLabel:    color.New(color.FgGreen),
		failLabel:  color.New(color.FgRed),
		dim:        color.New(color.FgHiBlack),
	}
}

func (c *Console) TaskStarted(row int, label string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started.IsZero() {
		c.started = c.now()
	}
	c.startLabel.Fprintf(c.out, "▶ row %d [%s]", row+1, label)
	if row >= 0 && row < len(c.prompts) {
		c.dim.Fprintf(c.out, " %s", preview(c.prompts[row]))
	}
	fmt.Fprintln(c.out)
}

func (c *Console) TaskSucceeded(row, image int, location string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.succeeded++
	c.okLabel.Fprintf(c.out, "  ✓ row %d image %d", row+1, image+1)
	c.dim.Fprintf(c.out, " %s\n", location)
}

func (c *Console) TaskFailed(row, image int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failed++
	c.failLabel.Fprintf(c.out, "  ✗ row %d image %d: %s\n", row+1, image+1, reason)
}

// RunCompleted prints the totals.
func (c *Console) RunCompleted() {
	c.mu.Lock()
	defer c.mu.Unlock()

	var elapsed time.Duration
	if !c.started.IsZero() {
		elapsed = c.now().Sub(c.started).Round(time.Second)
	}

	fmt.Fprintln(c.out)
	summary := color.New(color.FgGreen, color.Bold)
	if c.failed > 0 {
		summary = color.New(color.FgRed, color.Bold)
	}
	summary.Fprintf(c.out, "━━━ %d generated, %d failed ", c.succeeded, c.failed)
	c.dim.Fprintf(c.out, "(%v)\n", elapsed)
}

// Counts returns the images reported so far.
func (c *Console) Counts() (succeeded, failed int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.succeeded, c.failed
}

func preview(prompt string) string {
	if utf8.RuneCountInString(prompt) <= promptPreviewRunes {
		return prompt
	}
	runes := []rune(prompt)
	return string(runes[:promptPreviewRunes-1]) + "…"
}

var _ orchestrator.ProgressSink = (*Console)(nil)
