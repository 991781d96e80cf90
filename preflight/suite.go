// Package preflight runs the startup checks shown before a batch run and by
// the check command: configuration, input files, output space, backend
// reachability and credentials.
package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
)

// StepStatus is the outcome of one check.
type StepStatus int

const (
	StepPending StepStatus = iota
	StepRunning
	StepPassed
	StepFailed
	StepWarning
	StepSkipped
)

func (s StepStatus) String() string {
	switch s {
	case StepPending:
		return "pending"
	case StepRunning:
		return "running"
	case StepPassed:
		return "passed"
	case StepFailed:
		return "failed"
	case StepWarning:
		return "warning"
	case StepSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Check is one named step. Run returns a short message and an error; a
// nil error passes.
type Check struct {
	Name string

	// Network marks checks that call a remote service. Quick suites skip them.
	Network bool

	// Optional failures are reported as warnings.
	Optional bool

	Run func(ctx context.Context) (string, error)
}

// Step is a finished check.
type Step struct {
	Name    string
	Status  StepStatus
	Message string
	Error   error
	Latency time.Duration
}

// Result is the outcome of a suite run.
type Result struct {
	Steps    []Step
	Passed   int
	Failed   int
	Warnings int
	Skipped  int
	Duration time.Duration
	Success  bool
}

// Errors returns the errors of failed steps.
func (r Result) Errors() []error {
	var errs []error
	for _, s := range r.Steps {
		if s.Status == StepFailed && s.Error != nil {
			errs = append(errs, s.Error)
		}
	}
	return errs
}

// Suite runs checks in order and prints a colored line per step.
type Suite struct {
	output   io.Writer
	title    string
	quick    bool
	failFast bool
	timeout  time.Duration
}

// NewSuite creates a Suite printing to stdout.
func NewSuite(title string) *Suite {
	return &Suite{
		output:  os.Stdout,
		title:   title,
		timeout: 30 * time.Second,
	}
}

// WithOutput sets the writer for progress lines. nil silences output.
func (s *Suite) WithOutput(w io.Writer) *Suite {
	s.output = w
	return s
}

// WithQuick skips network checks.
func (s *Suite) WithQuick(quick bool) *Suite {
	s.quick = quick
	return s
}

// WithFailFast skips everything after the first failure.
func (s *Suite) WithFailFast(failFast bool) *Suite {
	s.failFast = failFast
	return s
}

// WithTimeout bounds each check. Non-positive values keep the default.
func (s *Suite) WithTimeout(timeout time.Duration) *Suite {
	if timeout > 0 {
		s.timeout = timeout
	}
	return s
}

// Run executes checks in order.
func (s *Suite) Run(ctx context.Context, checks []Check) Result {
	start := time.Now()
	s.printHeader()

	steps := make([]Step, 0, len(checks))
	failed := false
	for _, c := range checks {
		var step Step
		switch {
		case failed && s.failFast:
			step = Step{Name: c.Name, Status: StepSkipped, Message: "Skipped after earlier failure"}
			s.printStep(step)
		case c.Network && s.quick:
			step = Step{Name: c.Name, Status: StepSkipped, Message: "Skipped in quick mode"}
			s.printStep(step)
		default:
			step = s.runStep(ctx, c)
		}
		if step.Status == StepFailed {
			failed = true
		}
		steps = append(steps, step)
	}

	result := buildResult(steps, start)
	s.printSummary(result)
	return result
}

func (s *Suite) runStep(ctx context.Context, c Check) Step {
	s.printf("  ◌ %s...", c.Name)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	began := time.Now()
	msg, err := c.Run(ctx)
	step := Step{
		Name:    c.Name,
		Status:  StepPassed,
		Message: msg,
		Error:   err,
		Latency: time.Since(began),
	}
	if err != nil {
		step.Status = StepFailed
		if c.Optional {
			step.Status = StepWarning
		}
	}

	s.printStep(step)
	return step
}

func buildResult(steps []Step, start time.Time) Result {
	r := Result{Steps: steps, Duration: time.Since(start), Success: true}
	for _, step := range steps {
		switch step.Status {
		case StepPassed:
			r.Passed++
		case StepFailed:
			r.Failed++
			r.Success = false
		case StepWarning:
			r.Warnings++
		case StepSkipped:
			r.Skipped++
		}
	}
	return r
}

func (s *Suite) printf(format string, args ...any) {
	if s.output != nil {
		fmt.Fprintf(s.output, format, args...)
	}
}

func (s *Suite) printHeader() {
	if s.output == nil {
		return
	}
	fmt.Fprintln(s.output)
	color.New(color.FgCyan, color.Bold).Fprintf(s.output, "━━━ %s ━━━\n", s.title)
	fmt.Fprintln(s.output)
}

func (s *Suite) printStep(step Step) {
	if s.output == nil {
		return
	}

	var icon string
	var clr *color.Color
	switch step.Status {
	case StepPassed:
		icon, clr = "✓", color.New(color.FgGreen)
	case StepFailed:
		icon, clr = "✗", color.New(color.FgRed)
	case StepWarning:
		icon, clr = "!", color.New(color.FgYellow)
	case StepSkipped:
		icon, clr = "○", color.New(color.FgHiBlack)
	default:
		icon, clr = "?", color.New(color.FgWhite)
	}

	// overwrite the "running" line
	fmt.Fprint(s.output, "\r")
	clr.Fprintf(s.output, "  %s %s", icon, step.Name)
	if step.Message != "" {
		color.New(color.FgHiBlack).Fprintf(s.output, " - %s", step.Message)
	}
	fmt.Fprintln(s.output)

	if step.Status != StepPassed && step.Error != nil {
		color.New(color.FgRed).Fprintf(s.output, "    └─ %s\n", step.Error.Error())
	}
}

func (s *Suite) printSummary(r Result) {
	if s.output == nil {
		return
	}
	fmt.Fprintln(s.output)
	dim := color.New(color.FgHiBlack)
	if r.Success {
		ok := color.New(color.FgGreen, color.Bold)
		ok.Fprint(s.output, "━━━ Ready ")
		dim.Fprintf(s.output, "(%d/%d checks passed in %v)", r.Passed, len(r.Steps), r.Duration.Round(time.Millisecond))
		ok.Fprintln(s.output, " ━━━")
	} else {
		fail := color.New(color.FgRed, color.Bold)
		fail.Fprint(s.output, "━━━ Not Ready ")
		dim.Fprintf(s.output, "(%d passed, %d failed)", r.Passed, r.Failed)
		fail.Fprintln(s.output, " ━━━")
	}
	fmt.Fprintln(s.output)
}
