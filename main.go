// Command batchgen generates images for a list of prompts, optionally
// conditioned on subject, scene and style reference images.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"

	"batchgen/core"
	"batchgen/orchestrator"
	"batchgen/whisk"
)

func main() {
	if err := godotenv.Load(); err != nil {
		// logger isn't initialized yet
		fmt.Fprintf(os.Stderr, "Warning: .env file not loaded: %v\n", err)
	}
	os.Exit(execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs one command line and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	defer a.close()

	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	code := exitCodeFor(err)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return code
}

// exitError carries an explicit exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withExitCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

// exitCodeFor maps an error to the documented exit codes.
func exitCodeFor(err error) int {
	if err == nil {
		return core.ExitCodeSuccess
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	if _, ok := core.IsConfigError(err); ok {
		return core.ExitCodeConfig
	}
	if errors.Is(err, orchestrator.ErrNotAuthenticated) ||
		errors.Is(err, whisk.ErrNotAuthenticated) ||
		errors.Is(err, whisk.ErrNoCookie) ||
		errors.Is(err, whisk.ErrNoAccessToken) {
		return core.ExitCodeAuth
	}
	return core.ExitCodeError
}
