package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"

	"batchgen/core"
	"batchgen/preflight"
)

type checkOptions struct {
	PromptsFile string
	RefsFile    string
	Quick       bool
}

// runChecks runs the full preflight suite, including backend reachability
// and the credential exchange unless Quick is set.
func (a *app) runChecks(ctx context.Context, opts checkOptions) error {
	in := preflight.Inputs{
		Config:       a.cfg,
		PromptsFile:  opts.PromptsFile,
		ManifestFile: opts.RefsFile,
	}
	if be, err := newBackend(a.cfg, a.logger); err == nil {
		in.Authenticate = be.authenticate
	}

	result := preflight.NewSuite("batchgen check").
		WithOutput(a.stdout).
		WithQuick(opts.Quick).
		WithTimeout(a.cfg.RequestTimeout).
		Run(ctx, preflight.Checks(in))
	if result.Success {
		return nil
	}
	return withExitCode(core.ExitCodeConfig, errors.Join(result.Errors()...))
}

// checkAuth validates the credential and prints how long it lasts.
func (a *app) checkAuth(ctx context.Context) error {
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	be, err := newBackend(a.cfg, a.logger)
	if err != nil {
		return err
	}
	msg, err := be.authenticate(ctx)
	if err != nil {
		return withExitCode(core.ExitCodeAuth, fmt.Errorf("authentication failed: %w", err))
	}
	color.New(color.FgGreen).Fprintf(a.stdout, "✓ %s: %s\n", be.name, msg)
	return nil
}
