package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"batchgen/core"
	"batchgen/imagegen"
	"batchgen/logging"
	"batchgen/orchestrator"
	"batchgen/reference"
	"batchgen/whisk"
)

// app holds what every subcommand shares.
type app struct {
	stdout io.Writer
	stderr io.Writer

	cfg    *core.Config
	logger *logging.Logger
}

// setup reads configuration and builds the logger. Validation is left to
// the commands that need a backend.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := core.ReadConfig()
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(logging.Options{
		Development: cfg.DevMode,
		FilePath:    cfg.LogFile,
		Level:       cfg.LogLevel,
	})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}

	a.cfg = cfg
	a.logger = logger
	a.logger.Debug("configuration loaded",
		zap.String("command", cmd.Name()),
		zap.String("backend", cfg.Backend),
		zap.String("output_dir", cfg.OutputDir),
		zap.String("history_db", cfg.HistoryDB),
		zap.Int("images_per_prompt", cfg.ImagesPerPrompt),
		zap.Duration("image_delay", cfg.ImageDelay),
		zap.Duration("row_delay", cfg.RowDelay),
		zap.Bool("dev_mode", cfg.DevMode))
	return nil
}

func (a *app) close() {
	if a.logger != nil {
		a.logger.Sync()
	}
}

// backend is the generation service selected by GENERATION_BACKEND.
type backend struct {
	name   string
	gen    orchestrator.GenerationCapability
	upload reference.UploadCapability
	creds  orchestrator.CredentialSource

	// authenticate proves the credential and describes it for the console.
	authenticate func(ctx context.Context) (string, error)
}

func newBackend(cfg *core.Config, logger *logging.Logger) (*backend, error) {
	switch cfg.Backend {
	case core.BackendOpenAI:
		gen, err := imagegen.NewOpenAIBackend(imagegen.OpenAIConfigFromCore(cfg), logger)
		if err != nil {
			return nil, err
		}
		return &backend{
			name:   core.BackendOpenAI,
			gen:    gen,
			upload: imagegen.LocalUploader{},
			creds:  orchestrator.StaticToken(cfg.OpenAIAPIKey),
			authenticate: func(context.Context) (string, error) {
				return fmt.Sprintf("API key configured (model %s)", gen.Model()), nil
			},
		}, nil

	case core.BackendWhisk:
		client := whisk.NewClient(whisk.ConfigFromCore(cfg), logger)
		return &backend{
			name:   core.BackendWhisk,
			gen:    client,
			upload: reference.NewAssetCache(client, 0, logger),
			creds:  client,
			authenticate: func(ctx context.Context) (string, error) {
				s, err := client.EnsureSession(ctx)
				if err != nil {
					return "", err
				}
				if s.ExpiresAt.IsZero() {
					return "Access token accepted", nil
				}
				return fmt.Sprintf("Token valid until %s (%s left)",
					s.ExpiresAt.Local().Format(time.RFC1123),
					time.Until(s.ExpiresAt).Round(time.Minute)), nil
			},
		}, nil

	default:
		return nil, core.ErrInvalidValue("GENERATION_BACKEND", cfg.Backend, "must be whisk or openai")
	}
}
