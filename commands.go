package main

import (
	"github.com/spf13/cobra"

	"batchgen/core"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:               "batchgen",
		Short:             "Generate images for every prompt in a file",
		Version:           core.GetVersionInfo(),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.AddCommand(
		newRunCmd(a),
		newRetryCmd(a),
		newHistoryCmd(a),
		newAuthCmd(a),
		newCheckCmd(a),
	)
	return root
}

func newRunCmd(a *app) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate images for a prompt file",
		Long: `Reads one prompt per line (or a YAML list, or the text of a PDF), picks
matching references from the manifest for each prompt, and saves every
generated image to the output directory.

Ctrl+C stops after the current image; press it again to exit at once.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runBatch(cmd.Context(), opts)
		},
	}
	addRunFlags(cmd, &opts)
	cmd.Flags().StringVarP(&opts.PromptsFile, "prompts", "p", "", "prompt file (.txt, .yaml or .pdf)")
	cmd.MarkFlagRequired("prompts")
	return cmd
}

func newRetryCmd(a *app) *cobra.Command {
	var opts runOptions
	var runID string
	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Re-run the failed rows of a recorded run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.retryRun(cmd.Context(), runID, opts)
		},
	}
	addRunFlags(cmd, &opts)
	cmd.Flags().StringVar(&runID, "run", "", "id of the run to retry")
	cmd.MarkFlagRequired("run")
	return cmd
}

// addRunFlags registers the overrides shared by run and retry. Zero values
// leave the configured setting alone.
func addRunFlags(cmd *cobra.Command, opts *runOptions) {
	f := cmd.Flags()
	f.StringVar(&opts.RefsFile, "refs", "", "reference manifest (.yaml)")
	f.IntVarP(&opts.Images, "images", "n", 0, "images per prompt (1-8)")
	f.StringVar(&opts.Ratio, "ratio", "", "aspect ratio: landscape, portrait or square")
	f.StringVarP(&opts.OutDir, "out", "o", "", "output directory")
	f.StringVar(&opts.Backend, "backend", "", "generation backend: whisk or openai")
	f.BoolVar(&opts.NoPreview, "no-preview", false, "skip the reference selection preview")
	f.IntVar(&opts.RetryFailed, "retry-failed", 0, "retry failed rows up to this many times before exiting")
}

func newHistoryCmd(a *app) *cobra.Command {
	var limit, pruneDays int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.showHistory(cmd.Context(), limit, pruneDays)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of runs to show")
	cmd.Flags().IntVar(&pruneDays, "prune", 0, "first delete finished runs older than this many days")
	return cmd
}

func newAuthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Check the configured credential and print its expiry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.checkAuth(cmd.Context())
		},
	}
}

func newCheckCmd(a *app) *cobra.Command {
	var in checkOptions
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify configuration, inputs and backend access without generating",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runChecks(cmd.Context(), in)
		},
	}
	cmd.Flags().StringVarP(&in.PromptsFile, "prompts", "p", "", "prompt file to check")
	cmd.Flags().StringVar(&in.RefsFile, "refs", "", "reference manifest to check")
	cmd.Flags().BoolVar(&in.Quick, "quick", false, "skip network checks")
	return cmd
}
