package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonathan/kids-video-pipeline/internal/config"
	"github.com/jonathan/kids-video-pipeline/internal/pipeline"
	"github.com/jonathan/kids-video-pipeline/internal/types"
	"github.com/spf13/cobra"
)

var (
	runVariant     string
	runNoUpload    bool
	runOutputDir   string
	runDatabaseURL string
	runVerbose     bool
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Generate and publish one video in every language",
	Long: `Run the full pipeline once: pick a topic, write and translate the story,
generate shared illustrations, then render, upload and record a video per
configured language. A language that fails does not stop the others.`,
	RunE: runPipelineCmd,
}

func init() {
	runCommand.Flags().StringVar(&runVariant, "variant", "plain", "Pipeline variant: plain, shorts, poem, lullaby or animated")
	runCommand.Flags().BoolVar(&runNoUpload, "no-upload", false, "Render everything but skip publishing")
	runCommand.Flags().StringVar(&runOutputDir, "output-dir", "", "Override output_dir from config")
	runCommand.Flags().StringVar(&runDatabaseURL, "db-url", "", "Override database URL (sqlite path or postgres URL)")
	runCommand.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print each step as it completes")

	rootCmd.AddCommand(runCommand)
}

func runPipelineCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyRunOverrides(cmd, cfg)

	variant, err := pipeline.ParseVariant(runVariant)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	summary, err := runOnce(ctx, cfg, variant, !runNoUpload, out, runVerbose)
	if summary != nil {
		fmt.Fprintf(out, "Run %s finished: %d/%d languages published (%s)\n",
			summary.RunID, summary.Succeeded(), len(summary.Languages), summary.RunDir)
	}
	return err
}

func applyRunOverrides(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("output-dir") {
		cfg.OutputDir = runOutputDir
	}
	if cmd.Flags().Changed("db-url") {
		cfg.SetDatabaseURL(runDatabaseURL)
	}
}

// runOnce executes one orchestrator run. Both run and schedule use it.
func runOnce(ctx context.Context, cfg *config.Config, variant pipeline.Variant, upload bool, out io.Writer, verbose bool) (*types.RunSummary, error) {
	mode := youTubeOff
	switch {
	case upload:
		mode = youTubeRequired
	case cfg.Analytics.Enabled:
		mode = youTubeOptional
	}
	svc, err := newServices(ctx, cfg, mode)
	if err != nil {
		return nil, err
	}
	defer svc.Close()

	var printTo io.Writer
	if verbose {
		printTo = out
	}
	deps, err := svc.deps(variant, printTo)
	if err != nil {
		return nil, err
	}
	orch, err := pipeline.New(cfg, deps)
	if err != nil {
		return nil, err
	}

	opts := pipeline.Options{Variant: variant, Upload: upload}
	if verbose {
		opts.OnProgress = func(e pipeline.ProgressEvent) {
			fmt.Fprintf(out, "  %-22s %s\n", e.Step, e.Status)
		}
	}
	return orch.Run(ctx, opts)
}
