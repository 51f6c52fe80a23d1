package main

import (
	"context"
	"fmt"

	"github.com/jonathan/kids-video-pipeline/internal/db"
	"github.com/jonathan/kids-video-pipeline/internal/observability"
	"github.com/spf13/cobra"
)

var reportCommand = &cobra.Command{
	Use:   "report",
	Short: "Print the channel performance report",
	RunE:  runReportCmd,
}

func init() {
	rootCmd.AddCommand(reportCommand)
}

func runReportCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	svc, err := newServices(ctx, cfg, youTubeOff)
	if err != nil {
		return err
	}
	defer svc.Close()

	loop := svc.analytics()
	a, err := loop.Analyze(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	observability.NewPrinter(out).PrintAnalysis(a.TopCategories, &db.PerformanceSummary{
		AvgViews:    a.AvgViews,
		AvgCTR:      a.AvgCTR,
		TotalVideos: a.TotalVideos,
	}, a.BestVideos, a.Recommendations)

	if hints := loop.Hints(ctx); hints != "" {
		fmt.Fprintf(out, "\nTopic prompt hints:\n%s\n", hints)
	}
	return nil
}
