package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var analyticsCommand = &cobra.Command{
	Use:   "analytics",
	Short: "Fetch metrics for matured uploads and refresh topic scores",
	RunE:  runAnalyticsCmd,
}

func init() {
	rootCmd.AddCommand(analyticsCommand)
}

func runAnalyticsCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	svc, err := newServices(ctx, cfg, youTubeRequired)
	if err != nil {
		return err
	}
	defer svc.Close()

	loop := svc.analytics()
	fetched, err := loop.FetchPending(ctx)
	if err != nil {
		return err
	}
	scored, err := loop.UpdateTopicScores(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Fetched metrics for %d videos, refreshed scores from %d\n", fetched, scored)
	return nil
}
