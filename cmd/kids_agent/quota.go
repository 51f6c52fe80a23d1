package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jonathan/kids-video-pipeline/internal/db"
	"github.com/jonathan/kids-video-pipeline/internal/observability"
	"github.com/spf13/cobra"
)

var (
	quotaProvider string
	quotaDate     string
)

var quotaCommand = &cobra.Command{
	Use:   "quota",
	Short: "Show API quota units used per provider",
	Long:  `Show quota units recorded per provider for one UTC day (default today).`,
	RunE:  runQuotaCmd,
}

func init() {
	quotaCommand.Flags().StringVar(&quotaProvider, "provider", "", "Only show this provider (e.g. youtube)")
	quotaCommand.Flags().StringVar(&quotaDate, "date", "", "Day to show, YYYY-MM-DD (default today, UTC)")

	rootCmd.AddCommand(quotaCommand)
}

func runQuotaCmd(cmd *cobra.Command, _ []string) error {
	day := quotaDate
	if day == "" {
		day = time.Now().UTC().Format(db.DayLayout)
	} else if _, err := time.Parse(db.DayLayout, day); err != nil {
		return fmt.Errorf("invalid --date %q: want YYYY-MM-DD", day)
	}

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

	var usage []db.QuotaUsage
	if quotaProvider != "" {
		units, err := svc.store.GetQuotaUsage(ctx, quotaProvider, day)
		if err != nil {
			return err
		}
		usage = []db.QuotaUsage{{Provider: quotaProvider, Day: day, UnitsUsed: units}}
	} else {
		usage, err = svc.store.ListQuotaUsage(ctx, day)
		if err != nil {
			return err
		}
	}
	observability.NewPrinter(cmd.OutOrStdout()).PrintQuota(day, usage)
	return nil
}
