package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonathan/kids-video-pipeline/internal/config"
	"github.com/jonathan/kids-video-pipeline/internal/pipeline"
	"github.com/jonathan/kids-video-pipeline/internal/scheduler"
	"github.com/spf13/cobra"
)

// Daily analytics refresh, in the schedule timezone.
const (
	analyticsHour   = 6
	analyticsMinute = 0
)

var (
	scheduleVariant  string
	scheduleNoUpload bool
	scheduleRunNow   bool
)

var scheduleCommand = &cobra.Command{
	Use:   "schedule",
	Short: "Run the pipeline on the configured weekly schedule",
	Long: `Start a long-running scheduler that runs the pipeline on schedule.upload_days
at schedule.upload_time and refreshes analytics every morning. A run that is
still going when the next tick arrives makes that tick a no-op.`,
	RunE: runScheduleCmd,
}

func init() {
	scheduleCommand.Flags().StringVar(&scheduleVariant, "variant", "", "Override schedule.variant from config")
	scheduleCommand.Flags().BoolVar(&scheduleNoUpload, "no-upload", false, "Render scheduled runs without publishing")
	scheduleCommand.Flags().BoolVar(&scheduleRunNow, "now", false, "Run the pipeline once immediately before waiting")

	rootCmd.AddCommand(scheduleCommand)
}

func runScheduleCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("variant") {
		cfg.Schedule.Variant = scheduleVariant
	}
	variant, err := pipeline.ParseVariant(cfg.Schedule.Variant)
	if err != nil {
		return err
	}

	s, err := newSchedule(cfg, variant, !scheduleNoUpload)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if scheduleRunNow {
		if err := s.RunNow(scheduler.UploadJob, uploadJob(cfg, variant, !scheduleNoUpload)); err != nil {
			fmt.Fprintf(out, "Immediate run failed: %v\n", err)
		}
	}

	s.Start()
	for _, job := range s.ListJobs() {
		fmt.Fprintf(out, "Next %s run: %s\n", job.Name, job.NextRun.Format("Mon 2006-01-02 15:04 MST"))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	fmt.Fprintln(out, "Shutting down, waiting for running jobs...")
	<-s.Stop().Done()
	return nil
}

// newSchedule registers the upload job and, when analytics is enabled, the
// daily metrics refresh.
func newSchedule(cfg *config.Config, variant pipeline.Variant, upload bool) (*scheduler.Scheduler, error) {
	days, err := cfg.ScheduleWeekdays()
	if err != nil {
		return nil, err
	}
	hour, minute, err := cfg.ScheduleClock()
	if err != nil {
		return nil, err
	}

	s, err := scheduler.FromConfig(cfg.Schedule)
	if err != nil {
		return nil, err
	}
	if err := s.AddUploadJob(days, hour, minute, uploadJob(cfg, variant, upload)); err != nil {
		return nil, err
	}
	if cfg.Analytics.Enabled {
		if err := s.AddAnalyticsJob(analyticsHour, analyticsMinute, analyticsJob(cfg)); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func uploadJob(cfg *config.Config, variant pipeline.Variant, upload bool) scheduler.Job {
	return func(ctx context.Context) error {
		summary, err := runOnce(ctx, cfg, variant, upload, os.Stdout, false)
		if err != nil {
			return err
		}
		if summary.Succeeded() == 0 && upload {
			return fmt.Errorf("run %s published no languages", summary.RunID)
		}
		return nil
	}
}

func analyticsJob(cfg *config.Config) scheduler.Job {
	return func(ctx context.Context) error {
		svc, err := newServices(ctx, cfg, youTubeRequired)
		if err != nil {
			return err
		}
		defer svc.Close()
		return svc.analytics().Run(ctx)
	}
}
