// Package scheduler runs pipeline jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jonathan/kids-video-pipeline/internal/config"
)

// DefaultTimeout bounds a single job run.
const DefaultTimeout = 2 * time.Hour

// Job names.
const (
	UploadJob    = "upload"
	AnalyticsJob = "analytics"
)

// Job represents a scheduled task
type Job func(ctx context.Context) error

// Scheduler manages periodic tasks. A job that is still running when its
// next tick arrives is skipped, so pipeline runs never overlap.
type Scheduler struct {
	cron     *cron.Cron
	jobs     map[string]cron.EntryID
	timezone *time.Location
	timeout  time.Duration
}

// New creates a new scheduler with the given timezone
func New(timezone string, timeout time.Duration) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", timezone, err)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	logger := cron.PrintfLogger(log.New(log.Writer(), "[scheduler] ", log.Flags()))
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	return &Scheduler{
		cron:     c,
		jobs:     make(map[string]cron.EntryID),
		timezone: loc,
		timeout:  timeout,
	}, nil
}

// FromConfig creates a scheduler from the schedule section.
func FromConfig(cfg config.ScheduleConfig) (*Scheduler, error) {
	return New(cfg.Timezone, cfg.Timeout)
}

// AddJob adds a job with a cron schedule
// schedule format: "0 10 * * 1,3,5" (at 10:00 on Monday, Wednesday and Friday)
func (s *Scheduler) AddJob(name, schedule string, job Job) error {
	entryID, err := s.cron.AddFunc(schedule, func() {
		if err := s.run(name, job); err != nil {
			log.Printf("[scheduler] Job %s failed: %v", name, err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	s.jobs[name] = entryID
	log.Printf("[scheduler] Added job: %s (schedule: %s)", name, schedule)
	return nil
}

// AddUploadJob schedules the pipeline on the configured weekdays and time.
func (s *Scheduler) AddUploadJob(days []time.Weekday, hour, minute int, job Job) error {
	spec, err := WeeklySpec(days, hour, minute)
	if err != nil {
		return err
	}
	return s.AddJob(UploadJob, spec, job)
}

// AddAnalyticsJob schedules the analytics refresh once a day.
func (s *Scheduler) AddAnalyticsJob(hour, minute int, job Job) error {
	return s.AddJob(AnalyticsJob, fmt.Sprintf("%d %d * * *", minute, hour), job)
}

// WeeklySpec builds a five-field cron expression firing at hour:minute on
// each of days.
func WeeklySpec(days []time.Weekday, hour, minute int) (string, error) {
	if len(days) == 0 {
		return "", fmt.Errorf("no upload days")
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid time %02d:%02d", hour, minute)
	}
	seen := map[time.Weekday]bool{}
	nums := make([]int, 0, len(days))
	for _, d := range days {
		if !seen[d] {
			seen[d] = true
			nums = append(nums, int(d))
		}
	}
	sort.Ints(nums)
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = strconv.Itoa(n)
	}
	return fmt.Sprintf("%d %d * * %s", minute, hour, strings.Join(parts, ",")), nil
}

// RemoveJob removes a scheduled job
func (s *Scheduler) RemoveJob(name string) {
	if entryID, ok := s.jobs[name]; ok {
		s.cron.Remove(entryID)
		delete(s.jobs, name)
		log.Printf("[scheduler] Removed job: %s", name)
	}
}

// Start begins running scheduled jobs
func (s *Scheduler) Start() {
	log.Println("[scheduler] Starting scheduler")
	s.cron.Start()
}

// Stop halts the scheduler. The returned context is done once running jobs
// have finished.
func (s *Scheduler) Stop() context.Context {
	log.Println("[scheduler] Stopping scheduler")
	return s.cron.Stop()
}

// RunNow immediately executes a job
func (s *Scheduler) RunNow(name string, job Job) error {
	log.Printf("[scheduler] Running job now: %s", name)
	return s.run(name, job)
}

func (s *Scheduler) run(name string, job Job) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	log.Printf("[scheduler] Starting job: %s", name)
	start := time.Now()
	if err := job(ctx); err != nil {
		return err
	}
	log.Printf("[scheduler] Job %s completed in %v", name, time.Since(start).Round(time.Second))
	return nil
}

// ListJobs returns info about scheduled jobs, ordered by name
func (s *Scheduler) ListJobs() []JobInfo {
	entries := s.cron.Entries()
	infos := make([]JobInfo, 0, len(entries))

	for name, entryID := range s.jobs {
		for _, entry := range entries {
			if entry.ID == entryID {
				infos = append(infos, JobInfo{
					Name:    name,
					NextRun: entry.Next,
					LastRun: entry.Prev,
				})
				break
			}
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Next returns the next time a job fires after t, or the zero time when it
// is not scheduled.
func (s *Scheduler) Next(name string, t time.Time) time.Time {
	entryID, ok := s.jobs[name]
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(entryID).Schedule.Next(t.In(s.timezone))
}

// JobInfo contains information about a scheduled job
type JobInfo struct {
	Name    string
	NextRun time.Time
	LastRun time.Time
}
