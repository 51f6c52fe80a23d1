package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/kids-video-pipeline/internal/config"
)

func noop(context.Context) error { return nil }

func TestWeeklySpec(t *testing.T) {
	spec, err := WeeklySpec([]time.Weekday{time.Friday, time.Monday, time.Wednesday, time.Monday}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, "0 10 * * 1,3,5", spec)

	spec, err = WeeklySpec([]time.Weekday{time.Sunday}, 7, 45)
	require.NoError(t, err)
	assert.Equal(t, "45 7 * * 0", spec)

	_, err = WeeklySpec(nil, 10, 0)
	assert.Error(t, err)
	_, err = WeeklySpec([]time.Weekday{time.Monday}, 24, 0)
	assert.Error(t, err)
}

func TestNew_InvalidTimezone(t *testing.T) {
	_, err := New("Mars/Olympus", time.Hour)
	assert.Error(t, err)
}

func TestAddUploadJob_NextRun(t *testing.T) {
	s, err := FromConfig(config.ScheduleConfig{Timezone: "UTC"})
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, s.timeout)

	require.NoError(t, s.AddUploadJob([]time.Weekday{time.Monday, time.Wednesday, time.Friday}, 10, 0, noop))

	thursday := time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC), s.Next(UploadJob, thursday))

	fridayAfter := time.Date(2026, 10, 16, 11, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC), s.Next(UploadJob, fridayAfter))

	assert.True(t, s.Next("missing", thursday).IsZero())
}

func TestListAndRemoveJobs(t *testing.T) {
	s, err := New("UTC", time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.AddUploadJob([]time.Weekday{time.Monday}, 10, 0, noop))
	require.NoError(t, s.AddAnalyticsJob(6, 0, noop))

	jobs := s.ListJobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, AnalyticsJob, jobs[0].Name)
	assert.Equal(t, UploadJob, jobs[1].Name)

	s.RemoveJob(UploadJob)
	jobs = s.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, AnalyticsJob, jobs[0].Name)
}

func TestAddJob_InvalidSchedule(t *testing.T) {
	s, err := New("UTC", time.Minute)
	require.NoError(t, err)
	assert.Error(t, s.AddJob("bad", "not a schedule", noop))
}

func TestRunNow(t *testing.T) {
	s, err := New("UTC", time.Minute)
	require.NoError(t, err)

	var deadline time.Time
	err = s.RunNow(UploadJob, func(ctx context.Context) error {
		deadline, _ = ctx.Deadline()
		return nil
	})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)

	boom := errors.New("boom")
	assert.ErrorIs(t, s.RunNow(UploadJob, func(context.Context) error { return boom }), boom)
}
