package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestDB opens a migrated SQLite store in a temp dir with a fixed clock.
func newTestDB(t *testing.T) (*DB, *time.Time) {
	t.Helper()
	d, err := Open(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(d.Close)

	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }
	return d, &now
}

func TestRebind(t *testing.T) {
	assert.Equal(t, "SELECT 1", rebind("SELECT 1"))
	assert.Equal(t, "UPDATE t SET a = $1 WHERE id = $2", rebind("UPDATE t SET a = ? WHERE id = ?"))
}

func TestOnlineAverage(t *testing.T) {
	assert.InDelta(t, 150.0, OnlineAverage(100, 1, 200), 1e-9)
	assert.InDelta(t, 50.0, OnlineAverage(0, 0, 50), 1e-9)
	assert.InDelta(t, (30.0*4+80)/5, OnlineAverage(30, 4, 80), 1e-9)
}

func TestCompositeScore(t *testing.T) {
	// 1000 views * 0.3 + 0.05 CTR * 0.7 * 10000
	assert.InDelta(t, 300.0+350.0, CompositeScore(1000, 0.05), 1e-9)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "x")
	assert.Error(t, err)
}

func TestMigrate_Idempotent(t *testing.T) {
	d, _ := newTestDB(t)
	require.NoError(t, d.Migrate(context.Background()))
	assert.Equal(t, DriverSQLite, d.Driver())
}

func TestVideoCRUD(t *testing.T) {
	d, now := newTestDB(t)
	ctx := context.Background()

	v := &Video{
		VideoID:     "yt123",
		Platform:    PlatformYouTube,
		Language:    "en",
		Topic:       "Why do cats purr?",
		Category:    "animals",
		Title:       "Why Cats Purr",
		RunDir:      "output/run_1",
		ABVariantID: 7,
	}
	id, err := d.InsertVideo(ctx, v)
	require.NoError(t, err)
	assert.NotZero(t, id)
	assert.Equal(t, id, v.ID)

	got, err := d.GetVideo(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "yt123", got.VideoID)
	assert.Equal(t, int64(7), got.ABVariantID)
	assert.True(t, now.Equal(got.UploadedAt))
	assert.Empty(t, got.ShortsVideoID)

	require.NoError(t, d.UpdateVideoShorts(ctx, id, "short1"))
	require.NoError(t, d.UpdateVideoReel(ctx, id, "ig1"))
	require.NoError(t, d.UpdateVideoPlaylist(ctx, id, "PL1"))

	got, err = d.GetVideo(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "short1", got.ShortsVideoID)
	assert.Equal(t, "ig1", got.IGMediaID)
	assert.Equal(t, "PL1", got.PlaylistID)

	assert.Error(t, d.UpdateVideoShorts(ctx, 9999, "x"))

	missing, err := d.GetVideo(ctx, 9999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCountAndListVideos(t *testing.T) {
	d, _ := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, vid := range []string{"a", "b", "c"} {
		_, err := d.InsertVideo(ctx, &Video{
			VideoID: vid, Platform: PlatformYouTube, Language: "es", Category: "space",
			UploadedAt: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}
	_, err := d.InsertVideo(ctx, &Video{VideoID: "d", Platform: PlatformYouTube, Language: "en", Category: "space"})
	require.NoError(t, err)

	n, err := d.CountVideos(ctx, "space", "es", PlatformYouTube)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	refs, err := d.ListVideos(ctx, "space", "es", PlatformYouTube)
	require.NoError(t, err)
	require.Len(t, refs, 3)
	for i, want := range []string{"a", "b", "c"} {
		assert.Equal(t, want, refs[i].VideoID)
		v, err := d.GetVideo(ctx, refs[i].ID)
		require.NoError(t, err)
		assert.Equal(t, want, v.VideoID)
	}
}

func TestPendingAnalytics_Watermark(t *testing.T) {
	d, _ := newTestDB(t)
	ctx := context.Background()

	uploaded := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	delay := 48 * time.Hour
	_, err := d.InsertVideo(ctx, &Video{VideoID: "old", Platform: PlatformYouTube, Language: "en", UploadedAt: uploaded})
	require.NoError(t, err)
	// Too recent to be pending.
	_, err = d.InsertVideo(ctx, &Video{VideoID: "fresh", Platform: PlatformYouTube, Language: "en", UploadedAt: uploaded.Add(5 * 24 * time.Hour)})
	require.NoError(t, err)

	now := uploaded.Add(3 * 24 * time.Hour)
	cutoff := now.Add(-delay)

	pending, err := d.PendingAnalytics(ctx, cutoff, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "old", pending[0].VideoID)

	// A metric fetched before the cutoff does not clear the watermark.
	_, err = d.InsertMetric(ctx, &Metric{VideoID: "old", Platform: PlatformYouTube, Views: 5, FetchedAt: cutoff.Add(-time.Hour)})
	require.NoError(t, err)
	pending, err = d.PendingAnalytics(ctx, cutoff, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	_, err = d.InsertMetric(ctx, &Metric{VideoID: "old", Platform: PlatformYouTube, Views: 50, FetchedAt: now})
	require.NoError(t, err)
	pending, err = d.PendingAnalytics(ctx, cutoff, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPendingAnalytics_Limit(t *testing.T) {
	d, _ := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		_, err := d.InsertVideo(ctx, &Video{VideoID: string(rune('a' + i)), Platform: PlatformYouTube, Language: "en", UploadedAt: base})
		require.NoError(t, err)
	}
	pending, err := d.PendingAnalytics(ctx, base.Add(time.Hour), 5)
	require.NoError(t, err)
	assert.Len(t, pending, 5)
}

func TestLatestMetrics(t *testing.T) {
	d, _ := newTestDB(t)
	ctx := context.Background()
	t0 := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	_, err := d.InsertVideo(ctx, &Video{VideoID: "v1", Platform: PlatformYouTube, Language: "en", Topic: "Volcanoes", Category: "science"})
	require.NoError(t, err)
	_, err = d.InsertVideo(ctx, &Video{VideoID: "v2", Platform: PlatformYouTube, Language: "en", Topic: "Frogs", Category: "animals"})
	require.NoError(t, err)

	for _, m := range []Metric{
		{VideoID: "v1", Platform: PlatformYouTube, Views: 10, CTR: 0.01, FetchedAt: t0},
		{VideoID: "v1", Platform: PlatformYouTube, Views: 90, CTR: 0.04, FetchedAt: t0.Add(24 * time.Hour)},
		{VideoID: "v2", Platform: PlatformYouTube, Views: 40, CTR: 0.02, FetchedAt: t0},
	} {
		m := m
		_, err := d.InsertMetric(ctx, &m)
		require.NoError(t, err)
	}

	latest, err := d.LatestMetric(ctx, "v1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, int64(90), latest.Views)

	none, err := d.LatestMetric(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, none)

	perf, err := d.LatestMetrics(ctx)
	require.NoError(t, err)
	require.Len(t, perf, 2)
	assert.Equal(t, "Volcanoes", perf[0].Topic)
	assert.Equal(t, int64(90), perf[0].Views)
	assert.Equal(t, int64(40), perf[1].Views)

	best, err := d.BestVideos(ctx, 1)
	require.NoError(t, err)
	require.Len(t, best, 1)
	assert.Equal(t, "v1", best[0].VideoID)

	summary, err := d.PerformanceSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.TotalVideos)
	assert.InDelta(t, 65.0, summary.AvgViews, 1e-9)
	assert.InDelta(t, 0.03, summary.AvgCTR, 1e-9)
}

func TestPerformanceSummary_Empty(t *testing.T) {
	d, _ := newTestDB(t)
	summary, err := d.PerformanceSummary(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.TotalVideos)
	assert.Zero(t, summary.AvgViews)
}

func TestUpsertTopicScore_OnlineAverage(t *testing.T) {
	d, _ := newTestDB(t)
	ctx := context.Background()

	first, err := d.UpsertTopicScore(ctx, "Rainbows", "science", 100, 0.02)
	require.NoError(t, err)
	assert.Equal(t, 1, first.TimesUsed)
	assert.InDelta(t, CompositeScore(100, 0.02), first.LastScore, 1e-9)

	observations := []struct{ views, ctr float64 }{{300, 0.05}, {20, 0.01}, {1000, 0.08}}
	prev := first
	for _, o := range observations {
		got, err := d.UpsertTopicScore(ctx, "Rainbows", "science", o.views, o.ctr)
		require.NoError(t, err)

		n := float64(prev.TimesUsed)
		assert.InDelta(t, (prev.AvgViews*n+o.views)/(n+1), got.AvgViews, 1e-9)
		assert.InDelta(t, (prev.AvgCTR*n+o.ctr)/(n+1), got.AvgCTR, 1e-12)
		assert.Equal(t, prev.TimesUsed+1, got.TimesUsed)
		assert.InDelta(t, CompositeScore(got.AvgViews, got.AvgCTR), got.LastScore, 1e-9)
		prev = got
	}

	stored, err := d.GetTopicScore(ctx, "Rainbows")
	require.NoError(t, err)
	assert.Equal(t, 4, stored.TimesUsed)
	assert.InDelta(t, prev.AvgViews, stored.AvgViews, 1e-9)

	missing, err := d.GetTopicScore(ctx, "Unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestTopCategories(t *testing.T) {
	d, _ := newTestDB(t)
	ctx := context.Background()

	_, err := d.UpsertTopicScore(ctx, "Sharks", "ocean", 1000, 0.05)
	require.NoError(t, err)
	_, err = d.UpsertTopicScore(ctx, "Whales", "ocean", 10, 0.01)
	require.NoError(t, err)
	_, err = d.UpsertTopicScore(ctx, "Counting", "math", 5, 0.001)
	require.NoError(t, err)

	cats, err := d.TopCategories(ctx, 5)
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, "ocean", cats[0].Category)
	assert.Equal(t, int64(2), cats[0].TotalUses)
	assert.Equal(t, "math", cats[1].Category)
}

func TestABVariants(t *testing.T) {
	d, _ := newTestDB(t)
	ctx := context.Background()

	id, err := d.InsertABVariant(ctx, &ABVariant{VariantType: "curiosity", VariantData: `{"title":"What?"}`})
	require.NoError(t, err)

	v, err := d.GetABVariant(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, int64(0), v.VideoDBID)
	assert.Zero(t, v.CTR)
	assert.False(t, v.IsWinner)
	assert.Nil(t, v.RecordedAt)

	require.NoError(t, d.RecordABVariantResult(ctx, id, 0.07, true))
	v, err = d.GetABVariant(ctx, id)
	require.NoError(t, err)
	assert.InDelta(t, 0.07, v.CTR, 1e-12)
	assert.True(t, v.IsWinner)
	require.NotNil(t, v.RecordedAt)

	err = d.RecordABVariantResult(ctx, id, 0.5, false)
	assert.ErrorIs(t, err, ErrResultRecorded)

	err = d.RecordABVariantResult(ctx, 4242, 0.1, false)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrResultRecorded)
}

func TestVariantTypeRanking(t *testing.T) {
	d, _ := newTestDB(t)
	ctx := context.Background()

	record := func(style string, ctr float64) {
		id, err := d.InsertABVariant(ctx, &ABVariant{VariantType: style, VariantData: "{}"})
		require.NoError(t, err)
		if ctr > 0 {
			require.NoError(t, d.RecordABVariantResult(ctx, id, ctr, false))
		}
	}
	record("curiosity", 0.02)
	record("curiosity", 0.04)
	record("excitement", 0.08)
	record("educational", 0)

	n, err := d.CountScoredVariants(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	ranking, err := d.VariantTypeRanking(ctx)
	require.NoError(t, err)
	require.Len(t, ranking, 2)
	assert.Equal(t, "excitement", ranking[0].VariantType)
	assert.Equal(t, "curiosity", ranking[1].VariantType)
	assert.InDelta(t, 0.03, ranking[1].AvgCTR, 1e-12)
	assert.Equal(t, int64(2), ranking[1].Samples)
}

func TestPlaylists(t *testing.T) {
	d, _ := newTestDB(t)
	ctx := context.Background()

	p, err := d.GetPlaylist(ctx, "animals", "en", PlatformYouTube)
	require.NoError(t, err)
	assert.Nil(t, p)

	_, err = d.InsertPlaylist(ctx, &Playlist{
		PlaylistID: "PLabc", Platform: PlatformYouTube, Language: "en", Category: "animals", Title: "Animals for Kids - English",
	})
	require.NoError(t, err)

	require.NoError(t, d.IncrementPlaylistCount(ctx, "PLabc"))
	require.NoError(t, d.IncrementPlaylistCount(ctx, "PLabc"))

	p, err = d.GetPlaylist(ctx, "animals", "en", PlatformYouTube)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 2, p.VideoCount)
	assert.Equal(t, "Animals for Kids - English", p.Title)

	assert.Error(t, d.IncrementPlaylistCount(ctx, "missing"))
}

func TestQuotaUsage(t *testing.T) {
	d, now := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, d.LogQuotaUsage(ctx, "youtube", 1600))
	require.NoError(t, d.LogQuotaUsage(ctx, "youtube", 50))
	require.NoError(t, d.LogQuotaUsage(ctx, "openai", 1))

	units, err := d.GetQuotaUsage(ctx, "youtube", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1650), units)

	units, err = d.GetQuotaUsage(ctx, "youtube", now.Add(-24*time.Hour).Format(DayLayout))
	require.NoError(t, err)
	assert.Zero(t, units)

	all, err := d.ListQuotaUsage(ctx, "2025-03-10")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "openai", all[0].Provider)
	assert.Equal(t, int64(1650), all[1].UnitsUsed)
}
