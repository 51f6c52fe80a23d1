// Package feedback closes the loop between published videos and future
// runs: it fetches platform statistics, folds them into topic scores, turns
// the scores into prompt hints, and runs the title/hook/thumbnail A/B bandit.
package feedback

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jonathan/kids-video-pipeline/internal/config"
	"github.com/jonathan/kids-video-pipeline/internal/db"
	"github.com/jonathan/kids-video-pipeline/internal/types"
)

// Store is the persistence the analytics loop needs.
type Store interface {
	PendingAnalytics(ctx context.Context, cutoff time.Time, limit int) ([]db.Video, error)
	InsertMetric(ctx context.Context, m *db.Metric) (int64, error)
	LatestMetrics(ctx context.Context) ([]db.VideoPerformance, error)
	UpsertTopicScore(ctx context.Context, topic, category string, views, ctr float64) (*db.TopicScore, error)
	TopCategories(ctx context.Context, limit int) ([]db.CategoryScore, error)
	PerformanceSummary(ctx context.Context) (*db.PerformanceSummary, error)
	BestVideos(ctx context.Context, limit int) ([]db.VideoPerformance, error)
	RecordABVariantResult(ctx context.Context, id int64, ctr float64, isWinner bool) error
}

// StatsSource reads public statistics for one video. A nil result means
// the platform has nothing for that id.
type StatsSource interface {
	VideoStats(ctx context.Context, videoID string) (*types.VideoStats, error)
}

// Analysis summarizes channel performance.
type Analysis struct {
	TopCategories   []db.CategoryScore    `json:"top_categories"`
	AvgViews        float64               `json:"avg_views"`
	AvgCTR          float64               `json:"avg_ctr"`
	TotalVideos     int64                 `json:"total_videos"`
	BestVideos      []db.VideoPerformance `json:"best_videos"`
	Recommendations []string              `json:"recommendations"`
}

// Loop fetches metrics for matured uploads and maintains topic scores.
type Loop struct {
	store Store
	stats StatsSource
	cfg   config.AnalyticsConfig
	now   func() time.Time
}

// NewLoop creates an analytics loop. stats may be nil when only the
// read-side operations (Analyze, Hints) are used.
func NewLoop(store Store, stats StatsSource, cfg config.AnalyticsConfig) *Loop {
	return &Loop{store: store, stats: stats, cfg: cfg, now: time.Now}
}

// SetClock replaces the time source.
func (l *Loop) SetClock(now func() time.Time) { l.now = now }

// PendingVideos returns uploads older than the fetch delay with no metric
// fetched since then.
func (l *Loop) PendingVideos(ctx context.Context) ([]db.Video, error) {
	cutoff := l.now().Add(-l.cfg.FetchDelay())
	videos, err := l.store.PendingAnalytics(ctx, cutoff, l.cfg.FetchLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending analytics: %w", err)
	}
	return videos, nil
}

// FetchPending stores a metric snapshot for each pending YouTube video and
// returns how many were stored. Per-video failures are logged and skipped.
func (l *Loop) FetchPending(ctx context.Context) (int, error) {
	if l.stats == nil {
		return 0, fmt.Errorf("no statistics source configured")
	}
	videos, err := l.PendingVideos(ctx)
	if err != nil {
		return 0, err
	}
	if len(videos) == 0 {
		logf("No videos pending analytics")
		return 0, nil
	}

	stored := 0
	for _, v := range videos {
		if v.Platform != db.PlatformYouTube {
			continue
		}
		stats, err := l.stats.VideoStats(ctx, v.VideoID)
		if err != nil {
			if ctx.Err() != nil {
				return stored, ctx.Err()
			}
			logf("Warning: failed to fetch stats for %s: %v", v.VideoID, err)
			continue
		}
		if stats == nil {
			continue
		}
		if _, err := l.store.InsertMetric(ctx, &db.Metric{
			VideoID:      v.VideoID,
			Platform:     v.Platform,
			Views:        stats.Views,
			Likes:        stats.Likes,
			Comments:     stats.Comments,
			CTR:          stats.CTR,
			Impressions:  stats.Impressions,
			AvgWatchTime: stats.AvgWatchTime,
			FetchedAt:    l.now(),
		}); err != nil {
			return stored, fmt.Errorf("failed to store metric for %s: %w", v.VideoID, err)
		}
		stored++
		logf("%s: %d views, %d likes, %d comments", v.VideoID, stats.Views, stats.Likes, stats.Comments)

		if v.ABVariantID != 0 && stats.CTR > 0 {
			if err := l.store.RecordABVariantResult(ctx, v.ABVariantID, stats.CTR, false); err != nil {
				logf("Warning: variant %d result not recorded: %v", v.ABVariantID, err)
			}
		}
	}
	return stored, nil
}

// UpdateTopicScores feeds every video's latest metric into its topic score.
func (l *Loop) UpdateTopicScores(ctx context.Context) (int, error) {
	latest, err := l.store.LatestMetrics(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load latest metrics: %w", err)
	}
	for _, p := range latest {
		if p.Topic == "" {
			continue
		}
		if _, err := l.store.UpsertTopicScore(ctx, p.Topic, p.Category, float64(p.Views), p.CTR); err != nil {
			return 0, err
		}
	}
	logf("Updated scores from %d videos", len(latest))
	return len(latest), nil
}

// Run fetches pending metrics and then refreshes topic scores.
func (l *Loop) Run(ctx context.Context) error {
	if _, err := l.FetchPending(ctx); err != nil {
		return err
	}
	_, err := l.UpdateTopicScores(ctx)
	return err
}

// Analyze ranks categories and videos and derives recommendations.
func (l *Loop) Analyze(ctx context.Context) (*Analysis, error) {
	top, err := l.store.TopCategories(ctx, 5)
	if err != nil {
		return nil, err
	}
	summary, err := l.store.PerformanceSummary(ctx)
	if err != nil {
		return nil, err
	}
	best, err := l.store.BestVideos(ctx, 5)
	if err != nil {
		return nil, err
	}

	a := &Analysis{
		TopCategories: top,
		AvgViews:      summary.AvgViews,
		AvgCTR:        summary.AvgCTR,
		TotalVideos:   summary.TotalVideos,
		BestVideos:    best,
	}
	if len(top) > 0 {
		a.Recommendations = append(a.Recommendations, fmt.Sprintf("Focus on '%s' content - your top category", top[0].Category))
	}
	if summary.TotalVideos > 0 {
		if summary.AvgViews < 100 {
			a.Recommendations = append(a.Recommendations, "Views are low - try more trending/seasonal topics")
		}
		a.Recommendations = append(a.Recommendations, fmt.Sprintf("Average views per video: %d", int64(summary.AvgViews)))
	}
	return a, nil
}

// Hints renders the analysis for topic prompts. It is empty unless
// analytics is enabled and at least one category has a score.
func (l *Loop) Hints(ctx context.Context) string {
	if !l.cfg.Enabled {
		return ""
	}
	a, err := l.Analyze(ctx)
	if err != nil {
		logf("Warning: performance analysis failed: %v", err)
		return ""
	}
	if len(a.TopCategories) == 0 {
		return ""
	}

	lines := []string{"Based on past performance, these categories work best:"}
	for i, c := range a.TopCategories {
		if i == 3 {
			break
		}
		lines = append(lines, fmt.Sprintf("  - %s (score: %.1f)", c.Category, c.AvgScore))
	}
	if len(a.Recommendations) > 0 {
		lines = append(lines, "Recommendations:")
		for i, r := range a.Recommendations {
			if i == 2 {
				break
			}
			lines = append(lines, "  - "+r)
		}
	}
	return strings.Join(lines, "\n")
}

func logf(format string, args ...any) {
	log.Printf("[feedback] "+format, args...)
}
