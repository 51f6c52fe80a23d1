package db

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// -----------------------------------------------------------------------------
// Metric Methods
// -----------------------------------------------------------------------------

// InsertMetric appends a statistics snapshot. A zero FetchedAt is stamped with
// the current time.
func (db *DB) InsertMetric(ctx context.Context, m *Metric) (int64, error) {
	m.FetchedAt = db.stamp(m.FetchedAt)

	var id int64
	err := db.b.QueryRow(ctx,
		`INSERT INTO metrics (video_id, platform, views, likes, comments, ctr, avg_watch_time, impressions, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 RETURNING id`,
		m.VideoID, m.Platform, m.Views, m.Likes, m.Comments, m.CTR, m.AvgWatchTime, m.Impressions,
		db.b.Time(m.FetchedAt),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert metric: %w", err)
	}
	m.ID = id
	return id, nil
}

// LatestMetric returns the most recent snapshot for an external video id.
func (db *DB) LatestMetric(ctx context.Context, videoID string) (*Metric, error) {
	var m Metric
	var fetched nullTime
	err := db.b.QueryRow(ctx,
		`SELECT id, video_id, platform, views, likes, comments, ctr, avg_watch_time, impressions, fetched_at
		 FROM metrics WHERE video_id = ?
		 ORDER BY fetched_at DESC, id DESC LIMIT 1`,
		videoID,
	).Scan(&m.ID, &m.VideoID, &m.Platform, &m.Views, &m.Likes, &m.Comments, &m.CTR,
		&m.AvgWatchTime, &m.Impressions, &fetched)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest metric: %w", err)
	}
	m.FetchedAt = fetched.Time
	return &m, nil
}

// latestMetricJoin selects each video joined to its newest metric row.
const latestMetricJoin = `
	FROM videos v
	JOIN metrics m ON v.video_id = m.video_id
	WHERE m.fetched_at = (
		SELECT MAX(m2.fetched_at) FROM metrics m2 WHERE m2.video_id = m.video_id
	)`

// LatestMetrics returns one row per video with its most recent snapshot.
func (db *DB) LatestMetrics(ctx context.Context) ([]VideoPerformance, error) {
	return db.queryPerformance(ctx,
		`SELECT v.video_id, v.topic, v.category, v.language, v.title, m.views, m.ctr, m.fetched_at`+
			latestMetricJoin+` ORDER BY v.id ASC`)
}

// BestVideos returns the most viewed videos by their latest snapshot.
func (db *DB) BestVideos(ctx context.Context, limit int) ([]VideoPerformance, error) {
	if limit <= 0 {
		limit = 5
	}
	return db.queryPerformance(ctx,
		`SELECT v.video_id, v.topic, v.category, v.language, v.title, m.views, m.ctr, m.fetched_at`+
			latestMetricJoin+` ORDER BY m.views DESC, v.id ASC LIMIT ?`, limit)
}

func (db *DB) queryPerformance(ctx context.Context, query string, args ...any) ([]VideoPerformance, error) {
	rows, err := db.b.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query video performance: %w", err)
	}
	defer rows.Close()

	var out []VideoPerformance
	for rows.Next() {
		var p VideoPerformance
		var fetched nullTime
		if err := rows.Scan(&p.VideoID, &p.Topic, &p.Category, &p.Language, &p.Title, &p.Views, &p.CTR, &fetched); err != nil {
			return nil, fmt.Errorf("failed to scan video performance: %w", err)
		}
		p.FetchedAt = fetched.Time
		out = append(out, p)
	}
	return out, rows.Err()
}

// PendingAnalytics returns uploaded videos older than cutoff that have no
// metric fetched after cutoff. It is a watermark query: once a snapshot newer
// than cutoff exists the video drops out. limit <= 0 means no limit.
func (db *DB) PendingAnalytics(ctx context.Context, cutoff time.Time, limit int) ([]Video, error) {
	query := `SELECT ` + prefixed("v.", videoColumns) + `
		FROM videos v
		WHERE v.upload_date < ?
		  AND v.video_id IS NOT NULL
		  AND NOT EXISTS (
		      SELECT 1 FROM metrics m
		      WHERE m.video_id = v.video_id AND m.fetched_at > ?
		  )
		ORDER BY v.upload_date ASC, v.id ASC`
	ts := db.b.Time(cutoff)
	args := []any{ts, ts}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.b.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending analytics: %w", err)
	}
	defer rows.Close()

	var videos []Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending video: %w", err)
		}
		videos = append(videos, *v)
	}
	return videos, rows.Err()
}

// PerformanceSummary averages every video's latest snapshot.
func (db *DB) PerformanceSummary(ctx context.Context) (*PerformanceSummary, error) {
	var s PerformanceSummary
	err := db.b.QueryRow(ctx,
		`SELECT COALESCE(AVG(CAST(m.views AS DOUBLE PRECISION)), 0),
		        COALESCE(AVG(CAST(m.ctr AS DOUBLE PRECISION)), 0),
		        COUNT(*)`+latestMetricJoin,
	).Scan(&s.AvgViews, &s.AvgCTR, &s.TotalVideos)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize performance: %w", err)
	}
	return &s, nil
}

func prefixed(prefix, columns string) string {
	fields := strings.Split(columns, ",")
	for i, f := range fields {
		fields[i] = prefix + strings.TrimSpace(f)
	}
	return strings.Join(fields, ", ")
}
