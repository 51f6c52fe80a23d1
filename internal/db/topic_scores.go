package db

import (
	"context"
	"fmt"
)

// Composite score weights. CTR is scaled so both terms land on comparable ranges.
const (
	viewsWeight = 0.3
	ctrWeight   = 0.7
	ctrScale    = 10000
)

// OnlineAverage folds value into an average over n prior observations.
func OnlineAverage(old float64, n int, value float64) float64 {
	return (old*float64(n) + value) / float64(n+1)
}

// CompositeScore combines average views and CTR into one ranking score.
func CompositeScore(avgViews, avgCTR float64) float64 {
	return avgViews*viewsWeight + avgCTR*ctrWeight*ctrScale
}

// -----------------------------------------------------------------------------
// Topic Score Methods
// -----------------------------------------------------------------------------

// UpsertTopicScore folds one observation into the topic's running averages.
// The read and write happen in one transaction.
func (db *DB) UpsertTopicScore(ctx context.Context, topic, category string, views, ctr float64) (*TopicScore, error) {
	var out *TopicScore
	err := db.withTx(ctx, func(q querier) error {
		existing, err := getTopicScore(ctx, q, topic)
		if err != nil {
			return err
		}
		now := db.now().UTC()

		if existing == nil {
			s := &TopicScore{
				Topic:     topic,
				Category:  category,
				AvgViews:  views,
				AvgCTR:    ctr,
				TimesUsed: 1,
				LastScore: CompositeScore(views, ctr),
				UpdatedAt: now,
			}
			err := q.QueryRow(ctx,
				`INSERT INTO topic_scores (topic, category, avg_views, avg_ctr, times_used, last_score, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?)
				 RETURNING id`,
				s.Topic, s.Category, s.AvgViews, s.AvgCTR, s.TimesUsed, s.LastScore, db.b.Time(now),
			).Scan(&s.ID)
			if err != nil {
				return fmt.Errorf("failed to insert topic score: %w", err)
			}
			out = s
			return nil
		}

		n := existing.TimesUsed
		s := *existing
		s.AvgViews = OnlineAverage(existing.AvgViews, n, views)
		s.AvgCTR = OnlineAverage(existing.AvgCTR, n, ctr)
		s.TimesUsed = n + 1
		s.LastScore = CompositeScore(s.AvgViews, s.AvgCTR)
		s.UpdatedAt = now
		if _, err := q.Exec(ctx,
			`UPDATE topic_scores
			 SET avg_views = ?, avg_ctr = ?, times_used = ?, last_score = ?, updated_at = ?
			 WHERE id = ?`,
			s.AvgViews, s.AvgCTR, s.TimesUsed, s.LastScore, db.b.Time(now), s.ID,
		); err != nil {
			return fmt.Errorf("failed to update topic score: %w", err)
		}
		out = &s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetTopicScore retrieves the aggregate for a topic.
func (db *DB) GetTopicScore(ctx context.Context, topic string) (*TopicScore, error) {
	return getTopicScore(ctx, db.b, topic)
}

func getTopicScore(ctx context.Context, q querier, topic string) (*TopicScore, error) {
	var s TopicScore
	var updated nullTime
	err := q.QueryRow(ctx,
		`SELECT id, topic, category, avg_views, avg_ctr, times_used, last_score, updated_at
		 FROM topic_scores WHERE topic = ?`,
		topic,
	).Scan(&s.ID, &s.Topic, &s.Category, &s.AvgViews, &s.AvgCTR, &s.TimesUsed, &s.LastScore, &updated)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get topic score: %w", err)
	}
	s.UpdatedAt = updated.Time
	return &s, nil
}

// TopCategories ranks categories by the mean last score of their topics.
func (db *DB) TopCategories(ctx context.Context, limit int) ([]CategoryScore, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := db.b.Query(ctx,
		`SELECT category, AVG(CAST(last_score AS DOUBLE PRECISION)) AS avg_score, SUM(times_used) AS total_uses
		 FROM topic_scores
		 GROUP BY category
		 ORDER BY avg_score DESC, category ASC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get top categories: %w", err)
	}
	defer rows.Close()

	var out []CategoryScore
	for rows.Next() {
		var c CategoryScore
		if err := rows.Scan(&c.Category, &c.AvgScore, &c.TotalUses); err != nil {
			return nil, fmt.Errorf("failed to scan category score: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
