package db

import (
	"context"
	"fmt"
)

// DayLayout formats quota days.
const DayLayout = "2006-01-02"

// -----------------------------------------------------------------------------
// Quota Methods
// -----------------------------------------------------------------------------

// LogQuotaUsage adds units to today's (UTC) counter for provider.
func (db *DB) LogQuotaUsage(ctx context.Context, provider string, units int) error {
	day := db.now().UTC().Format(DayLayout)
	_, err := db.b.Exec(ctx,
		`INSERT INTO quota_usage (provider, day, units_used) VALUES (?, ?, ?)
		 ON CONFLICT (provider, day) DO UPDATE SET units_used = quota_usage.units_used + excluded.units_used`,
		provider, day, int64(units),
	)
	if err != nil {
		return fmt.Errorf("failed to log quota usage: %w", err)
	}
	return nil
}

// GetQuotaUsage returns units used by provider on day (YYYY-MM-DD). An empty
// day means today.
func (db *DB) GetQuotaUsage(ctx context.Context, provider, day string) (int64, error) {
	if day == "" {
		day = db.now().UTC().Format(DayLayout)
	}
	var units int64
	err := db.b.QueryRow(ctx,
		`SELECT units_used FROM quota_usage WHERE provider = ? AND day = ?`, provider, day,
	).Scan(&units)
	if err != nil {
		if isNoRows(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get quota usage: %w", err)
	}
	return units, nil
}

// ListQuotaUsage returns every provider's usage on day. An empty day means today.
func (db *DB) ListQuotaUsage(ctx context.Context, day string) ([]QuotaUsage, error) {
	if day == "" {
		day = db.now().UTC().Format(DayLayout)
	}
	rows, err := db.b.Query(ctx,
		`SELECT provider, day, units_used FROM quota_usage WHERE day = ? ORDER BY provider ASC`, day)
	if err != nil {
		return nil, fmt.Errorf("failed to list quota usage: %w", err)
	}
	defer rows.Close()

	var out []QuotaUsage
	for rows.Next() {
		var q QuotaUsage
		if err := rows.Scan(&q.Provider, &q.Day, &q.UnitsUsed); err != nil {
			return nil, fmt.Errorf("failed to scan quota usage: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}
