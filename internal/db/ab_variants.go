package db

import (
	"context"
	"errors"
	"fmt"
)

// ErrResultRecorded is returned when a variant already carries a result.
var ErrResultRecorded = errors.New("ab variant result already recorded")

// -----------------------------------------------------------------------------
// A/B Variant Methods
// -----------------------------------------------------------------------------

// InsertABVariant stores a candidate with no result and returns its id.
func (db *DB) InsertABVariant(ctx context.Context, v *ABVariant) (int64, error) {
	v.CreatedAt = db.stamp(v.CreatedAt)

	var id int64
	err := db.b.QueryRow(ctx,
		`INSERT INTO ab_variants (video_db_id, variant_type, variant_data, created_at)
		 VALUES (?, ?, ?, ?)
		 RETURNING id`,
		v.VideoDBID, v.VariantType, v.VariantData, db.b.Time(v.CreatedAt),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert ab variant: %w", err)
	}
	v.ID = id
	return id, nil
}

// GetABVariant retrieves a variant by id.
func (db *DB) GetABVariant(ctx context.Context, id int64) (*ABVariant, error) {
	var v ABVariant
	var created, recorded nullTime
	err := db.b.QueryRow(ctx,
		`SELECT id, video_db_id, variant_type, variant_data, is_winner, ctr, created_at, recorded_at
		 FROM ab_variants WHERE id = ?`,
		id,
	).Scan(&v.ID, &v.VideoDBID, &v.VariantType, &v.VariantData, &v.IsWinner, &v.CTR, &created, &recorded)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get ab variant: %w", err)
	}
	v.CreatedAt = created.Time
	v.RecordedAt = recorded.ptr()
	return &v, nil
}

// RecordABVariantResult writes the CTR and winner flag. A result can be
// recorded only once; a second call returns ErrResultRecorded.
func (db *DB) RecordABVariantResult(ctx context.Context, id int64, ctr float64, isWinner bool) error {
	n, err := db.b.Exec(ctx,
		`UPDATE ab_variants SET ctr = ?, is_winner = ?, recorded_at = ?
		 WHERE id = ? AND recorded_at IS NULL`,
		ctr, isWinner, db.b.Time(db.now()), id,
	)
	if err != nil {
		return fmt.Errorf("failed to record ab variant result: %w", err)
	}
	if n > 0 {
		return nil
	}

	existing, err := db.GetABVariant(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("ab variant not found: %d", id)
	}
	return fmt.Errorf("variant %d: %w", id, ErrResultRecorded)
}

// CountScoredVariants counts variants with a nonzero recorded CTR.
func (db *DB) CountScoredVariants(ctx context.Context) (int, error) {
	var n int64
	if err := db.b.QueryRow(ctx, `SELECT COUNT(*) FROM ab_variants WHERE ctr > 0`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count scored variants: %w", err)
	}
	return int(n), nil
}

// VariantTypeRanking ranks variant types by average nonzero CTR, best first.
func (db *DB) VariantTypeRanking(ctx context.Context) ([]VariantTypeScore, error) {
	rows, err := db.b.Query(ctx,
		`SELECT variant_type, AVG(CAST(ctr AS DOUBLE PRECISION)) AS avg_ctr, COUNT(*)
		 FROM ab_variants WHERE ctr > 0
		 GROUP BY variant_type
		 ORDER BY avg_ctr DESC, variant_type ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to rank variant types: %w", err)
	}
	defer rows.Close()

	var out []VariantTypeScore
	for rows.Next() {
		var s VariantTypeScore
		if err := rows.Scan(&s.VariantType, &s.AvgCTR, &s.Samples); err != nil {
			return nil, fmt.Errorf("failed to scan variant ranking: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
