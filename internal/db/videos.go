package db

import (
	"context"
	"fmt"
)

// -----------------------------------------------------------------------------
// Video Methods
// -----------------------------------------------------------------------------

const videoColumns = `id, video_id, platform, language, topic, category, title, upload_date,
	run_dir, playlist_id, ab_variant_id, shorts_video_id, ig_media_id`

// InsertVideo records a successful upload and returns the row id.
// A zero UploadedAt is stamped with the current time.
func (db *DB) InsertVideo(ctx context.Context, v *Video) (int64, error) {
	v.UploadedAt = db.stamp(v.UploadedAt)

	var id int64
	err := db.b.QueryRow(ctx,
		`INSERT INTO videos (video_id, platform, language, topic, category, title, upload_date,
		                     run_dir, playlist_id, ab_variant_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 RETURNING id`,
		nullString(v.VideoID), v.Platform, v.Language, v.Topic, v.Category, v.Title,
		db.b.Time(v.UploadedAt), v.RunDir, nullString(v.PlaylistID), nullInt(v.ABVariantID),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert video: %w", err)
	}
	v.ID = id
	return id, nil
}

// GetVideo retrieves a video by row id. A missing row yields nil, nil.
func (db *DB) GetVideo(ctx context.Context, id int64) (*Video, error) {
	v, err := scanVideo(db.b.QueryRow(ctx,
		`SELECT `+videoColumns+` FROM videos WHERE id = ?`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get video: %w", err)
	}
	return v, nil
}

// UpdateVideoShorts attaches the shorts sibling id.
func (db *DB) UpdateVideoShorts(ctx context.Context, id int64, shortsVideoID string) error {
	return db.updateVideoColumn(ctx, "shorts_video_id", id, shortsVideoID)
}

// UpdateVideoReel attaches the Instagram media id.
func (db *DB) UpdateVideoReel(ctx context.Context, id int64, igMediaID string) error {
	return db.updateVideoColumn(ctx, "ig_media_id", id, igMediaID)
}

// UpdateVideoPlaylist attaches the playlist id.
func (db *DB) UpdateVideoPlaylist(ctx context.Context, id int64, playlistID string) error {
	return db.updateVideoColumn(ctx, "playlist_id", id, playlistID)
}

// column is one of the fixed sibling-id columns above, never user input.
func (db *DB) updateVideoColumn(ctx context.Context, column string, id int64, value string) error {
	n, err := db.b.Exec(ctx, `UPDATE videos SET `+column+` = ? WHERE id = ?`, nullString(value), id)
	if err != nil {
		return fmt.Errorf("failed to update video %s: %w", column, err)
	}
	if n == 0 {
		return fmt.Errorf("video not found: %d", id)
	}
	return nil
}

// CountVideos counts uploads in one (category, language, platform) group.
func (db *DB) CountVideos(ctx context.Context, category, language, platform string) (int, error) {
	var n int64
	err := db.b.QueryRow(ctx,
		`SELECT COUNT(*) FROM videos WHERE category = ? AND language = ? AND platform = ?`,
		category, language, platform,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count videos: %w", err)
	}
	return int(n), nil
}

// ListVideos returns the row and external ids of one group, oldest first.
func (db *DB) ListVideos(ctx context.Context, category, language, platform string) ([]VideoRef, error) {
	rows, err := db.b.Query(ctx,
		`SELECT id, video_id FROM videos
		 WHERE category = ? AND language = ? AND platform = ? AND video_id IS NOT NULL
		 ORDER BY upload_date ASC, id ASC`,
		category, language, platform,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list video ids: %w", err)
	}
	defer rows.Close()

	var refs []VideoRef
	for rows.Next() {
		var r VideoRef
		if err := rows.Scan(&r.ID, &r.VideoID); err != nil {
			return nil, fmt.Errorf("failed to scan video id: %w", err)
		}
		refs = append(refs, r)
	}
	return refs, rows.Err()
}

func scanVideo(r row) (*Video, error) {
	var v Video
	var videoID, playlistID, shortsID, igID *string
	var abVariantID *int64
	var uploaded nullTime
	if err := r.Scan(&v.ID, &videoID, &v.Platform, &v.Language, &v.Topic, &v.Category, &v.Title,
		&uploaded, &v.RunDir, &playlistID, &abVariantID, &shortsID, &igID); err != nil {
		return nil, err
	}
	v.VideoID = deref(videoID)
	v.PlaylistID = deref(playlistID)
	v.ShortsVideoID = deref(shortsID)
	v.IGMediaID = deref(igID)
	if abVariantID != nil {
		v.ABVariantID = *abVariantID
	}
	v.UploadedAt = uploaded.Time
	return &v, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
