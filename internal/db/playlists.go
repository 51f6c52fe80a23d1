package db

import (
	"context"
	"fmt"
)

// -----------------------------------------------------------------------------
// Playlist Methods
// -----------------------------------------------------------------------------

// GetPlaylist returns the playlist for a group, or nil if none exists yet.
func (db *DB) GetPlaylist(ctx context.Context, category, language, platform string) (*Playlist, error) {
	var p Playlist
	var created nullTime
	err := db.b.QueryRow(ctx,
		`SELECT id, playlist_id, platform, language, category, title, video_count, created_at
		 FROM playlists WHERE category = ? AND language = ? AND platform = ?`,
		category, language, platform,
	).Scan(&p.ID, &p.PlaylistID, &p.Platform, &p.Language, &p.Category, &p.Title, &p.VideoCount, &created)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get playlist: %w", err)
	}
	p.CreatedAt = created.Time
	return &p, nil
}

// InsertPlaylist records a newly created playlist.
func (db *DB) InsertPlaylist(ctx context.Context, p *Playlist) (int64, error) {
	p.CreatedAt = db.stamp(p.CreatedAt)

	var id int64
	err := db.b.QueryRow(ctx,
		`INSERT INTO playlists (playlist_id, platform, language, category, title, video_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 RETURNING id`,
		p.PlaylistID, p.Platform, p.Language, p.Category, p.Title, p.VideoCount, db.b.Time(p.CreatedAt),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert playlist: %w", err)
	}
	p.ID = id
	return id, nil
}

// IncrementPlaylistCount bumps the stored video count by one.
func (db *DB) IncrementPlaylistCount(ctx context.Context, playlistID string) error {
	n, err := db.b.Exec(ctx,
		`UPDATE playlists SET video_count = video_count + 1 WHERE playlist_id = ?`, playlistID)
	if err != nil {
		return fmt.Errorf("failed to increment playlist count: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("playlist not found: %s", playlistID)
	}
	return nil
}
