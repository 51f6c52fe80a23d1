// Package playlist groups uploaded videos into per-category, per-language
// YouTube playlists, creating each one once the group is large enough.
package playlist

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode"

	"github.com/jonathan/kids-video-pipeline/internal/config"
	"github.com/jonathan/kids-video-pipeline/internal/db"
	"github.com/jonathan/kids-video-pipeline/internal/types"
)

// API is the playlist surface of the video platform.
type API interface {
	CreatePlaylist(ctx context.Context, title, description, privacy string) (string, error)
	AddToPlaylist(ctx context.Context, playlistID, videoID string) error
}

// Store is the persistence the manager needs.
type Store interface {
	GetPlaylist(ctx context.Context, category, language, platform string) (*db.Playlist, error)
	InsertPlaylist(ctx context.Context, p *db.Playlist) (int64, error)
	IncrementPlaylistCount(ctx context.Context, playlistID string) error
	CountVideos(ctx context.Context, category, language, platform string) (int, error)
	ListVideos(ctx context.Context, category, language, platform string) ([]db.VideoRef, error)
	UpdateVideoPlaylist(ctx context.Context, id int64, playlistID string) error
}

// Manager creates playlists lazily and keeps their counts current.
type Manager struct {
	api   API
	store Store
	cfg   config.PlaylistsConfig
}

// NewManager creates a manager.
func NewManager(api API, store Store, cfg config.PlaylistsConfig) *Manager {
	if cfg.NamingTemplate == "" {
		cfg.NamingTemplate = config.DefaultPlaylistTemplate
	}
	if cfg.PrivacyStatus == "" {
		cfg.PrivacyStatus = "public"
	}
	return &Manager{api: api, store: store, cfg: cfg}
}

// GetOrCreate returns the playlist id for (category, lang). It returns ""
// when auto-creation is off or the group has fewer videos than the
// configured minimum. created reports whether existing videos were just
// back-filled into a new playlist; each back-filled row gets the playlist id.
func (m *Manager) GetOrCreate(ctx context.Context, category string, lang types.Language) (id string, created bool, err error) {
	existing, err := m.store.GetPlaylist(ctx, category, lang.Code, db.PlatformYouTube)
	if err != nil {
		return "", false, fmt.Errorf("failed to look up playlist: %w", err)
	}
	if existing != nil {
		return existing.PlaylistID, false, nil
	}
	if !m.cfg.AutoCreateEnabled() {
		return "", false, nil
	}

	count, err := m.store.CountVideos(ctx, category, lang.Code, db.PlatformYouTube)
	if err != nil {
		return "", false, fmt.Errorf("failed to count videos: %w", err)
	}
	if count < m.cfg.MinVideosForPlaylist {
		logf("Playlist skipped: only %d/%d videos in '%s' (%s)", count, m.cfg.MinVideosForPlaylist, category, lang.Name)
		return "", false, nil
	}

	title := Title(m.cfg.NamingTemplate, category, lang.Name)
	description := fmt.Sprintf("A collection of fun and educational %s videos for kids!", category)
	id, err = m.api.CreatePlaylist(ctx, title, description, m.cfg.PrivacyStatus)
	if err != nil {
		return "", false, fmt.Errorf("failed to create playlist: %w", err)
	}
	logf("Created playlist: %s (%s)", title, id)

	if _, err := m.store.InsertPlaylist(ctx, &db.Playlist{
		PlaylistID: id,
		Platform:   db.PlatformYouTube,
		Language:   lang.Code,
		Category:   category,
		Title:      title,
	}); err != nil {
		return "", false, fmt.Errorf("failed to store playlist: %w", err)
	}

	videos, err := m.store.ListVideos(ctx, category, lang.Code, db.PlatformYouTube)
	if err != nil {
		logf("Warning: failed to list videos for back-fill: %v", err)
		return id, true, nil
	}
	for _, v := range videos {
		if err := m.add(ctx, id, v.VideoID); err != nil {
			logf("Warning: Failed to add %s to playlist: %v", v.VideoID, err)
			continue
		}
		if err := m.attach(ctx, v.ID, id); err != nil {
			logf("Warning: %s added but not attached: %v", v.VideoID, err)
		}
	}
	return id, true, nil
}

// Add appends videoID to playlistID, bumps the stored count and attaches the
// playlist to the video row.
func (m *Manager) Add(ctx context.Context, videoDBID int64, videoID, playlistID string) error {
	if playlistID == "" || videoID == "" {
		return nil
	}
	if err := m.add(ctx, playlistID, videoID); err != nil {
		return err
	}
	return m.attach(ctx, videoDBID, playlistID)
}

// Assign files a freshly stored video into its group's playlist and returns
// the playlist id, or "" when the group has no playlist yet.
func (m *Manager) Assign(ctx context.Context, videoDBID int64, videoID, category string, lang types.Language) (string, error) {
	id, created, err := m.GetOrCreate(ctx, category, lang)
	if err != nil || id == "" {
		return "", err
	}
	if created {
		// The back-fill already added this video.
		return id, m.attach(ctx, videoDBID, id)
	}
	return id, m.Add(ctx, videoDBID, videoID, id)
}

func (m *Manager) add(ctx context.Context, playlistID, videoID string) error {
	if err := m.api.AddToPlaylist(ctx, playlistID, videoID); err != nil {
		return fmt.Errorf("failed to add video to playlist: %w", err)
	}
	if err := m.store.IncrementPlaylistCount(ctx, playlistID); err != nil {
		return fmt.Errorf("failed to update playlist count: %w", err)
	}
	logf("Added video %s to playlist %s", videoID, playlistID)
	return nil
}

func (m *Manager) attach(ctx context.Context, videoDBID int64, playlistID string) error {
	if videoDBID == 0 {
		return nil
	}
	if err := m.store.UpdateVideoPlaylist(ctx, videoDBID, playlistID); err != nil {
		return fmt.Errorf("failed to attach playlist to video: %w", err)
	}
	return nil
}

// Title fills the {category} and {language} placeholders. The category is
// title-cased.
func Title(template, category, language string) string {
	return strings.NewReplacer("{category}", titleCase(category), "{language}", language).Replace(template)
}

func titleCase(s string) string {
	var b strings.Builder
	prevLetter := false
	for _, r := range s {
		if prevLetter {
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(unicode.ToUpper(r))
		}
		prevLetter = unicode.IsLetter(r)
	}
	return b.String()
}

func logf(format string, args ...any) {
	log.Printf("[playlist] "+format, args...)
}
