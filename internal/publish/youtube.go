package publish

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/jonathan/kids-video-pipeline/internal/config"
	"github.com/jonathan/kids-video-pipeline/internal/errkind"
	"github.com/jonathan/kids-video-pipeline/internal/metadata"
	"github.com/jonathan/kids-video-pipeline/internal/provider"
	"github.com/jonathan/kids-video-pipeline/internal/retry"
	"github.com/jonathan/kids-video-pipeline/internal/types"
)

// YouTube Data API quota costs in units.
const (
	UnitsVideoInsert    = 1600
	UnitsThumbnailSet   = 50
	UnitsCaptionInsert  = 400
	UnitsPlaylistInsert = 50
	UnitsPlaylistItem   = 50
	UnitsVideoList      = 1
)

// WatchURL returns the public link for a video id.
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + url.QueryEscape(id)
}

// YouTube uploads videos and manages captions, playlists and statistics
// through the Data API v3.
type YouTube struct {
	svc         *youtube.Service
	env         *provider.Env
	categoryID  string
	privacy     string
	madeForKids bool

	// Quota receives the units spent by every call. Optional.
	Quota QuotaRecorder
}

// NewYouTubeFromConfig builds an authorized client from the stored refresh token.
func NewYouTubeFromConfig(ctx context.Context, cfg config.YouTubeConfig, env *provider.Env) (*YouTube, error) {
	if err := provider.RequireKey("upload", "YOUTUBE_CLIENT_ID", cfg.ClientID); err != nil {
		return nil, err
	}
	if err := provider.RequireKey("upload", "YOUTUBE_CLIENT_SECRET", cfg.ClientSecret); err != nil {
		return nil, err
	}
	if err := provider.RequireKey("upload", "YOUTUBE_REFRESH_TOKEN", cfg.RefreshToken); err != nil {
		return nil, err
	}

	conf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{youtube.YoutubeUploadScope, youtube.YoutubeForceSslScope},
	}
	// An expired token forces a refresh on first use.
	token := &oauth2.Token{RefreshToken: cfg.RefreshToken, Expiry: time.Now().Add(-time.Hour)}
	client := conf.Client(ctx, token)
	if env != nil && env.HTTP != nil {
		client.Timeout = env.HTTP.Timeout
	}
	return NewYouTube(ctx, cfg, env, option.WithHTTPClient(client))
}

// NewYouTube creates the uploader over a service built from opts.
func NewYouTube(ctx context.Context, cfg config.YouTubeConfig, env *provider.Env, opts ...option.ClientOption) (*YouTube, error) {
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, errkind.Config("upload", fmt.Errorf("failed to create YouTube service: %w", err))
	}
	if env == nil {
		env = &provider.Env{}
	}
	privacy := cfg.PrivacyStatus
	if privacy == "" {
		privacy = "public"
	}
	return &YouTube{
		svc:         svc,
		env:         env,
		categoryID:  cfg.CategoryID,
		privacy:     privacy,
		madeForKids: cfg.MadeForKids,
	}, nil
}

// Upload implements Uploader. A thumbnail failure does not fail the upload.
func (y *YouTube) Upload(ctx context.Context, m Media) (*Result, error) {
	if m.Metadata == nil {
		return nil, fmt.Errorf("upload requires metadata")
	}
	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       metadata.CleanTitle(m.Metadata.Title),
			Description: metadata.CleanDescription(m.Metadata.Description),
			Tags:        metadata.SanitizeTags(m.Metadata.Tags),
			CategoryId:  y.categoryID,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           y.privacy,
			SelfDeclaredMadeForKids: y.madeForKids,
			ForceSendFields:         []string{"SelfDeclaredMadeForKids"},
		},
	}
	if m.PublishAt != nil {
		video.Status.PrivacyStatus = "private"
		video.Status.PublishAt = m.PublishAt.UTC().Format(time.RFC3339)
	}

	logf("youtube", "Uploading %s", m.Video)
	uploaded, err := retry.DoValue(ctx, y.env.Policy(YouTubeName), func(ctx context.Context) (*youtube.Video, error) {
		f, err := os.Open(m.Video)
		if err != nil {
			return nil, fmt.Errorf("failed to open video: %w", err)
		}
		defer f.Close()
		if err := y.env.Acquire(ctx, YouTubeName); err != nil {
			return nil, err
		}
		v, err := y.svc.Videos.Insert([]string{"snippet", "status"}, video).Media(f).Context(ctx).Do()
		if err != nil {
			return nil, classify("videos.insert", err)
		}
		return v, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload video: %w", err)
	}
	y.spend(ctx, UnitsVideoInsert)

	res := &Result{Platform: YouTubeName, ID: uploaded.Id, URL: WatchURL(uploaded.Id)}
	logf("youtube", "Uploaded: %s", res.URL)

	if m.Thumbnail != "" {
		if err := y.SetThumbnail(ctx, uploaded.Id, m.Thumbnail); err != nil {
			logf("youtube", "Warning: thumbnail upload failed: %v", err)
		}
	}
	return res, nil
}

// SetThumbnail attaches a custom thumbnail to videoID.
func (y *YouTube) SetThumbnail(ctx context.Context, videoID, path string) error {
	err := y.call(ctx, "thumbnails.set", func(ctx context.Context) error {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open thumbnail: %w", err)
		}
		defer f.Close()
		_, err = y.svc.Thumbnails.Set(videoID).Media(f).Context(ctx).Do()
		return err
	})
	if err != nil {
		return err
	}
	y.spend(ctx, UnitsThumbnailSet)
	return nil
}

// UploadCaptions attaches an SRT track in lang to videoID.
func (y *YouTube) UploadCaptions(ctx context.Context, videoID, srtPath string, lang types.Language) error {
	caption := &youtube.Caption{
		Snippet: &youtube.CaptionSnippet{
			VideoId:  videoID,
			Language: lang.Code,
			Name:     "Auto-generated",
		},
	}
	err := y.call(ctx, "captions.insert", func(ctx context.Context) error {
		f, err := os.Open(srtPath)
		if err != nil {
			return fmt.Errorf("failed to open captions: %w", err)
		}
		defer f.Close()
		_, err = y.svc.Captions.Insert([]string{"snippet"}, caption).
			Media(f, googleapi.ContentType("application/x-subrip")).Context(ctx).Do()
		return err
	})
	if err != nil {
		return err
	}
	y.spend(ctx, UnitsCaptionInsert)
	logf("youtube", "Captions uploaded for %s (%s)", videoID, lang.Code)
	return nil
}

// CreatePlaylist creates a playlist and returns its id.
func (y *YouTube) CreatePlaylist(ctx context.Context, title, description, privacy string) (string, error) {
	pl := &youtube.Playlist{
		Snippet: &youtube.PlaylistSnippet{Title: title, Description: description},
		Status:  &youtube.PlaylistStatus{PrivacyStatus: privacy},
	}
	var id string
	err := y.call(ctx, "playlists.insert", func(ctx context.Context) error {
		created, err := y.svc.Playlists.Insert([]string{"snippet", "status"}, pl).Context(ctx).Do()
		if err != nil {
			return err
		}
		id = created.Id
		return nil
	})
	if err != nil {
		return "", err
	}
	y.spend(ctx, UnitsPlaylistInsert)
	return id, nil
}

// AddToPlaylist appends videoID to playlistID.
func (y *YouTube) AddToPlaylist(ctx context.Context, playlistID, videoID string) error {
	item := &youtube.PlaylistItem{
		Snippet: &youtube.PlaylistItemSnippet{
			PlaylistId: playlistID,
			ResourceId: &youtube.ResourceId{Kind: "youtube#video", VideoId: videoID},
		},
	}
	err := y.call(ctx, "playlistItems.insert", func(ctx context.Context) error {
		_, err := y.svc.PlaylistItems.Insert([]string{"snippet"}, item).Context(ctx).Do()
		return err
	})
	if err != nil {
		return err
	}
	y.spend(ctx, UnitsPlaylistItem)
	return nil
}

// VideoStats returns the public statistics of videoID, or nil when the
// video is not found.
func (y *YouTube) VideoStats(ctx context.Context, videoID string) (*types.VideoStats, error) {
	var stats *types.VideoStats
	err := y.call(ctx, "videos.list", func(ctx context.Context) error {
		resp, err := y.svc.Videos.List([]string{"statistics"}).Id(videoID).Context(ctx).Do()
		if err != nil {
			return err
		}
		if len(resp.Items) == 0 || resp.Items[0].Statistics == nil {
			return nil
		}
		s := resp.Items[0].Statistics
		stats = &types.VideoStats{
			Views:    int64(s.ViewCount),
			Likes:    int64(s.LikeCount),
			Comments: int64(s.CommentCount),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	y.spend(ctx, UnitsVideoList)
	return stats, nil
}

// call runs one API request under the youtube limiter and retry policy.
func (y *YouTube) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	err := retry.Do(ctx, y.env.Policy(YouTubeName), func(ctx context.Context) error {
		if err := y.env.Acquire(ctx, YouTubeName); err != nil {
			return err
		}
		if err := fn(ctx); err != nil {
			return classify(op, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", op, err)
	}
	return nil
}

func (y *YouTube) spend(ctx context.Context, units int) {
	if y.Quota == nil {
		return
	}
	if err := y.Quota.LogQuotaUsage(ctx, YouTubeName, units); err != nil {
		logf("youtube", "Warning: failed to log quota usage: %v", err)
	}
}

// classify tags API errors: 429 and 5xx are transient, other HTTP errors
// fail immediately and transport errors are retried.
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) || errkind.Of(err) != errkind.KindUnknown {
		return err
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if errkind.TransientStatus(gerr.Code) {
			return errkind.Transient(op, err)
		}
		return errkind.New(errkind.KindUnknown, op, err)
	}
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return errkind.Transient(op, err)
	}
	return err
}
