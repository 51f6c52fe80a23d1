package publish

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonathan/kids-video-pipeline/internal/config"
	"github.com/jonathan/kids-video-pipeline/internal/errkind"
	"github.com/jonathan/kids-video-pipeline/internal/fetch"
	"github.com/jonathan/kids-video-pipeline/internal/metadata"
	"github.com/jonathan/kids-video-pipeline/internal/provider"
)

// maxStatusPolls bounds how long a reel container may stay IN_PROGRESS.
const maxStatusPolls = 60

// Container status codes reported by the Graph API.
const (
	statusFinished   = "FINISHED"
	statusError      = "ERROR"
	statusExpired    = "EXPIRED"
	statusInProgress = "IN_PROGRESS"
)

// ReelURL returns the public link for a reel shortcode.
func ReelURL(code string) string {
	return "https://www.instagram.com/reel/" + code + "/"
}

// Instagram publishes reels through the Graph API: create a media
// container from a public video URL, wait for processing, then publish.
type Instagram struct {
	client   *fetch.Client
	graphURL string
	userID   string
	token    string
	baseURL  string
	interval time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewInstagram creates a Graph API publisher.
func NewInstagram(cfg config.InstagramConfig, env *provider.Env) (*Instagram, error) {
	if err := provider.RequireKey("upload", "INSTAGRAM_USER_ID", cfg.UserID); err != nil {
		return nil, err
	}
	if err := provider.RequireKey("upload", "INSTAGRAM_ACCESS_TOKEN", cfg.AccessToken); err != nil {
		return nil, err
	}
	if err := provider.RequireKey("upload", "INSTAGRAM_PUBLIC_BASE_URL", cfg.PublicBaseURL); err != nil {
		return nil, err
	}
	if env == nil {
		env = &provider.Env{}
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Instagram{
		client:   env.Client(InstagramName),
		graphURL: strings.TrimRight(cfg.GraphURL, "/"),
		userID:   cfg.UserID,
		token:    cfg.AccessToken,
		baseURL:  strings.TrimRight(cfg.PublicBaseURL, "/"),
		interval: interval,
		sleep:    sleepContext,
	}, nil
}

// SetSleep replaces the status polling wait.
func (ig *Instagram) SetSleep(fn func(ctx context.Context, d time.Duration) error) {
	ig.sleep = fn
}

// Upload implements Uploader.
func (ig *Instagram) Upload(ctx context.Context, m Media) (*Result, error) {
	if m.Metadata == nil {
		return nil, fmt.Errorf("reel upload requires metadata")
	}
	videoURL := ig.baseURL + "/" + url.PathEscape(filepath.Base(m.Video))
	form := url.Values{
		"media_type": {"REELS"},
		"video_url":  {videoURL},
		"caption":    {metadata.ReelCaption(m.Metadata)},
	}
	if m.Thumbnail != "" {
		form.Set("cover_url", ig.baseURL+"/"+url.PathEscape(filepath.Base(m.Thumbnail)))
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := ig.post(ctx, "/"+ig.userID+"/media", form, &created); err != nil {
		return nil, fmt.Errorf("failed to create reel container: %w", err)
	}
	logf("instagram", "Container %s created, waiting for processing", created.ID)

	if err := ig.waitFinished(ctx, created.ID); err != nil {
		return nil, err
	}

	var published struct {
		ID string `json:"id"`
	}
	if err := ig.post(ctx, "/"+ig.userID+"/media_publish", url.Values{"creation_id": {created.ID}}, &published); err != nil {
		return nil, fmt.Errorf("failed to publish reel: %w", err)
	}

	var info struct {
		Permalink string `json:"permalink"`
		Shortcode string `json:"shortcode"`
	}
	link := ""
	if err := ig.get(ctx, "/"+published.ID, url.Values{"fields": {"permalink,shortcode"}}, &info); err != nil {
		logf("instagram", "Warning: failed to look up reel link: %v", err)
	} else if info.Shortcode != "" {
		link = ReelURL(info.Shortcode)
	} else {
		link = info.Permalink
	}
	logf("instagram", "Reel published: %s", link)
	return &Result{Platform: InstagramName, ID: published.ID, URL: link}, nil
}

func (ig *Instagram) waitFinished(ctx context.Context, containerID string) error {
	for i := 0; i < maxStatusPolls; i++ {
		var status struct {
			StatusCode string `json:"status_code"`
			Status     string `json:"status"`
		}
		if err := ig.get(ctx, "/"+containerID, url.Values{"fields": {"status_code,status"}}, &status); err != nil {
			return fmt.Errorf("failed to check reel status: %w", err)
		}
		switch status.StatusCode {
		case statusFinished:
			return nil
		case statusError, statusExpired:
			return fmt.Errorf("reel container %s ended with %s: %s", containerID, status.StatusCode, status.Status)
		}
		if err := ig.sleep(ctx, ig.interval); err != nil {
			return err
		}
	}
	return errkind.Transient("instagram", fmt.Errorf("reel container %s still %s after %d checks", containerID, statusInProgress, maxStatusPolls))
}

func (ig *Instagram) post(ctx context.Context, path string, form url.Values, out any) error {
	form.Set("access_token", ig.token)
	return ig.client.JSON(ctx, &fetch.Request{
		Method:  http.MethodPost,
		URL:     ig.graphURL + path,
		Headers: map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
		Body:    []byte(form.Encode()),
	}, out)
}

func (ig *Instagram) get(ctx context.Context, path string, query url.Values, out any) error {
	query.Set("access_token", ig.token)
	return ig.client.JSON(ctx, &fetch.Request{Method: http.MethodGet, URL: ig.graphURL + path, Query: query}, out)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
