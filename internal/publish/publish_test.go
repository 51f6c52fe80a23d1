package publish

import (
	"context"
	"encoding/json"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/jonathan/kids-video-pipeline/internal/config"
	"github.com/jonathan/kids-video-pipeline/internal/errkind"
	"github.com/jonathan/kids-video-pipeline/internal/provider"
	"github.com/jonathan/kids-video-pipeline/internal/retry"
	"github.com/jonathan/kids-video-pipeline/internal/types"
)

type quotaLog struct {
	mu    sync.Mutex
	units []int
}

func (q *quotaLog) LogQuotaUsage(_ context.Context, provider string, units int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if provider == YouTubeName {
		q.units = append(q.units, units)
	}
	return nil
}

func testEnv() *provider.Env {
	return &provider.Env{
		HTTP: http.DefaultClient,
		Retry: map[string]retry.Policy{
			YouTubeName:   {MaxAttempts: 2},
			InstagramName: {MaxAttempts: 2},
		},
	}
}

func newTestYouTube(t *testing.T, srv *httptest.Server, cfg config.YouTubeConfig) *YouTube {
	t.Helper()
	yt, err := NewYouTube(context.Background(), cfg, testEnv(),
		option.WithHTTPClient(srv.Client()), option.WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)
	return yt
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// firstPartJSON decodes the resource part of a multipart/related upload.
func firstPartJSON(t *testing.T, r *http.Request) map[string]any {
	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if !assert.NoError(t, err) {
		return nil
	}
	part, err := multipart.NewReader(r.Body, params["boundary"]).NextPart()
	if !assert.NoError(t, err) {
		return nil
	}
	var body map[string]any
	assert.NoError(t, json.NewDecoder(part).Decode(&body))
	return body
}

func TestYouTube_Upload(t *testing.T) {
	var mu sync.Mutex
	var thumbCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/upload/youtube/v3/videos":
			body := firstPartJSON(t, r)
			snippet, _ := body["snippet"].(map[string]any)
			status, _ := body["status"].(map[string]any)
			assert.Equal(t, "Buzzy Bees", snippet["title"])
			assert.Equal(t, "27", snippet["categoryId"])
			assert.Equal(t, []any{"bees", "kids"}, snippet["tags"])
			assert.Equal(t, "private", status["privacyStatus"])
			assert.Equal(t, "2026-10-20T15:00:00Z", status["publishAt"])
			assert.Equal(t, true, status["selfDeclaredMadeForKids"])
			_, _ = w.Write([]byte(`{"id": "vid1"}`))
		case "/upload/youtube/v3/thumbnails/set":
			mu.Lock()
			thumbCalls++
			mu.Unlock()
			assert.Equal(t, "vid1", r.URL.Query().Get("videoId"))
			http.Error(w, `{"error": {"code": 403, "message": "forbidden"}}`, http.StatusForbidden)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	yt := newTestYouTube(t, srv, config.YouTubeConfig{CategoryID: "27", PrivacyStatus: "public", MadeForKids: true})
	quota := &quotaLog{}
	yt.Quota = quota

	publishAt := time.Date(2026, 10, 20, 15, 0, 0, 0, time.UTC)
	res, err := yt.Upload(context.Background(), Media{
		Video:     writeFile(t, dir, "final.mp4", "video"),
		Thumbnail: writeFile(t, dir, "thumb.png", "png"),
		Metadata:  &types.Metadata{Title: "<Buzzy> Bees", Description: "Fun", Tags: []string{"bees", "kids", "bees"}},
		PublishAt: &publishAt,
	})
	require.NoError(t, err, "thumbnail failure must not fail the upload")
	assert.Equal(t, "vid1", res.ID)
	assert.Equal(t, "https://www.youtube.com/watch?v=vid1", res.URL)
	assert.Equal(t, 1, thumbCalls, "403 is not retried")
	assert.Equal(t, []int{UnitsVideoInsert}, quota.units)
}

func TestYouTube_UploadRetriesServerErrors(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			http.Error(w, `{"error": {"code": 503, "message": "backend"}}`, http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"id": "vid2"}`))
	}))
	defer srv.Close()

	yt := newTestYouTube(t, srv, config.YouTubeConfig{})
	res, err := yt.Upload(context.Background(), Media{
		Video:    writeFile(t, t.TempDir(), "final.mp4", "video"),
		Metadata: &types.Metadata{Title: "t"},
	})
	require.NoError(t, err)
	assert.Equal(t, "vid2", res.ID)
	assert.Equal(t, 2, calls)
}

func TestYouTube_CaptionsPlaylistsStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/upload/youtube/v3/captions":
			body := firstPartJSON(t, r)
			snippet, _ := body["snippet"].(map[string]any)
			assert.Equal(t, "vid1", snippet["videoId"])
			assert.Equal(t, "hi", snippet["language"])
			assert.Equal(t, "Auto-generated", snippet["name"])
			_, _ = w.Write([]byte(`{"id": "cap1"}`))
		case "/youtube/v3/playlists":
			var body map[string]map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "Animals for Kids - Hindi", body["snippet"]["title"])
			assert.Equal(t, "public", body["status"]["privacyStatus"])
			_, _ = w.Write([]byte(`{"id": "PL1"}`))
		case "/youtube/v3/playlistItems":
			var body map[string]map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "PL1", body["snippet"]["playlistId"])
			assert.Equal(t, map[string]any{"kind": "youtube#video", "videoId": "vid1"}, body["snippet"]["resourceId"])
			_, _ = w.Write([]byte(`{"id": "item1"}`))
		case "/youtube/v3/videos":
			assert.Equal(t, "statistics", r.URL.Query().Get("part"))
			if r.URL.Query().Get("id") == "gone" {
				_, _ = w.Write([]byte(`{"items": []}`))
				return
			}
			_, _ = w.Write([]byte(`{"items": [{"statistics": {"viewCount": "120", "likeCount": "8", "commentCount": "2"}}]}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	yt := newTestYouTube(t, srv, config.YouTubeConfig{})
	quota := &quotaLog{}
	yt.Quota = quota
	ctx := context.Background()

	srt := writeFile(t, t.TempDir(), "captions.srt", "1\n00:00:00,000 --> 00:00:01,000\nhi\n")
	require.NoError(t, yt.UploadCaptions(ctx, "vid1", srt, types.Language{Code: "hi", Name: "Hindi"}))

	id, err := yt.CreatePlaylist(ctx, "Animals for Kids - Hindi", "desc", "public")
	require.NoError(t, err)
	assert.Equal(t, "PL1", id)
	require.NoError(t, yt.AddToPlaylist(ctx, "PL1", "vid1"))

	stats, err := yt.VideoStats(ctx, "vid1")
	require.NoError(t, err)
	assert.Equal(t, &types.VideoStats{Views: 120, Likes: 8, Comments: 2}, stats)

	stats, err = yt.VideoStats(ctx, "gone")
	require.NoError(t, err)
	assert.Nil(t, stats)

	assert.Equal(t, []int{UnitsCaptionInsert, UnitsPlaylistInsert, UnitsPlaylistItem, UnitsVideoList, UnitsVideoList}, quota.units)
}

func TestNewYouTubeFromConfig_RequiresCredentials(t *testing.T) {
	_, err := NewYouTubeFromConfig(context.Background(), config.YouTubeConfig{ClientID: "id"}, testEnv())
	require.Error(t, err)
	assert.True(t, errkind.IsConfig(err))
	assert.Contains(t, err.Error(), "YOUTUBE_CLIENT_SECRET")
}

func TestInstagram_Upload(t *testing.T) {
	var mu sync.Mutex
	statusChecks := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "tok", r.Form.Get("access_token"))
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v21.0/u1/media":
			assert.Equal(t, "REELS", r.Form.Get("media_type"))
			assert.Equal(t, "https://cdn.example.com/reels/reel_en.mp4", r.Form.Get("video_url"))
			assert.Contains(t, r.Form.Get("caption"), "#bees")
			_, _ = w.Write([]byte(`{"id": "c1"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/v21.0/c1":
			mu.Lock()
			statusChecks++
			n := statusChecks
			mu.Unlock()
			if n < 3 {
				_, _ = w.Write([]byte(`{"status_code": "IN_PROGRESS"}`))
				return
			}
			_, _ = w.Write([]byte(`{"status_code": "FINISHED"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/v21.0/u1/media_publish":
			assert.Equal(t, "c1", r.Form.Get("creation_id"))
			_, _ = w.Write([]byte(`{"id": "m1"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/v21.0/m1":
			_, _ = w.Write([]byte(`{"shortcode": "ABC123", "permalink": "https://www.instagram.com/p/ABC123/"}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	ig, err := NewInstagram(config.InstagramConfig{
		UserID:        "u1",
		AccessToken:   "tok",
		PublicBaseURL: "https://cdn.example.com/reels/",
		GraphURL:      srv.URL + "/v21.0",
	}, testEnv())
	require.NoError(t, err)
	var waits []time.Duration
	ig.SetSleep(func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	})

	res, err := ig.Upload(context.Background(), Media{
		Video:    "/runs/x/en/reel_en.mp4",
		Metadata: &types.Metadata{Title: "Bees", Description: "Buzz", Tags: []string{"bees"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "m1", res.ID)
	assert.Equal(t, "https://www.instagram.com/reel/ABC123/", res.URL)
	assert.Equal(t, 3, statusChecks)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, waits)
}

func TestInstagram_ContainerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			_, _ = w.Write([]byte(`{"id": "c1"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status_code": "ERROR", "status": "bad codec"}`))
	}))
	defer srv.Close()

	ig, err := NewInstagram(config.InstagramConfig{UserID: "u1", AccessToken: "tok", PublicBaseURL: "https://x", GraphURL: srv.URL}, testEnv())
	require.NoError(t, err)
	_, err = ig.Upload(context.Background(), Media{Video: "reel.mp4", Metadata: &types.Metadata{Title: "t"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad codec")
}

func TestExport_Upload(t *testing.T) {
	dir := t.TempDir()
	video := writeFile(t, dir, "reel_en.mp4", "video")
	thumb := writeFile(t, dir, "thumb.jpg", "jpg")

	res, err := NewExport("").Upload(context.Background(), Media{
		Video:     video,
		Thumbnail: thumb,
		Metadata:  &types.Metadata{Title: "Bees", Description: "Buzz", Tags: []string{"honey bees"}},
	})
	require.NoError(t, err)

	out := filepath.Join(dir, ExportDir)
	assert.Equal(t, out, res.URL)
	assert.FileExists(t, filepath.Join(out, "reel.mp4"))
	assert.FileExists(t, filepath.Join(out, "cover.jpg"))
	caption, err := os.ReadFile(filepath.Join(out, "caption.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Bees\n\nBuzz\n\n#honeybees", string(caption))
}

func TestProviders(t *testing.T) {
	assert.Equal(t, []string{"export", "instagram", "youtube"}, Providers.Names())

	cfg := &config.Config{}
	cfg.ApplyDefaults()
	up, err := NewReel(cfg, testEnv())
	require.NoError(t, err)
	assert.IsType(t, &Export{}, up)

	cfg.Instagram.Mode = "graph"
	_, err = NewReel(cfg, testEnv())
	assert.True(t, errkind.IsConfig(err))
}
