package replicate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/kids-video-pipeline/internal/errkind"
	"github.com/jonathan/kids-video-pipeline/internal/provider"
	"github.com/jonathan/kids-video-pipeline/internal/ratelimit"
	"github.com/jonathan/kids-video-pipeline/internal/retry"
)

func noSleep(context.Context, time.Duration) error { return nil }

func testEnv() *provider.Env {
	return &provider.Env{
		Limiter: ratelimit.NewLimiter(map[string]ratelimit.Limit{Name: ratelimit.PerMinute(1000)}),
		Retry: map[string]retry.Policy{
			Name: retry.Policy{MaxAttempts: 3, BaseDelay: time.Second}.WithSleep(noSleep),
		},
	}
}

func newTestClient(t *testing.T, url string, env *provider.Env) *Client {
	t.Helper()
	c, err := New(url, "r8_test", env)
	require.NoError(t, err)
	c.SetSleep(noSleep)
	return c
}

func TestNew_RequiresToken(t *testing.T) {
	_, err := New("", "", nil)
	require.Error(t, err)
	assert.True(t, errkind.IsConfig(err))
}

func TestRun_PollsUntilSucceeded(t *testing.T) {
	var polls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer r8_test", r.Header.Get("Authorization"))
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/models/black-forest-labs/flux-schnell/predictions":
			var body map[string]map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "16:9", body["input"]["aspect_ratio"])
			_, _ = w.Write([]byte(`{"id": "p1", "status": "starting"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/predictions/p1":
			if polls.Add(1) < 3 {
				_, _ = w.Write([]byte(`{"id": "p1", "status": "processing"}`))
				return
			}
			_, _ = w.Write([]byte(`{"id": "p1", "status": "succeeded", "output": ["https://replicate.delivery/a.png"]}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	env := testEnv()
	c := newTestClient(t, server.URL, env)

	urls, err := c.Run(context.Background(), "black-forest-labs/flux-schnell", map[string]any{"aspect_ratio": "16:9"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://replicate.delivery/a.png"}, urls)
	assert.Equal(t, int64(3), polls.Load())
	assert.Equal(t, int64(4), env.Limiter.Count(Name), "create plus three polls")
}

func TestRun_VersionedModel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predictions", r.URL.Path)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "abc123", body["version"])
		_, _ = w.Write([]byte(`{"id": "p2", "status": "succeeded", "output": "https://replicate.delivery/music.mp3"}`))
	}))
	defer server.Close()

	urls, err := newTestClient(t, server.URL, testEnv()).Run(context.Background(), "meta/musicgen:abc123", map[string]any{}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://replicate.delivery/music.mp3"}, urls)
}

func TestRun_FailedPredictionStartsOver(t *testing.T) {
	var creates atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected poll")
			return
		}
		if creates.Add(1) == 1 {
			_, _ = w.Write([]byte(`{"id": "bad", "status": "failed", "error": "NSFW content detected"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id": "good", "status": "succeeded", "output": ["https://x/ok.png"]}`))
	}))
	defer server.Close()

	urls, err := newTestClient(t, server.URL, testEnv()).Run(context.Background(), "m/n", nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://x/ok.png"}, urls)
	assert.Equal(t, int64(2), creates.Load())
}

func TestRun_ExhaustedReturnsLastFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id": "bad", "status": "canceled"}`))
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL, testEnv()).Run(context.Background(), "m/n", nil, time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPredictionFailed)
	assert.Contains(t, err.Error(), "canceled")
}

func TestRun_ClientErrorNotRestarted(t *testing.T) {
	var creates atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		creates.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL, testEnv()).Run(context.Background(), "m/n", nil, time.Second)
	require.Error(t, err)
	assert.Equal(t, int64(1), creates.Load())
}

func TestWait_GivesUpAfterMaxWait(t *testing.T) {
	var polls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		polls.Add(1)
		_, _ = w.Write([]byte(`{"id": "slow", "status": "processing"}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, testEnv())
	c.SetSleep(sleepContext)
	c.SetMaxWait(50 * time.Millisecond)

	start := time.Now()
	_, err := c.Wait(context.Background(), &Prediction{ID: "slow", Status: StatusStarting}, 5*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errkind.IsTransient(err))
	assert.NotErrorIs(t, err, ErrPredictionFailed)
	assert.Contains(t, err.Error(), "prediction slow still processing after 50ms")
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Positive(t, polls.Load())
}

func TestWait_CallerCancellationIsNotATimeout(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1", testEnv())
	c.SetSleep(sleepContext)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Wait(ctx, &Prediction{ID: "p", Status: StatusProcessing}, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errkind.IsTransient(err))
}

func TestSetMaxWait_IgnoresNonPositive(t *testing.T) {
	c := newTestClient(t, "http://example.invalid", testEnv())
	c.SetMaxWait(0)
	assert.Equal(t, DefaultMaxWait, c.maxWait)
	c.SetMaxWait(time.Minute)
	assert.Equal(t, time.Minute, c.maxWait)
}

func TestOutputURLs(t *testing.T) {
	p := &Prediction{ID: "x"}
	_, err := p.OutputURLs()
	assert.Error(t, err)

	p.Output = json.RawMessage(`[]`)
	_, err = p.OutputURLs()
	assert.Error(t, err)

	p.Output = json.RawMessage(`{"weird": true}`)
	_, err = p.OutputURLs()
	assert.Error(t, err)
}

func TestDataURI(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene_1.png")
	require.NoError(t, os.WriteFile(path, []byte("png"), 0o644))

	uri, err := DataURI(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "data:image/png;base64,"))
	assert.True(t, strings.HasSuffix(uri, "cG5n"))

	_, err = DataURI(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
}
