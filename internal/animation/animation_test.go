package animation

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/kids-video-pipeline/internal/config"
	"github.com/jonathan/kids-video-pipeline/internal/errkind"
	"github.com/jonathan/kids-video-pipeline/internal/media"
	"github.com/jonathan/kids-video-pipeline/internal/provider"
	"github.com/jonathan/kids-video-pipeline/internal/retry"
)

type fakeRunner struct {
	mu    sync.Mutex
	probe string
	calls [][]string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string{name}, args...))
	if name == "ffprobe" {
		return []byte(f.probe), nil
	}
	return nil, nil
}

func argAfter(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func newKenBurns(t *testing.T, r *fakeRunner, effects ...string) *KenBurns {
	t.Helper()
	k, err := NewKenBurns(media.NewFFmpeg(config.VideoConfig{}, r),
		config.VideoConfig{Width: 1920, Height: 1080, FPS: 24},
		config.AnimationConfig{Effects: effects})
	require.NoError(t, err)
	k.SetRand(rand.New(rand.NewSource(7)))
	return k
}

func TestNewKenBurns_UnknownEffect(t *testing.T) {
	_, err := NewKenBurns(media.NewFFmpeg(config.VideoConfig{}, &fakeRunner{}), config.VideoConfig{}, config.AnimationConfig{Effects: []string{"spin"}})
	require.Error(t, err)
	assert.True(t, errkind.IsConfig(err))
}

func TestKenBurns_Filter(t *testing.T) {
	k := newKenBurns(t, &fakeRunner{})

	zoomIn := k.Filter(EffectZoomIn, 5*time.Second, 1)
	assert.Contains(t, zoomIn, "scale=2592:1458")
	assert.Contains(t, zoomIn, "z='1+0.001667*on'")
	assert.Contains(t, zoomIn, "s=1920x1080:fps=24")

	zoomOut := k.Filter(EffectZoomOut, 5*time.Second, 1)
	assert.Contains(t, zoomOut, "z='max(1,1.2000-0.001667*on)'")

	panLeft := k.Filter(EffectPanLeft, 5*time.Second, 1)
	assert.Contains(t, panLeft, "scale=2688:1512")
	assert.Contains(t, panLeft, "x='(iw-iw/zoom)*(1-on/120)'")

	panUp := k.Filter(EffectPanUp, 5*time.Second, 1)
	assert.Contains(t, panUp, "y='(ih-ih/zoom)*(1-on/120)'")

	combined := k.Filter(EffectCombined, 5*time.Second, -1)
	assert.Contains(t, combined, "scale=2880:1620")
	assert.Contains(t, combined, "-1*(iw-iw/zoom)*0.4*on/120")
}

func TestKenBurns_AnimatePicksConfiguredEffects(t *testing.T) {
	r := &fakeRunner{}
	k := newKenBurns(t, r, EffectPanRight)
	out := filepath.Join(t.TempDir(), "clips", "scene_1.mp4")

	require.NoError(t, k.Animate(context.Background(), Request{Image: "scene_1.png", Duration: 3 * time.Second, Output: out}))
	require.Len(t, r.calls, 1)
	args := r.calls[0]
	assert.Equal(t, "ffmpeg", args[0])
	assert.Equal(t, "scene_1.png", argAfter(args, "-i"))
	assert.Equal(t, "3.000", argAfter(args, "-t"))
	assert.Contains(t, argAfter(args, "-vf"), "(iw-iw/zoom)*on/72")
	assert.Equal(t, out, args[len(args)-1])
	assert.DirExists(t, filepath.Dir(out))
}

func TestReplicate_LoopsShortClip(t *testing.T) {
	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/models/wan-video/wan-2.5-i2v-fast/predictions":
			var body map[string]map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "Gentle animation of: a bear waving. Smooth subtle movement, kid-friendly cartoon style.", body["input"]["prompt"])
			assert.Equal(t, "720p", body["input"]["resolution"])
			assert.EqualValues(t, 5, body["input"]["duration"])
			assert.Contains(t, body["input"]["image"], "data:image/png;base64,")
			_, _ = w.Write([]byte(`{"id": "v1", "status": "succeeded", "output": "` + srvURL + `/clip.mp4"}`))
		case r.URL.Path == "/clip.mp4":
			_, _ = w.Write([]byte("mp4"))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()
	srvURL = srv.URL

	dir := t.TempDir()
	img := filepath.Join(dir, "scene_1.png")
	require.NoError(t, os.WriteFile(img, []byte("png"), 0o644))

	runner := &fakeRunner{probe: "5.0"}
	env := &provider.Env{Retry: map[string]retry.Policy{ReplicateName: {MaxAttempts: 1}}}
	a, err := NewReplicate(config.ReplicateConfig{APIToken: "r8", BaseURL: srv.URL, VideoModel: "wan-video/wan-2.5-i2v-fast"},
		media.NewFFmpeg(config.VideoConfig{}, runner), env)
	require.NoError(t, err)

	out := filepath.Join(dir, "clips", "scene_1.mp4")
	require.NoError(t, a.Animate(context.Background(), Request{Image: img, Visual: "a bear waving", Duration: 8500 * time.Millisecond, Output: out}))

	require.Len(t, runner.calls, 2)
	loop := runner.calls[1]
	assert.Equal(t, "-1", argAfter(loop, "-stream_loop"))
	assert.Equal(t, "8.500", argAfter(loop, "-t"))
	assert.Equal(t, out, loop[len(loop)-1])
}

func TestReplicate_RequiresToken(t *testing.T) {
	_, err := NewReplicate(config.ReplicateConfig{}, media.NewFFmpeg(config.VideoConfig{}, &fakeRunner{}), &provider.Env{})
	assert.True(t, errkind.IsConfig(err))
}

type fixedProber time.Duration

func (p fixedProber) ProbeDuration(context.Context, string) (time.Duration, error) {
	return time.Duration(p), nil
}

type recordingAnimator struct {
	mu   sync.Mutex
	reqs []Request
}

func (a *recordingAnimator) Animate(_ context.Context, req Request) error {
	a.mu.Lock()
	a.reqs = append(a.reqs, req)
	a.mu.Unlock()
	return nil
}

func TestAnimateScenes(t *testing.T) {
	a := &recordingAnimator{}
	dir := t.TempDir()
	clips, err := AnimateScenes(context.Background(), a, fixedProber(4*time.Second), Batch{
		Images:      []string{"1.png", "2.png", "3.png"},
		Audio:       []string{"1.mp3", "2.mp3", "3.mp3"},
		Visuals:     []string{"sun", "moon", "stars"},
		Dir:         dir,
		Concurrency: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "scene_1.mp4"),
		filepath.Join(dir, "scene_2.mp4"),
		filepath.Join(dir, "scene_3.mp4"),
	}, clips)
	require.Len(t, a.reqs, 3)
	for _, r := range a.reqs {
		assert.Equal(t, 4*time.Second+ClipPadding, r.Duration)
	}
}

func TestAnimateScenes_Mismatch(t *testing.T) {
	_, err := AnimateScenes(context.Background(), &recordingAnimator{}, fixedProber(time.Second), Batch{Images: []string{"1.png"}})
	assert.Error(t, err)
}

func TestProviders(t *testing.T) {
	assert.Equal(t, []string{"kenburns", "replicate"}, Providers.Names())
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	a, err := New(cfg, &provider.Env{})
	require.NoError(t, err)
	assert.IsType(t, &KenBurns{}, a)
}
