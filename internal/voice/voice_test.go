package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/kids-video-pipeline/internal/config"
	"github.com/jonathan/kids-video-pipeline/internal/errkind"
	"github.com/jonathan/kids-video-pipeline/internal/provider"
	"github.com/jonathan/kids-video-pipeline/internal/retry"
	"github.com/jonathan/kids-video-pipeline/internal/types"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
	errs  []error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string{name}, args...))
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	// Mimic edge-tts writing the media file.
	for i, a := range args {
		if a == "--write-media" && i+1 < len(args) {
			_ = os.WriteFile(args[i+1], []byte("mp3"), 0o644)
		}
	}
	return nil, nil
}

func fastEnv(runner provider.Runner) *provider.Env {
	fast := retry.Policy{MaxAttempts: 3}
	return &provider.Env{
		HTTP:   http.DefaultClient,
		Runner: runner,
		Retry: map[string]retry.Policy{
			edgeLimiterKey: fast,
			ElevenLabsName: fast,
			"openai_tts":   fast,
		},
	}
}

func TestEdge_Synthesize(t *testing.T) {
	runner := &fakeRunner{}
	e := NewEdge("", fastEnv(runner))
	out := filepath.Join(t.TempDir(), "audio", "scene_1.mp3")

	err := e.Synthesize(context.Background(), Request{Text: "It’s time", Voice: "en-US-AnaNeural", Rate: LullabyRate, Output: out})
	require.NoError(t, err)

	require.Len(t, runner.calls, 1)
	assert.Equal(t, []string{
		"edge-tts", "--voice", "en-US-AnaNeural", "--rate=-10%",
		"--text", "It's time", "--write-media", out,
	}, runner.calls[0])
	assert.FileExists(t, out)
}

func TestEdge_RetriesTransientFailures(t *testing.T) {
	runner := &fakeRunner{errs: []error{errors.New("websocket closed"), nil}}
	e := NewEdge("edge-tts", fastEnv(runner))

	err := e.Synthesize(context.Background(), Request{Text: "hi", Voice: "v", Output: filepath.Join(t.TempDir(), "a.mp3")})
	require.NoError(t, err)
	assert.Len(t, runner.calls, 2)
}

func TestEdge_MissingBinaryIsConfigError(t *testing.T) {
	runner := &fakeRunner{errs: []error{fmt.Errorf("start: %w", exec.ErrNotFound)}}
	e := NewEdge("edge-tts", fastEnv(runner))

	err := e.Synthesize(context.Background(), Request{Text: "hi", Voice: "v", Output: filepath.Join(t.TempDir(), "a.mp3")})
	require.Error(t, err)
	assert.True(t, errkind.IsConfig(err))
	assert.Len(t, runner.calls, 1)
}

func TestEdge_RequiresVoice(t *testing.T) {
	e := NewEdge("edge-tts", fastEnv(&fakeRunner{}))
	err := e.Synthesize(context.Background(), Request{Text: "hi", Output: filepath.Join(t.TempDir(), "a.mp3")})
	assert.True(t, errkind.IsConfig(err))
}

func TestElevenLabs_ChunksAndConcatenates(t *testing.T) {
	var (
		mu    sync.Mutex
		texts []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/text-to-speech/voice123", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("xi-api-key"))
		var body struct {
			Text    string `json:"text"`
			ModelID string `json:"model_id"`
		}
		data, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(data, &body))
		assert.Equal(t, "eleven_multilingual_v2", body.ModelID)
		mu.Lock()
		texts = append(texts, body.Text)
		n := len(texts)
		mu.Unlock()
		_, _ = fmt.Fprintf(w, "part%d;", n)
	}))
	defer srv.Close()

	sentence := strings.Repeat("a", 1500) + ". "
	text := sentence + sentence + "end."
	e := NewElevenLabs(srv.URL+"/v1/", "secret", "eleven_multilingual_v2", fastEnv(nil))
	out := filepath.Join(t.TempDir(), "scene_1.mp3")

	require.NoError(t, e.Synthesize(context.Background(), Request{Text: text, Voice: "voice123", Output: out}))

	require.Len(t, texts, 2)
	for _, tx := range texts {
		assert.LessOrEqual(t, len(tx), ElevenLabsMaxChars)
	}
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "part1;part2;", string(data))
}

func TestOpenAI_Synthesize(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/speech", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		data, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(data, &got))
		_, _ = w.Write([]byte("mp3-bytes"))
	}))
	defer srv.Close()

	o := NewOpenAI(srv.URL, "sk-test", "tts-1", fastEnv(nil))
	out := filepath.Join(t.TempDir(), "x.mp3")
	require.NoError(t, o.Synthesize(context.Background(), Request{Text: "Goodnight moon", Rate: LullabyRate, Output: out}))

	assert.Equal(t, "tts-1", got["model"])
	assert.Equal(t, "Goodnight moon", got["input"])
	assert.Equal(t, "nova", got["voice"])
	assert.Equal(t, "mp3", got["response_format"])
	assert.InDelta(t, 0.9, got["speed"], 1e-9)
	assert.FileExists(t, out)
}

func TestOpenAI_PermanentFailure(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "bad voice", http.StatusBadRequest)
	}))
	defer srv.Close()

	o := NewOpenAI(srv.URL, "k", "tts-1", fastEnv(nil))
	err := o.Synthesize(context.Background(), Request{Text: "hi", Voice: "nova", Output: filepath.Join(t.TempDir(), "x.mp3")})
	require.Error(t, err)
	assert.False(t, errkind.IsTransient(err))
	assert.Equal(t, 1, calls)
}

func TestProviders(t *testing.T) {
	assert.Equal(t, []string{"edge", "elevenlabs", "openai"}, Providers.Names())

	cfg := &config.Config{}
	cfg.Providers.TTS = ElevenLabsName
	_, err := New(cfg, fastEnv(nil))
	require.Error(t, err)
	assert.True(t, errkind.IsConfig(err))
	assert.Contains(t, err.Error(), "ELEVENLABS_API_KEY")

	cfg.Providers.TTS = EdgeName
	s, err := New(cfg, fastEnv(nil))
	require.NoError(t, err)
	assert.IsType(t, &Edge{}, s)
}

func TestPickVoice(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	lang := types.Language{Code: "en", Voices: []string{"a", "b", "c"}}
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		v, err := PickVoice(r, lang)
		require.NoError(t, err)
		seen[v] = true
	}
	assert.Len(t, seen, 3)

	_, err := PickVoice(r, types.Language{Code: "xx"})
	assert.Error(t, err)
}

func TestSynthesizeScenes(t *testing.T) {
	runner := &fakeRunner{}
	dir := t.TempDir()
	files, err := SynthesizeScenes(context.Background(), NewEdge("", fastEnv(runner)), []string{"one", "two"}, dir, "v", "")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "scene_1.mp3"), filepath.Join(dir, "scene_2.mp3")}, files)
	assert.NotContains(t, runner.calls[0], "--rate=")
}

func TestSynthesizeScenes_StopsOnError(t *testing.T) {
	runner := &fakeRunner{errs: []error{nil, fmt.Errorf("x: %w", exec.ErrNotFound)}}
	files, err := SynthesizeScenes(context.Background(), NewEdge("", fastEnv(runner)), []string{"one", "two", "three"}, t.TempDir(), "v", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scene 2")
	assert.Len(t, files, 1)
}

func TestSanitizeText(t *testing.T) {
	assert.Equal(t, `It's "fun" - really...`, SanitizeText("It’s “fun” — really…"))
}

func TestChunkText(t *testing.T) {
	assert.Nil(t, ChunkText("   ", 10))
	assert.Equal(t, []string{"short"}, ChunkText("short", 10))
	assert.Equal(t, []string{"One two.", "Three four."}, ChunkText("One two. Three four.", 12))
	assert.Equal(t, []string{"alpha beta", "gamma"}, ChunkText("alpha beta gamma", 12))

	// No spaces: hard cut never splits a rune.
	chunks := ChunkText(strings.Repeat("é", 10), 5)
	for _, c := range chunks {
		assert.True(t, len(c) <= 5)
		assert.NotContains(t, c, "�")
	}
	assert.Equal(t, strings.Repeat("é", 10), strings.Join(chunks, ""))
}

func TestChunkText_LimitBelowRuneWidth(t *testing.T) {
	assert.Equal(t, []string{"🐝", "🐝", "🐝"}, ChunkText("🐝🐝🐝", 2))
	assert.Equal(t, []string{"日", "本", "a"}, ChunkText("日本a", 1))
	assert.Equal(t, []string{"ab", "🐝", "c"}, ChunkText("ab🐝c", 3))
}

func TestRateToSpeed(t *testing.T) {
	assert.InDelta(t, 1.0, rateToSpeed(""), 1e-9)
	assert.InDelta(t, 0.9, rateToSpeed("-10%"), 1e-9)
	assert.InDelta(t, 1.05, rateToSpeed("+5%"), 1e-9)
	assert.InDelta(t, 0.25, rateToSpeed("-90%"), 1e-9)
	assert.InDelta(t, 1.0, rateToSpeed("fast"), 1e-9)
}
