// Package music supplies background music: generated per run through a
// text-to-music model, or picked from a local library.
package music

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonathan/kids-video-pipeline/internal/config"
	"github.com/jonathan/kids-video-pipeline/internal/provider"
	"github.com/jonathan/kids-video-pipeline/internal/replicate"
)

// Provider names.
const (
	LibraryName   = "library"
	ReplicateName = "replicate"
)

// CacheFile is the generated track's name inside a run directory.
const CacheFile = "bg_music.mp3"

// Request describes the track wanted for one video.
type Request struct {
	Prompt   string
	Duration int
	// Subdir narrows library picks, e.g. "lullaby".
	Subdir string
	// Output is where generated tracks are written.
	Output string
}

// Generator returns the path of a track for req. An empty path with a nil
// error means no music is available.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Providers is the registry of music backends.
var Providers = provider.NewRegistry[Generator]("music")

func init() {
	Providers.Register(LibraryName, func(cfg *config.Config, _ *provider.Env) (Generator, error) {
		return NewLibrary(cfg.BgMusic.LibraryDir), nil
	})
	Providers.Register(ReplicateName, func(cfg *config.Config, env *provider.Env) (Generator, error) {
		g, err := NewReplicate(cfg.Replicate, env)
		if err != nil {
			return nil, err
		}
		g.Fallback = NewLibrary(cfg.BgMusic.LibraryDir)
		return g, nil
	})
}

// New creates the generator selected by providers.music.
func New(cfg *config.Config, env *provider.Env) (Generator, error) {
	return Providers.New(cfg.Providers.Music, cfg, env)
}

// Ensure returns req.Output when it already holds a track and only calls g
// otherwise, so every language and retry of a run shares one generation.
func Ensure(ctx context.Context, g Generator, req Request) (string, error) {
	if req.Output != "" {
		if info, err := os.Stat(req.Output); err == nil && info.Size() > 0 {
			logf("Using cached track %s", req.Output)
			return req.Output, nil
		}
	}
	return g.Generate(ctx, req)
}

// Library picks a random .mp3 or .wav file, trying Subdir before the root.
type Library struct {
	dir string

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewLibrary creates a library generator rooted at dir.
func NewLibrary(dir string) *Library {
	return &Library{dir: dir, rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// SetRand replaces the picker's source.
func (l *Library) SetRand(r *rand.Rand) {
	l.mu.Lock()
	l.rnd = r
	l.mu.Unlock()
}

// Generate implements Generator.
func (l *Library) Generate(_ context.Context, req Request) (string, error) {
	var dirs []string
	if req.Subdir != "" {
		dirs = append(dirs, filepath.Join(l.dir, req.Subdir))
	}
	dirs = append(dirs, l.dir)

	for _, dir := range dirs {
		files, err := tracks(dir)
		if err != nil {
			return "", err
		}
		if len(files) == 0 {
			continue
		}
		l.mu.Lock()
		pick := files[l.rnd.Intn(len(files))]
		l.mu.Unlock()
		return pick, nil
	}
	logf("No music files in %s", l.dir)
	return "", nil
}

func tracks(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read music directory %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".mp3" || ext == ".wav" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// Replicate generates a track with a text-to-music model such as musicgen.
type Replicate struct {
	client   *replicate.Client
	model    string
	interval time.Duration
	// Fallback is used when generation fails.
	Fallback Generator
}

// NewReplicate creates a model-based generator.
func NewReplicate(cfg config.ReplicateConfig, env *provider.Env) (*Replicate, error) {
	client, err := replicate.New(cfg.BaseURL, cfg.APIToken, env)
	if err != nil {
		return nil, err
	}
	client.SetMaxWait(cfg.MaxWait)
	return &Replicate{client: client, model: cfg.MusicModel, interval: cfg.PollInterval}, nil
}

// Client exposes the underlying API client.
func (r *Replicate) Client() *replicate.Client { return r.client }

// Generate implements Generator.
func (r *Replicate) Generate(ctx context.Context, req Request) (string, error) {
	path, err := r.generate(ctx, req)
	if err == nil {
		return path, nil
	}
	if r.Fallback == nil || ctx.Err() != nil {
		return "", err
	}
	logf("Warning: music generation failed, using library: %v", err)
	return r.Fallback.Generate(ctx, req)
}

func (r *Replicate) generate(ctx context.Context, req Request) (string, error) {
	if req.Output == "" {
		return "", fmt.Errorf("music output path is empty")
	}
	duration := req.Duration
	if duration <= 0 {
		duration = 30
	}
	urls, err := r.client.Run(ctx, r.model, map[string]any{
		"prompt":                 req.Prompt,
		"duration":               duration,
		"model_version":          "stereo-melody-large",
		"output_format":          "mp3",
		"normalization_strategy": "peak",
	}, r.interval)
	if err != nil {
		return "", fmt.Errorf("failed to generate music: %w", err)
	}
	if err := r.client.Download(ctx, urls[0], req.Output); err != nil {
		return "", fmt.Errorf("failed to download music: %w", err)
	}
	logf("Generated %ds track %s", duration, req.Output)
	return req.Output, nil
}

func logf(format string, args ...any) {
	log.Printf("[music] "+format, args...)
}
