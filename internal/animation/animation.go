// Package animation turns still scene images into short moving clips, either
// locally with Ken Burns pans and zooms or through an image-to-video model.
package animation

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonathan/kids-video-pipeline/internal/config"
	"github.com/jonathan/kids-video-pipeline/internal/media"
	"github.com/jonathan/kids-video-pipeline/internal/provider"
)

// ClipPadding is added to the narration length of each clip.
const ClipPadding = 500 * time.Millisecond

// Request is one clip.
type Request struct {
	Image string
	// Visual is the scene's visual description, used by model-based animators.
	Visual   string
	Duration time.Duration
	Output   string
}

// Animator writes an mp4 clip for req to req.Output.
type Animator interface {
	Animate(ctx context.Context, req Request) error
}

// Providers is the registry of animation backends.
var Providers = provider.NewRegistry[Animator]("animation")

func init() {
	Providers.Register(KenBurnsName, func(cfg *config.Config, env *provider.Env) (Animator, error) {
		return NewKenBurns(media.NewFFmpeg(cfg.Video, env.Runner), cfg.Video, cfg.Animation)
	})
	Providers.Register(ReplicateName, func(cfg *config.Config, env *provider.Env) (Animator, error) {
		return NewReplicate(cfg.Replicate, media.NewFFmpeg(cfg.Video, env.Runner), env)
	})
}

// New creates the animator selected by providers.animation.
func New(cfg *config.Config, env *provider.Env) (Animator, error) {
	return Providers.New(cfg.Providers.Animation, cfg, env)
}

// Prober measures narration length.
type Prober interface {
	ProbeDuration(ctx context.Context, path string) (time.Duration, error)
}

// Batch describes every scene of a video.
type Batch struct {
	Images      []string
	Audio       []string
	Visuals     []string
	Dir         string
	Concurrency int
}

// AnimateScenes renders dir/scene_N.mp4 for each image, sized to its
// narration plus ClipPadding.
func AnimateScenes(ctx context.Context, a Animator, p Prober, b Batch) ([]string, error) {
	if len(b.Images) != len(b.Audio) {
		return nil, fmt.Errorf("got %d images for %d audio files", len(b.Images), len(b.Audio))
	}
	limit := b.Concurrency
	if limit < 1 {
		limit = 1
	}
	clips := make([]string, len(b.Images))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range b.Images {
		i := i
		g.Go(func() error {
			d, err := p.ProbeDuration(ctx, b.Audio[i])
			if err != nil {
				return fmt.Errorf("failed to probe scene %d audio: %w", i+1, err)
			}
			visual := ""
			if i < len(b.Visuals) {
				visual = b.Visuals[i]
			}
			out := filepath.Join(b.Dir, fmt.Sprintf("scene_%d.mp4", i+1))
			logf("Animating scene %d/%d...", i+1, len(b.Images))
			if err := a.Animate(ctx, Request{Image: b.Images[i], Visual: visual, Duration: d + ClipPadding, Output: out}); err != nil {
				return fmt.Errorf("failed to animate scene %d: %w", i+1, err)
			}
			clips[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return clips, nil
}

func logf(format string, args ...any) {
	log.Printf("[animation] "+format, args...)
}
