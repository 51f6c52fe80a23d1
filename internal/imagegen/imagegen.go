// Package imagegen renders one illustration per scene through pluggable
// image providers.
package imagegen

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/jonathan/kids-video-pipeline/internal/config"
	"github.com/jonathan/kids-video-pipeline/internal/provider"
)

// Request is one scene image.
type Request struct {
	// Visual is the scene's visual description.
	Visual string
	Style  string
	Width  int
	Height int
	Output string
}

// Generator writes an image for req to req.Output.
type Generator interface {
	Generate(ctx context.Context, req Request) error
}

// Providers is the registry of image backends.
var Providers = provider.NewRegistry[Generator]("image")

func init() {
	Providers.Register(PollinationsName, func(cfg *config.Config, env *provider.Env) (Generator, error) {
		return NewPollinations(cfg.Pollinations.BaseURL, cfg.Pollinations.Model, env), nil
	})
	Providers.Register(HuggingFaceName, func(cfg *config.Config, env *provider.Env) (Generator, error) {
		if err := provider.RequireKey("image", "HUGGINGFACE_API_TOKEN", cfg.HuggingFace.APIToken); err != nil {
			return nil, err
		}
		return NewHuggingFace(cfg.HuggingFace.BaseURL, cfg.HuggingFace.Model, cfg.HuggingFace.APIToken, env), nil
	})
	Providers.Register(ReplicateName, func(cfg *config.Config, env *provider.Env) (Generator, error) {
		return NewReplicate(cfg.Replicate, env)
	})
	Providers.Register(PexelsName, func(cfg *config.Config, env *provider.Env) (Generator, error) {
		if err := provider.RequireKey("image", "PEXELS_API_KEY", cfg.Pexels.APIKey); err != nil {
			return nil, err
		}
		return NewPexels("", cfg.Pexels.APIKey, env), nil
	})
	Providers.Register(OpenAIName, func(cfg *config.Config, env *provider.Env) (Generator, error) {
		if err := provider.RequireKey("image", "OPENAI_API_KEY", cfg.OpenAI.APIKey); err != nil {
			return nil, err
		}
		return NewOpenAI(cfg.OpenAI.BaseURL, cfg.OpenAI.APIKey, cfg.OpenAI.ImageModel, env), nil
	})
}

// New creates the generator selected by providers.image.
func New(cfg *config.Config, env *provider.Env) (Generator, error) {
	return Providers.New(cfg.Providers.Image, cfg, env)
}

// Scenes describes a batch of scene images.
type Scenes struct {
	Visuals     []string
	Style       string
	Width       int
	Height      int
	Dir         string
	Concurrency int
}

// GenerateScenes renders dir/scene_N.png for every visual, at most
// Concurrency at a time. Paths are returned in scene order.
func GenerateScenes(ctx context.Context, gen Generator, s Scenes) ([]string, error) {
	limit := s.Concurrency
	if limit < 1 {
		limit = 1
	}
	files := make([]string, len(s.Visuals))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, visual := range s.Visuals {
		i, visual := i, visual
		out := filepath.Join(s.Dir, fmt.Sprintf("scene_%d.png", i+1))
		g.Go(func() error {
			req := Request{Visual: visual, Style: s.Style, Width: s.Width, Height: s.Height, Output: out}
			if err := gen.Generate(ctx, req); err != nil {
				return fmt.Errorf("failed to generate image for scene %d: %w", i+1, err)
			}
			logf("Scene %d/%d done", i+1, len(s.Visuals))
			files[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

// prompt joins the style and visual with the quality suffix.
func prompt(style, visual, suffix string) string {
	parts := make([]string, 0, 3)
	if s := strings.TrimSpace(style); s != "" {
		parts = append(parts, s)
	}
	parts = append(parts, strings.TrimSpace(visual), suffix)
	return strings.Join(parts, ", ")
}

func logf(format string, args ...any) {
	log.Printf("[image] "+format, args...)
}
