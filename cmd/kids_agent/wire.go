package main

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/jonathan/kids-video-pipeline/internal/animation"
	"github.com/jonathan/kids-video-pipeline/internal/config"
	"github.com/jonathan/kids-video-pipeline/internal/db"
	"github.com/jonathan/kids-video-pipeline/internal/feedback"
	"github.com/jonathan/kids-video-pipeline/internal/imagegen"
	"github.com/jonathan/kids-video-pipeline/internal/media"
	"github.com/jonathan/kids-video-pipeline/internal/metadata"
	"github.com/jonathan/kids-video-pipeline/internal/music"
	"github.com/jonathan/kids-video-pipeline/internal/notify"
	"github.com/jonathan/kids-video-pipeline/internal/observability"
	"github.com/jonathan/kids-video-pipeline/internal/pipeline"
	"github.com/jonathan/kids-video-pipeline/internal/playlist"
	"github.com/jonathan/kids-video-pipeline/internal/prompts"
	"github.com/jonathan/kids-video-pipeline/internal/provider"
	"github.com/jonathan/kids-video-pipeline/internal/publish"
	"github.com/jonathan/kids-video-pipeline/internal/scripting"
	"github.com/jonathan/kids-video-pipeline/internal/topics"
	"github.com/jonathan/kids-video-pipeline/internal/voice"
)

// youTubeMode controls how services treats missing YouTube credentials.
type youTubeMode int

const (
	youTubeOff youTubeMode = iota
	// youTubeOptional connects when credentials work and carries on otherwise.
	youTubeOptional
	youTubeRequired
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// services holds the long-lived collaborators of one process.
type services struct {
	cfg     *config.Config
	env     *provider.Env
	store   *db.DB
	youtube *publish.YouTube
}

func newServices(ctx context.Context, cfg *config.Config, yt youTubeMode) (*services, error) {
	env := provider.NewEnv(cfg)
	store, err := db.Open(ctx, cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s := &services{cfg: cfg, env: env, store: store}

	if yt == youTubeOff {
		return s, nil
	}
	client, err := publish.NewYouTubeFromConfig(ctx, cfg.YouTube, env)
	switch {
	case err == nil:
		client.Quota = store
		s.youtube = client
	case yt == youTubeRequired:
		store.Close()
		return nil, err
	default:
		log.Printf("[kids_agent] YouTube unavailable, continuing without it: %v", err)
	}
	return s, nil
}

func (s *services) Close() {
	s.store.Close()
}

func (s *services) analytics() *feedback.Loop {
	var stats feedback.StatsSource
	if s.youtube != nil {
		stats = s.youtube
	}
	return feedback.NewLoop(s.store, stats, s.cfg.Analytics)
}

// deps builds the orchestrator collaborators for variant. A nil out leaves
// step-by-step printing off.
func (s *services) deps(variant pipeline.Variant, out io.Writer) (pipeline.Deps, error) {
	cfg, env := s.cfg, s.env
	if err := prompts.Check(); err != nil {
		return pipeline.Deps{}, err
	}
	d := pipeline.Deps{
		Store: s.store,
		Media: media.NewAssembler(media.NewFFmpeg(cfg.Video, env.Runner)),
	}
	if out != nil {
		d.Printer = observability.NewPrinter(out)
	}

	var err error
	if d.Topics, err = topics.New(cfg, env); err != nil {
		return d, err
	}
	if d.Scripts, err = scripting.New(cfg, env); err != nil {
		return d, err
	}
	if d.Images, err = imagegen.New(cfg, env); err != nil {
		return d, err
	}
	if d.Voice, err = voice.New(cfg, env); err != nil {
		return d, err
	}
	if d.Metadata, err = metadata.New(cfg, env); err != nil {
		return d, err
	}
	if variant.Animated() {
		if d.Animator, err = animation.New(cfg, env); err != nil {
			return d, err
		}
	}
	if cfg.BgMusic.Enabled {
		if d.Music, err = music.New(cfg, env); err != nil {
			return d, err
		}
	}
	if cfg.ABTesting.Enabled {
		if d.Variants, err = feedback.Variants.New("llm", cfg, env); err != nil {
			return d, err
		}
		d.Selector = feedback.NewSelector(s.store, cfg.ABTesting)
	}
	if s.youtube != nil {
		d.YouTube = s.youtube
		if cfg.Playlists.Enabled {
			d.Playlists = playlist.NewManager(s.youtube, s.store, cfg.Playlists)
		}
	}
	if cfg.Instagram.Enabled {
		if d.Reels, err = publish.NewReel(cfg, env); err != nil {
			return d, err
		}
	}
	if cfg.Analytics.Enabled {
		d.Analytics = s.analytics()
	}
	if d.Notifier, err = notify.New(cfg, env); err != nil {
		return d, err
	}
	return d, nil
}
