// Package publish uploads finished videos to YouTube and Instagram, or
// exports reel assets for manual posting.
package publish

import (
	"context"
	"log"
	"time"

	"github.com/jonathan/kids-video-pipeline/internal/config"
	"github.com/jonathan/kids-video-pipeline/internal/provider"
	"github.com/jonathan/kids-video-pipeline/internal/types"
)

// Provider names.
const (
	YouTubeName   = "youtube"
	InstagramName = "instagram"
	ExportName    = "export"
)

// Media is one artifact to publish.
type Media struct {
	Video     string
	Thumbnail string
	Metadata  *types.Metadata
	Language  types.Language
	// PublishAt schedules a private upload to go public later.
	PublishAt *time.Time
}

// Result identifies a published artifact.
type Result struct {
	Platform string `json:"platform"`
	ID       string `json:"id"`
	URL      string `json:"url"`
}

// Uploader publishes one artifact.
type Uploader interface {
	Upload(ctx context.Context, m Media) (*Result, error)
}

// QuotaRecorder accumulates API units per provider per day.
type QuotaRecorder interface {
	LogQuotaUsage(ctx context.Context, provider string, units int) error
}

// Providers is the registry of upload backends.
var Providers = provider.NewRegistry[Uploader]("upload")

func init() {
	Providers.Register(YouTubeName, func(cfg *config.Config, env *provider.Env) (Uploader, error) {
		return NewYouTubeFromConfig(context.Background(), cfg.YouTube, env)
	})
	Providers.Register(InstagramName, func(cfg *config.Config, env *provider.Env) (Uploader, error) {
		return NewInstagram(cfg.Instagram, env)
	})
	Providers.Register(ExportName, func(cfg *config.Config, _ *provider.Env) (Uploader, error) {
		return NewExport(""), nil
	})
}

// NewReel creates the reel publisher selected by instagram.mode.
func NewReel(cfg *config.Config, env *provider.Env) (Uploader, error) {
	name := ExportName
	if cfg.Instagram.Mode == "graph" {
		name = InstagramName
	}
	return Providers.New(name, cfg, env)
}

func logf(tag, format string, args ...any) {
	log.Printf("["+tag+"] "+format, args...)
}
