package animation

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jonathan/kids-video-pipeline/internal/config"
	"github.com/jonathan/kids-video-pipeline/internal/media"
	"github.com/jonathan/kids-video-pipeline/internal/provider"
	"github.com/jonathan/kids-video-pipeline/internal/replicate"
)

// ReplicateName is the provider key for image-to-video models.
const ReplicateName = "replicate"

// Image-to-video request settings.
const (
	ModelClipSeconds = 5
	ModelResolution  = "720p"
)

// Replicate animates scenes with an image-to-video model and loops the
// returned clip when the narration is longer.
type Replicate struct {
	client   *replicate.Client
	ff       *media.FFmpeg
	model    string
	interval time.Duration
}

// NewReplicate creates a model-based animator.
func NewReplicate(cfg config.ReplicateConfig, ff *media.FFmpeg, env *provider.Env) (*Replicate, error) {
	client, err := replicate.New(cfg.BaseURL, cfg.APIToken, env)
	if err != nil {
		return nil, err
	}
	client.SetMaxWait(cfg.MaxWait)
	return &Replicate{client: client, ff: ff, model: cfg.VideoModel, interval: cfg.PollInterval}, nil
}

// Client exposes the underlying API client.
func (r *Replicate) Client() *replicate.Client { return r.client }

// Animate implements Animator.
func (r *Replicate) Animate(ctx context.Context, req Request) error {
	image, err := replicate.DataURI(req.Image)
	if err != nil {
		return err
	}
	urls, err := r.client.Run(ctx, r.model, map[string]any{
		"image":      image,
		"prompt":     fmt.Sprintf("Gentle animation of: %s. Smooth subtle movement, kid-friendly cartoon style.", req.Visual),
		"duration":   ModelClipSeconds,
		"resolution": ModelResolution,
	}, r.interval)
	if err != nil {
		return err
	}

	raw := strings.TrimSuffix(req.Output, ".mp4") + "_raw.mp4"
	if err := r.client.Download(ctx, urls[0], raw); err != nil {
		return fmt.Errorf("failed to download clip: %w", err)
	}
	defer func() { _ = os.Remove(raw) }()

	got, err := r.ff.ProbeDuration(ctx, raw)
	if err != nil {
		return err
	}
	if got >= req.Duration {
		return os.Rename(raw, req.Output)
	}
	logf("Looping %.1fs clip to %.1fs", got.Seconds(), req.Duration.Seconds())
	return r.ff.Run(ctx,
		"-stream_loop", "-1", "-i", raw,
		"-t", media.Seconds(req.Duration),
		"-c:v", "libx264", "-pix_fmt", "yuv420p", "-an",
		req.Output,
	)
}
