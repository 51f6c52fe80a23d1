// Package media turns scene images, clips and narration into finished videos
// and thumbnails with ffmpeg.
package media

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/jonathan/kids-video-pipeline/internal/config"
	"github.com/jonathan/kids-video-pipeline/internal/errkind"
	"github.com/jonathan/kids-video-pipeline/internal/provider"
)

// FFmpeg runs the ffmpeg and ffprobe binaries through a Runner.
type FFmpeg struct {
	Bin    string
	Probe  string
	Runner provider.Runner
}

// NewFFmpeg builds the wrapper from video settings.
func NewFFmpeg(cfg config.VideoConfig, runner provider.Runner) *FFmpeg {
	f := &FFmpeg{Bin: cfg.FFmpeg, Probe: cfg.FFprobe, Runner: runner}
	if f.Bin == "" {
		f.Bin = "ffmpeg"
	}
	if f.Probe == "" {
		f.Probe = "ffprobe"
	}
	if f.Runner == nil {
		f.Runner = provider.ExecRunner{}
	}
	return f
}

// Run executes ffmpeg, always overwriting outputs and only logging errors.
func (f *FFmpeg) Run(ctx context.Context, args ...string) error {
	full := append([]string{"-y", "-hide_banner", "-loglevel", "error"}, args...)
	if _, err := f.Runner.Run(ctx, f.Bin, full...); err != nil {
		return classify(f.Bin, err)
	}
	return nil
}

// ProbeDuration returns the duration of an audio or video file.
func (f *FFmpeg) ProbeDuration(ctx context.Context, path string) (time.Duration, error) {
	out, err := f.Runner.Run(ctx, f.Probe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, classify(f.Probe, err)
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration of %s: %w", path, err)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func classify(bin string, err error) error {
	if errors.Is(err, exec.ErrNotFound) {
		return errkind.Config("media", fmt.Errorf("%s not found on PATH: %w", bin, err))
	}
	return err
}

// Seconds formats d for ffmpeg's -t and -ss options.
func Seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

// escapeFilterValue quotes a value for use inside a filtergraph option.
func escapeFilterValue(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `:`, `\:`, `'`, `\'`, `,`, `\,`)
	return r.Replace(s)
}
