package media

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonathan/kids-video-pipeline/internal/fetch"
)

// Assembly constants.
const (
	ScenePadding      = 500 * time.Millisecond
	ShortsPadding     = 300 * time.Millisecond
	LullabyPadding    = 800 * time.Millisecond
	ShortsMaxDuration = 59 * time.Second
	ShortsWidth       = 1080
	ShortsHeight      = 1920
	ThumbnailWidth    = 1280
	ThumbnailHeight   = 720
)

// Scene is one segment of a video. Clip, when set, is an animated clip used
// instead of the still Image.
type Scene struct {
	Image string
	Clip  string
	Audio string
	// Overlay is read-along text drawn at the top of the frame.
	Overlay string
}

// Options controls one assembly.
type Options struct {
	Width  int
	Height int
	FPS    int
	// Padding is added after each scene's narration.
	Padding     time.Duration
	Music       string
	MusicVolume float64
	Subtitles   string
	// WorkDir holds intermediate segments; it defaults to the output's directory.
	WorkDir string
}

// Assembler builds the deliverable media files of a run.
type Assembler interface {
	AssembleVideo(ctx context.Context, scenes []Scene, out string, opts Options) error
	// AssembleShorts returns how many scenes fit under the shorts cap.
	AssembleShorts(ctx context.Context, scenes []Scene, out string, opts Options) (int, error)
	Thumbnail(ctx context.Context, image, text, out string) error
	ProbeDuration(ctx context.Context, path string) (time.Duration, error)
}

// FFmpegAssembler implements Assembler with ffmpeg.
type FFmpegAssembler struct {
	*FFmpeg
}

// NewAssembler creates an ffmpeg-backed assembler.
func NewAssembler(f *FFmpeg) *FFmpegAssembler {
	return &FFmpegAssembler{FFmpeg: f}
}

// AssembleVideo renders every scene at the target resolution, joins them,
// mixes background music and burns subtitles when configured.
func (a *FFmpegAssembler) AssembleVideo(ctx context.Context, scenes []Scene, out string, opts Options) error {
	if len(scenes) == 0 {
		return fmt.Errorf("no scenes to assemble")
	}
	work := workDir(opts, out)
	frame := fitFilter(opts.Width, opts.Height)

	segments := make([]string, 0, len(scenes))
	for i, s := range scenes {
		audioDur, err := a.ProbeDuration(ctx, s.Audio)
		if err != nil {
			return fmt.Errorf("failed to probe scene %d audio: %w", i+1, err)
		}
		seg := filepath.Join(work, fmt.Sprintf("segment_%d.mp4", i+1))
		if err := a.renderSegment(ctx, s, audioDur+opts.Padding, frame, seg, opts, i+1); err != nil {
			return fmt.Errorf("failed to render scene %d: %w", i+1, err)
		}
		segments = append(segments, seg)
	}
	return a.finish(ctx, segments, out, opts, 0)
}

// AssembleShorts renders the vertical cut: a blurred, darkened fill behind
// the landscape frame, stopping before the first scene that would pass the
// 59 second cap.
func (a *FFmpegAssembler) AssembleShorts(ctx context.Context, scenes []Scene, out string, opts Options) (int, error) {
	work := workDir(opts, out)
	frame := verticalFilter(ShortsWidth, ShortsHeight)

	var (
		segments []string
		total    time.Duration
	)
	for i, s := range scenes {
		audioDur, err := a.ProbeDuration(ctx, s.Audio)
		if err != nil {
			return 0, fmt.Errorf("failed to probe shorts scene %d audio: %w", i+1, err)
		}
		d := audioDur + opts.Padding
		if total+d > ShortsMaxDuration {
			break
		}
		seg := filepath.Join(work, fmt.Sprintf("shorts_segment_%d.mp4", i+1))
		if err := a.renderSegment(ctx, s, d, frame, seg, opts, i+1); err != nil {
			return 0, fmt.Errorf("failed to render shorts scene %d: %w", i+1, err)
		}
		segments = append(segments, seg)
		total += d
	}
	if len(segments) == 0 {
		return 0, fmt.Errorf("no scenes fit within %s for shorts", ShortsMaxDuration)
	}
	logf("Shorts video: %.1fs, %d scenes", total.Seconds(), len(segments))
	return len(segments), a.finish(ctx, segments, out, opts, ShortsMaxDuration)
}

// Thumbnail scales image to 1280x720 and centres text over it in capitals.
func (a *FFmpegAssembler) Thumbnail(ctx context.Context, image, text, out string) error {
	filter := fitFilter(ThumbnailWidth, ThumbnailHeight)
	if text = strings.TrimSpace(text); text != "" {
		textFile := strings.TrimSuffix(out, filepath.Ext(out)) + "_text.txt"
		if err := fetch.WriteFile(textFile, []byte(strings.ToUpper(text))); err != nil {
			return err
		}
		defer func() { _ = os.Remove(textFile) }()
		filter += "," + drawText(textFile, 90, "(h-text_h)/2", 6)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("failed to create thumbnail directory: %w", err)
	}
	if err := a.Run(ctx, "-i", image, "-vf", filter, "-frames:v", "1", out); err != nil {
		return fmt.Errorf("failed to render thumbnail: %w", err)
	}
	return nil
}

// MixMusic lays a looped, attenuated music track under the video's audio.
func (a *FFmpegAssembler) MixMusic(ctx context.Context, video, music string, volume float64, out string) error {
	graph := fmt.Sprintf("[1:a]volume=%.2f[bg];[0:a][bg]amix=inputs=2:duration=first:dropout_transition=0[a]", volume)
	return a.Run(ctx,
		"-i", video,
		"-stream_loop", "-1", "-i", music,
		"-filter_complex", graph,
		"-map", "0:v", "-map", "[a]",
		"-c:v", "copy", "-c:a", "aac",
		out,
	)
}

// BurnSubtitles renders an SRT file into the picture.
func (a *FFmpegAssembler) BurnSubtitles(ctx context.Context, video, srt, out string) error {
	return a.Run(ctx,
		"-i", video,
		"-vf", "subtitles="+escapeFilterValue(srt),
		"-c:a", "copy",
		out,
	)
}

func (a *FFmpegAssembler) renderSegment(ctx context.Context, s Scene, d time.Duration, frame, out string, opts Options, n int) error {
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("failed to create work directory: %w", err)
	}
	filter := frame
	if s.Overlay != "" {
		textFile := strings.TrimSuffix(out, ".mp4") + "_overlay.txt"
		if err := fetch.WriteFile(textFile, []byte(s.Overlay)); err != nil {
			return err
		}
		filter += "," + drawText(textFile, 36, "40", 1)
	}

	var args []string
	switch {
	case s.Clip != "":
		args = []string{"-stream_loop", "-1", "-i", s.Clip}
	case s.Image != "":
		args = []string{"-loop", "1", "-i", s.Image}
	default:
		return fmt.Errorf("scene %d has neither image nor clip", n)
	}
	fps := opts.FPS
	if fps <= 0 {
		fps = 24
	}
	args = append(args,
		"-i", s.Audio,
		"-map", "0:v", "-map", "1:a",
		"-t", Seconds(d),
		"-vf", filter,
		"-af", "apad",
		"-r", fmt.Sprint(fps),
		"-c:v", "libx264", "-pix_fmt", "yuv420p",
		"-c:a", "aac", "-ar", "44100",
		out,
	)
	return a.Run(ctx, args...)
}

// finish joins segments and applies the optional music and subtitle passes,
// writing the last pass to out.
func (a *FFmpegAssembler) finish(ctx context.Context, segments []string, out string, opts Options, maxDur time.Duration) error {
	work := workDir(opts, out)
	list := filepath.Join(work, strings.TrimSuffix(filepath.Base(out), filepath.Ext(out))+"_concat.txt")
	var b strings.Builder
	for _, seg := range segments {
		abs, err := filepath.Abs(seg)
		if err != nil {
			abs = seg
		}
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	if err := fetch.WriteFile(list, []byte(b.String())); err != nil {
		return err
	}

	type pass func(in, dst string) error
	var passes []pass
	if opts.Music != "" {
		passes = append(passes, func(in, dst string) error {
			return a.MixMusic(ctx, in, opts.Music, opts.MusicVolume, dst)
		})
	}
	if opts.Subtitles != "" {
		passes = append(passes, func(in, dst string) error {
			return a.BurnSubtitles(ctx, in, opts.Subtitles, dst)
		})
	}

	target := func(step int) string {
		if step == len(passes) {
			return out
		}
		return filepath.Join(work, fmt.Sprintf("%s_pass%d.mp4", strings.TrimSuffix(filepath.Base(out), filepath.Ext(out)), step))
	}

	concat := []string{"-f", "concat", "-safe", "0", "-i", list}
	if maxDur > 0 {
		concat = append(concat, "-t", Seconds(maxDur))
	}
	concat = append(concat, "-c", "copy", target(0))
	if err := a.Run(ctx, concat...); err != nil {
		return fmt.Errorf("failed to join segments: %w", err)
	}

	current := target(0)
	for i, p := range passes {
		dst := target(i + 1)
		if err := p(current, dst); err != nil {
			return err
		}
		_ = os.Remove(current)
		current = dst
	}
	for _, seg := range segments {
		_ = os.Remove(seg)
	}
	_ = os.Remove(list)
	return nil
}

func workDir(opts Options, out string) string {
	if opts.WorkDir != "" {
		return opts.WorkDir
	}
	return filepath.Dir(out)
}

// fitFilter scales to cover w x h and crops the overflow.
func fitFilter(w, h int) string {
	return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,setsar=1", w, h, w, h)
}

// verticalFilter centres the frame on a blurred, darkened copy of itself.
func verticalFilter(w, h int) string {
	return fmt.Sprintf(
		"split[bgsrc][fgsrc];[bgsrc]scale=%d:%d,boxblur=25,eq=brightness=-0.35[bg];[fgsrc]scale=%d:-2[fg];[bg][fg]overlay=(W-w)/2:(H-h)/2,setsar=1",
		w, h, w,
	)
}

func drawText(textFile string, size int, y string, border int) string {
	return fmt.Sprintf("drawtext=textfile=%s:fontcolor=white:fontsize=%d:borderw=%d:bordercolor=black:x=(w-text_w)/2:y=%s",
		escapeFilterValue(textFile), size, border, y)
}

func logf(format string, args ...any) {
	log.Printf("[media] "+format, args...)
}
