// Package pipeline runs the video pipeline end to end: a shared topic, base
// script and image set, then every configured language in order.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/jonathan/kids-video-pipeline/internal/animation"
	"github.com/jonathan/kids-video-pipeline/internal/config"
	"github.com/jonathan/kids-video-pipeline/internal/db"
	"github.com/jonathan/kids-video-pipeline/internal/errkind"
	"github.com/jonathan/kids-video-pipeline/internal/feedback"
	"github.com/jonathan/kids-video-pipeline/internal/fetch"
	"github.com/jonathan/kids-video-pipeline/internal/imagegen"
	"github.com/jonathan/kids-video-pipeline/internal/media"
	"github.com/jonathan/kids-video-pipeline/internal/metadata"
	"github.com/jonathan/kids-video-pipeline/internal/music"
	"github.com/jonathan/kids-video-pipeline/internal/notify"
	"github.com/jonathan/kids-video-pipeline/internal/observability"
	"github.com/jonathan/kids-video-pipeline/internal/pipeline/steps"
	"github.com/jonathan/kids-video-pipeline/internal/publish"
	"github.com/jonathan/kids-video-pipeline/internal/runstate"
	"github.com/jonathan/kids-video-pipeline/internal/scripting"
	"github.com/jonathan/kids-video-pipeline/internal/topics"
	"github.com/jonathan/kids-video-pipeline/internal/types"
	"github.com/jonathan/kids-video-pipeline/internal/voice"
)

// ProgressEvent represents a progress update during pipeline execution
type ProgressEvent struct {
	Step     string `json:"step"`
	Language string `json:"language,omitempty"`
	Status   string `json:"status"`
	RunID    string `json:"run_id,omitempty"`
}

// ProgressCallback is called after every recorded stage
type ProgressCallback func(event ProgressEvent)

// VideoPublisher uploads long-form videos and shorts and attaches captions.
type VideoPublisher interface {
	publish.Uploader
	UploadCaptions(ctx context.Context, videoID, srtPath string, lang types.Language) error
}

// Store is the persistence a run writes to.
type Store interface {
	InsertVideo(ctx context.Context, v *db.Video) (int64, error)
	UpdateVideoShorts(ctx context.Context, id int64, shortsVideoID string) error
	UpdateVideoReel(ctx context.Context, id int64, igMediaID string) error
}

// Analytics refreshes performance data and summarizes it for topic prompts.
type Analytics interface {
	Run(ctx context.Context) error
	Hints(ctx context.Context) string
}

// VariantPicker chooses and persists one A/B variant.
type VariantPicker interface {
	PickVariant(ctx context.Context, variants []types.Variant, videoDBID int64) (*types.Variant, error)
}

// PlaylistAssigner files a stored video into its group's playlist.
type PlaylistAssigner interface {
	Assign(ctx context.Context, videoDBID int64, videoID, category string, lang types.Language) (string, error)
}

// Deps holds the collaborators of a run. Topics, Scripts, Images, Voice,
// Media and Metadata are required; a nil optional collaborator disables the
// stages that need it.
type Deps struct {
	Topics   topics.Generator
	Scripts  scripting.Writer
	Images   imagegen.Generator
	Voice    voice.Synthesizer
	Media    media.Assembler
	Metadata metadata.Generator

	Animator  animation.Animator
	Music     music.Generator
	Variants  feedback.VariantGenerator
	Selector  VariantPicker
	YouTube   VideoPublisher
	Reels     publish.Uploader
	Playlists PlaylistAssigner
	Store     Store
	Analytics Analytics
	Notifier  notify.Notifier
	Printer   *observability.Printer
}

func (d Deps) validate() error {
	switch {
	case d.Topics == nil:
		return errors.New("topic generator is required")
	case d.Scripts == nil:
		return errors.New("script writer is required")
	case d.Images == nil:
		return errors.New("image generator is required")
	case d.Voice == nil:
		return errors.New("voice synthesizer is required")
	case d.Media == nil:
		return errors.New("media assembler is required")
	case d.Metadata == nil:
		return errors.New("metadata generator is required")
	}
	return nil
}

// Options controls one run.
type Options struct {
	Variant Variant
	// Upload publishes to the configured platforms; false is a dry run that
	// keeps every artifact on disk.
	Upload bool
	// RunDir overrides the timestamped directory under output_dir.
	RunDir string
	// PublishAt schedules the long-form uploads to go public later.
	PublishAt  *time.Time
	OnProgress ProgressCallback
}

// Orchestrator sequences the stages of a run.
type Orchestrator struct {
	cfg  *config.Config
	deps Deps
	rnd  *rand.Rand
	now  func() time.Time
}

// New creates an orchestrator.
func New(cfg *config.Config, deps Deps) (*Orchestrator, error) {
	if err := deps.validate(); err != nil {
		return nil, errkind.Config("pipeline", err)
	}
	return &Orchestrator{
		cfg:  cfg,
		deps: deps,
		rnd:  rand.New(rand.NewSource(time.Now().UnixNano())),
		now:  time.Now,
	}, nil
}

// SetRand replaces the source used for voice picks.
func (o *Orchestrator) SetRand(r *rand.Rand) { o.rnd = r }

// SetClock replaces the clock used for run directories and timestamps.
func (o *Orchestrator) SetClock(now func() time.Time) { o.now = now }

// run is the state of one invocation.
type run struct {
	*Orchestrator
	opts     Options
	dir      string
	state    *runstate.State
	summary  *types.RunSummary
	statuses map[string]string

	topic  *types.Topic
	script *types.Script
	images []string
	music  string
}

// Run executes one pipeline run. The returned summary is non-nil whenever
// the run directory could be created. The error is non-nil only when a
// shared stage failed; per-language failures are reported in the summary.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*types.RunSummary, error) {
	if opts.Variant == "" {
		opts.Variant = VariantPlain
	}
	started := o.now()
	dir := opts.RunDir
	if dir == "" {
		dir = filepath.Join(o.cfg.OutputDir, opts.Variant.dirPrefix()+started.Format("20060102_150405"))
	}
	state, err := runstate.Open(dir, "", string(opts.Variant))
	if err != nil {
		return nil, errkind.Fatal("runstate", err)
	}
	state.SetClock(o.now)

	r := &run{
		Orchestrator: o,
		opts:         opts,
		dir:          dir,
		state:        state,
		statuses:     map[string]string{},
		summary: &types.RunSummary{
			RunID:     state.RunID(),
			Variant:   string(opts.Variant),
			RunDir:    dir,
			StartedAt: started,
			Upload:    opts.Upload,
		},
	}
	logf("Run %s (%s) started in %s", r.summary.RunID, opts.Variant, dir)
	if !opts.Upload {
		logf("Upload disabled: artifacts stay in %s", dir)
	}

	err = r.shared(ctx)
	if err == nil {
		for _, lang := range o.cfg.Languages {
			r.summary.Languages = append(r.summary.Languages, r.language(ctx, lang))
		}
		r.sharedCleanup()
	} else {
		r.summary.Error = err.Error()
	}
	r.finish(ctx)
	return r.summary, err
}

// outcome is what a successful stage records.
type outcome struct {
	status runstate.Status
	data   any
}

func done(data any) outcome  { return outcome{status: runstate.StatusSuccess, data: data} }
func saved(data any) outcome { return outcome{status: runstate.StatusSaved, data: data} }

func skip(reason string) outcome {
	return outcome{status: runstate.StatusSkipped, data: map[string]string{"reason": reason}}
}

// exec runs one stage once its dependencies in statuses have completed and
// records the result under key. Stages with unmet dependencies are recorded
// as skipped without running.
func (r *run) exec(statuses map[string]string, name, key, lang string, fn func() (outcome, error)) error {
	if err := steps.ValidateDependencies(statuses, name); err != nil {
		out := skip(err.Error())
		r.record(key, lang, out)
		statuses[name] = string(out.status)
		return nil
	}
	out, err := fn()
	if err != nil {
		logf("Stage %s failed: %v", key, err)
		if rerr := r.state.Fail(key, err); rerr != nil {
			logf("Warning: failed to record %s: %v", key, rerr)
		}
		statuses[name] = string(runstate.StatusFailed)
		r.progress(key, lang, runstate.StatusFailed)
		return err
	}
	r.record(key, lang, out)
	statuses[name] = string(out.status)
	return nil
}

func (r *run) record(key, lang string, out outcome) {
	if err := r.state.Record(key, out.status, out.data); err != nil {
		logf("Warning: failed to record %s: %v", key, err)
	}
	r.progress(key, lang, out.status)
}

func (r *run) progress(key, lang string, status runstate.Status) {
	if r.opts.OnProgress != nil {
		r.opts.OnProgress(ProgressEvent{Step: key, Language: lang, Status: string(status), RunID: r.summary.RunID})
	}
}

// sharedStage runs a language-independent stage. Failures of fatal stages
// end the run.
func (r *run) sharedStage(name string, fn func() (outcome, error)) error {
	err := r.exec(r.statuses, name, name, "", fn)
	if err != nil && steps.IsFatal(name) {
		return errkind.Fatal(name, err)
	}
	return nil
}

func (r *run) shared(ctx context.Context) error {
	if r.deps.Analytics != nil && r.cfg.Analytics.Enabled {
		_ = r.sharedStage(steps.Analytics, func() (outcome, error) {
			if err := r.deps.Analytics.Run(ctx); err != nil {
				return outcome{}, err
			}
			return done(nil), nil
		})
	}

	if err := r.sharedStage(steps.Topic, func() (outcome, error) {
		req := topics.Request{}
		if r.deps.Analytics != nil {
			req.Hints = r.deps.Analytics.Hints(ctx)
		}
		t, err := r.deps.Topics.Generate(ctx, req)
		if err != nil {
			return outcome{}, err
		}
		r.topic = t
		r.summary.Topic = t
		r.printer().PrintTopic(t)
		return done(t), nil
	}); err != nil {
		return err
	}

	if err := r.sharedStage(steps.BaseScript, func() (outcome, error) {
		s, err := r.deps.Scripts.Write(ctx, r.topic, r.opts.Variant.Style())
		if err != nil {
			return outcome{}, err
		}
		if len(s.Scenes) == 0 {
			return outcome{}, errors.New("script has no scenes")
		}
		path := filepath.Join(r.dir, "base_script.json")
		if err := writeJSON(path, s); err != nil {
			return outcome{}, err
		}
		r.script = s
		r.printer().PrintScript(s)
		return done(map[string]any{"title": s.Title, "scenes": len(s.Scenes), "path": path}), nil
	}); err != nil {
		return err
	}

	if err := r.sharedStage(steps.Images, func() (outcome, error) {
		style := r.cfg.Images.Style
		if r.opts.Variant.Animated() && r.cfg.Animation.ImageStyle != "" {
			style = r.cfg.Animation.ImageStyle
		}
		files, err := imagegen.GenerateScenes(ctx, r.deps.Images, imagegen.Scenes{
			Visuals:     r.script.VisualDescriptions(),
			Style:       style,
			Width:       r.cfg.Video.Width,
			Height:      r.cfg.Video.Height,
			Dir:         r.imagesDir(),
			Concurrency: r.cfg.Images.Concurrency,
		})
		if err != nil {
			return outcome{}, err
		}
		r.images = files
		return done(map[string]int{"image_count": len(files)}), nil
	}); err != nil {
		return err
	}

	if r.deps.Music != nil && r.cfg.BgMusic.Enabled {
		_ = r.sharedStage(steps.Music, func() (outcome, error) {
			path, err := music.Ensure(ctx, r.deps.Music, music.Request{
				Prompt:   r.cfg.BgMusic.Prompt,
				Duration: r.cfg.BgMusic.Duration,
				Subdir:   r.opts.Variant.MusicSubdir(),
				Output:   filepath.Join(r.dir, music.CacheFile),
			})
			if err != nil {
				return outcome{}, err
			}
			if path == "" {
				return skip("no track available"), nil
			}
			r.music = path
			return done(map[string]string{"path": path}), nil
		})
	}
	return nil
}

func (r *run) imagesDir() string {
	return filepath.Join(r.dir, "images")
}

func (r *run) printer() *observability.Printer {
	if r.deps.Printer == nil {
		return observability.NewPrinter(io.Discard)
	}
	return r.deps.Printer
}

// finish records the summary, prints it and sends the notification.
func (r *run) finish(ctx context.Context) {
	r.summary.FinishedAt = r.now()
	r.record(steps.Summary, "", done(r.summary))
	r.statuses[steps.Summary] = string(runstate.StatusSuccess)
	r.printer().PrintSummary(r.summary)

	if r.deps.Notifier == nil {
		return
	}
	_ = r.exec(r.statuses, steps.Notify, steps.Notify, "", func() (outcome, error) {
		if err := r.deps.Notifier.Notify(ctx, r.summary); err != nil {
			return outcome{}, fmt.Errorf("failed to send summary: %w", err)
		}
		return done(nil), nil
	})
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	return fetch.WriteFile(path, data)
}

func logf(format string, args ...any) {
	log.Printf("[pipeline] "+format, args...)
}
