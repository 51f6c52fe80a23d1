package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonathan/kids-video-pipeline/internal/animation"
	"github.com/jonathan/kids-video-pipeline/internal/captions"
	"github.com/jonathan/kids-video-pipeline/internal/db"
	"github.com/jonathan/kids-video-pipeline/internal/feedback"
	"github.com/jonathan/kids-video-pipeline/internal/media"
	"github.com/jonathan/kids-video-pipeline/internal/metadata"
	"github.com/jonathan/kids-video-pipeline/internal/pipeline/steps"
	"github.com/jonathan/kids-video-pipeline/internal/publish"
	"github.com/jonathan/kids-video-pipeline/internal/types"
	"github.com/jonathan/kids-video-pipeline/internal/voice"
)

// Artifact names inside a language directory.
const (
	audioDir      = "audio"
	clipsDir      = "animated_clips"
	segmentsDir   = "segments"
	videoFile     = "final_video.mp4"
	shortsFile    = "shorts_video.mp4"
	thumbnailFile = "thumbnail.png"
	captionsFile  = "captions.srt"
	shortsSRTFile = "shorts.srt"
	metadataFile  = "metadata.json"
)

// langRun carries the artifacts of one language between stages.
type langRun struct {
	lang types.Language
	dir  string
	res  *types.LanguageResult

	script    *types.Script
	voice     string
	audio     []string
	clips     []string
	srt       string
	video     string
	md        *types.Metadata
	abVariant *types.Variant
	thumbnail string
	uploaded  *publish.Result
	videoDBID int64
	shorts    string
}

type stageFunc func(ctx context.Context, l *langRun) (outcome, error)

// stage runs one per-language stage. Failures are recorded and the language
// continues with its next stage.
func (r *run) stage(ctx context.Context, l *langRun, name string, fn stageFunc) {
	key := name + "_" + l.lang.Code
	err := r.exec(l.res.Steps, name, key, l.lang.Code, func() (outcome, error) {
		return fn(ctx, l)
	})
	if err != nil && l.res.Error == "" {
		l.res.Error = fmt.Sprintf("%s: %v", name, err)
	}
}

func (r *run) language(ctx context.Context, lang types.Language) types.LanguageResult {
	l := &langRun{
		lang: lang,
		dir:  filepath.Join(r.dir, lang.Code),
		res:  &types.LanguageResult{Code: lang.Code, Name: lang.Name, Steps: map[string]string{}},
	}
	logf("=== %s (%s) ===", lang.Name, lang.Code)

	r.stage(ctx, l, steps.Script, r.scriptStage)
	if !r.opts.Variant.ShortsOnly() {
		r.stage(ctx, l, steps.Voiceover, r.voiceoverStage)
		if r.opts.Variant.Animated() && r.deps.Animator != nil {
			r.stage(ctx, l, steps.Animation, r.animationStage)
		}
		r.stage(ctx, l, steps.Captions, r.captionsStage)
		r.stage(ctx, l, steps.Video, r.videoStage)
	}
	r.stage(ctx, l, steps.Metadata, r.metadataStage)
	if !r.opts.Variant.ShortsOnly() {
		if r.cfg.ABTesting.Enabled && r.deps.Variants != nil && r.deps.Selector != nil {
			r.stage(ctx, l, steps.ABSelection, r.abStage)
		}
		r.stage(ctx, l, steps.Thumbnail, r.thumbnailStage)
		r.stage(ctx, l, steps.Upload, r.uploadStage)
		if r.cfg.YouTube.Captions {
			r.stage(ctx, l, steps.CaptionsUpload, r.captionsUploadStage)
		}
		r.stage(ctx, l, steps.DBInsert, r.dbInsertStage)
		if r.cfg.Playlists.Enabled && r.deps.Playlists != nil {
			r.stage(ctx, l, steps.Playlist, r.playlistStage)
		}
	}
	r.stage(ctx, l, steps.Shorts, r.shortsStage)
	r.stage(ctx, l, steps.ShortsUpload, r.shortsUploadStage)
	if r.cfg.Instagram.Enabled {
		r.stage(ctx, l, steps.Instagram, r.instagramStage)
	}
	r.stage(ctx, l, steps.Cleanup, r.cleanupStage)
	return *l.res
}

func (r *run) scriptStage(ctx context.Context, l *langRun) (outcome, error) {
	var s *types.Script
	if l.lang.IsEnglish() {
		s = r.script.Clone()
	} else {
		var err error
		if s, err = r.deps.Scripts.Translate(ctx, r.script, l.lang); err != nil {
			return outcome{}, err
		}
	}
	path := filepath.Join(r.dir, "script_"+l.lang.Code+".json")
	if err := writeJSON(path, s); err != nil {
		return outcome{}, err
	}
	l.script = s
	l.res.Title = s.Title
	return done(map[string]string{"title": s.Title, "path": path}), nil
}

func (r *run) voiceoverStage(ctx context.Context, l *langRun) (outcome, error) {
	name, err := voice.PickVoice(r.rnd, l.lang)
	if err != nil {
		return outcome{}, err
	}
	files, err := voice.SynthesizeScenes(ctx, r.deps.Voice, l.script.SceneTexts(), filepath.Join(l.dir, audioDir), name, r.opts.Variant.VoiceRate())
	if err != nil {
		return outcome{}, err
	}
	l.voice = name
	l.audio = files
	return done(map[string]any{"voice": name, "files": len(files)}), nil
}

func (r *run) animationStage(ctx context.Context, l *langRun) (outcome, error) {
	clips, err := animation.AnimateScenes(ctx, r.deps.Animator, r.deps.Media, animation.Batch{
		Images:      r.images,
		Audio:       l.audio,
		Visuals:     r.script.VisualDescriptions(),
		Dir:         filepath.Join(l.dir, clipsDir),
		Concurrency: r.cfg.Images.Concurrency,
	})
	if err != nil {
		return outcome{}, err
	}
	l.clips = clips
	return done(map[string]int{"clip_count": len(clips)}), nil
}

func (r *run) captionsStage(ctx context.Context, l *langRun) (outcome, error) {
	durations, err := r.probeAll(ctx, l.audio)
	if err != nil {
		return outcome{}, err
	}
	opts := captions.FullOptions()
	opts.SceneGap = r.opts.Variant.Padding()
	path := filepath.Join(l.dir, captionsFile)
	if err := captions.WriteSRT(path, l.script, durations, opts); err != nil {
		return outcome{}, err
	}
	l.srt = path
	return done(map[string]string{"path": path}), nil
}

func (r *run) videoStage(ctx context.Context, l *langRun) (outcome, error) {
	if len(l.audio) != len(r.images) {
		return outcome{}, fmt.Errorf("got %d narration files for %d images", len(l.audio), len(r.images))
	}
	scenes := make([]media.Scene, len(l.audio))
	for i := range l.audio {
		scenes[i] = media.Scene{Image: r.images[i], Audio: l.audio[i]}
		if i < len(l.clips) {
			scenes[i].Clip = l.clips[i]
		}
		if lines := l.script.Scenes[i].Lines; len(lines) > 0 {
			scenes[i].Overlay = strings.Join(lines, "\n")
		}
	}
	opts := r.mediaOptions(l)
	opts.Width = r.cfg.Video.Width
	opts.Height = r.cfg.Video.Height
	opts.Padding = r.opts.Variant.Padding()
	if r.cfg.Video.Subtitles {
		opts.Subtitles = l.srt
	}

	out := filepath.Join(l.dir, videoFile)
	if err := r.deps.Media.AssembleVideo(ctx, scenes, out, opts); err != nil {
		return outcome{}, err
	}
	l.video = out
	return done(map[string]any{"path": out, "animated": len(l.clips) > 0}), nil
}

func (r *run) metadataStage(ctx context.Context, l *langRun) (outcome, error) {
	md, err := r.deps.Metadata.Generate(ctx, r.topic, l.script, l.lang)
	if err != nil {
		return outcome{}, err
	}
	path := filepath.Join(l.dir, metadataFile)
	if err := writeJSON(path, md); err != nil {
		return outcome{}, err
	}
	l.md = md
	l.res.Title = md.Title
	r.printer().PrintMetadata(l.lang.Name, md)
	return done(map[string]string{"title": md.Title, "path": path}), nil
}

// abStage generates candidate variants and applies the selected one to the
// metadata. Variants are stored before the video row exists, with video id 0.
func (r *run) abStage(ctx context.Context, l *langRun) (outcome, error) {
	variants, err := r.deps.Variants.Generate(ctx, r.topic, l.script, l.md, l.lang)
	if err != nil {
		return outcome{}, err
	}
	v, err := r.deps.Selector.PickVariant(ctx, variants, 0)
	if err != nil {
		return outcome{}, err
	}
	if v == nil {
		return skip("no variants generated"), nil
	}
	l.abVariant = v
	l.md = feedback.ApplyVariant(l.md, v)
	l.res.Title = l.md.Title
	if err := writeJSON(filepath.Join(l.dir, metadataFile), l.md); err != nil {
		return outcome{}, err
	}
	return done(map[string]any{"variant_id": v.VariantID, "style": v.Style, "title": l.md.Title}), nil
}

func (r *run) thumbnailStage(ctx context.Context, l *langRun) (outcome, error) {
	out := filepath.Join(l.dir, thumbnailFile)
	if err := r.deps.Media.Thumbnail(ctx, r.images[0], l.md.ThumbnailText, out); err != nil {
		return outcome{}, err
	}
	l.thumbnail = out
	return done(map[string]string{"path": out}), nil
}

func (r *run) uploadStage(ctx context.Context, l *langRun) (outcome, error) {
	if !r.opts.Upload {
		return skip("upload disabled"), nil
	}
	if r.deps.YouTube == nil {
		return skip("no uploader configured"), nil
	}
	res, err := r.deps.YouTube.Upload(ctx, publish.Media{
		Video:     l.video,
		Thumbnail: l.thumbnail,
		Metadata:  l.md,
		Language:  l.lang,
		PublishAt: r.opts.PublishAt,
	})
	if err != nil {
		return outcome{}, err
	}
	l.uploaded = res
	l.res.VideoID = res.ID
	l.res.VideoURL = res.URL
	return done(map[string]string{"id": res.ID, "url": res.URL}), nil
}

func (r *run) captionsUploadStage(ctx context.Context, l *langRun) (outcome, error) {
	if err := r.deps.YouTube.UploadCaptions(ctx, l.uploaded.ID, l.srt, l.lang); err != nil {
		return outcome{}, err
	}
	return done(map[string]string{"video_id": l.uploaded.ID}), nil
}

func (r *run) dbInsertStage(ctx context.Context, l *langRun) (outcome, error) {
	if r.deps.Store == nil {
		return skip("no store configured"), nil
	}
	v := &db.Video{
		VideoID:    l.uploaded.ID,
		Platform:   db.PlatformYouTube,
		Language:   l.lang.Code,
		Topic:      r.topic.Topic,
		Category:   r.topic.Category,
		Title:      l.md.Title,
		UploadedAt: r.now(),
		RunDir:     r.dir,
	}
	if l.abVariant != nil {
		v.ABVariantID = l.abVariant.VariantID
	}
	id, err := r.deps.Store.InsertVideo(ctx, v)
	if err != nil {
		return outcome{}, err
	}
	l.videoDBID = id
	return done(map[string]int64{"id": id}), nil
}

func (r *run) playlistStage(ctx context.Context, l *langRun) (outcome, error) {
	id, err := r.deps.Playlists.Assign(ctx, l.videoDBID, l.uploaded.ID, r.topic.Category, l.lang)
	if err != nil {
		return outcome{}, err
	}
	if id == "" {
		return skip("not enough videos for a playlist yet"), nil
	}
	l.res.PlaylistID = id
	return done(map[string]string{"playlist_id": id}), nil
}

// shortsStage condenses the script, narrates it and renders the vertical cut
// from the shared images.
func (r *run) shortsStage(ctx context.Context, l *langRun) (outcome, error) {
	short, err := r.deps.Scripts.Shorten(ctx, l.script, l.lang)
	if err != nil {
		return outcome{}, err
	}
	voiceName := l.voice
	if voiceName == "" {
		if voiceName, err = voice.PickVoice(r.rnd, l.lang); err != nil {
			return outcome{}, err
		}
	}
	spoken := short.Clone()
	spoken.Outro = ""
	audio, err := voice.SynthesizeScenes(ctx, r.deps.Voice, spoken.SceneTexts(), filepath.Join(l.dir, audioDir, "shorts"), voiceName, r.opts.Variant.VoiceRate())
	if err != nil {
		return outcome{}, err
	}

	scenes := make([]media.Scene, len(short.Scenes))
	for i, sc := range short.Scenes {
		idx := sc.SceneNumber - 1
		if idx < 0 || idx >= len(r.images) {
			return outcome{}, fmt.Errorf("shorts scene %d has no image", sc.SceneNumber)
		}
		scenes[i] = media.Scene{Image: r.images[idx], Audio: audio[i]}
	}

	opts := r.mediaOptions(l)
	opts.Width = media.ShortsWidth
	opts.Height = media.ShortsHeight
	opts.Padding = media.ShortsPadding
	if r.cfg.Video.Subtitles {
		durations, err := r.probeAll(ctx, audio)
		if err != nil {
			return outcome{}, err
		}
		srt := filepath.Join(l.dir, shortsSRTFile)
		if err := captions.WriteSRT(srt, short, durations, captions.ShortsOptions()); err != nil {
			return outcome{}, err
		}
		opts.Subtitles = srt
	}

	out := filepath.Join(l.dir, shortsFile)
	n, err := r.deps.Media.AssembleShorts(ctx, scenes, out, opts)
	if err != nil {
		return outcome{}, err
	}
	l.shorts = out
	return done(map[string]any{"path": out, "scenes": n}), nil
}

func (r *run) shortsUploadStage(ctx context.Context, l *langRun) (outcome, error) {
	if !r.opts.Upload {
		return skip("upload disabled"), nil
	}
	if r.deps.YouTube == nil {
		return skip("no uploader configured"), nil
	}
	md := metadata.ShortsMetadata(l.md)
	res, err := r.deps.YouTube.Upload(ctx, publish.Media{Video: l.shorts, Metadata: md, Language: l.lang})
	if err != nil {
		return outcome{}, err
	}
	l.res.ShortsID = res.ID
	l.res.ShortsURL = res.URL

	data := map[string]string{"id": res.ID, "url": res.URL}
	if err := r.storeShorts(ctx, l, md, res.ID); err != nil {
		logf("Warning: shorts %s uploaded but not stored: %v", res.ID, err)
		data["store_error"] = err.Error()
	}
	return done(data), nil
}

// storeShorts attaches the shorts id to the full video's row, or records the
// shorts as a video of its own when there is no such row.
func (r *run) storeShorts(ctx context.Context, l *langRun, md *types.Metadata, shortsID string) error {
	if r.deps.Store == nil {
		return nil
	}
	if l.videoDBID != 0 {
		return r.deps.Store.UpdateVideoShorts(ctx, l.videoDBID, shortsID)
	}
	id, err := r.deps.Store.InsertVideo(ctx, &db.Video{
		VideoID:    shortsID,
		Platform:   db.PlatformYouTube,
		Language:   l.lang.Code,
		Topic:      r.topic.Topic,
		Category:   r.topic.Category,
		Title:      md.Title,
		UploadedAt: r.now(),
		RunDir:     r.dir,
	})
	if err != nil {
		return err
	}
	l.videoDBID = id
	return nil
}

// instagramStage exports the reel for manual posting or, in graph mode with
// uploads on, publishes it.
func (r *run) instagramStage(ctx context.Context, l *langRun) (outcome, error) {
	up := r.deps.Reels
	if _, isExport := up.(*publish.Export); up == nil || (!r.opts.Upload && !isExport) {
		up = publish.NewExport("")
	}
	res, err := up.Upload(ctx, publish.Media{Video: l.shorts, Thumbnail: l.thumbnail, Metadata: l.md, Language: l.lang})
	if err != nil {
		return outcome{}, err
	}
	if res.Platform == publish.ExportName {
		return saved(map[string]string{"path": res.URL}), nil
	}

	l.res.ReelURL = res.URL
	data := map[string]string{"id": res.ID, "url": res.URL}
	if r.deps.Store != nil && l.videoDBID != 0 {
		if err := r.deps.Store.UpdateVideoReel(ctx, l.videoDBID, res.ID); err != nil {
			logf("Warning: reel %s published but not stored: %v", res.ID, err)
			data["store_error"] = err.Error()
		}
	}
	return done(data), nil
}

// cleanupStage removes the large media of a language once it is published.
func (r *run) cleanupStage(_ context.Context, l *langRun) (outcome, error) {
	if !r.opts.Upload {
		return skip("upload disabled"), nil
	}
	if !r.published(l.res) {
		return skip("upload did not succeed"), nil
	}
	targets := []string{audioDir, clipsDir, segmentsDir, videoFile, thumbnailFile}
	if l.res.ShortsID != "" {
		targets = append(targets, shortsFile)
	}
	var errs []error
	for _, name := range targets {
		if err := os.RemoveAll(filepath.Join(l.dir, name)); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return outcome{}, fmt.Errorf("failed to clean up: %w", err)
	}
	logf("Cleaned up media for %s", l.lang.Code)
	return done(map[string]any{"removed": targets}), nil
}

// sharedCleanup removes the shared images once every language is published.
func (r *run) sharedCleanup() {
	var out outcome
	switch {
	case !r.opts.Upload:
		out = skip("upload disabled")
	case !r.allPublished():
		out = skip("kept until every language is uploaded")
	default:
		if err := os.RemoveAll(r.imagesDir()); err != nil {
			logf("Warning: failed to remove images: %v", err)
			if rerr := r.state.Fail(steps.SharedCleanup, err); rerr != nil {
				logf("Warning: failed to record %s: %v", steps.SharedCleanup, rerr)
			}
			return
		}
		out = done(map[string]string{"removed": r.imagesDir()})
	}
	r.record(steps.SharedCleanup, "", out)
}

// published reports whether a language's main deliverable reached the
// platform: the full video, or the shorts for shorts-only runs.
func (r *run) published(res *types.LanguageResult) bool {
	if r.opts.Variant.ShortsOnly() {
		return res.ShortsID != ""
	}
	return res.UploadSucceeded()
}

func (r *run) allPublished() bool {
	if len(r.summary.Languages) == 0 {
		return false
	}
	for i := range r.summary.Languages {
		if !r.published(&r.summary.Languages[i]) {
			return false
		}
	}
	return true
}

func (r *run) mediaOptions(l *langRun) media.Options {
	return media.Options{
		FPS:         r.cfg.Video.FPS,
		Music:       r.music,
		MusicVolume: r.cfg.Video.BgMusicVolume,
		WorkDir:     filepath.Join(l.dir, segmentsDir),
	}
}

func (r *run) probeAll(ctx context.Context, files []string) ([]time.Duration, error) {
	durations := make([]time.Duration, len(files))
	for i, f := range files {
		d, err := r.deps.Media.ProbeDuration(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("failed to probe %s: %w", filepath.Base(f), err)
		}
		durations[i] = d
	}
	return durations, nil
}
