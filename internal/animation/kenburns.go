package animation

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jonathan/kids-video-pipeline/internal/config"
	"github.com/jonathan/kids-video-pipeline/internal/errkind"
	"github.com/jonathan/kids-video-pipeline/internal/media"
)

// KenBurnsName is the provider key for local pan and zoom clips.
const KenBurnsName = "kenburns"

// Effect names.
const (
	EffectZoomIn   = "zoom_in"
	EffectZoomOut  = "zoom_out"
	EffectPanLeft  = "pan_left"
	EffectPanRight = "pan_right"
	EffectPanUp    = "pan_up"
	EffectCombined = "combined"
)

// Effects lists every supported effect.
var Effects = []string{EffectZoomIn, EffectZoomOut, EffectPanLeft, EffectPanRight, EffectPanUp, EffectCombined}

// DefaultZoomRatio is the zoom gained per second.
const DefaultZoomRatio = 0.04

// Oversize margins give the crop window room to move.
const (
	zoomMargin     = 1.35
	panMargin      = 1.4
	combinedMargin = 1.5
)

// KenBurns animates stills with ffmpeg's zoompan filter. Each clip gets a
// random effect from the configured set.
type KenBurns struct {
	ff        *media.FFmpeg
	width     int
	height    int
	fps       int
	zoomRatio float64
	effects   []string

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewKenBurns validates the effect list and creates the animator.
func NewKenBurns(ff *media.FFmpeg, video config.VideoConfig, anim config.AnimationConfig) (*KenBurns, error) {
	effects := anim.Effects
	if len(effects) == 0 {
		effects = Effects
	}
	for _, e := range effects {
		if !knownEffect(e) {
			return nil, errkind.Configf("animation", "unknown Ken Burns effect %q", e)
		}
	}
	ratio := anim.ZoomRatio
	if ratio <= 0 {
		ratio = DefaultZoomRatio
	}
	fps := video.FPS
	if fps <= 0 {
		fps = 24
	}
	return &KenBurns{
		ff:        ff,
		width:     video.Width,
		height:    video.Height,
		fps:       fps,
		zoomRatio: ratio,
		effects:   effects,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// SetRand replaces the effect picker's source.
func (k *KenBurns) SetRand(r *rand.Rand) {
	k.mu.Lock()
	k.rnd = r
	k.mu.Unlock()
}

// Animate implements Animator.
func (k *KenBurns) Animate(ctx context.Context, req Request) error {
	k.mu.Lock()
	effect := k.effects[k.rnd.Intn(len(k.effects))]
	dir := 1
	if k.rnd.Intn(2) == 0 {
		dir = -1
	}
	k.mu.Unlock()

	logf("Effect: %s", effect)
	if err := os.MkdirAll(filepath.Dir(req.Output), 0o755); err != nil {
		return fmt.Errorf("failed to create clip directory: %w", err)
	}
	return k.ff.Run(ctx,
		"-loop", "1", "-i", req.Image,
		"-vf", k.Filter(effect, req.Duration, dir),
		"-t", media.Seconds(req.Duration),
		"-c:v", "libx264", "-pix_fmt", "yuv420p", "-an",
		req.Output,
	)
}

// Filter builds the scale and zoompan chain for effect over d. dir chooses
// the pan direction of the combined effect.
func (k *KenBurns) Filter(effect string, d time.Duration, dir int) string {
	frames := int(math.Ceil(d.Seconds() * float64(k.fps)))
	if frames < 1 {
		frames = 1
	}
	perFrame := k.zoomRatio / float64(k.fps)
	centerX := "iw/2-(iw/zoom/2)"
	centerY := "ih/2-(ih/zoom/2)"

	var margin float64
	var z, x, y string
	switch effect {
	case EffectZoomOut:
		margin = zoomMargin
		start := 1 + k.zoomRatio*d.Seconds()
		z = fmt.Sprintf("max(1,%.4f-%.6f*on)", start, perFrame)
		x, y = centerX, centerY
	case EffectPanLeft:
		margin = panMargin
		z = fmt.Sprintf("%.2f", panMargin)
		x = fmt.Sprintf("(iw-iw/zoom)*(1-on/%d)", frames)
		y = "(ih-ih/zoom)/2"
	case EffectPanRight:
		margin = panMargin
		z = fmt.Sprintf("%.2f", panMargin)
		x = fmt.Sprintf("(iw-iw/zoom)*on/%d", frames)
		y = "(ih-ih/zoom)/2"
	case EffectPanUp:
		margin = panMargin
		z = fmt.Sprintf("%.2f", panMargin)
		x = "(iw-iw/zoom)/2"
		y = fmt.Sprintf("(ih-ih/zoom)*(1-on/%d)", frames)
	case EffectCombined:
		margin = combinedMargin
		z = fmt.Sprintf("1+%.6f*on", perFrame)
		x = fmt.Sprintf("max(0,min(iw-iw/zoom,%s+%d*(iw-iw/zoom)*0.4*on/%d))", centerX, dir, frames)
		y = centerY
	default:
		margin = zoomMargin
		z = fmt.Sprintf("1+%.6f*on", perFrame)
		x, y = centerX, centerY
	}

	w := int(math.Round(float64(k.width) * margin))
	h := int(math.Round(float64(k.height) * margin))
	return fmt.Sprintf("scale=%d:%d,zoompan=z='%s':x='%s':y='%s':d=1:s=%dx%d:fps=%d,setsar=1",
		w, h, z, x, y, k.width, k.height, k.fps)
}

func knownEffect(name string) bool {
	for _, e := range Effects {
		if e == name {
			return true
		}
	}
	return false
}
