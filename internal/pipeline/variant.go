package pipeline

import (
	"fmt"
	"time"

	"github.com/jonathan/kids-video-pipeline/internal/media"
	"github.com/jonathan/kids-video-pipeline/internal/scripting"
	"github.com/jonathan/kids-video-pipeline/internal/voice"
)

// Variant names a flavour of the pipeline.
type Variant string

// Pipeline variants.
const (
	VariantPlain    Variant = "plain"
	VariantShorts   Variant = "shorts"
	VariantPoem     Variant = "poem"
	VariantLullaby  Variant = "lullaby"
	VariantAnimated Variant = "animated"
)

// Variants lists every known variant.
var Variants = []Variant{VariantPlain, VariantShorts, VariantPoem, VariantLullaby, VariantAnimated}

// ParseVariant validates a variant name. An empty name means plain.
func ParseVariant(name string) (Variant, error) {
	if name == "" {
		return VariantPlain, nil
	}
	for _, v := range Variants {
		if string(v) == name {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown pipeline variant: %s", name)
}

// Style is the script structure the variant writes.
func (v Variant) Style() scripting.Style {
	switch v {
	case VariantPoem:
		return scripting.StylePoem
	case VariantLullaby:
		return scripting.StyleLullaby
	default:
		return scripting.StyleStory
	}
}

// MusicSubdir narrows background music library picks.
func (v Variant) MusicSubdir() string {
	switch v {
	case VariantPoem, VariantLullaby:
		return string(v)
	default:
		return ""
	}
}

// VoiceRate is the narration speed.
func (v Variant) VoiceRate() string {
	if v == VariantLullaby {
		return voice.LullabyRate
	}
	return ""
}

// Padding is the silence after each scene of the full video.
func (v Variant) Padding() time.Duration {
	if v == VariantLullaby {
		return media.LullabyPadding
	}
	return media.ScenePadding
}

// Animated reports whether scenes are animated before assembly.
func (v Variant) Animated() bool { return v == VariantAnimated }

// ShortsOnly reports whether the full-length video is skipped.
func (v Variant) ShortsOnly() bool { return v == VariantShorts }

// dirPrefix is prepended to the timestamped run directory.
func (v Variant) dirPrefix() string {
	if v == VariantPlain || v == "" {
		return ""
	}
	return string(v) + "_"
}
