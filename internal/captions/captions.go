// Package captions builds SRT subtitle files and plain transcripts from a
// script and the duration of each scene's narration audio.
package captions

import (
	"fmt"
	"strings"
	"time"

	"github.com/jonathan/kids-video-pipeline/internal/fetch"
	"github.com/jonathan/kids-video-pipeline/internal/types"
)

// Options controls subtitle chunking and timing.
type Options struct {
	WordsPerChunk int
	SceneGap      time.Duration
	// MaxDuration drops every scene that would end past it; zero means no cap.
	MaxDuration time.Duration
	// Shorts narration carries the intro hook but no outro.
	Shorts bool
}

// FullOptions are used for the long-form video.
func FullOptions() Options {
	return Options{WordsPerChunk: 10, SceneGap: 500 * time.Millisecond}
}

// ShortsOptions are used for the vertical shorts cut.
func ShortsOptions() Options {
	return Options{WordsPerChunk: 8, SceneGap: 300 * time.Millisecond, MaxDuration: 59 * time.Second, Shorts: true}
}

// Cue is one subtitle block.
type Cue struct {
	Index int
	Start time.Duration
	End   time.Duration
	Text  string
}

// BuildSRT splits every scene's narration into chunks spread evenly over the
// scene's audio duration. durations must have one entry per scene.
func BuildSRT(script *types.Script, durations []time.Duration, opts Options) ([]Cue, error) {
	if len(durations) != len(script.Scenes) {
		return nil, fmt.Errorf("got %d audio durations for %d scenes", len(durations), len(script.Scenes))
	}
	if opts.WordsPerChunk <= 0 {
		opts.WordsPerChunk = 10
	}

	texts := narration(script, opts.Shorts)
	var (
		cues []Cue
		now  time.Duration
	)
	for i, text := range texts {
		sceneDur := durations[i]
		if opts.MaxDuration > 0 && now+sceneDur > opts.MaxDuration {
			break
		}
		chunks := chunkWords(text, opts.WordsPerChunk)
		if len(chunks) > 0 {
			step := sceneDur / time.Duration(len(chunks))
			for _, chunk := range chunks {
				cues = append(cues, Cue{Index: len(cues) + 1, Start: now, End: now + step, Text: chunk})
				now += step
			}
		}
		now += opts.SceneGap
	}
	return cues, nil
}

// Render formats cues as an SRT document.
func Render(cues []Cue) string {
	blocks := make([]string, len(cues))
	for i, c := range cues {
		blocks[i] = fmt.Sprintf("%d\n%s --> %s\n%s\n", c.Index, FormatTimestamp(c.Start), FormatTimestamp(c.End), c.Text)
	}
	return strings.Join(blocks, "\n")
}

// WriteSRT builds and writes a subtitle file.
func WriteSRT(path string, script *types.Script, durations []time.Duration, opts Options) error {
	cues, err := BuildSRT(script, durations, opts)
	if err != nil {
		return err
	}
	if err := fetch.WriteFile(path, []byte(Render(cues))); err != nil {
		return fmt.Errorf("failed to write captions: %w", err)
	}
	return nil
}

// FormatTimestamp renders HH:MM:SS,mmm.
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	return fmt.Sprintf("%02d:%02d:%02d,%03d", ms/3_600_000, ms/60_000%60, ms/1000%60, ms%1000)
}

// Transcript renders the spoken text as a plain transcript for descriptions.
func Transcript(script *types.Script) string {
	lines := append([]string{"--- Transcript ---"}, script.SceneTexts()...)
	return strings.Join(lines, "\n")
}

func narration(script *types.Script, shorts bool) []string {
	if !shorts {
		return script.SceneTexts()
	}
	texts := make([]string, len(script.Scenes))
	for i, s := range script.Scenes {
		texts[i] = s.Narration
		if i == 0 && script.IntroHook != "" {
			texts[i] = script.IntroHook + " " + s.Narration
		}
	}
	return texts
}

func chunkWords(text string, n int) []string {
	words := strings.Fields(text)
	var chunks []string
	for len(words) > 0 {
		k := n
		if len(words) < k {
			k = len(words)
		}
		chunks = append(chunks, strings.Join(words[:k], " "))
		words = words[k:]
	}
	return chunks
}
