// Package voice synthesizes narration audio through pluggable TTS providers.
package voice

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/jonathan/kids-video-pipeline/internal/config"
	"github.com/jonathan/kids-video-pipeline/internal/provider"
	"github.com/jonathan/kids-video-pipeline/internal/types"
)

// LullabyRate slows narration for bedtime videos.
const LullabyRate = "-10%"

// Request is one narration clip.
type Request struct {
	Text  string
	Voice string
	// Rate is an edge-tts style relative speed such as "-10%" or "+5%".
	Rate   string
	Output string
}

// Synthesizer writes spoken audio for text to req.Output.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) error
}

// Providers is the registry of TTS backends.
var Providers = provider.NewRegistry[Synthesizer]("tts")

func init() {
	Providers.Register(EdgeName, func(cfg *config.Config, env *provider.Env) (Synthesizer, error) {
		return NewEdge(cfg.EdgeTTS.Binary, env), nil
	})
	Providers.Register(ElevenLabsName, func(cfg *config.Config, env *provider.Env) (Synthesizer, error) {
		if err := provider.RequireKey("tts", "ELEVENLABS_API_KEY", cfg.ElevenLabs.APIKey); err != nil {
			return nil, err
		}
		return NewElevenLabs(cfg.ElevenLabs.BaseURL, cfg.ElevenLabs.APIKey, cfg.ElevenLabs.Model, env), nil
	})
	Providers.Register(OpenAIName, func(cfg *config.Config, env *provider.Env) (Synthesizer, error) {
		if err := provider.RequireKey("tts", "OPENAI_API_KEY", cfg.OpenAI.APIKey); err != nil {
			return nil, err
		}
		return NewOpenAI(cfg.OpenAI.BaseURL, cfg.OpenAI.APIKey, cfg.OpenAI.TTSModel, env), nil
	})
}

// New creates the synthesizer selected by providers.tts.
func New(cfg *config.Config, env *provider.Env) (Synthesizer, error) {
	return Providers.New(cfg.Providers.TTS, cfg, env)
}

// PickVoice chooses one of the language's configured voices at random.
func PickVoice(r *rand.Rand, lang types.Language) (string, error) {
	if len(lang.Voices) == 0 {
		return "", fmt.Errorf("no voices configured for language: %s", lang.Code)
	}
	return lang.Voices[r.Intn(len(lang.Voices))], nil
}

// SynthesizeScenes narrates each text in order to dir/scene_N.mp3.
func SynthesizeScenes(ctx context.Context, s Synthesizer, texts []string, dir, voiceName, rate string) ([]string, error) {
	files := make([]string, 0, len(texts))
	for i, text := range texts {
		out := filepath.Join(dir, fmt.Sprintf("scene_%d.mp3", i+1))
		err := s.Synthesize(ctx, Request{Text: SanitizeText(text), Voice: voiceName, Rate: rate, Output: out})
		if err != nil {
			return files, fmt.Errorf("failed to synthesize scene %d: %w", i+1, err)
		}
		files = append(files, out)
	}
	return files, nil
}

var ttsReplacer = strings.NewReplacer(
	"’", "'", "‘", "'",
	"“", `"`, "”", `"`,
	"–", "-", "—", "-",
	"…", "...",
)

// SanitizeText replaces typographic punctuation some TTS engines choke on.
func SanitizeText(text string) string {
	return ttsReplacer.Replace(text)
}

// ChunkText splits text into pieces of at most max bytes, preferring
// sentence ends, then word boundaries.
func ChunkText(text string, max int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if max <= 0 || len(text) <= max {
		return []string{text}
	}

	var chunks []string
	for len(text) > max {
		cut := lastSentenceEnd(text[:max])
		if cut <= 0 {
			cut = strings.LastIndexByte(text[:max], ' ')
		}
		if cut <= 0 {
			cut = max
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			if cut == 0 {
				// max is smaller than the first rune; emit that rune alone.
				_, cut = utf8.DecodeRuneInString(text)
			}
		}
		chunks = append(chunks, strings.TrimSpace(text[:cut]))
		text = strings.TrimSpace(text[cut:])
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

// lastSentenceEnd returns the index just after the last ". ", "! " or "? ".
func lastSentenceEnd(s string) int {
	best := -1
	for _, sep := range []string{". ", "! ", "? "} {
		if i := strings.LastIndex(s, sep); i > best {
			best = i
		}
	}
	if best < 0 {
		return -1
	}
	return best + 1
}

// rateToSpeed converts "-10%" into a 0.9 speed multiplier.
func rateToSpeed(rate string) float64 {
	rate = strings.TrimSpace(rate)
	if rate == "" {
		return 1
	}
	var pct float64
	if _, err := fmt.Sscanf(strings.TrimSuffix(rate, "%"), "%g", &pct); err != nil {
		return 1
	}
	speed := 1 + pct/100
	if speed < 0.25 {
		speed = 0.25
	}
	if speed > 4 {
		speed = 4
	}
	return speed
}
