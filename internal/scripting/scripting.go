// Package scripting writes the narrated scene scripts: stories, poems and
// lullabies in English, their translations, and the condensed shorts cut.
package scripting

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonathan/kids-video-pipeline/internal/config"
	"github.com/jonathan/kids-video-pipeline/internal/errkind"
	"github.com/jonathan/kids-video-pipeline/internal/llm"
	"github.com/jonathan/kids-video-pipeline/internal/prompts"
	"github.com/jonathan/kids-video-pipeline/internal/provider"
	"github.com/jonathan/kids-video-pipeline/internal/schemas"
	"github.com/jonathan/kids-video-pipeline/internal/types"
)

// Style selects the script structure.
type Style string

// Script styles.
const (
	StyleStory   Style = "story"
	StylePoem    Style = "poem"
	StyleLullaby Style = "lullaby"
)

// Scene counts for the fixed-structure styles.
const (
	PoemScenes    = 6
	LullabyScenes = 4
	// ShortsMaxScenes caps the shorts cut.
	ShortsMaxScenes = 3
	// ShortsHookWords caps the shorts hook.
	ShortsHookWords = 10
)

// Writer produces and adapts scripts.
type Writer interface {
	// Write creates the English base script for a topic.
	Write(ctx context.Context, topic *types.Topic, style Style) (*types.Script, error)
	// Translate localizes a script. Scene count, order, numbering and every
	// visual description are kept from the source.
	Translate(ctx context.Context, src *types.Script, lang types.Language) (*types.Script, error)
	// Shorten condenses a script for shorts. It falls back to a plain cut of
	// the full script when generation fails.
	Shorten(ctx context.Context, full *types.Script, lang types.Language) (*types.Script, error)
}

// Providers is the registry of script writers.
var Providers = provider.NewRegistry[Writer]("script")

func init() {
	Providers.Register("llm", func(cfg *config.Config, env *provider.Env) (Writer, error) {
		client, err := llm.NewClient(cfg, env)
		if err != nil {
			return nil, err
		}
		return NewLLMWriter(client, cfg.Content, cfg.BrandVoice), nil
	})
}

// New creates the script writer. There is a single implementation backed by
// whichever LLM providers.llm selects.
func New(cfg *config.Config, env *provider.Env) (Writer, error) {
	return Providers.New("llm", cfg, env)
}

// LLMWriter implements Writer with prompted generation.
type LLMWriter struct {
	client  llm.Client
	content config.ContentConfig
	brand   config.BrandVoiceConfig

	mu   sync.Mutex
	rand *rand.Rand
}

// NewLLMWriter creates a writer.
func NewLLMWriter(client llm.Client, content config.ContentConfig, brand config.BrandVoiceConfig) *LLMWriter {
	return &LLMWriter{
		client:  client,
		content: content,
		brand:   brand,
		rand:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetRand replaces the source used for rhyme schemes and themes.
func (w *LLMWriter) SetRand(r *rand.Rand) {
	w.mu.Lock()
	w.rand = r
	w.mu.Unlock()
}

func (w *LLMWriter) pick(fn func(r *rand.Rand) string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return fn(w.rand)
}

// Write implements Writer.
func (w *LLMWriter) Write(ctx context.Context, topic *types.Topic, style Style) (*types.Script, error) {
	if topic == nil {
		return nil, fmt.Errorf("topic is required")
	}
	targetAge := topic.TargetAge
	if targetAge == "" {
		targetAge = w.content.TargetAge
	}
	data := map[string]string{
		"TargetAge":   targetAge,
		"Topic":       topic.Topic,
		"Description": topic.Description,
		"BrandVoice":  BrandVoiceInstructions(w.brand),
	}

	var (
		key, systemKey prompts.Key
		temperature    float32
		maxTokens      int
		wantScenes     int
	)
	switch style {
	case StyleStory, "":
		style = StyleStory
		key, systemKey = prompts.Story, prompts.StorySystem
		temperature, maxTokens = 0.7, 2000
		wantScenes = w.content.ScenesPerVideo
		data["Duration"] = strconv.Itoa(w.content.VideoDurationMinutes)
		data["Scenes"] = strconv.Itoa(wantScenes)
	case StylePoem:
		key, systemKey = prompts.Poem, prompts.PoemSystem
		temperature, maxTokens = 0.8, 2000
		wantScenes = PoemScenes
		data["RhymeScheme"] = w.pick(func(r *rand.Rand) string { return RhymeSchemes[r.Intn(len(RhymeSchemes))] })
		data["Theme"] = w.pick(func(r *rand.Rand) string { return poemTheme(r, topic.Category) })
	case StyleLullaby:
		key, systemKey = prompts.Lullaby, prompts.LullabySystem
		temperature, maxTokens = 0.6, 1500
		wantScenes = LullabyScenes
		data["Theme"] = w.pick(lullabyTheme)
	default:
		return nil, errkind.Configf("script", "unknown script style %q", style)
	}

	script, err := w.generate(ctx, systemKey, key, data, temperature, maxTokens)
	if err != nil {
		return nil, fmt.Errorf("failed to write %s script: %w", style, err)
	}
	NumberScenes(script)
	if wantScenes > 0 && len(script.Scenes) != wantScenes {
		logf("warning: %s script has %d scenes, asked for %d", style, len(script.Scenes), wantScenes)
	}
	script.Language = "en"
	script.Style = string(style)
	return script, nil
}

// Translate implements Writer.
func (w *LLMWriter) Translate(ctx context.Context, src *types.Script, lang types.Language) (*types.Script, error) {
	if src == nil {
		return nil, fmt.Errorf("source script is required")
	}
	if lang.IsEnglish() {
		out := src.Clone()
		out.Language = lang.Code
		return out, nil
	}

	body, err := scriptJSON(src)
	if err != nil {
		return nil, err
	}
	translated, err := w.generate(ctx, prompts.TranslateSystem, prompts.Translate, map[string]string{
		"Language":   languageInstruction(lang),
		"Script":     body,
		"BrandVoice": BrandVoiceInstructions(w.brand),
	}, 0.7, 2000)
	if err != nil {
		return nil, fmt.Errorf("failed to translate script to %s: %w", lang.Name, err)
	}
	if err := PreserveVisuals(src, translated); err != nil {
		return nil, err
	}
	translated.Language = lang.Code
	translated.Style = src.Style
	return translated, nil
}

// PreserveVisuals copies scene numbers and visual descriptions from src into
// dst, which must have the same number of scenes. Images are generated once
// from the English descriptions and shared by every language.
func PreserveVisuals(src, dst *types.Script) error {
	if len(dst.Scenes) != len(src.Scenes) {
		return errkind.New(errkind.KindUnknown, "translate",
			fmt.Errorf("translated script has %d scenes, source has %d", len(dst.Scenes), len(src.Scenes)))
	}
	for i := range dst.Scenes {
		dst.Scenes[i].SceneNumber = src.Scenes[i].SceneNumber
		dst.Scenes[i].VisualDescription = src.Scenes[i].VisualDescription
	}
	return nil
}

// NumberScenes sets every scene number to its 1-based position. Scene images
// are generated by position, so the base script's numbering must match.
func NumberScenes(s *types.Script) {
	for i := range s.Scenes {
		if s.Scenes[i].SceneNumber != i+1 {
			logf("warning: renumbering scene %d at position %d", s.Scenes[i].SceneNumber, i+1)
			s.Scenes[i].SceneNumber = i + 1
		}
	}
}

// Shorten implements Writer.
func (w *LLMWriter) Shorten(ctx context.Context, full *types.Script, lang types.Language) (*types.Script, error) {
	if full == nil {
		return nil, fmt.Errorf("script is required")
	}
	short, err := w.shorten(ctx, full, lang)
	if err == nil {
		return short, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	logf("warning: shorts script generation failed for %s, cutting the full script: %v", lang.Code, err)
	return FallbackShort(full), nil
}

func (w *LLMWriter) shorten(ctx context.Context, full *types.Script, lang types.Language) (*types.Script, error) {
	body, err := scriptJSON(full)
	if err != nil {
		return nil, err
	}
	note := ""
	if !lang.IsEnglish() {
		note = fmt.Sprintf("\nWrite the intro_hook, narration, and outro in %s.\nKeep visual_description in English.\n", languageInstruction(lang))
	}
	short, err := w.generate(ctx, prompts.ShortsSystem, prompts.Shorts, map[string]string{
		"Script":       body,
		"LanguageNote": note,
		"BrandVoice":   BrandVoiceInstructions(w.brand),
		"Title":        full.Title,
	}, 0.8, 1000)
	if err != nil {
		return nil, err
	}

	bySceneNumber := make(map[int]types.Scene, len(full.Scenes))
	for _, s := range full.Scenes {
		bySceneNumber[s.SceneNumber] = s
	}
	if len(short.Scenes) > ShortsMaxScenes {
		short.Scenes = short.Scenes[:ShortsMaxScenes]
	}
	seen := make(map[int]bool, len(short.Scenes))
	for i, s := range short.Scenes {
		orig, ok := bySceneNumber[s.SceneNumber]
		if !ok {
			return nil, fmt.Errorf("shorts scene %d does not exist in the full script", s.SceneNumber)
		}
		if seen[s.SceneNumber] {
			return nil, fmt.Errorf("shorts scene %d is used twice", s.SceneNumber)
		}
		seen[s.SceneNumber] = true
		short.Scenes[i].VisualDescription = orig.VisualDescription
	}
	short.IntroHook = LimitWords(short.IntroHook, ShortsHookWords)
	short.Language = full.Language
	short.Style = full.Style
	return short, nil
}

// FallbackShort cuts the first scenes of a full script and trims its hook.
func FallbackShort(full *types.Script) *types.Script {
	out := full.Clone()
	if len(out.Scenes) > ShortsMaxScenes {
		out.Scenes = out.Scenes[:ShortsMaxScenes]
	}
	out.IntroHook = LimitWords(out.IntroHook, ShortsHookWords)
	return out
}

// LimitWords keeps at most n words of s.
func LimitWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:n], " ")
}

// generate runs one script prompt, validates the answer and normalizes
// scenes.
func (w *LLMWriter) generate(ctx context.Context, systemKey, key prompts.Key, data map[string]string, temperature float32, maxTokens int) (*types.Script, error) {
	system, err := prompts.Get(systemKey)
	if err != nil {
		return nil, err
	}
	template, err := prompts.Get(key)
	if err != nil {
		return nil, err
	}

	text, err := w.client.GenerateJSON(ctx, llm.Request{
		System:      system,
		Prompt:      prompts.Format(template, data),
		Tier:        llm.TierStandard,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return nil, err
	}
	cleaned := llm.CleanJSONBlock(text)
	if err := schemas.Validate(schemas.Script, []byte(cleaned)); err != nil {
		return nil, err
	}
	var script types.Script
	if err := llm.DecodeJSON(key.Name, cleaned, &script); err != nil {
		return nil, err
	}
	for i := range script.Scenes {
		scene := &script.Scenes[i]
		if strings.TrimSpace(scene.Narration) == "" && len(scene.Lines) > 0 {
			scene.Narration = strings.Join(scene.Lines, " ")
		}
		if strings.TrimSpace(scene.Narration) == "" {
			return nil, errkind.New(errkind.KindUnknown, key.Name, fmt.Errorf("scene %d has no narration", scene.SceneNumber))
		}
		if strings.TrimSpace(scene.VisualDescription) == "" {
			return nil, errkind.New(errkind.KindUnknown, key.Name, fmt.Errorf("scene %d has no visual description", scene.SceneNumber))
		}
	}
	return &script, nil
}

// scriptJSON renders the parts of a script the LLM rewrites.
func scriptJSON(s *types.Script) (string, error) {
	data, err := json.MarshalIndent(struct {
		Title     string        `json:"title"`
		IntroHook string        `json:"intro_hook"`
		Scenes    []types.Scene `json:"scenes"`
		Outro     string        `json:"outro"`
	}{s.Title, s.IntroHook, s.Scenes, s.Outro}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal script: %w", err)
	}
	return string(data), nil
}

// languageInstruction names the target language. Hindi scripts are written
// in Hinglish, the way the audience actually speaks.
func languageInstruction(lang types.Language) string {
	if lang.Code == "hi" {
		return "HINGLISH (casual Hindi-English mix, mostly English with Hindi words sprinkled in; keep greetings and exclamations in English)"
	}
	return lang.Name
}

func logf(format string, args ...any) {
	log.Printf("[script] "+format, args...)
}
