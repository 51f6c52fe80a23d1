package scripting

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/kids-video-pipeline/internal/config"
	"github.com/jonathan/kids-video-pipeline/internal/errkind"
	"github.com/jonathan/kids-video-pipeline/internal/llm"
	"github.com/jonathan/kids-video-pipeline/internal/llm/llmtest"
	"github.com/jonathan/kids-video-pipeline/internal/types"
)

var spanish = types.Language{Code: "es", Name: "Spanish", Voices: []string{"es-MX-DaliaNeural"}}

func testContent() config.ContentConfig {
	return config.ContentConfig{Niche: "science", TargetAge: "4-8", ScenesPerVideo: 3, VideoDurationMinutes: 2}
}

func sampleScript(n int) *types.Script {
	s := &types.Script{Title: "The Busy Bees", IntroHook: "Buzz buzz! Ready?", Outro: "Bye bees!", Language: "en", Style: "story"}
	for i := 1; i <= n; i++ {
		s.Scenes = append(s.Scenes, types.Scene{
			SceneNumber:       i,
			VisualDescription: fmt.Sprintf("A cheerful bee #%d over a sunflower, watercolor", i),
			Narration:         fmt.Sprintf("Fact number %d about bees.", i),
		})
	}
	return s
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func TestWrite_Story(t *testing.T) {
	fake := llmtest.New(mustJSON(t, sampleScript(3)))
	w := NewLLMWriter(fake, testContent(), config.BrandVoiceConfig{Enabled: true, Tone: "playful", Catchphrases: []string{"Let's go!"}})

	script, err := w.Write(context.Background(), &types.Topic{Topic: "Bees", Description: "How bees make honey"}, StyleStory)
	require.NoError(t, err)
	assert.Len(t, script.Scenes, 3)
	assert.Equal(t, "en", script.Language)
	assert.Equal(t, "story", script.Style)

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Prompt, "Number of scenes: 3")
	assert.Contains(t, calls[0].Prompt, "kids aged 4-8")
	assert.Contains(t, calls[0].Prompt, `"Let's go!"`)
	assert.Equal(t, float32(0.7), calls[0].Temperature)
	assert.Equal(t, llm.TierStandard, calls[0].Tier)
}

func TestWrite_PoemFillsNarrationFromLines(t *testing.T) {
	poem := `{"title": "Busy Bee", "intro_hook": "Come and hum along!", "outro": "Goodnight!",
		"scenes": [
			{"scene_number": 1, "visual_description": "bee", "lines": ["Buzz goes the bee", "Up in the tree", "Sweet as can be", "Happy and free"]},
			{"scene_number": 2, "visual_description": "hive", "narration": "Already set", "lines": ["a"]}
		]}`
	fake := llmtest.New(poem)
	w := NewLLMWriter(fake, testContent(), config.BrandVoiceConfig{})
	w.SetRand(rand.New(rand.NewSource(1)))

	script, err := w.Write(context.Background(), &types.Topic{Topic: "Bees", Category: "science"}, StylePoem)
	require.NoError(t, err)
	assert.Equal(t, "Buzz goes the bee Up in the tree Sweet as can be Happy and free", script.Scenes[0].Narration)
	assert.Equal(t, "Already set", script.Scenes[1].Narration)
	assert.Equal(t, "poem", script.Style)

	prompt := fake.LastPrompt()
	var scheme string
	for _, s := range RhymeSchemes {
		if strings.Contains(prompt, "Rhyme scheme: "+s) {
			scheme = s
		}
	}
	assert.NotEmpty(t, scheme, "prompt names one of the rhyme schemes")

	var theme bool
	for _, th := range PoemTemplates["science"] {
		theme = theme || strings.Contains(prompt, th)
	}
	assert.True(t, theme, "theme comes from the topic's category")
}

func TestWrite_PoemSceneWithoutTextFails(t *testing.T) {
	fake := llmtest.New(`{"title": "x", "scenes": [{"scene_number": 1, "visual_description": "v"}]}`)
	w := NewLLMWriter(fake, testContent(), config.BrandVoiceConfig{})

	_, err := w.Write(context.Background(), &types.Topic{Topic: "x"}, StylePoem)
	require.Error(t, err)
	assert.False(t, errkind.IsTransient(err))
}

func TestWrite_RenumbersScenesByPosition(t *testing.T) {
	script := `{"title": "Bees", "scenes": [
		{"scene_number": 2, "visual_description": "meadow", "narration": "One."},
		{"scene_number": 2, "visual_description": "bee", "narration": "Two."},
		{"scene_number": 7, "visual_description": "hive", "narration": "Three."}
	]}`
	w := NewLLMWriter(llmtest.New(script), testContent(), config.BrandVoiceConfig{})

	got, err := w.Write(context.Background(), &types.Topic{Topic: "Bees"}, StyleStory)
	require.NoError(t, err)
	for i, scene := range got.Scenes {
		assert.Equal(t, i+1, scene.SceneNumber)
	}
	assert.Equal(t, []string{"meadow", "bee", "hive"}, got.VisualDescriptions())

	short := FallbackShort(got)
	assert.Equal(t, []int{1, 2, 3}, []int{short.Scenes[0].SceneNumber, short.Scenes[1].SceneNumber, short.Scenes[2].SceneNumber})
}

func TestWrite_SceneWithoutVisualFails(t *testing.T) {
	for name, scene := range map[string]string{
		"missing": `{"scene_number": 1, "narration": "One."}`,
		"blank":   `{"scene_number": 1, "visual_description": "   ", "narration": "One."}`,
	} {
		t.Run(name, func(t *testing.T) {
			w := NewLLMWriter(llmtest.New(`{"title": "Bees", "scenes": [`+scene+`]}`), testContent(), config.BrandVoiceConfig{})
			_, err := w.Write(context.Background(), &types.Topic{Topic: "Bees"}, StyleStory)
			require.Error(t, err)
			assert.False(t, errkind.IsTransient(err))
		})
	}
}

func TestWrite_Lullaby(t *testing.T) {
	fake := llmtest.New(mustJSON(t, sampleScript(4)))
	w := NewLLMWriter(fake, testContent(), config.BrandVoiceConfig{})

	script, err := w.Write(context.Background(), &types.Topic{Topic: "Sleepy stars"}, StyleLullaby)
	require.NoError(t, err)
	assert.Equal(t, "lullaby", script.Style)
	assert.Equal(t, float32(0.6), fake.Calls()[0].Temperature)
	assert.Equal(t, 1500, fake.Calls()[0].MaxTokens)
}

func TestWrite_UnknownStyle(t *testing.T) {
	w := NewLLMWriter(llmtest.New(), testContent(), config.BrandVoiceConfig{})
	_, err := w.Write(context.Background(), &types.Topic{Topic: "x"}, Style("opera"))
	require.Error(t, err)
	assert.True(t, errkind.IsConfig(err))
}

func TestWrite_MalformedJSON(t *testing.T) {
	w := NewLLMWriter(llmtest.New("Sure! Here is your script: title = bees"), testContent(), config.BrandVoiceConfig{})
	_, err := w.Write(context.Background(), &types.Topic{Topic: "x"}, StyleStory)
	require.Error(t, err)
	assert.False(t, errkind.IsTransient(err))
}

// The translator is free to rewrite narration and titles, and here it also
// mangles every visual description. Whatever it returns, the scenes must line
// up with the shared English images.
func TestTranslate_PreservesVisualDescriptions(t *testing.T) {
	for _, n := range []int{1, 2, 5, 8} {
		t.Run(fmt.Sprintf("%d scenes", n), func(t *testing.T) {
			src := sampleScript(n)
			fake := &llmtest.Fake{Respond: func(req llm.Request) (string, error) {
				out := src.Clone()
				out.Title = "Las Abejas Ocupadas"
				out.IntroHook = "¡Bzz bzz! ¿Listos?"
				for i := range out.Scenes {
					out.Scenes[i].Narration = fmt.Sprintf("Dato número %d sobre las abejas.", i+1)
					out.Scenes[i].VisualDescription = "Una abeja alegre " + strings.Repeat("!", i)
					out.Scenes[i].SceneNumber = 100 + i
				}
				return mustJSON(t, out), nil
			}}
			w := NewLLMWriter(fake, testContent(), config.BrandVoiceConfig{})

			got, err := w.Translate(context.Background(), src, spanish)
			require.NoError(t, err)
			require.Len(t, got.Scenes, n)
			for i := range src.Scenes {
				assert.Equal(t, src.Scenes[i].VisualDescription, got.Scenes[i].VisualDescription)
				assert.Equal(t, src.Scenes[i].SceneNumber, got.Scenes[i].SceneNumber)
			}
			assert.Equal(t, "Las Abejas Ocupadas", got.Title)
			assert.Equal(t, "es", got.Language)
			assert.Equal(t, "story", got.Style)
		})
	}
}

func TestTranslate_SceneCountMismatch(t *testing.T) {
	src := sampleScript(4)
	fake := llmtest.New(mustJSON(t, sampleScript(3)))
	w := NewLLMWriter(fake, testContent(), config.BrandVoiceConfig{})

	_, err := w.Translate(context.Background(), src, spanish)
	require.Error(t, err)
	assert.False(t, errkind.IsTransient(err))
	assert.Contains(t, err.Error(), "3 scenes")
}

func TestTranslate_EnglishIsACopy(t *testing.T) {
	src := sampleScript(2)
	fake := llmtest.New()
	w := NewLLMWriter(fake, testContent(), config.BrandVoiceConfig{})

	got, err := w.Translate(context.Background(), src, types.Language{Code: "en", Name: "English"})
	require.NoError(t, err)
	assert.Equal(t, src.Scenes, got.Scenes)
	assert.Empty(t, fake.Calls())

	got.Scenes[0].Narration = "changed"
	assert.NotEqual(t, "changed", src.Scenes[0].Narration)
}

func TestTranslate_HindiUsesHinglish(t *testing.T) {
	src := sampleScript(1)
	fake := llmtest.New(mustJSON(t, src))
	w := NewLLMWriter(fake, testContent(), config.BrandVoiceConfig{})

	_, err := w.Translate(context.Background(), src, types.Language{Code: "hi", Name: "Hindi"})
	require.NoError(t, err)
	assert.Contains(t, fake.LastPrompt(), "HINGLISH")
}

func TestShorten(t *testing.T) {
	full := sampleScript(5)
	short := &types.Script{
		Title:     full.Title,
		IntroHook: "Did you know bees dance to talk to each other every single day?",
		Scenes: []types.Scene{
			{SceneNumber: 2, VisualDescription: "rewritten", Narration: "Bees dance!"},
			{SceneNumber: 4, VisualDescription: "honey jar", Narration: "Honey never spoils."},
			{SceneNumber: 5, VisualDescription: "queen bee", Narration: "Queens rule."},
			{SceneNumber: 1, VisualDescription: "meadow", Narration: "Too many."},
		},
		Outro: "Follow for more!",
	}
	w := NewLLMWriter(llmtest.New(mustJSON(t, short)), testContent(), config.BrandVoiceConfig{})

	got, err := w.Shorten(context.Background(), full, types.Language{Code: "en", Name: "English"})
	require.NoError(t, err)
	require.Len(t, got.Scenes, ShortsMaxScenes)
	assert.Equal(t, full.Scenes[1].VisualDescription, got.Scenes[0].VisualDescription)
	assert.Equal(t, full.Scenes[3].VisualDescription, got.Scenes[1].VisualDescription)
	assert.Len(t, strings.Fields(got.IntroHook), ShortsHookWords)
}

func TestShorten_FallsBackOnFailure(t *testing.T) {
	full := sampleScript(5)
	full.IntroHook = "one two three four five six seven eight nine ten eleven twelve"
	w := NewLLMWriter(&llmtest.Fake{Err: errkind.Transient("llm", fmt.Errorf("overloaded"))}, testContent(), config.BrandVoiceConfig{})

	got, err := w.Shorten(context.Background(), full, spanish)
	require.NoError(t, err)
	assert.Equal(t, full.Scenes[:3], got.Scenes)
	assert.Equal(t, "one two three four five six seven eight nine ten", got.IntroHook)
}

func TestShorten_UnknownSceneFallsBack(t *testing.T) {
	full := sampleScript(3)
	bogus := &types.Script{Title: "x", Scenes: []types.Scene{{SceneNumber: 9, Narration: "??"}}}
	w := NewLLMWriter(llmtest.New(mustJSON(t, bogus)), testContent(), config.BrandVoiceConfig{})

	got, err := w.Shorten(context.Background(), full, spanish)
	require.NoError(t, err)
	assert.Equal(t, full.Scenes, got.Scenes)
}

func TestShorten_DuplicateSceneFallsBack(t *testing.T) {
	full := sampleScript(3)
	dup := &types.Script{Title: "x", Scenes: []types.Scene{
		{SceneNumber: 2, VisualDescription: "a", Narration: "one"},
		{SceneNumber: 2, VisualDescription: "b", Narration: "two"},
	}}
	w := NewLLMWriter(llmtest.New(mustJSON(t, dup)), testContent(), config.BrandVoiceConfig{})

	got, err := w.Shorten(context.Background(), full, spanish)
	require.NoError(t, err)
	assert.Equal(t, full.Scenes, got.Scenes)
}

func TestBrandVoiceInstructions(t *testing.T) {
	assert.Empty(t, BrandVoiceInstructions(config.BrandVoiceConfig{Tone: "silly"}))

	got := BrandVoiceInstructions(config.BrandVoiceConfig{
		Enabled: true, Tone: "warm", Catchphrases: []string{"Wow!", "Let's explore"}, VocabularyLevel: "simple",
	})
	assert.Contains(t, got, "BRAND VOICE GUIDELINES:")
	assert.Contains(t, got, "- Tone: warm")
	assert.Contains(t, got, `"Wow!", "Let's explore"`)
	assert.Contains(t, got, "- Vocabulary level: simple")
}

func TestTemplates(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		assert.Contains(t, PoemTemplates["nature"], poemTheme(r, "unknown-category"))
	}
	var all []string
	for _, themes := range LullabyTemplates {
		all = append(all, themes...)
	}
	for i := 0; i < 50; i++ {
		assert.Contains(t, all, lullabyTheme(r))
	}
}
