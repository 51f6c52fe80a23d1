package scripting

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"github.com/jonathan/kids-video-pipeline/internal/config"
)

// RhymeSchemes are the verse patterns a poem may use.
var RhymeSchemes = []string{"AABB", "ABAB", "ABCB"}

// PoemTemplates maps a topic category to poem themes.
var PoemTemplates = map[string][]string{
	"animal_rhymes":   {"The Dancing Bear", "Elephant's Big Adventure", "Bunny's Garden Day", "The Clever Fox"},
	"nature":          {"Seasons Change", "Rainbow After Rain", "The Busy Bee", "Little Raindrop"},
	"counting_rhymes": {"Ten Little Fireflies", "Five Colorful Balloons", "One to Twenty Adventure"},
	"alphabet_poems":  {"A is for Apple", "Letters All Around Us", "ABC Journey"},
	"bedtime_verse":   {"Goodnight Moon and Stars", "The Sleepy Forest Friends", "Dreams of Tomorrow"},
	"science":         {"The Tiny Seed", "Why the Sky is Blue", "Planets in a Row"},
	"food":            {"The Fruit Rainbow", "Vegetables All Around", "Yummy in My Tummy"},
}

// LullabyTemplates groups lullaby themes.
var LullabyTemplates = map[string][]string{
	"goodnight_themes":      {"Goodnight Little One", "Sleep Sweet Child", "Tomorrow's New Day"},
	"star_and_moon_themes":  {"Moonlight Lullaby", "Stars Watch Over You", "Twinkle Twinkle Little Star"},
	"gentle_animal_friends": {"The Sleepy Kitten", "Owl's Nighttime Song", "Bear's Cozy Cave"},
	"dreamland_journeys":    {"Sailing to Dreamland", "The Dream Train", "Cloud Castle Dreams"},
}

const defaultPoemCategory = "nature"

// poemTheme picks a theme for the category, defaulting to nature themes.
func poemTheme(r *rand.Rand, category string) string {
	themes, ok := PoemTemplates[category]
	if !ok {
		themes = PoemTemplates[defaultPoemCategory]
	}
	return themes[r.Intn(len(themes))]
}

// lullabyTheme picks a random group, then a random theme in it.
func lullabyTheme(r *rand.Rand) string {
	groups := make([]string, 0, len(LullabyTemplates))
	for k := range LullabyTemplates {
		groups = append(groups, k)
	}
	sort.Strings(groups)
	themes := LullabyTemplates[groups[r.Intn(len(groups))]]
	return themes[r.Intn(len(themes))]
}

// BrandVoiceInstructions renders the brand voice block appended to script
// prompts. It is empty when the brand voice is disabled.
func BrandVoiceInstructions(bv config.BrandVoiceConfig) string {
	if !bv.Enabled {
		return ""
	}
	parts := []string{"\nBRAND VOICE GUIDELINES:"}
	if bv.Tone != "" {
		parts = append(parts, "- Tone: "+bv.Tone)
	}
	if len(bv.Catchphrases) > 0 {
		quoted := make([]string, len(bv.Catchphrases))
		for i, p := range bv.Catchphrases {
			quoted[i] = fmt.Sprintf("%q", p)
		}
		parts = append(parts, "- Naturally incorporate catchphrases like: "+strings.Join(quoted, ", "))
	}
	if bv.VocabularyLevel != "" {
		parts = append(parts, "- Vocabulary level: "+bv.VocabularyLevel)
	}
	return strings.Join(parts, "\n")
}
