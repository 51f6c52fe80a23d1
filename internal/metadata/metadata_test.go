package metadata

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/kids-video-pipeline/internal/errkind"
	"github.com/jonathan/kids-video-pipeline/internal/llm/llmtest"
	"github.com/jonathan/kids-video-pipeline/internal/types"
)

var (
	testTopic  = &types.Topic{Topic: "How Bees Make Honey", Category: "animals", TargetAge: "4-8"}
	testScript = &types.Script{Title: "The Busy Bees"}
)

func TestGenerate_English(t *testing.T) {
	fake := llmtest.New(`{"title": "🐝 How Bees Make Honey!", "description": "Learn about bees. #kids", "tags": ["bees", "honey"], "thumbnail_text": "BUZZ!"}`)
	g := NewLLMGenerator(fake)

	md, err := g.Generate(context.Background(), testTopic, testScript, types.Language{Code: "en", Name: "English"})
	require.NoError(t, err)
	assert.Equal(t, "🐝 How Bees Make Honey!", md.Title)
	assert.Equal(t, []string{"bees", "honey"}, md.Tags)
	assert.Equal(t, "BUZZ!", md.ThumbnailText)

	call := fake.Calls()[0]
	assert.Contains(t, call.Prompt, "Video title from script: The Busy Bees")
	assert.NotContains(t, call.Prompt, "IMPORTANT")
	assert.Equal(t, 600, call.MaxTokens)
}

func TestGenerate_OtherLanguage(t *testing.T) {
	fake := llmtest.New(`{"title": "Abejas", "description": "d", "tags": []}`)
	_, err := NewLLMGenerator(fake).Generate(context.Background(), testTopic, testScript, types.Language{Code: "es", Name: "Spanish"})
	require.NoError(t, err)

	call := fake.Calls()[0]
	assert.Contains(t, call.Prompt, "Write the title and description in Spanish")
	assert.Contains(t, call.System, "Write title and description in Spanish.")
}

func TestGenerate_MissingFields(t *testing.T) {
	fake := llmtest.New(`{"title": "Only a title"}`)
	_, err := NewLLMGenerator(fake).Generate(context.Background(), testTopic, testScript, types.Language{Code: "en"})
	require.Error(t, err)
	assert.False(t, errkind.IsTransient(err))
}

func TestShortsMetadata(t *testing.T) {
	md := &types.Metadata{Title: "Bees!", Description: "All about bees.", Tags: []string{"bees"}, ThumbnailText: "BUZZ"}
	short := ShortsMetadata(md)

	assert.Equal(t, "Bees! #Shorts", short.Title)
	assert.Equal(t, "All about bees.\n\n#Shorts #YouTubeShorts", short.Description)
	assert.Equal(t, []string{"bees", "shorts", "youtube shorts"}, short.Tags)
	assert.Equal(t, []string{"bees"}, md.Tags, "source tags untouched")
	assert.Equal(t, "BUZZ", short.ThumbnailText)
}

func TestShortsMetadata_LongTitle(t *testing.T) {
	md := &types.Metadata{Title: strings.Repeat("a", 95) + " bbbbbb"}
	short := ShortsMetadata(md)

	assert.LessOrEqual(t, len(short.Title), MaxTitleLen)
	assert.True(t, strings.HasSuffix(short.Title, " #Shorts"))
	assert.Equal(t, strings.Repeat("a", 92)+" #Shorts", short.Title)
}

func TestShortsMetadata_DoesNotSplitRunes(t *testing.T) {
	md := &types.Metadata{Title: strings.Repeat("🐝", 40)}
	short := ShortsMetadata(md)
	assert.True(t, utf8.ValidString(short.Title))
	assert.LessOrEqual(t, len(short.Title), MaxTitleLen)
}

func TestReelCaption(t *testing.T) {
	tags := make([]string, 20)
	for i := range tags {
		tags[i] = "kids video"
	}
	caption := ReelCaption(&types.Metadata{Title: "Bees", Description: "Honey facts", Tags: tags})

	parts := strings.Split(caption, "\n\n")
	require.Len(t, parts, 3)
	assert.Equal(t, "Bees", parts[0])
	assert.Len(t, strings.Fields(parts[2]), MaxCaptionTags)
	assert.True(t, strings.HasPrefix(parts[2], "#kidsvideo"))
}

func TestReelCaption_Truncated(t *testing.T) {
	caption := ReelCaption(&types.Metadata{Title: "T", Description: strings.Repeat("x", 3000)})
	assert.Equal(t, MaxCaptionLen, utf8.RuneCountInString(caption))
	assert.True(t, strings.HasSuffix(caption, "..."))
}

func TestSanitizeTags(t *testing.T) {
	got := SanitizeTags([]string{
		"<bees>", "Bees", "#honey", "a", strings.Repeat("long", 10), "  kids   learning  ", "bébé", "niños",
		"t1", "t2", "t3", "t4", "t5", "t6", "t7",
	})
	assert.Equal(t, []string{"bees", "honey", "kids learning", "bébé", "niños", "t1", "t2", "t3", "t4", "t5"}, got)
	assert.Len(t, got, MaxTags)
}

func TestCleanTitle(t *testing.T) {
	assert.Equal(t, "Bees & Honey", CleanTitle("  <Bees & Honey>  "))
	assert.Equal(t, MaxTitleLen, utf8.RuneCountInString(CleanTitle(strings.Repeat("é", 150))))
	assert.Equal(t, "desc", CleanDescription(" <desc> "))
}
