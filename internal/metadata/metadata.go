// Package metadata generates and cleans the publishing metadata attached to
// each upload: YouTube titles, descriptions and tags, shorts variants, and
// reel captions.
package metadata

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jonathan/kids-video-pipeline/internal/config"
	"github.com/jonathan/kids-video-pipeline/internal/llm"
	"github.com/jonathan/kids-video-pipeline/internal/prompts"
	"github.com/jonathan/kids-video-pipeline/internal/provider"
	"github.com/jonathan/kids-video-pipeline/internal/schemas"
	"github.com/jonathan/kids-video-pipeline/internal/types"
)

// Platform limits.
const (
	MaxTitleLen       = 100
	MaxTags           = 10
	MaxCaptionLen     = 2200
	MaxCaptionTags    = 15
	ShortsTitleSuffix = " #Shorts"
)

// Generator writes metadata for one language version of a video.
type Generator interface {
	Generate(ctx context.Context, topic *types.Topic, script *types.Script, lang types.Language) (*types.Metadata, error)
}

// Providers is the registry of metadata generators.
var Providers = provider.NewRegistry[Generator]("metadata")

func init() {
	Providers.Register("llm", func(cfg *config.Config, env *provider.Env) (Generator, error) {
		client, err := llm.NewClient(cfg, env)
		if err != nil {
			return nil, err
		}
		return NewLLMGenerator(client), nil
	})
}

// New creates the metadata generator.
func New(cfg *config.Config, env *provider.Env) (Generator, error) {
	return Providers.New("llm", cfg, env)
}

// LLMGenerator implements Generator with a prompted SEO writer.
type LLMGenerator struct {
	client llm.Client
}

// NewLLMGenerator creates a metadata generator.
func NewLLMGenerator(client llm.Client) *LLMGenerator {
	return &LLMGenerator{client: client}
}

// Generate implements Generator.
func (g *LLMGenerator) Generate(ctx context.Context, topic *types.Topic, script *types.Script, lang types.Language) (*types.Metadata, error) {
	system, err := prompts.Get(prompts.MetadataSystem)
	if err != nil {
		return nil, err
	}
	template, err := prompts.Get(prompts.Metadata)
	if err != nil {
		return nil, err
	}

	note := ""
	if !lang.IsEnglish() {
		noteTemplate, err := prompts.Get(prompts.LanguageNote)
		if err != nil {
			return nil, err
		}
		note = prompts.Format(noteTemplate, map[string]string{"Language": lang.Name})
		system += fmt.Sprintf(" Write title and description in %s.", lang.Name)
	}

	text, err := g.client.GenerateJSON(ctx, llm.Request{
		System: system,
		Prompt: prompts.Format(template, map[string]string{
			"Topic":        topic.Topic,
			"Category":     topic.Category,
			"TargetAge":    topic.TargetAge,
			"ScriptTitle":  script.Title,
			"LanguageNote": note,
		}),
		Tier:        llm.TierStandard,
		Temperature: 0.7,
		MaxTokens:   600,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate metadata: %w", err)
	}
	cleaned := llm.CleanJSONBlock(text)
	if err := schemas.Validate(schemas.Metadata, []byte(cleaned)); err != nil {
		return nil, err
	}
	var md types.Metadata
	if err := llm.DecodeJSON("metadata", cleaned, &md); err != nil {
		return nil, err
	}
	return &md, nil
}

// ShortsMetadata derives the shorts upload metadata from the full video's.
func ShortsMetadata(md *types.Metadata) *types.Metadata {
	title := md.Title
	maxLen := MaxTitleLen - len(ShortsTitleSuffix)
	if len(title) > maxLen {
		title = strings.TrimRight(truncateBytes(title, maxLen), " ")
	}
	tags := append(append([]string(nil), md.Tags...), "shorts", "youtube shorts")
	return &types.Metadata{
		Title:         title + ShortsTitleSuffix,
		Description:   md.Description + "\n\n#Shorts #YouTubeShorts",
		Tags:          tags,
		ThumbnailText: md.ThumbnailText,
	}
}

// ReelCaption builds an Instagram caption: title, description and up to
// fifteen hashtags, capped at the platform limit.
func ReelCaption(md *types.Metadata) string {
	tags := md.Tags
	if len(tags) > MaxCaptionTags {
		tags = tags[:MaxCaptionTags]
	}
	hashtags := make([]string, len(tags))
	for i, tag := range tags {
		hashtags[i] = "#" + strings.ReplaceAll(tag, " ", "")
	}
	caption := md.Title + "\n\n" + md.Description + "\n\n" + strings.Join(hashtags, " ")
	if utf8.RuneCountInString(caption) > MaxCaptionLen {
		runes := []rune(caption)
		caption = string(runes[:MaxCaptionLen-3]) + "..."
	}
	return caption
}

var (
	tagRejected   = regexp.MustCompile(`[<>"'{}()\[\]@#$%^&*+=|\\~` + "`" + `]`)
	spaces        = regexp.MustCompile(`\s+`)
	angleBrackets = regexp.MustCompile(`[<>]`)
)

// SanitizeTags strips characters YouTube rejects, drops duplicates and tags
// outside 2..30 characters, and keeps at most ten.
func SanitizeTags(tags []string) []string {
	clean := make([]string, 0, MaxTags)
	seen := make(map[string]bool)
	for _, tag := range tags {
		tag = tagRejected.ReplaceAllString(tag, "")
		tag = strings.TrimSpace(spaces.ReplaceAllString(tag, " "))
		n := utf8.RuneCountInString(tag)
		key := strings.ToLower(tag)
		if n >= 2 && n <= 30 && !seen[key] {
			clean = append(clean, tag)
			seen[key] = true
		}
		if len(clean) >= MaxTags {
			break
		}
	}
	return clean
}

// CleanTitle removes angle brackets and caps the title length.
func CleanTitle(title string) string {
	title = strings.TrimSpace(angleBrackets.ReplaceAllString(title, ""))
	runes := []rune(title)
	if len(runes) > MaxTitleLen {
		title = string(runes[:MaxTitleLen])
	}
	return title
}

// CleanDescription removes angle brackets.
func CleanDescription(desc string) string {
	return strings.TrimSpace(angleBrackets.ReplaceAllString(desc, ""))
}

// truncateBytes cuts s to at most n bytes without splitting a rune.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
