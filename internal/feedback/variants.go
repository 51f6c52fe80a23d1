package feedback

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jonathan/kids-video-pipeline/internal/config"
	"github.com/jonathan/kids-video-pipeline/internal/llm"
	"github.com/jonathan/kids-video-pipeline/internal/prompts"
	"github.com/jonathan/kids-video-pipeline/internal/provider"
	"github.com/jonathan/kids-video-pipeline/internal/schemas"
	"github.com/jonathan/kids-video-pipeline/internal/types"
)

// Styles lists the variant approaches in the order they are requested.
var Styles = []string{"curiosity", "excitement", "educational"}

// VariantGenerator produces A/B candidates for one language version.
type VariantGenerator interface {
	Generate(ctx context.Context, topic *types.Topic, script *types.Script, md *types.Metadata, lang types.Language) ([]types.Variant, error)
}

// Variants is the registry of variant generators.
var Variants = provider.NewRegistry[VariantGenerator]("ab_testing")

func init() {
	Variants.Register("llm", func(cfg *config.Config, env *provider.Env) (VariantGenerator, error) {
		client, err := llm.NewClient(cfg, env)
		if err != nil {
			return nil, err
		}
		return NewLLMVariantGenerator(client, cfg.ABTesting.VariantsCount), nil
	})
}

// LLMVariantGenerator asks the model for differently styled titles, hooks
// and thumbnail texts.
type LLMVariantGenerator struct {
	client llm.Client
	count  int
}

// NewLLMVariantGenerator creates a generator asking for count variants.
func NewLLMVariantGenerator(client llm.Client, count int) *LLMVariantGenerator {
	if count <= 0 {
		count = config.DefaultVariantsCount
	}
	return &LLMVariantGenerator{client: client, count: count}
}

// Generate implements VariantGenerator. Variants the model returns without a
// style take the style for their position.
func (g *LLMVariantGenerator) Generate(ctx context.Context, topic *types.Topic, script *types.Script, md *types.Metadata, lang types.Language) ([]types.Variant, error) {
	system, err := prompts.Get(prompts.VariantsSystem)
	if err != nil {
		return nil, err
	}
	template, err := prompts.Get(prompts.Variants)
	if err != nil {
		return nil, err
	}

	styles := make([]string, g.count)
	for i := range styles {
		styles[i] = Styles[i%len(Styles)]
	}

	text, err := g.client.GenerateJSON(ctx, llm.Request{
		System: system,
		Prompt: prompts.Format(template, map[string]string{
			"Count":         strconv.Itoa(g.count),
			"Topic":         topic.Topic,
			"Category":      topic.Category,
			"Title":         md.Title,
			"Hook":          script.IntroHook,
			"ThumbnailText": md.ThumbnailText,
			"Language":      lang.Name,
			"Styles":        strings.Join(styles, ", "),
		}),
		Tier:        llm.TierLite,
		Temperature: 0.9,
		MaxTokens:   800,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate variants: %w", err)
	}
	cleaned := llm.CleanJSONBlock(text)
	if err := schemas.Validate(schemas.Variants, []byte(cleaned)); err != nil {
		return nil, err
	}
	var set types.VariantSet
	if err := llm.DecodeJSON("variants", cleaned, &set); err != nil {
		return nil, err
	}
	for i := range set.Variants {
		if set.Variants[i].Style == "" {
			set.Variants[i].Style = Styles[i%len(Styles)]
		}
	}
	logf("Generated %d variants for '%s' (%s)", len(set.Variants), topic.Topic, lang.Code)
	return set.Variants, nil
}
