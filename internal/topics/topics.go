// Package topics picks the subject of each run, either by prompting the LLM
// or by adapting popular reddit posts, and keeps the used-topic history.
package topics

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/jonathan/kids-video-pipeline/internal/config"
	"github.com/jonathan/kids-video-pipeline/internal/errkind"
	"github.com/jonathan/kids-video-pipeline/internal/llm"
	"github.com/jonathan/kids-video-pipeline/internal/prompts"
	"github.com/jonathan/kids-video-pipeline/internal/provider"
	"github.com/jonathan/kids-video-pipeline/internal/schemas"
	"github.com/jonathan/kids-video-pipeline/internal/types"
)

// Request carries run-time inputs for topic generation.
type Request struct {
	// Hints is the performance summary from the feedback loop, may be empty.
	Hints string
}

// Generator produces one new topic per call.
type Generator interface {
	Generate(ctx context.Context, req Request) (*types.Topic, error)
}

// Providers is the registry of topic sources.
var Providers = provider.NewRegistry[Generator]("topic")

func init() {
	Providers.Register("llm", func(cfg *config.Config, env *provider.Env) (Generator, error) {
		client, err := llm.NewClient(cfg, env)
		if err != nil {
			return nil, err
		}
		return NewLLMGenerator(client, historyFor(cfg), cfg.Content), nil
	})
	Providers.Register("reddit", func(cfg *config.Config, env *provider.Env) (Generator, error) {
		client, err := llm.NewClient(cfg, env)
		if err != nil {
			return nil, err
		}
		source, err := NewRedditSource(env, "")
		if err != nil {
			return nil, err
		}
		history := historyFor(cfg)
		g := NewRedditGenerator(source, client, history, cfg.Content, cfg.Reddit)
		g.Fallback = NewLLMGenerator(client, history, cfg.Content)
		return g, nil
	})
}

// New creates the generator selected by providers.topic.
func New(cfg *config.Config, env *provider.Env) (Generator, error) {
	return Providers.New(cfg.Providers.Topic, cfg, env)
}

func historyFor(cfg *config.Config) *History {
	return NewHistory(filepath.Join(cfg.DataDir, HistoryFile))
}

// LLMGenerator asks the language model for a topic that avoids recent history.
type LLMGenerator struct {
	client  llm.Client
	history *History
	content config.ContentConfig
}

// NewLLMGenerator creates a prompted topic generator.
func NewLLMGenerator(client llm.Client, history *History, content config.ContentConfig) *LLMGenerator {
	return &LLMGenerator{client: client, history: history, content: content}
}

// Generate returns a fresh topic and appends it to the history.
func (g *LLMGenerator) Generate(ctx context.Context, req Request) (*types.Topic, error) {
	window := g.content.HistoryWindow
	if window <= 0 {
		window = config.DefaultHistoryWindow
	}
	past, err := g.history.Recent(window)
	if err != nil {
		return nil, err
	}

	template, err := prompts.Get(prompts.GenerateTopic)
	if err != nil {
		return nil, err
	}
	prompt := prompts.Format(template, map[string]string{
		"TargetAge":  g.content.TargetAge,
		"Niche":      g.content.Niche,
		"PastTopics": formatPast(past),
		"Hints":      formatHints(req.Hints),
	})

	topic, err := requestTopic(ctx, g.client, prompt)
	if err != nil {
		return nil, err
	}
	if topic.TargetAge == "" {
		topic.TargetAge = g.content.TargetAge
	}
	topic.Source = "llm"

	if err := g.history.Append(*topic); err != nil {
		return nil, err
	}
	return topic, nil
}

// requestTopic runs the topic prompt and validates the answer.
func requestTopic(ctx context.Context, client llm.Client, prompt string) (*types.Topic, error) {
	system, err := prompts.Get(prompts.TopicSystem)
	if err != nil {
		return nil, err
	}
	text, err := client.GenerateJSON(ctx, llm.Request{
		System:      system,
		Prompt:      prompt,
		Tier:        llm.TierLite,
		Temperature: 0.9,
		MaxTokens:   200,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate topic: %w", err)
	}
	cleaned := llm.CleanJSONBlock(text)
	if err := schemas.Validate(schemas.Topic, []byte(cleaned)); err != nil {
		return nil, err
	}
	var topic types.Topic
	if err := llm.DecodeJSON("topic", cleaned, &topic); err != nil {
		return nil, err
	}
	topic.Topic = strings.TrimSpace(topic.Topic)
	topic.Category = strings.ToLower(strings.TrimSpace(topic.Category))
	if topic.Topic == "" {
		return nil, errkind.New(errkind.KindUnknown, "topic", fmt.Errorf("LLM returned an empty topic"))
	}
	return &topic, nil
}

func formatPast(past []string) string {
	if len(past) == 0 {
		return "None yet"
	}
	data, err := json.MarshalIndent(past, "", "  ")
	if err != nil {
		return strings.Join(past, "\n")
	}
	return string(data)
}

func formatHints(hints string) string {
	if strings.TrimSpace(hints) == "" {
		return ""
	}
	return "\n" + hints + "\n"
}

func logf(format string, args ...any) {
	log.Printf("[topic] "+format, args...)
}
