// Package llm provides centralized LLM configuration and client abstractions.
// Topic, script, metadata and A/B prompts all go through the Client interface,
// whatever backend answers them.
package llm

import (
	appconfig "github.com/jonathan/kids-video-pipeline/internal/config"
)

// ModelTier represents the complexity/capability level of a model
type ModelTier string

const (
	// TierLite is for short structured answers: topics, A/B variants
	TierLite ModelTier = "lite"
	// TierStandard is for scripts, translations and metadata
	TierStandard ModelTier = "standard"
	// TierAdvanced is for long-form creative writing
	TierAdvanced ModelTier = "advanced"
)

// Provider represents an LLM provider
type Provider string

// Provider constants define supported LLM providers
const (
	// ProviderGemini is the Google Gemini provider
	ProviderGemini Provider = "gemini"
	// ProviderOpenAI is the OpenAI chat completions API
	ProviderOpenAI Provider = "openai"
	// ProviderGroq is Groq's OpenAI-compatible endpoint
	ProviderGroq Provider = "groq"
)

// DefaultTemperature is used when a request leaves Temperature at zero.
const DefaultTemperature float32 = 0.8

// Config holds the model configuration for the application
type Config struct {
	Provider    Provider
	Models      map[ModelTier]string
	Temperature float32
}

// DefaultConfig returns the default configuration (currently Gemini)
func DefaultConfig() *Config {
	return DefaultGeminiConfig()
}

// DefaultGeminiConfig returns the default Gemini configuration
func DefaultGeminiConfig() *Config {
	return &Config{
		Provider: ProviderGemini,
		Models: map[ModelTier]string{
			TierLite:     "gemini-2.5-flash-lite",
			TierStandard: "gemini-2.5-flash",
			TierAdvanced: "gemini-2.5-pro",
		},
		Temperature: DefaultTemperature,
	}
}

// SingleModelConfig uses one model for every tier.
func SingleModelConfig(p Provider, model string) *Config {
	return &Config{
		Provider: p,
		Models: map[ModelTier]string{
			TierLite:     model,
			TierStandard: model,
			TierAdvanced: model,
		},
		Temperature: DefaultTemperature,
	}
}

// FromAppConfig derives the LLM configuration for the selected backend.
// Entries under llm.models override the backend's tier defaults.
func FromAppConfig(cfg *appconfig.Config) *Config {
	var c *Config
	switch Provider(cfg.Providers.LLM) {
	case ProviderOpenAI:
		c = SingleModelConfig(ProviderOpenAI, cfg.OpenAI.Model)
	case ProviderGroq:
		c = SingleModelConfig(ProviderGroq, cfg.Groq.Model)
	default:
		c = DefaultGeminiConfig()
	}
	for tier, model := range cfg.LLM.Models {
		if model != "" {
			c.Models[ModelTier(tier)] = model
		}
	}
	if cfg.LLM.Temperature > 0 {
		c.Temperature = cfg.LLM.Temperature
	}
	return c
}

// GetModel returns the model name for a given tier
func (c *Config) GetModel(tier ModelTier) string {
	if model, ok := c.Models[tier]; ok {
		return model
	}
	// Fallback chain: try standard, then lite
	if model, ok := c.Models[TierStandard]; ok {
		return model
	}
	if model, ok := c.Models[TierLite]; ok {
		return model
	}
	return "" // No model configured
}

// WithModel returns a new Config with a specific model for a tier
func (c *Config) WithModel(tier ModelTier, model string) *Config {
	newConfig := &Config{
		Provider:    c.Provider,
		Models:      make(map[ModelTier]string),
		Temperature: c.Temperature,
	}
	for k, v := range c.Models {
		newConfig.Models[k] = v
	}
	newConfig.Models[tier] = model
	return newConfig
}

func (c *Config) temperature(req Request) float32 {
	if req.Temperature > 0 {
		return req.Temperature
	}
	if c.Temperature > 0 {
		return c.Temperature
	}
	return DefaultTemperature
}
