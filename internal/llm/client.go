package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"

	appconfig "github.com/jonathan/kids-video-pipeline/internal/config"
	"github.com/jonathan/kids-video-pipeline/internal/errkind"
	"github.com/jonathan/kids-video-pipeline/internal/provider"
	"github.com/jonathan/kids-video-pipeline/internal/retry"
)

// Request is one chat-style completion.
type Request struct {
	System      string
	Prompt      string
	Tier        ModelTier
	Temperature float32 // zero uses the configured temperature
	MaxTokens   int     // zero leaves the provider default
}

// Client is an abstraction over LLM providers
type Client interface {
	// GenerateContent returns free text
	GenerateContent(ctx context.Context, req Request) (string, error)
	// GenerateJSON returns a JSON document with any markdown fencing removed
	GenerateJSON(ctx context.Context, req Request) (string, error)
	// GetModel returns the provider model used for a tier
	GetModel(tier ModelTier) string
	// Close releases any resources held by the client
	Close() error
}

// Providers is the registry of LLM backends.
var Providers = provider.NewRegistry[Client]("llm")

func init() {
	Providers.Register(string(ProviderGemini), func(cfg *appconfig.Config, env *provider.Env) (Client, error) {
		if err := provider.RequireKey("llm", "GEMINI_API_KEY", cfg.Gemini.APIKey); err != nil {
			return nil, err
		}
		return NewGeminiClient(context.Background(), FromAppConfig(cfg), cfg.Gemini.APIKey, env, cfg.LLM.Timeout)
	})
	Providers.Register(string(ProviderOpenAI), func(cfg *appconfig.Config, env *provider.Env) (Client, error) {
		if err := provider.RequireKey("llm", "OPENAI_API_KEY", cfg.OpenAI.APIKey); err != nil {
			return nil, err
		}
		return NewOpenAIClient(FromAppConfig(cfg), cfg.OpenAI.BaseURL, cfg.OpenAI.APIKey, env), nil
	})
	Providers.Register(string(ProviderGroq), func(cfg *appconfig.Config, env *provider.Env) (Client, error) {
		if err := provider.RequireKey("llm", "GROQ_API_KEY", cfg.Groq.APIKey); err != nil {
			return nil, err
		}
		return NewOpenAIClient(FromAppConfig(cfg), cfg.Groq.BaseURL, cfg.Groq.APIKey, env), nil
	})
}

// NewClient creates the LLM client selected by providers.llm.
func NewClient(cfg *appconfig.Config, env *provider.Env) (Client, error) {
	return Providers.New(cfg.Providers.LLM, cfg, env)
}

// GeminiClient implements Client for Google Gemini
type GeminiClient struct {
	client  *genai.Client
	config  *Config
	env     *provider.Env
	policy  retry.Policy
	timeout time.Duration
}

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(ctx context.Context, config *Config, apiKey string, env *provider.Env, timeout time.Duration) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, errkind.Configf("llm", "API key is required")
	}
	if config == nil {
		config = DefaultGeminiConfig()
	}
	if env == nil {
		env = &provider.Env{}
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	policy := env.Policy(string(ProviderGemini))
	policy.Retryable = errkind.IsTransient

	return &GeminiClient{
		client:  client,
		config:  config,
		env:     env,
		policy:  policy,
		timeout: timeout,
	}, nil
}

// GenerateContent generates text content for the request's tier
func (c *GeminiClient) GenerateContent(ctx context.Context, req Request) (string, error) {
	return c.generate(ctx, req, false)
}

// GenerateJSON generates JSON content for the request's tier
func (c *GeminiClient) GenerateJSON(ctx context.Context, req Request) (string, error) {
	text, err := c.generate(ctx, req, true)
	if err != nil {
		return "", err
	}
	// Clean any markdown code block wrappers
	return CleanJSONBlock(text), nil
}

func (c *GeminiClient) generate(ctx context.Context, req Request, asJSON bool) (string, error) {
	modelName := c.config.GetModel(req.Tier)
	if modelName == "" {
		return "", errkind.Configf("llm", "no model configured for tier %s", req.Tier)
	}

	model := c.client.GenerativeModel(modelName)
	model.SetTemperature(c.config.temperature(req))
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	if asJSON {
		model.ResponseMIMEType = "application/json"
	}

	return retry.DoValue(ctx, c.policy, func(ctx context.Context) (string, error) {
		if err := c.env.Acquire(ctx, string(ProviderGemini)); err != nil {
			return "", err
		}
		callCtx := ctx
		if c.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
		resp, err := model.GenerateContent(callCtx, genai.Text(req.Prompt))
		if err != nil {
			return "", classifyGeminiError(fmt.Errorf("failed to generate content: %w", err))
		}
		return extractTextFromResponse(resp)
	})
}

// GetModel returns the model name for a tier
func (c *GeminiClient) GetModel(tier ModelTier) string {
	return c.config.GetModel(tier)
}

// Close releases resources held by the client
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// classifyGeminiError tags SDK errors: quota, unavailability and deadline
// errors are transient, everything else fails immediately.
func classifyGeminiError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if ae, ok := apierror.FromError(err); ok {
		if code := ae.HTTPCode(); code > 0 {
			if errkind.TransientStatus(code) {
				return errkind.Transient("gemini", err)
			}
			return errkind.New(errkind.KindUnknown, "gemini", err)
		}
		switch ae.GRPCStatus().Code() {
		case codes.ResourceExhausted, codes.Unavailable, codes.DeadlineExceeded, codes.Internal, codes.Aborted:
			return errkind.Transient("gemini", err)
		}
		return errkind.New(errkind.KindUnknown, "gemini", err)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && errkind.TransientStatus(gerr.Code) {
		return errkind.Transient("gemini", err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errkind.Of(err) == errkind.KindTransient {
		return errkind.Transient("gemini", err)
	}
	return errkind.New(errkind.KindUnknown, "gemini", err)
}

// extractTextFromResponse extracts text from Gemini API response
func extractTextFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}

	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in response")
	}

	return strings.Join(parts, ""), nil
}
