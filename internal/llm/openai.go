package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/jonathan/kids-video-pipeline/internal/errkind"
	"github.com/jonathan/kids-video-pipeline/internal/fetch"
	"github.com/jonathan/kids-video-pipeline/internal/provider"
)

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint.
// Groq is served by the same client with a different base URL and key.
type OpenAIClient struct {
	config  *Config
	baseURL string
	http    *fetch.Client
}

// NewOpenAIClient creates a chat completions client. The limiter bucket is
// named after config.Provider.
func NewOpenAIClient(config *Config, baseURL, apiKey string, env *provider.Env) *OpenAIClient {
	if env == nil {
		env = &provider.Env{}
	}
	c := env.Client(string(config.Provider))
	c.Headers = map[string]string{"Authorization": "Bearer " + apiKey}
	return &OpenAIClient{
		config:  config,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    c,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float32           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// GenerateContent returns the first choice's text.
func (c *OpenAIClient) GenerateContent(ctx context.Context, req Request) (string, error) {
	return c.complete(ctx, req, false)
}

// GenerateJSON asks for a JSON object response.
func (c *OpenAIClient) GenerateJSON(ctx context.Context, req Request) (string, error) {
	text, err := c.complete(ctx, req, true)
	if err != nil {
		return "", err
	}
	return CleanJSONBlock(text), nil
}

func (c *OpenAIClient) complete(ctx context.Context, req Request, asJSON bool) (string, error) {
	model := c.config.GetModel(req.Tier)
	if model == "" {
		return "", errkind.Configf("llm", "no model configured for tier %s", req.Tier)
	}

	body := chatRequest{
		Model:       model,
		Temperature: c.config.temperature(req),
		MaxTokens:   req.MaxTokens,
	}
	if req.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: req.Prompt})
	if asJSON {
		body.ResponseFormat = map[string]string{"type": "json_object"}
	}

	httpReq, err := fetch.JSONRequest(http.MethodPost, c.baseURL+"/chat/completions", body)
	if err != nil {
		return "", err
	}

	var resp chatResponse
	if err := c.http.JSON(ctx, httpReq, &resp); err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// GetModel returns the model name for a tier
func (c *OpenAIClient) GetModel(tier ModelTier) string {
	return c.config.GetModel(tier)
}

// Close is a no-op; the HTTP client is shared.
func (c *OpenAIClient) Close() error {
	return nil
}
