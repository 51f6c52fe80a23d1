// Package replicate is a small client for Replicate's predictions API, shared
// by the image, animation and music providers.
package replicate

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonathan/kids-video-pipeline/internal/errkind"
	"github.com/jonathan/kids-video-pipeline/internal/fetch"
	"github.com/jonathan/kids-video-pipeline/internal/provider"
	"github.com/jonathan/kids-video-pipeline/internal/retry"
)

// Name is the rate limiter and retry policy key.
const Name = "replicate"

// DefaultBaseURL is the public API root.
const DefaultBaseURL = "https://api.replicate.com/v1"

// DefaultMaxWait bounds how long Wait polls one prediction.
const DefaultMaxWait = 10 * time.Minute

// Prediction statuses.
const (
	StatusStarting   = "starting"
	StatusProcessing = "processing"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
	StatusCanceled   = "canceled"
)

// Prediction is one model run.
type Prediction struct {
	ID     string          `json:"id"`
	Model  string          `json:"model,omitempty"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  any             `json:"error,omitempty"`
}

// Done reports whether the prediction reached a terminal status.
func (p *Prediction) Done() bool {
	switch p.Status {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// OutputURLs returns the output as a list of URLs. Models answer either with
// a single string or with an array of strings.
func (p *Prediction) OutputURLs() ([]string, error) {
	if len(p.Output) == 0 || string(p.Output) == "null" {
		return nil, fmt.Errorf("prediction %s has no output", p.ID)
	}
	var one string
	if err := json.Unmarshal(p.Output, &one); err == nil {
		return []string{one}, nil
	}
	var many []string
	if err := json.Unmarshal(p.Output, &many); err == nil {
		if len(many) == 0 {
			return nil, fmt.Errorf("prediction %s has empty output", p.ID)
		}
		return many, nil
	}
	return nil, fmt.Errorf("prediction %s has unexpected output %s", p.ID, truncate(string(p.Output), 200))
}

// ErrPredictionFailed is returned when a prediction ends failed or canceled.
var ErrPredictionFailed = errors.New("prediction did not succeed")

// Client calls the predictions API. Every HTTP request acquires the
// "replicate" limiter.
type Client struct {
	baseURL string
	http    *fetch.Client
	policy  retry.Policy
	maxWait time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
}

// New creates a client from an API token.
func New(baseURL, token string, env *provider.Env) (*Client, error) {
	if err := provider.RequireKey(Name, "REPLICATE_API_TOKEN", token); err != nil {
		return nil, err
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if env == nil {
		env = &provider.Env{}
	}
	c := env.Client(Name)
	c.Headers = map[string]string{"Authorization": "Bearer " + token}
	policy := env.Policy(Name)
	policy.Retryable = func(err error) bool { return errors.Is(err, ErrPredictionFailed) }
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    c,
		policy:  policy,
		maxWait: DefaultMaxWait,
		sleep:   sleepContext,
	}, nil
}

// SetSleep replaces the poll wait; used by tests.
func (c *Client) SetSleep(fn func(ctx context.Context, d time.Duration) error) {
	c.sleep = fn
}

// SetMaxWait bounds polling of one prediction. Zero or less keeps the default.
func (c *Client) SetMaxWait(d time.Duration) {
	if d > 0 {
		c.maxWait = d
	}
}

// Create starts a prediction. model is either "owner/name" for an official
// model or "owner/name:version".
func (c *Client) Create(ctx context.Context, model string, input map[string]any) (*Prediction, error) {
	endpoint := c.baseURL + "/models/" + model + "/predictions"
	body := map[string]any{"input": input}
	if _, version, ok := strings.Cut(model, ":"); ok {
		endpoint = c.baseURL + "/predictions"
		body["version"] = version
	}

	req, err := fetch.JSONRequest(http.MethodPost, endpoint, body)
	if err != nil {
		return nil, err
	}
	var p Prediction
	if err := c.http.JSON(ctx, req, &p); err != nil {
		return nil, fmt.Errorf("failed to create %s prediction: %w", model, err)
	}
	return &p, nil
}

// Get fetches the current state of a prediction.
func (c *Client) Get(ctx context.Context, id string) (*Prediction, error) {
	var p Prediction
	if err := c.http.JSON(ctx, &fetch.Request{Method: http.MethodGet, URL: c.baseURL + "/predictions/" + id}, &p); err != nil {
		return nil, fmt.Errorf("failed to get prediction %s: %w", id, err)
	}
	return &p, nil
}

// Wait polls until the prediction finishes. A prediction still running after
// the client's max wait is a transient failure.
func (c *Client) Wait(ctx context.Context, p *Prediction, interval time.Duration) (*Prediction, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	waitCtx, cancel := context.WithTimeout(ctx, c.maxWait)
	defer cancel()

	for !p.Done() {
		err := c.sleep(waitCtx, interval)
		if err == nil {
			var next *Prediction
			next, err = c.Get(waitCtx, p.ID)
			if err == nil {
				p = next
				continue
			}
		}
		if ctx.Err() == nil && waitCtx.Err() != nil {
			return nil, errkind.Transient(Name, fmt.Errorf("prediction %s still %s after %s", p.ID, p.Status, c.maxWait))
		}
		return nil, err
	}
	if p.Status != StatusSucceeded {
		return p, fmt.Errorf("%w: %s %s: %v", ErrPredictionFailed, p.ID, p.Status, p.Error)
	}
	return p, nil
}

// Run creates a prediction and waits for its output URLs. A failed
// prediction is started again under the replicate retry policy; HTTP
// failures are already retried per request.
func (c *Client) Run(ctx context.Context, model string, input map[string]any, interval time.Duration) ([]string, error) {
	return retry.DoValue(ctx, c.policy, func(ctx context.Context) ([]string, error) {
		p, err := c.Create(ctx, model, input)
		if err != nil {
			return nil, err
		}
		p, err = c.Wait(ctx, p, interval)
		if err != nil {
			return nil, err
		}
		return p.OutputURLs()
	})
}

// Download saves a prediction output file.
func (c *Client) Download(ctx context.Context, url, dst string) error {
	return c.http.Download(ctx, url, dst)
}

// DataURI inlines a local file as a data URI input.
func DataURI(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	ct := mime.TypeByExtension(filepath.Ext(path))
	if ct == "" {
		ct = "application/octet-stream"
	}
	return "data:" + ct + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
