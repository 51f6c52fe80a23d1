// Package fetch provides the HTTP plumbing shared by every network provider:
// one rate-limited, retried request per call, with status codes classified
// into transient and permanent failures.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/jonathan/kids-video-pipeline/internal/errkind"
	"github.com/jonathan/kids-video-pipeline/internal/retry"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 120 * time.Second

// DefaultUserAgent is the user agent string for HTTP requests.
const DefaultUserAgent = "kids-video-pipeline/1.0"

// maxErrorBody caps how much of a failed response is kept in errors.
const maxErrorBody = 300

// Error represents an error during an HTTP call.
type Error struct {
	URL        string
	Message    string
	StatusCode int
	Body       string
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	if e.Body != "" {
		return fmt.Sprintf("fetch error for %s: %s: %s", e.URL, e.Message, e.Body)
	}
	return fmt.Sprintf("fetch error for %s: %s", e.URL, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Acquirer blocks until the named provider may make another call.
type Acquirer interface {
	Acquire(ctx context.Context, provider string) error
}

// Request describes one HTTP call. Body is a byte slice so retries can resend it.
type Request struct {
	Method  string
	URL     string
	Query   url.Values
	Headers map[string]string
	Body    []byte
	// Transient marks extra status codes as retryable for this call,
	// e.g. 503 "model loading" from Hugging Face.
	Transient []int
}

// JSONRequest builds a request with a JSON-encoded body.
func JSONRequest(method, rawURL string, body any) (*Request, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}
	return &Request{
		Method:  method,
		URL:     rawURL,
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    data,
	}, nil
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Client performs calls on behalf of one provider. Every attempt, including
// retries, first acquires a token for Provider.
type Client struct {
	Provider  string
	HTTP      *http.Client
	Limiter   Acquirer
	Policy    retry.Policy
	UserAgent string
	Headers   map[string]string
}

// Do sends req, retrying transient failures under the client's policy.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	policy := c.Policy
	if policy.Name == "" {
		policy.Name = c.Provider
	}
	return retry.DoValue(ctx, policy, func(ctx context.Context) (*Response, error) {
		return c.once(ctx, req)
	})
}

// JSON sends req and decodes a JSON response into out. A body that does not
// decode is a permanent failure.
func (c *Client) JSON(ctx context.Context, req *Request, out any) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return errkind.New(errkind.KindUnknown, c.Provider, fmt.Errorf("failed to decode response from %s: %w", req.URL, err))
	}
	return nil
}

// Download fetches rawURL and writes the body to dst atomically.
func (c *Client) Download(ctx context.Context, rawURL, dst string) error {
	resp, err := c.Do(ctx, &Request{Method: http.MethodGet, URL: rawURL})
	if err != nil {
		return err
	}
	return WriteFile(dst, resp.Body)
}

func (c *Client) once(ctx context.Context, req *Request) (*Response, error) {
	target, err := buildURL(req.URL, req.Query)
	if err != nil {
		return nil, errkind.New(errkind.KindUnknown, c.Provider, &Error{URL: req.URL, Message: "invalid URL", Cause: err})
	}

	if c.Limiter != nil {
		if err := c.Limiter.Acquire(ctx, c.Provider); err != nil {
			return nil, err
		}
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, errkind.New(errkind.KindUnknown, c.Provider, &Error{URL: target, Message: "failed to create request", Cause: err})
	}

	ua := c.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	httpReq.Header.Set("User-Agent", ua)
	for k, v := range c.Headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	client := c.HTTP
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Connection resets and timeouts are worth another attempt.
		return nil, errkind.Transient(c.Provider, &Error{URL: target, Message: "HTTP request failed", Cause: err})
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errkind.Transient(c.Provider, &Error{URL: target, Message: "failed to read response body", Cause: err})
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		fe := &Error{
			URL:        target,
			Message:    fmt.Sprintf("HTTP status %d", resp.StatusCode),
			StatusCode: resp.StatusCode,
			Body:       truncate(string(data), maxErrorBody),
		}
		if errkind.TransientStatus(resp.StatusCode) || contains(req.Transient, resp.StatusCode) {
			return nil, errkind.Transient(c.Provider, fe)
		}
		return nil, errkind.New(errkind.KindUnknown, c.Provider, fe)
	}

	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        data,
	}, nil
}

// StatusCode extracts the HTTP status from an error chain, or 0.
func StatusCode(err error) int {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.StatusCode
	}
	return 0
}

// WriteFile writes data to path through a temp file and rename.
func WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to rename %s: %w", path, err)
	}
	return nil
}

func buildURL(raw string, query url.Values) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("missing scheme or host")
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func contains(codes []int, code int) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}
