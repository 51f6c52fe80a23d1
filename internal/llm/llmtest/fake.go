// Package llmtest provides a scripted llm.Client for tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/jonathan/kids-video-pipeline/internal/llm"
)

// Fake returns canned responses in order. Once exhausted it keeps repeating
// the last one.
type Fake struct {
	Responses []string
	Err       error
	// Respond, when set, takes precedence over Responses.
	Respond func(req llm.Request) (string, error)

	mu    sync.Mutex
	calls []llm.Request
}

// New creates a fake answering with responses.
func New(responses ...string) *Fake {
	return &Fake{Responses: responses}
}

func (f *Fake) next(req llm.Request) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	n := len(f.calls)
	f.mu.Unlock()

	if f.Respond != nil {
		return f.Respond(req)
	}
	if f.Err != nil {
		return "", f.Err
	}
	if len(f.Responses) == 0 {
		return "{}", nil
	}
	if n > len(f.Responses) {
		n = len(f.Responses)
	}
	return f.Responses[n-1], nil
}

// GenerateContent implements llm.Client.
func (f *Fake) GenerateContent(_ context.Context, req llm.Request) (string, error) {
	return f.next(req)
}

// GenerateJSON implements llm.Client.
func (f *Fake) GenerateJSON(_ context.Context, req llm.Request) (string, error) {
	text, err := f.next(req)
	if err != nil {
		return "", err
	}
	return llm.CleanJSONBlock(text), nil
}

// GetModel implements llm.Client.
func (f *Fake) GetModel(llm.ModelTier) string { return "fake-model" }

// Close implements llm.Client.
func (f *Fake) Close() error { return nil }

// Calls returns every request seen so far.
func (f *Fake) Calls() []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.Request(nil), f.calls...)
}

// LastPrompt returns the user prompt of the most recent call.
func (f *Fake) LastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return ""
	}
	return f.calls[len(f.calls)-1].Prompt
}
