// Package provider holds the pieces every capability adapter shares: the
// name-to-factory registry, and the rate limiter, HTTP client, retry policies
// and process runner handed to each factory.
package provider

import (
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonathan/kids-video-pipeline/internal/config"
	"github.com/jonathan/kids-video-pipeline/internal/errkind"
	"github.com/jonathan/kids-video-pipeline/internal/fetch"
	"github.com/jonathan/kids-video-pipeline/internal/ratelimit"
	"github.com/jonathan/kids-video-pipeline/internal/retry"
)

// DefaultPolicies returns the tuned retry policy per provider.
func DefaultPolicies() map[string]retry.Policy {
	return map[string]retry.Policy{
		"replicate":    {MaxAttempts: 5, BaseDelay: 15 * time.Second},
		"huggingface":  {MaxAttempts: 3, BaseDelay: 20 * time.Second},
		"pollinations": {MaxAttempts: 3, BaseDelay: 3 * time.Second},
		"pexels":       {MaxAttempts: 3, BaseDelay: 2 * time.Second},
		"youtube":      {MaxAttempts: 2, BaseDelay: 2 * time.Minute},
		"instagram":    {MaxAttempts: 3, BaseDelay: 10 * time.Second},
		"gemini":       {MaxAttempts: 3, BaseDelay: 5 * time.Second},
		"openai":       {MaxAttempts: 3, BaseDelay: 5 * time.Second},
		"groq":         {MaxAttempts: 3, BaseDelay: 5 * time.Second},
	}
}

// Runner starts external programs such as edge-tts and ffmpeg.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs programs with os/exec and returns combined output.
type ExecRunner struct{}

// Run executes name with args.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s failed: %w: %s", name, err, strings.TrimSpace(tail(string(out), 500)))
	}
	return out, nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// Env is the shared runtime handed to provider factories.
type Env struct {
	Limiter *ratelimit.Limiter
	HTTP    *http.Client
	Retry   map[string]retry.Policy
	Runner  Runner
}

// NewEnv builds the runtime from configuration: built-in quotas and retry
// policies, overridden by the rate_limits and retry sections.
func NewEnv(cfg *config.Config) *Env {
	limits := ratelimit.DefaultLimits()
	for name, calls := range cfg.RateLimits {
		limits[name] = ratelimit.PerMinute(calls)
	}

	policies := DefaultPolicies()
	for name, rc := range cfg.Retry {
		p := policies[name]
		if p.MaxAttempts == 0 {
			p = retry.DefaultPolicy()
		}
		if rc.MaxAttempts > 0 {
			p.MaxAttempts = rc.MaxAttempts
		}
		if rc.BaseDelay > 0 {
			p.BaseDelay = rc.BaseDelay
		}
		policies[name] = p
	}

	return &Env{
		Limiter: ratelimit.NewLimiter(limits),
		HTTP:    &http.Client{Timeout: fetch.DefaultTimeout},
		Retry:   policies,
		Runner:  ExecRunner{},
	}
}

// Policy returns the retry policy for name, falling back to the default.
func (e *Env) Policy(name string) retry.Policy {
	p, ok := e.Retry[name]
	if !ok {
		p = retry.DefaultPolicy()
	}
	p.Name = name
	return p
}

// Client returns an HTTP client that acquires name's limiter before every attempt.
func (e *Env) Client(name string) *fetch.Client {
	c := &fetch.Client{
		Provider: name,
		HTTP:     e.HTTP,
		Policy:   e.Policy(name),
	}
	if e.Limiter != nil {
		c.Limiter = e.Limiter
	}
	return c
}

// Acquire waits for a token for name. Adapters that call SDKs instead of
// fetch.Client use it directly.
func (e *Env) Acquire(ctx context.Context, name string) error {
	if e.Limiter == nil {
		return nil
	}
	return e.Limiter.Acquire(ctx, name)
}

// Factory builds one provider implementation.
type Factory[T any] func(cfg *config.Config, env *Env) (T, error)

// Registry maps provider names to factories for one capability.
type Registry[T any] struct {
	capability string

	mu        sync.RWMutex
	factories map[string]Factory[T]
}

// NewRegistry creates an empty registry for capability (used in errors).
func NewRegistry[T any](capability string) *Registry[T] {
	return &Registry[T]{capability: capability, factories: make(map[string]Factory[T])}
}

// Register adds a factory. Registering a name twice panics.
func (r *Registry[T]) Register(name string, f Factory[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.factories[name]; dup {
		panic(fmt.Sprintf("provider: %s provider %q registered twice", r.capability, name))
	}
	r.factories[name] = f
}

// New builds the provider registered as name.
func (r *Registry[T]) New(name string, cfg *config.Config, env *Env) (T, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, errkind.Configf(r.capability, "unknown %s provider %q (known: %s)", r.capability, name, strings.Join(r.Names(), ", "))
	}
	return f(cfg, env)
}

// Names returns the registered provider names in sorted order.
func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RequireKey returns a configuration error when a credential is missing.
func RequireKey(capability, envVar, value string) error {
	if strings.TrimSpace(value) == "" {
		return errkind.Configf(capability, "%s is not set", envVar)
	}
	return nil
}
