package voice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/jonathan/kids-video-pipeline/internal/errkind"
	"github.com/jonathan/kids-video-pipeline/internal/provider"
	"github.com/jonathan/kids-video-pipeline/internal/retry"
)

// EdgeName is the provider key for the free Microsoft Edge voices.
const EdgeName = "edge"

// edgeLimiterKey is the rate limiter and retry policy key.
const edgeLimiterKey = "edge_tts"

// Edge drives the edge-tts command line tool.
type Edge struct {
	binary string
	env    *provider.Env
	runner provider.Runner
	policy retry.Policy
}

// NewEdge creates an edge-tts synthesizer.
func NewEdge(binary string, env *provider.Env) *Edge {
	if binary == "" {
		binary = "edge-tts"
	}
	if env == nil {
		env = &provider.Env{}
	}
	runner := env.Runner
	if runner == nil {
		runner = provider.ExecRunner{}
	}
	return &Edge{binary: binary, env: env, runner: runner, policy: env.Policy(edgeLimiterKey)}
}

// Synthesize implements Synthesizer.
func (e *Edge) Synthesize(ctx context.Context, req Request) error {
	if req.Voice == "" {
		return errkind.Configf("tts", "edge-tts needs a voice")
	}
	if err := os.MkdirAll(filepath.Dir(req.Output), 0o755); err != nil {
		return fmt.Errorf("failed to create audio directory: %w", err)
	}
	args := []string{"--voice", req.Voice}
	if req.Rate != "" {
		args = append(args, "--rate="+req.Rate)
	}
	args = append(args, "--text", SanitizeText(req.Text), "--write-media", req.Output)

	return retry.Do(ctx, e.policy, func(ctx context.Context) error {
		if err := e.env.Acquire(ctx, edgeLimiterKey); err != nil {
			return err
		}
		if _, err := e.runner.Run(ctx, e.binary, args...); err != nil {
			if errors.Is(err, exec.ErrNotFound) {
				return errkind.Config("tts", fmt.Errorf("%s not found on PATH: %w", e.binary, err))
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// edge-tts fails mostly on websocket hiccups.
			return errkind.Transient("edge-tts", err)
		}
		return nil
	})
}
