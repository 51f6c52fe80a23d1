// Package llm - util.go provides shared utilities for LLM response processing.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jonathan/kids-video-pipeline/internal/errkind"
)

// CleanJSONBlock removes markdown code block wrappers and any chatter around
// the JSON document. LLMs often wrap JSON in ```json ... ``` blocks even when
// instructed not to.
func CleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		// Skip potential language identifier on first line
		if idx := strings.Index(text, "\n"); idx >= 0 {
			firstLine := text[:idx]
			if len(firstLine) < 20 && !strings.Contains(firstLine, " ") && !strings.Contains(firstLine, "{") {
				text = text[idx+1:]
			}
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return text
	}
	var out string
	if text[start] == '{' {
		out = extractJSONObject(text[start:])
	} else {
		out = extractJSONArray(text[start:])
	}
	if out == "" {
		return text
	}
	return out
}

func extractJSONObject(s string) string {
	return extractBalanced(s, '{', '}')
}

func extractJSONArray(s string) string {
	return extractBalanced(s, '[', ']')
}

// extractBalanced returns the prefix of s that closes the bracket s starts
// with, ignoring brackets inside string literals.
func extractBalanced(s string, open, closing byte) string {
	if s == "" || s[0] != open {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case open:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return ""
}

// DecodeJSON unmarshals an LLM response into out. Malformed output is a
// permanent failure.
func DecodeJSON(op, text string, out any) error {
	if err := json.Unmarshal([]byte(CleanJSONBlock(text)), out); err != nil {
		return errkind.New(errkind.KindUnknown, op, fmt.Errorf("failed to parse LLM JSON: %w", err))
	}
	return nil
}

// GenerateInto runs a JSON completion and decodes it into out.
func GenerateInto(ctx context.Context, c Client, op string, req Request, out any) error {
	text, err := c.GenerateJSON(ctx, req)
	if err != nil {
		return err
	}
	return DecodeJSON(op, text, out)
}
