package voice

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/jonathan/kids-video-pipeline/internal/errkind"
	"github.com/jonathan/kids-video-pipeline/internal/fetch"
	"github.com/jonathan/kids-video-pipeline/internal/provider"
)

// Provider keys and per-request text limits.
const (
	ElevenLabsName     = "elevenlabs"
	OpenAIName         = "openai"
	ElevenLabsMaxChars = 2500
	OpenAIMaxChars     = 4096
)

// ElevenLabs calls the ElevenLabs text-to-speech API. Voice is the voice id.
type ElevenLabs struct {
	baseURL string
	model   string
	http    *fetch.Client
}

// NewElevenLabs creates an ElevenLabs synthesizer.
func NewElevenLabs(baseURL, apiKey, model string, env *provider.Env) *ElevenLabs {
	if env == nil {
		env = &provider.Env{}
	}
	c := env.Client(ElevenLabsName)
	c.Headers = map[string]string{"xi-api-key": apiKey, "Accept": "audio/mpeg"}
	return &ElevenLabs{baseURL: strings.TrimRight(baseURL, "/"), model: model, http: c}
}

// Synthesize implements Synthesizer.
func (e *ElevenLabs) Synthesize(ctx context.Context, req Request) error {
	if req.Voice == "" {
		return errkind.Configf("tts", "elevenlabs needs a voice id")
	}
	return synthesizeChunks(ctx, req, ElevenLabsMaxChars, func(ctx context.Context, text string) ([]byte, error) {
		body := map[string]any{"text": text, "model_id": e.model}
		if speed := rateToSpeed(req.Rate); speed != 1 {
			body["voice_settings"] = map[string]any{"speed": speed}
		}
		r, err := fetch.JSONRequest(http.MethodPost, e.baseURL+"/text-to-speech/"+req.Voice, body)
		if err != nil {
			return nil, err
		}
		resp, err := e.http.Do(ctx, r)
		if err != nil {
			return nil, err
		}
		return resp.Body, nil
	})
}

// OpenAI calls the OpenAI speech endpoint. Voice is a built-in voice name.
type OpenAI struct {
	baseURL string
	model   string
	http    *fetch.Client
}

// NewOpenAI creates an OpenAI speech synthesizer.
func NewOpenAI(baseURL, apiKey, model string, env *provider.Env) *OpenAI {
	if env == nil {
		env = &provider.Env{}
	}
	c := env.Client("openai_tts")
	c.Headers = map[string]string{"Authorization": "Bearer " + apiKey}
	return &OpenAI{baseURL: strings.TrimRight(baseURL, "/"), model: model, http: c}
}

// Synthesize implements Synthesizer.
func (o *OpenAI) Synthesize(ctx context.Context, req Request) error {
	voiceName := req.Voice
	if voiceName == "" {
		voiceName = "nova"
	}
	return synthesizeChunks(ctx, req, OpenAIMaxChars, func(ctx context.Context, text string) ([]byte, error) {
		r, err := fetch.JSONRequest(http.MethodPost, o.baseURL+"/audio/speech", map[string]any{
			"model":           o.model,
			"input":           text,
			"voice":           voiceName,
			"response_format": "mp3",
			"speed":           rateToSpeed(req.Rate),
		})
		if err != nil {
			return nil, err
		}
		resp, err := o.http.Do(ctx, r)
		if err != nil {
			return nil, err
		}
		return resp.Body, nil
	})
}

// synthesizeChunks splits long text, requests each chunk in order and joins
// the MP3 streams into req.Output.
func synthesizeChunks(ctx context.Context, req Request, max int, call func(ctx context.Context, text string) ([]byte, error)) error {
	chunks := ChunkText(SanitizeText(req.Text), max)
	if len(chunks) == 0 {
		return fmt.Errorf("nothing to synthesize for %s", req.Output)
	}
	var audio bytes.Buffer
	for i, chunk := range chunks {
		data, err := call(ctx, chunk)
		if err != nil {
			return fmt.Errorf("failed to synthesize chunk %d/%d: %w", i+1, len(chunks), err)
		}
		audio.Write(data)
	}
	return fetch.WriteFile(req.Output, audio.Bytes())
}
