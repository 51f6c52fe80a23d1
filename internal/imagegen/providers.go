package imagegen

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jonathan/kids-video-pipeline/internal/config"
	"github.com/jonathan/kids-video-pipeline/internal/errkind"
	"github.com/jonathan/kids-video-pipeline/internal/fetch"
	"github.com/jonathan/kids-video-pipeline/internal/provider"
	"github.com/jonathan/kids-video-pipeline/internal/replicate"
)

// Provider names.
const (
	PollinationsName = "pollinations"
	HuggingFaceName  = "huggingface"
	ReplicateName    = "replicate"
	PexelsName       = "pexels"
	OpenAIName       = "openai"
)

// DALL-E request settings. The landscape size is the closest to 16:9.
const (
	openAIImageSize    = "1792x1024"
	openAIImageQuality = "standard"
	openAIPromptLen    = 4000
)

// DefaultPexelsURL is the Pexels search endpoint.
const DefaultPexelsURL = "https://api.pexels.com/v1/search"

// pexelsQueryLen caps the search query taken from the visual description.
const pexelsQueryLen = 80

// Pollinations renders prompts through the free pollinations.ai endpoint.
type Pollinations struct {
	baseURL string
	model   string
	http    *fetch.Client
}

// NewPollinations creates a Pollinations generator.
func NewPollinations(baseURL, model string, env *provider.Env) *Pollinations {
	if env == nil {
		env = &provider.Env{}
	}
	return &Pollinations{baseURL: strings.TrimRight(baseURL, "/"), model: model, http: env.Client(PollinationsName)}
}

// Generate implements Generator.
func (p *Pollinations) Generate(ctx context.Context, req Request) error {
	q := url.Values{}
	if req.Width > 0 && req.Height > 0 {
		q.Set("width", strconv.Itoa(req.Width))
		q.Set("height", strconv.Itoa(req.Height))
	}
	if p.model != "" {
		q.Set("model", p.model)
	}
	q.Set("nologo", "true")

	text := prompt(req.Style, req.Visual, "high quality, no text, no words")
	resp, err := p.http.Do(ctx, &fetch.Request{
		Method: http.MethodGet,
		URL:    p.baseURL + "/" + url.PathEscape(text),
		Query:  q,
	})
	if err != nil {
		return err
	}
	return writeImage(req.Output, resp)
}

// HuggingFace calls the Inference API. A 503 means the model is still
// loading and is retried.
type HuggingFace struct {
	endpoint string
	http     *fetch.Client
}

// NewHuggingFace creates a Hugging Face generator.
func NewHuggingFace(baseURL, model, token string, env *provider.Env) *HuggingFace {
	if env == nil {
		env = &provider.Env{}
	}
	c := env.Client(HuggingFaceName)
	c.Headers = map[string]string{"Authorization": "Bearer " + token}
	return &HuggingFace{endpoint: strings.TrimRight(baseURL, "/") + "/" + model, http: c}
}

// Generate implements Generator.
func (h *HuggingFace) Generate(ctx context.Context, req Request) error {
	r, err := fetch.JSONRequest(http.MethodPost, h.endpoint, map[string]string{
		"inputs": prompt(req.Style, req.Visual, "high quality, no text, no words"),
	})
	if err != nil {
		return err
	}
	r.Transient = []int{http.StatusServiceUnavailable}
	resp, err := h.http.Do(ctx, r)
	if err != nil {
		return err
	}
	return writeImage(req.Output, resp)
}

// Replicate runs a text-to-image model such as flux-schnell.
type Replicate struct {
	client   *replicate.Client
	model    string
	interval time.Duration
}

// NewReplicate creates a Replicate generator.
func NewReplicate(cfg config.ReplicateConfig, env *provider.Env) (*Replicate, error) {
	client, err := replicate.New(cfg.BaseURL, cfg.APIToken, env)
	if err != nil {
		return nil, err
	}
	client.SetMaxWait(cfg.MaxWait)
	return &Replicate{client: client, model: cfg.ImageModel, interval: cfg.PollInterval}, nil
}

// Client exposes the underlying API client.
func (r *Replicate) Client() *replicate.Client { return r.client }

// Generate implements Generator.
func (r *Replicate) Generate(ctx context.Context, req Request) error {
	urls, err := r.client.Run(ctx, r.model, map[string]any{
		"prompt":        prompt(req.Style, req.Visual, "high quality, no text, no words, no letters"),
		"aspect_ratio":  "16:9",
		"num_outputs":   1,
		"output_format": "png",
	}, r.interval)
	if err != nil {
		return err
	}
	return r.client.Download(ctx, urls[0], req.Output)
}

// Pexels downloads the best matching stock photo.
type Pexels struct {
	searchURL string
	http      *fetch.Client
}

// NewPexels creates a Pexels generator. An empty searchURL uses the public API.
func NewPexels(searchURL, apiKey string, env *provider.Env) *Pexels {
	if searchURL == "" {
		searchURL = DefaultPexelsURL
	}
	if env == nil {
		env = &provider.Env{}
	}
	c := env.Client(PexelsName)
	c.Headers = map[string]string{"Authorization": apiKey}
	return &Pexels{searchURL: searchURL, http: c}
}

type pexelsSearch struct {
	Photos []struct {
		Src struct {
			Large2x string `json:"large2x"`
		} `json:"src"`
	} `json:"photos"`
}

// Generate implements Generator. Style is ignored for stock photos.
func (p *Pexels) Generate(ctx context.Context, req Request) error {
	query := truncateRunes(strings.TrimSpace(req.Visual), pexelsQueryLen)
	var result pexelsSearch
	err := p.http.JSON(ctx, &fetch.Request{
		Method: http.MethodGet,
		URL:    p.searchURL,
		Query:  url.Values{"query": {query}, "per_page": {"1"}, "orientation": {"landscape"}},
	}, &result)
	if err != nil {
		return err
	}
	if len(result.Photos) == 0 || result.Photos[0].Src.Large2x == "" {
		return errkind.New(errkind.KindUnknown, PexelsName, fmt.Errorf("no Pexels results for: %s", query))
	}
	return p.http.Download(ctx, result.Photos[0].Src.Large2x, req.Output)
}

// OpenAI renders prompts with the images/generations endpoint (DALL-E) and
// downloads the returned image.
type OpenAI struct {
	endpoint string
	model    string
	http     *fetch.Client
	download *fetch.Client
}

// NewOpenAI creates a DALL-E generator.
func NewOpenAI(baseURL, apiKey, model string, env *provider.Env) *OpenAI {
	if env == nil {
		env = &provider.Env{}
	}
	c := env.Client(OpenAIName)
	c.Headers = map[string]string{"Authorization": "Bearer " + apiKey}
	// Image URLs are pre-signed; they take no key and count against no quota.
	dl := env.Client(OpenAIName)
	dl.Limiter = nil
	return &OpenAI{endpoint: strings.TrimRight(baseURL, "/") + "/images/generations", model: model, http: c, download: dl}
}

type openAIImages struct {
	Data []struct {
		URL     string `json:"url"`
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

// Generate implements Generator.
func (o *OpenAI) Generate(ctx context.Context, req Request) error {
	r, err := fetch.JSONRequest(http.MethodPost, o.endpoint, map[string]any{
		"model":   o.model,
		"prompt":  truncateRunes(prompt(req.Style, req.Visual, "no text, no words"), openAIPromptLen),
		"n":       1,
		"size":    openAIImageSize,
		"quality": openAIImageQuality,
	})
	if err != nil {
		return err
	}
	var result openAIImages
	if err := o.http.JSON(ctx, r, &result); err != nil {
		return err
	}
	if len(result.Data) == 0 {
		return errkind.New(errkind.KindUnknown, OpenAIName, fmt.Errorf("no image in response"))
	}
	img := result.Data[0]
	switch {
	case img.URL != "":
		return o.download.Download(ctx, img.URL, req.Output)
	case img.B64JSON != "":
		data, err := base64.StdEncoding.DecodeString(img.B64JSON)
		if err != nil {
			return errkind.New(errkind.KindUnknown, OpenAIName, fmt.Errorf("failed to decode image: %w", err))
		}
		return fetch.WriteFile(req.Output, data)
	default:
		return errkind.New(errkind.KindUnknown, OpenAIName, fmt.Errorf("image response has neither url nor b64_json"))
	}
}

func writeImage(path string, resp *fetch.Response) error {
	if len(resp.Body) == 0 {
		return errkind.Transient("image", fmt.Errorf("empty image response"))
	}
	if ct := resp.ContentType; ct != "" && !strings.HasPrefix(ct, "image/") && !strings.HasPrefix(ct, "application/octet-stream") {
		return errkind.New(errkind.KindUnknown, "image", fmt.Errorf("unexpected content type %q", ct))
	}
	return fetch.WriteFile(path, resp.Body)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
