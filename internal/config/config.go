// Package config provides configuration loading and validation for the CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jonathan/kids-video-pipeline/internal/types"
)

// Config is the whole pipeline configuration, loaded from config.yaml.
// Secrets are normally left empty in the file and filled from the environment.
type Config struct {
	OutputDir string `yaml:"output_dir" validate:"required"`
	DataDir   string `yaml:"data_dir" validate:"required"`

	Content    ContentConfig    `yaml:"content"`
	BrandVoice BrandVoiceConfig `yaml:"brand_voice"`
	Languages  []types.Language `yaml:"languages" validate:"required,min=1,dive"`
	Providers  ProvidersConfig  `yaml:"providers"`

	LLM          LLMConfig          `yaml:"llm"`
	Gemini       APIConfig          `yaml:"gemini"`
	OpenAI       OpenAIConfig       `yaml:"openai"`
	Groq         OpenAIConfig       `yaml:"groq"`
	Replicate    ReplicateConfig    `yaml:"replicate"`
	HuggingFace  HuggingFaceConfig  `yaml:"huggingface"`
	Pexels       APIConfig          `yaml:"pexels"`
	Pollinations PollinationsConfig `yaml:"pollinations"`
	ElevenLabs   ElevenLabsConfig   `yaml:"elevenlabs"`
	EdgeTTS      EdgeTTSConfig      `yaml:"edge_tts"`
	Reddit       RedditConfig       `yaml:"reddit"`

	Images    ImagesConfig    `yaml:"images"`
	Video     VideoConfig     `yaml:"video"`
	Animation AnimationConfig `yaml:"animation"`
	BgMusic   BgMusicConfig   `yaml:"bg_music"`

	YouTube       YouTubeConfig       `yaml:"youtube"`
	Instagram     InstagramConfig     `yaml:"instagram"`
	Notifications NotificationsConfig `yaml:"notifications"`

	ABTesting ABTestingConfig `yaml:"ab_testing"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Playlists PlaylistsConfig `yaml:"playlists"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Database  DatabaseConfig  `yaml:"database"`

	// RateLimits overrides built-in calls-per-minute quotas by provider name.
	RateLimits map[string]int `yaml:"rate_limits" validate:"dive,gt=0"`
	// Retry overrides built-in retry policies by provider name.
	Retry map[string]RetryConfig `yaml:"retry"`

	explicit explicitZeros
}

// explicitZeros records fields where zero is a meaningful setting, so
// ApplyDefaults leaves a zero written in the file alone.
type explicitZeros struct {
	minDataPoints   bool
	explorationRate bool
	fetchDelayHours bool
}

// zeroableKeys mirrors the YAML paths of the explicitZeros fields.
type zeroableKeys struct {
	ABTesting struct {
		MinDataPoints   *int     `yaml:"min_data_points"`
		ExplorationRate *float64 `yaml:"exploration_rate"`
	} `yaml:"ab_testing"`
	Analytics struct {
		FetchDelayHours *int `yaml:"fetch_delay_hours"`
	} `yaml:"analytics"`
}

// ContentConfig controls what the videos are about.
type ContentConfig struct {
	Niche                string `yaml:"niche" validate:"required"`
	TargetAge            string `yaml:"target_age" validate:"required"`
	ScenesPerVideo       int    `yaml:"scenes_per_video" validate:"gte=2,lte=20"`
	VideoDurationMinutes int    `yaml:"video_duration_minutes" validate:"gte=1"`
	HistoryWindow        int    `yaml:"history_window" validate:"gte=0"`
}

// BrandVoiceConfig adds tone guidance to script prompts.
type BrandVoiceConfig struct {
	Enabled         bool     `yaml:"enabled"`
	Tone            string   `yaml:"tone"`
	Catchphrases    []string `yaml:"catchphrases"`
	VocabularyLevel string   `yaml:"vocabulary_level"`
}

// ProvidersConfig selects one implementation per capability.
type ProvidersConfig struct {
	Topic     string `yaml:"topic" validate:"oneof=llm reddit"`
	LLM       string `yaml:"llm" validate:"oneof=gemini openai groq"`
	TTS       string `yaml:"tts" validate:"oneof=edge elevenlabs openai"`
	Image     string `yaml:"image" validate:"oneof=pollinations huggingface replicate pexels openai"`
	Animation string `yaml:"animation" validate:"oneof=kenburns replicate"`
	Music     string `yaml:"music" validate:"oneof=library replicate"`
}

// LLMConfig holds model names per tier for the selected LLM backend.
type LLMConfig struct {
	Models      map[string]string `yaml:"models"`
	Temperature float32           `yaml:"temperature" validate:"gte=0,lte=2"`
	Timeout     time.Duration     `yaml:"timeout"`
}

// APIConfig is a provider that only needs a key.
type APIConfig struct {
	APIKey string `yaml:"api_key"`
}

// OpenAIConfig covers OpenAI and OpenAI-compatible endpoints such as Groq.
type OpenAIConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	TTSModel   string `yaml:"tts_model"`
	ImageModel string `yaml:"image_model"`
}

// ReplicateConfig holds model identifiers for the Replicate-backed providers.
type ReplicateConfig struct {
	APIToken     string        `yaml:"api_token"`
	BaseURL      string        `yaml:"base_url"`
	ImageModel   string        `yaml:"image_model"`
	VideoModel   string        `yaml:"video_model"`
	MusicModel   string        `yaml:"music_model"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxWait      time.Duration `yaml:"max_wait"`
}

// HuggingFaceConfig selects the inference model.
type HuggingFaceConfig struct {
	APIToken string `yaml:"api_token"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
}

// PollinationsConfig selects the free image model.
type PollinationsConfig struct {
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// ElevenLabsConfig holds ElevenLabs credentials.
type ElevenLabsConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// EdgeTTSConfig points at the edge-tts executable.
type EdgeTTSConfig struct {
	Binary string `yaml:"binary"`
}

// RedditConfig controls the reddit topic source.
type RedditConfig struct {
	Subreddits []string `yaml:"subreddits"`
	MinScore   int      `yaml:"min_score"`
	Limit      int      `yaml:"limit"`
}

// ImagesConfig controls scene image generation.
type ImagesConfig struct {
	Style       string `yaml:"style"`
	Concurrency int    `yaml:"concurrency" validate:"gte=1,lte=8"`
}

// VideoConfig controls media assembly.
type VideoConfig struct {
	Width         int     `yaml:"width" validate:"gt=0"`
	Height        int     `yaml:"height" validate:"gt=0"`
	FPS           int     `yaml:"fps" validate:"gt=0"`
	BgMusicVolume float64 `yaml:"bg_music_volume" validate:"gte=0,lte=1"`
	FFmpeg        string  `yaml:"ffmpeg"`
	FFprobe       string  `yaml:"ffprobe"`
	Subtitles     bool    `yaml:"subtitles"`
}

// AnimationConfig controls the animated variant.
type AnimationConfig struct {
	ImageStyle string   `yaml:"image_style"`
	ZoomRatio  float64  `yaml:"zoom_ratio"`
	Effects    []string `yaml:"effects"`
}

// BgMusicConfig controls background music.
type BgMusicConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Prompt     string `yaml:"prompt"`
	Duration   int    `yaml:"duration"`
	LibraryDir string `yaml:"library_dir"`
}

// YouTubeConfig holds OAuth credentials and upload defaults.
type YouTubeConfig struct {
	ClientID      string `yaml:"client_id"`
	ClientSecret  string `yaml:"client_secret"`
	RefreshToken  string `yaml:"refresh_token"`
	CategoryID    string `yaml:"category_id"`
	PrivacyStatus string `yaml:"privacy_status" validate:"oneof=public private unlisted"`
	MadeForKids   bool   `yaml:"made_for_kids"`
	Captions      bool   `yaml:"captions"`
}

// InstagramConfig controls reel publishing. Mode "export" writes assets for
// manual posting; mode "graph" publishes through the Graph API.
type InstagramConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Mode          string        `yaml:"mode" validate:"oneof=export graph"`
	UserID        string        `yaml:"user_id"`
	AccessToken   string        `yaml:"access_token"`
	PublicBaseURL string        `yaml:"public_base_url"`
	GraphURL      string        `yaml:"graph_url"`
	PollInterval  time.Duration `yaml:"poll_interval"`
}

// NotificationsConfig groups notification channels.
type NotificationsConfig struct {
	Email EmailConfig `yaml:"email"`
}

// EmailConfig configures the run summary email.
type EmailConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Provider       string `yaml:"provider" validate:"oneof=smtp resend"`
	SenderEmail    string `yaml:"sender_email"`
	SenderPassword string `yaml:"sender_password"`
	RecipientEmail string `yaml:"recipient_email"`
	SMTPHost       string `yaml:"smtp_host"`
	SMTPPort       int    `yaml:"smtp_port"`
	ResendAPIKey   string `yaml:"resend_api_key"`
	ResendURL      string `yaml:"resend_url"`
}

// ABTestingConfig controls title/hook/thumbnail experiments.
type ABTestingConfig struct {
	Enabled         bool    `yaml:"enabled"`
	VariantsCount   int     `yaml:"variants_count" validate:"gte=1,lte=10"`
	MinDataPoints   int     `yaml:"min_data_points" validate:"gte=0"`
	ExplorationRate float64 `yaml:"exploration_rate" validate:"gte=0,lte=1"`
	ExploitStrategy string  `yaml:"exploit_strategy" validate:"oneof=first ranked"`
}

// AnalyticsConfig controls the metrics follow-up.
type AnalyticsConfig struct {
	Enabled         bool `yaml:"enabled"`
	FetchDelayHours int  `yaml:"fetch_delay_hours" validate:"gte=0"`
	FetchLimit      int  `yaml:"fetch_limit" validate:"gte=0"`
}

// FetchDelay returns the watermark delay.
func (a AnalyticsConfig) FetchDelay() time.Duration {
	return time.Duration(a.FetchDelayHours) * time.Hour
}

// PlaylistsConfig controls automatic playlist grouping.
type PlaylistsConfig struct {
	Enabled              bool   `yaml:"enabled"`
	AutoCreate           *bool  `yaml:"auto_create"`
	MinVideosForPlaylist int    `yaml:"min_videos_for_playlist" validate:"gte=0"`
	NamingTemplate       string `yaml:"naming_template"`
	PrivacyStatus        string `yaml:"privacy_status"`
}

// AutoCreateEnabled defaults to true when unset.
func (p PlaylistsConfig) AutoCreateEnabled() bool {
	return p.AutoCreate == nil || *p.AutoCreate
}

// ScheduleConfig controls the cron loop.
type ScheduleConfig struct {
	UploadDays []string      `yaml:"upload_days"`
	UploadTime string        `yaml:"upload_time"`
	Timezone   string        `yaml:"timezone"`
	Variant    string        `yaml:"variant" validate:"oneof=plain shorts poem lullaby animated"`
	Timeout    time.Duration `yaml:"timeout"`
}

// DatabaseConfig selects the store backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver" validate:"oneof=sqlite postgres"`
	URL    string `yaml:"url" validate:"required"`
}

// RetryConfig overrides a provider's retry policy.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" validate:"gte=1"`
	BaseDelay   time.Duration `yaml:"base_delay"`
}

// LoadConfig reads and decodes a YAML config file. Defaults are not applied.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return Parse(data)
}

// Parse decodes YAML config bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	var keys zeroableKeys
	if err := yaml.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	cfg.explicit = explicitZeros{
		minDataPoints:   keys.ABTesting.MinDataPoints != nil,
		explorationRate: keys.ABTesting.ExplorationRate != nil,
		fetchDelayHours: keys.Analytics.FetchDelayHours != nil,
	}
	return &cfg, nil
}

// Load reads path, fills environment secrets and defaults, and validates.
func Load(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.LookupEnv)
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Language returns the configured language with code.
func (c *Config) Language(code string) (types.Language, bool) {
	for _, lang := range c.Languages {
		if lang.Code == code {
			return lang, true
		}
	}
	return types.Language{}, false
}
