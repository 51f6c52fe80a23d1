package config

import (
	"time"

	"github.com/jonathan/kids-video-pipeline/internal/types"
)

// Default values applied to any zero field.
const (
	DefaultOutputDir            = "output"
	DefaultDataDir              = "data"
	DefaultScenesPerVideo       = 8
	DefaultVideoMinutes         = 3
	DefaultHistoryWindow        = 50
	DefaultVariantsCount        = 3
	DefaultMinDataPoints        = 10
	DefaultExplorationRate      = 0.3
	DefaultFetchDelayHours      = 48
	DefaultFetchLimit           = 5
	DefaultMinVideosForPlaylist = 3
	DefaultPlaylistTemplate     = "{category} for Kids - {language}"
	DefaultImageStyle           = "colorful children's book illustration, soft lighting, friendly characters"
	DefaultDatabaseURL          = "data/kids_videos.db"
)

// ApplyDefaults fills every unset field with its default. A zero exploration
// rate, min data points or fetch delay set in the parsed file is kept.
func (c *Config) ApplyDefaults() {
	setString(&c.OutputDir, DefaultOutputDir)
	setString(&c.DataDir, DefaultDataDir)

	setString(&c.Content.Niche, "educational stories for kids")
	setString(&c.Content.TargetAge, "4-8")
	setInt(&c.Content.ScenesPerVideo, DefaultScenesPerVideo)
	setInt(&c.Content.VideoDurationMinutes, DefaultVideoMinutes)
	setInt(&c.Content.HistoryWindow, DefaultHistoryWindow)

	if len(c.Languages) == 0 {
		c.Languages = []types.Language{{Code: "en", Name: "English", Voices: []string{"en-US-AnaNeural", "en-US-JennyNeural"}}}
	}

	setString(&c.Providers.Topic, "llm")
	setString(&c.Providers.LLM, "gemini")
	setString(&c.Providers.TTS, "edge")
	setString(&c.Providers.Image, "pollinations")
	setString(&c.Providers.Animation, "kenburns")
	setString(&c.Providers.Music, "library")

	if c.LLM.Models == nil {
		c.LLM.Models = map[string]string{}
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.8
	}
	setDuration(&c.LLM.Timeout, 2*time.Minute)

	setString(&c.OpenAI.BaseURL, "https://api.openai.com/v1")
	setString(&c.OpenAI.Model, "gpt-4o-mini")
	setString(&c.OpenAI.TTSModel, "tts-1")
	setString(&c.OpenAI.ImageModel, "dall-e-3")
	setString(&c.Groq.BaseURL, "https://api.groq.com/openai/v1")
	setString(&c.Groq.Model, "llama-3.3-70b-versatile")

	setString(&c.Replicate.BaseURL, "https://api.replicate.com/v1")
	setString(&c.Replicate.ImageModel, "black-forest-labs/flux-schnell")
	setString(&c.Replicate.VideoModel, "wan-video/wan-2.5-i2v-fast")
	setString(&c.Replicate.MusicModel, "meta/musicgen")
	setDuration(&c.Replicate.PollInterval, 2*time.Second)
	setDuration(&c.Replicate.MaxWait, 10*time.Minute)

	setString(&c.HuggingFace.Model, "stabilityai/stable-diffusion-xl-base-1.0")
	setString(&c.HuggingFace.BaseURL, "https://api-inference.huggingface.co/models")
	setString(&c.Pollinations.Model, "flux")
	setString(&c.Pollinations.BaseURL, "https://image.pollinations.ai/prompt")
	setString(&c.ElevenLabs.Model, "eleven_multilingual_v2")
	setString(&c.ElevenLabs.BaseURL, "https://api.elevenlabs.io/v1")
	setString(&c.EdgeTTS.Binary, "edge-tts")

	if len(c.Reddit.Subreddits) == 0 {
		c.Reddit.Subreddits = []string{"kidsbooks", "Parenting", "ScienceForKids"}
	}
	setInt(&c.Reddit.Limit, 25)

	setString(&c.Images.Style, DefaultImageStyle)
	setInt(&c.Images.Concurrency, 3)

	setInt(&c.Video.Width, 1920)
	setInt(&c.Video.Height, 1080)
	setInt(&c.Video.FPS, 24)
	if c.Video.BgMusicVolume == 0 {
		c.Video.BgMusicVolume = 0.1
	}
	setString(&c.Video.FFmpeg, "ffmpeg")
	setString(&c.Video.FFprobe, "ffprobe")

	setString(&c.Animation.ImageStyle, "3D Pixar-style render, vibrant colors")
	if c.Animation.ZoomRatio == 0 {
		c.Animation.ZoomRatio = 0.04
	}
	if len(c.Animation.Effects) == 0 {
		c.Animation.Effects = []string{"zoom_in", "zoom_out", "pan_left", "pan_right"}
	}

	setString(&c.BgMusic.Prompt, "gentle playful instrumental music for children, soft xylophone and ukulele")
	setInt(&c.BgMusic.Duration, 30)
	setString(&c.BgMusic.LibraryDir, "assets/music")

	setString(&c.YouTube.CategoryID, "27")
	setString(&c.YouTube.PrivacyStatus, "public")

	setString(&c.Instagram.Mode, "export")
	setString(&c.Instagram.GraphURL, "https://graph.facebook.com/v21.0")
	setDuration(&c.Instagram.PollInterval, 5*time.Second)

	setString(&c.Notifications.Email.Provider, "smtp")
	setString(&c.Notifications.Email.SMTPHost, "smtp.gmail.com")
	setInt(&c.Notifications.Email.SMTPPort, 587)
	setString(&c.Notifications.Email.ResendURL, "https://api.resend.com/emails")

	setInt(&c.ABTesting.VariantsCount, DefaultVariantsCount)
	if !c.explicit.minDataPoints {
		setInt(&c.ABTesting.MinDataPoints, DefaultMinDataPoints)
	}
	if !c.explicit.explorationRate && c.ABTesting.ExplorationRate == 0 {
		c.ABTesting.ExplorationRate = DefaultExplorationRate
	}
	setString(&c.ABTesting.ExploitStrategy, "first")

	if !c.explicit.fetchDelayHours {
		setInt(&c.Analytics.FetchDelayHours, DefaultFetchDelayHours)
	}
	setInt(&c.Analytics.FetchLimit, DefaultFetchLimit)

	setInt(&c.Playlists.MinVideosForPlaylist, DefaultMinVideosForPlaylist)
	setString(&c.Playlists.NamingTemplate, DefaultPlaylistTemplate)
	setString(&c.Playlists.PrivacyStatus, "public")

	if len(c.Schedule.UploadDays) == 0 {
		c.Schedule.UploadDays = []string{"monday", "wednesday", "friday"}
	}
	setString(&c.Schedule.UploadTime, "10:00")
	setString(&c.Schedule.Timezone, "UTC")
	setString(&c.Schedule.Variant, "plain")
	setDuration(&c.Schedule.Timeout, 2*time.Hour)

	setString(&c.Database.Driver, "sqlite")
	setString(&c.Database.URL, DefaultDatabaseURL)
}

func setString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func setInt(dst *int, def int) {
	if *dst == 0 {
		*dst = def
	}
}

func setDuration(dst *time.Duration, def time.Duration) {
	if *dst == 0 {
		*dst = def
	}
}
