package config

import "strings"

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv copies secrets and connection strings from the environment.
// A non-empty environment value wins over the file.
func (c *Config) ApplyEnv(lookup LookupFunc) {
	pairs := []struct {
		key string
		dst *string
	}{
		{"GEMINI_API_KEY", &c.Gemini.APIKey},
		{"OPENAI_API_KEY", &c.OpenAI.APIKey},
		{"GROQ_API_KEY", &c.Groq.APIKey},
		{"REPLICATE_API_TOKEN", &c.Replicate.APIToken},
		{"HF_API_TOKEN", &c.HuggingFace.APIToken},
		{"PEXELS_API_KEY", &c.Pexels.APIKey},
		{"ELEVENLABS_API_KEY", &c.ElevenLabs.APIKey},
		{"YOUTUBE_CLIENT_ID", &c.YouTube.ClientID},
		{"YOUTUBE_CLIENT_SECRET", &c.YouTube.ClientSecret},
		{"YOUTUBE_REFRESH_TOKEN", &c.YouTube.RefreshToken},
		{"INSTAGRAM_USER_ID", &c.Instagram.UserID},
		{"INSTAGRAM_ACCESS_TOKEN", &c.Instagram.AccessToken},
		{"INSTAGRAM_PUBLIC_BASE_URL", &c.Instagram.PublicBaseURL},
		{"EMAIL_SENDER", &c.Notifications.Email.SenderEmail},
		{"EMAIL_PASSWORD", &c.Notifications.Email.SenderPassword},
		{"EMAIL_RECIPIENT", &c.Notifications.Email.RecipientEmail},
		{"RESEND_API_KEY", &c.Notifications.Email.ResendAPIKey},
		{"DATABASE_URL", &c.Database.URL},
		{"DATABASE_DRIVER", &c.Database.Driver},
	}
	for _, p := range pairs {
		if v, ok := lookup(p.key); ok && strings.TrimSpace(v) != "" {
			*p.dst = strings.TrimSpace(v)
		}
	}

	// A postgres URL implies the postgres driver unless one was named explicitly.
	if _, ok := lookup("DATABASE_DRIVER"); !ok && isPostgresURL(c.Database.URL) {
		c.Database.Driver = "postgres"
	}
}

func isPostgresURL(url string) bool {
	return strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://")
}

// SetDatabaseURL points the store at url, switching drivers to match it.
func (c *Config) SetDatabaseURL(url string) {
	c.Database.URL = url
	if isPostgresURL(url) {
		c.Database.Driver = "postgres"
	} else {
		c.Database.Driver = "sqlite"
	}
}
