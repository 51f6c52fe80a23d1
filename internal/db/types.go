package db

import (
	"time"
)

// Platform names stored in videos.platform and playlists.platform.
const (
	PlatformYouTube   = "youtube"
	PlatformInstagram = "instagram"
)

// Video is one published artifact. Rows are created only after an upload
// succeeds and are only mutated to attach sibling ids.
type Video struct {
	ID            int64     `json:"id"`
	VideoID       string    `json:"video_id"`
	Platform      string    `json:"platform"`
	Language      string    `json:"language"`
	Topic         string    `json:"topic"`
	Category      string    `json:"category"`
	Title         string    `json:"title"`
	UploadedAt    time.Time `json:"upload_date"`
	RunDir        string    `json:"run_dir"`
	PlaylistID    string    `json:"playlist_id,omitempty"`
	ABVariantID   int64     `json:"ab_variant_id,omitempty"`
	ShortsVideoID string    `json:"shorts_video_id,omitempty"`
	IGMediaID     string    `json:"ig_media_id,omitempty"`
}

// Metric is an append-only statistics snapshot keyed by external video id.
type Metric struct {
	ID           int64     `json:"id"`
	VideoID      string    `json:"video_id"`
	Platform     string    `json:"platform"`
	Views        int64     `json:"views"`
	Likes        int64     `json:"likes"`
	Comments     int64     `json:"comments"`
	CTR          float64   `json:"ctr"`
	AvgWatchTime float64   `json:"avg_watch_time"`
	Impressions  int64     `json:"impressions"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// ABVariant is one stored A/B candidate. CTR and IsWinner are written once.
type ABVariant struct {
	ID          int64      `json:"id"`
	VideoDBID   int64      `json:"video_db_id"`
	VariantType string     `json:"variant_type"`
	VariantData string     `json:"variant_data"` // opaque JSON payload
	IsWinner    bool       `json:"is_winner"`
	CTR         float64    `json:"ctr"`
	CreatedAt   time.Time  `json:"created_at"`
	RecordedAt  *time.Time `json:"recorded_at,omitempty"`
}

// TopicScore is the running aggregate for one topic.
type TopicScore struct {
	ID        int64     `json:"id"`
	Topic     string    `json:"topic"`
	Category  string    `json:"category"`
	AvgViews  float64   `json:"avg_views"`
	AvgCTR    float64   `json:"avg_ctr"`
	TimesUsed int       `json:"times_used"`
	LastScore float64   `json:"last_score"`
	UpdatedAt time.Time `json:"updated_at"`
}

// VideoRef pairs a video's row id with its platform id.
type VideoRef struct {
	ID      int64
	VideoID string
}

// Playlist groups videos by (category, language, platform).
type Playlist struct {
	ID         int64     `json:"id"`
	PlaylistID string    `json:"playlist_id"`
	Platform   string    `json:"platform"`
	Language   string    `json:"language"`
	Category   string    `json:"category"`
	Title      string    `json:"title"`
	VideoCount int       `json:"video_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// QuotaUsage is the per-provider, per-day unit counter.
type QuotaUsage struct {
	Provider  string `json:"provider"`
	Day       string `json:"day"` // YYYY-MM-DD, UTC
	UnitsUsed int64  `json:"units_used"`
}

// VideoPerformance joins a video with its most recent metric.
type VideoPerformance struct {
	VideoID   string    `json:"video_id"`
	Topic     string    `json:"topic"`
	Category  string    `json:"category"`
	Language  string    `json:"language"`
	Title     string    `json:"title"`
	Views     int64     `json:"views"`
	CTR       float64   `json:"ctr"`
	FetchedAt time.Time `json:"fetched_at"`
}

// CategoryScore ranks categories by the mean of their topics' last score.
type CategoryScore struct {
	Category  string  `json:"category"`
	AvgScore  float64 `json:"avg_score"`
	TotalUses int64   `json:"total_uses"`
}

// VariantTypeScore ranks A/B variant types by mean recorded CTR.
type VariantTypeScore struct {
	VariantType string  `json:"variant_type"`
	AvgCTR      float64 `json:"avg_ctr"`
	Samples     int64   `json:"samples"`
}

// PerformanceSummary averages every video's most recent metric.
type PerformanceSummary struct {
	AvgViews    float64 `json:"avg_views"`
	AvgCTR      float64 `json:"avg_ctr"`
	TotalVideos int64   `json:"total_videos"`
}
