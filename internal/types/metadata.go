package types

// Metadata is the publishing information attached to an upload.
type Metadata struct {
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Tags          []string `json:"tags"`
	ThumbnailText string   `json:"thumbnail_text"`
}

// Variant is one A/B candidate for title, hook and thumbnail text.
type Variant struct {
	Style         string `json:"style"` // arm of the bandit, e.g. "curiosity"
	Title         string `json:"title"`
	Hook          string `json:"hook"`
	ThumbnailText string `json:"thumbnail_text"`
	VariantID     int64  `json:"variant_id,omitempty"`
}

// VariantSet is the LLM output holding every generated candidate.
type VariantSet struct {
	Variants []Variant `json:"variants"`
}

// VideoStats is a platform statistics snapshot for one video.
type VideoStats struct {
	Views        int64   `json:"views"`
	Likes        int64   `json:"likes"`
	Comments     int64   `json:"comments"`
	CTR          float64 `json:"ctr"`
	Impressions  int64   `json:"impressions"`
	AvgWatchTime float64 `json:"avg_watch_time"`
}
