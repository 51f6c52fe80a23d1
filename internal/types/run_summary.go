package types

import "time"

// LanguageResult is the outcome of one language's pass through the pipeline.
type LanguageResult struct {
	Code       string            `json:"code"`
	Name       string            `json:"name"`
	Title      string            `json:"title,omitempty"`
	VideoURL   string            `json:"video_url,omitempty"`
	VideoID    string            `json:"video_id,omitempty"`
	ShortsURL  string            `json:"shorts_url,omitempty"`
	ShortsID   string            `json:"shorts_id,omitempty"`
	ReelURL    string            `json:"reel_url,omitempty"`
	PlaylistID string            `json:"playlist_id,omitempty"`
	Steps      map[string]string `json:"steps"`
	Error      string            `json:"error,omitempty"`
}

// UploadSucceeded reports whether the full-length video made it to the platform.
func (r *LanguageResult) UploadSucceeded() bool {
	return r.VideoID != ""
}

// RunSummary is reported at the end of a run and emailed when notifications are on.
type RunSummary struct {
	RunID      string           `json:"run_id"`
	Variant    string           `json:"variant"`
	RunDir     string           `json:"run_dir"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Topic      *Topic           `json:"topic,omitempty"`
	Upload     bool             `json:"upload"`
	Languages  []LanguageResult `json:"languages"`
	Error      string           `json:"error,omitempty"`
}

// Succeeded counts languages whose full video was uploaded.
func (s *RunSummary) Succeeded() int {
	n := 0
	for i := range s.Languages {
		if s.Languages[i].UploadSucceeded() {
			n++
		}
	}
	return n
}
