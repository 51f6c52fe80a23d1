// Package types provides type definitions for structured data used throughout the video pipeline.
//
//nolint:revive // types is a standard Go package name pattern
package types

// Topic is the subject of one run, shared by every language variant.
type Topic struct {
	Topic       string `json:"topic"`
	Category    string `json:"category"`
	TargetAge   string `json:"target_age"`
	Description string `json:"description"`
	Source      string `json:"source,omitempty"` // provider that produced it, e.g. "llm" or "reddit"
}

// Language is one configured output language.
type Language struct {
	Code   string   `yaml:"code" json:"code" validate:"required"`
	Name   string   `yaml:"name" json:"name" validate:"required"`
	Voices []string `yaml:"voices" json:"voices" validate:"required,min=1"`
}

// IsEnglish reports whether the language reuses the base English script.
func (l Language) IsEnglish() bool {
	return l.Code == "en"
}
