// Package prompts holds the LLM prompt templates of every pipeline stage.
// Templates live in JSON files embedded at compile time and are addressed by
// typed keys, so a missing template is caught by Check at startup instead of
// halfway through a run.
package prompts

import (
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

//go:embed *.json
var promptFiles embed.FS

// Key names one template: the embedded file and the entry inside it.
type Key struct {
	File string
	Name string
}

func (k Key) String() string { return k.File + "/" + k.Name }

// Topic selection.
var (
	TopicSystem   = Key{"topics.json", "system"}
	GenerateTopic = Key{"topics.json", "generate-topic"}
	RedditTopic   = Key{"topics.json", "reddit-topic"}
)

// Script writing, translation and shorts.
var (
	StorySystem     = Key{"scripts.json", "story-system"}
	Story           = Key{"scripts.json", "story"}
	PoemSystem      = Key{"scripts.json", "poem-system"}
	Poem            = Key{"scripts.json", "poem"}
	LullabySystem   = Key{"scripts.json", "lullaby-system"}
	Lullaby         = Key{"scripts.json", "lullaby"}
	TranslateSystem = Key{"scripts.json", "translate-system"}
	Translate       = Key{"scripts.json", "translate"}
	ShortsSystem    = Key{"scripts.json", "shorts-system"}
	Shorts          = Key{"scripts.json", "shorts"}
)

// Upload metadata.
var (
	MetadataSystem = Key{"metadata.json", "system"}
	Metadata       = Key{"metadata.json", "generate"}
	LanguageNote   = Key{"metadata.json", "language-note"}
)

// A/B title and thumbnail variants.
var (
	VariantsSystem = Key{"abtest.json", "system"}
	Variants       = Key{"abtest.json", "variants"}
)

// Keys lists every template the pipeline uses.
var Keys = []Key{
	TopicSystem, GenerateTopic, RedditTopic,
	StorySystem, Story, PoemSystem, Poem, LullabySystem, Lullaby,
	TranslateSystem, Translate, ShortsSystem, Shorts,
	MetadataSystem, Metadata, LanguageNote,
	VariantsSystem, Variants,
}

var (
	loadOnce sync.Once
	loaded   map[string]map[string]string
	loadErr  error
)

// Get returns the template for k.
func Get(k Key) (string, error) {
	return lookup(loadAll, k)
}

// Check verifies that every key in Keys resolves to a non-empty template.
func Check() error {
	return check(loadAll, Keys)
}

// Format replaces template placeholders in the form {{.Key}} with values from data.
func Format(template string, data map[string]string) string {
	result := template
	for key, value := range data {
		placeholder := fmt.Sprintf("{{.%s}}", key)
		result = strings.ReplaceAll(result, placeholder, value)
	}
	return result
}

type loader func() (map[string]map[string]string, error)

func lookup(load loader, k Key) (string, error) {
	files, err := load()
	if err != nil {
		return "", err
	}
	entries, ok := files[k.File]
	if !ok {
		return "", fmt.Errorf("prompt file %s not found", k.File)
	}
	prompt, ok := entries[k.Name]
	if !ok {
		return "", fmt.Errorf("prompt key %q not found in %s", k.Name, k.File)
	}
	return prompt, nil
}

func check(load loader, keys []Key) error {
	if _, err := load(); err != nil {
		return err
	}
	var missing []string
	for _, k := range keys {
		prompt, err := lookup(load, k)
		if err != nil || strings.TrimSpace(prompt) == "" {
			missing = append(missing, k.String())
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing prompt templates: %s", strings.Join(missing, ", "))
	}
	return nil
}

// loadAll parses every embedded prompt file once.
func loadAll() (map[string]map[string]string, error) {
	loadOnce.Do(func() {
		loaded, loadErr = parseFiles(promptFiles)
	})
	return loaded, loadErr
}

func parseFiles(fsys embed.FS) (map[string]map[string]string, error) {
	entries, err := fsys.ReadDir(".")
	if err != nil {
		return nil, fmt.Errorf("failed to list prompt files: %w", err)
	}
	files := make(map[string]map[string]string, len(entries))
	for _, e := range entries {
		data, err := fsys.ReadFile(e.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read prompt file %s: %w", e.Name(), err)
		}
		var prompts map[string]string
		if err := json.Unmarshal(data, &prompts); err != nil {
			return nil, fmt.Errorf("failed to parse prompt file %s: %w", e.Name(), err)
		}
		files[e.Name()] = prompts
	}
	return files, nil
}
