package topics

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/jonathan/kids-video-pipeline/internal/fetch"
	"github.com/jonathan/kids-video-pipeline/internal/types"
)

// HistoryFile is the history file name inside the data directory.
const HistoryFile = "topics_history.json"

// History is the flat JSON list of every topic used so far.
type History struct {
	path string
	mu   sync.Mutex
}

// NewHistory returns a history backed by path. The file is created on the
// first Append.
func NewHistory(path string) *History {
	return &History{path: path}
}

// Path returns the backing file.
func (h *History) Path() string {
	return h.path
}

// Load returns every recorded topic, oldest first. A missing file is an
// empty history.
func (h *History) Load() ([]types.Topic, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.load()
}

func (h *History) load() ([]types.Topic, error) {
	data, err := os.ReadFile(h.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read topic history: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	var topics []types.Topic
	if err := json.Unmarshal(data, &topics); err != nil {
		return nil, fmt.Errorf("failed to parse topic history %s: %w", h.path, err)
	}
	return topics, nil
}

// Recent returns the last n topic titles, oldest first.
func (h *History) Recent(n int) ([]string, error) {
	all, err := h.Load()
	if err != nil {
		return nil, err
	}
	if n > 0 && len(all) > n {
		all = all[len(all)-n:]
	}
	out := make([]string, len(all))
	for i, t := range all {
		out[i] = t.Topic
	}
	return out, nil
}

// Contains reports whether a topic title was already used, ignoring case.
func (h *History) Contains(title string) (bool, error) {
	all, err := h.Load()
	if err != nil {
		return false, err
	}
	for _, t := range all {
		if strings.EqualFold(strings.TrimSpace(t.Topic), strings.TrimSpace(title)) {
			return true, nil
		}
	}
	return false, nil
}

// Append records a topic and rewrites the file atomically.
func (h *History) Append(topic types.Topic) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	all, err := h.load()
	if err != nil {
		return err
	}
	all = append(all, topic)
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal topic history: %w", err)
	}
	if err := fetch.WriteFile(h.path, data); err != nil {
		return fmt.Errorf("failed to write topic history: %w", err)
	}
	return nil
}
