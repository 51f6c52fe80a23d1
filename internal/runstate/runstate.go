// Package runstate keeps the per-run step log (run_log.json) that records
// what each pipeline stage did, for inspection after the run.
package runstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/kids-video-pipeline/internal/fetch"
)

// FileName is the log file written inside each run directory.
const FileName = "run_log.json"

// Status is the outcome of one step.
type Status string

// Step outcomes.
const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
	StatusSaved   Status = "saved"
)

// Step is one recorded outcome.
type Step struct {
	Status    Status          `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Log is the on-disk document.
type Log struct {
	RunID     string          `json:"run_id"`
	Variant   string          `json:"variant"`
	StartedAt time.Time       `json:"started_at"`
	Steps     map[string]Step `json:"steps"`
}

// State appends steps to one run's log. Every Record rewrites the file.
type State struct {
	mu   sync.Mutex
	path string
	log  Log
	now  func() time.Time
}

// Open creates the log for a run, or continues an existing one. An empty
// runID gets a fresh UUID.
func Open(runDir, runID, variant string) (*State, error) {
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}
	s := &State{path: filepath.Join(runDir, FileName), now: time.Now}

	existing, err := Load(runDir)
	switch {
	case err == nil:
		s.log = *existing
	case errors.Is(err, os.ErrNotExist):
		if runID == "" {
			runID = uuid.NewString()
		}
		s.log = Log{RunID: runID, Variant: variant, StartedAt: s.now().UTC(), Steps: map[string]Step{}}
		if err := s.flush(); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}
	return s, nil
}

// Load reads the log from a run directory.
func Load(runDir string) (*Log, error) {
	data, err := os.ReadFile(filepath.Join(runDir, FileName))
	if err != nil {
		return nil, err
	}
	var l Log
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", FileName, err)
	}
	if l.Steps == nil {
		l.Steps = map[string]Step{}
	}
	return &l, nil
}

// SetClock replaces the time source.
func (s *State) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// RunID returns the run's id.
func (s *State) RunID() string { return s.log.RunID }

// Path returns the log file path.
func (s *State) Path() string { return s.path }

// Record stores the outcome of step and rewrites the log. data may be nil.
func (s *State) Record(step string, status Status, data any) error {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to encode %s payload: %w", step, err)
		}
		raw = b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.Steps[step] = Step{Status: status, Timestamp: s.now().UTC(), Data: raw}
	return s.flush()
}

// Fail records step as failed with the error message as payload.
func (s *State) Fail(step string, err error) error {
	return s.Record(step, StatusFailed, map[string]string{"error": err.Error()})
}

// Status returns the recorded status of step, or "" if it was never recorded.
func (s *State) Status(step string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log.Steps[step].Status
}

// Steps returns the recorded step names in sorted order.
func (s *State) Steps() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.log.Steps))
	for name := range s.log.Steps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a copy of the log.
func (s *State) Snapshot() Log {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.log
	out.Steps = make(map[string]Step, len(s.log.Steps))
	for k, v := range s.log.Steps {
		out.Steps[k] = v
	}
	return out
}

func (s *State) flush() error {
	data, err := json.MarshalIndent(s.log, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode run log: %w", err)
	}
	if err := fetch.WriteFile(s.path, data); err != nil {
		return fmt.Errorf("failed to write run log: %w", err)
	}
	return nil
}
