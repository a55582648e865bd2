package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SchedulerState persists, per stack, the RFC3339 timestamp of the last
// cron slot that was either fired or deliberately skipped. Recording the
// slot before dispatch means a crash mid-rehearsal cannot replay it.
type SchedulerState struct {
	path string
}

// NewSchedulerState returns a SchedulerState backed by the file at path,
// typically /etc/rehearsa/scheduler_state.json.
func NewSchedulerState(path string) *SchedulerState {
	return &SchedulerState{path: path}
}

// Load returns the stack -> last-advanced-slot map, or an empty map if the
// state file does not exist yet.
func (s *SchedulerState) Load() (map[string]string, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read scheduler state %s: %w", s.path, err)
	}
	state := map[string]string{}
	if err := json.Unmarshal(b, &state); err != nil {
		return nil, fmt.Errorf("parse scheduler state %s: %w", s.path, err)
	}
	return state, nil
}

// Save writes the stack -> last-advanced-slot map as pretty JSON.
func (s *SchedulerState) Save(state map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create scheduler state dir: %w", err)
	}
	b, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal scheduler state: %w", err)
	}
	if err := os.WriteFile(s.path, b, 0o644); err != nil {
		return fmt.Errorf("write scheduler state %s: %w", s.path, err)
	}
	return nil
}
