// Package baseline implements the pinned restore contract per stack (C4):
// the baseline store, promotion from history, and the drift engine.
package baseline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/vitaliisemenov/rehearsa/internal/history"
)

// StackBaseline is the pinned restore contract for one stack.
type StackBaseline struct {
	Stack              string         `json:"stack"`
	ExpectedServices   []string       `json:"expected_services"`
	ExpectedConfidence int            `json:"expected_confidence"`
	ExpectedReadiness  *int           `json:"expected_readiness,omitempty"`
	ExpectedDuration   float64        `json:"expected_duration"`
	ServiceScores      map[string]int `json:"service_scores"`
	PinnedAt           string         `json:"pinned_at"`
	PromotedAt         string         `json:"promoted_at"`
}

// Store manages the pinned baseline file and its append-only promotion
// history on disk.
type Store struct {
	baselineDir string
	historyDir  string
}

// NewStore returns a Store rooted at the given directories, typically
// $HOME/.rehearsa/baselines and $HOME/.rehearsa/baseline-history.
func NewStore(baselineDir, historyDir string) *Store {
	return &Store{baselineDir: baselineDir, historyDir: historyDir}
}

func safeFilename(timestamp string) string {
	return strings.ReplaceAll(timestamp, ":", "-") + ".json"
}

// SaveBaseline writes the pinned JSON and additionally appends a
// BaselineHistoryEntry keyed by PromotedAt.
func (s *Store) SaveBaseline(b *StackBaseline) error {
	if err := os.MkdirAll(s.baselineDir, 0o755); err != nil {
		return fmt.Errorf("create baseline dir: %w", err)
	}
	pinnedPath := filepath.Join(s.baselineDir, b.Stack+".json")
	pretty, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal baseline: %w", err)
	}
	if err := os.WriteFile(pinnedPath, pretty, 0o644); err != nil {
		return fmt.Errorf("write baseline %s: %w", pinnedPath, err)
	}

	histDir := filepath.Join(s.historyDir, b.Stack)
	if err := os.MkdirAll(histDir, 0o755); err != nil {
		return fmt.Errorf("create baseline history dir: %w", err)
	}
	histPath := filepath.Join(histDir, safeFilename(b.PromotedAt))
	if err := os.WriteFile(histPath, pretty, 0o644); err != nil {
		return fmt.Errorf("write baseline history %s: %w", histPath, err)
	}
	return nil
}

// LoadBaseline returns the currently pinned baseline for stackName, or nil
// if none has been promoted yet.
func (s *Store) LoadBaseline(stackName string) (*StackBaseline, error) {
	path := filepath.Join(s.baselineDir, stackName+".json")
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read baseline %s: %w", path, err)
	}
	var baseline StackBaseline
	if err := json.Unmarshal(b, &baseline); err != nil {
		return nil, fmt.Errorf("parse baseline %s: %w", path, err)
	}
	return &baseline, nil
}

// PromoteBaseline loads a run record from historyStore — matching
// timestamp by substring when non-empty, otherwise the latest — and pins it
// as the new baseline, returning the baseline that was saved.
func (s *Store) PromoteBaseline(historyStore *history.Store, stackName, timestamp string) (*StackBaseline, error) {
	var record *history.RunRecord
	var err error

	if timestamp != "" {
		record, err = historyStore.FindByTimestampSubstring(stackName, timestamp)
	} else {
		record, err = historyStore.LoadLatest(stackName)
	}
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("no run record found for stack %q (timestamp filter %q)", stackName, timestamp)
	}

	services := make([]string, 0, len(record.Services))
	for name := range record.Services {
		services = append(services, name)
	}
	sort.Strings(services)

	readiness := record.Readiness
	b := &StackBaseline{
		Stack:              stackName,
		ExpectedServices:   services,
		ExpectedConfidence: record.Confidence,
		ExpectedReadiness:  &readiness,
		ExpectedDuration:   record.DurationSeconds,
		ServiceScores:      record.Services,
		PinnedAt:           record.Timestamp,
		PromotedAt:         time.Now().UTC().Format(time.RFC3339),
	}

	if err := s.SaveBaseline(b); err != nil {
		return nil, err
	}
	return b, nil
}
