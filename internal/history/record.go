// Package history implements the append-only per-stack run record store (C2):
// content-addressed persistence, latest-run lookup, stability and regression
// analysis, and integrity validation.
package history

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/vitaliisemenov/rehearsa/internal/risk"
)

// RunRecord is one immutable, persisted rehearsal outcome.
type RunRecord struct {
	Stack           string         `json:"stack"`
	Timestamp       string         `json:"timestamp"`
	DurationSeconds float64        `json:"duration_seconds"`
	Confidence      int            `json:"confidence"`
	Readiness       int            `json:"readiness"`
	Risk            risk.Band      `json:"risk"`
	ExitCode        int            `json:"exit_code"`
	Services        map[string]int `json:"services"`
	Hash            string         `json:"hash,omitempty"`
}

// ComputeHash returns the SHA-256 hex digest of r with its Hash field
// cleared, so the digest is stable across the field it's stored in.
func ComputeHash(r *RunRecord) (string, error) {
	clone := *r
	clone.Hash = ""
	b, err := json.Marshal(&clone)
	if err != nil {
		return "", fmt.Errorf("marshal record for hashing: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyHash reports whether r.Hash matches ComputeHash(r).
func VerifyHash(r *RunRecord) (bool, error) {
	want, err := ComputeHash(r)
	if err != nil {
		return false, err
	}
	return want == r.Hash, nil
}
