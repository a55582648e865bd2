// Package lock implements the per-stack exclusive file lock (C3): an
// atomic create-if-absent lock file with PID-liveness-based stale-lock
// reclamation. The lock is advisory within this system only — no external
// cooperation is required, but it is a cross-process primitive (unlike an
// in-process mutex) so a CLI one-shot run and the daemon serialize
// correctly against each other.
package lock

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultDir is the default lock directory.
const DefaultDir = "/var/lock/rehearsa"

// HeldError is returned when another live process already holds the lock.
type HeldError struct {
	Stack string
	PID   int
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("stack %q is already being rehearsed (pid %d)", e.Stack, e.PID)
}

// Lock represents a held per-stack lock. The zero value is not usable;
// obtain one via Acquire.
type Lock struct {
	path string
}

// Acquire obtains the exclusive lock for stackName under dir (DefaultDir in
// production). It is atomic: the lock file is created with O_EXCL. On
// contention it reads the holder's recorded PID and checks liveness; a dead
// or unparsable holder is reclaimed and acquisition is retried exactly
// once. A live holder yields *HeldError.
func Acquire(dir, stackName string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir %s: %w", dir, err)
	}

	path := filepath.Join(dir, stackName+".lock")

	for attempt := 0; attempt < 2; attempt++ {
		l, err := tryCreate(path)
		if err == nil {
			return l, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock file %s: %w", path, err)
		}

		pid, ok := readHolderPID(path)
		if !ok || !processAlive(pid) {
			_ = os.Remove(path)
			continue
		}
		return nil, &HeldError{Stack: stackName, PID: pid}
	}

	return nil, fmt.Errorf("failed to acquire lock %s after stale-lock reclamation", path)
}

func tryCreate(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	hostname, _ := os.Hostname()
	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "pid: %d\n", os.Getpid())
	fmt.Fprintf(w, "hostname: %s\n", hostname)
	fmt.Fprintf(w, "timestamp: %s\n", time.Now().UTC().Format(time.RFC3339))
	if err := w.Flush(); err != nil {
		_ = os.Remove(path)
		return nil, err
	}

	return &Lock{path: path}, nil
}

func readHolderPID(path string) (int, bool) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	for _, line := range strings.Split(string(b), "\n") {
		rest, ok := strings.CutPrefix(line, "pid:")
		if !ok {
			continue
		}
		pid, err := strconv.Atoi(strings.TrimSpace(rest))
		if err != nil {
			return 0, false
		}
		return pid, true
	}
	return 0, false
}

// IsHeld reports whether stackName's lock file exists and is held by a
// live process, without attempting reclamation. Used by the cleanup sweep
// to recognize a stack whose rehearsal is genuinely still in flight.
func IsHeld(dir, stackName string) bool {
	path := filepath.Join(dir, stackName+".lock")
	pid, ok := readHolderPID(path)
	if !ok {
		return false
	}
	return processAlive(pid)
}

// Release removes the lock file. Best-effort: a crashed holder simply
// leaves a stale lock for the next caller to reclaim.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	return os.Remove(l.path)
}
