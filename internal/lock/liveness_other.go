//go:build !linux

package lock

import (
	"os"
	"syscall"
)

// processAlive probes liveness with a signal-0 send, the portable
// equivalent of the Linux /proc/<pid> check.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
