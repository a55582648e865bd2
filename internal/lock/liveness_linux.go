//go:build linux

package lock

import (
	"os"
	"strconv"
)

// processAlive checks liveness via existence of /proc/<pid>.
func processAlive(pid int) bool {
	_, err := os.Stat("/proc/" + strconv.Itoa(pid))
	return err == nil
}
