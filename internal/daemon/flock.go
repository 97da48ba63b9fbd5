package daemon

import (
	"os"
	"strconv"
	"strings"
)

// FileLock is an exclusive lock on the daemon's lock file. The holder
// writes its PID into the file so a blocked caller can name it.
type FileLock struct {
	path string
	file *os.File
}

// readLockPID returns the PID recorded in the lock file, or 0.
func readLockPID(path string) int {
	data, err := os.ReadFile(path) //nolint:gosec // G304 - path from internal var directory
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}
