//go:build !unix

package daemon

// AcquireLock does nothing where flock is unavailable; the PID
// file check still guards against a second daemon.
func AcquireLock(path string) (*FileLock, error) {
	return &FileLock{path: path}, nil
}

// Release is a no-op where flock is unavailable.
func (l *FileLock) Release() error {
	return nil
}

// LockHolder never reports a holder where flock is unavailable.
func LockHolder(path string) (pid int, locked bool) {
	return 0, false
}

// IsLocked always reports false where flock is unavailable.
func IsLocked(path string) bool {
	return false
}
