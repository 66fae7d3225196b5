//go:build !windows

package addressbook

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// acquireFileLock takes an exclusive flock on the lock file so two
// endpoints sharing one address book file cannot interleave writes.
// The returned handle must be passed to releaseFileLock.
func (s *storage) acquireFileLock() (*os.File, error) {
	dir := filepath.Dir(s.lockPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create lock directory: %w", err)
		}
	}

	lockFile, err := os.OpenFile(s.lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	// Blocks until the lock is available
	if err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX); err != nil {
		lockFile.Close()
		return nil, fmt.Errorf("failed to acquire file lock: %w", err)
	}

	return lockFile, nil
}

// releaseFileLock drops the flock and closes the lock file.
func (s *storage) releaseFileLock(lockFile *os.File) {
	if lockFile == nil {
		return
	}
	_ = syscall.Flock(int(lockFile.Fd()), syscall.LOCK_UN)
	lockFile.Close()
}
