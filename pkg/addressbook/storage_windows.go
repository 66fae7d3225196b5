//go:build windows

package addressbook

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/windows"
)

// acquireFileLock takes an exclusive LockFileEx lock so two endpoints
// sharing one address book file cannot interleave writes. The returned
// handle must be passed to releaseFileLock.
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

	// Blocks until the lock is available; locks a single byte, the
	// minimum range LockFileEx accepts.
	var overlapped windows.Overlapped
	err = windows.LockFileEx(
		windows.Handle(lockFile.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK,
		0,
		1,
		0,
		&overlapped,
	)
	if err != nil {
		lockFile.Close()
		return nil, fmt.Errorf("failed to acquire file lock: %w", err)
	}

	return lockFile, nil
}

// releaseFileLock drops the lock and closes the lock file.
func (s *storage) releaseFileLock(lockFile *os.File) {
	if lockFile == nil {
		return
	}

	var overlapped windows.Overlapped
	_ = windows.UnlockFileEx(
		windows.Handle(lockFile.Fd()),
		0,
		1,
		0,
		&overlapped,
	)
	lockFile.Close()
}
