package addressbook

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	// currentVersion is the on-disk format version.
	currentVersion = 1

	// tempFileSuffix is appended to the file path for atomic writes.
	tempFileSuffix = ".tmp"

	// backupFileSuffix is appended when backing up corrupted files.
	backupFileSuffix = ".bak"

	// lockFileSuffix names the lock file used for inter-process
	// synchronization.
	lockFileSuffix = ".lock"
)

// storage handles file persistence for the address book.
type storage struct {
	path     string
	lockPath string
	mu       sync.Mutex
}

func newStorage(path string) *storage {
	return &storage{
		path:     path,
		lockPath: path + lockFileSuffix,
	}
}

// load reads the address book from disk. A missing or empty file
// yields an empty book. A corrupted file is moved aside to a .bak and
// an empty book is returned, so one bad write never bricks the
// endpoint.
func (s *storage) load() (*bookData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lockFile, err := s.acquireFileLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock for load: %w", err)
	}
	defer s.releaseFileLock(lockFile)

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return emptyBookData(), nil
		}
		return nil, fmt.Errorf("failed to read address book: %w", err)
	}

	if len(raw) == 0 {
		return emptyBookData(), nil
	}

	var book bookData
	if err := json.Unmarshal(raw, &book); err != nil {
		backupPath := s.path + backupFileSuffix
		if backupErr := os.Rename(s.path, backupPath); backupErr != nil {
			return nil, fmt.Errorf("failed to parse address book and backup failed: parse error: %w, backup error: %v", err, backupErr)
		}
		return emptyBookData(), nil
	}

	if book.Peers == nil {
		book.Peers = make(map[string]*PeerEntry)
	}

	return &book, nil
}

func emptyBookData() *bookData {
	return &bookData{
		Version: currentVersion,
		Peers:   make(map[string]*PeerEntry),
	}
}

// save writes the address book to disk atomically: temp file, fsync,
// then rename over the target path.
func (s *storage) save(book *bookData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lockFile, err := s.acquireFileLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock for save: %w", err)
	}
	defer s.releaseFileLock(lockFile)

	dir := filepath.Dir(s.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	raw, err := json.MarshalIndent(book, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal address book: %w", err)
	}

	tempPath := s.path + tempFileSuffix
	tempFile, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	if _, err := tempFile.Write(raw); err != nil {
		tempFile.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write temporary file: %w", err)
	}

	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync temporary file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close temporary file: %w", err)
	}

	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	return nil
}
