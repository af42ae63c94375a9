package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileStorage manages temporary download files and their promotion to final
// destinations under the library root.
type FileStorage struct {
	tempDir string
}

// NewFileStorage creates a FileStorage writing temporaries under tempDir.
func NewFileStorage(tempDir string) *FileStorage {
	return &FileStorage{tempDir: tempDir}
}

// CreateTemp creates the temporary plaintext file for one download attempt.
// The name is attempt-scoped so a retry never appends to an untrusted
// partial file.
func (s *FileStorage) CreateTemp(trackID string, attempt int) (*os.File, error) {
	name := fmt.Sprintf("track_%s_%d.part", trackID, attempt)
	return os.Create(filepath.Join(s.tempDir, name))
}

// RemoveTemp deletes a temporary file, ignoring files already gone.
func (s *FileStorage) RemoveTemp(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return
	}
}

// Promote moves a temporary file to its final path, creating parent
// directories. Falls back to copy+remove when the rename crosses
// filesystems.
func (s *FileStorage) Promote(tmpPath, finalPath string) error {
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err == nil {
		return nil
	}

	src, err := os.Open(tmpPath)
	if err != nil {
		return fmt.Errorf("open temp file: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(finalPath)
	if err != nil {
		return fmt.Errorf("create destination file: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(finalPath)
		return fmt.Errorf("copy to destination: %w", err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("close destination file: %w", err)
	}

	os.Remove(tmpPath)
	return nil
}
