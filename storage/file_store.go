package storage

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// LocalFileStore keeps uploaded bid workbooks on local disk under a single
// base directory. It satisfies the pipeline's FileStore collaborator.
type LocalFileStore struct {
	baseDir string
}

// NewLocalFileStore creates the store and its base directory. dir defaults
// to ./uploads when empty.
func NewLocalFileStore(dir string) (*LocalFileStore, error) {
	if dir == "" {
		dir = "uploads"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("unable to create directory %s: %w", dir, err)
	}
	return &LocalFileStore{baseDir: dir}, nil
}

// Save stores an uploaded file under a unique name and returns its path.
func (s *LocalFileStore) Save(file *multipart.FileHeader, maxSize int64) (string, error) {
	filename := filepath.Base(file.Filename)
	if filename == "" || filename == "." {
		return "", fmt.Errorf("invalid file name")
	}
	if maxSize > 0 && file.Size > maxSize {
		return "", fmt.Errorf("file size exceeds the allowed limit")
	}

	uniqueName := fmt.Sprintf("%d-%s-%s", time.Now().Unix(), uuid.NewString()[:8], filename)
	dstPath := filepath.Join(s.baseDir, uniqueName)

	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(dstPath)
	if err != nil {
		return "", fmt.Errorf("unable to create the file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("unable to save the file: %w", err)
	}

	return dstPath, nil
}

// Download resolves a stored path for the spreadsheet parser. Uploads live
// on the same disk, so this is an existence check rather than a transfer.
func (s *LocalFileStore) Download(path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("stored file %s is not readable: %w", path, err)
	}
	return path, nil
}

// CleanupStaleFiles deletes uploads older than maxAge. Returns the number of
// files removed.
func (s *LocalFileStore) CleanupStaleFiles(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read upload directory: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.baseDir, entry.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}
