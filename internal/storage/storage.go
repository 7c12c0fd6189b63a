package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"crypto/sha256"
	"encoding/hex"
)

// Storage defines the interface for media storage backends
type Storage interface {
	Save(ctx context.Context, originalName string, reader io.Reader) (string, error)
	Get(ctx context.Context, objectName string) (io.ReadCloser, error)
	Delete(ctx context.Context, objectName string) error
	URLFor(objectName string) string
}

// LocalStorage implements Storage using the local filesystem. Objects are
// named by content hash so re-uploading the same file is a no-op and names
// never collide with visitor-supplied input.
type LocalStorage struct {
	baseDir string
	baseURL string
}

// NewLocalStorage creates a new local filesystem storage backend
func NewLocalStorage(baseDir, baseURL string) (*LocalStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &LocalStorage{
		baseDir: baseDir,
		baseURL: baseURL,
	}, nil
}

// Save writes the content under a sha256-derived name, keeping the original
// extension, and returns the object name.
func (s *LocalStorage) Save(ctx context.Context, originalName string, reader io.Reader) (string, error) {
	tmp, err := os.CreateTemp(s.baseDir, "upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	hash := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, hash), reader); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(originalName))
	objectName := hex.EncodeToString(hash.Sum(nil)) + ext

	fullPath := filepath.Join(s.baseDir, objectName)
	if err := os.Rename(tmpPath, fullPath); err != nil {
		return "", fmt.Errorf("failed to place file: %w", err)
	}
	return objectName, nil
}

func (s *LocalStorage) Get(ctx context.Context, objectName string) (io.ReadCloser, error) {
	// Hash-derived names contain no separators; reject anything that does
	if objectName != filepath.Base(objectName) {
		return nil, fmt.Errorf("invalid object name: %s", objectName)
	}
	fullPath := filepath.Join(s.baseDir, objectName)
	file, err := os.Open(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

func (s *LocalStorage) Delete(ctx context.Context, objectName string) error {
	if objectName != filepath.Base(objectName) {
		return fmt.Errorf("invalid object name: %s", objectName)
	}
	fullPath := filepath.Join(s.baseDir, objectName)
	if err := os.Remove(fullPath); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// URLFor returns the public URL for a stored object
func (s *LocalStorage) URLFor(objectName string) string {
	return fmt.Sprintf("%s/v1/files/%s", s.baseURL, objectName)
}
