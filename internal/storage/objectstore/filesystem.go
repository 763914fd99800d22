package objectstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps published images on the local filesystem. It exists for
// development and test environments where a MinIO deployment is not
// available; production uses MinioStore.
type FileStore struct {
	basePath   string
	publicBase string
}

// NewFileStore initializes a FileStore rooted at basePath.
func NewFileStore(basePath, publicBase string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("objectstore: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("objectstore: ensure base path: %w", err)
	}
	return &FileStore{
		basePath:   basePath,
		publicBase: strings.TrimRight(publicBase, "/"),
	}, nil
}

// Put writes the object under the base path and returns its public URL.
// Object names are cleaned to prevent directory traversal.
func (s *FileStore) Put(ctx context.Context, objectName string, data []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleanName, err := sanitizeObjectName(objectName)
	if err != nil {
		return "", err
	}
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(cleanName))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("objectstore: ensure directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", fmt.Errorf("objectstore: write %q: %w", cleanName, err)
	}
	return s.publicBase + "/" + cleanName, nil
}

// Remove deletes the object file. A missing file is not an error: cascade
// deletion re-runs after partial failures.
func (s *FileStore) Remove(ctx context.Context, objectName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cleanName, err := sanitizeObjectName(objectName)
	if err != nil {
		return err
	}
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(cleanName))
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("objectstore: remove %q: %w", cleanName, err)
	}
	return nil
}

// ObjectNameFromURL maps a public URL back to its object name.
func (s *FileStore) ObjectNameFromURL(publicURL string) (string, bool) {
	prefix := s.publicBase + "/"
	if !strings.HasPrefix(publicURL, prefix) {
		return "", false
	}
	name := strings.TrimPrefix(publicURL, prefix)
	if name == "" {
		return "", false
	}
	return name, true
}

// sanitizeObjectName normalizes a name and prevents escaping the storage root.
func sanitizeObjectName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("objectstore: object name is required")
	}
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimLeft(name, "/")
	cleaned := filepath.Clean(name)
	cleaned = strings.ReplaceAll(cleaned, "\\", "/")
	if cleaned == "." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("objectstore: invalid object name")
	}
	return cleaned, nil
}
