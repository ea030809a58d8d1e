// Package local stores media under a directory on disk. It backs the console
// and deployments without a bucket.
package local

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"babybot/pkg/storage"
)

// Store writes objects as files under Root.
type Store struct {
	Root string
}

var _ storage.Store = (*Store)(nil)

// New returns a Store rooted at dir.
func New(dir string) *Store {
	return &Store{Root: dir}
}

func (s *Store) PutStream(_ context.Context, key string, body io.Reader, _ int64, _ string) (storage.PutResult, error) {
	path, err := s.path(key)
	if err != nil {
		return storage.PutResult{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return storage.PutResult{}, fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return storage.PutResult{}, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	written, err := io.Copy(tmp, body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return storage.PutResult{}, fmt.Errorf("write %s: %w", key, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return storage.PutResult{}, fmt.Errorf("move %s into place: %w", key, err)
	}

	return storage.PutResult{StatusCode: http.StatusOK, Size: written}, nil
}

// SignedURL returns a file URL; local files carry no expiry.
func (s *Store) SignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	path, err := s.path(key)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}

func (s *Store) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(s.Root, clean), nil
}
