// Package file persists history as a JSON document on the local filesystem.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/noticewatch/internal/history"
	"github.com/JakeFAU/noticewatch/internal/ingest"
)

// Config captures the parameters for the file backend.
type Config struct {
	// Path is the history document. Its directory must exist before the first save.
	Path string `mapstructure:"path" yaml:"path"`
}

// Backend reads and atomically rewrites one JSON file.
type Backend struct {
	path   string
	rename func(oldpath, newpath string) error
}

// New creates a file backend.
func New(cfg Config) (*Backend, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("history path is required")
	}
	return &Backend{path: filepath.Clean(cfg.Path), rename: os.Rename}, nil
}

// Path returns the history document location.
func (b *Backend) Path() string {
	return b.path
}

// Load reads the document. An absent file is an empty store.
func (b *Backend) Load(_ context.Context) (*history.Store, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return history.NewStore(), nil
		}
		return nil, &ingest.StoreLoadError{Err: fmt.Errorf("read %s: %w", b.path, err)}
	}
	return history.Unmarshal(data)
}

// Save writes to a temporary file beside the target and renames it into place.
// On failure the previous document is left untouched.
func (b *Backend) Save(_ context.Context, store *history.Store) error {
	data, err := history.Marshal(store)
	if err != nil {
		return &ingest.StoreSaveError{Err: err}
	}

	dir := filepath.Dir(b.path)
	info, err := os.Stat(dir)
	if err != nil {
		return &ingest.StoreSaveError{Err: fmt.Errorf("stat history directory: %w", err)}
	}
	if !info.IsDir() {
		return &ingest.StoreSaveError{Err: fmt.Errorf("history directory %s is not a directory", dir)}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return &ingest.StoreSaveError{Err: fmt.Errorf("create temp file: %w", err)}
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return &ingest.StoreSaveError{Err: fmt.Errorf("write temp file: %w", err)}
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return &ingest.StoreSaveError{Err: fmt.Errorf("sync temp file: %w", err)}
	}
	if err := tmp.Close(); err != nil {
		return &ingest.StoreSaveError{Err: fmt.Errorf("close temp file: %w", err)}
	}
	if err := b.rename(tmpPath, b.path); err != nil {
		return &ingest.StoreSaveError{Err: fmt.Errorf("rename into place: %w", err)}
	}
	committed = true
	return nil
}
