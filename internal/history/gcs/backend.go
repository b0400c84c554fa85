// Package gcs persists history as a single Google Cloud Storage object.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/noticewatch/internal/history"
	"github.com/JakeFAU/noticewatch/internal/ingest"
)

// Config captures the bucket and object holding the history document.
type Config struct {
	Bucket string
	Object string
}

// object is the slice of *storage.ObjectHandle the backend needs.
type object interface {
	NewReader(ctx context.Context) (io.ReadCloser, error)
	NewWriter(ctx context.Context) io.WriteCloser
}

type gcsObject struct {
	handle *storage.ObjectHandle
}

func (o gcsObject) NewReader(ctx context.Context) (io.ReadCloser, error) {
	r, err := o.handle.NewReader(ctx)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers match storage.ErrObjectNotExist
	}
	return r, nil
}

func (o gcsObject) NewWriter(ctx context.Context) io.WriteCloser {
	w := o.handle.NewWriter(ctx)
	w.ContentType = "application/json"
	return w
}

// Backend stores the history document in a bucket.
type Backend struct {
	obj  object
	name string
}

// New creates a GCS-backed history backend.
func New(client *storage.Client, cfg Config) (*Backend, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if strings.TrimSpace(cfg.Object) == "" {
		return nil, fmt.Errorf("object name is required")
	}
	return &Backend{
		obj:  gcsObject{handle: client.Bucket(cfg.Bucket).Object(cfg.Object)},
		name: fmt.Sprintf("gs://%s/%s", cfg.Bucket, cfg.Object),
	}, nil
}

// Location returns the gs:// URI of the history object.
func (b *Backend) Location() string {
	return b.name
}

// Load downloads the object. A missing object is an empty store.
func (b *Backend) Load(ctx context.Context) (*history.Store, error) {
	r, err := b.obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return history.NewStore(), nil
		}
		return nil, &ingest.StoreLoadError{Err: fmt.Errorf("open %s: %w", b.name, err)}
	}
	defer func() {
		_ = r.Close()
	}()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &ingest.StoreLoadError{Err: fmt.Errorf("read %s: %w", b.name, err)}
	}
	return history.Unmarshal(data)
}

// Save uploads the whole document. GCS only commits the new generation when
// the writer closes cleanly, so a failed upload leaves the old one readable.
func (b *Backend) Save(ctx context.Context, store *history.Store) error {
	data, err := history.Marshal(store)
	if err != nil {
		return &ingest.StoreSaveError{Err: err}
	}
	// Cancelling the writer context aborts the upload instead of committing it.
	writeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := b.obj.NewWriter(writeCtx)
	if _, err := w.Write(data); err != nil {
		cancel()
		closeErr := w.Close()
		if closeErr != nil {
			return &ingest.StoreSaveError{Err: fmt.Errorf("write %s: %w (close writer: %v)", b.name, err, closeErr)}
		}
		return &ingest.StoreSaveError{Err: fmt.Errorf("write %s: %w", b.name, err)}
	}
	if err := w.Close(); err != nil {
		return &ingest.StoreSaveError{Err: fmt.Errorf("close writer for %s: %w", b.name, err)}
	}
	return nil
}
