package gcs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/noticewatch/internal/history"
	"github.com/JakeFAU/noticewatch/internal/ingest"
	"github.com/JakeFAU/noticewatch/internal/notice"
)

type fakeObject struct {
	data      []byte
	exists    bool
	readErr   error
	writeErr  error
	closeErr  error
	committed int
}

func (f *fakeObject) NewReader(context.Context) (io.ReadCloser, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	if !f.exists {
		return nil, storage.ErrObjectNotExist
	}
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

func (f *fakeObject) NewWriter(context.Context) io.WriteCloser {
	return &fakeWriter{obj: f}
}

type fakeWriter struct {
	obj *fakeObject
	buf bytes.Buffer
}

func (w *fakeWriter) Write(p []byte) (int, error) {
	if w.obj.writeErr != nil {
		return 0, w.obj.writeErr
	}
	return w.buf.Write(p)
}

func (w *fakeWriter) Close() error {
	if w.obj.closeErr != nil || w.obj.writeErr != nil {
		return w.obj.closeErr
	}
	w.obj.data = append([]byte(nil), w.buf.Bytes()...)
	w.obj.exists = true
	w.obj.committed++
	return nil
}

func newTestBackend(obj *fakeObject) *Backend {
	return &Backend{obj: obj, name: "gs://bucket/notices.json"}
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b", Object: "o"})
	require.Error(t, err)
}

func TestLoadMissingObjectIsEmpty(t *testing.T) {
	t.Parallel()

	s, err := newTestBackend(&fakeObject{}).Load(context.Background())
	require.NoError(t, err)
	assert.Zero(t, s.Len())
}

func TestLoadReadErrorIsStoreLoadError(t *testing.T) {
	t.Parallel()

	_, err := newTestBackend(&fakeObject{readErr: errors.New("permission denied")}).Load(context.Background())
	var loadErr *ingest.StoreLoadError
	require.ErrorAs(t, err, &loadErr)
}

func TestSaveThenLoad(t *testing.T) {
	t.Parallel()

	obj := &fakeObject{}
	b := newTestBackend(obj)
	s := history.NewStore()
	s.Put(notice.Record{Identity: "a", Title: "Alpha", Source: "cbp"})

	require.NoError(t, b.Save(context.Background(), s))
	assert.Equal(t, 1, obj.committed)

	loaded, err := b.Load(context.Background())
	require.NoError(t, err)
	got, ok := loaded.Get("a")
	require.True(t, ok)
	assert.Equal(t, "Alpha", got.Title)
}

func TestSaveFailureKeepsPreviousGeneration(t *testing.T) {
	t.Parallel()

	obj := &fakeObject{data: []byte("{\n}\n"), exists: true, writeErr: errors.New("quota")}
	b := newTestBackend(obj)
	s := history.NewStore()
	s.Put(notice.Record{Identity: "a"})

	err := b.Save(context.Background(), s)
	var saveErr *ingest.StoreSaveError
	require.ErrorAs(t, err, &saveErr)
	assert.Equal(t, "{\n}\n", string(obj.data))
	assert.Zero(t, obj.committed)
}
