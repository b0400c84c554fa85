package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/noticewatch/internal/history"
	"github.com/JakeFAU/noticewatch/internal/ingest"
	"github.com/JakeFAU/noticewatch/internal/notice"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		b, err := New(Config{Path: filepath.Join(t.TempDir(), "notices.json")})
		require.NoError(t, err)
		assert.NotNil(t, b)
	})
	t.Run("MissingPath", func(t *testing.T) {
		_, err := New(Config{})
		assert.Error(t, err)
	})
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	b, err := New(Config{Path: filepath.Join(t.TempDir(), "notices.json")})
	require.NoError(t, err)

	s, err := b.Load(context.Background())
	require.NoError(t, err)
	assert.Zero(t, s.Len())
}

func TestLoadMalformedIsStoreLoadError(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "notices.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	b, err := New(Config{Path: path})
	require.NoError(t, err)

	_, err = b.Load(context.Background())
	var loadErr *ingest.StoreLoadError
	require.ErrorAs(t, err, &loadErr)
}

func TestSaveThenLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "notices.json")
	b, err := New(Config{Path: path})
	require.NoError(t, err)

	s := history.NewStore()
	published, err := notice.ParseTimestamp("05-06-2025_07-08-09")
	require.NoError(t, err)
	s.Put(notice.Record{Identity: "a", Title: "Alpha", PublishedAt: published})
	s.Put(notice.Record{Identity: "b", Title: "Beta"})

	require.NoError(t, b.Save(context.Background(), s))

	loaded, err := b.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, loaded.Len())
	got, ok := loaded.Get("a")
	require.True(t, ok)
	assert.Equal(t, "05-06-2025_07-08-09", notice.FormatTimestamp(got.PublishedAt))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files should not be left behind")
}

func TestSaveFailureLeavesPreviousFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "notices.json")
	previous := []byte("{\n}\n")
	require.NoError(t, os.WriteFile(path, previous, 0o600))

	b, err := New(Config{Path: path})
	require.NoError(t, err)
	b.rename = func(string, string) error { return errors.New("disk on fire") }

	s := history.NewStore()
	s.Put(notice.Record{Identity: "a", Title: "Alpha"})
	err = b.Save(context.Background(), s)

	var saveErr *ingest.StoreSaveError
	require.ErrorAs(t, err, &saveErr)

	// #nosec G304 -- test reads from the controlled temp directory.
	current, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, previous, current)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file should be removed on failure")
}

func TestSaveRequiresDirectory(t *testing.T) {
	t.Parallel()

	b, err := New(Config{Path: filepath.Join(t.TempDir(), "missing", "notices.json")})
	require.NoError(t, err)

	err = b.Save(context.Background(), history.NewStore())
	var saveErr *ingest.StoreSaveError
	require.ErrorAs(t, err, &saveErr)
}
