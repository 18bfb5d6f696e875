package storage

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"vibeconnect/errs"
)

func TestSaveAndResolve(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	blob, err := store.Save(strings.NewReader("image bytes"), "Photo.PNG", "image/png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(blob.URL, URLPrefix))
	assert.True(t, strings.HasSuffix(blob.URL, ".png"))
	assert.Equal(t, int64(len("image bytes")), blob.Size)

	path, err := store.Path(strings.TrimPrefix(blob.URL, URLPrefix))
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "image bytes", string(data))
}

func TestPathRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocal(filepath.Join(dir, "uploads"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secret"), []byte("x"), 0o600))

	for _, name := range []string{"../secret", "..", ".", "a/../../secret"} {
		_, err := store.Path(name)
		assert.True(t, errs.Is(err, errs.KindInvalidInput), "%q: %v", name, err)
	}

	_, err = store.Path("missing.png")
	assert.True(t, errs.Is(err, errs.KindNotFound))
}

type failingClose struct {
	*os.File
}

func (f failingClose) Close() error {
	f.File.Close()
	return errors.New("disk full")
}

func uploads(t *testing.T, dir string) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return entries
}

func TestSaveRemovesFileWhenCloseFails(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocal(dir)
	require.NoError(t, err)
	store.create = func(path string) (io.WriteCloser, error) {
		f, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		return failingClose{f}, nil
	}

	blob, err := store.Save(strings.NewReader("image bytes"), "a.png", "image/png")
	assert.Nil(t, blob)
	assert.True(t, errs.Is(err, errs.KindInternal), "got %v", err)
	assert.Empty(t, uploads(t, dir))
}

func TestSaveRemovesFileWhenReadFails(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocal(dir)
	require.NoError(t, err)

	_, err = store.Save(iotest.ErrReader(errors.New("connection reset")), "a.png", "image/png")
	assert.True(t, errs.Is(err, errs.KindInternal), "got %v", err)
	assert.Empty(t, uploads(t, dir))
}
