package blob

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyvault-io/skyvault/internal/store/models"
)

func newLocal(t *testing.T) *LocalStore {
	t.Helper()
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestLocalPutGet(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	content := []byte("hello blob")
	require.NoError(t, s.Put(ctx, "a1b2c3d4.txt", bytes.NewReader(content)))

	rc, err := s.Get(ctx, "a1b2c3d4.txt")
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestLocalGetMissing(t *testing.T) {
	s := newLocal(t)
	_, err := s.Get(context.Background(), "nope.bin")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestLocalExists(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	ok, err := s.Exists(ctx, "missing.bin")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "present.bin", bytes.NewReader([]byte("x"))))
	ok, err = s.Exists(ctx, "present.bin")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalDelete(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "gone.bin", bytes.NewReader([]byte("x"))))
	require.NoError(t, s.Delete(ctx, "gone.bin"))

	ok, err := s.Exists(ctx, "gone.bin")
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting an absent key is not an error.
	assert.NoError(t, s.Delete(ctx, "gone.bin"))
}

func TestLocalModTime(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	before := time.Now().Add(-time.Minute)
	require.NoError(t, s.Put(ctx, "aged.bin", bytes.NewReader([]byte("x"))))

	mtime, err := s.ModTime(ctx, "aged.bin")
	require.NoError(t, err)
	assert.True(t, mtime.After(before))

	_, err = s.ModTime(ctx, "missing.bin")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestLocalRename(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "old.bin", bytes.NewReader([]byte("data"))))
	require.NoError(t, s.Rename(ctx, "old.bin", "new.bin"))

	ok, err := s.Exists(ctx, "old.bin")
	require.NoError(t, err)
	assert.False(t, ok)

	rc, err := s.Get(ctx, "new.bin")
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), got)
}

func TestLocalTraversalRejected(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	keys := []string{"../escape.bin", "/etc/passwd", "sub/../../escape"}
	for _, key := range keys {
		err := s.Put(ctx, key, bytes.NewReader([]byte("x")))
		assert.ErrorIs(t, err, models.ErrInvalidPath, key)
		_, err = s.Get(ctx, key)
		assert.ErrorIs(t, err, models.ErrInvalidPath, key)
	}
}

func TestLocalPutAtomic(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	// A failed write must not leave a partial object or temp file behind.
	err := s.Put(ctx, "partial.bin", failingReader{})
	require.Error(t, err)

	ok, err := s.Exists(ctx, "partial.bin")
	require.NoError(t, err)
	assert.False(t, ok)

	entries, err := os.ReadDir(s.Root())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocalList(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	want := []string{"k1.bin", "k2.bin", "k3.bin", "k4.bin", "k5.bin"}
	for _, key := range want {
		require.NoError(t, s.Put(ctx, key, bytes.NewReader([]byte(key))))
	}

	var got []string
	err := s.List(ctx, 2, func(keys []string) error {
		assert.LessOrEqual(t, len(keys), 2)
		got = append(got, keys...)
		return nil
	})
	require.NoError(t, err)
	sort.Strings(got)
	assert.Equal(t, want, got)
}

func TestLocalListSkipsTempFiles(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "real.bin", bytes.NewReader([]byte("x"))))
	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), "inflight.bin.tmp"), []byte("y"), 0o600))

	var got []string
	err := s.List(ctx, 10, func(keys []string) error {
		got = append(got, keys...)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"real.bin"}, got)
}

type failingReader struct{}

func (failingReader) Read(p []byte) (int, error) {
	return 0, io.ErrClosedPipe
}
