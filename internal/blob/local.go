package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/skyvault-io/skyvault/internal/logger"
	"github.com/skyvault-io/skyvault/internal/pathsafe"
	"github.com/skyvault-io/skyvault/internal/store/models"
)

// LocalStore keeps objects as files under a fixed upload root. Writes go
// to a .tmp sibling first and are renamed into place, so readers never
// observe a partial object.
type LocalStore struct {
	root string
}

// NewLocalStore creates the upload root if needed.
func NewLocalStore(root string) (*LocalStore, error) {
	if root == "" {
		return nil, errors.New("blob: upload root is required")
	}
	if !filepath.IsAbs(root) {
		return nil, fmt.Errorf("blob: upload root must be absolute, got %q", root)
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("blob: create upload root: %w", err)
	}
	return &LocalStore{root: filepath.Clean(root)}, nil
}

// Root returns the upload root directory.
func (s *LocalStore) Root() string {
	return s.root
}

// resolve validates the key and joins it onto the root.
func (s *LocalStore) resolve(key string) (string, error) {
	return pathsafe.SafeJoin(s.root, key)
}

// Put streams r into the object at key via a temporary sibling. The tmp
// file is removed on any failure, including context cancellation.
func (s *LocalStore) Put(ctx context.Context, key string, r io.Reader) error {
	target, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("blob: mkdir: %w", err)
	}

	tmp := target + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("blob: create temp: %w", err)
	}

	cleanup := func() {
		f.Close()
		if rmErr := os.Remove(tmp); rmErr != nil && !os.IsNotExist(rmErr) {
			logger.Warn("failed to remove temp blob", logger.KeyPath, tmp, logger.KeyError, rmErr)
		}
	}

	if _, err := io.Copy(f, readerWithContext(ctx, r)); err != nil {
		cleanup()
		return fmt.Errorf("blob: write: %w", err)
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("blob: sync: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return fmt.Errorf("blob: close: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		cleanup()
		return fmt.Errorf("blob: rename into place: %w", err)
	}
	return nil
}

// Get opens the object for reading.
func (s *LocalStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: blob %s", models.ErrNotFound, key)
		}
		return nil, fmt.Errorf("blob: open: %w", err)
	}
	return f, nil
}

// Delete removes the object; absence is success.
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("blob: delete: %w", err)
	}
	return nil
}

// Exists reports whether the object is present.
func (s *LocalStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	path, err := s.resolve(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("blob: stat: %w", err)
}

// ModTime returns the object file's modification time.
func (s *LocalStore) ModTime(ctx context.Context, key string) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	path, err := s.resolve(key)
	if err != nil {
		return time.Time{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, fmt.Errorf("%w: blob %s", models.ErrNotFound, key)
		}
		return time.Time{}, fmt.Errorf("blob: stat: %w", err)
	}
	return info.ModTime(), nil
}

// Rename moves oldKey to newKey atomically.
func (s *LocalStore) Rename(ctx context.Context, oldKey, newKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	oldPath, err := s.resolve(oldKey)
	if err != nil {
		return err
	}
	newPath, err := s.resolve(newKey)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(newPath), 0o750); err != nil {
		return fmt.Errorf("blob: mkdir: %w", err)
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: blob %s", models.ErrNotFound, oldKey)
		}
		return fmt.Errorf("blob: rename: %w", err)
	}
	return nil
}

// List walks the upload root and pages keys through fn in sorted order.
// Temp files are skipped; they belong to writes in flight.
func (s *LocalStore) List(ctx context.Context, pageSize int, fn func(keys []string) error) error {
	if pageSize <= 0 {
		pageSize = 1000
	}

	var keys []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || strings.HasSuffix(d.Name(), ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return fmt.Errorf("blob: walk: %w", err)
	}
	sort.Strings(keys)

	for start := 0; start < len(keys); start += pageSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + pageSize
		if end > len(keys) {
			end = len(keys)
		}
		if err := fn(keys[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// readerWithContext aborts a copy at the next read once ctx is cancelled.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
