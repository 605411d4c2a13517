// Package drive implements the custom-drive feature: filesystem access to
// user-supplied absolute paths, and a watcher that keeps the metadata
// store in step with what actually happens on disk.
package drive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/skyvault-io/skyvault/internal/pathsafe"
	"github.com/skyvault-io/skyvault/internal/store/models"
)

// Agent performs filesystem operations on custom-drive paths. Every call
// is confined to the given root and serialised against other calls on the
// same lexical path, so two mutations can never interleave on one file.
type Agent struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	mu   sync.Mutex
	refs int
}

// NewAgent returns an agent with an empty lock table.
func NewAgent() *Agent {
	return &Agent{locks: make(map[string]*pathLock)}
}

// acquire locks the given paths in sorted order and returns the release
// function. Sorting keeps two-path operations (rename, copy) deadlock
// free.
func (a *Agent) acquire(paths ...string) func() {
	sorted := make([]string, 0, len(paths))
	seen := map[string]bool{}
	for _, p := range paths {
		p = filepath.Clean(p)
		if !seen[p] {
			seen[p] = true
			sorted = append(sorted, p)
		}
	}
	sort.Strings(sorted)

	held := make([]*pathLock, 0, len(sorted))
	for _, p := range sorted {
		a.mu.Lock()
		l, ok := a.locks[p]
		if !ok {
			l = &pathLock{}
			a.locks[p] = l
		}
		l.refs++
		a.mu.Unlock()
		l.mu.Lock()
		held = append(held, l)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
		}
		a.mu.Lock()
		for _, p := range sorted {
			if l, ok := a.locks[p]; ok {
				l.refs--
				if l.refs == 0 {
					delete(a.locks, p)
				}
			}
		}
		a.mu.Unlock()
	}
}

// confine rejects any path outside the user's drive root.
func confine(root, path string) error {
	if root == "" || !filepath.IsAbs(root) {
		return fmt.Errorf("%w: drive root must be absolute", models.ErrInvalidPath)
	}
	if !pathsafe.WithinRoot(root, path) {
		return fmt.Errorf("%w: %q escapes drive root", models.ErrInvalidPath, path)
	}
	return nil
}

// Mkdir creates one directory. An existing entry at the path is a
// conflict.
func (a *Agent) Mkdir(ctx context.Context, root, path string) error {
	if err := confine(root, path); err != nil {
		return err
	}
	release := a.acquire(path)
	defer release()

	if err := os.Mkdir(path, 0o755); err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: %q already exists", models.ErrConflict, path)
		}
		return err
	}
	return nil
}

// WriteFile streams r into the path through a .tmp sibling and an atomic
// rename, returning the bytes written. A failed or cancelled write leaves
// nothing behind.
func (a *Agent) WriteFile(ctx context.Context, root, path string, r io.Reader) (int64, error) {
	if err := confine(root, path); err != nil {
		return 0, err
	}
	release := a.acquire(path)
	defer release()

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(f, &ctxReader{ctx: ctx, r: r})
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmp, path)
	}
	if err != nil {
		os.Remove(tmp)
		return 0, err
	}
	return n, nil
}

// Rename moves an entry within the drive.
func (a *Agent) Rename(ctx context.Context, root, oldPath, newPath string) error {
	if err := confine(root, oldPath); err != nil {
		return err
	}
	if err := confine(root, newPath); err != nil {
		return err
	}
	release := a.acquire(oldPath, newPath)
	defer release()

	if err := os.Rename(oldPath, newPath); err != nil {
		if os.IsNotExist(err) {
			return models.ErrNotFound
		}
		return err
	}
	return nil
}

// RemoveFile deletes a file. Absence counts as done.
func (a *Agent) RemoveFile(ctx context.Context, root, path string) error {
	if err := confine(root, path); err != nil {
		return err
	}
	release := a.acquire(path)
	defer release()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// RemoveDir deletes a directory if it is empty. Absence counts as done;
// a non-empty directory is an error the caller decides to tolerate.
func (a *Agent) RemoveDir(ctx context.Context, root, path string) error {
	if err := confine(root, path); err != nil {
		return err
	}
	release := a.acquire(path)
	defer release()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Exists reports whether anything sits at the path.
func (a *Agent) Exists(ctx context.Context, root, path string) (bool, error) {
	if err := confine(root, path); err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CopyFile duplicates src into dst within the drive.
func (a *Agent) CopyFile(ctx context.Context, root, src, dst string) error {
	if err := confine(root, src); err != nil {
		return err
	}
	f, err := os.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			return models.ErrNotFound
		}
		return err
	}
	defer f.Close()
	_, err = a.WriteFile(ctx, root, dst, f)
	return err
}

// Open returns a reader over a drive file.
func (a *Agent) Open(ctx context.Context, root, path string) (io.ReadCloser, error) {
	if err := confine(root, path); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

// ctxReader aborts a long copy at the next read once the request is
// cancelled.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
