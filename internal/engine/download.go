package engine

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/skyvault-io/skyvault/internal/logger"
	"github.com/skyvault-io/skyvault/internal/store/models"
)

// OpenDownload returns a plaintext stream of a file's bytes together with
// its row. Folders go through WriteZip instead.
func (e *Engine) OpenDownload(ctx context.Context, userID, id string) (io.ReadCloser, *models.File, error) {
	row, err := e.store.GetFile(ctx, id, userID)
	if err != nil {
		return nil, nil, err
	}
	if row.IsFolder() {
		return nil, nil, fmt.Errorf("%w: folder downloads are archives", models.ErrInvalidPath)
	}
	rc, err := e.openFileStream(ctx, row)
	if err != nil {
		return nil, nil, err
	}
	return rc, row, nil
}

// zipLock returns the per-user archive mutex. One user builds at most one
// archive at a time; other users are unaffected.
func (e *Engine) zipLock(userID string) *sync.Mutex {
	e.zipMu.Lock()
	defer e.zipMu.Unlock()
	mu, ok := e.zipLocks[userID]
	if !ok {
		mu = &sync.Mutex{}
		e.zipLocks[userID] = mu
	}
	return mu
}

// WriteZip streams a folder's live subtree as a zip archive into w. Files
// that vanish mid-walk are skipped with a log line rather than aborting a
// half-written archive.
func (e *Engine) WriteZip(ctx context.Context, userID, folderID string, w io.Writer) (*models.File, error) {
	root, err := e.store.GetFile(ctx, folderID, userID)
	if err != nil {
		return nil, err
	}
	if !root.IsFolder() {
		return nil, fmt.Errorf("%w: not a folder", models.ErrInvalidPath)
	}

	mu := e.zipLock(userID)
	mu.Lock()
	defer mu.Unlock()

	desc, err := e.store.Descendants(ctx, userID, []string{folderID}, false)
	if err != nil {
		return nil, err
	}

	// Archive paths are rebuilt from the parent chain; the root folder's
	// own name is the top-level directory.
	byID := make(map[string]*models.File, len(desc))
	for _, row := range desc {
		byID[row.ID] = row
	}
	archivePath := func(row *models.File) string {
		path := row.Name
		for cur := row; cur.ParentID != nil; {
			parent, ok := byID[*cur.ParentID]
			if !ok {
				break
			}
			path = parent.Name + "/" + path
			cur = parent
		}
		return path
	}

	zw := zip.NewWriter(w)
	for _, row := range desc {
		if err := ctx.Err(); err != nil {
			zw.Close()
			return nil, err
		}
		name := archivePath(row)
		if row.IsFolder() {
			if _, err := zw.Create(name + "/"); err != nil {
				zw.Close()
				return nil, err
			}
			continue
		}
		hdr := &zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: row.Modified,
		}
		entry, err := zw.CreateHeader(hdr)
		if err != nil {
			zw.Close()
			return nil, err
		}
		rc, err := e.openFileStream(ctx, row)
		if err != nil {
			logger.WarnCtx(ctx, "zip: skipping unreadable file",
				logger.KeyFileID, row.ID, logger.KeyError, err)
			continue
		}
		_, err = io.Copy(entry, rc)
		rc.Close()
		if err != nil {
			zw.Close()
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return root, nil
}
