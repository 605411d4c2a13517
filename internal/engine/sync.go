package engine

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"gorm.io/gorm"

	"github.com/skyvault-io/skyvault/internal/events"
	"github.com/skyvault-io/skyvault/internal/store"
	"github.com/skyvault-io/skyvault/internal/store/models"
)

// The Sync entry points are the drive watcher's way into the tree: rows
// are matched by absolute path and the usual invalidation, audit and SSE
// behaviour applies, so a change made directly on disk looks exactly like
// one made through the API.

// SyncCreate records a file or directory that appeared on a user's custom
// drive. The parent row is resolved from the directory part of the path;
// entries directly under the drive root go to the tree root.
func (e *Engine) SyncCreate(ctx context.Context, user *models.User, absPath string, isDir bool, size int64, modTime time.Time) (*models.File, error) {
	if user.CustomDrivePath == nil {
		return nil, models.ErrInvalidPath
	}
	root := filepath.Clean(*user.CustomDrivePath)

	var parentID *string
	dir := filepath.Dir(absPath)
	if filepath.Clean(dir) != root {
		parent, err := e.store.GetFileByAbsolutePath(ctx, user.ID, dir)
		if err != nil {
			if !errors.Is(err, models.ErrNotFound) {
				return nil, err
			}
			// Parent directory not tracked yet; surface at root rather than
			// dropping the entry.
		} else {
			parentID = &parent.ID
		}
	}

	row := &models.File{
		ID:       models.NewID(),
		UserID:   user.ID,
		Name:     filepath.Base(absPath),
		Type:     models.TypeFile,
		ParentID: parentID,
		Path:     &absPath,
		Modified: modTime.UTC(),
	}
	if isDir {
		row.Type = models.TypeFolder
	} else {
		row.Size = size
		row.MimeType = detectMime(row.Name)
	}
	if err := store.InsertFile(e.store.DB().WithContext(ctx), row); err != nil {
		return nil, err
	}

	e.inval.TreeChanged(ctx, user.ID, []*string{parentID}, nil)
	e.audit(ctx, user.ID, "drive_sync_create", string(row.Type), row.ID, events.StatusSuccess, nil,
		map[string]any{"name": row.Name})
	e.publish(user.ID, events.ChangeCreated, row.ID, parentID)
	return row, nil
}

// SyncUpdate refreshes size and modified on the row matching an absolute
// path after its bytes changed on disk.
func (e *Engine) SyncUpdate(ctx context.Context, userID, absPath string, size int64, modTime time.Time) error {
	row, err := e.store.GetFileByAbsolutePath(ctx, userID, absPath)
	if err != nil {
		return err
	}
	fields := map[string]any{"modified": modTime.UTC()}
	if !row.IsFolder() {
		fields["size"] = size
	}
	if err := store.UpdateFileFields(e.store.DB().WithContext(ctx), row.ID, userID, fields); err != nil {
		return err
	}

	e.inval.TreeChanged(ctx, userID, []*string{row.ParentID}, []string{row.ID})
	e.publish(userID, events.ChangeUpdated, row.ID, row.ParentID)
	return nil
}

// SyncRemove drops the rows for an absolute path that disappeared from
// disk, descendants included. Only metadata goes; the bytes are already
// gone.
func (e *Engine) SyncRemove(ctx context.Context, userID, absPath string) error {
	row, err := e.store.GetFileByAbsolutePath(ctx, userID, absPath)
	if err != nil {
		return err
	}
	desc, err := e.store.Descendants(ctx, userID, []string{row.ID}, true)
	if err != nil {
		return err
	}

	err = e.store.WithTx(ctx, func(tx *gorm.DB) error {
		return store.DeleteFileRows(tx, userID, rowIDs(desc))
	})
	if err != nil {
		return err
	}

	e.inval.TrashChanged(ctx, userID, []*string{row.ParentID}, rowIDs(desc), folderIDs(desc))
	e.audit(ctx, userID, "drive_sync_remove", string(row.Type), row.ID, events.StatusSuccess, nil,
		map[string]any{"name": row.Name})
	e.publish(userID, events.ChangeDeleted, row.ID, row.ParentID)
	return nil
}
