package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"gorm.io/gorm"

	"github.com/skyvault-io/skyvault/internal/events"
	"github.com/skyvault-io/skyvault/internal/logger"
	"github.com/skyvault-io/skyvault/internal/pathsafe"
	"github.com/skyvault-io/skyvault/internal/store"
	"github.com/skyvault-io/skyvault/internal/store/models"
)

// Rename changes a row's display name. Absolute-path rows are renamed on
// disk first and the database only follows a successful filesystem rename;
// a taken sibling name fails with ErrConflict instead of being suffixed.
func (e *Engine) Rename(ctx context.Context, userID, id, newName string) (*models.File, error) {
	if err := pathsafe.CheckName(newName); err != nil {
		return nil, err
	}
	row, err := e.store.GetFile(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if row.InTrash() {
		return nil, fmt.Errorf("%w: file is in trash", models.ErrNotFound)
	}
	if row.Name == newName {
		return row, nil
	}

	taken, err := store.SiblingNames(e.store.DB().WithContext(ctx), userID, row.ParentID)
	if err != nil {
		return nil, err
	}
	if _, ok := taken[newName]; ok {
		return nil, fmt.Errorf("%w: name %q already exists", models.ErrConflict, newName)
	}

	now := touch()
	if row.HasAbsolutePath() && e.drive != nil {
		ds, err := e.driveFor(ctx, userID)
		if err != nil {
			return nil, err
		}
		oldPath := *row.Path
		newPath := filepath.Join(filepath.Dir(oldPath), newName)
		exists, err := e.drive.Exists(ctx, ds.Root, newPath)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, fmt.Errorf("%w: destination %q already exists", models.ErrConflict, newName)
		}
		if err := e.drive.Rename(ctx, ds.Root, oldPath, newPath); err != nil {
			return nil, err
		}

		err = e.store.WithTx(ctx, func(tx *gorm.DB) error {
			fields := map[string]any{"name": newName, "path": newPath, "modified": now}
			if err := store.UpdateFileFields(tx, id, userID, fields); err != nil {
				return err
			}
			if row.IsFolder() {
				return rewriteDescendantPaths(tx, userID, id, oldPath, newPath)
			}
			return nil
		})
		if err != nil {
			// Put the bytes back where the database still says they are.
			if undoErr := e.drive.Rename(ctx, ds.Root, newPath, oldPath); undoErr != nil {
				logger.ErrorCtx(ctx, "rename rollback failed, row and disk diverge",
					logger.KeyPath, newPath, logger.KeyError, undoErr)
			}
			return nil, err
		}
		row.Path = &newPath
	} else {
		err = e.store.WithTx(ctx, func(tx *gorm.DB) error {
			return store.UpdateFileFields(tx, id, userID, map[string]any{"name": newName, "modified": now})
		})
		if err != nil {
			return nil, err
		}
	}

	row.Name = newName
	row.Modified = now

	e.inval.TreeChanged(ctx, userID, []*string{row.ParentID}, []string{id})
	e.audit(ctx, userID, "file_rename", string(row.Type), id, events.StatusSuccess, nil,
		map[string]any{"name": newName})
	e.publish(userID, events.ChangeUpdated, id, row.ParentID)
	return row, nil
}

// rewriteDescendantPaths follows a directory rename or move: every
// descendant row whose absolute path sat under oldPrefix is rewritten to
// sit under newPrefix. Trashed descendants are included; their bytes moved
// with the directory.
func rewriteDescendantPaths(tx *gorm.DB, userID, rootID, oldPrefix, newPrefix string) error {
	rows, err := store.DescendantsTx(tx, userID, []string{rootID}, true)
	if err != nil {
		return err
	}
	sep := string(filepath.Separator)
	for _, r := range rows {
		if r.ID == rootID || !r.HasAbsolutePath() {
			continue
		}
		p := *r.Path
		if !strings.HasPrefix(p, oldPrefix+sep) {
			continue
		}
		rewritten := newPrefix + strings.TrimPrefix(p, oldPrefix)
		if err := store.UpdateFileFields(tx, r.ID, userID, map[string]any{"path": rewritten}); err != nil {
			return err
		}
	}
	return nil
}
