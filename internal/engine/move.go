package engine

import (
	"context"
	"fmt"
	"path/filepath"

	"gorm.io/gorm"

	"github.com/skyvault-io/skyvault/internal/events"
	"github.com/skyvault-io/skyvault/internal/logger"
	"github.com/skyvault-io/skyvault/internal/store"
	"github.com/skyvault-io/skyvault/internal/store/models"
)

// Move reparents rows under targetParentID (nil means root) in one
// transaction. Absolute-path rows are renamed on disk to a unique
// destination first; if anything fails, the transaction aborts and
// completed disk renames are undone. Moving a folder into itself or one
// of its descendants fails with ErrConflict.
func (e *Engine) Move(ctx context.Context, userID string, ids []string, targetParentID *string) error {
	if len(ids) == 0 {
		return nil
	}
	target, err := e.validateParent(ctx, userID, targetParentID)
	if err != nil {
		return err
	}
	rows, err := e.store.GetFiles(ctx, userID, ids)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if r.InTrash() {
			return fmt.Errorf("%w: cannot move trashed rows", models.ErrNotFound)
		}
	}

	if targetParentID != nil {
		desc, err := e.store.Descendants(ctx, userID, ids, false)
		if err != nil {
			return err
		}
		for _, d := range desc {
			if d.ID == *targetParentID {
				return fmt.Errorf("%w: cannot move a folder into itself or a descendant", models.ErrConflict)
			}
		}
	}

	ds, err := e.driveFor(ctx, userID)
	if err != nil {
		return err
	}

	type diskRename struct{ oldPath, newPath string }
	var done []diskRename

	err = e.store.WithTx(ctx, func(tx *gorm.DB) error {
		now := touch()
		for _, row := range rows {
			fields := map[string]any{"parent_id": targetParentID, "modified": now}

			if row.HasAbsolutePath() && e.drive != nil {
				destDir := e.targetDir(ds, target)
				diskName, err := e.uniqueOnDisk(ctx, ds.Root, destDir, row.Name)
				if err != nil {
					return err
				}
				newPath := filepath.Join(destDir, diskName)
				oldPath := *row.Path
				if newPath != oldPath {
					if err := e.drive.Rename(ctx, ds.Root, oldPath, newPath); err != nil {
						return err
					}
					done = append(done, diskRename{oldPath, newPath})
				}
				fields["path"] = newPath
				if err := store.UpdateFileFields(tx, row.ID, userID, fields); err != nil {
					return err
				}
				if row.IsFolder() {
					if err := rewriteDescendantPaths(tx, userID, row.ID, oldPath, newPath); err != nil {
						return err
					}
				}
				continue
			}

			if err := store.UpdateFileFields(tx, row.ID, userID, fields); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		for i := len(done) - 1; i >= 0; i-- {
			if undoErr := e.drive.Rename(ctx, ds.Root, done[i].newPath, done[i].oldPath); undoErr != nil {
				logger.ErrorCtx(ctx, "move rollback failed, row and disk diverge",
					logger.KeyPath, done[i].newPath, logger.KeyError, undoErr)
			}
		}
		return err
	}

	parents := append(parentsOf(rows), targetParentID)
	e.inval.TreeChanged(ctx, userID, parents, ids)
	e.audit(ctx, userID, "files_move", "file", "", events.StatusSuccess, nil,
		map[string]any{"count": len(ids)})
	for _, row := range rows {
		e.publish(userID, events.ChangeMoved, row.ID, targetParentID)
	}
	return nil
}
