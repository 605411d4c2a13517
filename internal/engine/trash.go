package engine

import (
	"context"
	"sort"

	"gorm.io/gorm"

	"github.com/skyvault-io/skyvault/internal/events"
	"github.com/skyvault-io/skyvault/internal/logger"
	"github.com/skyvault-io/skyvault/internal/store"
	"github.com/skyvault-io/skyvault/internal/store/models"
)

// SoftDelete moves subtrees to trash: deleted_at is stamped on the
// selected roots and every live descendant in one statement. Bytes stay
// where they are until restore or purge decides their fate.
func (e *Engine) SoftDelete(ctx context.Context, userID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	rows, err := e.store.GetFiles(ctx, userID, ids)
	if err != nil {
		return err
	}
	desc, err := e.store.Descendants(ctx, userID, ids, false)
	if err != nil {
		return err
	}
	if len(desc) == 0 {
		return nil
	}

	now := touch()
	err = e.store.WithTx(ctx, func(tx *gorm.DB) error {
		return store.MarkDeleted(tx, userID, rowIDs(desc), now)
	})
	if err != nil {
		return err
	}

	e.inval.TrashChanged(ctx, userID, parentsOf(rows), rowIDs(desc), folderIDs(desc))
	for _, row := range rows {
		e.audit(ctx, userID, "file_delete", string(row.Type), row.ID, events.StatusSuccess, nil, nil)
		e.publish(userID, events.ChangeDeleted, row.ID, row.ParentID)
	}
	return nil
}

// Restore lifts deleted_at from trashed subtrees, ancestors first. Each
// row goes back under its original parent when that parent still exists
// and is live, and to root otherwise; name collisions against the new
// siblings resolve through the " (N)" scheme. One transaction covers the
// whole restore.
func (e *Engine) Restore(ctx context.Context, userID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := e.store.GetFiles(ctx, userID, ids); err != nil {
		return err
	}
	all, err := e.store.Descendants(ctx, userID, ids, true)
	if err != nil {
		return err
	}
	var trashed []*models.File
	for _, r := range all {
		if r.InTrash() {
			trashed = append(trashed, r)
		}
	}
	if len(trashed) == 0 {
		return nil
	}

	ordered := ancestorsFirst(trashed)
	now := touch()

	err = e.store.WithTx(ctx, func(tx *gorm.DB) error {
		for _, row := range ordered {
			target := row.ParentID
			if target != nil {
				var parent models.File
				err := tx.Where("id = ? AND user_id = ? AND deleted_at IS NULL", *target, userID).
					First(&parent).Error
				if err != nil {
					// Original parent gone or still trashed: restore to root.
					target = nil
				}
			}
			name, err := uniqueSiblingName(tx, userID, target, row.Name)
			if err != nil {
				return err
			}
			fields := map[string]any{
				"deleted_at": nil,
				"parent_id":  target,
				"name":       name,
				"modified":   now,
			}
			if err := store.UpdateFileFields(tx, row.ID, userID, fields); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.inval.TrashChanged(ctx, userID, parentsOf(trashed), rowIDs(trashed), folderIDs(trashed))
	for _, id := range ids {
		e.audit(ctx, userID, "files_restore", "file", id, events.StatusSuccess, nil, nil)
		e.publish(userID, events.ChangeRestored, id, nil)
	}
	return nil
}

// ancestorsFirst orders rows so every parent precedes its children.
// Entry rows whose parent is outside the set come first, null parents
// before the rest, id as the tie-break.
func ancestorsFirst(rows []*models.File) []*models.File {
	inSet := make(map[string]*models.File, len(rows))
	children := make(map[string][]*models.File)
	var entry []*models.File
	for _, r := range rows {
		inSet[r.ID] = r
	}
	for _, r := range rows {
		if r.ParentID != nil {
			if _, ok := inSet[*r.ParentID]; ok {
				children[*r.ParentID] = append(children[*r.ParentID], r)
				continue
			}
		}
		entry = append(entry, r)
	}
	sortRows := func(s []*models.File) {
		sort.Slice(s, func(i, j int) bool {
			if (s[i].ParentID == nil) != (s[j].ParentID == nil) {
				return s[i].ParentID == nil
			}
			return s[i].ID < s[j].ID
		})
	}
	sortRows(entry)

	out := make([]*models.File, 0, len(rows))
	queue := entry
	for len(queue) > 0 {
		row := queue[0]
		queue = queue[1:]
		out = append(out, row)
		kids := children[row.ID]
		sortRows(kids)
		queue = append(queue, kids...)
	}
	return out
}

// Purge permanently deletes subtrees, trashed or not. Bytes go first, with
// missing blobs treated as already done; custom-drive directories are
// removed deepest first and only when empty; finally the rows disappear in
// one transaction, cascading share junctions.
func (e *Engine) Purge(ctx context.Context, userID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	rows, err := e.store.GetFiles(ctx, userID, ids)
	if err != nil {
		return err
	}
	desc, err := e.store.Descendants(ctx, userID, ids, true)
	if err != nil {
		return err
	}

	ds, err := e.driveFor(ctx, userID)
	if err != nil {
		return err
	}

	var customDirs []*models.File
	for _, row := range desc {
		if row.IsFolder() {
			if row.HasAbsolutePath() {
				customDirs = append(customDirs, row)
			}
			continue
		}
		if key := row.StorageKey(); key != "" {
			if err := e.blobs.Delete(ctx, key); err != nil {
				logger.WarnCtx(ctx, "purge: blob delete failed",
					logger.KeyKey, key, logger.KeyError, err)
			}
			continue
		}
		if row.HasAbsolutePath() {
			if e.drive == nil {
				logger.WarnCtx(ctx, "purge: no drive agent, leaving bytes",
					logger.KeyPath, *row.Path)
				continue
			}
			if err := e.drive.RemoveFile(ctx, ds.Root, *row.Path); err != nil {
				logger.WarnCtx(ctx, "purge: file remove failed",
					logger.KeyPath, *row.Path, logger.KeyError, err)
			}
		}
	}

	// Deeper directories first, so an empty parent is actually empty by
	// the time its turn comes.
	sort.Slice(customDirs, func(i, j int) bool {
		return len(*customDirs[i].Path) > len(*customDirs[j].Path)
	})
	for _, dir := range customDirs {
		if e.drive == nil {
			continue
		}
		if err := e.drive.RemoveDir(ctx, ds.Root, *dir.Path); err != nil {
			logger.DebugCtx(ctx, "purge: rmdir skipped",
				logger.KeyPath, *dir.Path, logger.KeyError, err)
		}
	}

	err = e.store.WithTx(ctx, func(tx *gorm.DB) error {
		return store.DeleteFileRows(tx, userID, rowIDs(desc))
	})
	if err != nil {
		return err
	}

	e.inval.TrashChanged(ctx, userID, parentsOf(rows), rowIDs(desc), folderIDs(desc))
	for _, row := range rows {
		e.audit(ctx, userID, "file_purge", string(row.Type), row.ID, events.StatusSuccess, nil, nil)
		e.publish(userID, events.ChangeDeleted, row.ID, row.ParentID)
	}
	return nil
}
