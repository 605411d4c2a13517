package engine

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"gorm.io/gorm"

	"github.com/skyvault-io/skyvault/internal/events"
	"github.com/skyvault-io/skyvault/internal/logger"
	"github.com/skyvault-io/skyvault/internal/store"
	"github.com/skyvault-io/skyvault/internal/store/models"
)

// Copy duplicates subtrees under targetParentID in one transaction,
// depth-first. File bytes are streamed source to destination; encrypted
// blobs are re-encrypted in flight with fresh salts and no plaintext ever
// lands on disk. Copies preserve the source modified timestamp. If the
// transaction aborts, every blob, file and directory created so far is
// removed again.
func (e *Engine) Copy(ctx context.Context, userID string, ids []string, targetParentID *string) error {
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
			return fmt.Errorf("%w: cannot copy trashed rows", models.ErrNotFound)
		}
	}

	if targetParentID != nil {
		desc, err := e.store.Descendants(ctx, userID, ids, false)
		if err != nil {
			return err
		}
		for _, d := range desc {
			if d.ID == *targetParentID {
				return fmt.Errorf("%w: cannot copy a folder into itself or a descendant", models.ErrConflict)
			}
		}
	}

	ds, err := e.driveFor(ctx, userID)
	if err != nil {
		return err
	}

	cp := &copier{e: e, ds: ds, userID: userID}
	var newRoots []string

	err = e.store.WithTx(ctx, func(tx *gorm.DB) error {
		cp.tx = tx
		destDir := e.targetDir(ds, target)
		for _, src := range rows {
			id, err := cp.node(ctx, src, targetParentID, destDir)
			if err != nil {
				return err
			}
			newRoots = append(newRoots, id)
		}
		return nil
	})
	if err != nil {
		cp.cleanup(ctx)
		return err
	}

	parents := append(parentsOf(rows), targetParentID)
	e.inval.TreeChanged(ctx, userID, parents, nil)
	e.audit(ctx, userID, "files_copy", "file", "", events.StatusSuccess, nil,
		map[string]any{"count": len(ids)})
	for _, id := range newRoots {
		e.publish(userID, events.ChangeCreated, id, targetParentID)
	}
	return nil
}

// copier tracks everything a copy materialises outside the transaction so
// an abort can take it back out.
type copier struct {
	e      *Engine
	tx     *gorm.DB
	ds     *driveSettings
	userID string

	createdKeys  []string
	createdFiles []string
	createdDirs  []string
}

// node copies one row (and, for folders, its live subtree) under the given
// parent. destDir is the on-disk destination directory for custom-drive
// users. Returns the new row's id.
func (c *copier) node(ctx context.Context, src *models.File, destParentID *string, destDir string) (string, error) {
	row := &models.File{
		ID:       models.NewID(),
		UserID:   c.userID,
		Type:     src.Type,
		ParentID: destParentID,
		Size:     src.Size,
		MimeType: src.MimeType,
		Starred:  false,
		Shared:   false,
		Modified: src.Modified,
	}

	if src.IsFolder() {
		childDir := destDir
		if c.ds.Enabled {
			diskName, err := c.e.uniqueOnDisk(ctx, c.ds.Root, destDir, src.Name)
			if err != nil {
				return "", err
			}
			absPath := filepath.Join(destDir, diskName)
			if err := c.e.drive.Mkdir(ctx, c.ds.Root, absPath); err != nil {
				return "", err
			}
			c.createdDirs = append(c.createdDirs, absPath)
			row.Name = diskName
			row.Path = &absPath
			childDir = absPath
		} else {
			unique, err := uniqueSiblingName(c.tx, c.userID, destParentID, src.Name)
			if err != nil {
				return "", err
			}
			row.Name = unique
		}
		if err := c.insert(row, src); err != nil {
			return "", err
		}

		children, err := childrenTx(c.tx, c.userID, src.ID)
		if err != nil {
			return "", err
		}
		for _, child := range children {
			if _, err := c.node(ctx, child, &row.ID, childDir); err != nil {
				return "", err
			}
		}
		return row.ID, nil
	}

	if c.ds.Enabled {
		diskName, err := c.e.uniqueOnDisk(ctx, c.ds.Root, destDir, src.Name)
		if err != nil {
			return "", err
		}
		dstPath := filepath.Join(destDir, diskName)
		rc, err := c.e.openFileStream(ctx, src)
		if err != nil {
			return "", err
		}
		n, err := c.e.drive.WriteFile(ctx, c.ds.Root, dstPath, rc)
		rc.Close()
		if err != nil {
			return "", err
		}
		c.createdFiles = append(c.createdFiles, dstPath)
		row.Name = diskName
		row.Path = &dstPath
		row.Size = n
	} else {
		key := storageKeyFor(row.ID, src.Name)
		if err := c.e.copyBytes(ctx, src, key); err != nil {
			return "", err
		}
		c.createdKeys = append(c.createdKeys, key)
		unique, err := uniqueSiblingName(c.tx, c.userID, destParentID, src.Name)
		if err != nil {
			return "", err
		}
		row.Name = unique
		row.Path = &key
	}
	if err := c.insert(row, src); err != nil {
		return "", err
	}
	return row.ID, nil
}

// insert writes the copy row and corrects modified afterwards, in case the
// backend stamps inserts with its own clock.
func (c *copier) insert(row, src *models.File) error {
	if err := store.InsertFile(c.tx, row); err != nil {
		return err
	}
	return store.UpdateFileFields(c.tx, row.ID, c.userID, map[string]any{"modified": src.Modified})
}

// cleanup removes everything a failed copy left behind, deepest
// directories first.
func (c *copier) cleanup(ctx context.Context) {
	for _, key := range c.createdKeys {
		if err := c.e.blobs.Delete(ctx, key); err != nil {
			logger.WarnCtx(ctx, "copy cleanup: blob delete failed", logger.KeyKey, key, logger.KeyError, err)
		}
	}
	for _, p := range c.createdFiles {
		if err := c.e.drive.RemoveFile(ctx, c.ds.Root, p); err != nil {
			logger.WarnCtx(ctx, "copy cleanup: file remove failed", logger.KeyPath, p, logger.KeyError, err)
		}
	}
	sort.Slice(c.createdDirs, func(i, j int) bool {
		return len(c.createdDirs[i]) > len(c.createdDirs[j])
	})
	for _, p := range c.createdDirs {
		if err := c.e.drive.RemoveDir(ctx, c.ds.Root, p); err != nil {
			logger.WarnCtx(ctx, "copy cleanup: rmdir failed", logger.KeyPath, p, logger.KeyError, err)
		}
	}
}

// copyBytes duplicates a source file's bytes into a fresh blob key. An
// encrypted source pipelines decrypt into re-encrypt; everything else
// streams through putBlob, which encrypts when the driver calls for it.
func (e *Engine) copyBytes(ctx context.Context, src *models.File, dstKey string) error {
	if key := src.StorageKey(); key != "" && e.cipher != nil {
		rc, err := e.blobs.Get(ctx, key)
		if err != nil {
			return err
		}
		defer rc.Close()
		pr, pw := io.Pipe()
		go func() {
			pw.CloseWithError(e.cipher.CopyEncrypted(pw, rc))
		}()
		if err := e.blobs.Put(ctx, dstKey, pr); err != nil {
			pr.CloseWithError(err)
			return err
		}
		return nil
	}

	rc, err := e.openFileStream(ctx, src)
	if err != nil {
		return err
	}
	defer rc.Close()
	return e.putBlob(ctx, dstKey, rc)
}

// childrenTx lists the live children of a folder inside a transaction.
func childrenTx(tx *gorm.DB, userID, parentID string) ([]*models.File, error) {
	var files []*models.File
	err := tx.Where("user_id = ? AND parent_id = ? AND deleted_at IS NULL", userID, parentID).
		Order("id ASC").
		Find(&files).Error
	if err != nil {
		return nil, err
	}
	return files, nil
}
