package engine

import (
	"context"
	"io"
	"path/filepath"

	"gorm.io/gorm"

	"github.com/skyvault-io/skyvault/internal/events"
	"github.com/skyvault-io/skyvault/internal/logger"
	"github.com/skyvault-io/skyvault/internal/pathsafe"
	"github.com/skyvault-io/skyvault/internal/store"
	"github.com/skyvault-io/skyvault/internal/store/models"
)

// CreateFolder creates a folder under parentID (nil means root). For
// custom-drive users the directory is materialised on disk first; a
// failing insert removes it again. Name collisions resolve through the
// " (N)" suffix scheme.
func (e *Engine) CreateFolder(ctx context.Context, userID, name string, parentID *string) (*models.File, error) {
	if err := pathsafe.CheckName(name); err != nil {
		return nil, err
	}
	parent, err := e.validateParent(ctx, userID, parentID)
	if err != nil {
		return nil, err
	}
	ds, err := e.driveFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	row := &models.File{
		ID:       models.NewID(),
		UserID:   userID,
		Type:     models.TypeFolder,
		ParentID: parentID,
		Modified: touch(),
	}

	if ds.Enabled {
		targetDir := e.targetDir(ds, parent)
		diskName, err := e.uniqueOnDisk(ctx, ds.Root, targetDir, name)
		if err != nil {
			return nil, err
		}
		absPath := filepath.Join(targetDir, diskName)
		if err := e.drive.Mkdir(ctx, ds.Root, absPath); err != nil {
			return nil, err
		}
		row.Name = diskName
		row.Path = &absPath
		if err := store.InsertFile(e.store.DB().WithContext(ctx), row); err != nil {
			if rmErr := e.drive.RemoveDir(ctx, ds.Root, absPath); rmErr != nil {
				logger.WarnCtx(ctx, "orphaned directory after failed insert",
					logger.KeyPath, absPath, logger.KeyError, rmErr)
			}
			return nil, err
		}
	} else {
		err = e.store.WithTx(ctx, func(tx *gorm.DB) error {
			unique, err := uniqueSiblingName(tx, userID, parentID, name)
			if err != nil {
				return err
			}
			row.Name = unique
			return store.InsertFile(tx, row)
		})
		if err != nil {
			return nil, err
		}
	}

	e.inval.TreeChanged(ctx, userID, []*string{parentID}, nil)
	e.audit(ctx, userID, "folder_create", "folder", row.ID, events.StatusSuccess, nil,
		map[string]any{"name": row.Name})
	e.publish(userID, events.ChangeCreated, row.ID, parentID)
	return row, nil
}

// Upload stores an incoming file. declaredSize drives the quota check
// before any bytes move; the row records the bytes actually written.
// Custom-drive users keep original filenames on disk; everyone else gets
// an opaque storage key and, on the local driver, encryption at rest.
// Display names may repeat within a parent; rows differ by storage key.
func (e *Engine) Upload(ctx context.Context, userID, name, mimeType string, declaredSize int64, r io.Reader, parentID *string) (*models.File, error) {
	if err := pathsafe.CheckName(name); err != nil {
		return nil, err
	}
	parent, err := e.validateParent(ctx, userID, parentID)
	if err != nil {
		return nil, err
	}
	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ds, err := e.driveFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	row := &models.File{
		ID:       models.NewID(),
		UserID:   userID,
		Type:     models.TypeFile,
		ParentID: parentID,
		Modified: touch(),
	}
	if mimeType != "" {
		row.MimeType = &mimeType
	} else {
		row.MimeType = detectMime(name)
	}

	if ds.Enabled {
		targetDir := e.targetDir(ds, parent)
		diskName, err := e.uniqueOnDisk(ctx, ds.Root, targetDir, name)
		if err != nil {
			return nil, err
		}
		absPath := filepath.Join(targetDir, diskName)
		n, err := e.drive.WriteFile(ctx, ds.Root, absPath, r)
		if err != nil {
			return nil, err
		}
		row.Name = diskName
		row.Path = &absPath
		row.Size = n
		if err := store.InsertFile(e.store.DB().WithContext(ctx), row); err != nil {
			if rmErr := e.drive.RemoveFile(ctx, ds.Root, absPath); rmErr != nil {
				logger.WarnCtx(ctx, "orphaned file after failed insert",
					logger.KeyPath, absPath, logger.KeyError, rmErr)
			}
			return nil, err
		}
	} else {
		if err := e.checkQuota(ctx, user, declaredSize); err != nil {
			return nil, err
		}
		key := storageKeyFor(row.ID, name)
		counter := &countingReader{r: r}
		if err := e.putBlob(ctx, key, counter); err != nil {
			return nil, err
		}
		row.Name = name
		row.Path = &key
		row.Size = counter.n
		if err := store.InsertFile(e.store.DB().WithContext(ctx), row); err != nil {
			if delErr := e.blobs.Delete(ctx, key); delErr != nil {
				logger.WarnCtx(ctx, "orphaned blob after failed insert",
					logger.KeyKey, key, logger.KeyError, delErr)
			}
			return nil, err
		}
	}

	e.inval.TreeChanged(ctx, userID, []*string{parentID}, nil)
	e.audit(ctx, userID, "file_upload", "file", row.ID, events.StatusSuccess, nil,
		map[string]any{"name": row.Name, "size": row.Size})
	e.publish(userID, events.ChangeCreated, row.ID, parentID)
	return row, nil
}

// targetDir resolves where custom-drive bytes for a new child belong: the
// parent's directory when it is materialised, otherwise the drive root.
func (e *Engine) targetDir(ds *driveSettings, parent *models.File) string {
	if parent != nil && parent.HasAbsolutePath() {
		return *parent.Path
	}
	return ds.Root
}

// countingReader tracks the bytes pulled through it, so rows record actual
// sizes rather than declared ones.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
