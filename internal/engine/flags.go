package engine

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/skyvault-io/skyvault/internal/events"
	"github.com/skyvault-io/skyvault/internal/store/models"
)

// ShareBinder manages the share links behind the shared flag. Implemented
// by the share service; split off as an interface so the engine does not
// depend on it directly.
type ShareBinder interface {
	MintOrReuse(ctx context.Context, userID string, fileIDs []string, expiresAt *time.Time) (map[string]string, error)
	Revoke(ctx context.Context, userID string, fileIDs []string) error
}

// SetStarred toggles the star on the selected rows only; stars do not
// propagate to descendants.
func (e *Engine) SetStarred(ctx context.Context, userID string, ids []string, starred bool) error {
	if len(ids) == 0 {
		return nil
	}
	rows, err := e.store.GetFiles(ctx, userID, ids)
	if err != nil {
		return err
	}

	now := touch()
	err = e.store.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Model(&models.File{}).
			Where("user_id = ? AND id IN ?", userID, ids).
			Updates(map[string]any{"starred": starred, "modified": now}).Error
	})
	if err != nil {
		return err
	}

	e.inval.FlagsChanged(ctx, userID, true, ids)
	e.audit(ctx, userID, "files_star", "file", "", events.StatusSuccess, nil,
		map[string]any{"count": len(ids), "starred": starred})
	for _, row := range rows {
		e.publish(userID, events.ChangeUpdated, row.ID, row.ParentID)
	}
	return nil
}

// SetShared toggles sharing on the selected subtrees. The flag propagates
// to every live descendant; the selected roots are bound to (or released
// from) a share link afterwards. Returns the id-to-token map for newly
// shared roots, nil when unsharing.
func (e *Engine) SetShared(ctx context.Context, userID string, ids []string, shared bool, links ShareBinder) (map[string]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := e.store.GetFiles(ctx, userID, ids)
	if err != nil {
		return nil, err
	}
	desc, err := e.store.Descendants(ctx, userID, ids, false)
	if err != nil {
		return nil, err
	}

	now := touch()
	allIDs := rowIDs(desc)
	err = e.store.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Model(&models.File{}).
			Where("user_id = ? AND id IN ?", userID, allIDs).
			Updates(map[string]any{"shared": shared, "modified": now}).Error
	})
	if err != nil {
		return nil, err
	}

	var tokens map[string]string
	if links != nil {
		if shared {
			tokens, err = links.MintOrReuse(ctx, userID, ids, nil)
		} else {
			err = links.Revoke(ctx, userID, allIDs)
		}
		if err != nil {
			return nil, err
		}
	}

	e.inval.FlagsChanged(ctx, userID, false, allIDs)
	e.audit(ctx, userID, "files_share", "file", "", events.StatusSuccess, nil,
		map[string]any{"count": len(ids), "shared": shared})
	for _, row := range rows {
		e.publish(userID, events.ChangeUpdated, row.ID, row.ParentID)
	}
	return tokens, nil
}
