package store

import (
	"context"

	"github.com/skyvault-io/skyvault/internal/store/models"
)

// Stats aggregates a user's live tree.
type Stats struct {
	TotalFiles   int64 `json:"totalFiles"`
	TotalFolders int64 `json:"totalFolders"`
	SharedCount  int64 `json:"sharedCount"`
	StarredCount int64 `json:"starredCount"`
}

// sharedTopLevelSQL counts shared roots only: a shared row whose parent is
// also shared inherited the flag and must not be double counted.
const sharedTopLevelSQL = `
SELECT COUNT(*) FROM files f
WHERE f.user_id = ? AND f.deleted_at IS NULL AND f.shared = ?
  AND (f.parent_id IS NULL OR NOT EXISTS (
    SELECT 1 FROM files p WHERE p.id = f.parent_id AND p.shared = ?
  ))`

// GetStats computes listing statistics for a user.
func (s *Store) GetStats(ctx context.Context, userID string) (*Stats, error) {
	stats := &Stats{}
	db := s.db.WithContext(ctx)

	err := db.Model(&models.File{}).
		Where("user_id = ? AND deleted_at IS NULL AND type = ?", userID, models.TypeFile).
		Count(&stats.TotalFiles).Error
	if err != nil {
		return nil, convertError(err)
	}

	err = db.Model(&models.File{}).
		Where("user_id = ? AND deleted_at IS NULL AND type = ?", userID, models.TypeFolder).
		Count(&stats.TotalFolders).Error
	if err != nil {
		return nil, convertError(err)
	}

	err = db.Model(&models.File{}).
		Where("user_id = ? AND deleted_at IS NULL AND starred = ?", userID, true).
		Count(&stats.StarredCount).Error
	if err != nil {
		return nil, convertError(err)
	}

	if err := db.Raw(sharedTopLevelSQL, userID, true, true).Scan(&stats.SharedCount).Error; err != nil {
		return nil, convertError(err)
	}

	return stats, nil
}
