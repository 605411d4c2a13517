package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/skyvault-io/skyvault/internal/store/models"
)

// GetShareLinkByToken fetches a link by token.
func (s *Store) GetShareLinkByToken(ctx context.Context, token string) (*models.ShareLink, error) {
	var link models.ShareLink
	err := s.db.WithContext(ctx).Where("token = ?", token).First(&link).Error
	if err != nil {
		return nil, convertError(err)
	}
	return &link, nil
}

// ShareLinkForFiles finds an existing link owned by the user that already
// contains any of the given files. Used by mint-or-reuse.
func ShareLinkForFiles(db *gorm.DB, userID string, fileIDs []string) (*models.ShareLink, error) {
	if len(fileIDs) == 0 {
		return nil, models.ErrNotFound
	}
	var link models.ShareLink
	err := db.
		Joins("JOIN share_link_files j ON j.share_link_id = share_links.id").
		Where("share_links.user_id = ? AND j.file_id IN ?", userID, fileIDs).
		First(&link).Error
	if err != nil {
		return nil, convertError(err)
	}
	return &link, nil
}

// CreateShareLink inserts a fresh link with a fresh token.
func CreateShareLink(db *gorm.DB, userID string, expiresAt *time.Time) (*models.ShareLink, error) {
	link := &models.ShareLink{
		ID:        models.NewID(),
		Token:     models.NewShareToken(),
		UserID:    userID,
		ExpiresAt: expiresAt,
	}
	if err := db.Create(link).Error; err != nil {
		return nil, convertError(err)
	}
	return link, nil
}

// BindShareFiles attaches files to a link, skipping junctions that already
// exist.
func BindShareFiles(db *gorm.DB, linkID string, fileIDs []string) error {
	for _, fid := range fileIDs {
		var count int64
		err := db.Model(&models.ShareLinkFile{}).
			Where("share_link_id = ? AND file_id = ?", linkID, fid).
			Count(&count).Error
		if err != nil {
			return convertError(err)
		}
		if count > 0 {
			continue
		}
		if err := db.Create(&models.ShareLinkFile{ShareLinkID: linkID, FileID: fid}).Error; err != nil {
			return convertError(err)
		}
	}
	return nil
}

// UnbindShareFiles removes junctions for the files and deletes any link of
// this user left with no junctions.
func UnbindShareFiles(db *gorm.DB, userID string, fileIDs []string) error {
	if len(fileIDs) == 0 {
		return nil
	}
	var linkIDs []string
	err := db.Model(&models.ShareLink{}).Where("user_id = ?", userID).Pluck("id", &linkIDs).Error
	if err != nil {
		return convertError(err)
	}
	if len(linkIDs) == 0 {
		return nil
	}
	err = db.Where("share_link_id IN ? AND file_id IN ?", linkIDs, fileIDs).
		Delete(&models.ShareLinkFile{}).Error
	if err != nil {
		return convertError(err)
	}
	// Drop links whose last junction was just removed.
	for _, lid := range linkIDs {
		var count int64
		if err := db.Model(&models.ShareLinkFile{}).Where("share_link_id = ?", lid).Count(&count).Error; err != nil {
			return convertError(err)
		}
		if count == 0 {
			if err := db.Where("id = ?", lid).Delete(&models.ShareLink{}).Error; err != nil {
				return convertError(err)
			}
		}
	}
	return nil
}

// ShareLinkFiles resolves the live files bound to a link. Binding is
// owner-checked at mint time, so every row here belongs to the link's
// owner.
func (s *Store) ShareLinkFiles(ctx context.Context, linkID string) ([]*models.File, error) {
	var files []*models.File
	err := s.db.WithContext(ctx).
		Joins("JOIN share_link_files j ON j.file_id = files.id").
		Where("j.share_link_id = ? AND files.deleted_at IS NULL", linkID).
		Find(&files).Error
	if err != nil {
		return nil, convertError(err)
	}
	return files, nil
}

// LinksForFiles maps file id to the token of the link containing it.
func (s *Store) LinksForFiles(ctx context.Context, userID string, fileIDs []string) (map[string]string, error) {
	if len(fileIDs) == 0 {
		return map[string]string{}, nil
	}
	type row struct {
		FileID string
		Token  string
	}
	var rows []row
	err := s.db.WithContext(ctx).
		Table("share_link_files").
		Select("share_link_files.file_id AS file_id, share_links.token AS token").
		Joins("JOIN share_links ON share_links.id = share_link_files.share_link_id").
		Where("share_links.user_id = ? AND share_link_files.file_id IN ?", userID, fileIDs).
		Scan(&rows).Error
	if err != nil {
		return nil, convertError(err)
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.FileID] = r.Token
	}
	return out, nil
}
