package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/skyvault-io/skyvault/internal/store/models"
)

// CreateUser inserts a user. Password may be empty (external identity
// providers); otherwise it is bcrypt-hashed here so plaintext never
// reaches a row. Duplicate emails fail with ErrConflict.
func (s *Store) CreateUser(ctx context.Context, user *models.User, password string) error {
	if user.ID == "" {
		user.ID = models.NewID()
	}
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		user.PasswordHash = string(hash)
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	return convertError(s.db.WithContext(ctx).Create(user).Error)
}

// GetUser fetches a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, convertError(err)
	}
	return &user, nil
}

// GetUserByEmail fetches a user by email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, convertError(err)
	}
	return &user, nil
}

// ListCustomDriveUsers returns all users with the custom drive enabled and
// a configured path. The drive watcher reconciles each of them.
func (s *Store) ListCustomDriveUsers(ctx context.Context) ([]*models.User, error) {
	var users []*models.User
	err := s.db.WithContext(ctx).
		Where("custom_drive_enabled = ? AND custom_drive_path IS NOT NULL", true).
		Find(&users).Error
	if err != nil {
		return nil, convertError(err)
	}
	return users, nil
}

// UpdateCustomDrive updates a user's custom drive settings.
func (s *Store) UpdateCustomDrive(ctx context.Context, userID string, enabled bool, path *string, ignore []string) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	user.CustomDriveEnabled = enabled
	user.CustomDrivePath = path
	if err := user.SetIgnorePatterns(ignore); err != nil {
		return fmt.Errorf("encode ignore patterns: %w", err)
	}
	return convertError(s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"custom_drive_enabled": user.CustomDriveEnabled,
			"custom_drive_path":    user.CustomDrivePath,
			"custom_drive_ignore":  user.CustomDriveIgnore,
		}).Error)
}

// PrimaryAdminID returns the id of the oldest user by created_at. The
// binding is immutable: it only ever changes if the whole account base is
// recreated.
func (s *Store) PrimaryAdminID(ctx context.Context) (string, error) {
	var user models.User
	err := s.db.WithContext(ctx).Order("created_at ASC, id ASC").First(&user).Error
	if err != nil {
		return "", convertError(err)
	}
	return user.ID, nil
}

// DeleteUser removes a user together with their files, share links and
// junctions. Deleting the primary administrator fails with ErrIntegrity.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	adminID, err := s.PrimaryAdminID(ctx)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return err
	}
	if id == adminID {
		return fmt.Errorf("%w: cannot delete the primary administrator", models.ErrIntegrity)
	}
	return s.WithTx(ctx, func(tx *gorm.DB) error {
		var linkIDs []string
		if err := tx.Model(&models.ShareLink{}).Where("user_id = ?", id).Pluck("id", &linkIDs).Error; err != nil {
			return err
		}
		if len(linkIDs) > 0 {
			if err := tx.Where("share_link_id IN ?", linkIDs).Delete(&models.ShareLinkFile{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", linkIDs).Delete(&models.ShareLink{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.File{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.User{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.ErrNotFound
		}
		return nil
	})
}

// StorageUsed returns the byte sum of the user's non-deleted files.
func (s *Store) StorageUsed(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).
		Model(&models.File{}).
		Where("user_id = ? AND type = ? AND deleted_at IS NULL", userID, models.TypeFile).
		Select("COALESCE(SUM(size), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, convertError(err)
	}
	return total, nil
}
