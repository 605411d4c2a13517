package models

import (
	"encoding/json"
	"time"
)

// User is an account owning a file tree.
//
// The oldest user by CreatedAt is the primary administrator; that binding
// is immutable once set and the store refuses to delete the row.
type User struct {
	ID           string    `gorm:"primaryKey;size:16" json:"id"`
	Email        string    `gorm:"uniqueIndex;not null;size:255" json:"email"`
	PasswordHash string    `gorm:"size:255" json:"-"`
	CreatedAt    time.Time `gorm:"autoCreateTime;index" json:"created_at"`

	// StorageLimitBytes caps the sum of this user's file sizes. Zero means
	// the configured default applies. Ignored for custom-drive users.
	StorageLimitBytes int64 `gorm:"default:0" json:"storage_limit_bytes"`

	// Custom drive: when enabled, file bytes live at user-supplied absolute
	// paths under CustomDrivePath with their original filenames.
	CustomDriveEnabled bool    `gorm:"default:false" json:"custom_drive_enabled"`
	CustomDrivePath    *string `gorm:"size:1024" json:"custom_drive_path,omitempty"`

	// CustomDriveIgnore is a JSON-encoded ordered list of glob patterns.
	CustomDriveIgnore string `gorm:"type:text" json:"-"`
}

// TableName returns the table name for User.
func (User) TableName() string {
	return "users"
}

// IgnorePatterns decodes the stored ignore pattern list.
func (u *User) IgnorePatterns() []string {
	if u.CustomDriveIgnore == "" {
		return nil
	}
	var patterns []string
	if err := json.Unmarshal([]byte(u.CustomDriveIgnore), &patterns); err != nil {
		return nil
	}
	return patterns
}

// SetIgnorePatterns encodes the ignore pattern list for storage.
func (u *User) SetIgnorePatterns(patterns []string) error {
	if len(patterns) == 0 {
		u.CustomDriveIgnore = ""
		return nil
	}
	data, err := json.Marshal(patterns)
	if err != nil {
		return err
	}
	u.CustomDriveIgnore = string(data)
	return nil
}
