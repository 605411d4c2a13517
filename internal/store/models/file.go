package models

import (
	"path/filepath"
	"time"
)

// FileType distinguishes files from folders. Behaviour branches explicitly
// on the tag; there is no subtype polymorphism.
type FileType string

const (
	TypeFile   FileType = "file"
	TypeFolder FileType = "folder"
)

// File is a node in a user's tree. The Path column has three variants:
//
//   - nil for a purely logical folder with no on-disk analogue
//   - an absolute path for a custom-drive entry (bytes at that location,
//     original filename)
//   - a relative storage key for a local-driver encrypted blob or an S3
//     object under the configured bucket
type File struct {
	ID       string   `gorm:"primaryKey;size:16" json:"id"`
	UserID   string   `gorm:"size:16;not null;index:idx_files_scope,priority:1" json:"user_id"`
	Name     string   `gorm:"size:255;not null" json:"name"`
	Type     FileType `gorm:"size:8;not null" json:"type"`
	ParentID *string  `gorm:"size:16;index:idx_files_scope,priority:2" json:"parent_id"`

	// Size is bytes for files and always 0 for folders; folder sizes are
	// computed on demand and cached, never stored.
	Size     int64   `gorm:"default:0" json:"size"`
	MimeType *string `gorm:"size:255" json:"mime_type,omitempty"`
	Path     *string `gorm:"size:2048" json:"-"`

	Starred  bool      `gorm:"default:false" json:"starred"`
	Shared   bool      `gorm:"default:false" json:"shared"`
	Modified time.Time `gorm:"autoUpdateTime:false" json:"modified"`

	// DeletedAt non-nil means the row is in trash.
	DeletedAt *time.Time `gorm:"index:idx_files_scope,priority:3" json:"deleted_at,omitempty"`
}

// TableName returns the table name for File.
func (File) TableName() string {
	return "files"
}

// IsFolder reports whether the node is a folder.
func (f *File) IsFolder() bool {
	return f.Type == TypeFolder
}

// InTrash reports whether the row is soft-deleted.
func (f *File) InTrash() bool {
	return f.DeletedAt != nil
}

// HasAbsolutePath reports whether the row is a custom-drive entry.
func (f *File) HasAbsolutePath() bool {
	return f.Path != nil && filepath.IsAbs(*f.Path)
}

// StorageKey returns the relative blob key, or "" for logical folders and
// custom-drive rows.
func (f *File) StorageKey() string {
	if f.Path == nil || filepath.IsAbs(*f.Path) {
		return ""
	}
	return *f.Path
}
