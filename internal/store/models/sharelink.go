package models

import "time"

// ShareLink is a public token bound to a set of files. Expiry is optional;
// resolving an expired link behaves exactly like an unknown token.
type ShareLink struct {
	ID        string     `gorm:"primaryKey;size:16" json:"id"`
	Token     string     `gorm:"uniqueIndex;not null;size:128" json:"token"`
	UserID    string     `gorm:"size:16;not null;index" json:"user_id"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for ShareLink.
func (ShareLink) TableName() string {
	return "share_links"
}

// Expired reports whether the link is past its expiry.
func (l *ShareLink) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && now.After(*l.ExpiresAt)
}

// ShareLinkFile is the junction between share links and files. Junction
// rows only reference files owned by the link's user; deleting a file
// cascades its junctions.
type ShareLinkFile struct {
	ShareLinkID string `gorm:"primaryKey;size:16" json:"share_link_id"`
	FileID      string `gorm:"primaryKey;size:16;index" json:"file_id"`
}

// TableName returns the table name for ShareLinkFile.
func (ShareLinkFile) TableName() string {
	return "share_link_files"
}
