// Package models defines the persisted entities of the storage engine and
// the error taxonomy shared across packages.
package models

// AllModels returns all GORM models for auto-migration.
func AllModels() []any {
	return []any{
		&User{},
		&File{},
		&ShareLink{},
		&ShareLinkFile{},
		&AuditEvent{},
	}
}
