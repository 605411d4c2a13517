package models

import "time"

// Audit event statuses.
const (
	AuditSuccess = "success"
	AuditFailure = "failure"
	AuditError   = "error"
)

// AuditEvent is one row of the audit trail. Rows are inserted by the audit
// worker, never by request handlers directly.
type AuditEvent struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	RequestID    string    `gorm:"size:64;index" json:"request_id"`
	UserID       *string   `gorm:"size:16;index" json:"user_id,omitempty"`
	Action       string    `gorm:"size:100;not null;index" json:"action"`
	ResourceType string    `gorm:"size:50;not null" json:"resource_type"`
	ResourceID   string    `gorm:"size:64" json:"resource_id"`
	Status       string    `gorm:"size:16;not null" json:"status"`
	IPAddress    string    `gorm:"size:64" json:"ip_address"`
	UserAgent    string    `gorm:"size:512" json:"user_agent"`
	Metadata     string    `gorm:"type:text" json:"metadata,omitempty"`
	ErrorMessage *string   `gorm:"type:text" json:"error_message,omitempty"`
	ProcessingMS int64     `gorm:"column:processing_time_ms" json:"processing_time_ms"`
	CreatedAt    time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// TableName returns the table name for AuditEvent.
func (AuditEvent) TableName() string {
	return "audit_events"
}
