package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/skyvault-io/skyvault/internal/store/models"
)

// InsertAuditEvent records one audit row. Called by the audit worker, not
// by request handlers.
func (s *Store) InsertAuditEvent(ctx context.Context, ev *models.AuditEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	return convertError(s.db.WithContext(ctx).Create(ev).Error)
}

// ListAuditEvents returns the most recent events, optionally filtered by
// user. Used by tests and the admin surface.
func (s *Store) ListAuditEvents(ctx context.Context, userID string, limit int) ([]*models.AuditEvent, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	q := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	var events []*models.AuditEvent
	if err := q.Find(&events).Error; err != nil {
		return nil, convertError(err)
	}
	return events, nil
}
