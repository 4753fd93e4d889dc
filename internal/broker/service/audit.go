package service

import (
	"context"
	"time"

	"github.com/gatehouse-id/gatehouse/internal/broker/domain"
	"github.com/gatehouse-id/gatehouse/internal/broker/store"
	"github.com/gatehouse-id/gatehouse/pkg/idx"
)

// AuditService appends security-relevant events to the persistent audit log.
type AuditService struct {
	Store store.Store
}

// Add records an event against a user. detail carries the human-readable
// context, for page events the page name.
func (s *AuditService) Add(ctx context.Context, userID int64, object, action, detail string) error {
	return s.Store.Audit().AddEvent(ctx, domain.AuditEvent{
		ID:        idx.New().String(),
		UserID:    userID,
		Object:    object,
		Action:    action,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
}

// Recent returns a user's newest events, capped at limit.
func (s *AuditService) Recent(ctx context.Context, userID int64, limit int) ([]domain.AuditEvent, error) {
	return s.Store.Audit().ListUserEvents(ctx, userID, limit)
}
