package sqlite

import (
	"context"

	"github.com/gatehouse-id/gatehouse/internal/broker/domain"
)

type auditRepo struct {
	db dbtx
}

func (r *auditRepo) AddEvent(ctx context.Context, ev domain.AuditEvent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, user_id, object, action, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.UserID, ev.Object, ev.Action, ev.Detail, ev.CreatedAt)
	return err
}

func (r *auditRepo) ListUserEvents(ctx context.Context, userID int64, limit int) ([]domain.AuditEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, object, action, detail, created_at
		FROM audit_events WHERE user_id = ?
		ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AuditEvent
	for rows.Next() {
		var ev domain.AuditEvent
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.Object, &ev.Action, &ev.Detail, &ev.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
