package domain

import "time"

// Audit actions recorded against the "page" object.
const (
	AuditObjectPage = "page"

	AuditActionRequest      = "request"
	AuditActionRegistration = "registration"
	AuditActionLogin        = "login"
)

// AuditEvent is a persisted record of a security-relevant action.
type AuditEvent struct {
	ID        string // ULID
	UserID    int64  // 0 when no user was involved
	Object    string
	Action    string
	Detail    string
	CreatedAt time.Time
}
