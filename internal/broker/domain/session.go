package domain

import "time"

// Session is an opaque handle bound 1:1 to a user id at creation. Only the
// SHA-256 fingerprint of the handle is stored; the raw token lives inside
// the fully-authenticated JWT and nowhere else.
type Session struct {
	TokenHash string
	UserID    int64
	CreatedAt time.Time
}
