package store

import (
	"context"
	"errors"

	"github.com/gatehouse-id/gatehouse/internal/broker/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite)
// implement this. Sub-repositories keep the concerns tidy and testable.
type Store interface {
	Users() Users
	Sessions() Sessions
	Authenticators() Authenticators
	Audit() Audit

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds
// Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// GetUserByID returns a user with its authenticators loaded.
	GetUserByID(ctx context.Context, id int64) (domain.User, error)

	// GetUserByUsername looks a user up by its email-like username.
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// CreateUser inserts a new user and returns its assigned id.
	// passwordHash may be empty for auto-registered accounts.
	CreateUser(ctx context.Context, username, passwordHash string) (int64, error)

	// UpdateLastLogin stamps the user's last successful login.
	UpdateLastLogin(ctx context.Context, userID int64) error

	// UpdatePasswordHash sets the password_hash (argon2).
	UpdatePasswordHash(ctx context.Context, userID int64, newHash string) error

	// DeleteUser cascades to sessions and authenticators (per schema).
	DeleteUser(ctx context.Context, userID int64) error
}

type Sessions interface {
	// CreateSession stores a session handle fingerprint bound to a user.
	CreateSession(ctx context.Context, tokenHash string, userID int64) error

	// GetSessionByHash returns the session for a handle fingerprint.
	GetSessionByHash(ctx context.Context, tokenHash string) (domain.Session, error)

	// DeleteSession removes a single session by its handle fingerprint.
	DeleteSession(ctx context.Context, tokenHash string) error

	// DeleteUserSessions removes every session belonging to a user.
	DeleteUserSessions(ctx context.Context, userID int64) error
}

type Authenticators interface {
	// CreateAuthenticator stores a new second-factor credential.
	CreateAuthenticator(ctx context.Context, a domain.Authenticator) error

	// ListUserAuthenticators returns a user's authenticators, oldest first.
	ListUserAuthenticators(ctx context.Context, userID int64) ([]domain.Authenticator, error)

	// UpdateAuthenticatorCounter bumps a counter-based authenticator.
	UpdateAuthenticatorCounter(ctx context.Context, id string, counter int64) error

	// DeleteAuthenticator removes a credential.
	DeleteAuthenticator(ctx context.Context, id string) error
}

type Audit interface {
	// AddEvent appends an audit record.
	AddEvent(ctx context.Context, ev domain.AuditEvent) error

	// ListUserEvents returns a user's most recent events, newest first.
	ListUserEvents(ctx context.Context, userID int64, limit int) ([]domain.AuditEvent, error)
}
