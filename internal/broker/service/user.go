package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/gatehouse-id/gatehouse/internal/broker/domain"
	"github.com/gatehouse-id/gatehouse/internal/broker/store"
	"github.com/gatehouse-id/gatehouse/pkg/cryptox"
)

type UserService struct {
	Store store.Store
}

// GetUserByID fetches a user by id, authenticators included.
func (s *UserService) GetUserByID(ctx context.Context, userID int64) (domain.User, error) {
	return s.Store.Users().GetUserByID(ctx, userID)
}

// GetUserByUsername fetches a user by its email-like username.
func (s *UserService) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	return s.Store.Users().GetUserByUsername(ctx, username)
}

// Authenticate checks a username/password pair against the stored argon2
// hash. Accounts without a password (auto-registered ones) can never pass
// this check.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (domain.User, error) {
	u, err := s.Store.Users().GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}

	if u.PasswordHash == "" {
		return domain.User{}, ErrInvalidCredentials
	}
	if err := cryptox.VerifyPassword(password, u.PasswordHash); err != nil {
		return domain.User{}, ErrInvalidCredentials
	}

	return u, nil
}

// Register creates a user account. password may be empty for implicit
// registration via an inbound exchange; otherwise it is argon2-hashed.
func (s *UserService) Register(ctx context.Context, username, password string) (domain.User, error) {
	if !IsEmail(username) {
		return domain.User{}, ErrInvalidSubject
	}

	hash := ""
	if password != "" {
		var err error
		hash, err = cryptox.HashPassword(password)
		if err != nil {
			return domain.User{}, err
		}
	}

	id, err := s.Store.Users().CreateUser(ctx, username, hash)
	if err != nil {
		return domain.User{}, err
	}

	return s.Store.Users().GetUserByID(ctx, id)
}

// IsEmail reports whether s is a plain email address (no display name, no
// angle brackets).
func IsEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return false
	}
	// Reject "Name <a@b>" forms; the subject must be the bare address.
	return addr.Address == strings.TrimSpace(s)
}
