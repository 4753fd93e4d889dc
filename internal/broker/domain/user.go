package domain

import "time"

// User is an account known to the broker. Accounts created through the SSO
// auto-registration path have no password hash until one is set.
type User struct {
	ID           int64
	Username     string // email-like identifier
	PasswordHash string // argon2 encoded; empty for auto-registered accounts
	CreatedAt    time.Time
	LastLoginAt  *time.Time

	Authenticators []Authenticator
}

// PublicUser is the outward-facing serialization of a User. It is what gets
// embedded in fully-authenticated tokens, so it must never carry password
// hashes, login timestamps, or per-authenticator secret material.
type PublicUser struct {
	ID             int64                 `json:"id"`
	Username       string                `json:"username"`
	Authenticators []PublicAuthenticator `json:"authenticators"`
}

// Public strips every secret-bearing field from the user record.
func (u User) Public() PublicUser {
	pub := PublicUser{
		ID:             u.ID,
		Username:       u.Username,
		Authenticators: make([]PublicAuthenticator, 0, len(u.Authenticators)),
	}
	for _, a := range u.Authenticators {
		pub.Authenticators = append(pub.Authenticators, a.Public())
	}
	return pub
}
