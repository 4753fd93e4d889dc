package domain

import "time"

// Authenticator types supported for the second factor.
const (
	AuthenticatorTOTP = "totp"
)

// Authenticator is a second-factor credential enrolled by a user. Secret and
// Counter are verification material and never leave the broker.
type Authenticator struct {
	ID        string // ULID
	UserID    int64
	Type      string
	Label     string
	Secret    string // e.g. base32 TOTP secret
	Counter   int64
	CreatedAt time.Time
}

// PublicAuthenticator is the serialization of an Authenticator with the
// secret material stripped.
type PublicAuthenticator struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"createdAt"`
}

func (a Authenticator) Public() PublicAuthenticator {
	return PublicAuthenticator{
		ID:        a.ID,
		Type:      a.Type,
		Label:     a.Label,
		CreatedAt: a.CreatedAt,
	}
}
