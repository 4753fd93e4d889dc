package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gatehouse-id/gatehouse/internal/broker/domain"
	"github.com/gatehouse-id/gatehouse/internal/broker/store"
	"github.com/gatehouse-id/gatehouse/pkg/cryptox"
	"github.com/gatehouse-id/gatehouse/pkg/idx"
	"github.com/gatehouse-id/gatehouse/pkg/jwtx"
	"github.com/gatehouse-id/gatehouse/pkg/slogx"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"golang.org/x/sync/errgroup"
)

// AuthService issues the broker's own first- and second-factor tokens and
// manages the opaque session handles bound to fully authenticated ones.
type AuthService struct {
	Store store.Store

	// Secret signs every broker-issued token. Page tokens use the page's
	// shared secret instead, see SSOService.
	Secret string

	// TOTPIssuer names this broker in authenticator apps.
	TOTPIssuer string
}

// LoginToken signs the first-factor continuation token for a user. Medium
// lived; carries the integer subject twice (sub and id) plus the username so
// the client can render who is signing in.
func (s *AuthService) LoginToken(ctx context.Context, user domain.User) (string, error) {
	token, err := jwtx.Sign(jwtx.Claims{
		"sub":      user.ID,
		"id":       user.ID,
		"username": user.Username,
	}, s.Secret, jwtx.Medium)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}
	return token, nil
}

// AuthToken upgrades a first-factor identity to a fully authenticated Long
// token. Session creation and the user fetch run concurrently; the session
// handle travels only inside the signed token, the store keeps its
// fingerprint.
//
// When the user has a TOTP authenticator enrolled, otpCode must match it.
func (s *AuthService) AuthToken(ctx context.Context, userID int64, otpCode string) (string, domain.User, error) {
	l := slogx.FromContext(ctx)

	var (
		user     domain.User
		rawToken string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := cryptox.GenerateToken(cryptox.TokenSize256)
		if err != nil {
			return err
		}
		rawToken = t
		return s.Store.Sessions().CreateSession(gctx, cryptox.FingerprintToken(t), userID)
	})
	g.Go(func() error {
		u, err := s.Store.Users().GetUserByID(gctx, userID)
		if err != nil {
			return err
		}
		user = u
		return nil
	})
	if err := g.Wait(); err != nil {
		return "", domain.User{}, err
	}

	if !s.checkOTP(user, otpCode) {
		// Session was created optimistically; take it back.
		_ = s.Store.Sessions().DeleteSession(ctx, cryptox.FingerprintToken(rawToken))
		l.Info("second factor rejected", slog.Int64("user_id", userID))
		return "", domain.User{}, ErrInvalidOTP
	}

	pub := user.Public()
	token, err := jwtx.Sign(jwtx.Claims{
		"sub":            user.ID,
		"id":             pub.ID,
		"username":       pub.Username,
		"authenticators": pub.Authenticators,
		"token":          rawToken,
	}, s.Secret, jwtx.Long)
	if err != nil {
		return "", domain.User{}, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}

	if err := s.Store.Users().UpdateLastLogin(ctx, userID); err != nil {
		l.Warn("failed to stamp last login", slog.Any("error", err))
	}

	return token, user, nil
}

// checkOTP passes users with no TOTP enrollment straight through; otherwise
// the code must validate against one of the enrolled authenticators.
func (s *AuthService) checkOTP(user domain.User, otpCode string) bool {
	enrolled := false
	for _, a := range user.Authenticators {
		if a.Type != domain.AuthenticatorTOTP {
			continue
		}
		enrolled = true
		if otpCode != "" && totp.Validate(otpCode, a.Secret) {
			return true
		}
	}
	return !enrolled
}

// ValidateSession resolves a raw session handle to its stored session.
func (s *AuthService) ValidateSession(ctx context.Context, rawToken string) (domain.Session, error) {
	return s.Store.Sessions().GetSessionByHash(ctx, cryptox.FingerprintToken(rawToken))
}

// DeleteSession revokes a single session by its raw handle.
func (s *AuthService) DeleteSession(ctx context.Context, rawToken string) error {
	return s.Store.Sessions().DeleteSession(ctx, cryptox.FingerprintToken(rawToken))
}

// EnrollTOTP provisions a new TOTP authenticator for a user and returns the
// otpauth:// provisioning URL for the enrolling device.
func (s *AuthService) EnrollTOTP(ctx context.Context, userID int64, label string) (domain.Authenticator, string, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return domain.Authenticator{}, "", err
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.TOTPIssuer,
		AccountName: user.Username,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return domain.Authenticator{}, "", err
	}

	auth := domain.Authenticator{
		ID:        idx.New().String(),
		UserID:    userID,
		Type:      domain.AuthenticatorTOTP,
		Label:     label,
		Secret:    key.Secret(),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.Store.Authenticators().CreateAuthenticator(ctx, auth); err != nil {
		return domain.Authenticator{}, "", err
	}

	return auth, key.URL(), nil
}
