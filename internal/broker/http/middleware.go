package http

import (
	"context"
	"crypto/rand"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/gatehouse-id/gatehouse/internal/broker/service"
	"github.com/gatehouse-id/gatehouse/pkg/httpx"
	"github.com/gatehouse-id/gatehouse/pkg/jwtx"
)

type ctxKey int

const (
	identityKey ctxKey = iota + 1
	ssoRequestKey
)

// Identity is the principal a verified bearer token attached to the request.
// SessionToken is the raw session handle from a fully authenticated token.
type Identity struct {
	ID           int64
	Username     string
	SessionToken string
	Claims       jwtx.Claims
}

func withIdentity(ctx context.Context, ident Identity) context.Context {
	return context.WithValue(ctx, identityKey, ident)
}

// IdentityFrom returns the request identity attached by ParseAuthHeader.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	ident, ok := ctx.Value(identityKey).(Identity)
	return ident, ok
}

func withSSORequest(ctx context.Context, claims jwtx.Claims) context.Context {
	return context.WithValue(ctx, ssoRequestKey, claims)
}

// SSORequestFrom returns the verified correlation claims attached by
// ParseSSOHeader, or nil.
func SSORequestFrom(ctx context.Context) jwtx.Claims {
	claims, _ := ctx.Value(ssoRequestKey).(jwtx.Claims)
	return claims
}

// AntiTiming delays the request by a uniformly random duration below max,
// masking timing differences between valid and invalid credential paths
// further down the chain.
func AntiTiming(max time.Duration) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if n, err := rand.Int(rand.Reader, big.NewInt(int64(max))); err == nil {
				time.Sleep(time.Duration(n.Int64()))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ParseAuthHeader extracts and verifies an Authorization bearer token against
// the broker secret. Identity attaches only when the token carries an integer
// subject and a session handle; on any other shape or verification failure
// the request continues unauthenticated. Downstream gates decide whether
// that is fatal.
func ParseAuthHeader(secret string) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			parts := strings.SplitN(header, " ", 2)
			if header == "" || len(parts) != 2 || parts[0] != "Bearer" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := jwtx.Verify(parts[1], secret, jwtx.VerifyOptions{
				MaxAge: jwtx.Ages().Short,
			})
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			sub, ok := claims.Subject()
			if !ok || !claims.Has("token") {
				next.ServeHTTP(w, r)
				return
			}

			ident := Identity{
				ID:           sub,
				Username:     claims.String("username"),
				SessionToken: claims.String("token"),
				Claims:       claims,
			}
			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), ident)))
		})
	}
}

// RequireLogin is the first-factor gate. Terminal on failure.
func RequireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident, ok := IdentityFrom(r.Context())
		if !ok || ident.ID == 0 {
			httpx.WriteText(w, http.StatusForbidden, "You need to be signed in")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuthenticated is the second-factor gate: the identity must carry a
// session handle whose stored owner matches the identity. An owner mismatch
// is treated as a stolen or stale handle, so the session is revoked before
// the request is rejected.
func RequireAuthenticated(auth *service.AuthService) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ident, ok := IdentityFrom(r.Context())
			if !ok {
				httpx.WriteText(w, http.StatusForbidden, "User not logged in")
				return
			}
			if ident.SessionToken == "" {
				httpx.WriteText(w, http.StatusForbidden, "Authorization token missing")
				return
			}

			sess, err := auth.ValidateSession(r.Context(), ident.SessionToken)
			if err != nil {
				httpx.WriteText(w, http.StatusBadRequest, err.Error())
				return
			}
			if ident.ID != sess.UserID {
				_ = auth.DeleteSession(r.Context(), ident.SessionToken)
				httpx.WriteText(w, http.StatusBadRequest, "Token mismatch")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ParseSSOHeader verifies an X-SSO-Token correlation token against the
// broker secret with a Medium age bound and attaches its claims when they
// reference a page. Fails open like the bearer gate.
func ParseSSOHeader(secret string) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("X-SSO-Token")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := jwtx.Verify(header, secret, jwtx.VerifyOptions{
				MaxAge: jwtx.Ages().Medium,
			})
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			if pageID, ok := claims.Int("pageId"); !ok || pageID == 0 {
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(withSSORequest(r.Context(), claims)))
		})
	}
}
