package service

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gatehouse-id/gatehouse/internal/broker/domain"
	"github.com/gatehouse-id/gatehouse/internal/broker/store"
	"github.com/gatehouse-id/gatehouse/internal/broker/store/drivers/sqlite"
	"github.com/gatehouse-id/gatehouse/pkg/cryptox"
	"github.com/gatehouse-id/gatehouse/pkg/jwtx"
	"github.com/gatehouse-id/gatehouse/pkg/samlidp"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

const testSecret = "unit-test-broker-secret"

func TestMain(m *testing.M) {
	// Password hashing reads a pepper file on first use; point it at a
	// throwaway path so registration tests can hash passwords.
	pepperPath := filepath.Join(os.TempDir(), "gatehouse-service-test-pepper")
	cryptox.SetPepperPath(pepperPath)

	code := m.Run()
	os.Remove(pepperPath)
	os.Exit(code)
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations())
	return s
}

func testPages(t *testing.T) *domain.PageRegistry {
	t.Helper()

	reg, err := domain.NewPageRegistry([]domain.Page{
		{
			ID:       1,
			Name:     "Intranet",
			Branding: "intranet.css",
			Secret:   "intranet-shared-secret",
			Redirect: "https://intranet.example.com/login",
		},
		{
			ID:                 2,
			Name:               "Payroll",
			Secret:             "payroll-shared-secret",
			Redirect:           "https://payroll.example.com/sso",
			SignedRequestsOnly: true,
		},
	})
	require.NoError(t, err)
	return reg
}

func newSSOService(t *testing.T, st store.Store, hostname string) *SSOService {
	t.Helper()

	return &SSOService{
		Pages:    testPages(t),
		Store:    st,
		Audit:    &AuditService{Store: st},
		IdP:      testIdentityProvider(t),
		Secret:   testSecret,
		Hostname: hostname,
	}
}

func TestUserServiceAuthenticate(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	users := &UserService{Store: st}

	u, err := users.Register(ctx, "alice@example.com", "hunter2hunter2")
	require.NoError(t, err)
	require.Positive(t, u.ID)

	t.Run("correct password", func(t *testing.T) {
		got, err := users.Authenticate(ctx, "alice@example.com", "hunter2hunter2")
		require.NoError(t, err)
		require.Equal(t, u.ID, got.ID)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := users.Authenticate(ctx, "alice@example.com", "nope")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := users.Authenticate(ctx, "ghost@example.com", "whatever")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("passwordless account never authenticates", func(t *testing.T) {
		pw, err := users.Register(ctx, "sso-only@example.com", "")
		require.NoError(t, err)
		require.Empty(t, pw.PasswordHash)

		_, err = users.Authenticate(ctx, "sso-only@example.com", "")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("username must be an email", func(t *testing.T) {
		_, err := users.Register(ctx, "not-an-email", "password123")
		require.ErrorIs(t, err, ErrInvalidSubject)
	})
}

func TestAuthServiceLoginToken(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	users := &UserService{Store: st}
	auth := &AuthService{Store: st, Secret: testSecret}

	u, err := users.Register(ctx, "bob@example.com", "correct-horse")
	require.NoError(t, err)

	token, err := auth.LoginToken(ctx, u)
	require.NoError(t, err)

	claims, err := jwtx.Verify(token, testSecret, jwtx.VerifyOptions{MaxAge: jwtx.Ages().Medium})
	require.NoError(t, err)

	sub, ok := claims.Subject()
	require.True(t, ok)
	require.Equal(t, u.ID, sub)
	require.Equal(t, "bob@example.com", claims.String("username"))

	// First-factor tokens never carry a session handle.
	require.False(t, claims.Has("token"))
}

func TestAuthServiceAuthToken(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	users := &UserService{Store: st}
	auth := &AuthService{Store: st, Secret: testSecret, TOTPIssuer: "gatehouse"}

	u, err := users.Register(ctx, "carol@example.com", "correct-horse")
	require.NoError(t, err)

	t.Run("issues long token with session", func(t *testing.T) {
		token, user, err := auth.AuthToken(ctx, u.ID, "")
		require.NoError(t, err)
		require.Equal(t, u.ID, user.ID)

		claims, err := jwtx.Verify(token, testSecret, jwtx.VerifyOptions{})
		require.NoError(t, err)

		sub, ok := claims.Subject()
		require.True(t, ok)
		require.Equal(t, u.ID, sub)

		raw := claims.String("token")
		require.NotEmpty(t, raw)

		sess, err := auth.ValidateSession(ctx, raw)
		require.NoError(t, err)
		require.Equal(t, u.ID, sess.UserID)

		// Secret material must never reach the token.
		require.False(t, claims.Has("password"))
		require.False(t, claims.Has("passwordHash"))
	})

	t.Run("unknown user", func(t *testing.T) {
		_, _, err := auth.AuthToken(ctx, 9999, "")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("enrolled totp gates issuance", func(t *testing.T) {
		enrolled, provisioningURL, err := auth.EnrollTOTP(ctx, u.ID, "phone")
		require.NoError(t, err)
		require.Contains(t, provisioningURL, "otpauth://totp/")

		_, _, err = auth.AuthToken(ctx, u.ID, "")
		require.ErrorIs(t, err, ErrInvalidOTP)

		_, _, err = auth.AuthToken(ctx, u.ID, "000000")
		require.ErrorIs(t, err, ErrInvalidOTP)

		code, err := totp.GenerateCode(enrolled.Secret, time.Now())
		require.NoError(t, err)

		token, _, err := auth.AuthToken(ctx, u.ID, code)
		require.NoError(t, err)

		claims, err := jwtx.Verify(token, testSecret, jwtx.VerifyOptions{})
		require.NoError(t, err)
		require.False(t, claims.Has("secret"))
	})
}

func TestSSOFlowIn(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	sso := newSSOService(t, st, "sso.example.com")

	t.Run("missing page id", func(t *testing.T) {
		_, err := sso.FlowIn(ctx, "", "")
		require.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("non-numeric page id", func(t *testing.T) {
		_, err := sso.FlowIn(ctx, "intranet", "")
		require.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("unknown page id", func(t *testing.T) {
		_, err := sso.FlowIn(ctx, "42", "")
		require.ErrorIs(t, err, ErrPageNotFound)
	})

	t.Run("anonymous flow", func(t *testing.T) {
		res, err := sso.FlowIn(ctx, "1", "")
		require.NoError(t, err)
		require.Nil(t, res.User)
		require.Equal(t, int64(1), res.Page.PageID)
		require.Equal(t, "Intranet", res.Page.Name)
		require.Equal(t, domain.FlowTypeJWT, res.Page.FlowType)

		claims, err := jwtx.Verify(res.Page.Token, testSecret, jwtx.VerifyOptions{MaxAge: jwtx.Ages().Medium})
		require.NoError(t, err)
		require.True(t, claims.Bool("jwt"))
		pageID, ok := claims.Int("pageId")
		require.True(t, ok)
		require.Equal(t, int64(1), pageID)
		require.False(t, claims.Has("sub"))
	})

	t.Run("signed-only page rejects anonymous flow", func(t *testing.T) {
		_, err := sso.FlowIn(ctx, "2", "")
		require.ErrorIs(t, err, ErrSignedRequestsOnly)
	})

	t.Run("signed request with wrong secret", func(t *testing.T) {
		data, err := jwtx.Sign(jwtx.Claims{"iss": "Intranet"}, "wrong-secret", jwtx.Short)
		require.NoError(t, err)

		_, err = sso.FlowIn(ctx, "1", data)
		require.ErrorIs(t, err, ErrSignedRequest)
	})

	t.Run("signed request with wrong issuer", func(t *testing.T) {
		data, err := jwtx.Sign(jwtx.Claims{"iss": "Payroll"}, "intranet-shared-secret", jwtx.Short)
		require.NoError(t, err)

		_, err = sso.FlowIn(ctx, "1", data)
		require.ErrorIs(t, err, ErrSignedRequest)
	})

	t.Run("signed request with invalid subject", func(t *testing.T) {
		data, err := jwtx.Sign(jwtx.Claims{"iss": "Intranet", "sub": "not an email"}, "intranet-shared-secret", jwtx.Short)
		require.NoError(t, err)

		_, err = sso.FlowIn(ctx, "1", data)
		require.ErrorIs(t, err, ErrInvalidSubject)
	})

	t.Run("signed request auto-registers unknown subject", func(t *testing.T) {
		data, err := jwtx.Sign(jwtx.Claims{"iss": "Intranet", "sub": "newcomer@example.com"}, "intranet-shared-secret", jwtx.Short)
		require.NoError(t, err)

		res, err := sso.FlowIn(ctx, "1", data)
		require.NoError(t, err)
		require.NotNil(t, res.User)
		require.Equal(t, "newcomer@example.com", res.User.Username)
		require.Equal(t, "newcomer@example.com", res.Page.Username)
		require.Empty(t, res.User.PasswordHash)

		// Correlation token pins the requested subject.
		claims, err := jwtx.Verify(res.Page.Token, testSecret, jwtx.VerifyOptions{})
		require.NoError(t, err)
		require.Equal(t, "newcomer@example.com", claims.String("sub"))

		events, err := sso.Audit.Recent(ctx, res.User.ID, 10)
		require.NoError(t, err)
		require.Len(t, events, 1)
		require.Equal(t, domain.AuditActionRegistration, events[0].Action)
		require.Equal(t, "Intranet", events[0].Detail)
	})

	t.Run("signed request for known subject", func(t *testing.T) {
		data, err := jwtx.Sign(jwtx.Claims{"iss": "Intranet", "sub": "newcomer@example.com"}, "intranet-shared-secret", jwtx.Short)
		require.NoError(t, err)

		res, err := sso.FlowIn(ctx, "1", data)
		require.NoError(t, err)
		require.NotNil(t, res.User)

		events, err := sso.Audit.Recent(ctx, res.User.ID, 10)
		require.NoError(t, err)
		require.Len(t, events, 2)
		require.Equal(t, domain.AuditActionRequest, events[0].Action)
	})
}

func TestSSOFlowOut(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	sso := newSSOService(t, st, "sso.example.com")
	users := &UserService{Store: st}

	user, err := users.Register(ctx, "dana@example.com", "correct-horse")
	require.NoError(t, err)

	t.Run("jwt flow issues page token", func(t *testing.T) {
		res, err := sso.FlowOut(ctx, jwtx.Claims{"pageId": int64(1), "jwt": true}, user)
		require.NoError(t, err)
		require.Equal(t, "https://intranet.example.com/login", res.Redirect)
		require.Empty(t, res.SAMLResponse)

		claims, err := jwtx.Verify(res.Token, "intranet-shared-secret", jwtx.VerifyOptions{MaxAge: jwtx.Ages().Short})
		require.NoError(t, err)
		require.Equal(t, "dana@example.com", claims.String("sub"))
		require.Equal(t, "Intranet", claims.String("aud"))

		// Login is recorded twice for jwt flows: once on completion, once
		// on issuance.
		events, err := sso.Audit.Recent(ctx, user.ID, 10)
		require.NoError(t, err)
		require.Len(t, events, 2)
		for _, ev := range events {
			require.Equal(t, domain.AuditActionLogin, ev.Action)
		}
	})

	t.Run("pinned subject must match signed-in user", func(t *testing.T) {
		claims := jwtx.Claims{"pageId": int64(1), "jwt": true, "sub": "other@example.com"}
		_, err := sso.FlowOut(ctx, claims, user)
		require.ErrorIs(t, err, ErrSubjectMismatch)
	})

	t.Run("pinned subject match is case-insensitive", func(t *testing.T) {
		claims := jwtx.Claims{"pageId": int64(1), "jwt": true, "sub": "DANA@Example.COM"}
		_, err := sso.FlowOut(ctx, claims, user)
		require.NoError(t, err)
	})

	t.Run("missing page id", func(t *testing.T) {
		_, err := sso.FlowOut(ctx, jwtx.Claims{"jwt": true}, user)
		require.ErrorIs(t, err, ErrInvalidSession)
	})

	t.Run("unknown page id", func(t *testing.T) {
		_, err := sso.FlowOut(ctx, jwtx.Claims{"pageId": int64(42), "jwt": true}, user)
		require.ErrorIs(t, err, ErrInvalidSession)
	})

	t.Run("neither jwt nor saml", func(t *testing.T) {
		_, err := sso.FlowOut(ctx, jwtx.Claims{"pageId": int64(1)}, user)
		require.ErrorIs(t, err, ErrInvalidSession)
	})
}

func TestSSOSamlRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	sso := newSSOService(t, st, "sso.example.com")
	users := &UserService{Store: st}

	user, err := users.Register(ctx, "erin@example.com", "correct-horse")
	require.NoError(t, err)

	request := base64.StdEncoding.EncodeToString([]byte(`<samlp:AuthnRequest
		xmlns:samlp="urn:oasis:names:tc:SAML:2.0:protocol"
		xmlns:saml="urn:oasis:names:tc:SAML:2.0:assertion"
		ID="_req-1" Version="2.0" IssueInstant="2026-08-28T10:00:00Z"
		AssertionConsumerServiceURL="https://intranet.example.com/acs">
		<saml:Issuer>https://intranet.example.com</saml:Issuer>
	</samlp:AuthnRequest>`))

	t.Run("inbound matches page by destination host", func(t *testing.T) {
		info, err := sso.SamlIn(ctx, request, "relay-123")
		require.NoError(t, err)
		require.Equal(t, int64(1), info.PageID)
		require.Equal(t, domain.FlowTypeSAML, info.FlowType)

		claims, err := jwtx.Verify(info.Token, testSecret, jwtx.VerifyOptions{MaxAge: jwtx.Ages().Short})
		require.NoError(t, err)

		saml := claims.Map("saml")
		require.NotNil(t, saml)
		require.Equal(t, request, saml.String("request"))
		require.Equal(t, "relay-123", saml.String("relay"))
	})

	t.Run("outbound replays the stored request", func(t *testing.T) {
		info, err := sso.SamlIn(ctx, request, "relay-123")
		require.NoError(t, err)

		claims, err := jwtx.Verify(info.Token, testSecret, jwtx.VerifyOptions{})
		require.NoError(t, err)

		res, err := sso.FlowOut(ctx, claims, user)
		require.NoError(t, err)
		require.Equal(t, "https://intranet.example.com/acs", res.Redirect)
		require.Equal(t, "relay-123", res.RelayState)
		require.Empty(t, res.Token)

		decoded, err := base64.StdEncoding.DecodeString(res.SAMLResponse)
		require.NoError(t, err)
		require.Contains(t, string(decoded), "erin@example.com")
		require.Contains(t, string(decoded), `InResponseTo="_req-1"`)
	})

	t.Run("garbage request", func(t *testing.T) {
		_, err := sso.SamlIn(ctx, "not-a-request", "")
		require.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("unmatched destination host", func(t *testing.T) {
		foreign := base64.StdEncoding.EncodeToString([]byte(`<samlp:AuthnRequest
			xmlns:samlp="urn:oasis:names:tc:SAML:2.0:protocol"
			ID="_req-2" Version="2.0" IssueInstant="2026-08-28T10:00:00Z"
			AssertionConsumerServiceURL="https://stranger.example.net/acs">
		</samlp:AuthnRequest>`))

		_, err := sso.SamlIn(ctx, foreign, "")
		require.ErrorIs(t, err, ErrPageNotFound)
	})

	t.Run("localhost pins destination to page one", func(t *testing.T) {
		dev := newSSOService(t, st, "localhost")

		foreign := base64.StdEncoding.EncodeToString([]byte(`<samlp:AuthnRequest
			xmlns:samlp="urn:oasis:names:tc:SAML:2.0:protocol"
			ID="_req-3" Version="2.0" IssueInstant="2026-08-28T10:00:00Z"
			AssertionConsumerServiceURL="https://stranger.example.net/acs">
		</samlp:AuthnRequest>`))

		info, err := dev.SamlIn(ctx, foreign, "")
		require.NoError(t, err)
		require.Equal(t, int64(1), info.PageID)
	})
}

func testIdentityProvider(t *testing.T) *samlidp.IdentityProvider {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "gatehouse-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	idp, err := samlidp.New("https://sso.example.com/saml", certPEM, keyPEM)
	require.NoError(t, err)
	return idp
}
