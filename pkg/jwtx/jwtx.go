// Package jwtx signs and verifies the purpose-scoped HS256 tokens that every
// hop across an untrusted boundary is wrapped in. Tokens carry an arbitrary
// claims map plus issued-at and expiry derived from a fixed expiry class;
// the verifier decides how old a token may be and which issuer it will
// accept. Replay prevention is the caller's responsibility.
package jwtx

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Class is a named token lifetime tier. Short covers request/response
// round-trips, Medium a first-factor session continuation, Long a fully
// authenticated session.
type Class int

const (
	Short Class = iota
	Medium
	Long
)

// AgeTable is the fixed duration table, exposed so callers can assert policy
// against the same values the signer uses.
type AgeTable struct {
	Short  time.Duration
	Medium time.Duration
	Long   time.Duration
}

// Ages returns the duration each expiry class maps to.
func Ages() AgeTable {
	return AgeTable{
		Short:  5 * time.Minute,
		Medium: 20 * time.Minute,
		Long:   24 * time.Hour,
	}
}

// Duration resolves the class against the age table. Unknown classes resolve
// to Short, the most conservative tier.
func (c Class) Duration() time.Duration {
	ages := Ages()
	switch c {
	case Medium:
		return ages.Medium
	case Long:
		return ages.Long
	default:
		return ages.Short
	}
}

// Sign wraps claims in an HS256 compact JWT. Issued-at and expiry are set
// here; any iat/exp already present in claims is overwritten. The claims map
// is not mutated.
func Sign(claims Claims, secret string, class Class) (string, error) {
	if secret == "" {
		return "", ErrNoSecret
	}

	now := time.Now()
	mc := make(jwt.MapClaims, len(claims)+2)
	for k, v := range claims {
		mc[k] = v
	}
	mc["iat"] = now.Unix()
	mc["exp"] = now.Add(class.Duration()).Unix()

	return jwt.NewWithClaims(jwt.SigningMethodHS256, mc).SignedString([]byte(secret))
}

// VerifyOptions constrain what the verifier will accept beyond a valid
// signature. MaxAge is measured against the iat claim, matching the
// verifier-side expiry-class policy. An empty Issuer enforces nothing.
type VerifyOptions struct {
	MaxAge time.Duration
	Issuer string
}

// Verify checks the signature and time bounds of a token and returns its
// claims. The signature comparison is constant time (HMAC compare inside
// golang-jwt), so verification latency leaks nothing about the secret.
func Verify(token, secret string, opts VerifyOptions) (Claims, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}

	parsed, err := jwt.Parse(
		token,
		func(*jwt.Token) (any, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return nil, mapParseError(err)
	}

	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrMalformed
	}

	if opts.MaxAge > 0 {
		iat, err := mc.GetIssuedAt()
		if err != nil || iat == nil {
			return nil, ErrMalformed
		}
		if time.Since(iat.Time) > opts.MaxAge {
			return nil, ErrExpired
		}
	}

	if opts.Issuer != "" {
		iss, err := mc.GetIssuer()
		if err != nil || iss != opts.Issuer {
			return nil, ErrIssuerMismatch
		}
	}

	return Claims(mc), nil
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	default:
		return err
	}
}
