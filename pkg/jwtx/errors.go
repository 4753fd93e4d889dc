package jwtx

import "errors"

var (
	// ErrNoSecret is returned when signing or verifying without a secret.
	ErrNoSecret = errors.New("jwtx: signing secret is empty")

	// ErrMalformed reports a token that is not a parseable compact JWT.
	ErrMalformed = errors.New("jwtx: malformed token")

	// ErrInvalidSignature reports a signature/secret mismatch.
	ErrInvalidSignature = errors.New("jwtx: invalid signature")

	// ErrExpired reports a token past its exp claim or older than the
	// verifier's max age.
	ErrExpired = errors.New("jwtx: token expired")

	// ErrIssuerMismatch reports an issuer constraint that did not match.
	ErrIssuerMismatch = errors.New("jwtx: issuer mismatch")
)
