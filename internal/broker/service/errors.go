package service

import "errors"

var (
	// ErrInvalidRequest reports missing or malformed flow parameters.
	ErrInvalidRequest = errors.New("invalid_request")

	// ErrInvalidCredentials reports a failed username/password check.
	ErrInvalidCredentials = errors.New("invalid_credentials")

	// ErrInvalidOTP reports a wrong or missing one-time code for a user with
	// an enrolled second-factor authenticator.
	ErrInvalidOTP = errors.New("invalid_otp")

	// ErrPageNotFound reports a page id or destination host no registered
	// relying party matches.
	ErrPageNotFound = errors.New("page_not_found")

	// ErrSignedRequestsOnly reports an unsigned inbound exchange against a
	// page configured to require signed requests.
	ErrSignedRequestsOnly = errors.New("signed_requests_only")

	// ErrSignedRequest wraps a page-secret verification failure on an inbound
	// signed exchange. The wrapped text is surfaced to the caller.
	ErrSignedRequest = errors.New("signed request rejected")

	// ErrInvalidSubject reports an inbound sub claim that is not an email
	// address.
	ErrInvalidSubject = errors.New("invalid_subject")

	// ErrSubjectMismatch reports an outbound exchange where the signed-in
	// account differs from the one the relying party requested.
	ErrSubjectMismatch = errors.New("subject_mismatch")

	// ErrNotSignedIn reports a missing first-factor identity.
	ErrNotSignedIn = errors.New("not_signed_in")

	// ErrInvalidSession reports a correlation token that carries neither a
	// jwt nor a saml flow payload, or references an unknown page.
	ErrInvalidSession = errors.New("invalid_session")

	// ErrAutoRegisterFailed reports a failed implicit account creation during
	// an inbound exchange.
	ErrAutoRegisterFailed = errors.New("auto_register_failed")

	// ErrSigningFailed reports a broker-side token signing failure.
	ErrSigningFailed = errors.New("signing_failed")
)
