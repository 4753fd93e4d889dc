package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/gatehouse-id/gatehouse/internal/broker/domain"
	"github.com/gatehouse-id/gatehouse/internal/broker/store"
	"github.com/gatehouse-id/gatehouse/pkg/jwtx"
	"github.com/gatehouse-id/gatehouse/pkg/samlidp"
	"github.com/gatehouse-id/gatehouse/pkg/slogx"
)

// SSOService brokers login between registered relying-party pages and local
// accounts. Inbound exchanges identify which page is asking (and optionally
// which account it wants); outbound exchanges issue the page-facing
// credential once the user is fully authenticated.
type SSOService struct {
	Pages *domain.PageRegistry
	Store store.Store
	Audit *AuditService
	IdP   *samlidp.IdentityProvider

	// Secret signs the broker's own correlation tokens.
	Secret string

	// Hostname is the broker's public hostname. "localhost" switches the
	// SAML inbound flow into a development mode that pins the destination
	// to page 1.
	Hostname string
}

// PageInfo is the handshake payload describing the page a flow runs for.
// Token is the correlation token the client must echo back on the way out.
type PageInfo struct {
	PageID   int64  `json:"pageId"`
	Name     string `json:"name"`
	Branding string `json:"branding,omitempty"`
	Token    string `json:"token"`
	FlowType string `json:"flowType"`
	Username string `json:"username,omitempty"`
}

// FlowInResult is the outcome of an inbound exchange. User is non-nil when
// the request carried a valid subject and the account was found or
// auto-registered; the caller then continues with a first-factor login for
// that account.
type FlowInResult struct {
	Page PageInfo
	User *domain.User
}

// FlowOutResult is the page-facing credential of an outbound exchange.
// JWT flows fill Redirect and Token; SAML flows fill SAMLResponse,
// RelayState and Redirect.
type FlowOutResult struct {
	Redirect     string `json:"redirect"`
	Token        string `json:"token,omitempty"`
	SAMLResponse string `json:"SAMLResponse,omitempty"`
	RelayState   string `json:"RelayState,omitempty"`
}

// FlowIn handles an inbound JWT exchange for page rawID. data is the
// optional signed request from the page, verified against the page's shared
// secret with a Short age bound and the page name as issuer. Unsigned
// requests pass unless the page demands signatures.
func (s *SSOService) FlowIn(ctx context.Context, rawID, data string) (FlowInResult, error) {
	l := slogx.FromContext(ctx)

	pageID, err := strconv.ParseInt(rawID, 10, 64)
	if rawID == "" || err != nil {
		return FlowInResult{}, ErrInvalidRequest
	}

	page, err := s.Pages.Get(pageID)
	if err != nil {
		return FlowInResult{}, ErrPageNotFound
	}

	if data == "" && page.SignedRequestsOnly {
		return FlowInResult{}, ErrSignedRequestsOnly
	}

	var input jwtx.Claims
	if data != "" {
		input, err = jwtx.Verify(data, page.Secret, jwtx.VerifyOptions{
			MaxAge: jwtx.Ages().Short,
			Issuer: page.Name,
		})
		if err != nil {
			// A bad signature rejects the whole exchange, never falls back
			// to an anonymous flow.
			return FlowInResult{}, fmt.Errorf("%w: %v", ErrSignedRequest, err)
		}
	}

	claims := jwtx.Claims{
		"pageId": pageID,
		"jwt":    true,
	}
	if input.Has("sub") {
		claims["sub"] = input["sub"]
	}

	token, err := jwtx.Sign(claims, s.Secret, jwtx.Medium)
	if err != nil {
		return FlowInResult{}, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}

	res := FlowInResult{Page: PageInfo{
		PageID:   pageID,
		Name:     page.Name,
		Branding: page.Branding,
		Token:    token,
		FlowType: domain.FlowTypeJWT,
	}}

	if !input.Has("sub") {
		return res, nil
	}

	subject := input.String("sub")
	if !IsEmail(subject) {
		return FlowInResult{}, ErrInvalidSubject
	}
	res.Page.Username = subject

	user, err := s.Store.Users().GetUserByUsername(ctx, subject)
	switch {
	case err == nil:
		if err := s.Audit.Add(ctx, user.ID, domain.AuditObjectPage, domain.AuditActionRequest, page.Name); err != nil {
			return FlowInResult{}, err
		}

	case errors.Is(err, store.ErrNotFound):
		// Unknown account requested by a trusted page: register it on the
		// fly, passwordless.
		id, err := s.Store.Users().CreateUser(ctx, subject, "")
		if err != nil {
			return FlowInResult{}, fmt.Errorf("%w: %v", ErrAutoRegisterFailed, err)
		}
		user, err = s.Store.Users().GetUserByID(ctx, id)
		if err != nil {
			return FlowInResult{}, fmt.Errorf("%w: %v", ErrAutoRegisterFailed, err)
		}
		l.Info("auto-registered account for inbound exchange",
			slog.String("username", subject),
			slog.String("page", page.Name),
		)
		if err := s.Audit.Add(ctx, user.ID, domain.AuditObjectPage, domain.AuditActionRegistration, page.Name); err != nil {
			return FlowInResult{}, err
		}

	default:
		return FlowInResult{}, err
	}

	res.User = &user
	return res, nil
}

// FlowOut completes an exchange for a fully authenticated user. ssoClaims is
// the verified correlation token minted by FlowIn or SamlIn.
func (s *SSOService) FlowOut(ctx context.Context, ssoClaims jwtx.Claims, user domain.User) (FlowOutResult, error) {
	pageID, ok := ssoClaims.Int("pageId")
	if !ok {
		return FlowOutResult{}, ErrInvalidSession
	}
	page, err := s.Pages.Get(pageID)
	if err != nil {
		return FlowOutResult{}, ErrInvalidSession
	}

	// A page may pin the exchange to a specific account; the signed-in user
	// must be exactly that account.
	if ssoClaims.Has("sub") && !strings.EqualFold(user.Username, ssoClaims.String("sub")) {
		return FlowOutResult{}, ErrSubjectMismatch
	}

	saml := ssoClaims.Map("saml")
	if !ssoClaims.Bool("jwt") && saml == nil {
		return FlowOutResult{}, ErrInvalidSession
	}

	if err := s.Audit.Add(ctx, user.ID, domain.AuditObjectPage, domain.AuditActionLogin, page.Name); err != nil {
		return FlowOutResult{}, err
	}

	if ssoClaims.Bool("jwt") {
		return s.flowOutJWT(ctx, page, user)
	}
	return s.flowOutSAML(saml, user)
}

func (s *SSOService) flowOutJWT(ctx context.Context, page domain.Page, user domain.User) (FlowOutResult, error) {
	token, err := jwtx.Sign(jwtx.Claims{
		"sub": user.Username,
		"aud": page.Name,
	}, page.Secret, jwtx.Short)
	if err != nil {
		return FlowOutResult{}, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}

	if err := s.Audit.Add(ctx, user.ID, domain.AuditObjectPage, domain.AuditActionLogin, page.Name); err != nil {
		return FlowOutResult{}, err
	}

	return FlowOutResult{
		Redirect: page.Redirect,
		Token:    token,
	}, nil
}

func (s *SSOService) flowOutSAML(saml jwtx.Claims, user domain.User) (FlowOutResult, error) {
	req, err := samlidp.ParseAuthnRequest(saml.String("request"))
	if err != nil {
		return FlowOutResult{}, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	destination, err := samlidp.RequestDestination(req)
	if err != nil {
		return FlowOutResult{}, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	response, err := s.IdP.BuildResponse(req, samlidp.Subject{
		ID:          strconv.FormatInt(user.ID, 10),
		DisplayName: user.Username,
	}, destination)
	if err != nil {
		return FlowOutResult{}, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}

	return FlowOutResult{
		Redirect:     destination,
		SAMLResponse: response,
		RelayState:   saml.String("relay"),
	}, nil
}

// SamlIn handles an inbound SAML AuthnRequest. The destination host is
// matched against the registered pages; the stored request and relay state
// are replayed through FlowOut once the user finishes authenticating.
func (s *SSOService) SamlIn(ctx context.Context, samlRequest, relayState string) (PageInfo, error) {
	req, err := samlidp.ParseAuthnRequest(samlRequest)
	if err != nil {
		return PageInfo{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	destination, _ := samlidp.RequestDestination(req)
	if s.Hostname == "localhost" {
		// Development mode: SP-configured destinations never point at
		// localhost, so pin the flow to the first page.
		if p, err := s.Pages.Get(1); err == nil {
			destination = p.Redirect
		}
	}
	if destination == "" {
		return PageInfo{}, ErrInvalidRequest
	}

	destURL, err := url.Parse(destination)
	if err != nil {
		return PageInfo{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	page, ok := s.Pages.MatchRedirectHost(destURL.Hostname())
	if !ok {
		return PageInfo{}, ErrPageNotFound
	}

	token, err := jwtx.Sign(jwtx.Claims{
		"pageId": page.ID,
		"saml": map[string]any{
			"request": samlRequest,
			"relay":   relayState,
		},
	}, s.Secret, jwtx.Short)
	if err != nil {
		return PageInfo{}, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}

	return PageInfo{
		PageID:   page.ID,
		Name:     page.Name,
		Branding: page.Branding,
		Token:    token,
		FlowType: domain.FlowTypeSAML,
	}, nil
}

// Metadata renders the broker's IdP metadata document advertising ssoURL as
// the single sign-on endpoint.
func (s *SSOService) Metadata(ssoURL string) (string, error) {
	return s.IdP.Metadata(ssoURL)
}
