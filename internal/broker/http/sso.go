package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gatehouse-id/gatehouse/internal/broker/domain"
	"github.com/gatehouse-id/gatehouse/internal/broker/service"
	"github.com/gatehouse-id/gatehouse/pkg/httpx"
	"github.com/gatehouse-id/gatehouse/pkg/slogx"
)

// param reads a request parameter from the query string first, then the
// form body. Inbound flows accept both GET and POST.
func param(r *http.Request, key string) string {
	if v := r.URL.Query().Get(key); v != "" {
		return v
	}
	return r.PostFormValue(key)
}

// pageResponse wraps page metadata for anonymous flow responses.
type pageResponse struct {
	Page service.PageInfo `json:"page"`
}

// FlowInHandler serves GET|POST /v1/sso/in: the inbound JWT exchange.
// Params: id (page id), d (optional signed request from the page).
type FlowInHandler struct {
	SSO  *service.SSOService
	Auth *service.AuthService
}

func (h *FlowInHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	res, err := h.SSO.FlowIn(ctx, param(r, "id"), param(r, "d"))
	if err != nil {
		writeFlowInError(w, log, err)
		return
	}

	if res.User == nil {
		httpx.WriteJSON(w, http.StatusOK, pageResponse{Page: res.Page})
		return
	}

	// The page vouched for a subject: continue as an implicit first-factor
	// login for that account.
	token, err := h.Auth.LoginToken(ctx, *res.User)
	if err != nil {
		log.Error("implicit login token signing failed", "err", err)
		httpx.WriteText(w, http.StatusBadRequest, err.Error())
		return
	}

	httpx.WriteJSON(w, http.StatusOK, tokenResponse{
		Token:    token,
		Username: res.User.Username,
		Factor:   1,
		Page:     &res.Page,
	})
}

func writeFlowInError(w http.ResponseWriter, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		httpx.WriteText(w, http.StatusBadRequest, "Invalid flow request - missing parameters")
	case errors.Is(err, service.ErrPageNotFound):
		httpx.WriteText(w, http.StatusNotFound, "Website ID not found")
	case errors.Is(err, service.ErrSignedRequestsOnly):
		httpx.WriteText(w, http.StatusForbidden, "This website is configured to only allow signed login requests")
	case errors.Is(err, service.ErrSignedRequest):
		// Deliberately informative: integrators debug their page-side
		// signing against this text.
		httpx.WriteText(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrInvalidSubject):
		httpx.WriteText(w, http.StatusBadRequest, "Subject is not a valid email address")
	case errors.Is(err, service.ErrAutoRegisterFailed):
		httpx.WriteText(w, http.StatusInternalServerError, "Creating user automatically failed")
	case errors.Is(err, service.ErrSigningFailed):
		httpx.WriteText(w, http.StatusInternalServerError, "Signing failed")
	default:
		log.Error("inbound flow failed", "err", err)
		httpx.WriteText(w, http.StatusInternalServerError, "Internal server error")
	}
}

// FlowOutHandler serves GET /v1/sso/out: completes an exchange for a signed
// in user. Runs behind ParseAuthHeader + RequireLogin + ParseSSOHeader.
type FlowOutHandler struct {
	SSO *service.SSOService
}

func (h *FlowOutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	ssoClaims := SSORequestFrom(ctx)
	if ssoClaims == nil {
		httpx.WriteText(w, http.StatusBadRequest, "Invalid session JWT")
		return
	}

	ident, _ := IdentityFrom(ctx)
	res, err := h.SSO.FlowOut(ctx, ssoClaims, domain.User{
		ID:       ident.ID,
		Username: ident.Username,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSubjectMismatch):
			httpx.WriteText(w, http.StatusForbidden, "The website needs you to be explicitly signed into the account it requested")
		case errors.Is(err, service.ErrInvalidSession):
			httpx.WriteText(w, http.StatusBadRequest, "Invalid session JWT")
		case errors.Is(err, service.ErrSigningFailed):
			httpx.WriteText(w, http.StatusInternalServerError, "Signing failed")
		default:
			log.Error("outbound flow failed", "err", err)
			httpx.WriteText(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, res)
}

// SamlInHandler serves GET|POST /v1/sso/saml: the inbound SAML exchange.
// Params: SAMLRequest, RelayState.
type SamlInHandler struct {
	SSO *service.SSOService
}

func (h *SamlInHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	info, err := h.SSO.SamlIn(ctx, param(r, "SAMLRequest"), param(r, "RelayState"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest):
			httpx.WriteText(w, http.StatusBadRequest, "Invalid SAML request")
		case errors.Is(err, service.ErrPageNotFound):
			httpx.WriteText(w, http.StatusNotFound, "No website matches to the requested destination host")
		case errors.Is(err, service.ErrSigningFailed):
			httpx.WriteText(w, http.StatusInternalServerError, "Signing failed")
		default:
			log.Error("saml inbound flow failed", "err", err)
			httpx.WriteText(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, pageResponse{Page: info})
}

// SamlMetadataHandler serves GET /v1/sso/saml/metadata: the IdP entity
// descriptor relying parties configure against.
type SamlMetadataHandler struct {
	SSO *service.SSOService

	// SSOURL is the absolute URL of the SAML single sign-on endpoint
	// advertised in the metadata.
	SSOURL string
}

func (h *SamlMetadataHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := slogx.FromContext(r.Context())

	metadata, err := h.SSO.Metadata(h.SSOURL)
	if err != nil {
		log.Error("metadata rendering failed", "err", err)
		httpx.WriteText(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(metadata))
}
