package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gatehouse-id/gatehouse/internal/broker/service"
	"github.com/gatehouse-id/gatehouse/internal/broker/store"
	"github.com/gatehouse-id/gatehouse/pkg/httpx"
	"github.com/gatehouse-id/gatehouse/pkg/jwtx"
	"github.com/gatehouse-id/gatehouse/pkg/slogx"
)

// AuthTokenHandler serves POST /v1/auth/token: the second-factor upgrade.
// The first-factor token arrives as the Authorization bearer; users with a
// TOTP authenticator enrolled must also supply a valid otp form field.
//
// When the form carries an authorizationToken flag the response is a script
// payload posting the token to the configured frontend origin, for the
// cross-origin popup flow.
type AuthTokenHandler struct {
	Auth *service.AuthService

	Secret       string
	Hostname     string
	FrontendPort int
}

func (h *AuthTokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID, ok := h.loginSubject(r)
	if !ok {
		httpx.WriteText(w, http.StatusForbidden, "User needs to be logged in to finish authentication")
		return
	}

	if err := r.ParseForm(); err != nil {
		httpx.WriteText(w, http.StatusBadRequest, "Invalid form body")
		return
	}

	token, user, err := h.Auth.AuthToken(ctx, userID, strings.TrimSpace(r.Form.Get("otp")))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidOTP):
			httpx.WriteText(w, http.StatusForbidden, "Invalid one-time code")
		case errors.Is(err, store.ErrNotFound):
			httpx.WriteText(w, http.StatusBadRequest, "Unknown user")
		default:
			log.Error("auth token issuance failed", "err", err)
			httpx.WriteText(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	response := tokenResponse{
		Token:    token,
		Username: user.Username,
		Factor:   2,
	}

	if r.Form.Get("authorizationToken") != "" {
		payload, err := json.Marshal(response)
		if err != nil {
			httpx.WriteText(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		origin := fmt.Sprintf("https://%s:%d", h.Hostname, h.FrontendPort)
		script := fmt.Sprintf(
			"<script>const authData = JSON.parse('%s'); window.parent.postMessage(authData, '%s');</script>",
			payload, origin,
		)
		httpx.WriteHTML(w, http.StatusOK, script)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, response)
}

// loginSubject verifies the first-factor bearer and extracts its integer
// subject. Medium age bound: this is the continuation of a login, not a
// request round-trip.
func (h *AuthTokenHandler) loginSubject(r *http.Request) (int64, bool) {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if header == "" || len(parts) != 2 || parts[0] != "Bearer" {
		return 0, false
	}

	claims, err := jwtx.Verify(parts[1], h.Secret, jwtx.VerifyOptions{
		MaxAge: jwtx.Ages().Medium,
	})
	if err != nil {
		return 0, false
	}

	return claims.Subject()
}
