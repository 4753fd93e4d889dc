package http

import (
	"net/http"
	"strings"

	"github.com/gatehouse-id/gatehouse/internal/broker/service"
	"github.com/gatehouse-id/gatehouse/pkg/httpx"
	"github.com/gatehouse-id/gatehouse/pkg/slogx"
)

// TOTPEnrollHandler serves POST /v1/auth/totp/enroll. Runs behind the full
// gate chain: only a fully authenticated session may add a second factor.
// The secret and provisioning URL are returned exactly once, at enrollment.
type TOTPEnrollHandler struct {
	Auth *service.AuthService
}

type totpEnrollResponse struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Secret string `json:"secret"`
	URL    string `json:"url"`
}

func (h *TOTPEnrollHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	ident, ok := IdentityFrom(ctx)
	if !ok {
		httpx.WriteText(w, http.StatusForbidden, "User not logged in")
		return
	}

	if err := r.ParseForm(); err != nil {
		httpx.WriteText(w, http.StatusBadRequest, "Invalid form body")
		return
	}

	label := strings.TrimSpace(r.Form.Get("label"))
	if label == "" {
		label = "authenticator"
	}

	auth, provisioningURL, err := h.Auth.EnrollTOTP(ctx, ident.ID, label)
	if err != nil {
		log.Error("totp enrollment failed", "err", err)
		httpx.WriteText(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, totpEnrollResponse{
		ID:     auth.ID,
		Label:  auth.Label,
		Secret: auth.Secret,
		URL:    provisioningURL,
	})
}
