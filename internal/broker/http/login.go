package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gatehouse-id/gatehouse/internal/broker/service"
	"github.com/gatehouse-id/gatehouse/pkg/httpx"
	"github.com/gatehouse-id/gatehouse/pkg/slogx"
)

// tokenResponse is the shared shape of both factor responses. Page rides
// along when the login was initiated by an inbound exchange.
type tokenResponse struct {
	Token    string            `json:"token"`
	Username string            `json:"username"`
	Factor   int               `json:"factor"`
	Page     *service.PageInfo `json:"page,omitempty"`
}

// LoginHandler serves POST /v1/auth/login: the password first factor.
// Accepts application/x-www-form-urlencoded with username and password.
type LoginHandler struct {
	Users *service.UserService
	Auth  *service.AuthService
}

func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	if err := r.ParseForm(); err != nil {
		httpx.WriteText(w, http.StatusBadRequest, "Invalid form body")
		return
	}

	username := strings.TrimSpace(r.Form.Get("username"))
	password := r.Form.Get("password")
	if username == "" || password == "" {
		httpx.WriteText(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	user, err := h.Users.Authenticate(ctx, username, password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			httpx.WriteText(w, http.StatusForbidden, "Invalid username or password")
			return
		}
		log.Error("login failed", "err", err)
		httpx.WriteText(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	token, err := h.Auth.LoginToken(ctx, user)
	if err != nil {
		log.Error("login token signing failed", "err", err)
		httpx.WriteText(w, http.StatusBadRequest, err.Error())
		return
	}

	httpx.WriteJSON(w, http.StatusOK, tokenResponse{
		Token:    token,
		Username: user.Username,
		Factor:   1,
	})
}
