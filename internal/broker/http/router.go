package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gatehouse-id/gatehouse/internal/broker/service"
	"github.com/gatehouse-id/gatehouse/internal/broker/store"
	"github.com/gatehouse-id/gatehouse/pkg/httpx"
	"github.com/gatehouse-id/gatehouse/pkg/slogx"
)

// antiTimingCeiling bounds the randomized delay on login-adjacent routes.
const antiTimingCeiling = 1500 * time.Millisecond

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	secret       string
	hostname     string
	frontendPort int
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store        store.Store
	UserService  *service.UserService
	AuthService  *service.AuthService
	SSOService   *service.SSOService
	AuditService *service.AuditService
}

func NewRouter(
	secret, hostname string,
	frontendPort int,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		secret:       secret,
		hostname:     hostname,
		frontendPort: frontendPort,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerSSO()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	// POST /login - password first factor. Anti-timing delay plus strict
	// per-IP+username limit against brute force.
	login := &LoginHandler{Users: r.UserService, Auth: r.AuthService}
	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(login,
			AntiTiming(antiTimingCeiling),
			httpx.RateLimitByIPAndFormField(httpx.StrictLimit, "username"),
		),
	)

	// POST /token - second-factor upgrade. The handler verifies the
	// first-factor bearer itself; see AuthTokenHandler.
	token := &AuthTokenHandler{
		Auth:         r.AuthService,
		Secret:       r.secret,
		Hostname:     r.hostname,
		FrontendPort: r.frontendPort,
	}
	r.Mux.Handle("POST /v1/auth/token",
		httpx.Chain(token,
			AntiTiming(antiTimingCeiling),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// GET /check - full gate chain probe.
	r.Mux.Handle("GET /v1/auth/check",
		httpx.Chain(http.HandlerFunc(CheckHandler),
			ParseAuthHeader(r.secret),
			RequireLogin,
			RequireAuthenticated(r.AuthService),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	// POST /totp/enroll - add a second-factor authenticator.
	enroll := &TOTPEnrollHandler{Auth: r.AuthService}
	r.Mux.Handle("POST /v1/auth/totp/enroll",
		httpx.Chain(enroll,
			ParseAuthHeader(r.secret),
			RequireLogin,
			RequireAuthenticated(r.AuthService),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerSSO() {
	flowIn := &FlowInHandler{SSO: r.SSOService, Auth: r.AuthService}
	r.Mux.Handle("GET /v1/sso/in",
		httpx.Chain(flowIn, httpx.RateLimitByIP(httpx.ModerateLimit)),
	)
	r.Mux.Handle("POST /v1/sso/in",
		httpx.Chain(flowIn, httpx.RateLimitByIP(httpx.ModerateLimit)),
	)

	flowOut := &FlowOutHandler{SSO: r.SSOService}
	r.Mux.Handle("GET /v1/sso/out",
		httpx.Chain(flowOut,
			ParseAuthHeader(r.secret),
			RequireLogin,
			ParseSSOHeader(r.secret),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	samlIn := &SamlInHandler{SSO: r.SSOService}
	r.Mux.Handle("GET /v1/sso/saml",
		httpx.Chain(samlIn, httpx.RateLimitByIP(httpx.ModerateLimit)),
	)
	r.Mux.Handle("POST /v1/sso/saml",
		httpx.Chain(samlIn, httpx.RateLimitByIP(httpx.ModerateLimit)),
	)

	metadata := &SamlMetadataHandler{
		SSO:    r.SSOService,
		SSOURL: fmt.Sprintf("https://%s/v1/sso/saml", r.hostname),
	}
	r.Mux.Handle("GET /v1/sso/saml/metadata",
		httpx.Chain(metadata, httpx.RateLimitByIP(httpx.LenientLimit)),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store))
}
