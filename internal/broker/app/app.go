package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gatehouse-id/gatehouse/internal/broker/domain"
	httpapi "github.com/gatehouse-id/gatehouse/internal/broker/http"
	"github.com/gatehouse-id/gatehouse/internal/broker/service"
	"github.com/gatehouse-id/gatehouse/internal/broker/store"
	"github.com/gatehouse-id/gatehouse/internal/broker/store/drivers/sqlite"
	"github.com/gatehouse-id/gatehouse/pkg/cryptox"
	"github.com/gatehouse-id/gatehouse/pkg/samlidp"
	"github.com/gatehouse-id/gatehouse/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the broker with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db    store.Store
	pages *domain.PageRegistry
	idp   *samlidp.IdentityProvider

	userService  *service.UserService
	authService  *service.AuthService
	ssoService   *service.SSOService
	auditService *service.AuditService

	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	if cfg.Secret == "" {
		return nil, errors.New("BROKER_SECRET is required")
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "gatehouse",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	// Set pepper path for password hashing
	cryptox.SetPepperPath(app.cfg.PepperFile)

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	pages, err := LoadPages(app.cfg.PagesFile)
	if err != nil {
		_ = app.db.Close()
		return nil, fmt.Errorf("failed to load page registry: %w", err)
	}
	app.pages = pages
	app.logger.Info("page registry loaded", "pages", pages.Len())

	idp, err := app.initSAML()
	if err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initServices(pages, idp)
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.logger.Info("broker starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down broker...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("broker stopped")
	return nil
}

// initDatabase initializes the database and applies migrations.
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initSAML loads the response-signing keypair.
func (app *Application) initSAML() (*samlidp.IdentityProvider, error) {
	certPEM, err := os.ReadFile(app.cfg.SAMLCertFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read SAML certificate: %w", err)
	}
	keyPEM, err := os.ReadFile(app.cfg.SAMLKeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read SAML key: %w", err)
	}

	idp, err := samlidp.New(app.cfg.Issuer, certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SAML identity provider: %w", err)
	}

	app.idp = idp
	return idp, nil
}

// initServices initializes all business logic services.
func (app *Application) initServices(pages *domain.PageRegistry, idp *samlidp.IdentityProvider) {
	app.userService = &service.UserService{Store: app.db}
	app.authService = &service.AuthService{
		Store:      app.db,
		Secret:     app.cfg.Secret,
		TOTPIssuer: app.cfg.Issuer,
	}
	app.auditService = &service.AuditService{Store: app.db}
	app.ssoService = &service.SSOService{
		Pages:    pages,
		Store:    app.db,
		Audit:    app.auditService,
		IdP:      idp,
		Secret:   app.cfg.Secret,
		Hostname: app.cfg.Hostname,
	}
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.cfg.Secret,
		app.cfg.Hostname,
		app.cfg.FrontendPort,
		BuildVersion,
		app.db,
		app.logger,
	)

	router.UserService = app.userService
	router.AuthService = app.authService
	router.SSOService = app.ssoService
	router.AuditService = app.auditService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
