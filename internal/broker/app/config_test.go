package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	require.Equal(t, "localhost", cfg.Hostname)
	require.Equal(t, 8080, cfg.FrontendPort)
	require.Equal(t, "gatehouse", cfg.Issuer)
	require.Equal(t, "broker.db", cfg.DatabaseFile)
	require.Equal(t, "pages.yaml", cfg.PagesFile)
	require.Equal(t, 8443, cfg.Port)
	require.Equal(t, 10*time.Second, cfg.ShutdownGracePeriod)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("BROKER_SECRET", "s3cret")
	t.Setenv("BROKER_DOMAIN", "sso.example.com")
	t.Setenv("BROKER_FRONTEND_PORT", "9443")
	t.Setenv("PORT", "1234")
	t.Setenv("SHUTDOWN_GRACE_PERIOD", "30s")

	cfg := LoadConfig()
	require.Equal(t, "s3cret", cfg.Secret)
	require.Equal(t, "sso.example.com", cfg.Hostname)
	require.Equal(t, 9443, cfg.FrontendPort)
	require.Equal(t, 1234, cfg.Port)
	require.Equal(t, 30*time.Second, cfg.ShutdownGracePeriod)
}

func TestLoadConfigBadNumbers(t *testing.T) {
	t.Setenv("PORT", "not-a-port")
	t.Setenv("SHUTDOWN_GRACE_PERIOD", "soon")

	cfg := LoadConfig()
	require.Equal(t, 8443, cfg.Port)
	require.Equal(t, 10*time.Second, cfg.ShutdownGracePeriod)
}
