package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Secret   string // Required: broker token signing secret
	Hostname string // Public hostname; "localhost" enables SAML dev mode

	FrontendPort int    // Port of the frontend origin the popup flow posts to
	Issuer       string // Name shown in authenticator apps and SAML metadata

	DatabaseFile string // Path to SQLite database file (default: ./broker.db)
	PagesFile    string // Path to the relying-party page registry YAML
	PepperFile   string // Path to file containing pepper for password hashing
	SAMLCertFile string // Path to PEM certificate for SAML response signing
	SAMLKeyFile  string // Path to PEM private key for SAML response signing

	Env                 string        // Environment (dev, staging, prod) (default: dev)
	LogLevel            string        // Log level (debug, info, warn, error) (default: info)
	LogFormat           string        // Log format (json, text) (default: json)
	Port                int           // HTTP server port (default: 8443)
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)
}

func LoadConfig() Config {
	return Config{
		Secret:       os.Getenv("BROKER_SECRET"),
		Hostname:     getEnvOrDefault("BROKER_DOMAIN", "localhost"),
		FrontendPort: getEnvIntOrDefault("BROKER_FRONTEND_PORT", 8080),
		Issuer:       getEnvOrDefault("BROKER_ISSUER", "gatehouse"),

		DatabaseFile: getEnvOrDefault("BROKER_DATABASE_FILE", "broker.db"),
		PagesFile:    getEnvOrDefault("BROKER_PAGES_FILE", "pages.yaml"),
		PepperFile:   getEnvOrDefault("BROKER_PEPPER_FILE", "pepper"),
		SAMLCertFile: getEnvOrDefault("BROKER_SAML_CERT_FILE", "server.crt"),
		SAMLKeyFile:  getEnvOrDefault("BROKER_SAML_KEY_FILE", "server.key"),

		Env:                 getEnvOrDefault("ENV", "dev"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                getEnvIntOrDefault("PORT", 8443),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	return defaultValue
}
