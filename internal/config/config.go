// Package config loads the relay configuration from the environment.
//
// Values are read from process environment variables; cmd loads an
// optional .env file via godotenv before calling Load.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults for optional settings.
const (
	DefaultHTTPAddr        = ":8080"
	DefaultMetricsAddr     = ":9090"
	DefaultCredentialsFile = "data/credentials.json"
	DefaultBodyLimit       = 10 << 20 // 10 MiB
	DefaultStateTTL        = 10 * time.Minute
)

// Config holds all recognized environment options.
type Config struct {
	// HTTP surface
	HTTPAddr  string
	BodyLimit int64

	// Google OAuth client
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Shared secret for POST /send (x-api-key header)
	APIKey string

	// Sender identity; request-supplied overrides are honored only
	// when AllowFromOverride is set.
	Sender            string
	SenderName        string
	AllowFromOverride bool

	// Credential persistence
	CredentialsFile string

	// Authorization flow
	AuthSecret          string
	AuthSuccessRedirect string
	AuthFailureRedirect string
	StateTTL            time.Duration

	// Metrics listener
	MetricsEnabled bool
	MetricsAddr    string

	Debug bool
}

// Load reads the configuration from the environment.
func Load() Config {
	return Config{
		HTTPAddr:            getEnvString("HTTP_ADDR", DefaultHTTPAddr),
		BodyLimit:           getEnvInt64("BODY_LIMIT", DefaultBodyLimit),
		GoogleClientID:      getEnvString("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:  getEnvString("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:   getEnvString("GOOGLE_REDIRECT_URL", ""),
		APIKey:              getEnvString("API_KEY", ""),
		Sender:              getEnvString("MAIL_FROM", ""),
		SenderName:          getEnvString("MAIL_FROM_NAME", ""),
		AllowFromOverride:   getEnvBool("ALLOW_FROM_OVERRIDE", false),
		CredentialsFile:     getEnvString("CREDENTIALS_FILE", DefaultCredentialsFile),
		AuthSecret:          getEnvString("AUTH_SECRET", ""),
		AuthSuccessRedirect: getEnvString("AUTH_SUCCESS_REDIRECT", ""),
		AuthFailureRedirect: getEnvString("AUTH_FAILURE_REDIRECT", ""),
		StateTTL:            getEnvDuration("STATE_TTL", DefaultStateTTL),
		MetricsEnabled:      getEnvBool("METRICS_ENABLED", true),
		MetricsAddr:         getEnvString("METRICS_ADDR", DefaultMetricsAddr),
		Debug:               getEnvBool("DEBUG", false),
	}
}

// ValidateOAuth checks the settings the authorization flow needs.
func (c Config) ValidateOAuth() error {
	var missing []string
	if c.GoogleClientID == "" {
		missing = append(missing, "GOOGLE_CLIENT_ID")
	}
	if c.GoogleClientSecret == "" {
		missing = append(missing, "GOOGLE_CLIENT_SECRET")
	}
	if c.GoogleRedirectURL == "" {
		missing = append(missing, "GOOGLE_REDIRECT_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Validate checks everything the relay server needs. Missing values
// here are fatal at startup rather than per-request.
func (c Config) Validate() error {
	if err := c.ValidateOAuth(); err != nil {
		return err
	}
	var missing []string
	if c.APIKey == "" {
		missing = append(missing, "API_KEY")
	}
	if c.Sender == "" {
		missing = append(missing, "MAIL_FROM")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnvString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(strings.TrimSpace(value))
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := time.ParseDuration(strings.TrimSpace(value))
		if err == nil {
			return parsed
		}
	}
	return fallback
}
