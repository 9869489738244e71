package config

import (
	"os"
	"strconv"
	"time"
)

// Config captures everything the compliance core reads at startup. FromEnv
// keeps main lean; hosts embedding the core as a library can build a Config
// directly.
type Config struct {
	Addr string

	// Session manager
	SessionTimeout    time.Duration
	SingleSessionMode bool
	SweepInterval     time.Duration

	// Consent & retention engine
	ConsentValidityDays  int
	DefaultRetentionDays int

	// Data minimization rules (action -> allowed fields). Merged over the
	// built-in defaults at startup; never replaced wholesale so the default
	// actions stay covered.
	MinimizationRules map[string][]string

	// Failed-authentication lockout
	LockoutMaxAttempts int
	LockoutWindow      time.Duration

	// Share links
	ShareLinkSigningKey string
	ShareLinkMaxTTL     time.Duration

	// Backing stores. Empty values select the in-memory implementations.
	PostgresDSN string
	RedisURL    string
}

// Defaults per the compliance policy: 30 minute sessions, 365 day consent
// validity, 7 year (2555 day) retention.
const (
	DefaultSessionTimeout       = 30 * time.Minute
	DefaultSweepInterval        = time.Minute
	DefaultConsentValidityDays  = 365
	DefaultRetentionDays        = 2555
	DefaultLockoutMaxAttempts   = 5
	DefaultLockoutWindow        = 15 * time.Minute
	DefaultShareLinkMaxTTL      = 24 * time.Hour
)

// FromEnv builds a Config from CAREGATE_* environment variables, falling
// back to the documented defaults.
func FromEnv() Config {
	cfg := Config{
		Addr:                 envString("CAREGATE_ADDR", ":8080"),
		SessionTimeout:       envMinutes("CAREGATE_SESSION_TIMEOUT_MINUTES", DefaultSessionTimeout),
		SingleSessionMode:    os.Getenv("CAREGATE_SINGLE_SESSION_MODE") == "true",
		SweepInterval:        envMinutes("CAREGATE_SWEEP_INTERVAL_MINUTES", DefaultSweepInterval),
		ConsentValidityDays:  envInt("CAREGATE_CONSENT_VALIDITY_DAYS", DefaultConsentValidityDays),
		DefaultRetentionDays: envInt("CAREGATE_RETENTION_DAYS", DefaultRetentionDays),
		LockoutMaxAttempts:   envInt("CAREGATE_LOCKOUT_MAX_ATTEMPTS", DefaultLockoutMaxAttempts),
		LockoutWindow:        envMinutes("CAREGATE_LOCKOUT_WINDOW_MINUTES", DefaultLockoutWindow),
		ShareLinkSigningKey:  os.Getenv("CAREGATE_SHARELINK_SIGNING_KEY"),
		ShareLinkMaxTTL:      envMinutes("CAREGATE_SHARELINK_MAX_TTL_MINUTES", DefaultShareLinkMaxTTL),
		PostgresDSN:          os.Getenv("CAREGATE_POSTGRES_DSN"),
		RedisURL:             os.Getenv("CAREGATE_REDIS_URL"),
	}
	return cfg
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envMinutes(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Minute
}
