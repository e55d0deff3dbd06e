package authcore

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/namesmith/authcore/rate"
	"github.com/namesmith/authcore/token"
)

// Config is the full engine configuration. Instances are validated during
// Build and treated as immutable afterwards.
type Config struct {
	Token     TokenConfig
	Session   SessionConfig
	Lockout   LockoutConfig
	RateLimit RateLimitConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
	Cookies   CookieConfig

	// RedisPrefix namespaces every key this module writes.
	RedisPrefix string
	// StoreTimeout bounds each shared-store round-trip so a slow store
	// cannot stall request handling indefinitely.
	StoreTimeout time.Duration
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig configures the credential codec.
type TokenConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig configures the session store.
type SessionConfig struct {
	Lifetime           time.Duration
	MaxSessionsPerUser int
	// EnableFallback engages the process-local session store when the
	// shared store is unreachable. Reduced-guarantee mode; see package
	// session docs.
	EnableFallback bool
}

// LockoutConfig configures brute-force lockout.
type LockoutConfig struct {
	Threshold int
	Window    time.Duration
	Duration  time.Duration
	// TrackOrigin additionally counts failures per network origin, so one
	// origin guessing across many accounts is also shut down.
	TrackOrigin bool
}

// RateLimitConfig configures the tiered request limiter.
type RateLimitConfig struct {
	Enabled bool
	Tiers   map[rate.Tier]rate.TierLimits
}

// AuditConfig controls audit dispatcher buffering behavior.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig enables the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// CookieConfig holds the attributes applied to the credential cookies.
// The cookie and header names themselves are fixed, deployment-wide
// constants in the middleware package.
type CookieConfig struct {
	Secure   bool
	SameSite http.SameSite
	Domain   string
	Path     string
}

/*
====================================
DEFAULTS & PRESETS
====================================
*/

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:     5 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "ed25519",
			Issuer:        "authcore",
		},
		Session: SessionConfig{
			Lifetime:           7 * 24 * time.Hour,
			MaxSessionsPerUser: 5,
			EnableFallback:     true,
		},
		Lockout: LockoutConfig{
			Threshold:   5,
			Window:      15 * time.Minute,
			Duration:    15 * time.Minute,
			TrackOrigin: true,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Tiers:   rate.DefaultTiers(),
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Cookies: CookieConfig{
			Secure:   true,
			SameSite: http.SameSiteLaxMode,
			Path:     "/",
		},
		RedisPrefix:  "ac",
		StoreTimeout: 2 * time.Second,
	}
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() Config {
	return defaultConfig()
}

// ProductionPreset returns defaults hardened for production: secure
// cookies, strict same-site, short store timeouts.
func ProductionPreset() Config {
	cfg := defaultConfig()
	cfg.Cookies.Secure = true
	cfg.Cookies.SameSite = http.SameSiteStrictMode
	cfg.StoreTimeout = time.Second
	cfg.Audit.Enabled = true
	return cfg
}

// DevelopmentPreset relaxes cookie attributes for plain-HTTP local runs.
func DevelopmentPreset() Config {
	cfg := defaultConfig()
	cfg.Cookies.Secure = false
	cfg.Cookies.SameSite = http.SameSiteLaxMode
	cfg.StoreTimeout = 5 * time.Second
	return cfg
}

func (c *Config) validate() error {
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.Token.RefreshTTL < c.Token.AccessTTL {
		return errors.New("refresh TTL must not be shorter than access TTL")
	}
	if strings.TrimSpace(c.Token.Issuer) == "" {
		return errors.New("token issuer is required")
	}
	if c.Session.Lifetime <= 0 {
		return errors.New("session lifetime must be positive")
	}
	if c.Session.MaxSessionsPerUser <= 0 {
		return errors.New("max sessions per user must be positive")
	}
	if c.Lockout.Threshold <= 0 || c.Lockout.Window <= 0 || c.Lockout.Duration <= 0 {
		return errors.New("lockout threshold, window, and duration must be positive")
	}
	if c.StoreTimeout <= 0 {
		return errors.New("store timeout must be positive")
	}
	if c.RedisPrefix == "" {
		c.RedisPrefix = "ac"
	}
	return nil
}

func (c *Config) signingMethod() token.SigningMethod {
	switch strings.ToLower(c.Token.SigningMethod) {
	case "hs256":
		return token.MethodHS256
	default:
		return token.MethodEd25519
	}
}
