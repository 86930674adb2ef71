package schoolauth

import (
	"crypto/subtle"
	"errors"
	"time"

	"github.com/maxmusicschool/schoolauth/cache"
	"github.com/maxmusicschool/schoolauth/internal/limiters"
	"github.com/maxmusicschool/schoolauth/password"
	"github.com/maxmusicschool/schoolauth/session"
)

// Config is the engine configuration. Build copies it; later changes to the
// caller's value have no effect.
type Config struct {
	JWT       JWTConfig
	Session   SessionConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
	Password  PasswordConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

// JWTConfig configures token issuance. Access and refresh secrets must be
// non-empty and differ.
type JWTConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Leeway        time.Duration
}

type SessionConfig struct {
	RedisPrefix string
}

// CacheConfig tunes the cache transport connection management.
type CacheConfig struct {
	MaxAttempts  int
	RetryStep    time.Duration
	PingInterval time.Duration
}

type RateLimitConfig struct {
	AuthMax    int
	AuthWindow time.Duration
	APIMax     int
	APIWindow  time.Duration
}

type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinLength   int
	// AllowLegacyPlaintext accepts stored passwords that are not hashes,
	// compared in constant time. Such passwords are rehashed on login when
	// the Directory implements PasswordUpgrader.
	AllowLegacyPlaintext bool
	UpgradeOnLogin       bool
}

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the production defaults without secrets.
func DefaultConfig() Config {
	pw := password.DefaultConfig()
	rl := limiters.DefaultRequestConfig()
	return Config{
		JWT: JWTConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: session.DefaultTTL,
			Issuer:     "schoolauth",
		},
		Session: SessionConfig{
			RedisPrefix: session.DefaultPrefix,
		},
		Cache: CacheConfig{
			MaxAttempts:  10,
			RetryStep:    100 * time.Millisecond,
			PingInterval: 5 * time.Second,
		},
		RateLimit: RateLimitConfig{
			AuthMax:    rl.AuthMax,
			AuthWindow: rl.AuthWindow,
			APIMax:     rl.APIMax,
			APIWindow:  rl.APIWindow,
		},
		Password: PasswordConfig{
			Memory:         pw.Memory,
			Time:           pw.Time,
			Parallelism:    pw.Parallelism,
			SaltLength:     pw.SaltLength,
			KeyLength:      pw.KeyLength,
			// Teachers enrol students with short initial passwords.
			MinLength:      4,
			UpgradeOnLogin: true,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.AccessSecret = cloneBytes(cfg.JWT.AccessSecret)
	out.JWT.RefreshSecret = cloneBytes(cfg.JWT.RefreshSecret)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate checks the configuration for contradictions and unsafe values.
func (c *Config) Validate() error {
	// JWT
	if len(c.JWT.AccessSecret) == 0 {
		return errors.New("JWT AccessSecret is required")
	}
	if len(c.JWT.RefreshSecret) == 0 {
		return errors.New("JWT RefreshSecret is required")
	}
	if subtle.ConstantTimeCompare(c.JWT.AccessSecret, c.JWT.RefreshSecret) == 1 {
		return errors.New("JWT AccessSecret and RefreshSecret must differ")
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be >= AccessTTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be within 0-2m")
	}

	// Session
	if c.Session.RedisPrefix == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}

	// Cache
	if c.Cache.MaxAttempts < 0 || c.Cache.RetryStep < 0 || c.Cache.PingInterval < 0 {
		return errors.New("Cache settings must not be negative")
	}

	// Rate limits
	if c.RateLimit.AuthMax <= 0 || c.RateLimit.AuthWindow <= 0 {
		return errors.New("RateLimit auth policy must have a positive limit and window")
	}
	if c.RateLimit.APIMax <= 0 || c.RateLimit.APIWindow <= 0 {
		return errors.New("RateLimit api policy must have a positive limit and window")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}

func (c *Config) passwordConfig() password.Config {
	pw := password.DefaultConfig()
	pw.Memory = c.Password.Memory
	pw.Time = c.Password.Time
	pw.Parallelism = c.Password.Parallelism
	pw.SaltLength = c.Password.SaltLength
	pw.KeyLength = c.Password.KeyLength
	if c.Password.MinLength > 0 {
		pw.MinLength = c.Password.MinLength
	}
	return pw
}

func (c *Config) requestConfig() limiters.RequestConfig {
	return limiters.RequestConfig{
		AuthMax:    c.RateLimit.AuthMax,
		AuthWindow: c.RateLimit.AuthWindow,
		APIMax:     c.RateLimit.APIMax,
		APIWindow:  c.RateLimit.APIWindow,
	}
}

func (c *Config) cacheOptions(l Logger) cache.RedisOptions {
	return cache.RedisOptions{
		MaxAttempts:  c.Cache.MaxAttempts,
		RetryStep:    c.Cache.RetryStep,
		PingInterval: c.Cache.PingInterval,
		Logger:       l,
	}
}
