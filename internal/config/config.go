// Package config loads the process configuration of cmd/schoold and
// cmd/schoolctl from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/maxmusicschool/schoolauth"
	"github.com/maxmusicschool/schoolauth/internal"
)

// Store adapters accepted in DB_ADAPTER.
const (
	AdapterMemory   = "memory"
	AdapterSQLite   = "sqlite"
	AdapterPostgres = "postgres"
)

// Audit destinations accepted in AUDIT_LOG, comma separated.
const (
	AuditLog    = "log"
	AuditRedis  = "redis"
	AuditStdout = "stdout"
	AuditOff    = "off"
)

const generatedSecretSize = 48

type Config struct {
	Port     string
	Env      string
	LogLevel string

	Auth schoolauth.Config
	// SecretsGenerated is set when development secrets were generated
	// because none were configured. Tokens do not survive a restart.
	SecretsGenerated bool

	RedisURL      string
	RedisPassword string
	CacheTTL      time.Duration

	DBAdapter   string
	SQLiteFile  string
	DatabaseURL string

	TrustedProxies []string
	// AuditLog is the raw AUDIT_LOG value; see AuditDestinations.
	AuditLog string
}

// Production reports whether ENV is production.
func (c *Config) Production() bool {
	return c.Env == "production"
}

// AuditDestinations splits AUDIT_LOG into its destinations. "off" anywhere
// disables auditing and yields nil.
func (c *Config) AuditDestinations() []string {
	var out []string
	for _, d := range strings.Split(c.AuditLog, ",") {
		d = strings.TrimSpace(d)
		if d == AuditOff {
			return nil
		}
		if d != "" && !slices.Contains(out, d) {
			out = append(out, d)
		}
	}
	return out
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

// Load reads the environment. Production requires both JWT secrets;
// elsewhere missing secrets are generated and SecretsGenerated is set.
func Load() (*Config, error) {
	env := strings.ToLower(getenv("ENV", getenv("NODE_ENV", "development")))
	if env == "prod" {
		env = "production"
	}

	c := &Config{
		Port:          getenv("PORT", "3001"),
		Env:           env,
		LogLevel:      getenv("LOG_LEVEL", "info"),
		Auth:          schoolauth.DefaultConfig(),
		RedisURL:      getenv("REDIS_URL", "redis://localhost:6379"),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		DBAdapter:     strings.ToLower(getenv("DB_ADAPTER", AdapterMemory)),
		SQLiteFile:    getenv("SQLITE_FILE", "./data/school.db"),
		DatabaseURL:   getenv("DATABASE_URL", ""),
		AuditLog:      strings.ToLower(getenv("AUDIT_LOG", AuditLog)),
	}

	if _, err := strconv.Atoi(c.Port); err != nil {
		return nil, fmt.Errorf("invalid PORT: %s", c.Port)
	}

	var errs []error
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"ACCESS_TOKEN_TTL", &c.Auth.JWT.AccessTTL},
		{"REFRESH_TOKEN_TTL", &c.Auth.JWT.RefreshTTL},
		{"CACHE_TTL", &c.CacheTTL},
		{"AUTH_RATE_LIMIT_WINDOW", &c.Auth.RateLimit.AuthWindow},
		{"API_RATE_LIMIT_WINDOW", &c.Auth.RateLimit.APIWindow},
	}
	for _, d := range durations {
		if v := getenv(d.key, ""); v != "" {
			parsed, err := ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", d.key, err))
				continue
			}
			*d.dst = parsed
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"AUTH_RATE_LIMIT_MAX", &c.Auth.RateLimit.AuthMax},
		{"API_RATE_LIMIT_MAX", &c.Auth.RateLimit.APIMax},
	}
	for _, n := range ints {
		if v := getenv(n.key, ""); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil || parsed <= 0 {
				errs = append(errs, fmt.Errorf("%s: must be a positive integer", n.key))
				continue
			}
			*n.dst = parsed
		}
	}

	if v := getenv("LEGACY_PLAINTEXT_PASSWORDS", ""); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("LEGACY_PLAINTEXT_PASSWORDS: %w", err))
		}
		c.Auth.Password.AllowLegacyPlaintext = b
	}
	c.Auth.JWT.Issuer = getenv("JWT_ISSUER", c.Auth.JWT.Issuer)

	if v := getenv("TRUSTED_PROXIES", ""); v != "" {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				c.TrustedProxies = append(c.TrustedProxies, p)
			}
		}
	}

	switch c.DBAdapter {
	case AdapterMemory:
	case AdapterSQLite:
		if c.SQLiteFile == "" {
			errs = append(errs, errors.New("SQLITE_FILE must be set when DB_ADAPTER=sqlite"))
		}
	case AdapterPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL must be set when DB_ADAPTER=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("DB_ADAPTER: unknown adapter %q", c.DBAdapter))
	}

	for _, d := range strings.Split(c.AuditLog, ",") {
		switch d = strings.TrimSpace(d); d {
		case "", AuditLog, AuditRedis, AuditStdout, AuditOff:
		default:
			errs = append(errs, fmt.Errorf("AUDIT_LOG: unknown destination %q", d))
		}
	}

	if err := c.loadSecrets(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if err := c.Auth.Validate(); err != nil {
		return nil, fmt.Errorf("auth config: %w", err)
	}
	return c, nil
}

func (c *Config) loadSecrets() error {
	access := getenv("JWT_ACCESS_SECRET", "")
	refresh := getenv("JWT_REFRESH_SECRET", "")

	if c.Production() {
		if access == "" || refresh == "" {
			return errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must be set in production")
		}
		if access == refresh {
			return errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
		}
	}

	var err error
	if access == "" {
		if access, err = internal.NewSecretString(generatedSecretSize); err != nil {
			return fmt.Errorf("generate access secret: %w", err)
		}
		c.SecretsGenerated = true
	}
	if refresh == "" {
		if refresh, err = internal.NewSecretString(generatedSecretSize); err != nil {
			return fmt.Errorf("generate refresh secret: %w", err)
		}
		c.SecretsGenerated = true
	}

	c.Auth.JWT.AccessSecret = []byte(access)
	c.Auth.JWT.RefreshSecret = []byte(refresh)
	return nil
}

// ParseDuration accepts Go durations ("15m", "1h30m"), a day suffix ("7d")
// and bare integers, read as seconds.
func ParseDuration(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	var d time.Duration
	switch {
	case strings.HasSuffix(v, "d"):
		days, err := strconv.Atoi(strings.TrimSuffix(v, "d"))
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", v)
		}
		d = time.Duration(days) * 24 * time.Hour
	default:
		if secs, err := strconv.Atoi(v); err == nil {
			d = time.Duration(secs) * time.Second
			break
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", v)
		}
		d = parsed
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", v)
	}
	return d, nil
}
