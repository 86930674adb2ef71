package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var allKeys = []string{
	"PORT", "ENV", "NODE_ENV", "LOG_LEVEL", "JWT_ACCESS_SECRET", "JWT_REFRESH_SECRET",
	"JWT_ISSUER", "ACCESS_TOKEN_TTL", "REFRESH_TOKEN_TTL", "REDIS_URL", "REDIS_PASSWORD",
	"CACHE_TTL", "AUTH_RATE_LIMIT_MAX", "AUTH_RATE_LIMIT_WINDOW", "API_RATE_LIMIT_MAX",
	"API_RATE_LIMIT_WINDOW", "DB_ADAPTER", "SQLITE_FILE", "DATABASE_URL", "TRUSTED_PROXIES",
	"LEGACY_PLAINTEXT_PASSWORDS", "AUDIT_LOG",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
}

func TestLoadDevelopmentDefaults(t *testing.T) {
	clearEnv(t)

	c, err := Load()
	require.NoError(t, err)
	require.Equal(t, "3001", c.Port)
	require.Equal(t, "development", c.Env)
	require.False(t, c.Production())
	require.Equal(t, "redis://localhost:6379", c.RedisURL)
	require.Equal(t, AdapterMemory, c.DBAdapter)
	require.Equal(t, AuditLog, c.AuditLog)
	require.True(t, c.SecretsGenerated)
	require.NotEmpty(t, c.Auth.JWT.AccessSecret)
	require.NotEqual(t, c.Auth.JWT.AccessSecret, c.Auth.JWT.RefreshSecret)
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "8080")
	t.Setenv("JWT_ACCESS_SECRET", "access-secret")
	t.Setenv("JWT_REFRESH_SECRET", "refresh-secret")
	t.Setenv("ACCESS_TOKEN_TTL", "10m")
	t.Setenv("REFRESH_TOKEN_TTL", "7d")
	t.Setenv("CACHE_TTL", "120")
	t.Setenv("AUTH_RATE_LIMIT_MAX", "3")
	t.Setenv("API_RATE_LIMIT_WINDOW", "1m")
	t.Setenv("DB_ADAPTER", "SQLite")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 127.0.0.1,")
	t.Setenv("LEGACY_PLAINTEXT_PASSWORDS", "true")
	t.Setenv("AUDIT_LOG", "redis")

	c, err := Load()
	require.NoError(t, err)
	require.False(t, c.SecretsGenerated)
	require.Equal(t, []byte("access-secret"), c.Auth.JWT.AccessSecret)
	require.Equal(t, 10*time.Minute, c.Auth.JWT.AccessTTL)
	require.Equal(t, 7*24*time.Hour, c.Auth.JWT.RefreshTTL)
	require.Equal(t, 2*time.Minute, c.CacheTTL)
	require.Equal(t, 3, c.Auth.RateLimit.AuthMax)
	require.Equal(t, time.Minute, c.Auth.RateLimit.APIWindow)
	require.Equal(t, AdapterSQLite, c.DBAdapter)
	require.Equal(t, []string{"10.0.0.0/8", "127.0.0.1"}, c.TrustedProxies)
	require.True(t, c.Auth.Password.AllowLegacyPlaintext)
	require.Equal(t, AuditRedis, c.AuditLog)
}

func TestLoadProductionRequiresSecrets(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV", "production")

	_, err := Load()
	require.ErrorContains(t, err, "must be set in production")

	t.Setenv("JWT_ACCESS_SECRET", "same")
	t.Setenv("JWT_REFRESH_SECRET", "same")
	_, err = Load()
	require.ErrorContains(t, err, "must differ")

	t.Setenv("JWT_REFRESH_SECRET", "other")
	c, err := Load()
	require.NoError(t, err)
	require.True(t, c.Production())
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		key, value, want string
	}{
		{"PORT", "http", "invalid PORT"},
		{"ACCESS_TOKEN_TTL", "soon", "ACCESS_TOKEN_TTL"},
		{"AUTH_RATE_LIMIT_MAX", "-1", "AUTH_RATE_LIMIT_MAX"},
		{"DB_ADAPTER", "mongo", "unknown adapter"},
		{"DB_ADAPTER", "postgres", "DATABASE_URL"},
		{"AUDIT_LOG", "kafka", "unknown destination"},
		{"AUDIT_LOG", "log,kafka", `"kafka"`},
		{"LEGACY_PLAINTEXT_PASSWORDS", "maybe", "LEGACY_PLAINTEXT_PASSWORDS"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.ErrorContains(t, err, tt.want)
		})
	}
}

func TestLoadRejectsRefreshShorterThanAccess(t *testing.T) {
	clearEnv(t)
	t.Setenv("ACCESS_TOKEN_TTL", "2h")
	t.Setenv("REFRESH_TOKEN_TTL", "1h")

	_, err := Load()
	require.ErrorContains(t, err, "RefreshTTL")
}

func TestParseDuration(t *testing.T) {
	for in, want := range map[string]time.Duration{
		"15m":  15 * time.Minute,
		"7d":   7 * 24 * time.Hour,
		"900":  900 * time.Second,
		"1h5s": time.Hour + 5*time.Second,
	} {
		got, err := ParseDuration(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "0", "-5m", "xd", "abc"} {
		_, err := ParseDuration(bad)
		require.Error(t, err, bad)
	}
}

func TestAuditDestinations(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{"log", []string{AuditLog}},
		{"log, redis,log", []string{AuditLog, AuditRedis}},
		{"stdout,off", nil},
		{",", nil},
	}
	for _, tt := range tests {
		c := &Config{AuditLog: tt.raw}
		require.Equal(t, tt.want, c.AuditDestinations(), tt.raw)
	}
}
