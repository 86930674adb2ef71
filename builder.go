package schoolauth

import (
	"context"
	"errors"
	"time"

	"github.com/maxmusicschool/schoolauth/cache"
	internalaudit "github.com/maxmusicschool/schoolauth/internal/audit"
	"github.com/maxmusicschool/schoolauth/internal/limiters"
	"github.com/maxmusicschool/schoolauth/internal/logging"
	"github.com/maxmusicschool/schoolauth/internal/rate"
	"github.com/maxmusicschool/schoolauth/jwt"
	"github.com/maxmusicschool/schoolauth/password"
	"github.com/maxmusicschool/schoolauth/session"
)

// CacheTransport is a cache.Transport with a connection lifecycle. The
// engine's Initialize and Close drive it.
type CacheTransport interface {
	cache.Transport
	Initialize(ctx context.Context) error
	Close() error
}

// Builder assembles an Engine. A Builder is single-use.
type Builder struct {
	config Config
	redis  RedisClient

	transport CacheTransport
	directory Directory
	auditSink AuditSink
	logger    Logger
	metrics   *Metrics

	built bool
}

// New returns a Builder holding DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client used for refresh sessions and rate-limit
// windows, and for the cache when WithCache is not called.
func (b *Builder) WithRedis(client RedisClient) *Builder {
	b.redis = client
	return b
}

// WithCache shares an existing cache transport with the engine, typically
// the one the Directory's accessors read through.
func (b *Builder) WithCache(t CacheTransport) *Builder {
	b.transport = t
	return b
}

func (b *Builder) WithDirectory(d Directory) *Builder {
	b.directory = d
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(l Logger) *Builder {
	b.logger = l
	return b
}

// WithMetrics shares a Metrics instance created with NewMetrics, so cache
// observers and the engine count into the same registry.
func (b *Builder) WithMetrics(m *Metrics) *Builder {
	b.metrics = m
	return b
}

// Build validates the configuration and wires every component. It performs
// no I/O; call Engine.Initialize before serving.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.directory == nil {
		return nil, errors.New("directory required")
	}

	logger := logging.OrNop(b.logger)

	jm, err := jwt.NewManager(jwt.Config{
		AccessSecret:  cloneBytes(cfg.JWT.AccessSecret),
		RefreshSecret: cloneBytes(cfg.JWT.RefreshSecret),
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		Issuer:        cfg.JWT.Issuer,
		Leeway:        cfg.JWT.Leeway,
		AllowedRoles:  []string{string(RoleStudent), string(RoleTeacher), string(RoleAdmin)},
	})
	if err != nil {
		return nil, err
	}

	argon, err := password.NewArgon2(cfg.passwordConfig())
	if err != nil {
		return nil, err
	}
	verifier, err := password.NewVerifier(argon, cfg.Password.AllowLegacyPlaintext)
	if err != nil {
		return nil, err
	}

	transport := b.transport
	if transport == nil {
		transport = cache.NewRedisTransport(b.redis, cfg.cacheOptions(logger))
	}

	metrics := b.metrics
	if metrics == nil {
		metrics = NewMetrics(cfg.Metrics)
	}

	engine := &Engine{
		config:    cfg,
		logger:    logger.With("component", "engine"),
		jwt:       jm,
		sessions:  session.NewStore(b.redis, cfg.Session.RedisPrefix, cfg.JWT.RefreshTTL),
		limiter:   limiters.NewRequestLimiter(rate.New(b.redis, logger), cfg.requestConfig()),
		passwords: verifier,
		transport: transport,
		directory: b.directory,
		metrics:   metrics,
		now:       time.Now,
	}
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Logger:     logger,
	}, b.auditSink)
	if up, ok := b.directory.(PasswordUpgrader); ok && cfg.Password.UpgradeOnLogin {
		engine.upgrader = up
	}
	engine.flows = engine.buildFlows()

	b.built = true

	return engine, nil
}
