package authcore

import (
	"context"
	"errors"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/namesmith/authcore/blacklist"
	"github.com/namesmith/authcore/lockout"
	"github.com/namesmith/authcore/rate"
	"github.com/namesmith/authcore/session"
	"github.com/namesmith/authcore/token"
)

// Builder assembles an Engine. Configure, then call Build once.
type Builder struct {
	config    Config
	redis     redis.UniversalClient
	userStore UserStore
	auditSink AuditSink
	log       zerolog.Logger
	hasLog    bool
	built     bool
}

// New returns a Builder seeded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the shared TTL store client.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserStore sets the external user store collaborator.
func (b *Builder) WithUserStore(store UserStore) *Builder {
	b.userStore = store
	return b
}

// WithAuditSink sets the sink that receives audit events. Ignored unless
// Config.Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the structured logger. Defaults to a disabled logger.
func (b *Builder) WithLogger(log zerolog.Logger) *Builder {
	b.log = log
	b.hasLog = true
	return b
}

// Build validates the configuration and wires the engine components.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client is required")
	}
	if b.userStore == nil {
		return nil, errors.New("user store is required")
	}
	if err := b.config.validate(); err != nil {
		return nil, err
	}
	if !b.hasLog {
		b.log = zerolog.Nop()
	}

	codec, err := token.NewCodec(token.Config{
		SigningMethod: b.config.signingMethod(),
		PrivateKey:    b.config.Token.PrivateKey,
		PublicKey:     b.config.Token.PublicKey,
		Issuer:        b.config.Token.Issuer,
		Leeway:        b.config.Token.Leeway,
	})
	if err != nil {
		return nil, err
	}

	e := &Engine{
		config:  b.config,
		log:     b.log,
		codec:   codec,
		revoked: blacklist.New(b.redis, b.config.RedisPrefix),
		lockouts: lockout.New(b.redis, lockout.Config{
			Prefix:    b.config.RedisPrefix,
			Threshold: b.config.Lockout.Threshold,
			Window:    b.config.Lockout.Window,
			Duration:  b.config.Lockout.Duration,
		}),
		users:   b.userStore,
		metrics: newMetrics(b.config.Metrics),
	}

	sessionCfg := session.Config{
		Prefix:             b.config.RedisPrefix,
		Lifetime:           b.config.Session.Lifetime,
		MaxSessionsPerUser: b.config.Session.MaxSessionsPerUser,
		OnEvict: func(userID string, evicted int) {
			for i := 0; i < evicted; i++ {
				e.metrics.Inc(MetricSessionEvicted)
			}
			e.emitAudit(context.Background(), auditEventSessionEvicted, true, userID, "", "session", nil, func() map[string]string {
				return map[string]string{"evicted": strconv.Itoa(evicted)}
			})
		},
	}
	var sessions session.Store = session.NewRedisStore(b.redis, sessionCfg)
	if b.config.Session.EnableFallback {
		resilient := session.NewResilient(sessions, session.NewMemory(sessionCfg), b.log)
		resilient.OnDegrade = func(op string) {
			e.metrics.Inc(MetricSessionFallback)
			e.emitAudit(context.Background(), auditEventStoreDegraded, false, "", "", "session", ErrStoreUnavailable, func() map[string]string {
				return map[string]string{"op": op}
			})
		}
		sessions = resilient
	}
	e.sessions = sessions

	if b.config.RateLimit.Enabled {
		e.limiter = rate.New(b.redis, rate.Config{
			Prefix: b.config.RedisPrefix,
			Tiers:  b.config.RateLimit.Tiers,
		}, b.log)
	}

	if b.config.Audit.Enabled {
		e.audit = newAuditDispatcher(b.config.Audit, b.auditSink)
	}

	b.built = true
	return e, nil
}
