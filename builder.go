package credkit

import (
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	internalaudit "github.com/credkit/credkit/internal/audit"
	internalmetrics "github.com/credkit/credkit/internal/metrics"
	"github.com/credkit/credkit/internal/rate"
	"github.com/credkit/credkit/internal/sessions"
	"github.com/credkit/credkit/internal/stores"
	"github.com/credkit/credkit/password"
	"github.com/credkit/credkit/token"
)

// Builder assembles an Engine. A Builder is single-use; Build fails on the
// second call.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	accounts   AccountProvider
	captcha    CaptchaVerifier
	dispatcher MessageDispatcher
	auditSink  AuditSink

	log    zerolog.Logger
	logSet bool

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the entire configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing sessions, codes, and rate limits.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAccounts sets the application's account store adapter.
func (b *Builder) WithAccounts(provider AccountProvider) *Builder {
	b.accounts = provider
	return b
}

// WithCaptcha sets the captcha verifier. Required when Config.Captcha.Enabled.
func (b *Builder) WithCaptcha(verifier CaptchaVerifier) *Builder {
	b.captcha = verifier
	return b
}

// WithDispatcher sets the out-of-band delivery channel for codes and
// confirmations.
func (b *Builder) WithDispatcher(dispatcher MessageDispatcher) *Builder {
	b.dispatcher = dispatcher
	return b
}

// WithAuditSink sets where audit events go. Without one, enabled auditing
// falls back to a discarding sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the engine's structured logger. Defaults to a no-op
// logger.
func (b *Builder) WithLogger(log zerolog.Logger) *Builder {
	b.log = log
	b.logSet = true
	return b
}

// Build validates the configuration, wires every component, and returns a
// ready Engine.
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
	if b.accounts == nil {
		return nil, errors.New("account provider required")
	}
	if b.dispatcher == nil {
		return nil, errors.New("message dispatcher required")
	}
	if cfg.Captcha.Enabled && b.captcha == nil {
		return nil, errors.New("captcha enabled but no verifier provided")
	}

	hasher, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
		MinLength:   cfg.Password.MinLength,
	})
	if err != nil {
		return nil, err
	}

	tokens, err := token.NewManager(token.Config{
		Secret:   cfg.Token.Secret,
		Issuer:   cfg.Token.Issuer,
		Audience: cfg.Token.Audience,
		TTL:      cfg.Token.TTL,
		Leeway:   cfg.Token.Leeway,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:     cfg,
		accounts:   b.accounts,
		captcha:    b.captcha,
		dispatcher: b.dispatcher,
		hasher:     hasher,
		tokens:     tokens,
		requestLimiter: rate.New(b.redis, rate.Config{
			Limit:    cfg.RateLimit.RequestLimit,
			Window:   cfg.RateLimit.RequestWindow,
			Prefix:   cfg.RateLimit.RedisPrefix + ":req",
			FailOpen: cfg.RateLimit.FailOpen,
		}),
		codeLimiter: rate.New(b.redis, rate.Config{
			Limit:    cfg.RateLimit.CodeLimit,
			Window:   cfg.RateLimit.CodeWindow,
			Prefix:   cfg.RateLimit.RedisPrefix + ":code",
			FailOpen: cfg.RateLimit.FailOpen,
		}),
		codes:    stores.NewCodeStore(b.redis, cfg.Code.RedisPrefix),
		sessions: sessions.NewStore(b.redis, cfg.Session.RedisPrefix, cfg.Session.TTL),
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
		metrics: internalmetrics.New(cfg.Metrics.Enabled),
	}

	if b.logSet {
		engine.log = b.log
	} else {
		engine.log = zerolog.Nop()
	}
	engine.log = engine.log.With().Str("component", "credkit").Logger()

	engine.flow = engine.buildFlowDeps()

	b.built = true
	return engine, nil
}
