package assurance

import (
	"errors"

	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. Construction is allocation-only; no I/O
// happens before the first Engine method call.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	provider  FactorProvider
	auditSink AuditSink

	built bool
}

// New starts a builder with the documented defaults.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing the session, throttle, and
// device-trust stores.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithFactorProvider sets the factor persistence collaborator.
func (b *Builder) WithFactorProvider(p FactorProvider) *Builder {
	b.provider = p
	return b
}

// WithAuditSink sets the audit destination; audit still has to be
// enabled in the config.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithDeviceSigningKey sets the HMAC key for remembered-device tokens.
func (b *Builder) WithDeviceSigningKey(key []byte) *Builder {
	b.config.RememberedDevice.SigningKey = cloneBytes(key)
	return b
}

// WithMultipleFactorPolicy injects the sign-up sufficiency hook.
func (b *Builder) WithMultipleFactorPolicy(fn func(subjectID string) bool) *Builder {
	b.config.Policy.RequireMultipleFactorsOnSignup = fn
	return b
}

// Build validates the configuration and wires the stores. A builder is
// single-use.
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
	if b.provider == nil {
		return nil, errors.New("factor provider required")
	}
	if len(cfg.RememberedDevice.SigningKey) == 0 {
		return nil, ErrDeviceSigningKeyMissing
	}

	e := &Engine{
		config:   cfg,
		sessions: NewSessionStore(b.redis, cfg.Session),
		throttle: NewThrottleStore(b.redis, cfg.Throttle),
		devices:  NewRememberedDeviceStore(b.redis, cfg.RememberedDevice),
		registry: NewFactorRegistry(b.provider),
		reauthn:  NewReauthnWindow(cfg.Reauthn.Window),
		provider: b.provider,
		audit:    newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:  newMetrics(cfg.Metrics),
	}

	b.built = true
	return e, nil
}
