package assurance

import (
	"errors"
	"fmt"
	"time"
)

// Config carries every tunable of the engine. Instances are configured
// during initialization and treated as immutable after [Builder.Build];
// there are no ambient environment reads at decision time.
type Config struct {
	Session          SessionConfig
	Reauthn          ReauthnConfig
	RememberedDevice RememberedDeviceConfig
	Throttle         ThrottleConfig
	Policy           PolicyConfig
	Audit            AuditConfig
	Metrics          MetricsConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session persistence and expiry.
type SessionConfig struct {
	RedisPrefix string
	// IdleTimeout is the maximum inactivity before a session expires.
	IdleTimeout time.Duration
	// SlidingExpiration refreshes ExpiresAt on Touch up to IdleTimeout
	// from the last activity.
	SlidingExpiration bool
}

/*
====================================
REAUTHENTICATION CONFIG
====================================
*/

// ReauthnConfig controls the freshness window for sensitive actions.
type ReauthnConfig struct {
	// Window is the duration after MfaCompletedAt during which sensitive
	// actions proceed without a fresh challenge.
	Window time.Duration
}

/*
====================================
REMEMBERED DEVICE CONFIG
====================================
*/

// RememberedDeviceConfig controls device-trust token issuance. The tier
// is fixed at issuance: ShortTTL when the issuing SP demanded AAL2/IAL2,
// LongTTL otherwise.
type RememberedDeviceConfig struct {
	RedisPrefix string
	ShortTTL    time.Duration
	LongTTL     time.Duration
	// SigningKey is the HMAC key for device token signatures. Required
	// whenever device trust is issued or consulted.
	SigningKey []byte
	// Issuer is the iss claim stamped into device tokens.
	Issuer string
}

/*
====================================
THROTTLE CONFIG
====================================
*/

// ThrottleKindConfig is the static limit for one throttle kind.
type ThrottleKindConfig struct {
	MaxAttempts int
	Window      time.Duration
}

// ThrottleConfig maps each throttle kind to its limits.
type ThrottleConfig struct {
	RedisPrefix string
	Kinds       map[ThrottleKind]ThrottleKindConfig
}

/*
====================================
POLICY CONFIG
====================================
*/

// PolicyConfig holds injected policy hooks.
type PolicyConfig struct {
	// RequireMultipleFactorsOnSignup, when non-nil and returning true for
	// a subject, raises the sign-up sufficiency threshold from one enabled
	// factor to two. Steady-state sufficiency is always at least one.
	RequireMultipleFactorsOnSignup func(subjectID string) bool
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

func defaultConfig() Config {
	return Config{
		Session: SessionConfig{
			RedisPrefix:       "ses",
			IdleTimeout:       30 * time.Minute,
			SlidingExpiration: true,
		},
		Reauthn: ReauthnConfig{
			Window: 15 * time.Minute,
		},
		RememberedDevice: RememberedDeviceConfig{
			RedisPrefix: "rd",
			ShortTTL:    12 * time.Hour,
			LongTTL:     30 * 24 * time.Hour,
			Issuer:      "identity-idp",
		},
		Throttle: ThrottleConfig{
			RedisPrefix: "thr",
			Kinds: map[ThrottleKind]ThrottleKindConfig{
				ThrottleIdvAttempts: {MaxAttempts: 3, Window: 24 * time.Hour},
				ThrottleOtpSends:    {MaxAttempts: 10, Window: 10 * time.Minute},
				ThrottleMfaAttempts: {MaxAttempts: 5, Window: 15 * time.Minute},
			},
		},
		Policy: PolicyConfig{},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}
}

// DefaultConfig returns the documented defaults. Callers mutate the copy
// and pass it to [Builder.WithConfig].
func DefaultConfig() Config {
	return defaultConfig()
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.RememberedDevice.SigningKey = cloneBytes(cfg.RememberedDevice.SigningKey)
	if cfg.Throttle.Kinds != nil {
		out.Throttle.Kinds = make(map[ThrottleKind]ThrottleKindConfig, len(cfg.Throttle.Kinds))
		for k, v := range cfg.Throttle.Kinds {
			out.Throttle.Kinds[k] = v
		}
	}
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

/*
====================================
VALIDATION
====================================
*/

// Validate checks internal consistency. Build rejects configs that fail
// validation.
func (c *Config) Validate() error {
	if c.Session.IdleTimeout <= 0 {
		return errors.New("session idle timeout must be positive")
	}
	if c.Session.RedisPrefix == "" {
		return errors.New("session redis prefix must not be empty")
	}
	if c.Reauthn.Window <= 0 {
		return errors.New("reauthentication window must be positive")
	}
	if c.RememberedDevice.ShortTTL <= 0 || c.RememberedDevice.LongTTL <= 0 {
		return errors.New("remembered device TTLs must be positive")
	}
	if c.RememberedDevice.ShortTTL > c.RememberedDevice.LongTTL {
		return errors.New("remembered device short TTL must not exceed long TTL")
	}
	if c.RememberedDevice.RedisPrefix == "" {
		return errors.New("remembered device redis prefix must not be empty")
	}
	if c.Throttle.RedisPrefix == "" {
		return errors.New("throttle redis prefix must not be empty")
	}
	for kind, kc := range c.Throttle.Kinds {
		if kc.MaxAttempts <= 0 {
			return fmt.Errorf("throttle %s: max attempts must be positive", kind)
		}
		if kc.Window <= 0 {
			return fmt.Errorf("throttle %s: window must be positive", kind)
		}
	}
	if c.Audit.Enabled && c.Audit.BufferSize < 0 {
		return errors.New("audit buffer size must not be negative")
	}
	return nil
}
