package assurance

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// envConfig is the flat environment surface. It exists so deployments
// keep a single explicit loading point instead of ambient lookups spread
// through the code.
type envConfig struct {
	SessionIdleTimeout time.Duration `env:"IDP_SESSION_IDLE_TIMEOUT" envDefault:"30m"`
	SessionSliding     bool          `env:"IDP_SESSION_SLIDING_EXPIRATION" envDefault:"true"`

	ReauthnWindow time.Duration `env:"IDP_REAUTHN_WINDOW" envDefault:"15m"`

	DeviceShortTTL   time.Duration `env:"IDP_REMEMBERED_DEVICE_SHORT_TTL" envDefault:"12h"`
	DeviceLongTTL    time.Duration `env:"IDP_REMEMBERED_DEVICE_LONG_TTL" envDefault:"720h"`
	DeviceSigningKey string        `env:"IDP_REMEMBERED_DEVICE_SIGNING_KEY"`
	DeviceIssuer     string        `env:"IDP_REMEMBERED_DEVICE_ISSUER" envDefault:"identity-idp"`

	IdvMaxAttempts int           `env:"IDP_IDV_MAX_ATTEMPTS" envDefault:"3"`
	IdvWindow      time.Duration `env:"IDP_IDV_ATTEMPT_WINDOW" envDefault:"24h"`
	OtpMaxSends    int           `env:"IDP_OTP_MAX_SENDS" envDefault:"10"`
	OtpSendWindow  time.Duration `env:"IDP_OTP_SEND_WINDOW" envDefault:"10m"`
	MfaMaxAttempts int           `env:"IDP_MFA_MAX_ATTEMPTS" envDefault:"5"`
	MfaWindow      time.Duration `env:"IDP_MFA_ATTEMPT_WINDOW" envDefault:"15m"`

	AuditEnabled    bool `env:"IDP_AUDIT_ENABLED" envDefault:"false"`
	AuditBufferSize int  `env:"IDP_AUDIT_BUFFER_SIZE" envDefault:"1024"`
	MetricsEnabled  bool `env:"IDP_METRICS_ENABLED" envDefault:"false"`
}

// ConfigFromEnv builds a Config from IDP_* environment variables layered
// over the documented defaults.
func ConfigFromEnv() (Config, error) {
	var e envConfig
	if err := env.Parse(&e); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	cfg := defaultConfig()
	cfg.Session.IdleTimeout = e.SessionIdleTimeout
	cfg.Session.SlidingExpiration = e.SessionSliding
	cfg.Reauthn.Window = e.ReauthnWindow
	cfg.RememberedDevice.ShortTTL = e.DeviceShortTTL
	cfg.RememberedDevice.LongTTL = e.DeviceLongTTL
	cfg.RememberedDevice.Issuer = e.DeviceIssuer
	if e.DeviceSigningKey != "" {
		cfg.RememberedDevice.SigningKey = []byte(e.DeviceSigningKey)
	}
	cfg.Throttle.Kinds = map[ThrottleKind]ThrottleKindConfig{
		ThrottleIdvAttempts: {MaxAttempts: e.IdvMaxAttempts, Window: e.IdvWindow},
		ThrottleOtpSends:    {MaxAttempts: e.OtpMaxSends, Window: e.OtpSendWindow},
		ThrottleMfaAttempts: {MaxAttempts: e.MfaMaxAttempts, Window: e.MfaWindow},
	}
	cfg.Audit.Enabled = e.AuditEnabled
	cfg.Audit.BufferSize = e.AuditBufferSize
	cfg.Metrics.Enabled = e.MetricsEnabled

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
