package assurance

import (
	"context"
	"time"
)

// FactorKind identifies an authentication factor variant. The set is
// closed; phishing resistance is classified per kind rather than per
// configuration.
type FactorKind uint8

const (
	// FactorPhone is an SMS/voice OTP phone number.
	FactorPhone FactorKind = iota
	// FactorTotp is an authenticator-app TOTP secret.
	FactorTotp
	// FactorWebauthn is a WebAuthn credential (security key or platform).
	FactorWebauthn
	// FactorPivCac is a PIV/CAC government smart card certificate.
	FactorPivCac
	// FactorBackupCode is a set of single-use recovery codes.
	FactorBackupCode
)

// String returns the stable wire name of the kind, used in store keys and
// audit metadata.
func (k FactorKind) String() string {
	switch k {
	case FactorPhone:
		return "phone"
	case FactorTotp:
		return "totp"
	case FactorWebauthn:
		return "webauthn"
	case FactorPivCac:
		return "piv_cac"
	case FactorBackupCode:
		return "backup_code"
	default:
		return "unknown"
	}
}

// Phishable reports whether the kind is vulnerable to credential
// phishing. Phone, TOTP, and backup codes can be proxied by an attacker;
// WebAuthn and PIV/CAC bind to the origin and cannot.
func (k FactorKind) Phishable() bool {
	switch k {
	case FactorWebauthn, FactorPivCac:
		return false
	default:
		return true
	}
}

// RequiresConfirmation reports whether a configuration of this kind must
// be confirmed (OTP round-trip, credential ceremony) before it counts as
// enabled. Backup codes are generated server-side and are live at
// creation.
func (k FactorKind) RequiresConfirmation() bool {
	return k != FactorBackupCode
}

// FactorConfiguration is one enrolled factor of a subject. Kind-specific
// payloads (phone number hash, credential public key) stay opaque to this
// package and live with the [FactorProvider].
type FactorConfiguration struct {
	ID        string
	SubjectID string
	Kind      FactorKind
	Name      string

	Enabled     bool
	ConfirmedAt time.Time // zero until confirmed
	Default     bool      // at most one default per kind (primary phone)

	CreatedAt time.Time
}

// MfaEnabled reports whether the configuration counts toward MFA: the
// enabled flag is set and, for kinds requiring confirmation, the
// confirmation round-trip has completed.
func (c FactorConfiguration) MfaEnabled() bool {
	if !c.Enabled {
		return false
	}
	if c.Kind.RequiresConfirmation() && c.ConfirmedAt.IsZero() {
		return false
	}
	return true
}

// Session is the assurance state of one authenticated browser session.
// AuthenticatedAt is set at credential success; MfaCompletedAt stays zero
// until a second factor is verified within this session.
type Session struct {
	ID        string
	SubjectID string

	AuthenticatedAt time.Time
	MfaCompletedAt  time.Time // zero until MFA completes this session
	ExpiresAt       time.Time

	// SigningUp distinguishes the initial-enrollment flow from steady-state
	// login; factor sufficiency differs between the two.
	SigningUp bool

	// PendingAction holds the resumption target of a sensitive action that
	// was interrupted by a reauthentication demand.
	PendingAction string
}

// Expired reports whether the session deadline has passed at now.
func (s *Session) Expired(now time.Time) bool {
	return s == nil || s.ExpiresAt.IsZero() || now.After(s.ExpiresAt)
}

// SPContext describes the relying service provider's declared assurance
// requirement for the current request. Immutable per request; sourced
// from the registered-service-provider catalog by the web boundary.
type SPContext struct {
	Issuer string
	AAL    int // authenticator assurance level, 1 or 2
	IAL    int // identity assurance level, 1 or 2
}

// StrongAssurance reports whether the provider demands AAL2 or IAL2.
// Strong requirements select the short remembered-device tier and reject
// trust issued under the long tier.
func (sp SPContext) StrongAssurance() bool {
	return sp.AAL >= 2 || sp.IAL >= 2
}

// Outcome is the decision returned by [Engine.Decide]. The web boundary
// maps each tag to a concrete redirect or response; this package attaches
// no behavior beyond the tag.
type Outcome uint8

const (
	// OutcomeProceed allows the request through to the relying party.
	OutcomeProceed Outcome = iota
	// OutcomeRequireCredential demands fresh primary-credential entry
	// (session absent or expired).
	OutcomeRequireCredential
	// OutcomeRequireMfaChallenge demands a second-factor challenge.
	OutcomeRequireMfaChallenge
	// OutcomeRequireAdditionalFactorSetup redirects to factor enrollment:
	// the subject's enabled factors do not meet the current minimum.
	OutcomeRequireAdditionalFactorSetup
	// OutcomeRequireReauthentication gates a sensitive action on a fresh
	// credential + MFA round-trip; the resumption target is preserved on
	// the session.
	OutcomeRequireReauthentication
)

func (o Outcome) String() string {
	switch o {
	case OutcomeProceed:
		return "proceed"
	case OutcomeRequireCredential:
		return "require_credential"
	case OutcomeRequireMfaChallenge:
		return "require_mfa_challenge"
	case OutcomeRequireAdditionalFactorSetup:
		return "require_additional_factor_setup"
	case OutcomeRequireReauthentication:
		return "require_reauthentication"
	default:
		return "unknown"
	}
}

// FactorProvider is the interface callers implement to integrate the
// engine with their user database. It covers factor lookup and the
// enrollment lifecycle; credential verification itself stays with the
// caller.
type FactorProvider interface {
	GetFactors(ctx context.Context, subjectID string) ([]FactorConfiguration, error)
	CreateFactor(ctx context.Context, cfg FactorConfiguration) (FactorConfiguration, error)
	UpdateFactor(ctx context.Context, cfg FactorConfiguration) error
	DeleteFactor(ctx context.Context, subjectID, factorID string) error
}

// DeviceTrust is returned by [Engine.CompleteMfaChallenge] when the user
// opts in to remembering the device. The web layer sets Token as a cookie
// expiring at ExpiresAt; this package never touches cookies.
type DeviceTrust struct {
	Token     string
	ExpiresAt time.Time
}

// ThrottleEntry is the persisted attempt counter for one
// (subject, throttle kind) pair. Attempts is monotonic within the window;
// AttemptedAt is the time of the last increment.
type ThrottleEntry struct {
	SubjectID   string
	Kind        ThrottleKind
	Attempts    int
	AttemptedAt time.Time
}

// ThrottleStatus is the pre-attempt consultation result. RetryAfter is
// meaningful only when Maxed is true.
type ThrottleStatus struct {
	Maxed      bool
	Attempts   int
	RetryAfter time.Duration
}
