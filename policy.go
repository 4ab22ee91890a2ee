package assurance

// MfaPolicy is a pure snapshot of a subject's factor posture. It holds no
// references to stores; construct it from a [FactorRegistry] read and
// discard it with the request.
type MfaPolicy struct {
	factors         []FactorConfiguration
	signingUp       bool
	requireMultiple bool
}

// NewMfaPolicy builds a policy over a factor snapshot. signingUp selects
// the enrollment-time sufficiency threshold; requireMultiple raises that
// threshold to two enabled factors.
func NewMfaPolicy(factors []FactorConfiguration, signingUp, requireMultiple bool) *MfaPolicy {
	return &MfaPolicy{
		factors:         factors,
		signingUp:       signingUp,
		requireMultiple: requireMultiple,
	}
}

// EnabledCount returns the number of configurations counting toward MFA.
func (p *MfaPolicy) EnabledCount() int {
	n := 0
	for _, f := range p.factors {
		if f.MfaEnabled() {
			n++
		}
	}
	return n
}

// TwoFactorEnabled reports whether at least one enabled factor exists.
func (p *MfaPolicy) TwoFactorEnabled() bool {
	for _, f := range p.factors {
		if f.MfaEnabled() {
			return true
		}
	}
	return false
}

// MultipleFactorsEnabled reports whether more than one factor is enabled.
func (p *MfaPolicy) MultipleFactorsEnabled() bool {
	return p.EnabledCount() > 1
}

// SufficientFactorsEnabled reports whether the subject's enabled factors
// meet the current minimum. During sign-up one enabled factor suffices
// unless the injected policy mandates two; after sign-up the minimum is
// always one. Enrollment and steady state carry different minimums, so
// the distinction stays explicit here rather than as a single threshold.
func (p *MfaPolicy) SufficientFactorsEnabled() bool {
	minimum := 1
	if p.signingUp && p.requireMultiple {
		minimum = 2
	}
	return p.EnabledCount() >= minimum
}

// Unphishable reports whether the subject's posture resists phishing:
// zero phishable configurations exist and at least one unphishable one
// does. A subject with no configurations at all is not unphishable.
func (p *MfaPolicy) Unphishable() bool {
	phishable, unphishable := 0, 0
	for _, f := range p.factors {
		if f.Kind.Phishable() {
			phishable++
		} else {
			unphishable++
		}
	}
	return phishable == 0 && unphishable > 0
}
