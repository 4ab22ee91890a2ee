package assurance

import (
	"context"
	"fmt"
)

// FactorRegistry is the read surface over a subject's persisted factor
// configurations. All reads are side-effect-free; a configuration counts
// as enabled only when [FactorConfiguration.MfaEnabled] holds.
type FactorRegistry struct {
	provider FactorProvider
}

// NewFactorRegistry wraps a provider. The provider stays the single
// source of truth; the registry adds no caching.
func NewFactorRegistry(provider FactorProvider) *FactorRegistry {
	return &FactorRegistry{provider: provider}
}

// EnrolledFactors returns every configuration of the subject, enabled or
// not.
func (r *FactorRegistry) EnrolledFactors(ctx context.Context, subjectID string) ([]FactorConfiguration, error) {
	factors, err := r.provider.GetFactors(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return factors, nil
}

// EnabledCount returns the number of configurations counting toward MFA.
func (r *FactorRegistry) EnabledCount(ctx context.Context, subjectID string) (int, error) {
	factors, err := r.EnrolledFactors(ctx, subjectID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, f := range factors {
		if f.MfaEnabled() {
			n++
		}
	}
	return n, nil
}

// HasEnabledKind reports whether the subject has at least one enabled
// configuration of the given kind.
func (r *FactorRegistry) HasEnabledKind(ctx context.Context, subjectID string, kind FactorKind) (bool, error) {
	factors, err := r.EnrolledFactors(ctx, subjectID)
	if err != nil {
		return false, err
	}
	for _, f := range factors {
		if f.Kind == kind && f.MfaEnabled() {
			return true, nil
		}
	}
	return false, nil
}
