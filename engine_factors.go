package assurance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnrollFactor creates a configuration for the subject. Kinds requiring
// confirmation start unconfirmed and do not count toward MFA until
// [Engine.ConfirmFactor] completes; backup codes are live immediately.
func (e *Engine) EnrollFactor(ctx context.Context, subjectID string, kind FactorKind, name string) (FactorConfiguration, error) {
	if e == nil {
		return FactorConfiguration{}, ErrEngineNotReady
	}

	now := time.Now()
	cfg := FactorConfiguration{
		ID:        uuid.NewString(),
		SubjectID: subjectID,
		Kind:      kind,
		Name:      name,
		Enabled:   true,
		CreatedAt: now,
	}
	if !kind.RequiresConfirmation() {
		cfg.ConfirmedAt = now
	}

	created, err := e.provider.CreateFactor(ctx, cfg)
	if err != nil {
		return FactorConfiguration{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	e.metricInc(MetricFactorEnrolled)
	e.emitAudit(ctx, auditEventFactorEnrolled, true, subjectID, "", "", nil, map[string]string{
		"kind": kind.String(),
	})
	return created, nil
}

// ConfirmFactor records a successful confirmation round-trip (OTP entry,
// credential ceremony) for the configuration.
func (e *Engine) ConfirmFactor(ctx context.Context, subjectID, factorID string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	cfg, err := e.findFactor(ctx, subjectID, factorID)
	if err != nil {
		return err
	}

	cfg.ConfirmedAt = time.Now()
	cfg.Enabled = true
	if err := e.provider.UpdateFactor(ctx, cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	e.metricInc(MetricFactorConfirmed)
	e.emitAudit(ctx, auditEventFactorConfirmed, true, subjectID, "", "", nil, map[string]string{
		"kind": cfg.Kind.String(),
	})
	return nil
}

// RenameFactor updates the user-facing label of a configuration.
func (e *Engine) RenameFactor(ctx context.Context, subjectID, factorID, name string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	cfg, err := e.findFactor(ctx, subjectID, factorID)
	if err != nil {
		return err
	}

	cfg.Name = name
	if err := e.provider.UpdateFactor(ctx, cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return nil
}

// RemoveFactor deletes a configuration at the subject's request. Removal
// that would leave zero enabled factors is refused: MFA stays mandatory
// once established, so the last enabled factor can only be replaced,
// never dropped.
func (e *Engine) RemoveFactor(ctx context.Context, subjectID, factorID string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	factors, err := e.registry.EnrolledFactors(ctx, subjectID)
	if err != nil {
		return err
	}

	var target *FactorConfiguration
	enabledOthers := 0
	for i := range factors {
		if factors[i].ID == factorID {
			target = &factors[i]
			continue
		}
		if factors[i].MfaEnabled() {
			enabledOthers++
		}
	}
	if target == nil {
		return ErrFactorNotFound
	}

	if target.MfaEnabled() && enabledOthers == 0 {
		e.emitAudit(ctx, auditEventFactorRemovalDenied, false, subjectID, "", "", ErrLastFactorRemoval, map[string]string{
			"kind": target.Kind.String(),
		})
		return ErrLastFactorRemoval
	}

	if err := e.provider.DeleteFactor(ctx, subjectID, factorID); err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	e.metricInc(MetricFactorRemoved)
	e.emitAudit(ctx, auditEventFactorRemoved, true, subjectID, "", "", nil, map[string]string{
		"kind": target.Kind.String(),
	})
	return nil
}

func (e *Engine) findFactor(ctx context.Context, subjectID, factorID string) (FactorConfiguration, error) {
	factors, err := e.registry.EnrolledFactors(ctx, subjectID)
	if err != nil {
		return FactorConfiguration{}, err
	}
	for _, f := range factors {
		if f.ID == factorID {
			return f, nil
		}
	}
	return FactorConfiguration{}, ErrFactorNotFound
}
