package assurance

import (
	"context"
	"errors"
	"time"
)

// Decide answers whether the session may proceed to the relying party
// and, if not, what is required next. Policy failures come back as
// outcomes with a nil error; only backend unavailability returns an
// error, and no outcome from an errored call may be acted on.
//
// Device trust is consulted only after session-based assurance fails: an
// already fully-authenticated session is never downgraded by an absent
// or expired device token.
func (e *Engine) Decide(ctx context.Context, sess *Session, sp SPContext, deviceToken string) (Outcome, error) {
	if e == nil {
		return OutcomeRequireCredential, ErrEngineNotReady
	}

	outcome, err := e.decide(ctx, sess, sp, deviceToken, time.Now())
	if err != nil {
		return outcome, err
	}

	e.recordDecision(ctx, sess, sp, outcome, auditEventDecision)
	return outcome, nil
}

func (e *Engine) decide(ctx context.Context, sess *Session, sp SPContext, deviceToken string, now time.Time) (Outcome, error) {
	if sess.Expired(now) {
		return OutcomeRequireCredential, nil
	}

	factors, err := e.registry.EnrolledFactors(ctx, sess.SubjectID)
	if err != nil {
		return OutcomeRequireCredential, err
	}
	policy := e.policyFor(sess, factors)

	// A subject with no enabled factor can be challenged with nothing;
	// trust tokens are only minted at MFA completion, so setup is the one
	// path forward.
	if !policy.TwoFactorEnabled() {
		return OutcomeRequireAdditionalFactorSetup, nil
	}

	fully := !sess.MfaCompletedAt.IsZero() &&
		!e.reauthn.RequiresReauthenticationAt(sess, now)

	if fully {
		if !policy.SufficientFactorsEnabled() {
			return OutcomeRequireAdditionalFactorSetup, nil
		}
		return OutcomeProceed, nil
	}

	trusted, err := e.devices.IsTrusted(ctx, sess.SubjectID, deviceToken, sp)
	if err != nil {
		return OutcomeRequireMfaChallenge, err
	}
	if trusted {
		// Trust satisfies this sp_context only; MfaCompletedAt stays
		// untouched so a later, stricter provider re-evaluates from scratch.
		e.metricInc(MetricDeviceTrustHit)
		return OutcomeProceed, nil
	}
	if deviceToken != "" {
		e.metricInc(MetricDeviceTrustMiss)
	}
	return OutcomeRequireMfaChallenge, nil
}

// DecideByID is Decide over a stored session id. A missing or expired
// session maps to RequireCredential with a nil error.
func (e *Engine) DecideByID(ctx context.Context, sessionID string, sp SPContext, deviceToken string) (Outcome, error) {
	if e == nil {
		return OutcomeRequireCredential, ErrEngineNotReady
	}

	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrSessionExpired) {
			e.recordDecision(ctx, nil, sp, OutcomeRequireCredential, auditEventDecision)
			return OutcomeRequireCredential, nil
		}
		return OutcomeRequireCredential, err
	}
	return e.Decide(ctx, sess, sp, deviceToken)
}

// DecideSensitive gates a sensitive action (credential change, factor
// removal, account deletion). On top of Decide it demands a fresh MFA
// event within the reauthentication window; when stale, the resumption
// target is stored on the session so the web layer can return the user
// to the original action after reauthenticating.
func (e *Engine) DecideSensitive(ctx context.Context, sess *Session, sp SPContext, deviceToken, resumeTo string) (Outcome, error) {
	if e == nil {
		return OutcomeRequireCredential, ErrEngineNotReady
	}

	now := time.Now()
	outcome, err := e.decide(ctx, sess, sp, deviceToken, now)
	if err != nil {
		return outcome, err
	}

	stale := e.reauthn.RequiresReauthenticationAt(sess, now)
	demandsFresh := outcome == OutcomeProceed ||
		(outcome == OutcomeRequireMfaChallenge && !sess.MfaCompletedAt.IsZero())
	if stale && demandsFresh {
		// Proceed lands here when a remembered device satisfied Decide:
		// the device skips the challenge for the relying party, never for
		// sensitive actions.
		sess.PendingAction = resumeTo
		if err := e.sessions.Save(ctx, sess); err != nil {
			return OutcomeRequireReauthentication, err
		}
		outcome = OutcomeRequireReauthentication
	}

	e.recordDecision(ctx, sess, sp, outcome, auditEventSensitiveDecision)
	return outcome, nil
}

// ConfirmReauthenticated records a completed credential + MFA round-trip
// for a sensitive action. It resets the freshness window, clears the
// stored resumption target, and returns it so the caller can redirect.
// The session write is the last effect of the call.
func (e *Engine) ConfirmReauthenticated(ctx context.Context, sess *Session) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}

	resumeTo := sess.PendingAction
	sess.MfaCompletedAt = time.Now()
	sess.PendingAction = ""
	if err := e.sessions.Save(ctx, sess); err != nil {
		return "", err
	}

	e.emitAudit(ctx, auditEventReauthnConfirmed, true, sess.SubjectID, sess.ID, "", nil, nil)
	return resumeTo, nil
}

// CompleteMfaChallenge marks the session fully authenticated after the
// web layer verified a second factor. With rememberDevice set, a trust
// token is issued under the tier matching sp before the session write;
// the session mutation stays the last write so a failed issuance leaves
// no partial assurance state.
func (e *Engine) CompleteMfaChallenge(ctx context.Context, sess *Session, sp SPContext, rememberDevice bool) (*DeviceTrust, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	var trust *DeviceTrust
	if rememberDevice {
		issued, err := e.devices.Issue(ctx, sess.SubjectID, sp)
		if err != nil {
			return nil, err
		}
		trust = &issued
		e.metricInc(MetricDeviceTrustIssued)
		e.emitAudit(ctx, auditEventDeviceTrustIssued, true, sess.SubjectID, sess.ID, sp.Issuer, nil, map[string]string{
			"expires_at": issued.ExpiresAt.UTC().Format(time.RFC3339),
		})
	}

	sess.MfaCompletedAt = time.Now()
	if err := e.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}

	e.metricInc(MetricMfaCompleted)
	e.emitAudit(ctx, auditEventMfaCompleted, true, sess.SubjectID, sess.ID, sp.Issuer, nil, nil)
	return trust, nil
}

// RevokeDevice invalidates one remembered device immediately.
func (e *Engine) RevokeDevice(ctx context.Context, subjectID, deviceToken string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := e.devices.Revoke(ctx, subjectID, deviceToken); err != nil {
		return err
	}
	e.metricInc(MetricDeviceTrustRevoked)
	e.emitAudit(ctx, auditEventDeviceTrustRevoked, true, subjectID, "", "", nil, nil)
	return nil
}

func (e *Engine) recordDecision(ctx context.Context, sess *Session, sp SPContext, outcome Outcome, eventType string) {
	switch outcome {
	case OutcomeProceed:
		e.metricInc(MetricDecideProceed)
	case OutcomeRequireCredential:
		e.metricInc(MetricDecideRequireCredential)
	case OutcomeRequireMfaChallenge:
		e.metricInc(MetricDecideRequireMfaChallenge)
	case OutcomeRequireAdditionalFactorSetup:
		e.metricInc(MetricDecideRequireFactorSetup)
	case OutcomeRequireReauthentication:
		e.metricInc(MetricDecideRequireReauthn)
	}

	subjectID, sessionID := "", ""
	if sess != nil {
		subjectID, sessionID = sess.SubjectID, sess.ID
	}
	e.emitAudit(ctx, eventType, outcome == OutcomeProceed, subjectID, sessionID, sp.Issuer, nil, map[string]string{
		"outcome": outcome.String(),
	})
}
