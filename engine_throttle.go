package assurance

import (
	"context"
	"strconv"
)

// CheckAttempt consults the throttle before a new attempt is allowed.
// When maxed it returns [ErrThrottleExceeded] alongside a status whose
// RetryAfter tells the caller when the window reopens; the counter is
// never reset by consultation.
func (e *Engine) CheckAttempt(ctx context.Context, subjectID string, kind ThrottleKind) (ThrottleStatus, error) {
	if e == nil {
		return ThrottleStatus{}, ErrEngineNotReady
	}

	status, err := e.throttle.Status(ctx, subjectID, kind)
	if err != nil {
		return ThrottleStatus{}, err
	}
	if status.Maxed {
		e.metricInc(MetricThrottleMaxed)
		return status, ErrThrottleExceeded
	}
	return status, nil
}

// RecordAttempt counts a completed attempt, success or failure alike,
// after the attempt runs. Identity-verification style kinds depend on
// this symmetry: every submission burns budget regardless of outcome.
func (e *Engine) RecordAttempt(ctx context.Context, subjectID string, kind ThrottleKind) (ThrottleEntry, error) {
	if e == nil {
		return ThrottleEntry{}, ErrEngineNotReady
	}

	entry, err := e.throttle.RecordAttempt(ctx, subjectID, kind)
	if err != nil {
		return ThrottleEntry{}, err
	}
	e.metricInc(MetricThrottleAttempt)

	if kc, ok := e.config.Throttle.Kinds[kind]; ok && entry.Attempts >= kc.MaxAttempts {
		e.emitAudit(ctx, auditEventThrottleMaxed, false, subjectID, "", "", nil, map[string]string{
			"kind":     kind.String(),
			"attempts": strconv.Itoa(entry.Attempts),
		})
	}
	return entry, nil
}

// ResetThrottle clears a subject's counter, an operator action.
func (e *Engine) ResetThrottle(ctx context.Context, subjectID string, kind ThrottleKind) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := e.throttle.Reset(ctx, subjectID, kind); err != nil {
		return err
	}
	e.emitAudit(ctx, auditEventThrottleReset, true, subjectID, "", "", nil, map[string]string{
		"kind": kind.String(),
	})
	return nil
}
