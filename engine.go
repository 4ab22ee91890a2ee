package assurance

import (
	"context"
	"time"
)

// Engine is the single entry point for assurance decisions. All former
// per-request hook chains collapse into [Engine.Decide] and its
// sensitive-action variant, so ordering between checks is explicit here
// rather than spread across the web layer.
type Engine struct {
	config   Config
	sessions *SessionStore
	throttle *ThrottleStore
	devices  *RememberedDeviceStore
	registry *FactorRegistry
	reauthn  *ReauthnWindow
	provider FactorProvider
	audit    *auditDispatcher
	metrics  *Metrics
}

// Close drains the audit dispatcher. Safe on nil.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// Sessions exposes the session store for the web boundary.
func (e *Engine) Sessions() *SessionStore {
	if e == nil {
		return nil
	}
	return e.sessions
}

// Registry exposes factor reads for the web boundary.
func (e *Engine) Registry() *FactorRegistry {
	if e == nil {
		return nil
	}
	return e.registry
}

// Devices exposes the remembered-device store for the web boundary.
func (e *Engine) Devices() *RememberedDeviceStore {
	if e == nil {
		return nil
	}
	return e.devices
}

// Throttles exposes the throttle store for the web boundary.
func (e *Engine) Throttles() *ThrottleStore {
	if e == nil {
		return nil
	}
	return e.throttle
}

// ReauthnWindow exposes the freshness checker.
func (e *Engine) ReauthnWindow() *ReauthnWindow {
	if e == nil {
		return nil
	}
	return e.reauthn
}

// AuditDropped returns how many audit events overflowed the buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, subjectID, sessionID, issuer string, err error, metadata map[string]string) {
	if e == nil || e.audit == nil {
		return
	}
	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: eventType,
		SubjectID: subjectID,
		SessionID: sessionID,
		Issuer:    issuer,
		Success:   success,
		Metadata:  metadata,
	}
	if err != nil {
		event.Error = err.Error()
	}
	e.audit.Emit(ctx, event)
}

// policyFor snapshots the subject's factors into a pure policy bound to
// the session's sign-up flag.
func (e *Engine) policyFor(sess *Session, factors []FactorConfiguration) *MfaPolicy {
	requireMultiple := false
	if fn := e.config.Policy.RequireMultipleFactorsOnSignup; fn != nil && sess != nil {
		requireMultiple = fn(sess.SubjectID)
	}
	signingUp := sess != nil && sess.SigningUp
	return NewMfaPolicy(factors, signingUp, requireMultiple)
}

// PolicyFor loads the subject's factors and returns the policy snapshot
// for the session.
func (e *Engine) PolicyFor(ctx context.Context, sess *Session) (*MfaPolicy, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	factors, err := e.registry.EnrolledFactors(ctx, sess.SubjectID)
	if err != nil {
		return nil, err
	}
	return e.policyFor(sess, factors), nil
}
