package assurance

import "sync/atomic"

// MetricID identifies one engine counter.
type MetricID uint16

const (
	// MetricDecideProceed counts decisions that let the request through.
	MetricDecideProceed MetricID = iota
	// MetricDecideRequireCredential counts absent/expired-session decisions.
	MetricDecideRequireCredential
	// MetricDecideRequireMfaChallenge counts second-factor demands.
	MetricDecideRequireMfaChallenge
	// MetricDecideRequireFactorSetup counts factor-enrollment redirects.
	MetricDecideRequireFactorSetup
	// MetricDecideRequireReauthn counts sensitive-action freshness demands.
	MetricDecideRequireReauthn
	// MetricDeviceTrustHit counts decisions satisfied by a remembered device.
	MetricDeviceTrustHit
	// MetricDeviceTrustMiss counts rejected device tokens.
	MetricDeviceTrustMiss
	// MetricDeviceTrustIssued counts issued trust tokens.
	MetricDeviceTrustIssued
	// MetricDeviceTrustRevoked counts revocations.
	MetricDeviceTrustRevoked
	// MetricThrottleMaxed counts attempts blocked by a maxed counter.
	MetricThrottleMaxed
	// MetricThrottleAttempt counts recorded attempts.
	MetricThrottleAttempt
	// MetricFactorEnrolled counts factor enrollments.
	MetricFactorEnrolled
	// MetricFactorConfirmed counts factor confirmations.
	MetricFactorConfirmed
	// MetricFactorRemoved counts factor removals.
	MetricFactorRemoved
	// MetricMfaCompleted counts completed MFA challenges.
	MetricMfaCompleted

	metricCount
)

// Metrics is a fixed set of atomic counters. Inc is wait-free; Snapshot
// copies the counters into a map for export.
type Metrics struct {
	enabled  bool
	counters [metricCount]atomic.Uint64
}

func newMetrics(cfg MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return nil
	}
	return &Metrics{enabled: true}
}

// Inc adds one to the counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricCount {
		return
	}
	m.counters[id].Add(1)
}

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// Snapshot copies the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{Counters: make(map[MetricID]uint64, metricCount)}
	if m == nil || !m.enabled {
		return snap
	}
	for id := MetricID(0); id < metricCount; id++ {
		snap.Counters[id] = m.counters[id].Load()
	}
	return snap
}
