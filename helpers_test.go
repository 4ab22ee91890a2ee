package assurance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeProvider struct {
	mu      sync.Mutex
	factors map[string][]FactorConfiguration
	fail    error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{factors: map[string][]FactorConfiguration{}}
}

func (p *fakeProvider) GetFactors(_ context.Context, subjectID string) ([]FactorConfiguration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return nil, p.fail
	}
	out := make([]FactorConfiguration, len(p.factors[subjectID]))
	copy(out, p.factors[subjectID])
	return out, nil
}

func (p *fakeProvider) CreateFactor(_ context.Context, cfg FactorConfiguration) (FactorConfiguration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return FactorConfiguration{}, p.fail
	}
	p.factors[cfg.SubjectID] = append(p.factors[cfg.SubjectID], cfg)
	return cfg, nil
}

func (p *fakeProvider) UpdateFactor(_ context.Context, cfg FactorConfiguration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	list := p.factors[cfg.SubjectID]
	for i := range list {
		if list[i].ID == cfg.ID {
			list[i] = cfg
			return nil
		}
	}
	return errors.New("factor missing")
}

func (p *fakeProvider) DeleteFactor(_ context.Context, subjectID, factorID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	list := p.factors[subjectID]
	for i := range list {
		if list[i].ID == factorID {
			p.factors[subjectID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return errors.New("factor missing")
}

func (p *fakeProvider) seed(cfg FactorConfiguration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.factors[cfg.SubjectID] = append(p.factors[cfg.SubjectID], cfg)
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.RememberedDevice.SigningKey = []byte("test-device-signing-key-0123456789")
	return cfg
}

func newTestEngine(t *testing.T, cfg Config, provider *fakeProvider) (*Engine, *miniredis.Miniredis, func()) {
	t.Helper()
	return newTestEngineWithSink(t, cfg, provider, nil)
}

func newTestEngineWithSink(t *testing.T, cfg Config, provider *fakeProvider, sink AuditSink) (*Engine, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithFactorProvider(provider)
	if sink != nil {
		b = b.WithAuditSink(sink)
	}
	engine, err := b.Build()
	if err != nil {
		mr.Close()
		t.Fatalf("build failed: %v", err)
	}

	return engine, mr, func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	}
}

func enabledPhone(subjectID string) FactorConfiguration {
	return FactorConfiguration{
		ID:          "phone-1",
		SubjectID:   subjectID,
		Kind:        FactorPhone,
		Enabled:     true,
		ConfirmedAt: time.Now().Add(-time.Hour),
		Default:     true,
	}
}

func enabledWebauthn(subjectID string) FactorConfiguration {
	return FactorConfiguration{
		ID:          "webauthn-1",
		SubjectID:   subjectID,
		Kind:        FactorWebauthn,
		Enabled:     true,
		ConfirmedAt: time.Now().Add(-time.Hour),
	}
}

func activeSession(subjectID string, mfaAge time.Duration) *Session {
	now := time.Now()
	sess := &Session{
		ID:              "sess-1",
		SubjectID:       subjectID,
		AuthenticatedAt: now.Add(-time.Minute),
		ExpiresAt:       now.Add(30 * time.Minute),
	}
	if mfaAge >= 0 {
		sess.MfaCompletedAt = now.Add(-mfaAge)
	}
	return sess
}

func aal1SP() SPContext {
	return SPContext{Issuer: "urn:gov:gsa:openidconnect:sp:test", AAL: 1, IAL: 1}
}

func aal2SP() SPContext {
	return SPContext{Issuer: "urn:gov:gsa:openidconnect:sp:test", AAL: 2, IAL: 1}
}
