package assurance

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestDeviceStore(t *testing.T) (*RememberedDeviceStore, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRememberedDeviceStore(rdb, testConfig().RememberedDevice)

	return store, mr, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func TestDeviceTrustRoundTrip(t *testing.T) {
	store, _, done := newTestDeviceStore(t)
	defer done()
	ctx := context.Background()

	trust, err := store.Issue(ctx, "u1", aal1SP())
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if trust.Token == "" {
		t.Fatal("expected a token")
	}

	trusted, err := store.IsTrusted(ctx, "u1", trust.Token, aal1SP())
	if err != nil {
		t.Fatalf("IsTrusted failed: %v", err)
	}
	if !trusted {
		t.Fatal("freshly issued token must be trusted against the issuing sp context")
	}
}

func TestDeviceTrustTTLTiers(t *testing.T) {
	store, _, done := newTestDeviceStore(t)
	defer done()
	ctx := context.Background()
	cfg := testConfig().RememberedDevice

	long, err := store.Issue(ctx, "u1", aal1SP())
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if got := time.Until(long.ExpiresAt); got < cfg.LongTTL-time.Minute {
		t.Fatalf("aal1 issuance should use the long tier, expires in %v", got)
	}

	short, err := store.Issue(ctx, "u2", aal2SP())
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if got := time.Until(short.ExpiresAt); got > cfg.ShortTTL {
		t.Fatalf("aal2 issuance should use the short tier, expires in %v", got)
	}
}

func TestLongTierTokenRejectedByStrongSP(t *testing.T) {
	store, _, done := newTestDeviceStore(t)
	defer done()
	ctx := context.Background()

	trust, err := store.Issue(ctx, "u1", aal1SP())
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	// unexpired, but issued under a lower bar
	for _, sp := range []SPContext{
		{Issuer: "sp", AAL: 2, IAL: 1},
		{Issuer: "sp", AAL: 1, IAL: 2},
		{Issuer: "sp", AAL: 2, IAL: 2},
	} {
		trusted, err := store.IsTrusted(ctx, "u1", trust.Token, sp)
		if err != nil {
			t.Fatalf("IsTrusted failed: %v", err)
		}
		if trusted {
			t.Fatalf("long-tier token must not satisfy AAL%d/IAL%d", sp.AAL, sp.IAL)
		}
	}
}

func TestStrongTierTokenSatisfiesBothTiers(t *testing.T) {
	store, _, done := newTestDeviceStore(t)
	defer done()
	ctx := context.Background()

	trust, err := store.Issue(ctx, "u1", aal2SP())
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	for _, sp := range []SPContext{aal1SP(), aal2SP()} {
		trusted, err := store.IsTrusted(ctx, "u1", trust.Token, sp)
		if err != nil {
			t.Fatalf("IsTrusted failed: %v", err)
		}
		if !trusted {
			t.Fatalf("strong-tier token should satisfy AAL%d", sp.AAL)
		}
	}
}

func TestDeviceTrustExpires(t *testing.T) {
	store, _, done := newTestDeviceStore(t)
	defer done()
	ctx := context.Background()
	cfg := testConfig().RememberedDevice

	base := time.Now()
	store.now = func() time.Time { return base }

	trust, err := store.Issue(ctx, "u1", aal1SP())
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	store.now = func() time.Time { return base.Add(cfg.LongTTL + time.Second) }
	trusted, err := store.IsTrusted(ctx, "u1", trust.Token, aal1SP())
	if err != nil {
		t.Fatalf("IsTrusted failed: %v", err)
	}
	if trusted {
		t.Fatal("token past the long TTL must not be trusted")
	}
}

func TestDeviceTrustFailsClosed(t *testing.T) {
	store, _, done := newTestDeviceStore(t)
	defer done()
	ctx := context.Background()

	trust, err := store.Issue(ctx, "u1", aal1SP())
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	// flip the first signature character so the decoded bytes differ
	sigStart := strings.LastIndex(trust.Token, ".") + 1
	flipped := byte('A')
	if trust.Token[sigStart] == 'A' {
		flipped = 'Q'
	}
	tampered := trust.Token[:sigStart] + string(flipped) + trust.Token[sigStart+1:]

	cases := []struct {
		name    string
		subject string
		token   string
	}{
		{"empty token", "u1", ""},
		{"garbage token", "u1", "not-a-token"},
		{"wrong subject", "u2", trust.Token},
		{"tampered signature", "u1", tampered},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			trusted, err := store.IsTrusted(ctx, tc.subject, tc.token, aal1SP())
			if err != nil {
				t.Fatalf("IsTrusted must fail closed without error, got %v", err)
			}
			if trusted {
				t.Fatal("invalid token must not be trusted")
			}
		})
	}
}

func TestDeviceTrustWrongSigningKey(t *testing.T) {
	store, mr, done := newTestDeviceStore(t)
	defer done()
	ctx := context.Background()

	trust, err := store.Issue(ctx, "u1", aal1SP())
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	otherCfg := testConfig().RememberedDevice
	otherCfg.SigningKey = []byte("a-completely-different-signing-key")
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	other := NewRememberedDeviceStore(rdb, otherCfg)

	trusted, err := other.IsTrusted(ctx, "u1", trust.Token, aal1SP())
	if err != nil {
		t.Fatalf("IsTrusted failed: %v", err)
	}
	if trusted {
		t.Fatal("token signed under another key must not verify")
	}
}

func TestDeviceRevocation(t *testing.T) {
	store, _, done := newTestDeviceStore(t)
	defer done()
	ctx := context.Background()

	trust, err := store.Issue(ctx, "u1", aal1SP())
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if err := store.Revoke(ctx, "u1", trust.Token); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}

	trusted, err := store.IsTrusted(ctx, "u1", trust.Token, aal1SP())
	if err != nil {
		t.Fatalf("IsTrusted failed: %v", err)
	}
	if trusted {
		t.Fatal("revoked token must not be trusted")
	}
}

func TestRevokeAllDropsEveryDevice(t *testing.T) {
	store, _, done := newTestDeviceStore(t)
	defer done()
	ctx := context.Background()

	first, err := store.Issue(ctx, "u1", aal1SP())
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	second, err := store.Issue(ctx, "u1", aal2SP())
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	keep, err := store.Issue(ctx, "u2", aal1SP())
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	if err := store.RevokeAll(ctx, "u1"); err != nil {
		t.Fatalf("revoke all failed: %v", err)
	}

	for _, token := range []string{first.Token, second.Token} {
		trusted, err := store.IsTrusted(ctx, "u1", token, aal1SP())
		if err != nil {
			t.Fatalf("IsTrusted failed: %v", err)
		}
		if trusted {
			t.Fatal("revoked subject token must not be trusted")
		}
	}

	trusted, err := store.IsTrusted(ctx, "u2", keep.Token, aal1SP())
	if err != nil {
		t.Fatalf("IsTrusted failed: %v", err)
	}
	if !trusted {
		t.Fatal("another subject's trust must survive RevokeAll")
	}
}

func TestDeviceTokenShapeIsJWT(t *testing.T) {
	store, _, done := newTestDeviceStore(t)
	defer done()

	trust, err := store.Issue(context.Background(), "u1", aal1SP())
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if parts := strings.Split(trust.Token, "."); len(parts) != 3 {
		t.Fatalf("expected a three-part compact token, got %d parts", len(parts))
	}
}
