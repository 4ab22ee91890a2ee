package assurance

import (
	"testing"
	"time"
)

func TestRequiresReauthenticationBoundary(t *testing.T) {
	window := 15 * time.Minute
	w := NewReauthnWindow(window)
	completed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	sess := &Session{MfaCompletedAt: completed}

	cases := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"one second before expiry", completed.Add(window - time.Second), false},
		{"exactly at window", completed.Add(window), false},
		{"one second after window", completed.Add(window + time.Second), true},
		{"long stale", completed.Add(24 * time.Hour), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := w.RequiresReauthenticationAt(sess, tc.now); got != tc.want {
				t.Fatalf("RequiresReauthenticationAt = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRequiresReauthenticationWithoutMfa(t *testing.T) {
	w := NewReauthnWindow(15 * time.Minute)

	if !w.RequiresReauthenticationAt(nil, time.Now()) {
		t.Fatal("nil session must require reauthentication")
	}
	if !w.RequiresReauthenticationAt(&Session{}, time.Now()) {
		t.Fatal("session without completed MFA must require reauthentication")
	}
}
