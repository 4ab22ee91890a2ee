package assurance

import "time"

// ReauthnWindow decides whether a previously-completed MFA event is still
// fresh enough for sensitive actions (credential changes, factor removal,
// account deletion). Two states exist: fresh within the window of
// MfaCompletedAt, stale after it or when MFA never completed.
type ReauthnWindow struct {
	window time.Duration
}

// NewReauthnWindow builds a window checker with the configured duration.
func NewReauthnWindow(window time.Duration) *ReauthnWindow {
	return &ReauthnWindow{window: window}
}

// RequiresReauthentication reports whether the session is stale for
// sensitive actions as of now.
func (w *ReauthnWindow) RequiresReauthentication(sess *Session) bool {
	return w.RequiresReauthenticationAt(sess, time.Now())
}

// RequiresReauthenticationAt is the clock-explicit form. The transition
// to stale happens once more than the window has elapsed since
// MfaCompletedAt; at the boundary instant the session is still fresh.
func (w *ReauthnWindow) RequiresReauthenticationAt(sess *Session, now time.Time) bool {
	if sess == nil || sess.MfaCompletedAt.IsZero() {
		return true
	}
	return now.Sub(sess.MfaCompletedAt) > w.window
}
