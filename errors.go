package assurance

import "errors"

var (
	// ErrEngineNotReady is returned when a method is called on a nil or
	// unbuilt Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrSessionNotFound is returned when no session exists for the given id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired is returned when the session deadline has passed.
	ErrSessionExpired = errors.New("session expired")
	// ErrThrottleExceeded is returned when attempts are maxed within the
	// current window. It must not reset the counter early.
	ErrThrottleExceeded = errors.New("attempt throttle exceeded")
	// ErrThrottleKindUnknown is returned for a throttle kind with no
	// configured limits.
	ErrThrottleKindUnknown = errors.New("unknown throttle kind")
	// ErrFactorNotFound is returned when a factor id does not belong to the
	// subject.
	ErrFactorNotFound = errors.New("factor not found")
	// ErrLastFactorRemoval is returned when removing a factor would leave
	// the subject with zero enabled factors while MFA is required.
	ErrLastFactorRemoval = errors.New("cannot remove last enabled factor")
	// ErrSessionUnavailable wraps session store backend failures.
	ErrSessionUnavailable = errors.New("session backend unavailable")
	// ErrThrottleUnavailable wraps throttle store backend failures.
	ErrThrottleUnavailable = errors.New("throttle backend unavailable")
	// ErrDeviceTrustUnavailable wraps remembered-device backend failures.
	ErrDeviceTrustUnavailable = errors.New("device trust backend unavailable")
	// ErrProviderUnavailable wraps factor provider failures.
	ErrProviderUnavailable = errors.New("factor provider unavailable")
	// ErrDeviceSigningKeyMissing is returned at build time when device
	// trust is used without a signing key.
	ErrDeviceSigningKeyMissing = errors.New("remembered device signing key missing")
)
