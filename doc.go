// Package assurance implements the authentication-assurance engine of an
// identity provider: the per-request decision of whether an authenticated
// session satisfies the multi-factor and recency requirements demanded by
// the subject's enrolled factors, the relying service provider's declared
// AAL/IAL, and the configured time policies (session idle timeout,
// reauthentication window, remembered-device trust tiers, attempt
// throttling).
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// assurance is the public surface. It exposes [Engine], [Builder],
// [Config], value types (Session, FactorConfiguration, SPContext,
// ThrottleEntry, ...) and the [Outcome] enum. Shared primitives live under
// internal/ and are never exported.
//
// The web boundary stays outside this package: it maps each [Outcome] to a
// redirect or rejection, sets the remembered-device cookie from the token
// string returned by [Engine.CompleteMfaChallenge], and implements
// [FactorProvider] against its user database. This package never renders,
// delivers OTPs, or serializes OIDC/SAML assertions.
//
// # Decision contract
//
// Policy failures are first-class [Outcome] values, never errors.
// Throttle exhaustion, stale reauthentication, and absent or invalid
// device tokens all translate into outcomes; only backend unavailability
// (Redis unreachable, provider failure) propagates as an error.
//
// # Expiry model
//
// No background sweeps exist. Session deadlines, throttle windows, and
// device-trust TTLs are compared against the clock lazily at read time.
// Throttle increments use a WATCH-based read-modify-write so concurrent
// attempts for the same subject never lose updates.
package assurance
