// Package authkit provides the authentication and session-security core of the
// Verso CMS backend: credential verification, signed access/refresh token
// issuance, rotating single-use refresh tokens, and timed account lockout.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authkit is the public surface. It exposes [Engine], [Builder], [Config], the
// [Store] adapter contract, and value types (Identity, LoginResult,
// MetricsSnapshot). HTTP routing, CRUD handlers, and persistence of anything
// other than credential records live outside this module and consume it
// through [Engine] and the middleware package.
//
// # What this package must NOT do
//
//   - Expose store clients, hash material, or token secrets in its public API.
//   - Tell callers which token or credential check failed; failures collapse
//     to the coarse sentinel errors in errors.go.
//   - Perform I/O during construction (Builder is allocation-only until Build).
package authkit
