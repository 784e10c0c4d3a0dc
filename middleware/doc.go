// Package middleware exposes HTTP middleware adapters for mandatory,
// optional, and role-gated authentication built on top of authkit.Engine
// validation.
//
// # Guards
//
//   - [Authenticate] — rejects requests without a valid bearer token.
//   - [OptionalAuthenticate] — attaches the caller when a valid token is
//     present, passes anonymous requests through untouched.
//   - [Authorize] — role allow-list on top of [Authenticate].
//
// Each guard reads the Authorization header, calls Engine.Authenticate, and
// injects the authenticated user into the request context.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself — all decisions are delegated to
// Engine.Authenticate.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access the credential store (Engine handles I/O).
//   - Leak why a rejection happened: every authentication failure is a
//     uniform 401, and only role mismatches surface as 403.
package middleware
