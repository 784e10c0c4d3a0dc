// Package token manages issuance and verification of the signed access and
// refresh tokens used by the authentication engine, with strict validation
// semantics (signature, expiry, issuer, audience, token class).
//
// All verification failures collapse to [ErrInvalid] so callers cannot probe
// which check failed; [ErrWrongClass] exists for internal logging only.
package token
