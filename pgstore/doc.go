// Package pgstore implements the authkit credential store on PostgreSQL.
//
// # Schema
//
// Two tables: auth_users holds the credential record, auth_refresh_tokens
// holds one row per live refresh token ordered by an insertion sequence.
// Schema management is goose migrations embedded in the binary; call
// [Store.Migrate] once at startup.
//
// # Atomicity
//
// RecordLoginFailure is a single UPDATE ... RETURNING whose CASE expressions
// evaluate against the pre-update row, so the whole lockout transition
// (increment, fresh-window reset, or lockout trigger) commits as one
// statement. RemoveRefreshToken is a single DELETE whose row count decides
// the winner when two refreshes race the same token.
package pgstore
