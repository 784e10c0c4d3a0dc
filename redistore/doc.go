// Package redistore implements the authkit credential store on Redis.
//
// # Layout
//
//   - <prefix>:u:<id> — hash holding the credential record fields.
//   - <prefix>:e:<email> — string mapping a lowercased email to the id.
//   - <prefix>:rt:<id> — list of live refresh tokens, oldest first.
//
// # Atomicity
//
// The two operations with hard atomicity requirements run as Lua scripts so
// concurrent callers serialize inside Redis: RecordLoginFailure applies one
// failed-attempt transition (increment, fresh-window reset, or lockout
// trigger) in a single script, and Create claims the email mapping and
// writes the record together. RemoveRefreshToken relies on LREM, which is
// itself atomic, so of two racing removals exactly one reports success.
//
// Timestamps are stored as unix seconds. That matches the grain of JWT iat
// claims, which is what the password-change cutoff compares against.
package redistore
