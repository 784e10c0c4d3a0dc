package authkit

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/verso-cms/authkit/internal/audit"
)

// Role classifies an account for authorization decisions. Authorization in
// the CMS is based solely on this value.
type Role string

const (
	// RoleAdmin is an exported constant or variable used by the authentication engine.
	RoleAdmin Role = "admin"
	// RoleEditor is an exported constant or variable used by the authentication engine.
	RoleEditor Role = "editor"
	// RoleUser is an exported constant or variable used by the authentication engine.
	RoleUser Role = "user"
)

func validRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleEditor, RoleUser:
		return true
	}
	return false
}

// Identity is the minimal tuple carried inside signed tokens and returned by
// login. It never includes credential material.
type Identity struct {
	UserID string
	Email  string
	Role   Role
}

// AuthUser is the authenticated caller attached to a request context by the
// middleware package after [Engine.Authenticate] succeeds.
type AuthUser struct {
	ID        string
	Email     string
	Role      Role
	LastLogin time.Time
}

// LoginResult is returned by [Engine.Login].
type LoginResult struct {
	Identity     Identity
	AccessToken  string
	RefreshToken string
}

// TokenPair is returned by [Engine.Refresh].
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// CredentialRecord is the full account record owned by the credential store.
// PasswordHash never leaves the store/engine boundary.
type CredentialRecord struct {
	ID                string
	Email             string
	PasswordHash      string
	FullName          string
	Role              Role
	IsActive          bool
	LastLogin         time.Time
	PasswordChangedAt time.Time
	LoginAttempts     int
	LockUntil         *time.Time
	RefreshTokens     []string
}

// Locked reports whether a lockout window is active at the given instant.
func (r *CredentialRecord) Locked(now time.Time) bool {
	return r.LockUntil != nil && r.LockUntil.After(now)
}

// RegisterInput is the input for [Engine.Register]. Password is plaintext;
// the engine hashes it before anything reaches the store.
type RegisterInput struct {
	Email    string
	Password string
	FullName string
	Role     Role
}

// CreateUserInput is the input for [Store.Create].
type CreateUserInput struct {
	ID                string
	Email             string
	PasswordHash      string
	FullName          string
	Role              Role
	IsActive          bool
	PasswordChangedAt time.Time
}

// Store is the credential store adapter that callers must implement (or take
// from the redistore/pgstore packages) to integrate authkit with their user
// database.
//
// Implementations must return [ErrUserNotFound] for missing accounts and
// [ErrDuplicateEmail] from Create when the email is already on file. Emails
// are compared case-insensitively; the engine always passes them lowercased.
//
// RecordLoginFailure and RemoveRefreshToken are the two operations with
// hard atomicity requirements: concurrent calls against the same account must
// serialize at the store, not in application code. RecordLoginFailure applies
// one failed-attempt transition (increment, fresh-window reset, or lockout
// trigger) and reports the resulting state; RemoveRefreshToken deletes the
// token and reports whether this call was the one that removed it, so that
// of two racing refreshes at most one observes true.
type Store interface {
	FindByID(ctx context.Context, id string) (*CredentialRecord, error)
	FindByEmail(ctx context.Context, email string) (*CredentialRecord, error)
	Create(ctx context.Context, input CreateUserInput) (*CredentialRecord, error)

	RecordLoginFailure(ctx context.Context, id string, threshold int, lockFor time.Duration, now time.Time) (attempts int, lockUntil *time.Time, err error)
	ResetLoginState(ctx context.Context, id string, lastLogin time.Time) error

	UpdatePasswordHash(ctx context.Context, id, hash string, changedAt time.Time) error
	SetActive(ctx context.Context, id string, active bool) error

	AddRefreshToken(ctx context.Context, id, token string, cap int) error
	RemoveRefreshToken(ctx context.Context, id, token string) (bool, error)
	ClearRefreshTokens(ctx context.Context, id string) error
	RefreshTokens(ctx context.Context, id string) ([]string, error)
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
