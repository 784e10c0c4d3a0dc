package authkit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	internalaudit "github.com/verso-cms/authkit/internal/audit"
	"github.com/verso-cms/authkit/password"
	"github.com/verso-cms/authkit/token"
)

// Engine defines a public type used by authkit APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config   Config
	store    Store
	sessions *SessionManager
	tokens   *token.Manager
	hasher   *password.Hasher
	audit    *internalaudit.Dispatcher
	metrics  *Metrics
}

// Close describes the close operation and its observable behavior.
//
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && e.store != nil && e.sessions != nil && e.tokens != nil && e.hasher != nil
}

// Authenticate resolves a bearer access token to the current account state.
// It verifies the token signature/expiry/issuer/audience/class, loads the
// credential record, and rejects deactivated accounts and tokens issued
// before the last password change. All token-shaped failures surface as
// [ErrTokenInvalid]; account-state failures keep their own sentinels for
// the boundary to log, but middleware reports them all as unauthenticated.
func (e *Engine) Authenticate(ctx context.Context, tokenStr string) (*AuthUser, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if tokenStr == "" {
		return nil, ErrMissingToken
	}

	claims, err := e.tokens.VerifyAccess(tokenStr)
	if err != nil {
		e.metricInc(MetricTokenRejected)
		return nil, ErrTokenInvalid
	}

	rec, err := e.store.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricTokenRejected)
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("credential lookup failed: %w", err)
	}

	if !rec.IsActive {
		e.metricInc(MetricTokenRejected)
		return nil, ErrAccountDisabled
	}

	// JWT iat has second precision; compare on the same grain so a token
	// issued before the change is always rejected.
	if claims.IssuedAt != nil && claims.IssuedAt.Time.Unix() < rec.PasswordChangedAt.Unix() {
		e.metricInc(MetricTokenRejected)
		return nil, ErrPasswordChanged
	}

	return &AuthUser{
		ID:        rec.ID,
		Email:     rec.Email,
		Role:      rec.Role,
		LastLogin: rec.LastLogin,
	}, nil
}

func (e *Engine) issuePair(id Identity) (token.Pair, error) {
	return e.tokens.IssuePair(token.Identity{
		UserID: id.UserID,
		Email:  id.Email,
		Role:   string(id.Role),
	})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
