package authkit

import (
	"context"
	"fmt"
)

// Deactivate disables an account and revokes every session it holds.
// Subsequent logins, refreshes, and authenticated requests for the account
// fail with [ErrAccountDisabled] until it is reactivated.
func (e *Engine) Deactivate(ctx context.Context, userID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if userID == "" {
		return ErrValidation
	}

	if err := e.store.SetActive(ctx, userID, false); err != nil {
		return fmt.Errorf("account deactivation failed: %w", err)
	}
	if err := e.sessions.ClearRefreshTokens(ctx, userID); err != nil {
		return fmt.Errorf("%w: %v", ErrSessionInvalidationFailed, err)
	}

	e.metricInc(MetricAccountDeactivated)
	e.emitAudit(ctx, auditEventAccountStatusChange, true, userID, "", nil, func() map[string]string {
		return map[string]string{"active": "false"}
	})
	return nil
}

// Reactivate re-enables a previously deactivated account. Sessions revoked
// by the deactivation are not restored; the account logs in fresh.
func (e *Engine) Reactivate(ctx context.Context, userID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if userID == "" {
		return ErrValidation
	}

	if err := e.store.SetActive(ctx, userID, true); err != nil {
		return fmt.Errorf("account reactivation failed: %w", err)
	}

	e.emitAudit(ctx, auditEventAccountStatusChange, true, userID, "", nil, func() map[string]string {
		return map[string]string{"active": "true"}
	})
	return nil
}

// User returns the account's public profile by id.
func (e *Engine) User(ctx context.Context, userID string) (*AuthUser, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if userID == "" {
		return nil, ErrValidation
	}

	rec, err := e.store.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &AuthUser{ID: rec.ID, Email: rec.Email, Role: rec.Role, LastLogin: rec.LastLogin}, nil
}
