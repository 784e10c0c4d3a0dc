package authkit

import (
	"context"
	"fmt"
	"time"
)

// ChangePassword verifies the current password, stores a new argon2id hash,
// and revokes every session for the account. PasswordChangedAt is advanced
// to the moment of the change, which invalidates access tokens issued before
// it. The new pair returned here is the only surviving session.
func (e *Engine) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) (*TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if userID == "" || currentPassword == "" {
		return nil, ErrValidation
	}

	rec, err := e.store.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("credential lookup failed: %w", err)
	}
	if !rec.IsActive {
		return nil, ErrAccountDisabled
	}

	ok, err := e.hasher.Verify(currentPassword, rec.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("password verification failed: %w", err)
	}
	if !ok {
		e.metricInc(MetricPasswordChangeInvalidOld)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, rec.ID, rec.Email, ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}

	if err := e.checkPasswordPolicy(newPassword); err != nil {
		return nil, err
	}
	if newPassword == currentPassword {
		return nil, ErrPasswordReuse
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return nil, fmt.Errorf("password hashing failed: %w", err)
	}

	// The changed-at timestamp is the fence that retires earlier access
	// tokens. It must land before the new pair is issued.
	changedAt := time.Now()
	if err := e.store.UpdatePasswordHash(ctx, rec.ID, hash, changedAt); err != nil {
		return nil, fmt.Errorf("password update failed: %w", err)
	}

	if err := e.sessions.ClearRefreshTokens(ctx, rec.ID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionInvalidationFailed, err)
	}

	identity := Identity{UserID: rec.ID, Email: rec.Email, Role: rec.Role}
	pair, err := e.issuePair(identity)
	if err != nil {
		return nil, fmt.Errorf("token issuance failed: %w", err)
	}
	if err := e.sessions.AddRefreshToken(ctx, rec.ID, pair.Refresh); err != nil {
		return nil, fmt.Errorf("session recording failed: %w", err)
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, rec.ID, rec.Email, nil, nil)

	return &TokenPair{AccessToken: pair.Access, RefreshToken: pair.Refresh}, nil
}
