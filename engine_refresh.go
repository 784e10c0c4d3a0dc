package authkit

import (
	"context"
	"fmt"
)

// Refresh rotates a refresh token: it verifies the token cryptographically,
// consumes it from the account's session set, and issues a fresh
// access+refresh pair with the account's current role and email.
//
// Consumption is single-use. The token is atomically removed before the new
// pair is issued, so when two callers race with the same token exactly one
// wins; the loser gets [ErrRefreshInvalid]. A token that verifies but is
// absent from the session set (revoked by logout, evicted by the cap, or
// already rotated) is likewise rejected.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if refreshToken == "" {
		return nil, ErrMissingToken
	}

	claims, err := e.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", ErrRefreshInvalid, nil)
		return nil, ErrRefreshInvalid
	}

	userID := claims.Subject

	// Consume before issuing. Removal doubles as the validity check, which
	// keeps the rotation race down to a single store operation.
	removed, err := e.sessions.RemoveRefreshToken(ctx, userID, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("refresh token consumption failed: %w", err)
	}
	if !removed {
		e.metricInc(MetricRefreshReuseDetected)
		e.emitAudit(ctx, auditEventRefreshReuseDetected, false, userID, claims.Email, ErrRefreshInvalid, func() map[string]string {
			return map[string]string{"reason": "not_in_session_set"}
		})
		return nil, ErrRefreshInvalid
	}

	rec, err := e.store.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("credential lookup failed: %w", err)
	}
	if !rec.IsActive {
		e.emitAudit(ctx, auditEventRefreshInvalid, false, rec.ID, rec.Email, ErrAccountDisabled, nil)
		return nil, ErrAccountDisabled
	}

	// Claims are re-read from the record so role or email changes since
	// login propagate into the rotated pair.
	identity := Identity{UserID: rec.ID, Email: rec.Email, Role: rec.Role}
	pair, err := e.issuePair(identity)
	if err != nil {
		return nil, fmt.Errorf("token issuance failed: %w", err)
	}

	if err := e.sessions.AddRefreshToken(ctx, rec.ID, pair.Refresh); err != nil {
		return nil, fmt.Errorf("session recording failed: %w", err)
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, rec.ID, rec.Email, nil, nil)

	return &TokenPair{AccessToken: pair.Access, RefreshToken: pair.Refresh}, nil
}
