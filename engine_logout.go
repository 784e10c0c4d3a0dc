package authkit

import (
	"context"
	"fmt"
)

// Logout revokes a single session by removing its refresh token from the
// account's session set. The token must verify as a refresh token; removing
// a token that is no longer present is not an error, so logout is idempotent.
// The companion access token stays valid until it expires.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if refreshToken == "" {
		return ErrMissingToken
	}

	claims, err := e.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		e.metricInc(MetricTokenRejected)
		return ErrRefreshInvalid
	}

	if _, err := e.sessions.RemoveRefreshToken(ctx, claims.Subject, refreshToken); err != nil {
		return fmt.Errorf("%w: %v", ErrSessionInvalidationFailed, err)
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutSession, true, claims.Subject, claims.Email, nil, nil)

	return nil
}

// LogoutAll revokes every session for the account by clearing its refresh
// token set. Outstanding access tokens are not recalled; they age out within
// the access TTL. Callers that need an immediate cutoff should follow with a
// password change, which invalidates earlier access tokens.
func (e *Engine) LogoutAll(ctx context.Context, userID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if userID == "" {
		return ErrValidation
	}

	if err := e.sessions.ClearRefreshTokens(ctx, userID); err != nil {
		return fmt.Errorf("%w: %v", ErrSessionInvalidationFailed, err)
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, userID, "", nil, nil)

	return nil
}
