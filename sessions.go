package authkit

import "context"

// SessionManager maintains the bounded set of valid refresh tokens per
// account on top of a [Store]. Adding beyond the cap evicts the single oldest
// token; removal is single-use so that of two racing refreshes at most one
// succeeds.
type SessionManager struct {
	store Store
	cap   int
}

// NewSessionManager describes the newsessionmanager operation and its observable behavior.
//
// NewSessionManager does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewSessionManager(store Store, cap int) *SessionManager {
	if cap <= 0 {
		cap = 5
	}
	return &SessionManager{store: store, cap: cap}
}

// AddRefreshToken records a newly issued refresh token for the account,
// evicting the oldest token when the cap is exceeded. It never clears the
// whole set.
func (m *SessionManager) AddRefreshToken(ctx context.Context, userID, token string) error {
	return m.store.AddRefreshToken(ctx, userID, token, m.cap)
}

// RemoveRefreshToken removes one refresh token. The boolean reports whether
// this call removed it; false means the token was not in the set (already
// rotated, logged out, or never issued).
func (m *SessionManager) RemoveRefreshToken(ctx context.Context, userID, token string) (bool, error) {
	return m.store.RemoveRefreshToken(ctx, userID, token)
}

// ClearRefreshTokens invalidates every outstanding refresh token for the
// account. Outstanding access tokens remain valid until their own expiry or
// until the password-change check rejects them; that window is accepted.
func (m *SessionManager) ClearRefreshTokens(ctx context.Context, userID string) error {
	return m.store.ClearRefreshTokens(ctx, userID)
}

// IsValidRefreshToken reports whether the token is currently in the
// account's set.
func (m *SessionManager) IsValidRefreshToken(ctx context.Context, userID, token string) (bool, error) {
	tokens, err := m.store.RefreshTokens(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, t := range tokens {
		if t == token {
			return true, nil
		}
	}
	return false, nil
}
