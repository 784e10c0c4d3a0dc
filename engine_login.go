package authkit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"
)

// Login verifies the supplied credentials and, on success, issues an
// access+refresh pair and records the refresh token in the account's session
// set.
//
// Lockout semantics: while a lock is active the attempt is rejected with
// [ErrAccountLocked] before the password is examined. A failed attempt is
// recorded as one atomic store transition — concurrent failures against the
// same account never lose increments — and the attempt that reaches the
// threshold starts the lock window. An expired lock makes the next failure
// count as attempt 1; any success clears attempts and lock together.
//
// Unknown email and wrong password both return [ErrInvalidCredentials] to
// prevent account enumeration.
func (e *Engine) Login(ctx context.Context, email, plaintext string) (*LoginResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if email == "" || plaintext == "" {
		return nil, ErrValidation
	}

	rec, err := e.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, "", email, ErrInvalidCredentials, func() map[string]string {
				return map[string]string{"reason": "unknown_email"}
			})
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("credential lookup failed: %w", err)
	}

	now := time.Now()
	if rec.Locked(now) {
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, auditEventLoginLocked, false, rec.ID, email, ErrAccountLocked, func() map[string]string {
			return map[string]string{"lock_until": rec.LockUntil.UTC().Format(time.RFC3339)}
		})
		return nil, ErrAccountLocked
	}

	if !rec.IsActive {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, rec.ID, email, ErrAccountDisabled, nil)
		return nil, ErrAccountDisabled
	}

	ok, err := e.hasher.Verify(plaintext, rec.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("password verification failed: %w", err)
	}
	if !ok {
		return nil, e.recordLoginFailure(ctx, rec, now)
	}

	if e.config.Password.UpgradeOnLogin {
		e.maybeUpgradeHash(ctx, rec, plaintext)
	}

	if err := e.store.ResetLoginState(ctx, rec.ID, now); err != nil {
		return nil, fmt.Errorf("login state reset failed: %w", err)
	}

	identity := Identity{UserID: rec.ID, Email: rec.Email, Role: rec.Role}
	pair, err := e.issuePair(identity)
	if err != nil {
		return nil, fmt.Errorf("token issuance failed: %w", err)
	}

	if err := e.sessions.AddRefreshToken(ctx, rec.ID, pair.Refresh); err != nil {
		return nil, fmt.Errorf("session recording failed: %w", err)
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, rec.ID, email, nil, nil)

	return &LoginResult{
		Identity:     identity,
		AccessToken:  pair.Access,
		RefreshToken: pair.Refresh,
	}, nil
}

// recordLoginFailure applies one failed-attempt transition at the store and
// maps the outcome. The attempt that trips the threshold still reports
// invalid credentials; the lock takes effect from the next attempt.
func (e *Engine) recordLoginFailure(ctx context.Context, rec *CredentialRecord, now time.Time) error {
	attempts, lockUntil, err := e.store.RecordLoginFailure(
		ctx,
		rec.ID,
		e.config.Lockout.Threshold,
		e.config.Lockout.Duration,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed attempt recording failed: %w", err)
	}

	e.metricInc(MetricLoginFailure)

	if lockUntil != nil && lockUntil.After(now) && attempts >= e.config.Lockout.Threshold {
		e.metricInc(MetricLockoutTriggered)
		e.emitAudit(ctx, auditEventLockoutTriggered, false, rec.ID, rec.Email, ErrAccountLocked, func() map[string]string {
			return map[string]string{
				"attempts":   strconv.Itoa(attempts),
				"lock_until": lockUntil.UTC().Format(time.RFC3339),
			}
		})
	} else {
		e.emitAudit(ctx, auditEventLoginFailure, false, rec.ID, rec.Email, ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"attempts": strconv.Itoa(attempts)}
		})
	}

	return ErrInvalidCredentials
}

// maybeUpgradeHash re-hashes the password under current parameters without
// touching PasswordChangedAt, so outstanding tokens stay valid.
func (e *Engine) maybeUpgradeHash(ctx context.Context, rec *CredentialRecord, plaintext string) {
	upgrade, err := e.hasher.NeedsRehash(rec.PasswordHash)
	if err != nil || !upgrade {
		return
	}

	newHash, err := e.hasher.Hash(plaintext)
	if err != nil {
		log.Print("authkit: password hash upgrade generation failed")
		return
	}
	if err := e.store.UpdatePasswordHash(ctx, rec.ID, newHash, rec.PasswordChangedAt); err != nil {
		log.Print("authkit: password hash upgrade update failed")
	}
}
