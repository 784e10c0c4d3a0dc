package authkit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Register creates a credential record for a new account. The email is
// lowercased and trimmed before the uniqueness check, the password is checked
// against the configured policy and hashed with argon2id, and the role
// defaults to [RoleUser] when empty. The plaintext password is never stored
// or logged.
func (e *Engine) Register(ctx context.Context, input RegisterInput) (*AuthUser, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	input.Email = normalizeEmail(input.Email)
	if input.Email == "" || !strings.Contains(input.Email, "@") {
		return nil, fmt.Errorf("%w: email is required", ErrValidation)
	}

	if input.Role == "" {
		input.Role = RoleUser
	}
	if !validRole(input.Role) {
		return nil, ErrRoleInvalid
	}

	if err := e.checkPasswordPolicy(input.Password); err != nil {
		return nil, err
	}

	hash, err := e.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("password hashing failed: %w", err)
	}

	rec, err := e.store.Create(ctx, CreateUserInput{
		ID:                uuid.NewString(),
		Email:             input.Email,
		PasswordHash:      hash,
		FullName:          input.FullName,
		Role:              input.Role,
		IsActive:          true,
		PasswordChangedAt: time.Now(),
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			e.metricInc(MetricRegisterDuplicate)
			e.emitAudit(ctx, auditEventRegisterDuplicate, false, "", input.Email, ErrDuplicateEmail, nil)
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("credential creation failed: %w", err)
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, rec.ID, rec.Email, nil, func() map[string]string {
		return map[string]string{"role": string(rec.Role)}
	})

	return &AuthUser{ID: rec.ID, Email: rec.Email, Role: rec.Role}, nil
}

// checkPasswordPolicy enforces the configured minimum length. Length is
// measured in bytes, matching what the hasher receives.
func (e *Engine) checkPasswordPolicy(plaintext string) error {
	if len(plaintext) < e.config.Password.MinLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrPasswordPolicy, e.config.Password.MinLength)
	}
	return nil
}
