package authkit

import (
	"context"
	"errors"
	"testing"
)

func TestChangePasswordRotatesCredentialAndSessions(t *testing.T) {
	store := newMockStore()
	engine := newTestEngine(t, testConfig(), store)
	user := registerTestUser(t, engine, "alice@example.com", "Secret123", RoleUser)
	oldSession := login(t, engine, "alice@example.com", "Secret123")
	otherSession := login(t, engine, "alice@example.com", "Secret123")

	before := store.get(user.ID)

	pair, err := engine.ChangePassword(context.Background(), user.ID, "Secret123", "NewSecret456")
	if err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}

	rec := store.get(user.ID)
	if rec.PasswordHash == before.PasswordHash {
		t.Fatal("expected a new password hash")
	}
	if !rec.PasswordChangedAt.After(before.PasswordChangedAt) {
		t.Fatal("expected password change timestamp to advance")
	}

	// Only the freshly issued pair survives.
	if len(rec.RefreshTokens) != 1 || rec.RefreshTokens[0] != pair.RefreshToken {
		t.Fatalf("expected only the new refresh token, got %v", rec.RefreshTokens)
	}
	for _, stale := range []string{oldSession.RefreshToken, otherSession.RefreshToken} {
		if _, err := engine.Refresh(context.Background(), stale); !errors.Is(err, ErrRefreshInvalid) {
			t.Fatalf("expected stale refresh token to be invalid, got %v", err)
		}
	}
	if _, err := engine.Refresh(context.Background(), pair.RefreshToken); err != nil {
		t.Fatalf("expected new refresh token to rotate, got %v", err)
	}

	// Old password no longer logs in, new one does.
	if _, err := engine.Login(context.Background(), "alice@example.com", "Secret123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected old password rejected, got %v", err)
	}
	if _, err := engine.Login(context.Background(), "alice@example.com", "NewSecret456"); err != nil {
		t.Fatalf("expected new password to log in, got %v", err)
	}
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	store := newMockStore()
	engine := newTestEngine(t, testConfig(), store)
	user := registerTestUser(t, engine, "alice@example.com", "Secret123", RoleUser)
	session := login(t, engine, "alice@example.com", "Secret123")

	_, err := engine.ChangePassword(context.Background(), user.ID, "wrong-pass", "NewSecret456")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	// A failed change must not touch sessions.
	if _, err := engine.Refresh(context.Background(), session.RefreshToken); err != nil {
		t.Fatalf("expected session to survive failed change, got %v", err)
	}
}

func TestChangePasswordPolicyAndReuse(t *testing.T) {
	store := newMockStore()
	engine := newTestEngine(t, testConfig(), store)
	user := registerTestUser(t, engine, "alice@example.com", "Secret123", RoleUser)

	if _, err := engine.ChangePassword(context.Background(), user.ID, "Secret123", "short"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
	if _, err := engine.ChangePassword(context.Background(), user.ID, "Secret123", "Secret123"); !errors.Is(err, ErrPasswordReuse) {
		t.Fatalf("expected ErrPasswordReuse, got %v", err)
	}
}
