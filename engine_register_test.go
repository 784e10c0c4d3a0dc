package authkit

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestRegisterSuccess(t *testing.T) {
	store := newMockStore()
	engine := newTestEngine(t, testConfig(), store)

	user, err := engine.Register(context.Background(), RegisterInput{
		Email:    "  Alice@Example.COM ",
		Password: "Secret123",
		FullName: "Alice Doe",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if user.ID == "" {
		t.Fatal("expected generated id")
	}
	if user.Email != "alice@example.com" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}
	if user.Role != RoleUser {
		t.Fatalf("expected default role user, got %s", user.Role)
	}

	rec := store.get(user.ID)
	if rec.PasswordHash == "" || rec.PasswordHash == "Secret123" {
		t.Fatal("expected stored password to be hashed")
	}
	if !strings.HasPrefix(rec.PasswordHash, "$argon2id$") {
		t.Fatalf("expected argon2id hash, got %q", rec.PasswordHash)
	}
	if !rec.IsActive {
		t.Fatal("expected new account to be active")
	}
	if rec.PasswordChangedAt.IsZero() {
		t.Fatal("expected password change timestamp to be set")
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	store := newMockStore()
	engine := newTestEngine(t, testConfig(), store)
	registerTestUser(t, engine, "alice@example.com", "Secret123", RoleUser)

	_, err := engine.Register(context.Background(), RegisterInput{
		Email:    "ALICE@example.com",
		Password: "Other-Secret9",
	})
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestRegisterRejectsInvalidRole(t *testing.T) {
	store := newMockStore()
	engine := newTestEngine(t, testConfig(), store)

	_, err := engine.Register(context.Background(), RegisterInput{
		Email:    "alice@example.com",
		Password: "Secret123",
		Role:     Role("superuser"),
	})
	if !errors.Is(err, ErrRoleInvalid) {
		t.Fatalf("expected ErrRoleInvalid, got %v", err)
	}
}

func TestRegisterPasswordPolicy(t *testing.T) {
	store := newMockStore()
	engine := newTestEngine(t, testConfig(), store)

	_, err := engine.Register(context.Background(), RegisterInput{
		Email:    "alice@example.com",
		Password: "short",
	})
	if !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	store := newMockStore()
	engine := newTestEngine(t, testConfig(), store)

	if _, err := engine.Register(context.Background(), RegisterInput{Password: "Secret123"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for empty email, got %v", err)
	}
	if _, err := engine.Register(context.Background(), RegisterInput{Email: "no-at-sign", Password: "Secret123"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for malformed email, got %v", err)
	}
}
