package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	authkit "github.com/verso-cms/authkit"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New err: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func recordColumns() []string {
	return []string{
		"id", "email", "password_hash", "full_name", "role", "is_active",
		"last_login", "password_changed_at", "login_attempts", "lock_until",
	}
}

func expectations(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindByIDScansRecord(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()
	lock := now.Add(time.Hour)

	mock.ExpectQuery(`SELECT .+ FROM auth_users\s+WHERE id = \$1`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(recordColumns()).
			AddRow("u1", "alice@example.com", "$argon2id$stub", "Alice", "editor", true, now, now, 2, lock))
	mock.ExpectQuery(`SELECT token FROM auth_refresh_tokens`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"token"}).AddRow("tok-1").AddRow("tok-2"))

	rec, err := store.FindByID(context.Background(), "u1")
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if rec.Email != "alice@example.com" || rec.Role != authkit.RoleEditor || rec.LoginAttempts != 2 {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.LockUntil == nil || !rec.LockUntil.Equal(lock) {
		t.Fatalf("expected lock %v, got %v", lock, rec.LockUntil)
	}
	if len(rec.RefreshTokens) != 2 || rec.RefreshTokens[0] != "tok-1" {
		t.Fatalf("unexpected tokens %v", rec.RefreshTokens)
	}
	expectations(t, mock)
}

func TestFindByEmailNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM auth_users\s+WHERE email = \$1`).
		WithArgs("ghost@example.com").
		WillReturnError(sql.ErrNoRows)

	_, err := store.FindByEmail(context.Background(), "ghost@example.com")
	if !errors.Is(err, authkit.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	expectations(t, mock)
}

func TestCreateMapsUniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO auth_users`).
		WillReturnError(&pgconn.PgError{Code: uniqueViolation, ConstraintName: "auth_users_email_key"})

	_, err := store.Create(context.Background(), authkit.CreateUserInput{
		ID:    "u2",
		Email: "alice@example.com",
	})
	if !errors.Is(err, authkit.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
	expectations(t, mock)
}

func TestCreateSuccess(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectExec(`INSERT INTO auth_users`).
		WithArgs("u1", "alice@example.com", "$argon2id$stub", "Alice", "user", true, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec, err := store.Create(context.Background(), authkit.CreateUserInput{
		ID:                "u1",
		Email:             "alice@example.com",
		PasswordHash:      "$argon2id$stub",
		FullName:          "Alice",
		Role:              authkit.RoleUser,
		IsActive:          true,
		PasswordChangedAt: now,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if rec.ID != "u1" || rec.Email != "alice@example.com" {
		t.Fatalf("unexpected record %+v", rec)
	}
	expectations(t, mock)
}

func TestRecordLoginFailureReturnsState(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()
	lock := now.Add(2 * time.Hour)

	mock.ExpectQuery(`UPDATE auth_users SET`).
		WithArgs("u1", now, 5, lock).
		WillReturnRows(sqlmock.NewRows([]string{"login_attempts", "lock_until"}).AddRow(5, lock))

	attempts, lockUntil, err := store.RecordLoginFailure(context.Background(), "u1", 5, 2*time.Hour, now)
	if err != nil {
		t.Fatalf("RecordLoginFailure failed: %v", err)
	}
	if attempts != 5 {
		t.Fatalf("expected 5 attempts, got %d", attempts)
	}
	if lockUntil == nil || !lockUntil.Equal(lock) {
		t.Fatalf("expected lock %v, got %v", lock, lockUntil)
	}
	expectations(t, mock)
}

func TestRecordLoginFailureUnknownUser(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(`UPDATE auth_users SET`).
		WillReturnError(sql.ErrNoRows)

	_, _, err := store.RecordLoginFailure(context.Background(), "ghost", 5, 2*time.Hour, now)
	if !errors.Is(err, authkit.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	expectations(t, mock)
}

func TestResetLoginState(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectExec(`UPDATE auth_users\s+SET login_attempts = 0`).
		WithArgs("u1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.ResetLoginState(context.Background(), "u1", now); err != nil {
		t.Fatalf("ResetLoginState failed: %v", err)
	}
	expectations(t, mock)
}

func TestExecOpsReportMissingUser(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectExec(`UPDATE auth_users`).WillReturnResult(sqlmock.NewResult(0, 0))
	if err := store.SetActive(context.Background(), "ghost", true); !errors.Is(err, authkit.ErrUserNotFound) {
		t.Fatalf("SetActive: expected ErrUserNotFound, got %v", err)
	}

	mock.ExpectExec(`UPDATE auth_users`).WillReturnResult(sqlmock.NewResult(0, 0))
	if err := store.UpdatePasswordHash(context.Background(), "ghost", "x", now); !errors.Is(err, authkit.ErrUserNotFound) {
		t.Fatalf("UpdatePasswordHash: expected ErrUserNotFound, got %v", err)
	}
	expectations(t, mock)
}

func TestAddRefreshTokenInsertsAndTrims(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO auth_refresh_tokens`).
		WithArgs("u1", "tok-new").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`DELETE FROM auth_refresh_tokens`).
		WithArgs("u1", 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.AddRefreshToken(context.Background(), "u1", "tok-new", 5); err != nil {
		t.Fatalf("AddRefreshToken failed: %v", err)
	}
	expectations(t, mock)
}

func TestAddRefreshTokenDuplicateSurfacesError(t *testing.T) {
	store, mock := newMockStore(t)

	// (user_id, token) is the primary key. Issued tokens carry a unique
	// jti so the engine never produces duplicates, but a raw re-insert
	// must fail loudly rather than silently double-count a session.
	pgErr := &pgconn.PgError{Code: uniqueViolation, ConstraintName: "auth_refresh_tokens_pkey"}
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO auth_refresh_tokens`).
		WithArgs("u1", "tok-dup").
		WillReturnError(pgErr)
	mock.ExpectRollback()

	err := store.AddRefreshToken(context.Background(), "u1", "tok-dup", 5)
	if err == nil {
		t.Fatal("expected duplicate insert to fail")
	}
	var got *pgconn.PgError
	if !errors.As(err, &got) || got.Code != uniqueViolation {
		t.Fatalf("expected wrapped unique violation, got %v", err)
	}
	expectations(t, mock)
}

func TestRemoveRefreshTokenReportsWinner(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM auth_refresh_tokens WHERE user_id = \$1 AND token = \$2`).
		WithArgs("u1", "tok").
		WillReturnResult(sqlmock.NewResult(0, 1))
	removed, err := store.RemoveRefreshToken(context.Background(), "u1", "tok")
	if err != nil || !removed {
		t.Fatalf("expected winner, removed=%v err=%v", removed, err)
	}

	mock.ExpectExec(`DELETE FROM auth_refresh_tokens WHERE user_id = \$1 AND token = \$2`).
		WithArgs("u1", "tok").
		WillReturnResult(sqlmock.NewResult(0, 0))
	removed, err = store.RemoveRefreshToken(context.Background(), "u1", "tok")
	if err != nil || removed {
		t.Fatalf("expected loser, removed=%v err=%v", removed, err)
	}
	expectations(t, mock)
}
