package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	authkit "github.com/verso-cms/authkit"
	"github.com/verso-cms/authkit/pgstore/migrations"
)

const uniqueViolation = "23505"

// Store implements authkit.Store on a PostgreSQL database. All methods are
// safe for concurrent use; the lockout and session transitions commit as
// single statements.
type Store struct {
	db *sql.DB
}

// New wraps an existing database handle. The handle is not closed by the
// store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to PostgreSQL via the pgx stdlib driver and verifies the
// connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{db: db}, nil
}

// Migrate runs the embedded goose migrations up to the latest version.
func (s *Store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return goose.UpContext(ctx, s.db, ".")
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

const selectRecord = `
SELECT id, email, password_hash, full_name, role, is_active,
       last_login, password_changed_at, login_attempts, lock_until
  FROM auth_users
`

// FindByID describes the findbyid operation and its observable behavior.
//
// FindByID may return an error when input validation, dependency calls, or security checks fail.
// FindByID does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) FindByID(ctx context.Context, id string) (*authkit.CredentialRecord, error) {
	return s.findOne(ctx, selectRecord+` WHERE id = $1`, id)
}

// FindByEmail describes the findbyemail operation and its observable behavior.
//
// FindByEmail may return an error when input validation, dependency calls, or security checks fail.
// FindByEmail does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) FindByEmail(ctx context.Context, email string) (*authkit.CredentialRecord, error) {
	return s.findOne(ctx, selectRecord+` WHERE email = $1`, email)
}

func (s *Store) findOne(ctx context.Context, query, arg string) (*authkit.CredentialRecord, error) {
	rec := &authkit.CredentialRecord{}
	var (
		lastLogin sql.NullTime
		lockUntil sql.NullTime
	)

	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&rec.ID, &rec.Email, &rec.PasswordHash, &rec.FullName, &rec.Role,
		&rec.IsActive, &lastLogin, &rec.PasswordChangedAt, &rec.LoginAttempts, &lockUntil,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authkit.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	if lastLogin.Valid {
		rec.LastLogin = lastLogin.Time
	}
	if lockUntil.Valid {
		t := lockUntil.Time
		rec.LockUntil = &t
	}

	tokens, err := s.RefreshTokens(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	rec.RefreshTokens = tokens

	return rec, nil
}

// Create describes the create operation and its observable behavior.
//
// Create may return an error when input validation, dependency calls, or security checks fail.
// Create does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) Create(ctx context.Context, input authkit.CreateUserInput) (*authkit.CredentialRecord, error) {
	query := `
INSERT INTO auth_users (id, email, password_hash, full_name, role, is_active, password_changed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`
	_, err := s.db.ExecContext(ctx, query,
		input.ID, input.Email, input.PasswordHash, input.FullName,
		string(input.Role), input.IsActive, input.PasswordChangedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, authkit.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return &authkit.CredentialRecord{
		ID:                input.ID,
		Email:             input.Email,
		PasswordHash:      input.PasswordHash,
		FullName:          input.FullName,
		Role:              input.Role,
		IsActive:          input.IsActive,
		PasswordChangedAt: input.PasswordChangedAt,
	}, nil
}

// RecordLoginFailure applies one failed-attempt transition as a single
// UPDATE. CASE arms evaluate against the pre-update row: an active lock is
// returned untouched, an expired lock resets the window to attempt 1, and
// reaching the threshold sets lock_until to the precomputed instant.
func (s *Store) RecordLoginFailure(ctx context.Context, id string, threshold int, lockFor time.Duration, now time.Time) (int, *time.Time, error) {
	query := `
UPDATE auth_users SET
    login_attempts = CASE
        WHEN lock_until IS NOT NULL AND lock_until > $2 THEN login_attempts
        WHEN lock_until IS NOT NULL THEN 1
        ELSE login_attempts + 1
    END,
    lock_until = CASE
        WHEN lock_until IS NOT NULL AND lock_until > $2 THEN lock_until
        WHEN (CASE WHEN lock_until IS NOT NULL THEN 1 ELSE login_attempts + 1 END) >= $3 THEN $4
        ELSE NULL
    END
 WHERE id = $1
RETURNING login_attempts, lock_until
`
	var (
		attempts  int
		lockUntil sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, id, now, threshold, now.Add(lockFor)).
		Scan(&attempts, &lockUntil)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, authkit.ErrUserNotFound
	}
	if err != nil {
		return 0, nil, fmt.Errorf("db error: %w", err)
	}

	var until *time.Time
	if lockUntil.Valid {
		t := lockUntil.Time
		until = &t
	}
	return attempts, until, nil
}

// ResetLoginState clears the failure counter and any lock, and stamps the
// last successful login.
func (s *Store) ResetLoginState(ctx context.Context, id string, lastLogin time.Time) error {
	query := `
UPDATE auth_users
   SET login_attempts = 0, lock_until = NULL, last_login = $2
 WHERE id = $1
`
	return s.execOne(ctx, query, id, lastLogin)
}

// UpdatePasswordHash describes the updatepasswordhash operation and its observable behavior.
//
// UpdatePasswordHash may return an error when input validation, dependency calls, or security checks fail.
// UpdatePasswordHash does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) UpdatePasswordHash(ctx context.Context, id, hash string, changedAt time.Time) error {
	query := `
UPDATE auth_users
   SET password_hash = $2, password_changed_at = $3
 WHERE id = $1
`
	return s.execOne(ctx, query, id, hash, changedAt)
}

// SetActive describes the setactive operation and its observable behavior.
//
// SetActive may return an error when input validation, dependency calls, or security checks fail.
// SetActive does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) SetActive(ctx context.Context, id string, active bool) error {
	return s.execOne(ctx, `UPDATE auth_users SET is_active = $2 WHERE id = $1`, id, active)
}

// AddRefreshToken inserts the token and trims the account's set to the
// newest cap entries in one transaction.
func (s *Store) AddRefreshToken(ctx context.Context, id, token string, cap int) error {
	if cap <= 0 {
		cap = 1
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO auth_refresh_tokens (user_id, token) VALUES ($1, $2)`,
		id, token,
	); err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	trim := `
DELETE FROM auth_refresh_tokens
 WHERE user_id = $1
   AND seq NOT IN (
       SELECT seq FROM auth_refresh_tokens
        WHERE user_id = $1
        ORDER BY seq DESC
        LIMIT $2)
`
	if _, err := tx.ExecContext(ctx, trim, id, cap); err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// RemoveRefreshToken deletes one token row. The row count decides the winner
// when two callers race the same token.
func (s *Store) RemoveRefreshToken(ctx context.Context, id, token string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM auth_refresh_tokens WHERE user_id = $1 AND token = $2`,
		id, token,
	)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return affected > 0, nil
}

// ClearRefreshTokens describes the clearrefreshtokens operation and its observable behavior.
//
// ClearRefreshTokens may return an error when input validation, dependency calls, or security checks fail.
// ClearRefreshTokens does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) ClearRefreshTokens(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM auth_refresh_tokens WHERE user_id = $1`, id,
	); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// RefreshTokens describes the refreshtokens operation and its observable behavior.
//
// RefreshTokens may return an error when input validation, dependency calls, or security checks fail.
// RefreshTokens does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) RefreshTokens(ctx context.Context, id string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT token FROM auth_refresh_tokens WHERE user_id = $1 ORDER BY seq`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return tokens, nil
}

func (s *Store) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return authkit.ErrUserNotFound
	}
	return nil
}
