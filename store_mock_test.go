package authkit

import (
	"context"
	"sync"
	"testing"
	"time"
)

// mockStore is an in-memory Store with the same atomicity contract as the
// real adapters: every transition runs under one mutex.
type mockStore struct {
	mu      sync.Mutex
	users   map[string]*CredentialRecord
	byEmail map[string]string

	failCreate   error
	failFindByID error
}

func newMockStore() *mockStore {
	return &mockStore{
		users:   map[string]*CredentialRecord{},
		byEmail: map[string]string{},
	}
}

func (m *mockStore) put(rec *CredentialRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *rec
	m.users[rec.ID] = &clone
	m.byEmail[rec.Email] = rec.ID
}

func (m *mockStore) get(id string) CredentialRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.users[id]
}

func (m *mockStore) mutate(id string, fn func(*CredentialRecord)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.users[id])
}

func (m *mockStore) FindByID(_ context.Context, id string) (*CredentialRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFindByID != nil {
		return nil, m.failFindByID
	}
	rec, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	clone := *rec
	clone.RefreshTokens = append([]string(nil), rec.RefreshTokens...)
	return &clone, nil
}

func (m *mockStore) FindByEmail(ctx context.Context, email string) (*CredentialRecord, error) {
	m.mu.Lock()
	id, ok := m.byEmail[email]
	m.mu.Unlock()
	if !ok {
		return nil, ErrUserNotFound
	}
	return m.FindByID(ctx, id)
}

func (m *mockStore) Create(_ context.Context, input CreateUserInput) (*CredentialRecord, error) {
	if m.failCreate != nil {
		return nil, m.failCreate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byEmail[input.Email]; exists {
		return nil, ErrDuplicateEmail
	}
	rec := &CredentialRecord{
		ID:                input.ID,
		Email:             input.Email,
		PasswordHash:      input.PasswordHash,
		FullName:          input.FullName,
		Role:              input.Role,
		IsActive:          input.IsActive,
		PasswordChangedAt: input.PasswordChangedAt,
	}
	m.users[rec.ID] = rec
	m.byEmail[rec.Email] = rec.ID
	clone := *rec
	return &clone, nil
}

func (m *mockStore) RecordLoginFailure(_ context.Context, id string, threshold int, lockFor time.Duration, now time.Time) (int, *time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.users[id]
	if !ok {
		return 0, nil, ErrUserNotFound
	}

	if rec.LockUntil != nil && rec.LockUntil.After(now) {
		lock := *rec.LockUntil
		return rec.LoginAttempts, &lock, nil
	}

	if rec.LockUntil != nil {
		rec.LoginAttempts = 1
		rec.LockUntil = nil
	} else {
		rec.LoginAttempts++
	}

	if rec.LoginAttempts >= threshold {
		lock := now.Add(lockFor)
		rec.LockUntil = &lock
	}

	var lockUntil *time.Time
	if rec.LockUntil != nil {
		lock := *rec.LockUntil
		lockUntil = &lock
	}
	return rec.LoginAttempts, lockUntil, nil
}

func (m *mockStore) ResetLoginState(_ context.Context, id string, lastLogin time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	rec.LoginAttempts = 0
	rec.LockUntil = nil
	rec.LastLogin = lastLogin
	return nil
}

func (m *mockStore) UpdatePasswordHash(_ context.Context, id, hash string, changedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	rec.PasswordHash = hash
	rec.PasswordChangedAt = changedAt
	return nil
}

func (m *mockStore) SetActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	rec.IsActive = active
	return nil
}

func (m *mockStore) AddRefreshToken(_ context.Context, id, token string, cap int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	rec.RefreshTokens = append(rec.RefreshTokens, token)
	if len(rec.RefreshTokens) > cap {
		rec.RefreshTokens = rec.RefreshTokens[len(rec.RefreshTokens)-cap:]
	}
	return nil
}

func (m *mockStore) RemoveRefreshToken(_ context.Context, id, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.users[id]
	if !ok {
		return false, ErrUserNotFound
	}
	for i, t := range rec.RefreshTokens {
		if t == token {
			rec.RefreshTokens = append(rec.RefreshTokens[:i], rec.RefreshTokens[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *mockStore) ClearRefreshTokens(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	rec.RefreshTokens = nil
	return nil
}

func (m *mockStore) RefreshTokens(_ context.Context, id string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return append([]string(nil), rec.RefreshTokens...), nil
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.Token.Secret = []byte("0123456789abcdef0123456789abcdef")
	// Light argon2 parameters keep the suite fast.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

func newTestEngine(t *testing.T, cfg Config, store Store) *Engine {
	t.Helper()

	engine, err := New().WithConfig(cfg).WithStore(store).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func registerTestUser(t *testing.T, engine *Engine, email, password string, role Role) *AuthUser {
	t.Helper()

	user, err := engine.Register(context.Background(), RegisterInput{
		Email:    email,
		Password: password,
		Role:     role,
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return user
}
