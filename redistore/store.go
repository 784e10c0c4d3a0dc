package redistore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	authkit "github.com/verso-cms/authkit"
)

const defaultPrefix = "authkit"

const createUserScript = `
if redis.call("SET", KEYS[2], ARGV[1], "NX") == false then
  return 0
end
redis.call("HSET", KEYS[1],
  "id", ARGV[1],
  "email", ARGV[2],
  "password_hash", ARGV[3],
  "full_name", ARGV[4],
  "role", ARGV[5],
  "is_active", ARGV[6],
  "password_changed_at", ARGV[7],
  "login_attempts", 0)
return 1
`

var createUserLua = redis.NewScript(createUserScript)

const loginFailureScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return {-1, 0}
end
local threshold = tonumber(ARGV[1])
local lock_for = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local lock_until = tonumber(redis.call("HGET", KEYS[1], "lock_until") or "0")
if lock_until > now then
  local attempts = tonumber(redis.call("HGET", KEYS[1], "login_attempts") or "0")
  return {attempts, lock_until}
end
local attempts
if lock_until > 0 then
  attempts = 1
  redis.call("HSET", KEYS[1], "login_attempts", 1)
  redis.call("HDEL", KEYS[1], "lock_until")
  lock_until = 0
else
  attempts = redis.call("HINCRBY", KEYS[1], "login_attempts", 1)
end
if attempts >= threshold then
  lock_until = now + lock_for
  redis.call("HSET", KEYS[1], "lock_until", lock_until)
end
return {attempts, lock_until}
`

var loginFailureLua = redis.NewScript(loginFailureScript)

const resetLoginScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], "login_attempts", 0, "last_login", ARGV[1])
redis.call("HDEL", KEYS[1], "lock_until")
return 1
`

var resetLoginLua = redis.NewScript(resetLoginScript)

const addRefreshScript = `
redis.call("RPUSH", KEYS[1], ARGV[1])
redis.call("LTRIM", KEYS[1], -tonumber(ARGV[2]), -1)
return redis.call("LLEN", KEYS[1])
`

var addRefreshLua = redis.NewScript(addRefreshScript)

// Store implements authkit.Store on a Redis client. All methods are safe for
// concurrent use; the lockout and session transitions serialize inside Redis.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// New creates a Store using the given client and key prefix. An empty prefix
// defaults to "authkit".
func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{redis: client, prefix: prefix}
}

func (s *Store) userKey(id string) string {
	return s.prefix + ":u:" + id
}

func (s *Store) emailKey(email string) string {
	return s.prefix + ":e:" + email
}

func (s *Store) refreshKey(id string) string {
	return s.prefix + ":rt:" + id
}

// FindByID describes the findbyid operation and its observable behavior.
//
// FindByID may return an error when input validation, dependency calls, or security checks fail.
// FindByID does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) FindByID(ctx context.Context, id string) (*authkit.CredentialRecord, error) {
	fields, err := s.redis.HGetAll(ctx, s.userKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	if len(fields) == 0 {
		return nil, authkit.ErrUserNotFound
	}
	rec, err := recordFromHash(fields)
	if err != nil {
		return nil, err
	}

	tokens, err := s.RefreshTokens(ctx, id)
	if err != nil {
		return nil, err
	}
	rec.RefreshTokens = tokens

	return rec, nil
}

// FindByEmail describes the findbyemail operation and its observable behavior.
//
// FindByEmail may return an error when input validation, dependency calls, or security checks fail.
// FindByEmail does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) FindByEmail(ctx context.Context, email string) (*authkit.CredentialRecord, error) {
	id, err := s.redis.Get(ctx, s.emailKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, authkit.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return s.FindByID(ctx, id)
}

// Create describes the create operation and its observable behavior.
//
// Create may return an error when input validation, dependency calls, or security checks fail.
// Create does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) Create(ctx context.Context, input authkit.CreateUserInput) (*authkit.CredentialRecord, error) {
	active := "0"
	if input.IsActive {
		active = "1"
	}

	created, err := createUserLua.Run(ctx, s.redis,
		[]string{s.userKey(input.ID), s.emailKey(input.Email)},
		input.ID,
		input.Email,
		input.PasswordHash,
		input.FullName,
		string(input.Role),
		active,
		strconv.FormatInt(input.PasswordChangedAt.Unix(), 10),
	).Int64()
	if err != nil {
		return nil, fmt.Errorf("redis create script: %w", err)
	}
	if created == 0 {
		return nil, authkit.ErrDuplicateEmail
	}

	return &authkit.CredentialRecord{
		ID:                input.ID,
		Email:             input.Email,
		PasswordHash:      input.PasswordHash,
		FullName:          input.FullName,
		Role:              input.Role,
		IsActive:          input.IsActive,
		PasswordChangedAt: time.Unix(input.PasswordChangedAt.Unix(), 0),
	}, nil
}

// RecordLoginFailure applies one failed-attempt transition. An active lock
// is returned untouched, an expired lock resets the window to attempt 1, and
// reaching the threshold starts a lock of lockFor from now. The script runs
// atomically so concurrent failures never lose increments.
func (s *Store) RecordLoginFailure(ctx context.Context, id string, threshold int, lockFor time.Duration, now time.Time) (int, *time.Time, error) {
	res, err := loginFailureLua.Run(ctx, s.redis,
		[]string{s.userKey(id)},
		threshold,
		int64(lockFor/time.Second),
		now.Unix(),
	).Int64Slice()
	if err != nil {
		return 0, nil, fmt.Errorf("redis failure script: %w", err)
	}
	if len(res) != 2 {
		return 0, nil, fmt.Errorf("redis failure script: unexpected reply %v", res)
	}
	if res[0] < 0 {
		return 0, nil, authkit.ErrUserNotFound
	}

	attempts := int(res[0])
	var lockUntil *time.Time
	if res[1] > 0 {
		t := time.Unix(res[1], 0)
		lockUntil = &t
	}
	return attempts, lockUntil, nil
}

// ResetLoginState clears the failure counter and any lock, and stamps the
// last successful login.
func (s *Store) ResetLoginState(ctx context.Context, id string, lastLogin time.Time) error {
	existed, err := resetLoginLua.Run(ctx, s.redis,
		[]string{s.userKey(id)},
		strconv.FormatInt(lastLogin.Unix(), 10),
	).Int64()
	if err != nil {
		return fmt.Errorf("redis reset script: %w", err)
	}
	if existed == 0 {
		return authkit.ErrUserNotFound
	}
	return nil
}

// UpdatePasswordHash describes the updatepasswordhash operation and its observable behavior.
//
// UpdatePasswordHash may return an error when input validation, dependency calls, or security checks fail.
// UpdatePasswordHash does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) UpdatePasswordHash(ctx context.Context, id, hash string, changedAt time.Time) error {
	if err := s.requireUser(ctx, id); err != nil {
		return err
	}
	err := s.redis.HSet(ctx, s.userKey(id),
		"password_hash", hash,
		"password_changed_at", strconv.FormatInt(changedAt.Unix(), 10),
	).Err()
	if err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

// SetActive describes the setactive operation and its observable behavior.
//
// SetActive may return an error when input validation, dependency calls, or security checks fail.
// SetActive does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) SetActive(ctx context.Context, id string, active bool) error {
	if err := s.requireUser(ctx, id); err != nil {
		return err
	}
	value := "0"
	if active {
		value = "1"
	}
	if err := s.redis.HSet(ctx, s.userKey(id), "is_active", value).Err(); err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

// AddRefreshToken appends the token and trims the list to the newest cap
// entries, evicting the oldest beyond it.
func (s *Store) AddRefreshToken(ctx context.Context, id, token string, cap int) error {
	if cap <= 0 {
		cap = 1
	}
	if err := addRefreshLua.Run(ctx, s.redis, []string{s.refreshKey(id)}, token, cap).Err(); err != nil {
		return fmt.Errorf("redis refresh add script: %w", err)
	}
	return nil
}

// RemoveRefreshToken removes one occurrence of the token. LREM is atomic, so
// when two callers race with the same token exactly one sees true.
func (s *Store) RemoveRefreshToken(ctx context.Context, id, token string) (bool, error) {
	removed, err := s.redis.LRem(ctx, s.refreshKey(id), 1, token).Result()
	if err != nil {
		return false, fmt.Errorf("redis lrem: %w", err)
	}
	return removed > 0, nil
}

// ClearRefreshTokens describes the clearrefreshtokens operation and its observable behavior.
//
// ClearRefreshTokens may return an error when input validation, dependency calls, or security checks fail.
// ClearRefreshTokens does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) ClearRefreshTokens(ctx context.Context, id string) error {
	if err := s.redis.Del(ctx, s.refreshKey(id)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// RefreshTokens describes the refreshtokens operation and its observable behavior.
//
// RefreshTokens may return an error when input validation, dependency calls, or security checks fail.
// RefreshTokens does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) RefreshTokens(ctx context.Context, id string) ([]string, error) {
	tokens, err := s.redis.LRange(ctx, s.refreshKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange: %w", err)
	}
	return tokens, nil
}

func (s *Store) requireUser(ctx context.Context, id string) error {
	exists, err := s.redis.Exists(ctx, s.userKey(id)).Result()
	if err != nil {
		return fmt.Errorf("redis exists: %w", err)
	}
	if exists == 0 {
		return authkit.ErrUserNotFound
	}
	return nil
}

func recordFromHash(fields map[string]string) (*authkit.CredentialRecord, error) {
	rec := &authkit.CredentialRecord{
		ID:           fields["id"],
		Email:        fields["email"],
		PasswordHash: fields["password_hash"],
		FullName:     fields["full_name"],
		Role:         authkit.Role(fields["role"]),
		IsActive:     fields["is_active"] == "1",
	}
	if rec.ID == "" {
		return nil, fmt.Errorf("credential hash missing id field")
	}

	if v := fields["last_login"]; v != "" {
		sec, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("credential hash last_login: %w", err)
		}
		rec.LastLogin = time.Unix(sec, 0)
	}
	if v := fields["password_changed_at"]; v != "" {
		sec, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("credential hash password_changed_at: %w", err)
		}
		rec.PasswordChangedAt = time.Unix(sec, 0)
	}
	if v := fields["login_attempts"]; v != "" {
		attempts, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("credential hash login_attempts: %w", err)
		}
		rec.LoginAttempts = attempts
	}
	if v := fields["lock_until"]; v != "" {
		sec, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("credential hash lock_until: %w", err)
		}
		t := time.Unix(sec, 0)
		rec.LockUntil = &t
	}

	return rec, nil
}
