package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Class is the closed token-class discriminant carried in the "typ" claim.
// Verification checks it exhaustively; a token whose class does not match the
// operation is rejected even when its signature is valid.
type Class string

const (
	// ClassAccess is an exported constant or variable used by the authentication engine.
	ClassAccess Class = "access"
	// ClassRefresh is an exported constant or variable used by the authentication engine.
	ClassRefresh Class = "refresh"
)

var (
	// ErrInvalid is the single error all verification failures collapse to:
	// malformed token, bad signature, expiry, wrong issuer or audience.
	// Callers must not learn which check failed.
	ErrInvalid = errors.New("invalid or expired token")
	// ErrWrongClass reports a structurally valid token presented to the wrong
	// operation (access where refresh is required, or vice versa). It is for
	// internal logging; boundary code maps it to the same caller-visible
	// failure as ErrInvalid.
	ErrWrongClass = errors.New("wrong token class")
)

// Identity is the claim tuple embedded in every issued token.
type Identity struct {
	UserID string
	Email  string
	Role   string
}

// Config defines a public type used by authkit APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Secret     []byte
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Leeway     time.Duration
}

// Claims defines a public type used by authkit APIs.
//
// Claims instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Claims struct {
	Email      string `json:"email"`
	Role       string `json:"role"`
	TokenClass Class  `json:"typ"`
	jwt.RegisteredClaims
}

// Identity returns the identity tuple carried by the claims.
func (c *Claims) Identity() Identity {
	return Identity{UserID: c.Subject, Email: c.Email, Role: c.Role}
}

// Pair bundles an access token with the refresh token issued alongside it.
type Pair struct {
	Access  string
	Refresh string
}

// Manager defines a public type used by authkit APIs.
//
// Manager instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Manager struct {
	config Config
}

// NewManager describes the newmanager operation and its observable behavior.
//
// NewManager may return an error when input validation, dependency calls, or security checks fail.
// NewManager does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("signing secret must be at least 32 bytes")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.RefreshTTL <= cfg.AccessTTL {
		return nil, errors.New("refresh TTL must exceed access TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	return &Manager{config: cfg}, nil
}

// IssueAccess describes the issueaccess operation and its observable behavior.
//
// IssueAccess may return an error when input validation, dependency calls, or security checks fail.
// IssueAccess does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Manager) IssueAccess(id Identity) (string, error) {
	return m.issue(id, ClassAccess, m.config.AccessTTL)
}

// IssueRefresh describes the issuerefresh operation and its observable behavior.
//
// IssueRefresh may return an error when input validation, dependency calls, or security checks fail.
// IssueRefresh does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Manager) IssueRefresh(id Identity) (string, error) {
	return m.issue(id, ClassRefresh, m.config.RefreshTTL)
}

// IssuePair issues an access token and a refresh token for the same identity.
// The refresh token always outlives the access token.
func (m *Manager) IssuePair(id Identity) (Pair, error) {
	access, err := m.IssueAccess(id)
	if err != nil {
		return Pair{}, err
	}

	refresh, err := m.IssueRefresh(id)
	if err != nil {
		return Pair{}, err
	}

	return Pair{Access: access, Refresh: refresh}, nil
}

func (m *Manager) issue(id Identity, class Class, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email:      id.Email,
		Role:       id.Role,
		TokenClass: class,
		RegisteredClaims: jwt.RegisteredClaims{
			// Unique jti per token. Timestamps are second precision, so
			// without it two tokens minted for the same identity in the
			// same second would be byte-identical and a rotated refresh
			// token could collide with the one it replaces.
			ID:        uuid.NewString(),
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    m.config.Issuer,
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.Secret)
}

// VerifyAccess describes the verifyaccess operation and its observable behavior.
//
// VerifyAccess may return an error when input validation, dependency calls, or security checks fail.
// VerifyAccess does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Manager) VerifyAccess(tokenStr string) (*Claims, error) {
	return m.verify(tokenStr, ClassAccess)
}

// VerifyRefresh describes the verifyrefresh operation and its observable behavior.
//
// VerifyRefresh may return an error when input validation, dependency calls, or security checks fail.
// VerifyRefresh does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Manager) VerifyRefresh(tokenStr string) (*Claims, error) {
	return m.verify(tokenStr, ClassRefresh)
}

func (m *Manager) verify(tokenStr string, want Class) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return m.config.Secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalid
	}

	switch claims.TokenClass {
	case ClassAccess, ClassRefresh:
	default:
		return nil, ErrInvalid
	}
	if claims.TokenClass != want {
		return nil, fmt.Errorf("%w: got %q", ErrWrongClass, claims.TokenClass)
	}

	return claims, nil
}

// Expiration returns the expiry timestamp of a token without verifying its
// signature. The second return is false for malformed tokens or tokens
// without an exp claim. Liveness checks only; never an authorization input.
func (m *Manager) Expiration(tokenStr string) (time.Time, bool) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// IsExpired reports whether a token's expiry has passed. Malformed tokens
// count as expired. Liveness checks only; never an authorization input.
func (m *Manager) IsExpired(tokenStr string) bool {
	exp, ok := m.Expiration(tokenStr)
	if !ok {
		return true
	}
	return exp.Before(time.Now())
}
