package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Sentinel errors
var (
	// ErrNotSignedIn is returned when no usable session exists.
	ErrNotSignedIn = errors.New("not signed in")

	// ErrInvalidToken is returned when the stored bearer token cannot be parsed.
	ErrInvalidToken = errors.New("invalid session token")
)

// Session holds the signed-in user's identity as issued by the backend.
// The token is an opaque bearer credential; the identity fields are kept
// alongside it so screens can render without a network call.
type Session struct {
	Token    string          `json:"token"`
	UserID   string          `json:"user_id"`
	UserName string          `json:"user_name"`
	Role     string          `json:"role,omitempty"`
	Profile  json.RawMessage `json:"profile,omitempty"`
}

// IsAuthenticated returns true only when the token AND the identity fields
// are all present. A token without a user id or name is treated as a broken
// session, never as a signed-in user.
func (s *Session) IsAuthenticated() bool {
	return s != nil && s.Token != "" && s.UserID != "" && s.UserName != ""
}

// Store persists the current session. Get never guarantees freshness; an
// API 401 is the authoritative staleness signal. Clear removes every field
// together so no partial identity can survive a sign-out.
type Store interface {
	Get(ctx context.Context) (*Session, error)
	Set(ctx context.Context, sess *Session) error
	Clear(ctx context.Context) error
}

// Claims is the subset of the backend's token claims the client inspects.
// The signature is NOT verified here; the backend owns the signing key and
// the client only uses the claims for expiry checks and display.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid,omitempty"`
	Name   string `json:"name,omitempty"`
	Role   string `json:"role,omitempty"`
}

// IsExpired returns true if the token carries an exp claim in the past.
// Tokens without an exp claim are treated as non-expiring; the backend
// still rejects them with a 401 if they are stale.
func (c *Claims) IsExpired() bool {
	if c.ExpiresAt == nil {
		return false
	}
	return time.Now().After(c.ExpiresAt.Time)
}

// ParseClaims decodes the bearer token's claims without verifying the
// signature.
func ParseClaims(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
