package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrExpiredToken = errors.New("session expired")
)

// Claims are the fields the gateway reads from a backend token. The
// backend signs and verifies tokens; the gateway never holds the key.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Session is the credential of one browser user, passed explicitly to
// every backend call.
type Session struct {
	Token     string
	Subject   string
	Email     string
	ExpiresAt time.Time
}

// NewSession inspects token without verifying its signature. Tokens that
// are not JWTs are accepted as opaque and carry no subject or expiry.
func NewSession(token string, now time.Time) (*Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}

	s := &Session{Token: token}

	claims := &Claims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return s, nil
	}

	s.Subject = claims.Subject
	s.Email = claims.Email
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
		if !now.Before(s.ExpiresAt) {
			return nil, fmt.Errorf("%w at %s", ErrExpiredToken, s.ExpiresAt.Format(time.RFC3339))
		}
	}

	return s, nil
}

// Expired reports whether the session has a known expiry in the past.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Owner identifies the user for view ownership checks.
func (s *Session) Owner() string {
	if s.Subject != "" {
		return s.Subject
	}
	return s.Token
}

// Header is the Authorization header value for the backend.
func (s *Session) Header() string {
	return "Bearer " + s.Token
}
