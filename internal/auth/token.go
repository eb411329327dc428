// Package auth resolves an authenticated user id from a connection
// handshake. Identity travels as a signed JWT bearer token; an unsigned
// development mode accepts a plain user query parameter when no secret
// is configured.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNoIdentity is returned when the handshake carries no usable
	// identity at all.
	ErrNoIdentity = errors.New("auth: no identity in handshake")

	// ErrInvalidToken is returned for malformed, expired, or
	// wrongly-signed tokens.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Service verifies handshake identity tokens. With an empty secret the
// service runs in insecure development mode and trusts the user query
// parameter instead.
type Service struct {
	secret []byte
	expiry time.Duration
}

// NewService builds a token service. secret may be empty for development
// mode; expiry <= 0 issues non-expiring tokens.
func NewService(secret string, expiry time.Duration) *Service {
	return &Service{secret: []byte(secret), expiry: expiry}
}

// Insecure reports whether the service is running without a signing
// secret.
func (s *Service) Insecure() bool {
	return len(s.secret) == 0
}

// Issue signs a token identifying userID. It fails in insecure mode.
func (s *Service) Issue(userID string) (string, error) {
	if s.Insecure() {
		return "", errors.New("auth: cannot issue tokens without a secret")
	}
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("auth: user id required")
	}

	claims := jwt.RegisteredClaims{
		Subject:  userID,
		IssuedAt: jwt.NewNumericDate(time.Now()),
	}
	if s.expiry > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(s.expiry))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Identify resolves the authenticated user id from an upgrade request.
// Tokens are read from the token query parameter or the Authorization
// bearer header, in that order.
func (s *Service) Identify(r *http.Request) (string, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimPrefix(h, "Bearer ")
		}
	}

	if s.Insecure() {
		if user := strings.TrimSpace(r.URL.Query().Get("user")); user != "" {
			return user, nil
		}
		return "", ErrNoIdentity
	}

	if token == "" {
		return "", ErrNoIdentity
	}
	return s.validate(token)
}

func (s *Service) validate(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
