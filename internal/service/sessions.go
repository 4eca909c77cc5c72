package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
)

const sessionIssuer = "crm-leads-bfa"

// SessionClaims carries the tenant and user context of a bearer token.
type SessionClaims struct {
	TenantID   string `json:"tenant_id"`
	TenantName string `json:"tenant_name"`
	Currency   string `json:"currency,omitempty"`
	Timezone   string `json:"timezone,omitempty"`
	UserID     string `json:"user_id"`
	UserName   string `json:"user_name,omitempty"`
	jwt.RegisteredClaims
}

// Sessions issues and validates HS256 session tokens. Without a secret
// every request runs as the configured default session.
type Sessions struct {
	secret   []byte
	ttl      time.Duration
	defaults domain.Session
}

// NewSessions creates the session authority.
func NewSessions(secret string, ttl time.Duration, defaults domain.Session) *Sessions {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Sessions{secret: []byte(secret), ttl: ttl, defaults: defaults}
}

// Enabled reports whether bearer tokens are required.
func (s *Sessions) Enabled() bool {
	return len(s.secret) > 0
}

// Default is the session used when tokens are disabled.
func (s *Sessions) Default() domain.Session {
	return s.defaults
}

// Issue signs a token for sess.
func (s *Sessions) Issue(sess domain.Session) (string, error) {
	if !s.Enabled() {
		return "", fmt.Errorf("session secret not configured")
	}
	now := time.Now()
	claims := &SessionClaims{
		TenantID:   sess.TenantID,
		TenantName: sess.TenantName,
		Currency:   sess.Currency,
		Timezone:   sess.Timezone,
		UserID:     sess.UserID,
		UserName:   sess.UserName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sess.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			Issuer:    sessionIssuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses a token into a session. Currency and timezone fall back
// to the defaults when the token omits them.
func (s *Sessions) Validate(tokenString string) (domain.Session, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return domain.Session{}, &domain.ErrUnauthorized{Message: "invalid or expired token"}
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return domain.Session{}, &domain.ErrUnauthorized{Message: "invalid token"}
	}
	if claims.TenantID == "" || claims.UserID == "" {
		return domain.Session{}, &domain.ErrUnauthorized{Message: "token carries no tenant"}
	}

	sess := domain.Session{
		TenantID:   claims.TenantID,
		TenantName: claims.TenantName,
		Currency:   claims.Currency,
		Timezone:   claims.Timezone,
		UserID:     claims.UserID,
		UserName:   claims.UserName,
	}
	if sess.TenantName == "" {
		sess.TenantName = s.defaults.TenantName
	}
	if sess.Currency == "" {
		sess.Currency = s.defaults.Currency
	}
	if sess.Timezone == "" {
		sess.Timezone = s.defaults.Timezone
	}
	return sess, nil
}
