package fakeapi

import (
	"fmt"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-session-client/session"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// claims carried by every token the fake API issues.
type claims struct {
	Email      string `json:"email,omitempty"`
	Role       string `json:"role,omitempty"`
	TokenType  string `json:"token_type"`
	Generation int64  `json:"gen"`
	jwtlib.RegisteredClaims
}

// tokenIssuer signs and checks HS256 tokens the way the streaming API does.
type tokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func (ti *tokenIssuer) issue(p session.Principal, tokenType string, gen int64) (string, time.Time, error) {
	ttl := ti.accessTTL
	if tokenType == tokenTypeRefresh {
		ttl = ti.refreshTTL
	}
	now := ti.now()
	exp := now.Add(ttl)
	c := claims{
		Email:      p.Email,
		Role:       string(p.Role),
		TokenType:  tokenType,
		Generation: gen,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   p.ID,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(exp),
			ID:        uuid.New().String(), // Unique token ID for revocation
		},
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, c).SignedString(ti.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign JWT token: %w", err)
	}
	return signed, exp, nil
}

func (ti *tokenIssuer) parse(raw, tokenType string) (*claims, error) {
	c := &claims{}
	_, err := jwtlib.ParseWithClaims(raw, c, func(t *jwtlib.Token) (any, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ti.secret, nil
	}, jwtlib.WithTimeFunc(ti.now))
	if err != nil {
		return nil, err
	}
	if c.TokenType != tokenType {
		return nil, fmt.Errorf("expected %s token, got %s", tokenType, c.TokenType)
	}
	return c, nil
}

// revokedTokens tracks token IDs invalidated by logout or rotation.
type revokedTokens struct {
	mu      sync.RWMutex
	revoked map[string]time.Time
}

func newRevokedTokens() *revokedTokens {
	return &revokedTokens{revoked: make(map[string]time.Time)}
}

func (r *revokedTokens) add(jti string, exp time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revoked[jti] = exp
}

func (r *revokedTokens) isRevoked(jti string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.revoked[jti]
	return exists
}
