package authapi

import (
	"time"

	"github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/jrsteele09/go-session-client/session"
)

// Auth endpoint paths, relative to the API base URL.
const (
	PathLogin    = "/api/v1/auth/login"
	PathRegister = "/api/v1/auth/register"
	PathRefresh  = "/api/v1/auth/refresh"
	PathLogout   = "/api/v1/auth/logout"
)

// AuthPaths lists every endpoint that must never trigger a token refresh.
var AuthPaths = []string{PathLogin, PathRegister, PathRefresh, PathLogout}

// Envelope is the response wrapper used by every API endpoint.
type Envelope[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// AuthResponse is returned by login, register and refresh.
type AuthResponse struct {
	// User is always present on login/register; refresh may omit it.
	User *session.Principal `json:"user,omitempty"`

	// AccessToken is the short-lived bearer credential.
	AccessToken string `json:"access_token"`

	// RefreshToken may be empty on refresh when the server does not rotate it.
	RefreshToken string `json:"refresh_token,omitempty"`

	// ExpiresAt is when AccessToken stops being accepted.
	// When absent the token's exp claim is used instead.
	ExpiresAt time.Time `json:"expires_at"`
}

// Session builds a complete session from a login or register response.
func (r AuthResponse) Session() (session.Session, error) {
	if r.User == nil {
		return session.Session{}, errors.Wrapf(errors.ErrIncompleteSession, "auth response has no user")
	}
	s := session.Session{Principal: *r.User}.WithTokens(r.AccessToken, r.RefreshToken, r.ExpiresAt)
	if err := s.Validate(); err != nil {
		return session.Session{}, err
	}
	return s, nil
}

// Apply merges a refresh response into the current session. Principal and
// refresh token are kept when the response omits them.
func (r AuthResponse) Apply(current session.Session) session.Session {
	next := current.WithTokens(r.AccessToken, r.RefreshToken, r.ExpiresAt)
	if r.User != nil && r.User.ID != "" {
		next.Principal = *r.User
	}
	return next
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}
