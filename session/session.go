package session

import (
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-session-client/internal/errors"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionInactive  SubscriptionStatus = "inactive"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionPastDue   SubscriptionStatus = "past_due"
)

// Principal is the authenticated user a session belongs to.
type Principal struct {
	ID            string             `json:"id"`
	Email         string             `json:"email"`
	FirstName     string             `json:"first_name"`
	LastName      string             `json:"last_name"`
	Role          Role               `json:"role"`
	Subscription  SubscriptionStatus `json:"subscription_status,omitempty"`
	EmailVerified bool               `json:"email_verified,omitempty"`
}

func (p Principal) HasRole(role Role) bool {
	return p.Role == role
}

func (p Principal) IsAdmin() bool {
	return p.HasRole(RoleAdmin)
}

func (p Principal) HasActiveSubscription() bool {
	return p.Subscription == SubscriptionActive
}

// Session holds the credentials and identity of a logged-in user.
// A Session is either complete or absent; see Validate.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	Principal    Principal `json:"user"`
}

// Validate reports ErrIncompleteSession when any field required for a usable
// session is missing.
func (s Session) Validate() error {
	switch {
	case s.AccessToken == "":
		return errors.Wrapf(errors.ErrIncompleteSession, "missing access token")
	case s.RefreshToken == "":
		return errors.Wrapf(errors.ErrIncompleteSession, "missing refresh token")
	case s.ExpiresAt.IsZero():
		return errors.Wrapf(errors.ErrIncompleteSession, "missing expiry")
	case s.Principal.ID == "":
		return errors.Wrapf(errors.ErrIncompleteSession, "missing principal")
	}
	return nil
}

// AccessTokenExpired reports whether the access token is past its expiry at now.
func (s Session) AccessTokenExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// ExpiresWithin reports whether the access token expires within d of now.
func (s Session) ExpiresWithin(now time.Time, d time.Duration) bool {
	return !now.Add(d).Before(s.ExpiresAt)
}

// IsAuthenticated reports whether the session can be used as-is at now.
func (s Session) IsAuthenticated(now time.Time) bool {
	return s.Validate() == nil && !s.AccessTokenExpired(now)
}

func (s Session) CanStream(now time.Time) bool {
	return s.IsAuthenticated(now) && s.Principal.HasActiveSubscription()
}

func (s Session) CanDownload(now time.Time) bool {
	return s.CanStream(now)
}

// StructurallyExpired reports whether the session can no longer be revived:
// it is incomplete, or its refresh token is a JWT whose exp claim has passed.
// Opaque refresh tokens are never considered expired here; only the server can
// tell.
func (s Session) StructurallyExpired(now time.Time) bool {
	if s.Validate() != nil {
		return true
	}
	exp, ok := tokenExpiry(s.RefreshToken)
	return ok && !now.Before(exp)
}

// WithTokens returns a copy of s with the token fields and expiry replaced.
// An empty refreshToken keeps the current one (servers may not rotate it).
func (s Session) WithTokens(accessToken, refreshToken string, expiresAt time.Time) Session {
	s.AccessToken = accessToken
	if refreshToken != "" {
		s.RefreshToken = refreshToken
	}
	if expiresAt.IsZero() {
		if exp, ok := tokenExpiry(accessToken); ok {
			expiresAt = exp
		}
	}
	s.ExpiresAt = expiresAt
	return s
}

// tokenExpiry reads the exp claim of a JWT without verifying its signature.
// The client has no key to verify with; the claim is only used as a hint.
func tokenExpiry(raw string) (time.Time, bool) {
	claims := jwtlib.RegisteredClaims{}
	if _, _, err := jwtlib.NewParser().ParseUnverified(raw, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
