package session_test

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/jrsteele09/go-session-client/session"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwtlib.NewNumericDate(exp),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

func validSession() session.Session {
	return session.Session{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    testNow.Add(15 * time.Minute),
		Principal: session.Principal{
			ID:           "user-1",
			Email:        "john.doe@example.com",
			Role:         session.RoleUser,
			Subscription: session.SubscriptionActive,
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*session.Session)
	}{
		{name: "missing access token", mutate: func(s *session.Session) { s.AccessToken = "" }},
		{name: "missing refresh token", mutate: func(s *session.Session) { s.RefreshToken = "" }},
		{name: "missing expiry", mutate: func(s *session.Session) { s.ExpiresAt = time.Time{} }},
		{name: "missing principal", mutate: func(s *session.Session) { s.Principal = session.Principal{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSession()
			tt.mutate(&s)
			require.ErrorIs(t, s.Validate(), errors.ErrIncompleteSession)
		})
	}
	require.NoError(t, validSession().Validate())
}

func TestEntitlements(t *testing.T) {
	s := validSession()
	require.True(t, s.IsAuthenticated(testNow))
	require.True(t, s.CanStream(testNow))
	require.True(t, s.CanDownload(testNow))
	require.False(t, s.Principal.IsAdmin())

	s.Principal.Subscription = session.SubscriptionPastDue
	require.False(t, s.CanStream(testNow))

	s.Principal.Role = session.RoleAdmin
	require.True(t, s.Principal.IsAdmin())

	require.False(t, s.IsAuthenticated(testNow.Add(time.Hour)))
}

func TestExpiresWithin(t *testing.T) {
	s := validSession()
	require.False(t, s.ExpiresWithin(testNow, 5*time.Minute))
	require.True(t, s.ExpiresWithin(testNow.Add(11*time.Minute), 5*time.Minute))
	require.True(t, s.AccessTokenExpired(s.ExpiresAt))
}

func TestStructurallyExpired(t *testing.T) {
	s := validSession()
	require.False(t, s.StructurallyExpired(testNow), "opaque refresh tokens are left to the server")

	s.RefreshToken = signedToken(t, testNow.Add(-time.Minute))
	require.True(t, s.StructurallyExpired(testNow))

	s.RefreshToken = signedToken(t, testNow.Add(24*time.Hour))
	require.False(t, s.StructurallyExpired(testNow))

	s.AccessToken = ""
	require.True(t, s.StructurallyExpired(testNow))
}

func TestWithTokens(t *testing.T) {
	s := validSession()
	exp := testNow.Add(30 * time.Minute)

	next := s.WithTokens("access-2", "", exp)
	require.Equal(t, "access-2", next.AccessToken)
	require.Equal(t, "refresh-1", next.RefreshToken)
	require.Equal(t, exp, next.ExpiresAt)
	require.Equal(t, s.Principal, next.Principal)
	require.Equal(t, "access-1", s.AccessToken)

	jwtExp := testNow.Add(45 * time.Minute).Truncate(time.Second)
	next = s.WithTokens(signedToken(t, jwtExp), "refresh-2", time.Time{})
	require.Equal(t, "refresh-2", next.RefreshToken)
	require.True(t, jwtExp.Equal(next.ExpiresAt))
}
