package fakeapi

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-session-client/authapi"
	"github.com/jrsteele09/go-session-client/session"
)

type contextKey string

const contextKeyClaims contextKey = "claims"

func (s *Server) loginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req authapi.LoginRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request format")
			return
		}

		s.mu.Lock()
		u, ok := s.users[strings.ToLower(req.Email)]
		s.mu.Unlock()
		if !ok || u.password != req.Password {
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}

		resp, err := s.issue(u.principal)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, "Login successful", resp)
	}
}

func (s *Server) registerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req authapi.RegisterRequest
		if err := decodeBody(r, &req); err != nil || req.Email == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "Invalid request format")
			return
		}

		s.mu.Lock()
		_, exists := s.users[strings.ToLower(req.Email)]
		s.mu.Unlock()
		if exists {
			writeError(w, http.StatusConflict, "User with this email already exists")
			return
		}

		p := session.Principal{
			ID:           uuid.New().String(),
			Email:        req.Email,
			FirstName:    req.FirstName,
			LastName:     req.LastName,
			Role:         session.RoleUser,
			Subscription: session.SubscriptionInactive,
		}
		s.AddUser(req.Email, req.Password, p)

		resp, err := s.issue(p)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, "User registered successfully", resp)
	}
}

func (s *Server) refreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.refreshCalls.Add(1)

		s.mu.Lock()
		gate, failAt := s.gate, s.failAt
		s.mu.Unlock()
		if gate != nil {
			s.refreshWaiter.Add(1)
			select {
			case <-gate:
			case <-r.Context().Done():
			}
			s.refreshWaiter.Add(-1)
		}
		if failAt != 0 {
			writeError(w, failAt, "Refresh rejected")
			return
		}

		var req authapi.RefreshRequest
		if err := decodeBody(r, &req); err != nil || req.RefreshToken == "" {
			writeError(w, http.StatusBadRequest, "Invalid request format")
			return
		}

		c, err := s.tokens.parse(req.RefreshToken, tokenTypeRefresh)
		if err != nil || s.revoked.isRevoked(c.ID) {
			writeError(w, http.StatusUnauthorized, "Invalid refresh token")
			return
		}

		p, ok := s.lookupUser(c.Subject)
		if !ok {
			p = session.Principal{ID: c.Subject, Email: c.Email, Role: session.Role(c.Role)}
		}

		resp, err := s.issue(p)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		// Rotation: a refresh token is good for one exchange.
		s.revoked.add(c.ID, c.ExpiresAt.Time)
		writeJSON(w, http.StatusOK, "Token refreshed", resp)
	}
}

func (s *Server) logoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := r.Context().Value(contextKeyClaims).(*claims)
		s.revoked.add(c.ID, c.ExpiresAt.Time)
		writeJSON(w, http.StatusOK, "Logged out", nil)
	}
}

func (s *Server) profileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := r.Context().Value(contextKeyClaims).(*claims)
		p, ok := s.lookupUser(c.Subject)
		if !ok {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		writeJSON(w, http.StatusOK, "Profile retrieved", p)
	}
}

func (s *Server) contentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		writeJSON(w, http.StatusOK, "Content retrieved", map[string]string{"id": id, "title": "Title " + id})
	}
}

// progressHandler echoes the request body so replays can be checked for it.
func (s *Server) progressHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request format")
			return
		}
		writeJSON(w, http.StatusOK, "Progress saved", map[string]string{
			"id":   chi.URLParam(r, "id"),
			"body": string(body),
		})
	}
}

func (s *Server) forbiddenUnlessAdmin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := r.Context().Value(contextKeyClaims).(*claims)
		if session.Role(c.Role) != session.RoleAdmin {
			writeError(w, http.StatusForbidden, "Admin access required")
			return
		}
		writeJSON(w, http.StatusOK, "Stats retrieved", map[string]int{"users": 1})
	}
}

// requireAuth validates the Bearer access token.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "Missing Authorization header")
			return
		}
		c, err := s.tokens.parse(token, tokenTypeAccess)
		if err != nil || s.revoked.isRevoked(c.ID) || c.Generation < s.generation.Load() {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKeyClaims, c)))
	})
}
