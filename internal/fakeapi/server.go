// Package fakeapi is an in-process stand-in for the streaming API's auth and
// content endpoints. Tests and the demo CLI drive the session client against it.
package fakeapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jrsteele09/go-session-client/authapi"
	"github.com/jrsteele09/go-session-client/session"
)

// Call records one request the fake API received.
type Call struct {
	Method    string
	Path      string
	Token     string
	RequestID string
	Status    int
}

type user struct {
	password  string
	principal session.Principal
}

// Server is safe for concurrent use.
type Server struct {
	tokens  *tokenIssuer
	revoked *revokedTokens
	router  chi.Router

	mu     sync.Mutex
	users  map[string]user
	calls  []Call
	gate   chan struct{}
	failAt int // non-zero: status returned by the refresh endpoint

	generation    atomic.Int64
	refreshCalls  atomic.Int64
	refreshWaiter atomic.Int64
}

type Option func(*Server)

func WithAccessTTL(d time.Duration) Option {
	return func(s *Server) { s.tokens.accessTTL = d }
}

func WithRefreshTTL(d time.Duration) Option {
	return func(s *Server) { s.tokens.refreshTTL = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.tokens.now = now }
}

func New(opts ...Option) *Server {
	s := &Server{
		tokens: &tokenIssuer{
			secret:     []byte("fakeapi-secret"),
			accessTTL:  15 * time.Minute,
			refreshTTL: 7 * 24 * time.Hour,
			now:        time.Now,
		},
		revoked: newRevokedTokens(),
		users:   make(map[string]user),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(s.record)

	r.Post(authapi.PathLogin, s.loginHandler())
	r.Post(authapi.PathRegister, s.registerHandler())
	r.Post(authapi.PathRefresh, s.refreshHandler())

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Post(authapi.PathLogout, s.logoutHandler())
		r.Get("/api/v1/user/profile", s.profileHandler())
		r.Get("/api/v1/content/{id}", s.contentHandler())
		r.Post("/api/v1/content/{id}/progress", s.progressHandler())
		r.Get("/api/v1/admin/stats", s.forbiddenUnlessAdmin())
	})

	// Always rejects, regardless of credentials.
	r.Get("/api/v1/locked", func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusUnauthorized, "locked")
	})
	r.Get("/api/v1/broken", func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusInternalServerError, "broken")
	})
	return r
}

// AddUser registers credentials the login endpoint accepts.
func (s *Server) AddUser(email, password string, p session.Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[strings.ToLower(email)] = user{password: password, principal: p}
}

// IssueSession mints a session for p directly, bypassing login.
func (s *Server) IssueSession(p session.Principal) (session.Session, error) {
	resp, err := s.issue(p)
	if err != nil {
		return session.Session{}, err
	}
	return resp.Session()
}

// ExpireAccessTokens invalidates every access token issued so far. Refresh
// tokens stay valid.
func (s *Server) ExpireAccessTokens() {
	s.generation.Add(1)
}

// HoldRefresh blocks refresh requests until the returned func is called.
func (s *Server) HoldRefresh() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gate = gate
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.gate = nil
			s.mu.Unlock()
			close(gate)
		})
	}
}

// FailRefresh makes the refresh endpoint answer with status. Zero restores
// normal behaviour.
func (s *Server) FailRefresh(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAt = status
}

// RefreshCalls is the number of requests received by the refresh endpoint.
func (s *Server) RefreshCalls() int {
	return int(s.refreshCalls.Load())
}

// RefreshWaiting is the number of refresh requests blocked by HoldRefresh.
func (s *Server) RefreshWaiting() int {
	return int(s.refreshWaiter.Load())
}

// Calls returns the requests received so far, optionally filtered by path.
func (s *Server) Calls(path string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, 0, len(s.calls))
	for _, c := range s.calls {
		if path == "" || c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

// CountStatus counts recorded calls with the given status, on any path.
func (s *Server) CountStatus(status int) int {
	n := 0
	for _, c := range s.Calls("") {
		if c.Status == status {
			n++
		}
	}
	return n
}

func (s *Server) issue(p session.Principal) (authapi.AuthResponse, error) {
	gen := s.generation.Load()
	access, exp, err := s.tokens.issue(p, tokenTypeAccess, gen)
	if err != nil {
		return authapi.AuthResponse{}, err
	}
	refresh, _, err := s.tokens.issue(p, tokenTypeRefresh, gen)
	if err != nil {
		return authapi.AuthResponse{}, err
	}
	principal := p
	return authapi.AuthResponse{
		User:         &principal,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    exp,
	}, nil
}

func (s *Server) lookupUser(id string) (session.Principal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.principal.ID == id {
			return u.principal, true
		}
	}
	return session.Principal{}, false
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.mu.Lock()
		s.calls = append(s.calls, Call{
			Method:    r.Method,
			Path:      r.URL.Path,
			Token:     bearerToken(r),
			RequestID: r.Header.Get("X-Request-ID"),
			Status:    rec.status,
		})
		s.mu.Unlock()
	})
}

func bearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}

func decodeBody(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(authapi.Envelope[any]{Success: true, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(authapi.Envelope[any]{Success: false, Message: message, Error: http.StatusText(status)})
}
