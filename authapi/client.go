package authapi

import (
	"context"
	"net/http"

	"github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/jrsteele09/go-session-client/session"
	"github.com/rs/zerolog"
)

// Client calls the authentication endpoints. The http.Client it is given is
// normally the intercepting client; the auth paths are exempt from refresh.
type Client struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

func New(baseURL string, httpClient *http.Client, logger zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: baseURL,
		http:    httpClient,
		logger:  logger.With().Str("component", "authapi").Logger(),
	}
}

func (c *Client) Login(ctx context.Context, req LoginRequest) (session.Session, error) {
	return c.authenticate(ctx, PathLogin, req)
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (session.Session, error) {
	return c.authenticate(ctx, PathRegister, req)
}

// Refresh exchanges refreshToken for new credentials.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (AuthResponse, error) {
	if refreshToken == "" {
		return AuthResponse{}, errors.ErrNoSession
	}

	var resp AuthResponse
	if err := DoJSON(ctx, c.http, http.MethodPost, c.baseURL+PathRefresh, RefreshRequest{RefreshToken: refreshToken}, &resp); err != nil {
		return AuthResponse{}, errors.Wrapf(err, "authapi.Refresh")
	}
	if resp.AccessToken == "" {
		return AuthResponse{}, errors.Wrapf(errors.ErrIncompleteSession, "authapi.Refresh: no access token")
	}
	return resp, nil
}

// Logout asks the server to invalidate the session.
func (c *Client) Logout(ctx context.Context) error {
	if err := DoJSON(ctx, c.http, http.MethodPost, c.baseURL+PathLogout, nil, nil); err != nil {
		return errors.Wrapf(err, "authapi.Logout")
	}
	return nil
}

func (c *Client) authenticate(ctx context.Context, path string, body any) (session.Session, error) {
	var resp AuthResponse
	if err := DoJSON(ctx, c.http, http.MethodPost, c.baseURL+path, body, &resp); err != nil {
		return session.Session{}, errors.Wrapf(err, "authapi %s", path)
	}
	s, err := resp.Session()
	if err != nil {
		return session.Session{}, errors.Wrapf(err, "authapi %s", path)
	}
	c.logger.Debug().Str("user_id", s.Principal.ID).Str("path", path).Msg("Authenticated")
	return s, nil
}
