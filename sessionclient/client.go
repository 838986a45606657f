package sessionclient

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/jrsteele09/go-session-client/authapi"
	"github.com/jrsteele09/go-session-client/internal/config"
	"github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/jrsteele09/go-session-client/session"
	"github.com/jrsteele09/go-session-client/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// Client is the session layer used by the rest of the application: one per
// process, passed to whatever needs to make authenticated calls.
type Client struct {
	cfg         config.Config
	store       *session.Store
	coordinator *Coordinator
	terminator  *Terminator
	auth        *authapi.Client
	http        *http.Client
	closeRepo   func() error
	logger      zerolog.Logger
}

type options struct {
	repo   storage.Repo
	base   http.RoundTripper
	logger *zerolog.Logger
}

type Option func(*options)

// WithRepo overrides the storage selected by configuration.
func WithRepo(repo storage.Repo) Option {
	return func(o *options) { o.repo = repo }
}

// WithBaseTransport sets the RoundTripper requests are finally sent with.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.base = rt }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = &logger }
}

func New(cfg config.Config, opts ...Option) (*Client, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	logger := log.Logger
	if o.logger != nil {
		logger = *o.logger
	}

	baseURL, err := url.Parse(cfg.GetBaseURL())
	if err != nil {
		return nil, fmt.Errorf("sessionclient.New: base url: %w", err)
	}

	closeRepo := func() error { return nil }
	if o.repo == nil {
		repo, closer, err := NewRepo(cfg)
		if err != nil {
			return nil, err
		}
		o.repo, closeRepo = repo, closer
	}
	if o.base == nil {
		o.base = newBaseTransport(cfg.GetRequestTimeout())
	}

	store := session.NewStore(o.repo, cfg.GetStorageKey(), logger)
	terminator := NewTerminator(store, logger)

	c := &Client{
		cfg:        cfg,
		store:      store,
		terminator: terminator,
		closeRepo:  closeRepo,
		logger:     logger.With().Str("component", "session_client").Logger(),
	}

	// The auth client shares the intercepting transport; its paths are
	// exempt from refresh, so the refresh call cannot recurse.
	classifier := NewClassifier(authapi.AuthPaths...).WithBasePath(baseURL.Path)
	c.http = &http.Client{}
	c.auth = authapi.New(cfg.GetBaseURL(), c.http, logger)
	c.coordinator = NewCoordinator(store, c.auth, terminator, cfg.GetRequestTimeout(), logger)
	c.http.Transport = NewTransport(o.base, store, classifier, c.coordinator, logger)

	return c, nil
}

func newBaseTransport(timeout time.Duration) http.RoundTripper {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
	}
}

// Restore loads the persisted session and brings it up to date: an access
// token that has expired, or is about to, is refreshed straight away and the
// session is ended if that fails.
func (c *Client) Restore(ctx context.Context) error {
	if err := c.store.Restore(ctx); err != nil {
		if !errors.Is(err, errors.ErrStorageCorrupt) {
			return err
		}
		c.logger.Warn().Err(err).Msg("Discarded unreadable stored session")
	}

	sess, ok := c.store.Get()
	if !ok {
		return nil
	}
	c.terminator.Arm()

	if sess.ExpiresWithin(session.NowTimeFunc(), c.cfg.GetRefreshLead()) {
		c.logger.Info().Msg("Restored session is expiring, refreshing")
		if _, err := c.coordinator.Refresh(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) Login(ctx context.Context, email, password string) (session.Session, error) {
	sess, err := c.auth.Login(ctx, authapi.LoginRequest{Email: email, Password: password})
	if err != nil {
		return session.Session{}, err
	}
	return sess, c.establish(sess)
}

func (c *Client) Register(ctx context.Context, req authapi.RegisterRequest) (session.Session, error) {
	sess, err := c.auth.Register(ctx, req)
	if err != nil {
		return session.Session{}, err
	}
	return sess, c.establish(sess)
}

func (c *Client) establish(sess session.Session) error {
	if err := c.store.Set(sess); err != nil {
		return err
	}
	c.terminator.Arm()
	c.logger.Info().Str("user_id", sess.Principal.ID).Msg("Session established")
	return nil
}

// Logout invalidates the session on the server if it can and always clears
// it locally. The session-end signal is not emitted for an explicit logout.
func (c *Client) Logout(ctx context.Context) {
	c.terminator.Disarm()
	if _, ok := c.store.Get(); ok {
		if err := c.auth.Logout(ctx); err != nil {
			c.logger.Err(err).Msg("Logout API call failed")
		}
	}
	c.store.Clear()
}

// Session returns the current session, if any.
func (c *Client) Session() (session.Session, bool) {
	return c.store.Get()
}

// OnSessionEnd registers fn to run when an unrecoverable refresh failure ends
// the session.
func (c *Client) OnSessionEnd(fn func(cause error)) {
	c.terminator.OnSessionEnd(fn)
}

// HTTPClient returns the intercepting client. Every call made with it carries
// the current credentials and is refreshed and replayed once on a 401.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.http.Do(req)
}

// URL resolves path against the configured API base URL.
func (c *Client) URL(path string) string {
	return c.cfg.GetBaseURL() + path
}

// GetJSON fetches path and decodes the envelope's data into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	return authapi.DoJSON(ctx, c.http, http.MethodGet, c.URL(path), nil, out)
}

// PostJSON posts in to path and decodes the envelope's data into out.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	return authapi.DoJSON(ctx, c.http, http.MethodPost, c.URL(path), in, out)
}

// Refresh refreshes the access token now, joining any refresh in flight.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	return c.coordinator.Refresh(ctx)
}

// RefreshState reports whether a refresh is in flight.
func (c *Client) RefreshState() State {
	return c.coordinator.State()
}

// StartAutoRefresh runs proactive refresh in the background until ctx is done.
func (c *Client) StartAutoRefresh(ctx context.Context) {
	ar := NewAutoRefresher(c.store, c.coordinator, c.cfg.GetRefreshLead(), c.cfg.GetRefreshCheckInterval(), c.logger)
	go ar.Run(ctx)
}

// TokenSource adapts the session for golang.org/x/oauth2 consumers.
func (c *Client) TokenSource(ctx context.Context) oauth2.TokenSource {
	return tokenSource{ctx: ctx, store: c.store, coordinator: c.coordinator}
}

func (c *Client) Close() error {
	return c.closeRepo()
}
