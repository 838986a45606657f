package sessionclient

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-session-client/authapi"
	"github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/jrsteele09/go-session-client/session"
	"github.com/rs/zerolog"
)

// State of the refresh coordinator.
type State int32

const (
	StateIdle State = iota
	StateRefreshing
)

func (s State) String() string {
	if s == StateRefreshing {
		return "refreshing"
	}
	return "idle"
}

// Refresher performs the network call to the refresh endpoint.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (authapi.AuthResponse, error)
}

// PendingRequest waits for the outcome of a refresh. Exactly one of OnSuccess
// or OnFailure is invoked, once.
type PendingRequest struct {
	ID uuid.UUID

	// Request is the call to replay; zero for a proactive refresh.
	Request RequestDescription

	// SentToken is the access token the failed call carried. When the
	// session already holds a different token, the call is resolved with
	// it and no refresh is issued.
	SentToken string

	OnSuccess func(accessToken string)
	OnFailure func(cause error)
}

// Coordinator guarantees at most one refresh call in flight. Failed calls
// queue behind it and all observe the same result, in FIFO order.
type Coordinator struct {
	mu      sync.Mutex
	state   State
	waiters []*PendingRequest

	store      *session.Store
	refresher  Refresher
	terminator *Terminator
	timeout    time.Duration
	logger     zerolog.Logger

	refreshCalls atomic.Int64
}

// NewCoordinator creates an idle coordinator. timeout bounds each refresh call.
func NewCoordinator(store *session.Store, refresher Refresher, terminator *Terminator, timeout time.Duration, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		store:      store,
		refresher:  refresher,
		terminator: terminator,
		timeout:    timeout,
		logger:     logger.With().Str("component", "refresh_coordinator").Logger(),
	}
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pending is the number of requests queued behind the in-flight refresh.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// RefreshCalls is the number of refresh calls issued to the Refresher.
func (c *Coordinator) RefreshCalls() int {
	return int(c.refreshCalls.Load())
}

// Enqueue registers p. When idle, it starts the refresh; when a refresh is in
// flight, p simply joins the queue.
func (c *Coordinator) Enqueue(p *PendingRequest) {
	c.mu.Lock()
	if c.state == StateRefreshing {
		c.waiters = append(c.waiters, p)
		n := len(c.waiters)
		c.mu.Unlock()
		c.logger.Debug().Str("request_id", p.ID.String()).Int("waiters", n).Msg("Queued behind in-flight refresh")
		return
	}

	// The session moved on since p was sent; no refresh needed.
	if sess, ok := c.store.Get(); ok && p.SentToken != "" && sess.AccessToken != p.SentToken {
		c.mu.Unlock()
		c.logger.Debug().Str("request_id", p.ID.String()).Msg("Credentials already refreshed")
		resolve(c.logger, p, sess.AccessToken, nil)
		return
	}

	c.state = StateRefreshing
	c.waiters = append(c.waiters, p)
	c.mu.Unlock()

	c.logger.Debug().Str("request_id", p.ID.String()).Msg("Starting token refresh")
	go c.run()
}

// Refresh forces a refresh, or joins the one in flight, and returns the new
// access token.
func (c *Coordinator) Refresh(ctx context.Context) (string, error) {
	type result struct {
		token string
		err   error
	}
	done := make(chan result, 1)

	c.Enqueue(&PendingRequest{
		ID:        uuid.New(),
		OnSuccess: func(token string) { done <- result{token: token} },
		OnFailure: func(err error) { done <- result{err: err} },
	})

	select {
	case r := <-done:
		return r.token, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// run performs the single refresh call, applies its result and drains the
// queue. It never observes caller cancellation; only the timeout stops it.
func (c *Coordinator) run() {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	token, err := c.refresh(ctx)
	switch {
	case err == nil:
		c.logger.Info().Msg("Token refreshed")
	case errors.Is(err, errors.ErrNoSession):
		c.logger.Debug().Msg("No session to refresh")
	}
	c.drain(token, err)
}

func (c *Coordinator) refresh(ctx context.Context) (string, error) {
	sess, ok := c.store.Get()
	if !ok {
		return "", errors.ErrNoSession
	}

	c.refreshCalls.Add(1)
	resp, err := c.refresher.Refresh(ctx, sess.RefreshToken)
	if err != nil {
		return c.fail(sess, fmt.Errorf("%w: %w", errors.ErrRefreshFailed, err))
	}

	next, err := c.store.Update(func(current session.Session) (session.Session, error) {
		if current.RefreshToken != sess.RefreshToken {
			return current, errors.ErrSessionReplaced
		}
		return resp.Apply(current), nil
	})
	if errors.Is(err, errors.ErrSessionReplaced) {
		current, ok := c.store.Get()
		if !ok {
			return "", errors.ErrNoSession
		}
		c.logger.Debug().Msg("Discarding refresh result for a replaced session")
		return current.AccessToken, nil
	}
	if errors.Is(err, errors.ErrNoSession) {
		return "", err
	}
	if err != nil {
		return c.fail(sess, fmt.Errorf("%w: %w", errors.ErrRefreshFailed, err))
	}
	return next.AccessToken, nil
}

// fail ends the session the refresh was made for. When a new login replaced it
// while the refresh was in flight, the new session is kept and its token
// handed to the waiters instead.
func (c *Coordinator) fail(refreshed session.Session, cause error) (string, error) {
	if c.terminator.TerminateSession(refreshed.RefreshToken, cause) {
		c.logger.Err(cause).Msg("Token refresh failed, session ended")
		return "", fmt.Errorf("%w: %w", errors.ErrSessionEnded, cause)
	}

	current, ok := c.store.Get()
	if !ok {
		c.logger.Debug().AnErr("cause", cause).Msg("Token refresh failed after the session was cleared")
		return "", errors.ErrNoSession
	}
	c.logger.Debug().AnErr("cause", cause).Msg("Token refresh failed for a replaced session, keeping the new one")
	return current.AccessToken, nil
}

// drain hands the result to every waiter in FIFO order. Waiters that join
// while draining get the same result; the state returns to idle only once the
// queue is empty.
func (c *Coordinator) drain(token string, err error) {
	for {
		c.mu.Lock()
		batch := c.waiters
		c.waiters = nil
		if len(batch) == 0 {
			c.state = StateIdle
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		for _, p := range batch {
			resolve(c.logger, p, token, err)
		}
	}
}

func resolve(logger zerolog.Logger, p *PendingRequest, token string, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Str("request_id", p.ID.String()).Interface("panic", r).Msg("Recovered from panic in refresh continuation")
		}
	}()

	if err != nil {
		if p.OnFailure != nil {
			p.OnFailure(err)
		}
		return
	}
	if p.OnSuccess != nil {
		p.OnSuccess(token)
	}
}
