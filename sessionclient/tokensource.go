package sessionclient

import (
	"context"

	"github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/jrsteele09/go-session-client/session"
	"golang.org/x/oauth2"
)

// tokenSource exposes the session as an oauth2.TokenSource for code built on
// golang.org/x/oauth2. Expired tokens are renewed through the coordinator.
type tokenSource struct {
	ctx         context.Context
	store       *session.Store
	coordinator *Coordinator
}

func (ts tokenSource) Token() (*oauth2.Token, error) {
	sess, ok := ts.store.Get()
	if !ok {
		return nil, errors.ErrNoSession
	}
	if sess.AccessTokenExpired(session.NowTimeFunc()) {
		if _, err := ts.coordinator.Refresh(ts.ctx); err != nil {
			return nil, err
		}
		if sess, ok = ts.store.Get(); !ok {
			return nil, errors.ErrNoSession
		}
	}
	return toOAuth2Token(sess), nil
}

func toOAuth2Token(sess session.Session) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       sess.ExpiresAt,
	}
}
