package sessionclient

import (
	"io"
	"net/http"

	"github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/jrsteele09/go-session-client/session"
	"github.com/rs/zerolog"
)

var _ http.RoundTripper = (*Transport)(nil)

// Transport is the interception pipeline: it attaches credentials, classifies
// failures, hands refreshable ones to the coordinator and replays them.
type Transport struct {
	base        http.RoundTripper
	store       *session.Store
	classifier  Classifier
	coordinator *Coordinator
	replayer    Replayer
	logger      zerolog.Logger
}

func NewTransport(base http.RoundTripper, store *session.Store, classifier Classifier, coordinator *Coordinator, logger zerolog.Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{
		base:        base,
		store:       store,
		classifier:  classifier,
		coordinator: coordinator,
		replayer:    NewReplayer(base, logger),
		logger:      logger.With().Str("component", "transport").Logger(),
	}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	desc, err := Describe(req, t.classifier)
	if err != nil {
		return nil, err
	}

	sess, ok := t.store.Get()
	resp, err := t.base.RoundTrip(AttachCredentials(desc.Build(req.Context()), sess, ok))
	if err != nil {
		return nil, err
	}

	outcome := t.classifier.Classify(resp.StatusCode, desc)
	if outcome == OutcomeTerminal {
		t.logger.Debug().Str("request_id", desc.ID().String()).Str("path", desc.Path()).
			Bool("auth_endpoint", desc.AuthEndpoint()).Msg("Unauthorized, not refreshable")
	}
	if outcome != OutcomeRefresh || !ok {
		return resp, nil
	}

	retried := desc.WithRetried()
	token, err := t.await(retried, sess.AccessToken)
	if err != nil {
		if errors.Is(err, errors.ErrNoSession) {
			return resp, nil
		}
		discard(resp)
		return nil, err
	}
	discard(resp)

	resp, err = t.replayer.Replay(req.Context(), retried, token)
	if err != nil {
		return nil, err
	}
	if t.classifier.Classify(resp.StatusCode, retried) == OutcomeTerminal {
		t.logger.Warn().Str("request_id", desc.ID().String()).Str("path", desc.Path()).Msg("Request still unauthorized after refresh")
	}
	return resp, nil
}

// await queues the call behind the coordinator and waits for its outcome or
// for the caller to give up.
func (t *Transport) await(desc RequestDescription, sentToken string) (string, error) {
	type result struct {
		token string
		err   error
	}
	done := make(chan result, 1)

	t.coordinator.Enqueue(&PendingRequest{
		ID:        desc.ID(),
		Request:   desc,
		SentToken: sentToken,
		OnSuccess: func(token string) { done <- result{token: token} },
		OnFailure: func(err error) { done <- result{err: err} },
	})

	ctx := desc.orig.Context()
	select {
	case r := <-done:
		return r.token, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
