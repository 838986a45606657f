package sessionclient

import (
	"context"
	"net/http"

	"github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/rs/zerolog"
)

// Replayer resubmits a call once with a freshly issued access token.
type Replayer struct {
	base   http.RoundTripper
	logger zerolog.Logger
}

func NewReplayer(base http.RoundTripper, logger zerolog.Logger) Replayer {
	return Replayer{
		base:   base,
		logger: logger.With().Str("component", "replayer").Logger(),
	}
}

// Replay sends desc again carrying accessToken. desc must already be marked
// retried so a second 401 cannot loop back into a refresh.
func (r Replayer) Replay(ctx context.Context, desc RequestDescription, accessToken string) (*http.Response, error) {
	if !desc.Retried() {
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "replay of %s %s not marked retried", desc.Method(), desc.Path())
	}

	r.logger.Debug().Str("request_id", desc.ID().String()).Str("path", desc.Path()).Msg("Replaying request")
	return r.base.RoundTrip(AttachToken(desc.Build(ctx), accessToken))
}
