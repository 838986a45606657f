package sessionclient

import (
	"context"
	"time"

	"github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/jrsteele09/go-session-client/session"
	"github.com/rs/zerolog"
)

// AutoRefresher refreshes the access token shortly before it expires. It goes
// through the coordinator, so it shares the single in-flight refresh with
// failed requests.
type AutoRefresher struct {
	store       *session.Store
	coordinator *Coordinator
	lead        time.Duration
	interval    time.Duration
	logger      zerolog.Logger
}

func NewAutoRefresher(store *session.Store, coordinator *Coordinator, lead, interval time.Duration, logger zerolog.Logger) *AutoRefresher {
	return &AutoRefresher{
		store:       store,
		coordinator: coordinator,
		lead:        lead,
		interval:    interval,
		logger:      logger.With().Str("component", "auto_refresh").Logger(),
	}
}

// Run checks every interval until ctx is done.
func (a *AutoRefresher) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.Check(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Err(err).Msg("Proactive refresh failed")
			}
		}
	}
}

// Check refreshes when the access token expires within the lead time. It
// reports whether a refresh was attempted.
func (a *AutoRefresher) Check(ctx context.Context) (bool, error) {
	sess, ok := a.store.Get()
	if !ok || !sess.ExpiresWithin(session.NowTimeFunc(), a.lead) {
		return false, nil
	}

	a.logger.Debug().Time("expires_at", sess.ExpiresAt).Msg("Access token expiring soon, refreshing")
	_, err := a.coordinator.Refresh(ctx)
	return true, err
}
