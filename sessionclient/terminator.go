package sessionclient

import (
	"sync"

	"github.com/jrsteele09/go-session-client/session"
	"github.com/rs/zerolog"
)

// Terminator ends a session whose credentials can no longer be refreshed.
type Terminator struct {
	store  *session.Store
	logger zerolog.Logger

	mu        sync.Mutex
	armed     bool
	listeners []func(cause error)
}

func NewTerminator(store *session.Store, logger zerolog.Logger) *Terminator {
	return &Terminator{
		store:  store,
		logger: logger.With().Str("component", "session_terminator").Logger(),
	}
}

// OnSessionEnd registers fn to be called when a session is terminated.
// Typically fn sends the user back to the login surface.
func (t *Terminator) OnSessionEnd(fn func(cause error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, fn)
}

// Arm enables the session-end signal for the session just established.
func (t *Terminator) Arm() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.armed = true
}

// Disarm suppresses the signal; used by an explicit logout.
func (t *Terminator) Disarm() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.armed = false
}

// Terminate clears the store, then signals session end at most once per
// armed session. It reports whether the signal was emitted.
func (t *Terminator) Terminate(cause error) bool {
	t.store.Clear()
	return t.signal(cause)
}

// TerminateSession ends the session only while it still holds refreshToken.
// A session replaced by a new login, or already cleared, is left alone and no
// signal is emitted. It reports whether the session was ended.
func (t *Terminator) TerminateSession(refreshToken string, cause error) bool {
	if !t.store.ClearIf(func(s session.Session) bool { return s.RefreshToken == refreshToken }) {
		return false
	}
	t.signal(cause)
	return true
}

func (t *Terminator) signal(cause error) bool {
	t.mu.Lock()
	if !t.armed {
		t.mu.Unlock()
		return false
	}
	t.armed = false
	listeners := append([]func(error){}, t.listeners...)
	t.mu.Unlock()

	t.logger.Warn().AnErr("cause", cause).Msg("Session ended, re-authentication required")
	for _, fn := range listeners {
		fn(cause)
	}
	return true
}
