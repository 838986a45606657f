package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/jrsteele09/go-session-client/storage"
	"github.com/rs/zerolog"
)

const (
	recordVersion  = 1
	persistTimeout = 5 * time.Second
)

// record is the persisted form of a session.
type record struct {
	Version int     `json:"version"`
	Session Session `json:"session"`
}

// Store holds the current session in memory and mirrors it to durable storage.
// Every swap replaces the whole session, so readers see either the old or the
// new session, never a mix of both.
type Store struct {
	mu      sync.RWMutex
	current *Session

	// persistMu serialises writes to the repo so the persisted order
	// matches the in-memory order.
	persistMu sync.Mutex
	repo      storage.Repo
	key       string
	logger    zerolog.Logger
}

// NewStore creates a store persisting under key in repo. A nil repo keeps the
// session in memory only.
func NewStore(repo storage.Repo, key string, logger zerolog.Logger) *Store {
	return &Store{
		repo:   repo,
		key:    key,
		logger: logger.With().Str("component", "session_store").Logger(),
	}
}

// Get returns a copy of the current session.
func (s *Store) Get() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return Session{}, false
	}
	return *s.current, true
}

// Set replaces the current session. Only a complete session is accepted.
// The in-memory swap always happens; persistence failures are logged.
func (s *Store) Set(sess Session) error {
	if err := sess.Validate(); err != nil {
		return errors.Wrapf(err, "session.Store.Set")
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.swap(&sess)
	s.persist(&sess)
	return nil
}

// Update applies fn to the current session and stores the result atomically.
// It returns ErrNoSession when there is nothing to update.
func (s *Store) Update(fn func(Session) (Session, error)) (Session, error) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	current, ok := s.Get()
	if !ok {
		return Session{}, errors.ErrNoSession
	}
	next, err := fn(current)
	if err != nil {
		return Session{}, err
	}
	if err := next.Validate(); err != nil {
		return Session{}, errors.Wrapf(err, "session.Store.Update")
	}

	s.swap(&next)
	s.persist(&next)
	return next, nil
}

// Clear removes the session from memory and storage. It is idempotent.
func (s *Store) Clear() {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.swap(nil)
	s.persist(nil)
}

// ClearIf clears the session only while match holds for it, checked and
// cleared under the same lock as Set. It reports whether it cleared anything.
func (s *Store) ClearIf(match func(Session) bool) bool {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	current, ok := s.Get()
	if !ok || !match(current) {
		return false
	}
	s.swap(nil)
	s.persist(nil)
	return true
}

// Restore loads a previously persisted session. Corrupt, incomplete or
// structurally expired records are deleted and the store is left empty.
func (s *Store) Restore(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	data, err := s.repo.Load(ctx, s.key)
	if errors.Is(err, errors.ErrNotFound) {
		return nil
	}
	if errors.Is(err, errors.ErrStorageCorrupt) {
		s.logger.Warn().Err(err).Msg("Discarding unreadable persisted session")
		s.discard(ctx)
		return errors.Wrapf(err, "session.Store.Restore")
	}
	if err != nil {
		return errors.Wrapf(err, "session.Store.Restore load")
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil || rec.Version != recordVersion {
		s.logger.Warn().Msg("Discarding unreadable persisted session")
		s.discard(ctx)
		return errors.Wrapf(errors.ErrStorageCorrupt, "session.Store.Restore")
	}

	if rec.Session.StructurallyExpired(NowTimeFunc()) {
		s.logger.Info().Str("user_id", rec.Session.Principal.ID).Msg("Persisted session has expired")
		s.discard(ctx)
		return nil
	}

	s.swap(&rec.Session)
	s.logger.Debug().Str("user_id", rec.Session.Principal.ID).Time("expires_at", rec.Session.ExpiresAt).Msg("Session restored")
	return nil
}

func (s *Store) swap(sess *Session) {
	s.mu.Lock()
	s.current = sess
	s.mu.Unlock()
}

func (s *Store) persist(sess *Session) {
	if s.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if sess == nil {
		if err := s.repo.Delete(ctx, s.key); err != nil {
			s.logger.Err(err).Msg("Failed to delete persisted session")
		}
		return
	}

	data, err := json.Marshal(record{Version: recordVersion, Session: *sess})
	if err != nil {
		s.logger.Err(err).Msg("Failed to encode session")
		return
	}
	if err := s.repo.Save(ctx, s.key, data); err != nil {
		s.logger.Err(err).Msg("Failed to persist session")
	}
}

func (s *Store) discard(ctx context.Context) {
	if err := s.repo.Delete(ctx, s.key); err != nil {
		s.logger.Err(err).Msg("Failed to delete persisted session")
	}
}
