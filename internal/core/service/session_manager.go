package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/paywatch/paywatch/internal/core/domain"
	"github.com/paywatch/paywatch/internal/core/ports"
)

const (
	defaultRevokedTTL = 24 * time.Hour
	storeCallTimeout  = 5 * time.Second
)

// SessionOptions tunes session lifetimes.
type SessionOptions struct {
	// IdleTimeout ends sessions without activity. Defaults to
	// domain.DefaultIdleTimeout.
	IdleTimeout time.Duration
	// RevokedTTL is how long the reason of an ended session is remembered.
	RevokedTTL time.Duration
}

// SessionManager opens sessions, tracks them through the hub and mirrors them
// to a shared store so that another instance can pick a session up.
type SessionManager struct {
	hub     *SessionHub
	store   ports.SessionStore
	idle    time.Duration
	revoked time.Duration
	log     zerolog.Logger

	// adoptMu serialises rehydration so a session is adopted at most once.
	adoptMu sync.Mutex
}

func NewSessionManager(hub *SessionHub, store ports.SessionStore, opts SessionOptions, log zerolog.Logger) *SessionManager {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = domain.DefaultIdleTimeout
	}
	if opts.RevokedTTL <= 0 {
		opts.RevokedTTL = defaultRevokedTTL
	}
	return &SessionManager{
		hub:     hub,
		store:   store,
		idle:    opts.IdleTimeout,
		revoked: opts.RevokedTTL,
		log:     log,
	}
}

// IdleTimeout returns the configured idle timeout.
func (s *SessionManager) IdleTimeout() time.Duration { return s.idle }

// Open starts a live session for principal. For regular accounts password is
// the credential accepted at login; its fingerprint is what later pushes are
// compared against.
func (s *SessionManager) Open(ctx context.Context, username, role, password string) (*SessionMonitor, error) {
	rec := ports.SessionRecord{
		ID:        uuid.NewString(),
		Username:  username,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
	if role == domain.RoleUser {
		rec.Fingerprint = domain.CredentialFingerprint(password)
	}
	if err := s.store.Save(ctx, rec, s.idle); err != nil {
		return nil, &domain.StoreError{Op: "session.save", Err: err}
	}

	m := newSessionMonitor(rec, s.idle, s.idleCheck, s.ended)
	s.hub.Register(ctx, m)

	s.log.Info().Str("session_id", rec.ID).Str("username", username).Str("role", role).Msg("session opened")
	return m, nil
}

// Touch records activity on a session.
func (s *SessionManager) Touch(ctx context.Context, sessionID string) error {
	m, err := s.lookup(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := m.Touch(); err != nil {
		return err
	}
	err = s.store.Touch(ctx, sessionID, s.idle)
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		// The shared record expired or was revoked on another instance.
		reason := domain.ReasonIdle
		if r, revoked, rerr := s.store.RevokedReason(ctx, sessionID); rerr == nil && revoked {
			reason = r
		}
		return s.invalidated(m, reason)
	case err != nil:
		s.log.Warn().Err(err).Str("session_id", sessionID).Msg("session store touch failed")
	}
	return nil
}

// Close ends a session at the user's request. Closing an ended session is a
// no-op.
func (s *SessionManager) Close(ctx context.Context, sessionID string) error {
	m, err := s.lookup(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionInvalidated) {
			return nil
		}
		return err
	}
	m.Invalidate(domain.ReasonLoggedOut)
	return nil
}

// Status reports the state of a session. Ended sessions are reported as
// invalidated with their reason rather than as an error.
func (s *SessionManager) Status(ctx context.Context, sessionID string) (*ports.SessionStatus, error) {
	m, err := s.lookup(ctx, sessionID)
	if err != nil {
		return s.endedStatus(sessionID, err)
	}
	return m.status(), nil
}

// Wait blocks until the session is invalidated. When ctx ends first it
// returns the still-live status.
func (s *SessionManager) Wait(ctx context.Context, sessionID string) (*ports.SessionStatus, error) {
	m, err := s.lookup(ctx, sessionID)
	if err != nil {
		return s.endedStatus(sessionID, err)
	}
	select {
	case <-m.Done():
	case <-ctx.Done():
	}
	return m.status(), nil
}

func (s *SessionManager) endedStatus(sessionID string, err error) (*ports.SessionStatus, error) {
	var inv *domain.SessionInvalidatedError
	if !errors.As(err, &inv) {
		return nil, err
	}
	return &ports.SessionStatus{
		SessionID: sessionID,
		State:     domain.SessionInvalidated,
		Reason:    inv.Reason,
	}, nil
}

// lookup finds the monitor for a session, adopting it from the shared store
// when another instance opened it.
func (s *SessionManager) lookup(ctx context.Context, sessionID string) (*SessionMonitor, error) {
	if m, ok := s.hub.Lookup(sessionID); ok {
		return s.confirm(ctx, m)
	}

	s.adoptMu.Lock()
	defer s.adoptMu.Unlock()
	if m, ok := s.hub.Lookup(sessionID); ok {
		return m, nil
	}

	reason, revoked, err := s.store.RevokedReason(ctx, sessionID)
	if err != nil {
		return nil, &domain.StoreError{Op: "session.revoked", Err: err}
	}
	if revoked {
		return nil, &domain.SessionInvalidatedError{Reason: reason}
	}

	rec, err := s.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			// The record outlives activity by exactly the idle timeout.
			return nil, &domain.SessionInvalidatedError{Reason: domain.ReasonIdle}
		}
		return nil, &domain.StoreError{Op: "session.get", Err: err}
	}

	m := newSessionMonitor(*rec, s.idle, s.idleCheck, s.ended)
	s.hub.Register(ctx, m)
	s.log.Debug().Str("session_id", sessionID).Msg("session adopted from store")

	if state, reason := m.State(); state != domain.SessionLive {
		return nil, &domain.SessionInvalidatedError{Reason: reason}
	}
	return m, nil
}

// confirm checks a locally tracked session against the shared revocation
// marker, which another instance writes when it ends the session.
func (s *SessionManager) confirm(ctx context.Context, m *SessionMonitor) (*SessionMonitor, error) {
	reason, revoked, err := s.store.RevokedReason(ctx, m.ID())
	if err != nil {
		s.log.Warn().Err(err).Str("session_id", m.ID()).Msg("session revocation check failed")
		return m, nil
	}
	if revoked {
		return nil, s.invalidated(m, reason)
	}
	return m, nil
}

// invalidated ends m with reason and returns the error for the reason that
// actually stuck.
func (s *SessionManager) invalidated(m *SessionMonitor, reason domain.InvalidationReason) error {
	m.Invalidate(reason)
	_, reason = m.State()
	return &domain.SessionInvalidatedError{Reason: reason}
}

// idleCheck runs when the local countdown elapses. Activity seen by another
// instance keeps the shared record alive, so the countdown is re-armed for
// whatever lifetime the record has left.
func (s *SessionManager) idleCheck(m *SessionMonitor) (time.Duration, domain.InvalidationReason) {
	ctx, cancel := context.WithTimeout(context.Background(), storeCallTimeout)
	defer cancel()

	if reason, revoked, err := s.store.RevokedReason(ctx, m.ID()); err == nil && revoked {
		return 0, reason
	}
	remaining, err := s.store.TTL(ctx, m.ID())
	if err != nil {
		if !errors.Is(err, domain.ErrSessionNotFound) {
			s.log.Warn().Err(err).Str("session_id", m.ID()).Msg("session ttl check failed")
		}
		return 0, domain.ReasonIdle
	}
	return remaining, domain.ReasonIdle
}

// ended runs once per session after it is invalidated.
// The revocation is stored before the monitor leaves the hub so a concurrent
// lookup never re-adopts the session.
func (s *SessionManager) ended(m *SessionMonitor) {
	_, reason := m.State()

	ctx, cancel := context.WithTimeout(context.Background(), storeCallTimeout)
	defer cancel()
	if err := s.store.Revoke(ctx, m.ID(), reason, s.revoked); err != nil {
		s.log.Warn().Err(err).Str("session_id", m.ID()).Msg("session revoke not persisted")
	}
	s.hub.Unregister(m)

	s.log.Info().
		Str("session_id", m.ID()).
		Str("username", m.Username()).
		Str("reason", string(reason)).
		Msg("session ended")
}

