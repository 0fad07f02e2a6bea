package memory

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/paywatch/paywatch/internal/core/domain"
	"github.com/paywatch/paywatch/internal/core/ports"
)

const sessionJanitorInterval = time.Minute

// SessionStore implements ports.SessionStore on an expiring in-process cache.
// Key layout mirrors the Redis store: session:<id> and session:<id>:revoked.
type SessionStore struct {
	c *cache.Cache
}

func NewSessionStore() *SessionStore {
	return &SessionStore{c: cache.New(cache.NoExpiration, sessionJanitorInterval)}
}

func (s *SessionStore) Save(_ context.Context, rec ports.SessionRecord, idle time.Duration) error {
	s.c.Set(sessionKey(rec.ID), rec, idle)
	return nil
}

func (s *SessionStore) Get(_ context.Context, id string) (*ports.SessionRecord, error) {
	v, ok := s.c.Get(sessionKey(id))
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	rec := v.(ports.SessionRecord)
	return &rec, nil
}

func (s *SessionStore) Touch(_ context.Context, id string, idle time.Duration) error {
	v, ok := s.c.Get(sessionKey(id))
	if !ok {
		return domain.ErrSessionNotFound
	}
	s.c.Set(sessionKey(id), v, idle)
	return nil
}

func (s *SessionStore) TTL(_ context.Context, id string) (time.Duration, error) {
	_, exp, ok := s.c.GetWithExpiration(sessionKey(id))
	if !ok {
		return 0, domain.ErrSessionNotFound
	}
	if exp.IsZero() {
		return 0, nil
	}
	return time.Until(exp), nil
}

func (s *SessionStore) Revoke(_ context.Context, id string, reason domain.InvalidationReason, ttl time.Duration) error {
	s.c.Delete(sessionKey(id))
	s.c.Set(revokedKey(id), reason, ttl)
	return nil
}

func (s *SessionStore) RevokedReason(_ context.Context, id string) (domain.InvalidationReason, bool, error) {
	v, ok := s.c.Get(revokedKey(id))
	if !ok {
		return "", false, nil
	}
	return v.(domain.InvalidationReason), true, nil
}

func sessionKey(id string) string { return "session:" + id }

func revokedKey(id string) string { return "session:" + id + ":revoked" }
