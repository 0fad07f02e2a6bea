package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/paywatch/paywatch/internal/core/domain"
	"github.com/paywatch/paywatch/internal/core/ports"
)

// SessionStore implements ports.SessionStore on Redis so that several API
// replicas share sessions.
// Key format: session:<id> (JSON record, idle TTL) and session:<id>:revoked.
type SessionStore struct {
	client *redis.Client
}

func NewSessionStore(client *redis.Client) *SessionStore {
	return &SessionStore{client: client}
}

func (s *SessionStore) Save(ctx context.Context, rec ports.SessionRecord, idle time.Duration) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(rec.ID), raw, idle).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (*ports.SessionRecord, error) {
	raw, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	var rec ports.SessionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &rec, nil
}

// Touch extends the idle TTL; an expired key is reported as not found.
func (s *SessionStore) Touch(ctx context.Context, id string, idle time.Duration) error {
	ok, err := s.client.Expire(ctx, sessionKey(id), idle).Result()
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if !ok {
		return domain.ErrSessionNotFound
	}
	return nil
}

// TTL reads the remaining idle lifetime. Redis reports -2 for a missing key
// and -1 for a key without expiry.
func (s *SessionStore) TTL(ctx context.Context, id string) (time.Duration, error) {
	d, err := s.client.PTTL(ctx, sessionKey(id)).Result()
	if err != nil {
		return 0, fmt.Errorf("session ttl: %w", err)
	}
	switch {
	case d == -2:
		return 0, domain.ErrSessionNotFound
	case d < 0:
		return 0, nil
	}
	return d, nil
}

func (s *SessionStore) Revoke(ctx context.Context, id string, reason domain.InvalidationReason, ttl time.Duration) error {
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, sessionKey(id))
		p.Set(ctx, revokedKey(id), string(reason), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (s *SessionStore) RevokedReason(ctx context.Context, id string) (domain.InvalidationReason, bool, error) {
	v, err := s.client.Get(ctx, revokedKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("revoked reason: %w", err)
	}
	return domain.InvalidationReason(v), true, nil
}

func sessionKey(id string) string { return "session:" + id }

func revokedKey(id string) string { return fmt.Sprintf("session:%s:revoked", id) }
