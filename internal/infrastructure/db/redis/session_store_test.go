package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paywatch/paywatch/internal/core/domain"
	"github.com/paywatch/paywatch/internal/core/ports"
)

// Integration tests run against PAYWATCH_TEST_REDIS_ADDR and use database 15.
func newTestStore(t *testing.T) *SessionStore {
	t.Helper()
	addr := os.Getenv("PAYWATCH_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PAYWATCH_TEST_REDIS_ADDR not set")
	}
	client, err := Connect(context.Background(), Config{Addr: addr, DB: 15})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.FlushDB(context.Background()).Err()
		_ = client.Close()
	})
	return NewSessionStore(client)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "session:abc", sessionKey("abc"))
	assert.Equal(t, "session:abc:revoked", revokedKey("abc"))
}

func TestSessionStore_Lifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rec := ports.SessionRecord{
		ID:          "s1",
		Username:    "alice",
		Role:        domain.RoleUser,
		Fingerprint: "fp",
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
	}

	require.NoError(t, s.Save(ctx, rec, time.Minute))
	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, rec, *got)
	require.NoError(t, s.Touch(ctx, "s1", time.Minute))

	_, revoked, err := s.RevokedReason(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, s.Revoke(ctx, "s1", domain.ReasonCredentialChanged, time.Minute))
	_, err = s.Get(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.ErrorIs(t, s.Touch(ctx, "s1", time.Minute), domain.ErrSessionNotFound)

	reason, revoked, err := s.RevokedReason(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, revoked)
	assert.Equal(t, domain.ReasonCredentialChanged, reason)
}

func TestSessionStore_IdleTTL(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, ports.SessionRecord{ID: "s2"}, 100*time.Millisecond))
	left, err := s.TTL(ctx, "s2")
	require.NoError(t, err)
	assert.True(t, left > 0 && left <= 100*time.Millisecond, "ttl %s", left)

	assert.Eventually(t, func() bool {
		_, err := s.Get(ctx, "s2")
		return err != nil
	}, 2*time.Second, 20*time.Millisecond)
	_, err = s.TTL(ctx, "s2")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}
