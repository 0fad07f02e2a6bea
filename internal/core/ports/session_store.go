package ports

import (
	"context"
	"time"

	"github.com/paywatch/paywatch/internal/core/domain"
)

// SessionRecord is the shareable part of a session. The credential is kept
// as a fingerprint, never as the password itself.
type SessionRecord struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Role        string    `json:"role"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// SessionStore keeps session records alive for the idle timeout and
// remembers why a session was revoked.
type SessionStore interface {
	Save(ctx context.Context, rec SessionRecord, idle time.Duration) error
	// Get returns domain.ErrSessionNotFound for unknown or expired sessions.
	Get(ctx context.Context, id string) (*SessionRecord, error)
	Touch(ctx context.Context, id string, idle time.Duration) error
	// TTL returns the remaining lifetime of a live record and
	// domain.ErrSessionNotFound once it expired or was revoked.
	TTL(ctx context.Context, id string) (time.Duration, error)
	Revoke(ctx context.Context, id string, reason domain.InvalidationReason, ttl time.Duration) error
	RevokedReason(ctx context.Context, id string) (domain.InvalidationReason, bool, error)
}
