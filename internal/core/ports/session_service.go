package ports

import (
	"context"

	"github.com/paywatch/paywatch/internal/core/domain"
)

// SessionStatus is the externally visible state of one session.
type SessionStatus struct {
	SessionID string
	Username  string
	Role      string
	State     domain.SessionState
	Reason    domain.InvalidationReason
}

// SessionService tracks live sessions for the transport layer.
type SessionService interface {
	// Touch records user activity. It fails with a
	// *domain.SessionInvalidatedError once the session has ended.
	Touch(ctx context.Context, sessionID string) error
	Status(ctx context.Context, sessionID string) (*SessionStatus, error)
	// Wait blocks until the session is invalidated or ctx is done.
	Wait(ctx context.Context, sessionID string) (*SessionStatus, error)
}

// AccountChangeHandler consumes pushed account snapshots. Deliveries for the
// same username arrive in store order.
type AccountChangeHandler interface {
	Deliver(ctx context.Context, change AccountChange)
}
