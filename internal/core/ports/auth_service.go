package ports

import (
	"context"
	"time"

	"github.com/paywatch/paywatch/internal/core/domain"
)

// LoginResult is returned after a successful login.
type LoginResult struct {
	Token      string
	ExpiresAt  time.Time
	Principal  domain.Principal
	DeviceCode string
}

type AuthService interface {
	Login(ctx context.Context, username, password string) (*LoginResult, error)
	Logout(ctx context.Context, sessionID string) error
}
