package ports

import (
	"context"

	"github.com/paywatch/paywatch/internal/core/domain"
)

// CreateAccountInput carries the fields of a new account.
type CreateAccountInput struct {
	Username   string
	Password   string
	DeviceCode string
}

// ConsistencyEngine executes every mutation that touches more than one
// collection. Operations whose target does not exist succeed without writing.
type ConsistencyEngine interface {
	CreateAccount(ctx context.Context, in CreateAccountInput) (*domain.Account, error)
	// ReassignDevice moves the account to deviceCode; empty unlinks it.
	ReassignDevice(ctx context.Context, username, deviceCode string) error
	ToggleAccountStatus(ctx context.Context, username string) (domain.AccountStatus, error)
	DeleteDevice(ctx context.Context, code string) error
	DeleteAccount(ctx context.Context, username string) error
	UpdatePassword(ctx context.Context, username, password string) error
	UpdateDeviceStatus(ctx context.Context, code string, status domain.DeviceStatus) error
}
