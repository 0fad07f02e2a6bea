package ports

import (
	"context"

	"github.com/paywatch/paywatch/internal/core/domain"
)

// DirectoryService lists devices and accounts for the admin screens.
type DirectoryService interface {
	// ListDevices returns pending devices first, then newest first.
	ListDevices(ctx context.Context) ([]domain.Device, error)
	// AvailableDevices returns approved devices with no linked account.
	AvailableDevices(ctx context.Context) ([]domain.Device, error)
	ListAccounts(ctx context.Context) ([]domain.Account, error)
}
