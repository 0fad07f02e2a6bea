package service

import (
	"context"
	"sort"

	"github.com/paywatch/paywatch/internal/core/domain"
	"github.com/paywatch/paywatch/internal/core/ports"
)

// DirectoryService lists devices and accounts for the admin screens.
type DirectoryService struct {
	devices  ports.DeviceStore
	accounts ports.AccountStore
}

func NewDirectoryService(devices ports.DeviceStore, accounts ports.AccountStore) *DirectoryService {
	return &DirectoryService{devices: devices, accounts: accounts}
}

// ListDevices returns pending devices first, each group newest first.
func (s *DirectoryService) ListDevices(ctx context.Context) ([]domain.Device, error) {
	devs, err := s.devices.List(ctx)
	if err != nil {
		return nil, readErr("list_devices", err)
	}
	sort.SliceStable(devs, func(i, j int) bool {
		pi, pj := devs[i].Status == domain.DevicePending, devs[j].Status == domain.DevicePending
		if pi != pj {
			return pi
		}
		return devs[i].CreatedAt.After(devs[j].CreatedAt)
	})
	return devs, nil
}

// AvailableDevices returns approved devices with no linked account, ordered
// by code.
func (s *DirectoryService) AvailableDevices(ctx context.Context) ([]domain.Device, error) {
	devs, err := s.devices.List(ctx)
	if err != nil {
		return nil, readErr("available_devices", err)
	}
	out := make([]domain.Device, 0, len(devs))
	for i := range devs {
		if devs[i].Available() {
			out = append(out, devs[i])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// ListAccounts returns accounts newest first.
func (s *DirectoryService) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	accts, err := s.accounts.List(ctx)
	if err != nil {
		return nil, readErr("list_accounts", err)
	}
	sort.SliceStable(accts, func(i, j int) bool {
		return accts[i].CreatedAt.After(accts[j].CreatedAt)
	})
	return accts, nil
}
