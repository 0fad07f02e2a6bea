package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/paywatch/paywatch/internal/api/metrics"
	"github.com/paywatch/paywatch/internal/core/domain"
	"github.com/paywatch/paywatch/internal/core/ports"
)

const (
	opCreateAccount      = "create_account"
	opReassignDevice     = "reassign_device"
	opToggleStatus       = "toggle_account_status"
	opDeleteDevice       = "delete_device"
	opDeleteAccount      = "delete_account"
	opUpdatePassword     = "update_password"
	opUpdateDeviceStatus = "update_device_status"
)

// ConsistencyOptions tunes the engine.
type ConsistencyOptions struct {
	// ResetUnlinkedDeviceStatus puts a device back to pending when
	// ReassignDevice moves its account elsewhere. When false the device keeps
	// whatever status it had.
	ResetUnlinkedDeviceStatus bool
	// Now overrides the clock used for bookkeeping timestamps.
	Now func() time.Time
}

// ConsistencyService keeps devices and accounts mutually consistent. Every
// operation reads current snapshots, decides, then issues an ordered list of
// idempotent writes. The writes are not atomic: a failure part way through
// is reported and left for the next mutation of the pair to heal.
type ConsistencyService struct {
	devices  ports.DeviceStore
	accounts ports.AccountStore
	payments ports.PaymentStore
	opts     ConsistencyOptions
	log      zerolog.Logger
	now      func() time.Time
}

func NewConsistencyService(
	devices ports.DeviceStore,
	accounts ports.AccountStore,
	payments ports.PaymentStore,
	opts ConsistencyOptions,
	log zerolog.Logger,
) *ConsistencyService {
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &ConsistencyService{
		devices:  devices,
		accounts: accounts,
		payments: payments,
		opts:     opts,
		log:      log,
		now:      now,
	}
}

// CreateAccount provisions an inactive account on an unlinked device. The
// device is written first so that a crash between the two writes leaves the
// device visibly occupied instead of an orphaned account.
func (s *ConsistencyService) CreateAccount(ctx context.Context, in ports.CreateAccountInput) (*domain.Account, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Password = strings.TrimSpace(in.Password)
	in.DeviceCode = strings.TrimSpace(in.DeviceCode)

	if err := validateCreateAccount(in); err != nil {
		return nil, reject(opCreateAccount, err)
	}

	existing, err := s.accounts.FindByUsernameFold(ctx, in.Username)
	switch {
	case err == nil:
		return nil, reject(opCreateAccount, &domain.ValidationError{
			Field:  "username",
			Reason: fmt.Sprintf("%q already exists", existing.Username),
		})
	case !errors.Is(err, domain.ErrNotFound):
		return nil, readErr(opCreateAccount, err)
	}

	dev, err := s.devices.Get(ctx, in.DeviceCode)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, reject(opCreateAccount, &domain.ValidationError{Field: "device_code", Reason: "device does not exist"})
		}
		return nil, readErr(opCreateAccount, err)
	}
	if err := s.ensureUnlinked(ctx, dev, ""); err != nil {
		return nil, reject(opCreateAccount, err)
	}

	acct := &domain.Account{
		Username:   in.Username,
		Password:   in.Password,
		DeviceCode: in.DeviceCode,
		Status:     domain.AccountInactive,
		CreatedAt:  s.now(),
	}

	err = runSteps(ctx, s.log, opCreateAccount, []step{
		{name: "link_device", run: func(ctx context.Context) error { return s.syncLinkedDevice(ctx, acct) }},
		{name: "write_account", run: func(ctx context.Context) error { return s.accounts.Put(ctx, acct) }},
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("username", acct.Username).Str("device_code", acct.DeviceCode).Msg("account created")
	return acct, nil
}

// ReassignDevice moves an account to another device, or unlinks it when
// deviceCode is empty.
func (s *ConsistencyService) ReassignDevice(ctx context.Context, username, deviceCode string) error {
	username = strings.TrimSpace(username)
	deviceCode = strings.TrimSpace(deviceCode)
	if username == "" {
		return reject(opReassignDevice, &domain.ValidationError{Field: "username", Reason: "is required"})
	}

	acct, err := s.accounts.Get(ctx, username)
	if err != nil {
		return s.missing(opReassignDevice, username, err)
	}
	if acct.DeviceCode == deviceCode {
		metrics.ConsistencyOperationsTotal.WithLabelValues(opReassignDevice, "noop").Inc()
		return nil
	}

	if deviceCode != "" {
		dev, err := s.devices.Get(ctx, deviceCode)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return reject(opReassignDevice, &domain.ValidationError{Field: "device_code", Reason: "device does not exist"})
			}
			return readErr(opReassignDevice, err)
		}
		if err := s.ensureUnlinked(ctx, dev, acct.Username); err != nil {
			return reject(opReassignDevice, err)
		}
	}

	oldCode := acct.DeviceCode
	moved := *acct
	moved.DeviceCode = deviceCode

	var steps []step
	if oldCode != "" {
		steps = append(steps, step{name: "unlink_old_device", run: func(ctx context.Context) error {
			return s.unlinkDevice(ctx, oldCode, s.opts.ResetUnlinkedDeviceStatus)
		}})
	}
	// linked stays false when the new device vanished after the check; the
	// account is then left without a device rather than pointing at nothing.
	linked := false
	if deviceCode != "" {
		steps = append(steps, step{name: "link_new_device", run: func(ctx context.Context) error {
			err := s.syncLinkedDevice(ctx, &moved)
			linked = err == nil
			return err
		}})
	}
	steps = append(steps, step{name: "update_account_device", run: func(ctx context.Context) error {
		u := ports.AccountUpdate{ClearDevice: !linked}
		if linked {
			u.DeviceCode = &deviceCode
		}
		return s.accounts.Update(ctx, acct.Username, u)
	}})

	if err := runSteps(ctx, s.log, opReassignDevice, steps); err != nil {
		return err
	}

	s.log.Info().
		Str("username", acct.Username).
		Str("from", oldCode).
		Str("to", deviceCode).
		Msg("device reassigned")
	return nil
}

// ToggleAccountStatus flips active and suspended, and activates inactive
// accounts. The linked device follows through the status mapper. It returns
// the new status, or "" when the account does not exist.
func (s *ConsistencyService) ToggleAccountStatus(ctx context.Context, username string) (domain.AccountStatus, error) {
	username = strings.TrimSpace(username)
	acct, err := s.accounts.Get(ctx, username)
	if err != nil {
		return "", s.missing(opToggleStatus, username, err)
	}

	next := acct.Status.Toggled()
	updated := *acct
	updated.Status = next

	steps := []step{
		{name: "write_account_status", run: func(ctx context.Context) error {
			return s.accounts.Update(ctx, acct.Username, ports.AccountUpdate{Status: &next})
		}},
	}
	if acct.DeviceCode != "" {
		steps = append(steps, step{name: "sync_device", run: func(ctx context.Context) error {
			return s.syncLinkedDevice(ctx, &updated)
		}})
	}

	if err := runSteps(ctx, s.log, opToggleStatus, steps); err != nil {
		return "", err
	}

	s.log.Info().
		Str("username", acct.Username).
		Str("from", string(acct.Status)).
		Str("to", string(next)).
		Msg("account status toggled")
	return next, nil
}

// DeleteDevice removes a device with its payments and unlinks the account
// that referenced it. Payments go first so a deleted device never keeps live
// payments, and the account is unlinked before the device disappears.
func (s *ConsistencyService) DeleteDevice(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return reject(opDeleteDevice, &domain.ValidationError{Field: "code", Reason: "is required"})
	}

	if _, err := s.devices.Get(ctx, code); err != nil {
		return s.missing(opDeleteDevice, code, err)
	}

	err := runSteps(ctx, s.log, opDeleteDevice, []step{
		{name: "delete_payments", run: func(ctx context.Context) error {
			n, err := s.payments.DeleteByDevice(ctx, code)
			if err == nil {
				s.log.Debug().Str("device_code", code).Int64("payments", n).Msg("payments deleted")
			}
			return err
		}},
		{name: "unlink_account", run: func(ctx context.Context) error {
			holder, err := s.accounts.FindByDevice(ctx, code)
			if err != nil {
				return err
			}
			return s.accounts.Update(ctx, holder.Username, ports.AccountUpdate{ClearDevice: true})
		}},
		{name: "delete_device", run: func(ctx context.Context) error { return s.devices.Delete(ctx, code) }},
	})
	if err != nil {
		return err
	}

	s.log.Info().Str("device_code", code).Msg("device deleted")
	return nil
}

// DeleteAccount removes an account and frees its device, which returns to
// pending with its payment history intact.
func (s *ConsistencyService) DeleteAccount(ctx context.Context, username string) error {
	username = strings.TrimSpace(username)
	acct, err := s.accounts.Get(ctx, username)
	if err != nil {
		return s.missing(opDeleteAccount, username, err)
	}

	var steps []step
	if acct.DeviceCode != "" {
		code := acct.DeviceCode
		steps = append(steps, step{name: "reset_device", run: func(ctx context.Context) error {
			return s.unlinkDevice(ctx, code, true)
		}})
	}
	steps = append(steps, step{name: "delete_account", run: func(ctx context.Context) error {
		return s.accounts.Delete(ctx, acct.Username)
	}})

	if err := runSteps(ctx, s.log, opDeleteAccount, steps); err != nil {
		return err
	}

	s.log.Info().Str("username", acct.Username).Msg("account deleted")
	return nil
}

// UpdatePassword overwrites the account password. The device snapshot keeps
// the old password until the account is next linked or toggled.
func (s *ConsistencyService) UpdatePassword(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)
	if username == "" {
		return reject(opUpdatePassword, &domain.ValidationError{Field: "username", Reason: "is required"})
	}
	if password == "" {
		return reject(opUpdatePassword, &domain.ValidationError{Field: "password", Reason: "is required"})
	}

	err := runSteps(ctx, s.log, opUpdatePassword, []step{
		{name: "write_password", run: func(ctx context.Context) error {
			return s.accounts.Update(ctx, username, ports.AccountUpdate{Password: &password})
		}},
	})
	if err != nil {
		return err
	}

	s.log.Info().Str("username", username).Msg("password updated")
	return nil
}

// UpdateDeviceStatus sets the approval state of a device with no linked
// account. A linked device derives its status from the account, so direct
// writes are refused with a conflict.
func (s *ConsistencyService) UpdateDeviceStatus(ctx context.Context, code string, status domain.DeviceStatus) error {
	code = strings.TrimSpace(code)
	if !status.Valid() {
		return reject(opUpdateDeviceStatus, &domain.ValidationError{Field: "status", Reason: "must be pending, approved or rejected"})
	}

	dev, err := s.devices.Get(ctx, code)
	if err != nil {
		return s.missing(opUpdateDeviceStatus, code, err)
	}
	if dev.LinkedAccount != nil {
		return reject(opUpdateDeviceStatus, &domain.ConflictError{DeviceCode: code, LinkedTo: dev.LinkedAccount.Username})
	}
	if dev.Status == status {
		metrics.ConsistencyOperationsTotal.WithLabelValues(opUpdateDeviceStatus, "noop").Inc()
		return nil
	}

	err = runSteps(ctx, s.log, opUpdateDeviceStatus, []step{
		{name: "write_device_status", run: func(ctx context.Context) error {
			return s.devices.Update(ctx, code, ports.DeviceUpdate{Status: &status, UpdatedAt: s.now()})
		}},
	})
	if err != nil {
		return err
	}

	s.log.Info().Str("device_code", code).Str("status", string(status)).Msg("device status updated")
	return nil
}

// syncLinkedDevice is the single consistency rule between an account and its
// device: the embedded snapshot and the mapped status are re-derived from the
// account record alone.
func (s *ConsistencyService) syncLinkedDevice(ctx context.Context, acct *domain.Account) error {
	status := domain.DeviceStatusFor(acct.Status)
	return s.devices.Update(ctx, acct.DeviceCode, ports.DeviceUpdate{
		Status:    &status,
		Link:      acct.Snapshot(),
		UpdatedAt: s.now(),
	})
}

func (s *ConsistencyService) unlinkDevice(ctx context.Context, code string, resetStatus bool) error {
	u := ports.DeviceUpdate{ClearLink: true, UpdatedAt: s.now()}
	if resetStatus {
		pending := domain.DevicePending
		u.Status = &pending
	}
	return s.devices.Update(ctx, code, u)
}

// ensureUnlinked fails with a conflict when dev is held by an account other
// than owner. Both the embedded snapshot and the account index are checked.
func (s *ConsistencyService) ensureUnlinked(ctx context.Context, dev *domain.Device, owner string) error {
	if dev.LinkedAccount != nil && !strings.EqualFold(dev.LinkedAccount.Username, owner) {
		return &domain.ConflictError{DeviceCode: dev.Code, LinkedTo: dev.LinkedAccount.Username}
	}
	holder, err := s.accounts.FindByDevice(ctx, dev.Code)
	switch {
	case err == nil:
		if !strings.EqualFold(holder.Username, owner) {
			return &domain.ConflictError{DeviceCode: dev.Code, LinkedTo: holder.Username}
		}
	case !errors.Is(err, domain.ErrNotFound):
		return readErr("ensure_unlinked", err)
	}
	return nil
}

// missing turns a failed target read into the operation result: a vanished
// target is a successful no-op, anything else is a store error.
func (s *ConsistencyService) missing(op, key string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		metrics.ConsistencyOperationsTotal.WithLabelValues(op, "noop").Inc()
		s.log.Debug().Str("operation", op).Str("key", key).Msg("target does not exist, nothing to do")
		return nil
	}
	return readErr(op, err)
}

func reject(op string, err error) error {
	metrics.ConsistencyOperationsTotal.WithLabelValues(op, "rejected").Inc()
	return err
}

func validateCreateAccount(in ports.CreateAccountInput) error {
	switch {
	case in.Username == "":
		return &domain.ValidationError{Field: "username", Reason: "is required"}
	case in.Password == "":
		return &domain.ValidationError{Field: "password", Reason: "is required"}
	case in.DeviceCode == "":
		return &domain.ValidationError{Field: "device_code", Reason: "is required"}
	case !domain.ValidUsername(in.Username):
		return &domain.ValidationError{Field: "username", Reason: "must not contain spaces or any of / . # $ [ ]"}
	}
	return nil
}
