package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/paywatch/paywatch/internal/core/domain"
	"github.com/paywatch/paywatch/internal/core/ports"
)

func newEngine(devs *stubDeviceStore, accts *stubAccountStore, pays *stubPaymentStore, resetUnlinked bool) *ConsistencyService {
	return NewConsistencyService(devs, accts, pays, ConsistencyOptions{
		ResetUnlinkedDeviceStatus: resetUnlinked,
		Now:                       func() time.Time { return fixedNow },
	}, discardLogger)
}

// ---------------------------------------------------------------------------
// CreateAccount
// ---------------------------------------------------------------------------

func TestCreateAccount_LinksPendingDeviceAndInactiveAccount(t *testing.T) {
	devs := newStubDeviceStore(approvedDevice("D1"))
	accts := newStubAccountStore()
	svc := newEngine(devs, accts, newStubPaymentStore(), true)

	acct, err := svc.CreateAccount(context.Background(), ports.CreateAccountInput{
		Username: "  alice ", Password: "p1", DeviceCode: "D1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acct.Username != "alice" {
		t.Errorf("username should be trimmed, got %q", acct.Username)
	}

	dev := devs.get("D1")
	if dev.Status != domain.DevicePending {
		t.Errorf("device status: want pending, got %s", dev.Status)
	}
	if dev.LinkedAccount == nil || dev.LinkedAccount.Username != "alice" {
		t.Fatalf("device should embed alice, got %+v", dev.LinkedAccount)
	}
	if dev.LinkedAccount.Active {
		t.Error("embedded snapshot must not be active")
	}
	stored := accts.get("alice")
	if stored == nil || stored.Status != domain.AccountInactive || stored.DeviceCode != "D1" {
		t.Errorf("unexpected account record: %+v", stored)
	}
}

func TestCreateAccount_Validation(t *testing.T) {
	cases := []struct {
		name string
		in   ports.CreateAccountInput
	}{
		{"empty username", ports.CreateAccountInput{Password: "p", DeviceCode: "D1"}},
		{"empty password", ports.CreateAccountInput{Username: "bob", Password: "  ", DeviceCode: "D1"}},
		{"empty device", ports.CreateAccountInput{Username: "bob", Password: "p"}},
		{"space in username", ports.CreateAccountInput{Username: "bo b", Password: "p", DeviceCode: "D1"}},
		{"slash in username", ports.CreateAccountInput{Username: "bo/b", Password: "p", DeviceCode: "D1"}},
		{"dot in username", ports.CreateAccountInput{Username: "bo.b", Password: "p", DeviceCode: "D1"}},
		{"unknown device", ports.CreateAccountInput{Username: "bob", Password: "p", DeviceCode: "nope"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			devs := newStubDeviceStore(approvedDevice("D1"))
			svc := newEngine(devs, newStubAccountStore(), newStubPaymentStore(), true)

			_, err := svc.CreateAccount(context.Background(), tc.in)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("want ErrValidation, got %v", err)
			}
			if len(devs.writes) != 0 {
				t.Errorf("no writes expected, got %v", devs.writes)
			}
		})
	}
}

func TestCreateAccount_DuplicateUsernameIsCaseInsensitive(t *testing.T) {
	existing := domain.Account{Username: "Alice", Password: "x", Status: domain.AccountActive}
	svc := newEngine(newStubDeviceStore(approvedDevice("D1")), newStubAccountStore(existing), newStubPaymentStore(), true)

	_, err := svc.CreateAccount(context.Background(), ports.CreateAccountInput{Username: "alice", Password: "p", DeviceCode: "D1"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
}

func TestCreateAccount_LinkedDeviceConflictLeavesRecordsUnchanged(t *testing.T) {
	bob, dev := linkedPair("bob", "D1", domain.AccountActive)
	devs := newStubDeviceStore(dev)
	accts := newStubAccountStore(bob)
	svc := newEngine(devs, accts, newStubPaymentStore(), true)

	_, err := svc.CreateAccount(context.Background(), ports.CreateAccountInput{Username: "alice", Password: "p", DeviceCode: "D1"})

	var conflict *domain.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("want ConflictError, got %v", err)
	}
	if conflict.LinkedTo != "bob" {
		t.Errorf("conflict should name bob, got %q", conflict.LinkedTo)
	}
	if got := devs.get("D1"); got.LinkedAccount.Username != "bob" || got.Status != domain.DeviceApproved {
		t.Errorf("device changed: %+v", got)
	}
	if accts.get("alice") != nil {
		t.Error("alice must not be created")
	}
	if got := accts.get("bob"); got.DeviceCode != "D1" || got.Status != domain.AccountActive {
		t.Errorf("bob changed: %+v", got)
	}
}

func TestCreateAccount_ConflictDetectedFromAccountIndex(t *testing.T) {
	// Device snapshot lost, but an account still points at the device.
	bob := domain.Account{Username: "bob", Password: "x", DeviceCode: "D1", Status: domain.AccountActive}
	svc := newEngine(newStubDeviceStore(approvedDevice("D1")), newStubAccountStore(bob), newStubPaymentStore(), true)

	_, err := svc.CreateAccount(context.Background(), ports.CreateAccountInput{Username: "alice", Password: "p", DeviceCode: "D1"})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}
}

func TestCreateAccount_AccountWriteFailureIsPartial(t *testing.T) {
	devs := newStubDeviceStore(approvedDevice("D1"))
	accts := newStubAccountStore()
	accts.set("Put", errBoom)
	svc := newEngine(devs, accts, newStubPaymentStore(), true)

	_, err := svc.CreateAccount(context.Background(), ports.CreateAccountInput{Username: "alice", Password: "p", DeviceCode: "D1"})

	var partial *domain.PartialError
	if !errors.As(err, &partial) {
		t.Fatalf("want PartialError, got %v", err)
	}
	if partial.Failed != "write_account" || len(partial.Applied) != 1 || partial.Applied[0] != "link_device" {
		t.Errorf("unexpected partial: %+v", partial)
	}
	if !errors.Is(err, domain.ErrStore) || !errors.Is(err, errBoom) {
		t.Errorf("partial should wrap the store failure, got %v", err)
	}
	// Device was written first, so it is visibly occupied.
	if devs.get("D1").LinkedAccount == nil {
		t.Error("device should be linked after the first step")
	}
}

func TestCreateAccount_FirstStepFailureIsStoreError(t *testing.T) {
	devs := newStubDeviceStore(approvedDevice("D1"))
	devs.set("Update", errBoom)
	accts := newStubAccountStore()
	svc := newEngine(devs, accts, newStubPaymentStore(), true)

	_, err := svc.CreateAccount(context.Background(), ports.CreateAccountInput{Username: "alice", Password: "p", DeviceCode: "D1"})

	var storeErr *domain.StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("want StoreError, got %v", err)
	}
	var partial *domain.PartialError
	if errors.As(err, &partial) {
		t.Error("nothing was applied, must not be partial")
	}
	if accts.get("alice") != nil {
		t.Error("account must not be written after the device step failed")
	}
}

// ---------------------------------------------------------------------------
// ToggleAccountStatus
// ---------------------------------------------------------------------------

func TestToggleAccountStatus_CyclesAndSyncsDevice(t *testing.T) {
	acct, dev := linkedPair("alice", "D1", domain.AccountInactive)
	devs := newStubDeviceStore(dev)
	accts := newStubAccountStore(acct)
	svc := newEngine(devs, accts, newStubPaymentStore(), true)
	ctx := context.Background()

	want := []struct {
		account domain.AccountStatus
		device  domain.DeviceStatus
	}{
		{domain.AccountActive, domain.DeviceApproved},
		{domain.AccountSuspended, domain.DeviceRejected},
		{domain.AccountActive, domain.DeviceApproved},
	}
	for i, w := range want {
		got, err := svc.ToggleAccountStatus(ctx, "alice")
		if err != nil {
			t.Fatalf("toggle %d: %v", i, err)
		}
		if got != w.account {
			t.Errorf("toggle %d: want %s, got %s", i, w.account, got)
		}
		d := devs.get("D1")
		if d.Status != w.device {
			t.Errorf("toggle %d: device want %s, got %s", i, w.device, d.Status)
		}
		if d.LinkedAccount.Status != w.account || d.LinkedAccount.Active != (w.account == domain.AccountActive) {
			t.Errorf("toggle %d: stale snapshot %+v", i, d.LinkedAccount)
		}
	}
}

func TestToggleAccountStatus_TwiceIsIdentity(t *testing.T) {
	for _, start := range []domain.AccountStatus{domain.AccountActive, domain.AccountSuspended} {
		acct, dev := linkedPair("alice", "D1", start)
		accts := newStubAccountStore(acct)
		svc := newEngine(newStubDeviceStore(dev), accts, newStubPaymentStore(), true)

		for i := 0; i < 2; i++ {
			if _, err := svc.ToggleAccountStatus(context.Background(), "alice"); err != nil {
				t.Fatalf("toggle: %v", err)
			}
		}
		if got := accts.get("alice").Status; got != start {
			t.Errorf("Toggle(Toggle(%s)) = %s", start, got)
		}
	}
}

func TestToggleAccountStatus_MissingAccountIsNoop(t *testing.T) {
	svc := newEngine(newStubDeviceStore(), newStubAccountStore(), newStubPaymentStore(), true)
	got, err := svc.ToggleAccountStatus(context.Background(), "ghost")
	if err != nil || got != "" {
		t.Fatalf("want no-op, got %q, %v", got, err)
	}
}

func TestToggleAccountStatus_UnlinkedAccountWritesOnlyAccount(t *testing.T) {
	acct := domain.Account{Username: "alice", Password: "p", Status: domain.AccountActive}
	devs := newStubDeviceStore()
	svc := newEngine(devs, newStubAccountStore(acct), newStubPaymentStore(), true)

	if _, err := svc.ToggleAccountStatus(context.Background(), "alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(devs.writes) != 0 {
		t.Errorf("no device writes expected, got %v", devs.writes)
	}
}

// ---------------------------------------------------------------------------
// ReassignDevice
// ---------------------------------------------------------------------------

func TestReassignDevice_MovesLinkAndResetsOldDevice(t *testing.T) {
	acct, d1 := linkedPair("alice", "D1", domain.AccountActive)
	devs := newStubDeviceStore(d1, approvedDevice("D2"))
	accts := newStubAccountStore(acct)
	svc := newEngine(devs, accts, newStubPaymentStore(), true)

	if err := svc.ReassignDevice(context.Background(), "alice", "D2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	old := devs.get("D1")
	if old.LinkedAccount != nil || old.Status != domain.DevicePending {
		t.Errorf("old device should be free and pending, got %+v", old)
	}
	nd := devs.get("D2")
	if nd.LinkedAccount == nil || nd.LinkedAccount.Username != "alice" || nd.Status != domain.DeviceApproved {
		t.Errorf("new device should carry alice, got %+v", nd)
	}
	if accts.get("alice").DeviceCode != "D2" {
		t.Error("account should point to D2")
	}
}

func TestReassignDevice_LegacyKeepsOldDeviceStatus(t *testing.T) {
	acct, d1 := linkedPair("alice", "D1", domain.AccountActive)
	devs := newStubDeviceStore(d1, approvedDevice("D2"))
	svc := newEngine(devs, newStubAccountStore(acct), newStubPaymentStore(), false)

	if err := svc.ReassignDevice(context.Background(), "alice", "D2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	old := devs.get("D1")
	if old.LinkedAccount != nil || old.Status != domain.DeviceApproved {
		t.Errorf("old device should be unlinked with status kept, got %+v", old)
	}
}

func TestReassignDevice_Unlink(t *testing.T) {
	acct, d1 := linkedPair("alice", "D1", domain.AccountActive)
	devs := newStubDeviceStore(d1)
	accts := newStubAccountStore(acct)
	svc := newEngine(devs, accts, newStubPaymentStore(), true)

	if err := svc.ReassignDevice(context.Background(), "alice", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if devs.get("D1").LinkedAccount != nil {
		t.Error("device should be unlinked")
	}
	if accts.get("alice").DeviceCode != "" {
		t.Error("account should have no device")
	}
}

func TestReassignDevice_SameDeviceIsNoop(t *testing.T) {
	acct, d1 := linkedPair("alice", "D1", domain.AccountActive)
	devs := newStubDeviceStore(d1)
	svc := newEngine(devs, newStubAccountStore(acct), newStubPaymentStore(), true)

	if err := svc.ReassignDevice(context.Background(), "alice", "D1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(devs.writes) != 0 {
		t.Errorf("no writes expected, got %v", devs.writes)
	}
}

func TestReassignDevice_TargetLinkedElsewhere(t *testing.T) {
	alice, d1 := linkedPair("alice", "D1", domain.AccountActive)
	bob, d2 := linkedPair("bob", "D2", domain.AccountActive)
	devs := newStubDeviceStore(d1, d2)
	accts := newStubAccountStore(alice, bob)
	svc := newEngine(devs, accts, newStubPaymentStore(), true)

	err := svc.ReassignDevice(context.Background(), "alice", "D2")
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}
	if len(devs.writes) != 0 {
		t.Errorf("no writes expected, got %v", devs.writes)
	}
	if accts.get("alice").DeviceCode != "D1" {
		t.Error("alice must stay on D1")
	}
}

// vanishingDevices reports one device as gone on write, as if it was deleted
// between the existence check and the link.
type vanishingDevices struct {
	*stubDeviceStore
	gone string
}

func (v vanishingDevices) Update(ctx context.Context, code string, u ports.DeviceUpdate) error {
	if code == v.gone {
		return domain.ErrNotFound
	}
	return v.stubDeviceStore.Update(ctx, code, u)
}

func TestReassignDevice_TargetVanishedLeavesAccountUnlinked(t *testing.T) {
	acct, d1 := linkedPair("alice", "D1", domain.AccountActive)
	devs := newStubDeviceStore(d1, approvedDevice("D2"))
	accts := newStubAccountStore(acct)
	svc := NewConsistencyService(vanishingDevices{devs, "D2"}, accts, newStubPaymentStore(), ConsistencyOptions{
		ResetUnlinkedDeviceStatus: true,
		Now:                       func() time.Time { return fixedNow },
	}, discardLogger)

	if err := svc.ReassignDevice(context.Background(), "alice", "D2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if devs.get("D1").LinkedAccount != nil {
		t.Error("old device should be unlinked")
	}
	if code := accts.get("alice").DeviceCode; code != "" {
		t.Errorf("account must not point at a vanished device, got %q", code)
	}
}

func TestReassignDevice_MissingAccountIsNoop(t *testing.T) {
	svc := newEngine(newStubDeviceStore(approvedDevice("D1")), newStubAccountStore(), newStubPaymentStore(), true)
	if err := svc.ReassignDevice(context.Background(), "ghost", "D1"); err != nil {
		t.Fatalf("want no-op, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// DeleteDevice
// ---------------------------------------------------------------------------

func TestDeleteDevice_RemovesPaymentsAndUnlinksAccount(t *testing.T) {
	acct, d1 := linkedPair("alice", "D1", domain.AccountActive)
	devs := newStubDeviceStore(d1, approvedDevice("D2"))
	accts := newStubAccountStore(acct)
	pays := newStubPaymentStore(
		domain.Payment{ID: "a", DeviceCode: "D1", Amount: 10, Timestamp: fixedNow},
		domain.Payment{ID: "b", DeviceCode: "D1", Amount: 5, Timestamp: fixedNow},
		domain.Payment{ID: "c", DeviceCode: "D2", Amount: 7, Timestamp: fixedNow},
	)
	svc := newEngine(devs, accts, pays, true)

	if err := svc.DeleteDevice(context.Background(), "D1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pays.count("D1") != 0 {
		t.Error("D1 payments should be gone")
	}
	if pays.count("D2") != 1 {
		t.Error("D2 payments must be kept")
	}
	got := accts.get("alice")
	if got == nil {
		t.Fatal("account must survive device deletion")
	}
	if got.DeviceCode != "" {
		t.Errorf("account should be unlinked, got %q", got.DeviceCode)
	}
	if devs.get("D1") != nil {
		t.Error("device should be deleted")
	}
}

func TestDeleteDevice_MissingIsNoop(t *testing.T) {
	devs := newStubDeviceStore()
	svc := newEngine(devs, newStubAccountStore(), newStubPaymentStore(), true)
	if err := svc.DeleteDevice(context.Background(), "nope"); err != nil {
		t.Fatalf("want no-op, got %v", err)
	}
	if len(devs.writes) != 0 {
		t.Errorf("no writes expected, got %v", devs.writes)
	}
}

func TestDeleteDevice_UnlinkFailureKeepsDevice(t *testing.T) {
	acct, d1 := linkedPair("alice", "D1", domain.AccountActive)
	devs := newStubDeviceStore(d1)
	accts := newStubAccountStore(acct)
	accts.set("Update", errBoom)
	svc := newEngine(devs, accts, newStubPaymentStore(domain.Payment{ID: "a", DeviceCode: "D1"}), true)

	err := svc.DeleteDevice(context.Background(), "D1")

	var partial *domain.PartialError
	if !errors.As(err, &partial) {
		t.Fatalf("want PartialError, got %v", err)
	}
	if partial.Failed != "unlink_account" {
		t.Errorf("failed step: want unlink_account, got %s", partial.Failed)
	}
	if devs.get("D1") == nil {
		t.Error("device must not be deleted while the account still points to it")
	}
}

func TestDeleteDevice_RetryAfterPartialConverges(t *testing.T) {
	acct, d1 := linkedPair("alice", "D1", domain.AccountActive)
	devs := newStubDeviceStore(d1)
	devs.set("Delete", errBoom)
	accts := newStubAccountStore(acct)
	pays := newStubPaymentStore(domain.Payment{ID: "a", DeviceCode: "D1"})
	svc := newEngine(devs, accts, pays, true)
	ctx := context.Background()

	if err := svc.DeleteDevice(ctx, "D1"); !errors.Is(err, errBoom) {
		t.Fatalf("want injected failure, got %v", err)
	}
	if err := svc.DeleteDevice(ctx, "D1"); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if devs.get("D1") != nil || pays.count("D1") != 0 || accts.get("alice").DeviceCode != "" {
		t.Error("retry should converge to the fully deleted state")
	}
}

// ---------------------------------------------------------------------------
// DeleteAccount
// ---------------------------------------------------------------------------

func TestDeleteAccount_ResetsDeviceAndKeepsPayments(t *testing.T) {
	acct, d1 := linkedPair("alice", "D1", domain.AccountActive)
	devs := newStubDeviceStore(d1)
	accts := newStubAccountStore(acct)
	pays := newStubPaymentStore(
		domain.Payment{ID: "a", DeviceCode: "D1", Amount: 10},
		domain.Payment{ID: "b", DeviceCode: "D1", Amount: 5},
	)
	svc := newEngine(devs, accts, pays, true)

	if err := svc.DeleteAccount(context.Background(), "alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d := devs.get("D1")
	if d.LinkedAccount != nil || d.Status != domain.DevicePending {
		t.Errorf("device should be free and pending, got %+v", d)
	}
	if pays.count("D1") != 2 {
		t.Errorf("payments must be preserved, got %d", pays.count("D1"))
	}
	if accts.get("alice") != nil {
		t.Error("account should be deleted")
	}
}

func TestDeleteAccount_MissingIsNoop(t *testing.T) {
	svc := newEngine(newStubDeviceStore(), newStubAccountStore(), newStubPaymentStore(), true)
	if err := svc.DeleteAccount(context.Background(), "ghost"); err != nil {
		t.Fatalf("want no-op, got %v", err)
	}
}

func TestDeleteAccount_VanishedDeviceIsSkipped(t *testing.T) {
	acct := domain.Account{Username: "alice", Password: "p", DeviceCode: "gone", Status: domain.AccountActive}
	accts := newStubAccountStore(acct)
	svc := newEngine(newStubDeviceStore(), accts, newStubPaymentStore(), true)

	if err := svc.DeleteAccount(context.Background(), "alice"); err != nil {
		t.Fatalf("vanished device should be benign, got %v", err)
	}
	if accts.get("alice") != nil {
		t.Error("account should be deleted")
	}
}

// ---------------------------------------------------------------------------
// UpdatePassword / UpdateDeviceStatus
// ---------------------------------------------------------------------------

func TestUpdatePassword_LeavesSnapshotUntouched(t *testing.T) {
	acct, d1 := linkedPair("alice", "D1", domain.AccountActive)
	devs := newStubDeviceStore(d1)
	accts := newStubAccountStore(acct)
	svc := newEngine(devs, accts, newStubPaymentStore(), true)

	if err := svc.UpdatePassword(context.Background(), "alice", "p2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if accts.get("alice").Password != "p2" {
		t.Error("password should be overwritten")
	}
	if devs.get("D1").LinkedAccount.Password != "secret" {
		t.Error("device snapshot must keep the previous password")
	}
}

func TestUpdatePassword_EmptyIsValidationError(t *testing.T) {
	svc := newEngine(newStubDeviceStore(), newStubAccountStore(), newStubPaymentStore(), true)
	if err := svc.UpdatePassword(context.Background(), "alice", " "); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
}

func TestUpdatePassword_MissingAccountIsBenign(t *testing.T) {
	svc := newEngine(newStubDeviceStore(), newStubAccountStore(), newStubPaymentStore(), true)
	if err := svc.UpdatePassword(context.Background(), "ghost", "p2"); err != nil {
		t.Fatalf("want nil, got %v", err)
	}
}

func TestUpdateDeviceStatus(t *testing.T) {
	_, linked := linkedPair("alice", "D2", domain.AccountActive)
	pending := approvedDevice("D1")
	pending.Status = domain.DevicePending
	devs := newStubDeviceStore(pending, linked)
	svc := newEngine(devs, newStubAccountStore(), newStubPaymentStore(), true)
	ctx := context.Background()

	if err := svc.UpdateDeviceStatus(ctx, "D1", domain.DeviceApproved); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if devs.get("D1").Status != domain.DeviceApproved {
		t.Error("D1 should be approved")
	}
	if err := svc.UpdateDeviceStatus(ctx, "D2", domain.DeviceRejected); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("linked device: want ErrConflict, got %v", err)
	}
	if err := svc.UpdateDeviceStatus(ctx, "D1", "bogus"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("bad status: want ErrValidation, got %v", err)
	}
	if err := svc.UpdateDeviceStatus(ctx, "nope", domain.DeviceApproved); err != nil {
		t.Errorf("missing device: want no-op, got %v", err)
	}
}
