package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/paywatch/paywatch/internal/core/domain"
	"github.com/paywatch/paywatch/internal/core/ports"
)

// ---------------------------------------------------------------------------
// In-memory stub stores
// ---------------------------------------------------------------------------

var (
	discardLogger = zerolog.Nop()
	errBoom       = errors.New("boom")
)

// faults maps a method name to the error it should return. Entries are
// consumed on first use unless sticky is set.
type faults struct {
	mu     sync.Mutex
	errs   map[string]error
	sticky bool
}

func (f *faults) set(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errs == nil {
		f.errs = make(map[string]error)
	}
	f.errs[method] = err
}

func (f *faults) take(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err, ok := f.errs[method]
	if !ok {
		return nil
	}
	if !f.sticky {
		delete(f.errs, method)
	}
	return err
}

type stubDeviceStore struct {
	faults
	mu      sync.Mutex
	devices map[string]*domain.Device
	writes  []string
}

func newStubDeviceStore(devs ...domain.Device) *stubDeviceStore {
	s := &stubDeviceStore{devices: make(map[string]*domain.Device)}
	for i := range devs {
		d := devs[i]
		s.devices[d.Code] = &d
	}
	return s
}

func cloneDevice(d *domain.Device) *domain.Device {
	c := *d
	if d.LinkedAccount != nil {
		la := *d.LinkedAccount
		c.LinkedAccount = &la
	}
	return &c
}

func (s *stubDeviceStore) Get(_ context.Context, code string) (*domain.Device, error) {
	if err := s.take("Get"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[code]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneDevice(d), nil
}

func (s *stubDeviceStore) List(_ context.Context) ([]domain.Device, error) {
	if err := s.take("List"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Device, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, *cloneDevice(d))
	}
	return out, nil
}

func (s *stubDeviceStore) Put(_ context.Context, d *domain.Device) error {
	if err := s.take("Put"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[d.Code] = cloneDevice(d)
	s.writes = append(s.writes, "put:"+d.Code)
	return nil
}

func (s *stubDeviceStore) Update(_ context.Context, code string, u ports.DeviceUpdate) error {
	if err := s.take("Update"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[code]
	if !ok {
		return domain.ErrNotFound
	}
	if u.Status != nil {
		d.Status = *u.Status
	}
	switch {
	case u.ClearLink:
		d.LinkedAccount = nil
	case u.Link != nil:
		la := *u.Link
		d.LinkedAccount = &la
	}
	if !u.UpdatedAt.IsZero() {
		d.UpdatedAt = u.UpdatedAt
	}
	s.writes = append(s.writes, "update:"+code)
	return nil
}

func (s *stubDeviceStore) Delete(_ context.Context, code string) error {
	if err := s.take("Delete"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.devices, code)
	s.writes = append(s.writes, "delete:"+code)
	return nil
}

func (s *stubDeviceStore) Watch(ctx context.Context) (<-chan ports.DeviceChange, error) {
	ch := make(chan ports.DeviceChange)
	go func() { <-ctx.Done(); close(ch) }()
	return ch, nil
}

func (s *stubDeviceStore) get(code string) *domain.Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[code]
	if !ok {
		return nil
	}
	return cloneDevice(d)
}

type stubAccountStore struct {
	faults
	mu       sync.Mutex
	accounts map[string]*domain.Account
	watchers []chan ports.AccountChange
}

func newStubAccountStore(accts ...domain.Account) *stubAccountStore {
	s := &stubAccountStore{accounts: make(map[string]*domain.Account)}
	for i := range accts {
		a := accts[i]
		s.accounts[a.Username] = &a
	}
	return s
}

func (s *stubAccountStore) Get(_ context.Context, username string) (*domain.Account, error) {
	if err := s.take("Get"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[username]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *a
	return &c, nil
}

func (s *stubAccountStore) FindByUsernameFold(_ context.Context, username string) (*domain.Account, error) {
	if err := s.take("FindByUsernameFold"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if strings.EqualFold(a.Username, username) {
			c := *a
			return &c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *stubAccountStore) FindByDevice(_ context.Context, code string) (*domain.Account, error) {
	if err := s.take("FindByDevice"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.DeviceCode == code {
			c := *a
			return &c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *stubAccountStore) List(_ context.Context) ([]domain.Account, error) {
	if err := s.take("List"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, *a)
	}
	return out, nil
}

func (s *stubAccountStore) Put(_ context.Context, a *domain.Account) error {
	if err := s.take("Put"); err != nil {
		return err
	}
	s.mu.Lock()
	c := *a
	s.accounts[a.Username] = &c
	s.mu.Unlock()
	s.notify(a.Username)
	return nil
}

func (s *stubAccountStore) Update(_ context.Context, username string, u ports.AccountUpdate) error {
	if err := s.take("Update"); err != nil {
		return err
	}
	s.mu.Lock()
	a, ok := s.accounts[username]
	if !ok {
		s.mu.Unlock()
		return domain.ErrNotFound
	}
	if u.Status != nil {
		a.Status = *u.Status
	}
	if u.Password != nil {
		a.Password = *u.Password
	}
	switch {
	case u.ClearDevice:
		a.DeviceCode = ""
	case u.DeviceCode != nil:
		a.DeviceCode = *u.DeviceCode
	}
	s.mu.Unlock()
	s.notify(username)
	return nil
}

func (s *stubAccountStore) Delete(_ context.Context, username string) error {
	if err := s.take("Delete"); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.accounts, username)
	s.mu.Unlock()
	s.notify(username)
	return nil
}

// Watch pushes a snapshot to every subscriber after each write. Sends block,
// so tests that watch must keep draining.
func (s *stubAccountStore) Watch(ctx context.Context) (<-chan ports.AccountChange, error) {
	if err := s.take("Watch"); err != nil {
		return nil, err
	}
	ch := make(chan ports.AccountChange, 16)
	s.mu.Lock()
	s.watchers = append(s.watchers, ch)
	s.mu.Unlock()
	return ch, nil
}

func (s *stubAccountStore) notify(username string) {
	s.mu.Lock()
	var acct *domain.Account
	if a, ok := s.accounts[username]; ok {
		c := *a
		acct = &c
	}
	watchers := append([]chan ports.AccountChange(nil), s.watchers...)
	s.mu.Unlock()
	for _, w := range watchers {
		w <- ports.AccountChange{Username: username, Account: acct}
	}
}

func (s *stubAccountStore) get(username string) *domain.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[username]
	if !ok {
		return nil
	}
	c := *a
	return &c
}

type stubPaymentStore struct {
	faults
	mu       sync.Mutex
	payments []domain.Payment
	nextID   int
}

func newStubPaymentStore(ps ...domain.Payment) *stubPaymentStore {
	return &stubPaymentStore{payments: append([]domain.Payment(nil), ps...)}
}

func (s *stubPaymentStore) Insert(_ context.Context, p *domain.Payment) error {
	if err := s.take("Insert"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		s.nextID++
		p.ID = "p" + strconv.Itoa(s.nextID)
	}
	s.payments = append(s.payments, *p)
	return nil
}

func (s *stubPaymentStore) Get(_ context.Context, id string) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.ID == id {
			c := p
			return &c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *stubPaymentStore) List(_ context.Context) ([]domain.Payment, error) {
	if err := s.take("List"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Payment(nil), s.payments...), nil
}

func (s *stubPaymentStore) ListByDevice(_ context.Context, code string) ([]domain.Payment, error) {
	if err := s.take("ListByDevice"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Payment
	for _, p := range s.payments {
		if p.DeviceCode == code {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubPaymentStore) DeleteByDevice(_ context.Context, code string) (int64, error) {
	if err := s.take("DeleteByDevice"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.payments[:0]
	var n int64
	for _, p := range s.payments {
		if p.DeviceCode == code {
			n++
			continue
		}
		kept = append(kept, p)
	}
	s.payments = kept
	return n, nil
}

func (s *stubPaymentStore) Watch(ctx context.Context) (<-chan ports.PaymentChange, error) {
	ch := make(chan ports.PaymentChange)
	go func() { <-ctx.Done(); close(ch) }()
	return ch, nil
}

func (s *stubPaymentStore) count(code string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.payments {
		if p.DeviceCode == code {
			n++
		}
	}
	return n
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

var fixedNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func approvedDevice(code string) domain.Device {
	return domain.Device{Code: code, Model: "A52", Manufacturer: "Samsung", Status: domain.DeviceApproved, CreatedAt: fixedNow}
}

// linkedPair returns an account linked to a device in a consistent state.
func linkedPair(username, code string, status domain.AccountStatus) (domain.Account, domain.Device) {
	acct := domain.Account{Username: username, Password: "secret", DeviceCode: code, Status: status, CreatedAt: fixedNow}
	dev := approvedDevice(code)
	dev.Status = domain.DeviceStatusFor(status)
	dev.LinkedAccount = acct.Snapshot()
	return acct, dev
}

type stubSessionStore struct {
	faults
	mu      sync.Mutex
	records map[string]ports.SessionRecord
	expires map[string]time.Time
	revoked map[string]domain.InvalidationReason
	touches int
}

func newStubSessionStore() *stubSessionStore {
	return &stubSessionStore{
		records: make(map[string]ports.SessionRecord),
		expires: make(map[string]time.Time),
		revoked: make(map[string]domain.InvalidationReason),
	}
}

func (s *stubSessionStore) Save(_ context.Context, rec ports.SessionRecord, idle time.Duration) error {
	if err := s.take("Save"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
	s.expires[rec.ID] = time.Now().Add(idle)
	return nil
}

// live reports whether id has an unexpired record. Callers hold s.mu.
func (s *stubSessionStore) live(id string) bool {
	if _, ok := s.records[id]; !ok {
		return false
	}
	if time.Now().After(s.expires[id]) {
		delete(s.records, id)
		return false
	}
	return true
}

func (s *stubSessionStore) Get(_ context.Context, id string) (*ports.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live(id) {
		return nil, domain.ErrSessionNotFound
	}
	rec := s.records[id]
	return &rec, nil
}

func (s *stubSessionStore) Touch(_ context.Context, id string, idle time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live(id) {
		return domain.ErrSessionNotFound
	}
	s.expires[id] = time.Now().Add(idle)
	s.touches++
	return nil
}

func (s *stubSessionStore) TTL(_ context.Context, id string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live(id) {
		return 0, domain.ErrSessionNotFound
	}
	return time.Until(s.expires[id]), nil
}

func (s *stubSessionStore) Revoke(_ context.Context, id string, reason domain.InvalidationReason, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	s.revoked[id] = reason
	return nil
}

func (s *stubSessionStore) RevokedReason(_ context.Context, id string) (domain.InvalidationReason, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reason, ok := s.revoked[id]
	return reason, ok, nil
}

func (s *stubSessionStore) revokedFor(id string) (domain.InvalidationReason, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reason, ok := s.revoked[id]
	return reason, ok
}
