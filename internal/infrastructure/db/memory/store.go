package memory

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/paywatch/paywatch/internal/core/domain"
	"github.com/paywatch/paywatch/internal/core/ports"
)

// DeviceStore implements ports.DeviceStore.
type DeviceStore struct {
	mu      sync.RWMutex
	devices map[string]domain.Device
	changes feed[ports.DeviceChange]
}

func NewDeviceStore() *DeviceStore {
	return &DeviceStore{devices: make(map[string]domain.Device)}
}

func copyDevice(d domain.Device) *domain.Device {
	if d.LinkedAccount != nil {
		la := *d.LinkedAccount
		d.LinkedAccount = &la
	}
	return &d
}

func (s *DeviceStore) Get(_ context.Context, code string) (*domain.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[code]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyDevice(d), nil
}

func (s *DeviceStore) List(_ context.Context) ([]domain.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Device, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, *copyDevice(d))
	}
	return out, nil
}

func (s *DeviceStore) Put(_ context.Context, d *domain.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[d.Code] = *copyDevice(*d)
	s.changes.publish(ports.DeviceChange{Code: d.Code, Device: copyDevice(*d)})
	return nil
}

func (s *DeviceStore) Update(_ context.Context, code string, u ports.DeviceUpdate) error {
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
	s.devices[code] = d
	s.changes.publish(ports.DeviceChange{Code: code, Device: copyDevice(d)})
	return nil
}

func (s *DeviceStore) Delete(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.devices[code]; !ok {
		return nil
	}
	delete(s.devices, code)
	s.changes.publish(ports.DeviceChange{Code: code})
	return nil
}

func (s *DeviceStore) Watch(ctx context.Context) (<-chan ports.DeviceChange, error) {
	return s.changes.subscribe(ctx), nil
}

// AccountStore implements ports.AccountStore.
type AccountStore struct {
	mu       sync.RWMutex
	accounts map[string]domain.Account
	changes  feed[ports.AccountChange]
}

func NewAccountStore() *AccountStore {
	return &AccountStore{accounts: make(map[string]domain.Account)}
}

func (s *AccountStore) Get(_ context.Context, username string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[username]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &a, nil
}

func (s *AccountStore) FindByUsernameFold(_ context.Context, username string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if a, ok := s.accounts[username]; ok {
		return &a, nil
	}
	for _, a := range s.accounts {
		if strings.EqualFold(a.Username, username) {
			return &a, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *AccountStore) FindByDevice(_ context.Context, code string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.accounts {
		if a.DeviceCode == code {
			return &a, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *AccountStore) List(_ context.Context) ([]domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	return out, nil
}

func (s *AccountStore) Put(_ context.Context, a *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.Username] = *a
	c := *a
	s.changes.publish(ports.AccountChange{Username: a.Username, Account: &c})
	return nil
}

func (s *AccountStore) Update(_ context.Context, username string, u ports.AccountUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[username]
	if !ok {
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
	s.accounts[username] = a
	c := a
	s.changes.publish(ports.AccountChange{Username: username, Account: &c})
	return nil
}

func (s *AccountStore) Delete(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[username]; !ok {
		return nil
	}
	delete(s.accounts, username)
	s.changes.publish(ports.AccountChange{Username: username})
	return nil
}

func (s *AccountStore) Watch(ctx context.Context) (<-chan ports.AccountChange, error) {
	return s.changes.subscribe(ctx), nil
}

// PaymentStore implements ports.PaymentStore. Listings follow insertion
// order, which stands in for store-native order on timestamp ties.
type PaymentStore struct {
	mu       sync.RWMutex
	seq      int
	order    []string
	payments map[string]domain.Payment
	changes  feed[ports.PaymentChange]
}

func NewPaymentStore() *PaymentStore {
	return &PaymentStore{payments: make(map[string]domain.Payment)}
}

func (s *PaymentStore) Insert(_ context.Context, p *domain.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		s.seq++
		p.ID = "pay-" + strconv.Itoa(s.seq)
	}
	if _, exists := s.payments[p.ID]; !exists {
		s.order = append(s.order, p.ID)
	}
	s.payments[p.ID] = *p
	c := *p
	s.changes.publish(ports.PaymentChange{ID: p.ID, Payment: &c})
	return nil
}

func (s *PaymentStore) Get(_ context.Context, id string) (*domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (s *PaymentStore) List(_ context.Context) ([]domain.Payment, error) {
	return s.filter(func(domain.Payment) bool { return true }), nil
}

func (s *PaymentStore) ListByDevice(_ context.Context, code string) ([]domain.Payment, error) {
	return s.filter(func(p domain.Payment) bool { return p.DeviceCode == code }), nil
}

func (s *PaymentStore) DeleteByDevice(_ context.Context, code string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.order[:0]
	var n int64
	for _, id := range s.order {
		if s.payments[id].DeviceCode != code {
			kept = append(kept, id)
			continue
		}
		delete(s.payments, id)
		n++
		s.changes.publish(ports.PaymentChange{ID: id})
	}
	s.order = kept
	return n, nil
}

func (s *PaymentStore) Watch(ctx context.Context) (<-chan ports.PaymentChange, error) {
	return s.changes.subscribe(ctx), nil
}

func (s *PaymentStore) filter(keep func(domain.Payment) bool) []domain.Payment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Payment, 0, len(s.order))
	for _, id := range s.order {
		if p := s.payments[id]; keep(p) {
			out = append(out, p)
		}
	}
	return out
}
