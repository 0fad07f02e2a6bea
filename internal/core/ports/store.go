package ports

import (
	"context"
	"time"

	"github.com/paywatch/paywatch/internal/core/domain"
)

// DeviceUpdate is a partial write merged into a device record. Nil fields are
// left untouched. ClearLink removes the embedded account snapshot and wins
// over Link.
type DeviceUpdate struct {
	Status    *domain.DeviceStatus
	Link      *domain.LinkedAccount
	ClearLink bool
	UpdatedAt time.Time
}

// AccountUpdate is a partial write merged into an account record.
// ClearDevice unlinks the account and wins over DeviceCode.
type AccountUpdate struct {
	Status      *domain.AccountStatus
	Password    *string
	DeviceCode  *string
	ClearDevice bool
}

// DeviceChange is one pushed device snapshot. Device is nil after a delete.
type DeviceChange struct {
	Code   string
	Device *domain.Device
}

// AccountChange is one pushed account snapshot. Account is nil after a delete.
type AccountChange struct {
	Username string
	Account  *domain.Account
}

// PaymentChange is one pushed payment snapshot. Payment is nil after a delete.
type PaymentChange struct {
	ID      string
	Payment *domain.Payment
}

// DeviceStore is the devices collection, keyed by device code.
// Update returns domain.ErrNotFound when the key is missing; Delete of a
// missing key is a no-op. Watch streams changes until ctx is cancelled.
type DeviceStore interface {
	Get(ctx context.Context, code string) (*domain.Device, error)
	List(ctx context.Context) ([]domain.Device, error)
	Put(ctx context.Context, d *domain.Device) error
	Update(ctx context.Context, code string, u DeviceUpdate) error
	Delete(ctx context.Context, code string) error
	Watch(ctx context.Context) (<-chan DeviceChange, error)
}

// AccountStore is the accounts collection, keyed by username.
type AccountStore interface {
	Get(ctx context.Context, username string) (*domain.Account, error)
	// FindByUsernameFold matches the username case-insensitively.
	FindByUsernameFold(ctx context.Context, username string) (*domain.Account, error)
	FindByDevice(ctx context.Context, code string) (*domain.Account, error)
	List(ctx context.Context) ([]domain.Account, error)
	Put(ctx context.Context, a *domain.Account) error
	Update(ctx context.Context, username string, u AccountUpdate) error
	Delete(ctx context.Context, username string) error
	Watch(ctx context.Context) (<-chan AccountChange, error)
}

// PaymentStore is the payments collection. Payments are insert-only; they
// leave the store only through DeleteByDevice.
type PaymentStore interface {
	// Insert stores p, assigning p.ID when empty.
	Insert(ctx context.Context, p *domain.Payment) error
	Get(ctx context.Context, id string) (*domain.Payment, error)
	List(ctx context.Context) ([]domain.Payment, error)
	ListByDevice(ctx context.Context, code string) ([]domain.Payment, error)
	DeleteByDevice(ctx context.Context, code string) (int64, error)
	Watch(ctx context.Context) (<-chan PaymentChange, error)
}
