package ports

import (
	"context"
	"time"

	"github.com/paywatch/paywatch/internal/core/domain"
)

// RegisterDeviceInput is sent by a capture client announcing itself.
type RegisterDeviceInput struct {
	Code         string
	Model        string
	Manufacturer string
}

// RecordPaymentInput is one captured payment notification.
type RecordPaymentInput struct {
	DeviceCode string
	Sender     string
	Amount     float64
	Content    string
	Timestamp  time.Time
}

// CaptureService is the write path used by capture clients.
type CaptureService interface {
	// RegisterDevice upserts the device; created is true for new devices.
	RegisterDevice(ctx context.Context, in RegisterDeviceInput) (dev *domain.Device, created bool, err error)
	RecordPayment(ctx context.Context, in RecordPaymentInput) (*domain.Payment, error)
}
