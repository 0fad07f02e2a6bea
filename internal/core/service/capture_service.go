package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/paywatch/paywatch/internal/api/metrics"
	"github.com/paywatch/paywatch/internal/core/domain"
	"github.com/paywatch/paywatch/internal/core/ports"
)

// CaptureService is the write path used by capture clients: devices announce
// themselves and push the payments they observe.
type CaptureService struct {
	devices  ports.DeviceStore
	payments ports.PaymentStore
	log      zerolog.Logger
	now      func() time.Time
}

func NewCaptureService(devices ports.DeviceStore, payments ports.PaymentStore, log zerolog.Logger) *CaptureService {
	return &CaptureService{
		devices:  devices,
		payments: payments,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RegisterDevice creates a pending device, or returns the existing one
// unchanged. Approval and linking stay with the admin.
func (s *CaptureService) RegisterDevice(ctx context.Context, in ports.RegisterDeviceInput) (*domain.Device, bool, error) {
	in.Code = strings.TrimSpace(in.Code)
	in.Model = strings.TrimSpace(in.Model)
	in.Manufacturer = strings.TrimSpace(in.Manufacturer)
	if in.Code == "" {
		return nil, false, &domain.ValidationError{Field: "code", Reason: "is required"}
	}

	existing, err := s.devices.Get(ctx, in.Code)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, false, readErr("register_device", err)
	}

	now := s.now()
	dev := &domain.Device{
		Code:         in.Code,
		Model:        in.Model,
		Manufacturer: in.Manufacturer,
		Status:       domain.DevicePending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.devices.Put(ctx, dev); err != nil {
		return nil, false, &domain.StoreError{Op: "register_device.write", Err: err}
	}

	s.log.Info().Str("device_code", dev.Code).Str("model", dev.Model).Msg("device registered")
	return dev, true, nil
}

// RecordPayment stores one captured payment for an existing device.
func (s *CaptureService) RecordPayment(ctx context.Context, in ports.RecordPaymentInput) (*domain.Payment, error) {
	in.DeviceCode = strings.TrimSpace(in.DeviceCode)
	switch {
	case in.DeviceCode == "":
		return nil, &domain.ValidationError{Field: "device_code", Reason: "is required"}
	case in.Amount < 0:
		return nil, &domain.ValidationError{Field: "amount", Reason: "must not be negative"}
	case in.Timestamp.IsZero():
		return nil, &domain.ValidationError{Field: "timestamp", Reason: "is required"}
	}

	if _, err := s.devices.Get(ctx, in.DeviceCode); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, &domain.ValidationError{Field: "device_code", Reason: "device is not registered"}
		}
		return nil, readErr("record_payment", err)
	}

	p := &domain.Payment{
		DeviceCode: in.DeviceCode,
		Sender:     strings.TrimSpace(in.Sender),
		Amount:     in.Amount,
		Content:    in.Content,
		Timestamp:  in.Timestamp,
	}
	if err := s.payments.Insert(ctx, p); err != nil {
		return nil, &domain.StoreError{Op: "record_payment.write", Err: err}
	}

	metrics.PaymentsCapturedTotal.Inc()
	s.log.Debug().Str("device_code", p.DeviceCode).Str("payment_id", p.ID).Float64("amount", p.Amount).Msg("payment recorded")
	return p, nil
}
