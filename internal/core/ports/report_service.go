package ports

import (
	"context"

	"github.com/paywatch/paywatch/internal/core/domain"
)

// Dashboard is the admin overview.
type Dashboard struct {
	PendingDevices int                  `json:"pending_devices"`
	TotalDevices   int                  `json:"total_devices"`
	TodaySum       float64              `json:"today_sum"`
	TodayCount     int                  `json:"today_count"`
	AllTimeSum     float64              `json:"all_time_sum"`
	Recent         []domain.PaymentView `json:"recent"`
}

// AccountReport is the bucket view of a regular account.
type AccountReport struct {
	Username     string              `json:"username"`
	DeviceCode   string              `json:"device_code"`
	DeviceStatus domain.DeviceStatus `json:"device_status"`
	Totals       domain.BucketTotals `json:"totals"`
}

// ReportService derives read-only views from the payment collection.
type ReportService interface {
	Dashboard(ctx context.Context) (*Dashboard, error)
	// Summary sums all payments, or those of one device when deviceCode is set.
	Summary(ctx context.Context, deviceCode string) (*domain.BucketTotals, error)
	Search(ctx context.Context, filter domain.PaymentFilter) ([]domain.PaymentView, error)
	AccountSummary(ctx context.Context, username string) (*AccountReport, error)
	AccountPayments(ctx context.Context, username string, filter domain.PaymentFilter) ([]domain.PaymentView, error)
}
