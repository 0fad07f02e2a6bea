package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/paywatch/paywatch/internal/api/metrics"
	"github.com/paywatch/paywatch/internal/core/domain"
	"github.com/paywatch/paywatch/internal/core/ports"
)

const (
	defaultSummaryTTL = 30 * time.Second
	defaultUserLimit  = 100
	dashboardRecent   = 5
)

// ReportOptions tunes the report views.
type ReportOptions struct {
	// Location defines calendar days for bucket sums and date filters.
	Location *time.Location
	// SummaryTTL bounds how long a bucket summary is served from cache.
	SummaryTTL time.Duration
	// UserLimit caps account payment listings when the caller sets no limit.
	UserLimit int
	Now       func() time.Time
}

// ReportService derives read-only views from the payment collection. Views
// are recomputed from the current snapshot; only bucket summaries are cached,
// keyed by local date, and the cache is flushed on every payment or device
// change seen by Run.
type ReportService struct {
	devices  ports.DeviceStore
	accounts ports.AccountStore
	payments ports.PaymentStore
	loc      *time.Location
	now      func() time.Time
	limit    int
	cache    *cache.Cache
	log      zerolog.Logger

	// gen counts flushes; a summary computed across a flush is not cached.
	mu  sync.Mutex
	gen uint64
}

func NewReportService(
	devices ports.DeviceStore,
	accounts ports.AccountStore,
	payments ports.PaymentStore,
	opts ReportOptions,
	log zerolog.Logger,
) *ReportService {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.SummaryTTL <= 0 {
		opts.SummaryTTL = defaultSummaryTTL
	}
	if opts.UserLimit <= 0 {
		opts.UserLimit = defaultUserLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &ReportService{
		devices:  devices,
		accounts: accounts,
		payments: payments,
		loc:      opts.Location,
		now:      opts.Now,
		limit:    opts.UserLimit,
		cache:    cache.New(opts.SummaryTTL, 2*opts.SummaryTTL),
		log:      log,
	}
}

// Location returns the zone used for calendar windows.
func (s *ReportService) Location() *time.Location { return s.loc }

// Dashboard returns the admin overview.
func (s *ReportService) Dashboard(ctx context.Context) (*ports.Dashboard, error) {
	defer observeReport("dashboard", time.Now())

	devs, err := s.devices.List(ctx)
	if err != nil {
		return nil, readErr("dashboard.devices", err)
	}
	pays, err := s.payments.List(ctx)
	if err != nil {
		return nil, readErr("dashboard.payments", err)
	}
	owners, err := s.owners(ctx)
	if err != nil {
		return nil, err
	}

	d := &ports.Dashboard{TotalDevices: len(devs)}
	for _, dev := range devs {
		if dev.Status == domain.DevicePending {
			d.PendingDevices++
		}
	}
	totals := domain.SumBuckets(pays, s.now(), s.loc)
	d.TodaySum = totals.Today
	d.TodayCount = totals.TodayCount
	d.AllTimeSum = totals.AllTime
	d.Recent = withOwners(domain.PaymentFilter{Limit: dashboardRecent}.Apply(pays), owners)
	return d, nil
}

// Summary returns bucket sums over every payment, or over one device.
func (s *ReportService) Summary(ctx context.Context, deviceCode string) (*domain.BucketTotals, error) {
	defer observeReport("summary", time.Now())

	now := s.now()
	key := "summary:" + deviceCode + ":" + now.In(s.loc).Format(time.DateOnly)
	if v, ok := s.cache.Get(key); ok {
		metrics.ReportCacheTotal.WithLabelValues("hit").Inc()
		totals := v.(domain.BucketTotals)
		return &totals, nil
	}
	metrics.ReportCacheTotal.WithLabelValues("miss").Inc()

	gen := s.generation()
	pays, err := s.scope(ctx, deviceCode)
	if err != nil {
		return nil, err
	}
	totals := domain.SumBuckets(pays, now, s.loc)

	s.mu.Lock()
	if s.gen == gen {
		s.cache.SetDefault(key, totals)
	}
	s.mu.Unlock()
	return &totals, nil
}

func (s *ReportService) generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// flush drops cached summaries after a snapshot change.
func (s *ReportService) flush() {
	s.mu.Lock()
	s.gen++
	s.cache.Flush()
	s.mu.Unlock()
}

// Search returns payments matching filter, newest first, with owners resolved.
func (s *ReportService) Search(ctx context.Context, filter domain.PaymentFilter) ([]domain.PaymentView, error) {
	defer observeReport("search", time.Now())

	pays, err := s.scope(ctx, filter.DeviceCode)
	if err != nil {
		return nil, err
	}
	owners, err := s.owners(ctx)
	if err != nil {
		return nil, err
	}
	return withOwners(filter.Apply(pays), owners), nil
}

// AccountSummary returns the bucket view of a regular account's device.
func (s *ReportService) AccountSummary(ctx context.Context, username string) (*ports.AccountReport, error) {
	dev, err := s.approvedDevice(ctx, username)
	if err != nil {
		return nil, err
	}
	totals, err := s.Summary(ctx, dev.Code)
	if err != nil {
		return nil, err
	}
	return &ports.AccountReport{
		Username:     username,
		DeviceCode:   dev.Code,
		DeviceStatus: dev.Status,
		Totals:       *totals,
	}, nil
}

// AccountPayments searches the payments of a regular account's device. The
// scope is forced to that device whatever filter.DeviceCode says.
func (s *ReportService) AccountPayments(ctx context.Context, username string, filter domain.PaymentFilter) ([]domain.PaymentView, error) {
	dev, err := s.approvedDevice(ctx, username)
	if err != nil {
		return nil, err
	}
	filter.DeviceCode = dev.Code
	if filter.Limit <= 0 {
		filter.Limit = s.limit
	}
	return s.Search(ctx, filter)
}

// Run flushes cached summaries whenever payments or devices change. It blocks
// until ctx is cancelled or a subscription fails.
func (s *ReportService) Run(ctx context.Context) error {
	pays, err := s.payments.Watch(ctx)
	if err != nil {
		return err
	}
	devs, err := s.devices.Watch(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-pays:
			if !ok {
				return subscriptionClosed(ctx, "payment")
			}
			s.flush()
		case _, ok := <-devs:
			if !ok {
				return subscriptionClosed(ctx, "device")
			}
			s.flush()
		}
	}
}

// approvedDevice returns the device of username when it may be viewed.
func (s *ReportService) approvedDevice(ctx context.Context, username string) (*domain.Device, error) {
	acct, err := s.accounts.Get(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, readErr("report.account", err)
	}
	if acct.DeviceCode == "" {
		return nil, domain.ErrDeviceNotApproved
	}
	dev, err := s.devices.Get(ctx, acct.DeviceCode)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrDeviceNotApproved
		}
		return nil, readErr("report.device", err)
	}
	if dev.Status != domain.DeviceApproved {
		return nil, domain.ErrDeviceNotApproved
	}
	return dev, nil
}

func (s *ReportService) scope(ctx context.Context, deviceCode string) ([]domain.Payment, error) {
	var (
		pays []domain.Payment
		err  error
	)
	if deviceCode == "" {
		pays, err = s.payments.List(ctx)
	} else {
		pays, err = s.payments.ListByDevice(ctx, deviceCode)
	}
	if err != nil {
		return nil, readErr("report.payments", err)
	}
	return pays, nil
}

// owners maps device codes to the username of the account linked to them.
func (s *ReportService) owners(ctx context.Context) (map[string]string, error) {
	accts, err := s.accounts.List(ctx)
	if err != nil {
		return nil, readErr("report.accounts", err)
	}
	owners := make(map[string]string, len(accts))
	for _, a := range accts {
		if a.DeviceCode != "" {
			owners[a.DeviceCode] = a.Username
		}
	}
	return owners, nil
}

// withOwners labels each payment with its owner, falling back to the device
// code for devices no account is linked to.
func withOwners(pays []domain.Payment, owners map[string]string) []domain.PaymentView {
	out := make([]domain.PaymentView, 0, len(pays))
	for _, p := range pays {
		owner, ok := owners[p.DeviceCode]
		if !ok {
			owner = p.DeviceCode
		}
		out = append(out, domain.PaymentView{Payment: p, Owner: owner})
	}
	return out
}

func subscriptionClosed(ctx context.Context, collection string) error {
	if ctx.Err() != nil {
		return nil
	}
	return errors.New(collection + " subscription closed")
}

func observeReport(view string, start time.Time) {
	metrics.ReportDuration.WithLabelValues(view).Observe(time.Since(start).Seconds())
}
