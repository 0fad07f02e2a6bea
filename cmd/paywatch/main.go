// Command paywatch runs the payment monitor API and its maintenance tasks.
//
// @title                       Paywatch API
// @version                     1.0
// @description                 Payment notification monitor with device approval, account management and pushed session invalidation.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
// @securityDefinitions.apikey  CaptureKey
// @in                          header
// @name                        Authorization
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	_ "github.com/paywatch/paywatch/docs"
	"github.com/paywatch/paywatch/internal/api"
	"github.com/paywatch/paywatch/internal/core/service"
	"github.com/paywatch/paywatch/internal/infrastructure/config"
	"github.com/paywatch/paywatch/internal/infrastructure/fixtures"
	httpserver "github.com/paywatch/paywatch/internal/infrastructure/http"
	"github.com/paywatch/paywatch/internal/infrastructure/queue"
	"github.com/paywatch/paywatch/pkg/logger"
)

func main() {
	app := &cli.App{
		Name:  "paywatch",
		Usage: "Payment notification monitor",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "env-file", Aliases: []string{"e"}, Usage: "dotenv files to load before the environment"},
			&cli.StringFlag{Name: "store", Usage: "document store: mongo or memory"},
			&cli.StringFlag{Name: "log-level", Aliases: []string{"l"}, Usage: "trace, debug, info, warn or error"},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP API",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "port", Aliases: []string{"p"}, Usage: "listen port"},
					&cli.StringFlag{Name: "session-store", Usage: "session store: memory or redis"},
				},
				Action: serve,
			},
			{
				Name:  "seed",
				Usage: "load devices, payments and accounts from a YAML fixture",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "fixture file", Required: true},
				},
				Action: seed,
			},
			{
				Name:  "report",
				Usage: "print today, month, year and all-time payment sums",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "device", Aliases: []string{"d"}, Usage: "restrict to one device"},
				},
				Action: report,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "paywatch:", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and applies command-line overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.Context, c.StringSlice("env-file")...)
	if err != nil {
		return nil, err
	}

	if c.IsSet("store") {
		cfg.StoreDriver = c.String("store")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("port") {
		cfg.Port = c.String("port")
	}
	if c.IsSet("session-store") {
		cfg.Session.Store = c.String("session-store")
	}
	return cfg, nil
}

func initLogger(cfg *config.Config) zerolog.Logger {
	return logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: "paywatch",
	})
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := initLogger(cfg)
	if cfg.Admin.PasswordHash == "" {
		log.Warn().Msg("ADMIN_PASSWORD_HASH is empty, operator login is disabled")
	}
	if cfg.Capture.APIKey == "" {
		log.Warn().Msg("CAPTURE_API_KEY is empty, capture endpoints reject every request")
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, true, log)
	if err != nil {
		return err
	}
	defer st.close()

	// --- Sessions ---
	hub := service.NewSessionHub(st.accounts, logger.Component("session_hub"))
	sessions := service.NewSessionManager(hub, st.sessions, service.SessionOptions{
		IdleTimeout: cfg.Session.IdleTimeout,
		RevokedTTL:  cfg.Session.RevokedTTL,
	}, logger.Component("sessions"))

	dispatcher := queue.NewDispatcher(cfg.Session.Workers, hub, logger.Component("dispatcher"))
	dispatcher.Start(ctx)
	go dispatcher.Follow(ctx, st.accounts, hub.Snapshots)

	// --- Services ---
	reports := service.NewReportService(st.devices, st.accounts, st.payments, service.ReportOptions{
		Location:   loc,
		SummaryTTL: cfg.Report.CacheTTL,
		UserLimit:  cfg.Report.UserLimit,
	}, logger.Component("reports"))
	go func() {
		if err := reports.Run(ctx); err != nil {
			log.Error().Err(err).Msg("report cache invalidation stopped")
		}
	}()

	auth := service.NewAuthService(st.accounts, sessions, service.AdminCredentials{
		Username:     cfg.Admin.Username,
		PasswordHash: cfg.Admin.PasswordHash,
	}, cfg.JWTSecret, cfg.TokenTTL, logger.Component("auth"))

	engine := service.NewConsistencyService(st.devices, st.accounts, st.payments, service.ConsistencyOptions{
		ResetUnlinkedDeviceStatus: cfg.Engine.ResetUnlinkedDeviceStatus,
	}, logger.Component("engine"))

	e := api.NewRouter(api.Deps{
		Auth:       auth,
		Sessions:   sessions,
		Engine:     engine,
		Directory:  service.NewDirectoryService(st.devices, st.accounts),
		Reports:    reports,
		Capture:    service.NewCaptureService(st.devices, st.payments, logger.Component("capture")),
		Readiness:  st.pingers,
		Location:   loc,
		JWTSecret:  cfg.JWTSecret,
		CaptureKey: cfg.Capture.APIKey,
		RatePerSec: cfg.RateLimit.PerSecond,
		RateBurst:  cfg.RateLimit.Burst,
		Log:        logger.Component("http"),
	})

	log.Info().
		Str("store", cfg.StoreDriver).
		Str("session_store", cfg.Session.Store).
		Dur("idle_timeout", cfg.Session.IdleTimeout).
		Msg("paywatch starting")

	if err := httpserver.Serve(ctx, e, ":"+cfg.Port, log); err != nil {
		return err
	}
	log.Info().Msg("paywatch stopped")
	return nil
}

func seed(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log := initLogger(cfg)

	fx, err := fixtures.Load(c.String("file"))
	if err != nil {
		return err
	}

	st, err := openStores(c.Context, cfg, false, log)
	if err != nil {
		return err
	}
	defer st.close()

	capture := service.NewCaptureService(st.devices, st.payments, logger.Component("capture"))
	engine := service.NewConsistencyService(st.devices, st.accounts, st.payments, service.ConsistencyOptions{
		ResetUnlinkedDeviceStatus: cfg.Engine.ResetUnlinkedDeviceStatus,
	}, logger.Component("engine"))

	res, err := fixtures.Apply(c.Context, fx, capture, engine)
	if err != nil {
		return err
	}
	log.Info().
		Int("devices", res.Devices).
		Int("payments", res.Payments).
		Int("accounts", res.Accounts).
		Msg("fixtures applied")
	return nil
}

func report(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log := initLogger(cfg)
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	st, err := openStores(c.Context, cfg, false, log)
	if err != nil {
		return err
	}
	defer st.close()

	reports := service.NewReportService(st.devices, st.accounts, st.payments, service.ReportOptions{
		Location: loc,
	}, logger.Component("reports"))

	ctx, cancel := context.WithTimeout(c.Context, 30*time.Second)
	defer cancel()
	totals, err := reports.Summary(ctx, c.String("device"))
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("report timed out: %w", err)
	}
	if err != nil {
		return err
	}

	scope := "all devices"
	if d := c.String("device"); d != "" {
		scope = "device " + d
	}
	w := c.App.Writer
	fmt.Fprintf(w, "Payments for %s (%s)\n", scope, loc)
	fmt.Fprintf(w, "  today     %14.2f  (%d)\n", totals.Today, totals.TodayCount)
	fmt.Fprintf(w, "  month     %14.2f\n", totals.Month)
	fmt.Fprintf(w, "  year      %14.2f\n", totals.Year)
	fmt.Fprintf(w, "  all time  %14.2f  (%d)\n", totals.AllTime, totals.Count)
	return nil
}
