package api

import (
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"
	"golang.org/x/time/rate"

	"github.com/paywatch/paywatch/internal/api/handler"
	"github.com/paywatch/paywatch/internal/api/middleware"
	"github.com/paywatch/paywatch/internal/core/domain"
	"github.com/paywatch/paywatch/internal/core/ports"
	"github.com/paywatch/paywatch/internal/infrastructure/http/handlers"
)

// Deps are the services and settings the router is built from.
type Deps struct {
	Auth       ports.AuthService
	Sessions   ports.SessionService
	Engine     ports.ConsistencyEngine
	Directory  ports.DirectoryService
	Reports    ports.ReportService
	Capture    ports.CaptureService
	Readiness  map[string]handlers.Pinger
	Location   *time.Location
	JWTSecret  string
	CaptureKey string
	RatePerSec float64
	RateBurst  int
	Log        zerolog.Logger
	// Registry receives the HTTP metrics; nil means the default registry,
	// which also holds the domain metrics.
	Registry   *prometheus.Registry
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(d.Log))
	promCfg := echoprometheus.MiddlewareConfig{Subsystem: "paywatch"}
	handlerCfg := echoprometheus.HandlerConfig{}
	if d.Registry != nil {
		promCfg.Registerer = d.Registry
		handlerCfg.Gatherer = d.Registry
	}
	e.Use(echoprometheus.NewMiddlewareWithConfig(promCfg))

	// --- Handlers ---
	authHandler := handler.NewAuthHandler(d.Auth)
	sessionHandler := handler.NewSessionHandler(d.Sessions)
	accountHandler := handler.NewAccountHandler(d.Engine, d.Directory)
	deviceHandler := handler.NewDeviceHandler(d.Engine, d.Directory)
	reportHandler := handler.NewReportHandler(d.Reports, d.Location)
	captureHandler := handler.NewCaptureHandler(d.Capture)

	v1 := e.Group("/v1", middleware.RateLimit(rate.Limit(d.RatePerSec), d.RateBurst))

	authMiddleware := middleware.Auth(d.JWTSecret)
	activity := middleware.SessionActivity(d.Sessions)

	// --- Auth routes ---
	v1.POST("/auth/login", authHandler.Login)
	v1.POST("/auth/logout", authHandler.Logout, authMiddleware)

	// Session status calls do not count as activity.
	v1.GET("/session", sessionHandler.Status, authMiddleware)
	v1.GET("/session/wait", sessionHandler.Wait, authMiddleware)

	// --- Admin routes ---
	admin := v1.Group("/admin", authMiddleware, activity, middleware.RBAC(domain.RoleAdmin))
	admin.GET("/dashboard", reportHandler.Dashboard)
	admin.GET("/summary", reportHandler.Summary)
	admin.GET("/payments", reportHandler.Search)

	admin.GET("/devices", deviceHandler.List)
	admin.GET("/devices/available", deviceHandler.Available)
	admin.PATCH("/devices/:code/status", deviceHandler.UpdateStatus)
	admin.DELETE("/devices/:code", deviceHandler.Delete)

	admin.GET("/accounts", accountHandler.List)
	admin.POST("/accounts", accountHandler.Create)
	admin.PATCH("/accounts/:username/device", accountHandler.ReassignDevice)
	admin.POST("/accounts/:username/toggle", accountHandler.Toggle)
	admin.PUT("/accounts/:username/password", accountHandler.UpdatePassword)
	admin.DELETE("/accounts/:username", accountHandler.Delete)

	// --- User routes ---
	me := v1.Group("/me", authMiddleware, activity, middleware.RBAC(domain.RoleUser))
	me.GET("/summary", reportHandler.MySummary)
	me.GET("/payments", reportHandler.MyPayments)

	// --- Capture routes ---
	capture := v1.Group("/capture", middleware.CaptureKey(d.CaptureKey))
	capture.POST("/devices", captureHandler.RegisterDevice)
	capture.POST("/payments", captureHandler.RecordPayment)

	// --- Health checks (no auth required) ---
	healthHandler := handlers.NewHealthHandler()
	healthDepsHandler := handlers.NewHealthDependenciesHandler(d.Readiness)

	e.GET("/health", healthHandler.Liveness)            // liveness: is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness: are dependencies up?

	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(handlerCfg))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}

func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Status >= 500 {
				ev = log.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
