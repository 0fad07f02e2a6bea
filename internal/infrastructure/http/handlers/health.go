package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

const readinessTimeout = 3 * time.Second

// HealthHandler serves the liveness check. It never touches a dependency.
type HealthHandler struct {
	started time.Time
}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{started: time.Now()}
}

type livenessResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

func (h *HealthHandler) Liveness(c echo.Context) error {
	return c.JSON(http.StatusOK, livenessResponse{
		Status: "ok",
		Uptime: time.Since(h.started).Truncate(time.Second).String(),
	})
}

// Pinger is one dependency checked by the readiness check.
type Pinger func(ctx context.Context) error

// HealthDependenciesHandler serves the readiness check. Only the backends the
// process was started with are registered; the memory driver has none.
type HealthDependenciesHandler struct {
	pingers map[string]Pinger
}

func NewHealthDependenciesHandler(pingers map[string]Pinger) *HealthDependenciesHandler {
	return &HealthDependenciesHandler{pingers: pingers}
}

type dependencyStatus struct {
	Status  string `json:"status"`
	Latency string `json:"latency"`
	Error   string `json:"error,omitempty"`
}

type readinessResponse struct {
	Status       string                      `json:"status"`
	Dependencies map[string]dependencyStatus `json:"dependencies"`
}

// Readiness pings every dependency concurrently under one deadline and
// answers 503 when any of them fails.
func (h *HealthDependenciesHandler) Readiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readinessTimeout)
	defer cancel()

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		resp = readinessResponse{Status: "ok", Dependencies: make(map[string]dependencyStatus, len(h.pingers))}
	)
	for name, ping := range h.pingers {
		name, ping := name, ping
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			err := ping(ctx)
			st := dependencyStatus{Status: "ok", Latency: time.Since(start).String()}
			if err != nil {
				st.Status, st.Error = "unhealthy", err.Error()
			}

			mu.Lock()
			defer mu.Unlock()
			resp.Dependencies[name] = st
			if err != nil {
				resp.Status = "degraded"
			}
		}()
	}
	wg.Wait()

	code := http.StatusOK
	if resp.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, resp)
}
