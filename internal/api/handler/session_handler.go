package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/paywatch/paywatch/internal/core/domain"
	"github.com/paywatch/paywatch/internal/core/ports"
)

const (
	defaultWaitTimeout = 30 * time.Second
	maxWaitTimeout     = 2 * time.Minute
)

// SessionHandler exposes session state so clients can react to an
// invalidation pushed by an admin change.
type SessionHandler struct {
	sessions ports.SessionService
}

func NewSessionHandler(sessions ports.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

type sessionResponse struct {
	SessionID string                    `json:"session_id"`
	Username  string                    `json:"username,omitempty"`
	Role      string                    `json:"role,omitempty"`
	State     domain.SessionState       `json:"state"`
	Reason    domain.InvalidationReason `json:"reason,omitempty"`
}

func toSessionResponse(s *ports.SessionStatus) sessionResponse {
	return sessionResponse{
		SessionID: s.SessionID,
		Username:  s.Username,
		Role:      s.Role,
		State:     s.State,
		Reason:    s.Reason,
	}
}

// Status reports the caller's session without counting as activity.
//
// @Summary      Current session state
// @Tags         session
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  sessionResponse
// @Failure      401  {object}  ErrorBody
// @Router       /v1/session [get]
func (h *SessionHandler) Status(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	st, err := h.sessions.Status(c.Request().Context(), p.SessionID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toSessionResponse(st))
}

// Wait long-polls until the caller's session is invalidated or the timeout
// elapses, then reports the state.
//
// @Summary      Wait for session invalidation
// @Tags         session
// @Produce      json
// @Security     BearerAuth
// @Param        timeout  query     string  false  "Go duration, default 30s, max 2m"
// @Success      200      {object}  sessionResponse
// @Failure      400      {object}  ErrorBody
// @Failure      401      {object}  ErrorBody
// @Router       /v1/session/wait [get]
func (h *SessionHandler) Wait(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	timeout := defaultWaitTimeout
	if raw := c.QueryParam("timeout"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "timeout must be a positive duration")
		}
		timeout = min(d, maxWaitTimeout)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
	defer cancel()

	st, err := h.sessions.Wait(ctx, p.SessionID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toSessionResponse(st))
}
