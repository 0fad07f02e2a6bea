package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/paywatch/paywatch/internal/api/handler"
	"github.com/paywatch/paywatch/internal/core/domain"
)

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps known domain errors to their HTTP status codes.
//   - Logs store failures without leaking details to the client.
//   - Renders a consistent JSON envelope: {"error": "<message>"}.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, body := resolveError(err, log, c)
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, body)
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, handler.ErrorBody) {
	// Echo's own errors (bind failures, 404 from router, middleware rejections).
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, handler.ErrorBody{Error: fmt.Sprintf("%v", he.Message)}
	}

	var inv *domain.SessionInvalidatedError
	if errors.As(err, &inv) {
		return http.StatusUnauthorized, handler.ErrorBody{Error: "session invalidated", Reason: string(inv.Reason)}
	}

	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, handler.ErrorBody{Error: err.Error()}
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, handler.ErrorBody{Error: "invalid credentials"}
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusUnauthorized, handler.ErrorBody{Error: "session not found"}
	case errors.Is(err, domain.ErrAccountNotActive):
		return http.StatusForbidden, handler.ErrorBody{Error: "account is not active"}
	case errors.Is(err, domain.ErrDeviceNotApproved):
		return http.StatusForbidden, handler.ErrorBody{Error: "device not approved"}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, handler.ErrorBody{Error: "not found"}
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, handler.ErrorBody{Error: err.Error()}
	}

	var partial *domain.PartialError
	if errors.As(err, &partial) {
		log.Error().
			Err(partial.Err).
			Str("operation", partial.Operation).
			Strs("applied", partial.Applied).
			Str("failed", partial.Failed).
			Str("path", c.Path()).
			Msg("operation partially applied")
		return http.StatusInternalServerError, handler.ErrorBody{
			Error: "operation partially applied; retry to complete it",
			Partial: &handler.PartialBody{
				Operation: partial.Operation,
				Applied:   partial.Applied,
				Failed:    partial.Failed,
			},
		}
	}

	// Store failures and anything unexpected: log the real cause, return a
	// generic message.
	log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Msg("unhandled error")

	return http.StatusInternalServerError, handler.ErrorBody{Error: "internal server error"}
}
