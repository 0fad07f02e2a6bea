package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/paywatch/paywatch/internal/core/ports"
)

// SessionActivity records a request as activity on the caller's session and
// rejects requests whose session has been invalidated. It must run after Auth.
func SessionActivity(sessions ports.SessionService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sid, _ := c.Get(KeySessionID).(string)
			if err := sessions.Touch(c.Request().Context(), sid); err != nil {
				return err
			}
			return next(c)
		}
	}
}
