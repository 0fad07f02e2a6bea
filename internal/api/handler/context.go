package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/paywatch/paywatch/internal/api/middleware"
	"github.com/paywatch/paywatch/internal/core/domain"
)

// principal extracts the caller injected by the Auth middleware and fails
// fast when it is missing, which means the route was mounted without Auth.
func principal(c echo.Context) (domain.Principal, error) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return domain.Principal{}, echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}
	return p, nil
}
