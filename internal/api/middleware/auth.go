package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/paywatch/paywatch/internal/core/domain"
)

// Context keys set by Auth.
const (
	KeyUsername  = "username"
	KeyRole      = "role"
	KeySessionID = "session_id"
)

// Auth validates the JWT and injects the caller's claims into context.
// Tokens without a session id are rejected: every request is tied to a
// session that can be invalidated.
func Auth(jwtSecret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header")
			}

			claims := jwt.MapClaims{}
			tkn, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
				if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
					return nil, jwt.ErrTokenSignatureInvalid
				}
				return []byte(jwtSecret), nil
			})
			if err != nil || !tkn.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			username, _ := claims["sub"].(string)
			role, _ := claims["role"].(string)
			sid, _ := claims["sid"].(string)
			if username == "" || role == "" || sid == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "token missing session claims")
			}

			c.Set(KeyUsername, username)
			c.Set(KeyRole, role)
			c.Set(KeySessionID, sid)

			return next(c)
		}
	}
}

// PrincipalFrom returns the caller set by Auth.
func PrincipalFrom(c echo.Context) (domain.Principal, bool) {
	p := domain.Principal{}
	p.Username, _ = c.Get(KeyUsername).(string)
	p.Role, _ = c.Get(KeyRole).(string)
	p.SessionID, _ = c.Get(KeySessionID).(string)
	return p, p.Username != "" && p.SessionID != ""
}
