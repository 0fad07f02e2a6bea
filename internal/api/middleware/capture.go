package middleware

import (
	"crypto/subtle"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
)

// CaptureKey protects the capture endpoints with a static API key sent as
// "Authorization: Bearer <key>". An empty key disables the endpoints.
func CaptureKey(apiKey string) echo.MiddlewareFunc {
	return echomiddleware.KeyAuth(func(key string, _ echo.Context) (bool, error) {
		if apiKey == "" {
			return false, nil
		}
		return subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) == 1, nil
	})
}
