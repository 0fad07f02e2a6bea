package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/paywatch/paywatch/internal/core/domain"
)

func TestRBAC(t *testing.T) {
	tests := []struct {
		name     string
		username string
		role     string
		allowed  []string
		wantCode int
	}{
		{name: "admin on admin route", username: "admin", role: domain.RoleAdmin, allowed: []string{domain.RoleAdmin}, wantCode: http.StatusOK},
		{name: "user on user route", username: "alice", role: domain.RoleUser, allowed: []string{domain.RoleUser}, wantCode: http.StatusOK},
		{name: "user on admin route", username: "alice", role: domain.RoleUser, allowed: []string{domain.RoleAdmin}, wantCode: http.StatusForbidden},
		{name: "admin on user route", username: "admin", role: domain.RoleAdmin, allowed: []string{domain.RoleUser}, wantCode: http.StatusForbidden},
		{name: "either role", username: "alice", role: domain.RoleUser, allowed: []string{domain.RoleAdmin, domain.RoleUser}, wantCode: http.StatusOK},
		{name: "no principal", allowed: []string{domain.RoleUser}, wantCode: http.StatusUnauthorized},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
			if tc.username != "" {
				c.Set(KeyUsername, tc.username)
				c.Set(KeyRole, tc.role)
				c.Set(KeySessionID, "sid")
			}

			reached := false
			h := RBAC(tc.allowed...)(func(c echo.Context) error {
				reached = true
				return c.NoContent(http.StatusOK)
			})
			if err := h(c); err != nil {
				e.HTTPErrorHandler(err, c)
			}

			if rec.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d", tc.wantCode, rec.Code)
			}
			if reached != (tc.wantCode == http.StatusOK) {
				t.Fatalf("next handler reached=%v for status %d", reached, rec.Code)
			}
		})
	}
}
