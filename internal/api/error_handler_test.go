package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/paywatch/paywatch/internal/api/handler"
	"github.com/paywatch/paywatch/internal/core/domain"
)

func TestHTTPErrorHandler_Mapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"echo error", echo.NewHTTPError(http.StatusTooManyRequests, "slow down"), http.StatusTooManyRequests},
		{"validation", &domain.ValidationError{Field: "username", Reason: "is required"}, http.StatusBadRequest},
		{"wrapped validation", fmt.Errorf("create: %w", &domain.ValidationError{Field: "x", Reason: "y"}), http.StatusBadRequest},
		{"credentials", domain.ErrInvalidCredentials, http.StatusUnauthorized},
		{"not active", domain.ErrAccountNotActive, http.StatusForbidden},
		{"device not approved", domain.ErrDeviceNotApproved, http.StatusForbidden},
		{"not found", domain.ErrNotFound, http.StatusNotFound},
		{"conflict", &domain.ConflictError{DeviceCode: "D1", LinkedTo: "bob"}, http.StatusConflict},
		{"store", &domain.StoreError{Op: "delete_device.read", Err: errors.New("timeout")}, http.StatusInternalServerError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

			NewHTTPErrorHandler(zerolog.Nop())(tc.err, c)

			if rec.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, rec.Code)
			}
			var body handler.ErrorBody
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid json: %v", err)
			}
			if body.Error == "" {
				t.Fatalf("expected error message")
			}
		})
	}
}

func TestHTTPErrorHandler_SessionReason(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	NewHTTPErrorHandler(zerolog.Nop())(&domain.SessionInvalidatedError{Reason: domain.ReasonCredentialChanged}, c)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	var body handler.ErrorBody
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Reason != string(domain.ReasonCredentialChanged) {
		t.Fatalf("expected reason, got %+v", body)
	}
}

func TestHTTPErrorHandler_PartialDetails(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodDelete, "/", nil), rec)

	err := &domain.PartialError{
		Operation: "delete_device",
		Applied:   []string{"delete_payments"},
		Failed:    "unlink_account",
		Err:       errors.New("timeout"),
	}
	NewHTTPErrorHandler(zerolog.Nop())(err, c)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body handler.ErrorBody
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Partial == nil || body.Partial.Failed != "unlink_account" || len(body.Partial.Applied) != 1 {
		t.Fatalf("unexpected partial body: %+v", body.Partial)
	}
}
