package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/paywatch/paywatch/internal/core/ports"
)

// CaptureHandler receives device registrations and payment notifications
// from capture clients.
type CaptureHandler struct {
	capture ports.CaptureService
}

func NewCaptureHandler(capture ports.CaptureService) *CaptureHandler {
	return &CaptureHandler{capture: capture}
}

type registerDeviceRequest struct {
	Code         string `json:"code" validate:"required"`
	Model        string `json:"model"`
	Manufacturer string `json:"manufacturer"`
}

type recordPaymentRequest struct {
	DeviceCode string    `json:"device_code" validate:"required"`
	Sender     string    `json:"sender"`
	Amount     float64   `json:"amount" validate:"gte=0"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
}

// RegisterDevice announces a device; new devices wait for approval.
//
// @Summary      Register device
// @Tags         capture
// @Accept       json
// @Produce      json
// @Security     CaptureKey
// @Param        body  body      registerDeviceRequest  true  "Device"
// @Success      200   {object}  domain.Device  "already registered"
// @Success      201   {object}  domain.Device  "created"
// @Failure      400   {object}  ErrorBody
// @Failure      401   {object}  ErrorBody
// @Router       /v1/capture/devices [post]
func (h *CaptureHandler) RegisterDevice(c echo.Context) error {
	var req registerDeviceRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	dev, created, err := h.capture.RegisterDevice(c.Request().Context(), ports.RegisterDeviceInput{
		Code:         req.Code,
		Model:        req.Model,
		Manufacturer: req.Manufacturer,
	})
	if err != nil {
		return err
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.JSON(status, dev)
}

// RecordPayment stores one captured payment.
//
// @Summary      Record payment
// @Tags         capture
// @Accept       json
// @Produce      json
// @Security     CaptureKey
// @Param        body  body      recordPaymentRequest  true  "Payment"
// @Success      201   {object}  domain.Payment
// @Failure      400   {object}  ErrorBody
// @Failure      401   {object}  ErrorBody
// @Router       /v1/capture/payments [post]
func (h *CaptureHandler) RecordPayment(c echo.Context) error {
	var req recordPaymentRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	p, err := h.capture.RecordPayment(c.Request().Context(), ports.RecordPaymentInput{
		DeviceCode: req.DeviceCode,
		Sender:     req.Sender,
		Amount:     req.Amount,
		Content:    req.Content,
		Timestamp:  req.Timestamp,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}
