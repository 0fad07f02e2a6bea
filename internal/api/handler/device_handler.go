package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/paywatch/paywatch/internal/core/domain"
	"github.com/paywatch/paywatch/internal/core/ports"
)

type DeviceHandler struct {
	engine    ports.ConsistencyEngine
	directory ports.DirectoryService
}

func NewDeviceHandler(engine ports.ConsistencyEngine, directory ports.DirectoryService) *DeviceHandler {
	return &DeviceHandler{engine: engine, directory: directory}
}

type updateDeviceStatusRequest struct {
	Status domain.DeviceStatus `json:"status" validate:"required,oneof=pending approved rejected"`
}

// List returns all devices, pending first.
//
// @Summary      List devices
// @Tags         devices
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   domain.Device
// @Failure      500  {object}  ErrorBody
// @Router       /v1/admin/devices [get]
func (h *DeviceHandler) List(c echo.Context) error {
	devs, err := h.directory.ListDevices(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, nonNil(devs))
}

// Available returns approved devices that no account holds.
//
// @Summary      Devices available for linking
// @Tags         devices
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   domain.Device
// @Failure      500  {object}  ErrorBody
// @Router       /v1/admin/devices/available [get]
func (h *DeviceHandler) Available(c echo.Context) error {
	devs, err := h.directory.AvailableDevices(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, nonNil(devs))
}

// UpdateStatus approves or rejects an unlinked device.
//
// @Summary      Set device status
// @Tags         devices
// @Accept       json
// @Security     BearerAuth
// @Param        code  path  string                     true  "Device code"
// @Param        body  body  updateDeviceStatusRequest  true  "Status"
// @Success      204
// @Failure      400  {object}  ErrorBody
// @Failure      409  {object}  ErrorBody
// @Failure      500  {object}  ErrorBody
// @Router       /v1/admin/devices/{code}/status [patch]
func (h *DeviceHandler) UpdateStatus(c echo.Context) error {
	var req updateDeviceStatusRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.engine.UpdateDeviceStatus(c.Request().Context(), c.Param("code"), req.Status); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Delete removes a device, its payments and its account link.
//
// @Summary      Delete device
// @Tags         devices
// @Security     BearerAuth
// @Param        code  path  string  true  "Device code"
// @Success      204
// @Failure      500  {object}  ErrorBody
// @Router       /v1/admin/devices/{code} [delete]
func (h *DeviceHandler) Delete(c echo.Context) error {
	if err := h.engine.DeleteDevice(c.Request().Context(), c.Param("code")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
