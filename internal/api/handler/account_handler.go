package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/paywatch/paywatch/internal/core/domain"
	"github.com/paywatch/paywatch/internal/core/ports"
)

// AccountHandler serves the admin account screens. Every mutation goes
// through the consistency engine.
type AccountHandler struct {
	engine    ports.ConsistencyEngine
	directory ports.DirectoryService
}

func NewAccountHandler(engine ports.ConsistencyEngine, directory ports.DirectoryService) *AccountHandler {
	return &AccountHandler{engine: engine, directory: directory}
}

type createAccountRequest struct {
	Username   string `json:"username" validate:"required,username_token"`
	Password   string `json:"password" validate:"required"`
	DeviceCode string `json:"device_code" validate:"required"`
}

type reassignDeviceRequest struct {
	// Empty unlinks the account.
	DeviceCode string `json:"device_code"`
}

type updatePasswordRequest struct {
	Password string `json:"password" validate:"required"`
}

type accountResponse struct {
	Username   string               `json:"username"`
	DeviceCode string               `json:"device_code,omitempty"`
	Status     domain.AccountStatus `json:"status"`
	CreatedAt  time.Time            `json:"created_at"`
}

type toggleResponse struct {
	Username string               `json:"username"`
	Status   domain.AccountStatus `json:"status"`
}

func toAccountResponse(a domain.Account) accountResponse {
	return accountResponse{
		Username:   a.Username,
		DeviceCode: a.DeviceCode,
		Status:     a.Status,
		CreatedAt:  a.CreatedAt,
	}
}

// List returns all accounts, newest first.
//
// @Summary      List accounts
// @Tags         accounts
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   accountResponse
// @Failure      500  {object}  ErrorBody
// @Router       /v1/admin/accounts [get]
func (h *AccountHandler) List(c echo.Context) error {
	accts, err := h.directory.ListAccounts(c.Request().Context())
	if err != nil {
		return err
	}
	out := make([]accountResponse, 0, len(accts))
	for _, a := range accts {
		out = append(out, toAccountResponse(a))
	}
	return c.JSON(http.StatusOK, out)
}

// Create registers an inactive account linked to a device.
//
// @Summary      Create account
// @Tags         accounts
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      createAccountRequest  true  "Account"
// @Success      201   {object}  accountResponse
// @Failure      400   {object}  ErrorBody
// @Failure      409   {object}  ErrorBody
// @Failure      500   {object}  ErrorBody
// @Router       /v1/admin/accounts [post]
func (h *AccountHandler) Create(c echo.Context) error {
	var req createAccountRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	acct, err := h.engine.CreateAccount(c.Request().Context(), ports.CreateAccountInput{
		Username:   req.Username,
		Password:   req.Password,
		DeviceCode: req.DeviceCode,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toAccountResponse(*acct))
}

// ReassignDevice moves an account to another device or unlinks it.
//
// @Summary      Reassign device
// @Tags         accounts
// @Accept       json
// @Security     BearerAuth
// @Param        username  path  string                 true  "Username"
// @Param        body      body  reassignDeviceRequest  true  "Target device"
// @Success      204
// @Failure      400  {object}  ErrorBody
// @Failure      409  {object}  ErrorBody
// @Failure      500  {object}  ErrorBody
// @Router       /v1/admin/accounts/{username}/device [patch]
func (h *AccountHandler) ReassignDevice(c echo.Context) error {
	var req reassignDeviceRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.engine.ReassignDevice(c.Request().Context(), c.Param("username"), req.DeviceCode); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Toggle flips an account between active and suspended.
//
// @Summary      Toggle account status
// @Tags         accounts
// @Produce      json
// @Security     BearerAuth
// @Param        username  path      string  true  "Username"
// @Success      200       {object}  toggleResponse
// @Failure      500       {object}  ErrorBody
// @Router       /v1/admin/accounts/{username}/toggle [post]
func (h *AccountHandler) Toggle(c echo.Context) error {
	username := c.Param("username")
	status, err := h.engine.ToggleAccountStatus(c.Request().Context(), username)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toggleResponse{Username: username, Status: status})
}

// UpdatePassword replaces an account's password; its sessions end.
//
// @Summary      Update password
// @Tags         accounts
// @Accept       json
// @Security     BearerAuth
// @Param        username  path  string                 true  "Username"
// @Param        body      body  updatePasswordRequest  true  "New password"
// @Success      204
// @Failure      400  {object}  ErrorBody
// @Failure      500  {object}  ErrorBody
// @Router       /v1/admin/accounts/{username}/password [put]
func (h *AccountHandler) UpdatePassword(c echo.Context) error {
	var req updatePasswordRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.engine.UpdatePassword(c.Request().Context(), c.Param("username"), req.Password); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Delete removes an account and releases its device.
//
// @Summary      Delete account
// @Tags         accounts
// @Security     BearerAuth
// @Param        username  path  string  true  "Username"
// @Success      204
// @Failure      500  {object}  ErrorBody
// @Router       /v1/admin/accounts/{username} [delete]
func (h *AccountHandler) Delete(c echo.Context) error {
	if err := h.engine.DeleteAccount(c.Request().Context(), c.Param("username")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
