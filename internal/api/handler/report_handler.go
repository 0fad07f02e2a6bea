package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/paywatch/paywatch/internal/core/domain"
	"github.com/paywatch/paywatch/internal/core/ports"
)

const dateLayout = "2006-01-02"

// ReportHandler serves dashboards, bucket sums and payment searches. Date
// query parameters are local calendar dates in loc.
type ReportHandler struct {
	reports ports.ReportService
	loc     *time.Location
}

func NewReportHandler(reports ports.ReportService, loc *time.Location) *ReportHandler {
	if loc == nil {
		loc = time.Local
	}
	return &ReportHandler{reports: reports, loc: loc}
}

// Dashboard returns the admin overview.
//
// @Summary      Admin dashboard
// @Tags         reports
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  ports.Dashboard
// @Failure      500  {object}  ErrorBody
// @Router       /v1/admin/dashboard [get]
func (h *ReportHandler) Dashboard(c echo.Context) error {
	d, err := h.reports.Dashboard(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

// Summary returns today / month / year / all-time sums.
//
// @Summary      Payment sums
// @Tags         reports
// @Produce      json
// @Security     BearerAuth
// @Param        device  query     string  false  "Restrict to one device"
// @Success      200     {object}  domain.BucketTotals
// @Failure      500     {object}  ErrorBody
// @Router       /v1/admin/summary [get]
func (h *ReportHandler) Summary(c echo.Context) error {
	t, err := h.reports.Summary(c.Request().Context(), c.QueryParam("device"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

// Search lists payments matching the filter, newest first.
//
// @Summary      Search payments
// @Tags         reports
// @Produce      json
// @Security     BearerAuth
// @Param        device      query     string  false  "Device code"
// @Param        from        query     string  false  "First local date (YYYY-MM-DD)"
// @Param        to          query     string  false  "Last local date, inclusive (YYYY-MM-DD)"
// @Param        q           query     string  false  "Text in sender or content"
// @Param        min_amount  query     number  false  "Minimum amount"
// @Param        limit       query     int     false  "Maximum rows"
// @Success      200         {array}   domain.PaymentView
// @Failure      400         {object}  ErrorBody
// @Failure      500         {object}  ErrorBody
// @Router       /v1/admin/payments [get]
func (h *ReportHandler) Search(c echo.Context) error {
	f, err := h.filter(c)
	if err != nil {
		return err
	}
	f.DeviceCode = c.QueryParam("device")

	views, err := h.reports.Search(c.Request().Context(), f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, nonNil(views))
}

// MySummary returns the sums of the caller's device.
//
// @Summary      My payment sums
// @Tags         me
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  ports.AccountReport
// @Failure      403  {object}  ErrorBody
// @Failure      404  {object}  ErrorBody
// @Router       /v1/me/summary [get]
func (h *ReportHandler) MySummary(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	r, err := h.reports.AccountSummary(c.Request().Context(), p.Username)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r)
}

// MyPayments lists the caller's payments.
//
// @Summary      My payments
// @Tags         me
// @Produce      json
// @Security     BearerAuth
// @Param        from        query     string  false  "First local date (YYYY-MM-DD)"
// @Param        to          query     string  false  "Last local date, inclusive (YYYY-MM-DD)"
// @Param        q           query     string  false  "Text in sender or content"
// @Param        min_amount  query     number  false  "Minimum amount"
// @Param        limit       query     int     false  "Maximum rows, default 100"
// @Success      200         {array}   domain.PaymentView
// @Failure      400         {object}  ErrorBody
// @Failure      403         {object}  ErrorBody
// @Router       /v1/me/payments [get]
func (h *ReportHandler) MyPayments(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	f, err := h.filter(c)
	if err != nil {
		return err
	}
	views, err := h.reports.AccountPayments(c.Request().Context(), p.Username, f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, nonNil(views))
}

func (h *ReportHandler) filter(c echo.Context) (domain.PaymentFilter, error) {
	f := domain.PaymentFilter{Text: c.QueryParam("q")}

	if raw := c.QueryParam("from"); raw != "" {
		d, err := time.ParseInLocation(dateLayout, raw, h.loc)
		if err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, "from must be YYYY-MM-DD")
		}
		f.From = domain.StartOfDay(d, h.loc)
	}
	if raw := c.QueryParam("to"); raw != "" {
		d, err := time.ParseInLocation(dateLayout, raw, h.loc)
		if err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, "to must be YYYY-MM-DD")
		}
		f.To = domain.EndOfDay(d, h.loc)
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return f, echo.NewHTTPError(http.StatusBadRequest, "to must not be before from")
	}
	if raw := c.QueryParam("min_amount"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			return f, echo.NewHTTPError(http.StatusBadRequest, "min_amount must be a non-negative number")
		}
		f.MinAmount = v
	}
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return f, echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		f.Limit = n
	}
	return f, nil
}
