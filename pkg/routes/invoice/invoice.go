package invoice

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	ctxmiddleware "github.com/fleetconnect/matchbook/pkg/context"
	"github.com/fleetconnect/matchbook/pkg/invoices"
	"github.com/fleetconnect/matchbook/pkg/models"
	"github.com/fleetconnect/matchbook/pkg/tracing"
)

var validate = validator.New()

// Register registers invoice routes
func Register(g *echo.Group) {
	g.GET("", List)
	g.GET("/:id", Get)
	g.POST("/:id/review/approve", Approve)
	g.POST("/:id/review/reject", Reject)
	g.POST("/:id/rematch", Rematch)
}

// RegisterWebhook registers the receive-invoice webhook. Kept separate so the
// caller can attach webhook auth and rate limiting to just this route.
func RegisterWebhook(g *echo.Group) {
	g.POST("/receive", Receive)
}

// Receive ingests an invoice PDF from the email pipeline
func Receive(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "invoice_handler.Receive")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	var req models.ReceiveInvoiceRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, service, err := ectoinject.GetContext[*invoices.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get invoice service")
	}

	result, err := service.Receive(ctx, tenantID, &req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, result)
}

// List returns invoices for the tenant, optionally filtered by match status
func List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "invoice_handler.List")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	status := models.MatchStatus(c.QueryParam("status"))

	ctx, service, err := ectoinject.GetContext[*invoices.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get invoice service")
	}

	result, err := service.List(ctx, tenantID, status, page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// Get returns a single invoice by ID
func Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "invoice_handler.Get")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}
	id := c.Param("id")

	ctx, service, err := ectoinject.GetContext[*invoices.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get invoice service")
	}

	result, err := service.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// Approve confirms a pending-review match
func Approve(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "invoice_handler.Approve")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}
	id := c.Param("id")

	ctx, service, err := ectoinject.GetContext[*invoices.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get invoice service")
	}

	result, err := service.Approve(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// Rematch reruns matching against the current job mirror
func Rematch(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "invoice_handler.Rematch")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}
	id := c.Param("id")

	ctx, service, err := ectoinject.GetContext[*invoices.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get invoice service")
	}

	result, err := service.Rematch(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// Reject clears a pending-review match
func Reject(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "invoice_handler.Reject")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}
	id := c.Param("id")

	ctx, service, err := ectoinject.GetContext[*invoices.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get invoice service")
	}

	result, err := service.Reject(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}
