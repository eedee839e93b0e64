package job

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	jobrepo "github.com/fleetconnect/matchbook/internal/repositories/job"
	ctxmiddleware "github.com/fleetconnect/matchbook/pkg/context"
	"github.com/fleetconnect/matchbook/pkg/database"
	"github.com/fleetconnect/matchbook/pkg/fingerprint"
	"github.com/fleetconnect/matchbook/pkg/models"
	"github.com/fleetconnect/matchbook/pkg/tracing"
)

var validate = validator.New()

// Register registers job routes. Jobs are mirrored from the fleet backend;
// the upsert exists for manual corrections when the change stream lags.
func Register(g *echo.Group) {
	g.GET("", List)
	g.GET("/:id", Get)
	g.PUT("/:id", Upsert)
}

// List returns mirrored jobs for the tenant
func List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "job_handler.List")
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
	status := models.JobStatus(c.QueryParam("status"))

	ctx, repo, err := ectoinject.GetContext[*jobrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	items, totalCount, err := repo.List(ctx, tenantID, status, page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.JobListResponse{
		Items:      items,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	})
}

// Upsert creates or updates a mirrored job by source ID
func Upsert(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "job_handler.Upsert")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	var req models.UpsertJobRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req.SourceID = c.Param("id")

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, repo, err := ectoinject.GetContext[*jobrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	job := buildJob(tenantID, &req)
	result, err := repo.Upsert(ctx, job)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// buildJob maps a manual upsert onto the mirror row. Payload and fingerprint
// are derived from the request fields; the next change-stream event for the
// job overwrites both.
func buildJob(tenantID string, req *models.UpsertJobRequest) *models.Job {
	fields := map[string]any{"source_id": req.SourceID, "status": req.Status}
	setField := func(key string, v *string) {
		if v != nil {
			fields[key] = *v
		}
	}
	setField("job_site_name", req.JobSiteName)
	setField("customer_name", req.CustomerName)
	setField("address_street", req.AddressStreet)
	setField("address_city", req.AddressCity)
	setField("address_state", req.AddressState)
	setField("address_zip", req.AddressZip)
	if req.DateOut != nil {
		fields["date_out"] = req.DateOut.Format(time.RFC3339)
	}
	if req.CompletedAt != nil {
		fields["completed_at"] = req.CompletedAt.Format(time.RFC3339)
	}

	return &models.Job{
		TenantID:      tenantID,
		SourceID:      req.SourceID,
		JobSiteName:   req.JobSiteName,
		CustomerName:  req.CustomerName,
		AddressStreet: req.AddressStreet,
		AddressCity:   req.AddressCity,
		AddressState:  req.AddressState,
		AddressZip:    req.AddressZip,
		Status:        req.Status,
		DateOut:       req.DateOut,
		CompletedAt:   req.CompletedAt,
		Payload:       database.JSONB[map[string]any]{Data: fields},
		Fingerprint:   fingerprint.GenerateWithExclusions(fields, nil),
	}
}

// Get returns a single mirrored job by ID
func Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "job_handler.Get")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}
	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*jobrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	result, err := repo.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}
