package job

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/fleetconnect/matchbook/pkg/database"
	"github.com/fleetconnect/matchbook/pkg/models"
	"github.com/fleetconnect/matchbook/pkg/tracing"
)

var jobColumns = []string{
	"id", "tenant_id", "source_id", "job_site_name", "customer_name",
	"address_street", "address_city", "address_state", "address_zip",
	"status", "date_out", "completed_at", "payload", "fingerprint",
	"created_at", "updated_at", "deleted_at",
}

// Repository handles mirrored job persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new job repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Upsert creates or updates a job keyed by (tenant_id, source_id)
func (r *Repository) Upsert(ctx context.Context, j *models.Job) (*models.Job, error) {
	ctx, span := tracing.StartSpan(ctx, "job.Repository.Upsert")
	defer span.End()

	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	j.CreatedAt = now
	j.UpdatedAt = now

	sb := database.NewInsertBuilder()
	ib := sb.InsertInto("jobs").
		Cols("id", "tenant_id", "source_id", "job_site_name", "customer_name",
			"address_street", "address_city", "address_state", "address_zip",
			"status", "date_out", "completed_at", "payload", "fingerprint", "created_at", "updated_at").
		Values(j.ID, j.TenantID, j.SourceID, j.JobSiteName, j.CustomerName,
			j.AddressStreet, j.AddressCity, j.AddressState, j.AddressZip,
			j.Status, j.DateOut, j.CompletedAt, j.Payload, j.Fingerprint, j.CreatedAt, j.UpdatedAt)

	ub := ib.OnConflict("tenant_id", "source_id")
	ub.Set(
		ub.Assign("job_site_name", database.Excluded("job_site_name")),
		ub.Assign("customer_name", database.Excluded("customer_name")),
		ub.Assign("address_street", database.Excluded("address_street")),
		ub.Assign("address_city", database.Excluded("address_city")),
		ub.Assign("address_state", database.Excluded("address_state")),
		ub.Assign("address_zip", database.Excluded("address_zip")),
		ub.Assign("status", database.Excluded("status")),
		ub.Assign("date_out", database.Excluded("date_out")),
		ub.Assign("completed_at", database.Excluded("completed_at")),
		ub.Assign("payload", database.Excluded("payload")),
		ub.Assign("fingerprint", database.Excluded("fingerprint")),
		ub.Assign("updated_at", database.Excluded("updated_at")),
		"deleted_at = NULL",
	)

	query, args := ib.Returning("id", "created_at").Build()

	row := struct {
		ID        string    `db:"id"`
		CreatedAt time.Time `db:"created_at"`
	}{}
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"source_id": j.SourceID}).Error("Failed to upsert job")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert job")
	}
	j.ID = row.ID
	j.CreatedAt = row.CreatedAt

	return j, nil
}

// Get retrieves a job by ID
func (r *Repository) Get(ctx context.Context, tenantID string, id string) (*models.Job, error) {
	ctx, span := tracing.StartSpan(ctx, "job.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(jobColumns...)
	sb.From("jobs")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var j models.Job
	if err := r.db.GetContext(ctx, &j, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("job %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get job")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get job")
	}

	return &j, nil
}

// GetBySourceID retrieves a job by its fleet backend ID.
// Returns nil when the job is not mirrored yet.
func (r *Repository) GetBySourceID(ctx context.Context, tenantID string, sourceID string) (*models.Job, error) {
	ctx, span := tracing.StartSpan(ctx, "job.Repository.GetBySourceID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(jobColumns...)
	sb.From("jobs")
	sb.Where(
		sb.Equal("source_id", sourceID),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var j models.Job
	if err := r.db.GetContext(ctx, &j, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get job by source id")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get job")
	}

	return &j, nil
}

// ListCandidates retrieves the matchable jobs for a tenant: completed or
// in-progress, most recently completed first.
func (r *Repository) ListCandidates(ctx context.Context, tenantID string, limit int) ([]models.Job, error) {
	ctx, span := tracing.StartSpan(ctx, "job.Repository.ListCandidates")
	defer span.End()

	if limit < 1 || limit > 1000 {
		limit = 500
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(jobColumns...)
	sb.From("jobs")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.In("status", models.JobStatusCompleted, models.JobStatusInProgress),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("completed_at DESC NULLS LAST")
	sb.Limit(limit)

	query, args := sb.Build()
	var jobs []models.Job
	if err := r.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list candidate jobs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list candidate jobs")
	}

	return jobs, nil
}

// List retrieves jobs for a tenant, optionally filtered by status
func (r *Repository) List(ctx context.Context, tenantID string, status models.JobStatus, page, pageSize int) ([]models.Job, int, error) {
	ctx, span := tracing.StartSpan(ctx, "job.Repository.List")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 500 {
		pageSize = 100
	}

	// Page and count run in one transaction so the total matches the rows.
	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(jobColumns...)
	sb.From("jobs")
	where := []string{
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("deleted_at"),
	}
	if status != "" {
		where = append(where, sb.Equal("status", status))
	}
	sb.Where(where...)
	sb.OrderBy("updated_at DESC")
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args := sb.Build()
	var jobs []models.Job
	if err := tx.SelectContext(ctx, &jobs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list jobs")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list jobs")
	}

	cb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	cb.Select("COUNT(*)")
	cb.From("jobs")
	countWhere := []string{
		cb.Equal("tenant_id", tenantID),
		cb.IsNull("deleted_at"),
	}
	if status != "" {
		countWhere = append(countWhere, cb.Equal("status", status))
	}
	cb.Where(countWhere...)

	countQuery, countArgs := cb.Build()
	var total int
	if err := tx.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count jobs")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count jobs")
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to commit transaction")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list jobs")
	}

	return jobs, total, nil
}

// MarkDeleted soft-deletes a job that disappeared from the fleet backend
func (r *Repository) MarkDeleted(ctx context.Context, tenantID string, sourceID string) error {
	ctx, span := tracing.StartSpan(ctx, "job.Repository.MarkDeleted")
	defer span.End()

	now := time.Now().UTC()
	query := `
		UPDATE jobs
		SET deleted_at = $1, updated_at = $1
		WHERE tenant_id = $2 AND source_id = $3 AND deleted_at IS NULL
	`

	if _, err := r.db.ExecContext(ctx, query, now, tenantID, sourceID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"source_id": sourceID}).Error("Failed to mark job deleted")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark job deleted")
	}

	return nil
}
