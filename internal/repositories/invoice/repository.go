package invoice

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

var invoiceColumns = []string{
	"id", "tenant_id", "invoice_number", "invoice_date", "due_date", "vendor_name", "customer_name",
	"ship_to_name", "ship_to_address", "ship_to_city", "ship_to_state", "ship_to_zip",
	"fuel_type", "total_gallons", "diesel_gallons", "def_gallons", "rate_per_gallon",
	"subtotal", "tax", "delivery_fee", "total_amount", "balance_due", "payment_terms",
	"line_items", "matched_job_id", "match_confidence", "match_score", "match_status",
	"pdf_filename", "email_from", "email_subject", "email_received_at",
	"created_at", "updated_at",
}

// Repository handles invoice persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new invoice repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create stores a received invoice with its match outcome
func (r *Repository) Create(ctx context.Context, inv *models.Invoice) (*models.Invoice, error) {
	ctx, span := tracing.StartSpan(ctx, "invoice.Repository.Create")
	defer span.End()

	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}
	inv.CreatedAt = time.Now().UTC()
	inv.UpdatedAt = inv.CreatedAt
	if inv.MatchStatus == "" {
		inv.MatchStatus = models.MatchStatusUnmatched
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("invoices")
	sb.Cols(invoiceColumns...)
	sb.Values(
		inv.ID, inv.TenantID, inv.InvoiceNumber, inv.InvoiceDate, inv.DueDate, inv.VendorName, inv.CustomerName,
		inv.ShipToName, inv.ShipToAddress, inv.ShipToCity, inv.ShipToState, inv.ShipToZip,
		inv.FuelType, inv.TotalGallons, inv.DieselGallons, inv.DefGallons, inv.RatePerGallon,
		inv.Subtotal, inv.Tax, inv.DeliveryFee, inv.TotalAmount, inv.BalanceDue, inv.PaymentTerms,
		inv.LineItems, inv.MatchedJobID, inv.MatchConfidence, inv.MatchScore, inv.MatchStatus,
		inv.PDFFilename, inv.EmailFrom, inv.EmailSubject, inv.EmailReceivedAt,
		inv.CreatedAt, inv.UpdatedAt,
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"invoice_id": inv.ID}).Error("Failed to create invoice")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create invoice")
	}

	return inv, nil
}

// Get retrieves an invoice by ID
func (r *Repository) Get(ctx context.Context, tenantID string, id string) (*models.Invoice, error) {
	ctx, span := tracing.StartSpan(ctx, "invoice.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(invoiceColumns...)
	sb.From("invoices")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var inv models.Invoice
	if err := r.db.GetContext(ctx, &inv, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("invoice %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get invoice")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get invoice")
	}

	return &inv, nil
}

// List retrieves invoices for a tenant, optionally filtered by match status
func (r *Repository) List(ctx context.Context, tenantID string, status models.MatchStatus, page, pageSize int) ([]models.Invoice, int, error) {
	ctx, span := tracing.StartSpan(ctx, "invoice.Repository.List")
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
	sb.Select(invoiceColumns...)
	sb.From("invoices")
	where := []string{sb.Equal("tenant_id", tenantID)}
	if status != "" {
		where = append(where, sb.Equal("match_status", status))
	}
	sb.Where(where...)
	sb.OrderBy("created_at DESC")
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args := sb.Build()
	var invoices []models.Invoice
	if err := tx.SelectContext(ctx, &invoices, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list invoices")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list invoices")
	}

	cb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	cb.Select("COUNT(*)")
	cb.From("invoices")
	countWhere := []string{cb.Equal("tenant_id", tenantID)}
	if status != "" {
		countWhere = append(countWhere, cb.Equal("match_status", status))
	}
	cb.Where(countWhere...)

	countQuery, countArgs := cb.Build()
	var total int
	if err := tx.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count invoices")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count invoices")
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to commit transaction")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list invoices")
	}

	return invoices, total, nil
}

// UpdateMatch updates the match outcome stored on an invoice
func (r *Repository) UpdateMatch(ctx context.Context, tenantID string, id string, result models.MatchResult) error {
	ctx, span := tracing.StartSpan(ctx, "invoice.Repository.UpdateMatch")
	defer span.End()

	now := time.Now().UTC()
	score := result.Score
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("invoices")
	sb.Set(
		sb.Assign("matched_job_id", result.JobID),
		sb.Assign("match_confidence", result.Confidence),
		sb.Assign("match_score", score),
		sb.Assign("match_status", models.StatusForConfidence(result.Confidence)),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update invoice match")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update invoice match")
	}

	rows, _ := res.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("invoice %s not found", id))
	}

	return nil
}

// ApproveMatch confirms a pending-review match
func (r *Repository) ApproveMatch(ctx context.Context, tenantID string, id string) error {
	ctx, span := tracing.StartSpan(ctx, "invoice.Repository.ApproveMatch")
	defer span.End()

	now := time.Now().UTC()
	query := `
		UPDATE invoices
		SET match_status = $1, updated_at = $2
		WHERE id = $3 AND tenant_id = $4 AND match_status = $5
	`

	res, err := r.db.ExecContext(ctx, query, models.MatchStatusMatched, now, id, tenantID, models.MatchStatusPendingReview)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to approve invoice match")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to approve invoice match")
	}

	rows, _ := res.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("invoice %s not found or not pending review", id))
	}

	return nil
}

// RejectMatch clears a pending-review match and marks the invoice unmatched
func (r *Repository) RejectMatch(ctx context.Context, tenantID string, id string) error {
	ctx, span := tracing.StartSpan(ctx, "invoice.Repository.RejectMatch")
	defer span.End()

	now := time.Now().UTC()
	query := `
		UPDATE invoices
		SET matched_job_id = NULL, match_confidence = NULL, match_status = $1, updated_at = $2
		WHERE id = $3 AND tenant_id = $4 AND match_status = $5
	`

	res, err := r.db.ExecContext(ctx, query, models.MatchStatusUnmatched, now, id, tenantID, models.MatchStatusPendingReview)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to reject invoice match")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to reject invoice match")
	}

	rows, _ := res.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("invoice %s not found or not pending review", id))
	}

	return nil
}

// HasConfirmedMatch reports whether a job already has a confirmed invoice
// linked to it. Pending-review links do not count.
func (r *Repository) HasConfirmedMatch(ctx context.Context, tenantID string, jobID string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "invoice.Repository.HasConfirmedMatch")
	defer span.End()

	query := `
		SELECT EXISTS (
			SELECT 1 FROM invoices
			WHERE tenant_id = $1 AND matched_job_id = $2 AND match_status = $3
		)
	`

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, tenantID, jobID, models.MatchStatusMatched); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"job_id": jobID}).Error("Failed to check for confirmed match")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to check for confirmed match")
	}

	return exists, nil
}
