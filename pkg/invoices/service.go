// Package invoices orchestrates invoice intake: extraction, job matching,
// persistence, and event emission.
package invoices

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	"github.com/fleetconnect/matchbook/pkg/models"
	"github.com/fleetconnect/matchbook/pkg/tracing"
)

// InvoiceStore persists invoices and their match outcomes
type InvoiceStore interface {
	Create(ctx context.Context, inv *models.Invoice) (*models.Invoice, error)
	Get(ctx context.Context, tenantID string, id string) (*models.Invoice, error)
	List(ctx context.Context, tenantID string, status models.MatchStatus, page, pageSize int) ([]models.Invoice, int, error)
	UpdateMatch(ctx context.Context, tenantID string, id string, result models.MatchResult) error
	ApproveMatch(ctx context.Context, tenantID string, id string) error
	RejectMatch(ctx context.Context, tenantID string, id string) error
}

// JobStore provides the candidate jobs considered for matching
type JobStore interface {
	ListCandidates(ctx context.Context, tenantID string, limit int) ([]models.Job, error)
}

// Extractor turns an invoice PDF into structured fields
type Extractor interface {
	ExtractInvoice(ctx context.Context, pdfBase64 string, filename string) (*models.InvoiceExtraction, error)
}

// MatchEngine selects the best job for an extracted invoice
type MatchEngine interface {
	SelectMatch(ctx context.Context, tenantID string, inv *models.InvoiceExtraction, jobs []models.Job) models.MatchResult
}

// Emitter publishes invoice lifecycle events
type Emitter interface {
	EmitInvoiceReceived(ctx context.Context, invoice *models.Invoice) error
	EmitInvoiceReviewed(ctx context.Context, invoice *models.Invoice, approved bool) error
}

// Service handles the receive-invoice pipeline and review actions
type Service struct {
	logger         ectologger.Logger
	extractor      Extractor
	invoices       InvoiceStore
	jobs           JobStore
	engine         MatchEngine
	emitter        Emitter
	candidateLimit int
}

// NewService creates a new invoice service
func NewService(
	logger ectologger.Logger,
	extractor Extractor,
	invoices InvoiceStore,
	jobs JobStore,
	engine MatchEngine,
	emitter Emitter,
	candidateLimit int,
) *Service {
	return &Service{
		logger:         logger,
		extractor:      extractor,
		invoices:       invoices,
		jobs:           jobs,
		engine:         engine,
		emitter:        emitter,
		candidateLimit: candidateLimit,
	}
}

// Receive processes an inbound invoice webhook: extract fields from the PDF,
// match against candidate jobs, store the invoice, and emit an event.
// Extraction and candidate lookup failures degrade to an unmatched invoice;
// the invoice itself is never dropped.
func (s *Service) Receive(ctx context.Context, tenantID string, req *models.ReceiveInvoiceRequest) (*models.ReceiveInvoiceResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "invoices.Service.Receive")
	defer span.End()

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":    tenantID,
		"pdf_filename": derefStr(req.PDFFilename),
	})

	extraction, err := s.extractor.ExtractInvoice(ctx, req.PDFBase64, derefStr(req.PDFFilename))
	if err != nil {
		log.WithError(err).Warn("Extraction failed, storing invoice unmatched")
		extraction = nil
	}

	var result models.MatchResult
	if extraction != nil {
		jobs, err := s.jobs.ListCandidates(ctx, tenantID, s.candidateLimit)
		if err != nil {
			log.WithError(err).Warn("Candidate lookup failed, storing invoice unmatched")
		} else if len(jobs) > 0 {
			result = s.engine.SelectMatch(ctx, tenantID, extraction, jobs)
		}
	}

	invoice := buildInvoice(tenantID, extraction, req, result)

	stored, err := s.invoices.Create(ctx, invoice)
	if err != nil {
		return nil, err
	}

	if err := s.emitter.EmitInvoiceReceived(ctx, stored); err != nil {
		log.WithError(err).Warn("Failed to emit invoice event")
	}

	log.WithFields(map[string]any{
		"invoice_id":   stored.ID,
		"match_status": stored.MatchStatus,
		"match_score":  result.Score,
	}).Info("Invoice received")

	return &models.ReceiveInvoiceResponse{
		Invoice:    *stored,
		JobID:      result.JobID,
		Confidence: result.Confidence,
		Score:      result.Score,
	}, nil
}

// Get returns a single invoice
func (s *Service) Get(ctx context.Context, tenantID string, id string) (*models.Invoice, error) {
	ctx, span := tracing.StartSpan(ctx, "invoices.Service.Get")
	defer span.End()

	return s.invoices.Get(ctx, tenantID, id)
}

// List returns invoices for a tenant, optionally filtered by match status
func (s *Service) List(ctx context.Context, tenantID string, status models.MatchStatus, page, pageSize int) (*models.InvoiceListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "invoices.Service.List")
	defer span.End()

	items, total, err := s.invoices.List(ctx, tenantID, status, page, pageSize)
	if err != nil {
		return nil, err
	}

	return &models.InvoiceListResponse{
		Items:      items,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// Rematch reruns matching for a stored invoice against the current job
// mirror, replacing any previous match outcome. Used after late-arriving
// job changes or a rejected match.
func (s *Service) Rematch(ctx context.Context, tenantID string, id string) (*models.ReceiveInvoiceResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "invoices.Service.Rematch")
	defer span.End()

	invoice, err := s.invoices.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	var result models.MatchResult
	jobs, err := s.jobs.ListCandidates(ctx, tenantID, s.candidateLimit)
	if err != nil {
		return nil, err
	}
	if len(jobs) > 0 {
		result = s.engine.SelectMatch(ctx, tenantID, extractionFromInvoice(invoice), jobs)
	}

	if err := s.invoices.UpdateMatch(ctx, tenantID, id, result); err != nil {
		return nil, err
	}

	updated, err := s.invoices.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if err := s.emitter.EmitInvoiceReceived(ctx, updated); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"invoice_id": id,
		}).Warn("Failed to emit invoice event")
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":    tenantID,
		"invoice_id":   id,
		"match_status": updated.MatchStatus,
		"match_score":  result.Score,
	}).Info("Invoice rematched")

	return &models.ReceiveInvoiceResponse{
		Invoice:    *updated,
		JobID:      result.JobID,
		Confidence: result.Confidence,
		Score:      result.Score,
	}, nil
}

// extractionFromInvoice rebuilds the matchable fields from a stored invoice.
func extractionFromInvoice(invoice *models.Invoice) *models.InvoiceExtraction {
	return &models.InvoiceExtraction{
		InvoiceDate:   invoice.InvoiceDate,
		CustomerName:  invoice.CustomerName,
		ShipToName:    invoice.ShipToName,
		ShipToAddress: invoice.ShipToAddress,
		ShipToCity:    invoice.ShipToCity,
		ShipToState:   invoice.ShipToState,
		ShipToZip:     invoice.ShipToZip,
	}
}

// Approve confirms a pending-review match
func (s *Service) Approve(ctx context.Context, tenantID string, id string) (*models.Invoice, error) {
	return s.review(ctx, tenantID, id, true)
}

// Reject clears a pending-review match, returning the invoice to unmatched
func (s *Service) Reject(ctx context.Context, tenantID string, id string) (*models.Invoice, error) {
	return s.review(ctx, tenantID, id, false)
}

func (s *Service) review(ctx context.Context, tenantID string, id string, approved bool) (*models.Invoice, error) {
	ctx, span := tracing.StartSpan(ctx, "invoices.Service.review")
	defer span.End()

	var err error
	if approved {
		err = s.invoices.ApproveMatch(ctx, tenantID, id)
	} else {
		err = s.invoices.RejectMatch(ctx, tenantID, id)
	}
	if err != nil {
		return nil, err
	}

	invoice, err := s.invoices.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if err := s.emitter.EmitInvoiceReviewed(ctx, invoice, approved); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"invoice_id": id,
		}).Warn("Failed to emit review event")
	}

	return invoice, nil
}

// buildInvoice assembles the stored invoice from the extraction, the webhook
// metadata, and the match outcome.
func buildInvoice(tenantID string, extraction *models.InvoiceExtraction, req *models.ReceiveInvoiceRequest, result models.MatchResult) *models.Invoice {
	invoice := &models.Invoice{
		TenantID:        tenantID,
		PDFFilename:     req.PDFFilename,
		EmailFrom:       req.EmailFrom,
		EmailSubject:    req.EmailSubject,
		EmailReceivedAt: req.EmailReceivedAt,
	}

	if extraction != nil {
		invoice.InvoiceNumber = extraction.InvoiceNumber
		invoice.InvoiceDate = extraction.InvoiceDate
		invoice.DueDate = extraction.DueDate
		invoice.VendorName = extraction.VendorName
		invoice.CustomerName = extraction.CustomerName
		invoice.ShipToName = extraction.ShipToName
		invoice.ShipToAddress = extraction.ShipToAddress
		invoice.ShipToCity = extraction.ShipToCity
		invoice.ShipToState = extraction.ShipToState
		invoice.ShipToZip = extraction.ShipToZip
		invoice.FuelType = extraction.FuelType
		invoice.TotalGallons = extraction.TotalGallons
		invoice.DieselGallons = extraction.DieselGallons
		invoice.DefGallons = extraction.DefGallons
		invoice.RatePerGallon = extraction.RatePerGallon
		invoice.Subtotal = extraction.Subtotal
		invoice.Tax = extraction.Tax
		invoice.DeliveryFee = extraction.DeliveryFee
		invoice.TotalAmount = extraction.TotalAmount
		invoice.BalanceDue = extraction.BalanceDue
		invoice.PaymentTerms = extraction.PaymentTerms

		if len(extraction.LineItems) > 0 {
			if data, err := json.Marshal(extraction.LineItems); err == nil {
				invoice.LineItems = data
			}
		}
	}

	invoice.MatchedJobID = result.JobID
	invoice.MatchConfidence = result.Confidence
	score := result.Score
	invoice.MatchScore = &score
	invoice.MatchStatus = models.StatusForConfidence(result.Confidence)

	return invoice
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
