package invoices

import (
	"context"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fleetconnect/matchbook/pkg/models"
)

func testLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func strPtr(s string) *string { return &s }

type fakeExtractor struct {
	extraction *models.InvoiceExtraction
	err        error
}

func (f *fakeExtractor) ExtractInvoice(ctx context.Context, pdfBase64 string, filename string) (*models.InvoiceExtraction, error) {
	return f.extraction, f.err
}

type fakeInvoiceStore struct {
	created      *models.Invoice
	stored       *models.Invoice
	listItems    []models.Invoice
	listTotal    int
	createErr    error
	getErr       error
	reviewErr    error
	approvedID   string
	rejectedID   string
	updatedMatch *models.MatchResult
}

func (f *fakeInvoiceStore) Create(ctx context.Context, inv *models.Invoice) (*models.Invoice, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = inv
	out := *inv
	out.ID = "inv-1"
	return &out, nil
}

func (f *fakeInvoiceStore) Get(ctx context.Context, tenantID string, id string) (*models.Invoice, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.stored != nil {
		return f.stored, nil
	}
	return &models.Invoice{ID: id, TenantID: tenantID}, nil
}

func (f *fakeInvoiceStore) List(ctx context.Context, tenantID string, status models.MatchStatus, page, pageSize int) ([]models.Invoice, int, error) {
	return f.listItems, f.listTotal, nil
}

func (f *fakeInvoiceStore) UpdateMatch(ctx context.Context, tenantID string, id string, result models.MatchResult) error {
	f.updatedMatch = &result
	return nil
}

func (f *fakeInvoiceStore) ApproveMatch(ctx context.Context, tenantID string, id string) error {
	if f.reviewErr != nil {
		return f.reviewErr
	}
	f.approvedID = id
	return nil
}

func (f *fakeInvoiceStore) RejectMatch(ctx context.Context, tenantID string, id string) error {
	if f.reviewErr != nil {
		return f.reviewErr
	}
	f.rejectedID = id
	return nil
}

type fakeJobStore struct {
	jobs []models.Job
	err  error
}

func (f *fakeJobStore) ListCandidates(ctx context.Context, tenantID string, limit int) ([]models.Job, error) {
	return f.jobs, f.err
}

type fakeEngine struct {
	result models.MatchResult
	called bool
}

func (f *fakeEngine) SelectMatch(ctx context.Context, tenantID string, inv *models.InvoiceExtraction, jobs []models.Job) models.MatchResult {
	f.called = true
	return f.result
}

type fakeEmitter struct {
	received []*models.Invoice
	reviewed []bool
	err      error
}

func (f *fakeEmitter) EmitInvoiceReceived(ctx context.Context, invoice *models.Invoice) error {
	f.received = append(f.received, invoice)
	return f.err
}

func (f *fakeEmitter) EmitInvoiceReviewed(ctx context.Context, invoice *models.Invoice, approved bool) error {
	f.reviewed = append(f.reviewed, approved)
	return f.err
}

func highConfidenceResult(jobID string, score int) models.MatchResult {
	confidence := models.MatchConfidenceHigh
	return models.MatchResult{JobID: &jobID, Confidence: &confidence, Score: score}
}

func newTestService(extractor *fakeExtractor, invoices *fakeInvoiceStore, jobs *fakeJobStore, engine *fakeEngine, emitter *fakeEmitter) *Service {
	return NewService(testLogger(), extractor, invoices, jobs, engine, emitter, 200)
}

func TestReceive_MatchedInvoice(t *testing.T) {
	extractor := &fakeExtractor{extraction: &models.InvoiceExtraction{
		InvoiceNumber: strPtr("INV-100"),
		ShipToAddress: strPtr("123 Main St"),
		LineItems:     []models.InvoiceLineItem{{Description: strPtr("Diesel")}},
	}}
	invoices := &fakeInvoiceStore{}
	jobs := &fakeJobStore{jobs: []models.Job{{ID: "job-1"}}}
	engine := &fakeEngine{result: highConfidenceResult("job-1", 80)}
	emitter := &fakeEmitter{}

	svc := newTestService(extractor, invoices, jobs, engine, emitter)

	resp, err := svc.Receive(context.Background(), "tenant-1", &models.ReceiveInvoiceRequest{PDFBase64: "cGRm"})
	require.NoError(t, err)

	assert.True(t, engine.called)
	assert.Equal(t, "inv-1", resp.Invoice.ID)
	assert.Equal(t, "job-1", *resp.JobID)
	assert.Equal(t, 80, resp.Score)
	assert.Equal(t, models.MatchConfidenceHigh, *resp.Confidence)

	require.NotNil(t, invoices.created)
	assert.Equal(t, "tenant-1", invoices.created.TenantID)
	assert.Equal(t, "INV-100", *invoices.created.InvoiceNumber)
	assert.Equal(t, "job-1", *invoices.created.MatchedJobID)
	assert.Equal(t, models.MatchStatusMatched, invoices.created.MatchStatus)
	assert.Equal(t, 80, *invoices.created.MatchScore)
	assert.NotEmpty(t, invoices.created.LineItems)

	require.Len(t, emitter.received, 1)
	assert.Equal(t, "inv-1", emitter.received[0].ID)
}

func TestReceive_MediumConfidenceGoesPendingReview(t *testing.T) {
	confidence := models.MatchConfidenceMedium
	jobID := "job-1"

	extractor := &fakeExtractor{extraction: &models.InvoiceExtraction{}}
	invoices := &fakeInvoiceStore{}
	jobs := &fakeJobStore{jobs: []models.Job{{ID: "job-1"}}}
	engine := &fakeEngine{result: models.MatchResult{JobID: &jobID, Confidence: &confidence, Score: 55}}

	svc := newTestService(extractor, invoices, jobs, engine, &fakeEmitter{})

	_, err := svc.Receive(context.Background(), "tenant-1", &models.ReceiveInvoiceRequest{PDFBase64: "cGRm"})
	require.NoError(t, err)

	assert.Equal(t, models.MatchStatusPendingReview, invoices.created.MatchStatus)
}

func TestReceive_ExtractionFailureStoresUnmatched(t *testing.T) {
	extractor := &fakeExtractor{err: errors.New("api timeout")}
	invoices := &fakeInvoiceStore{}
	engine := &fakeEngine{}
	emitter := &fakeEmitter{}

	svc := newTestService(extractor, invoices, &fakeJobStore{}, engine, emitter)

	resp, err := svc.Receive(context.Background(), "tenant-1", &models.ReceiveInvoiceRequest{
		PDFBase64:   "cGRm",
		PDFFilename: strPtr("invoice.pdf"),
	})
	require.NoError(t, err)

	assert.False(t, engine.called)
	assert.Nil(t, resp.JobID)
	assert.Equal(t, models.MatchStatusUnmatched, invoices.created.MatchStatus)
	assert.Equal(t, "invoice.pdf", *invoices.created.PDFFilename)
	assert.Len(t, emitter.received, 1)
}

func TestReceive_CandidateLookupFailureStoresUnmatched(t *testing.T) {
	extractor := &fakeExtractor{extraction: &models.InvoiceExtraction{}}
	invoices := &fakeInvoiceStore{}
	jobs := &fakeJobStore{err: errors.New("connection refused")}
	engine := &fakeEngine{}

	svc := newTestService(extractor, invoices, jobs, engine, &fakeEmitter{})

	_, err := svc.Receive(context.Background(), "tenant-1", &models.ReceiveInvoiceRequest{PDFBase64: "cGRm"})
	require.NoError(t, err)

	assert.False(t, engine.called)
	assert.Equal(t, models.MatchStatusUnmatched, invoices.created.MatchStatus)
}

func TestReceive_NoCandidatesSkipsMatching(t *testing.T) {
	extractor := &fakeExtractor{extraction: &models.InvoiceExtraction{}}
	invoices := &fakeInvoiceStore{}
	engine := &fakeEngine{}

	svc := newTestService(extractor, invoices, &fakeJobStore{}, engine, &fakeEmitter{})

	_, err := svc.Receive(context.Background(), "tenant-1", &models.ReceiveInvoiceRequest{PDFBase64: "cGRm"})
	require.NoError(t, err)

	assert.False(t, engine.called)
	assert.Equal(t, models.MatchStatusUnmatched, invoices.created.MatchStatus)
}

func TestReceive_CreateFailureFails(t *testing.T) {
	extractor := &fakeExtractor{extraction: &models.InvoiceExtraction{}}
	invoices := &fakeInvoiceStore{createErr: errors.New("constraint violation")}
	emitter := &fakeEmitter{}

	svc := newTestService(extractor, invoices, &fakeJobStore{}, &fakeEngine{}, emitter)

	_, err := svc.Receive(context.Background(), "tenant-1", &models.ReceiveInvoiceRequest{PDFBase64: "cGRm"})
	assert.Error(t, err)
	assert.Empty(t, emitter.received)
}

func TestReceive_EmitFailureDoesNotFail(t *testing.T) {
	extractor := &fakeExtractor{extraction: &models.InvoiceExtraction{}}
	invoices := &fakeInvoiceStore{}
	emitter := &fakeEmitter{err: errors.New("broker unavailable")}

	svc := newTestService(extractor, invoices, &fakeJobStore{}, &fakeEngine{}, emitter)

	resp, err := svc.Receive(context.Background(), "tenant-1", &models.ReceiveInvoiceRequest{PDFBase64: "cGRm"})
	require.NoError(t, err)
	assert.Equal(t, "inv-1", resp.Invoice.ID)
}

func TestList(t *testing.T) {
	invoices := &fakeInvoiceStore{
		listItems: []models.Invoice{{ID: "inv-1"}, {ID: "inv-2"}},
		listTotal: 7,
	}

	svc := newTestService(&fakeExtractor{}, invoices, &fakeJobStore{}, &fakeEngine{}, &fakeEmitter{})

	resp, err := svc.List(context.Background(), "tenant-1", models.MatchStatusPendingReview, 2, 2)
	require.NoError(t, err)
	assert.Len(t, resp.Items, 2)
	assert.Equal(t, 7, resp.TotalCount)
	assert.Equal(t, 2, resp.Page)
	assert.Equal(t, 2, resp.PageSize)
}

func TestRematch(t *testing.T) {
	t.Run("replaces the match outcome", func(t *testing.T) {
		invoices := &fakeInvoiceStore{stored: &models.Invoice{
			ID:            "inv-1",
			ShipToAddress: strPtr("123 Main St"),
			MatchStatus:   models.MatchStatusUnmatched,
		}}
		jobs := &fakeJobStore{jobs: []models.Job{{ID: "job-1"}}}
		engine := &fakeEngine{result: highConfidenceResult("job-1", 80)}
		emitter := &fakeEmitter{}

		svc := newTestService(&fakeExtractor{}, invoices, jobs, engine, emitter)

		resp, err := svc.Rematch(context.Background(), "tenant-1", "inv-1")
		require.NoError(t, err)

		assert.True(t, engine.called)
		require.NotNil(t, invoices.updatedMatch)
		assert.Equal(t, "job-1", *invoices.updatedMatch.JobID)
		assert.Equal(t, 80, resp.Score)
		assert.Len(t, emitter.received, 1)
	})

	t.Run("candidate failure fails the rematch", func(t *testing.T) {
		invoices := &fakeInvoiceStore{stored: &models.Invoice{ID: "inv-1"}}
		jobs := &fakeJobStore{err: errors.New("connection refused")}

		svc := newTestService(&fakeExtractor{}, invoices, jobs, &fakeEngine{}, &fakeEmitter{})

		_, err := svc.Rematch(context.Background(), "tenant-1", "inv-1")
		assert.Error(t, err)
		assert.Nil(t, invoices.updatedMatch)
	})

	t.Run("no candidates clears the match", func(t *testing.T) {
		invoices := &fakeInvoiceStore{stored: &models.Invoice{ID: "inv-1"}}
		engine := &fakeEngine{}

		svc := newTestService(&fakeExtractor{}, invoices, &fakeJobStore{}, engine, &fakeEmitter{})

		resp, err := svc.Rematch(context.Background(), "tenant-1", "inv-1")
		require.NoError(t, err)

		assert.False(t, engine.called)
		require.NotNil(t, invoices.updatedMatch)
		assert.Nil(t, invoices.updatedMatch.JobID)
		assert.Equal(t, 0, resp.Score)
	})
}

func TestReview(t *testing.T) {
	t.Run("approve", func(t *testing.T) {
		invoices := &fakeInvoiceStore{stored: &models.Invoice{ID: "inv-1", MatchStatus: models.MatchStatusMatched}}
		emitter := &fakeEmitter{}

		svc := newTestService(&fakeExtractor{}, invoices, &fakeJobStore{}, &fakeEngine{}, emitter)

		invoice, err := svc.Approve(context.Background(), "tenant-1", "inv-1")
		require.NoError(t, err)
		assert.Equal(t, "inv-1", invoices.approvedID)
		assert.Equal(t, models.MatchStatusMatched, invoice.MatchStatus)
		assert.Equal(t, []bool{true}, emitter.reviewed)
	})

	t.Run("reject", func(t *testing.T) {
		invoices := &fakeInvoiceStore{stored: &models.Invoice{ID: "inv-1", MatchStatus: models.MatchStatusUnmatched}}
		emitter := &fakeEmitter{}

		svc := newTestService(&fakeExtractor{}, invoices, &fakeJobStore{}, &fakeEngine{}, emitter)

		invoice, err := svc.Reject(context.Background(), "tenant-1", "inv-1")
		require.NoError(t, err)
		assert.Equal(t, "inv-1", invoices.rejectedID)
		assert.Equal(t, models.MatchStatusUnmatched, invoice.MatchStatus)
		assert.Equal(t, []bool{false}, emitter.reviewed)
	})

	t.Run("store error propagates", func(t *testing.T) {
		invoices := &fakeInvoiceStore{reviewErr: errors.New("not in pending review")}
		emitter := &fakeEmitter{}

		svc := newTestService(&fakeExtractor{}, invoices, &fakeJobStore{}, &fakeEngine{}, emitter)

		_, err := svc.Approve(context.Background(), "tenant-1", "inv-1")
		assert.Error(t, err)
		assert.Empty(t, emitter.reviewed)
	})

	t.Run("emit failure does not fail", func(t *testing.T) {
		invoices := &fakeInvoiceStore{stored: &models.Invoice{ID: "inv-1"}}
		emitter := &fakeEmitter{err: errors.New("broker unavailable")}

		svc := newTestService(&fakeExtractor{}, invoices, &fakeJobStore{}, &fakeEngine{}, emitter)

		invoice, err := svc.Approve(context.Background(), "tenant-1", "inv-1")
		require.NoError(t, err)
		assert.Equal(t, "inv-1", invoice.ID)
	})
}
