// Package processor handles incoming job change messages and keeps the local
// job mirror in sync with the fleet backend. Matching reads from this mirror;
// it never calls back into the fleet backend.
package processor

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/fleetconnect/matchbook/pkg/database"
	"github.com/fleetconnect/matchbook/pkg/extractor"
	"github.com/fleetconnect/matchbook/pkg/fingerprint"
	"github.com/fleetconnect/matchbook/pkg/kafka"
	"github.com/fleetconnect/matchbook/pkg/models"
	"github.com/fleetconnect/matchbook/pkg/tracing"
)

// Volatile columns that never affect matching and would churn fingerprints.
var fingerprintExclusions = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"deleted_at": true,
}

// JobStore persists the mirrored jobs
type JobStore interface {
	Upsert(ctx context.Context, j *models.Job) (*models.Job, error)
	GetBySourceID(ctx context.Context, tenantID string, sourceID string) (*models.Job, error)
	MarkDeleted(ctx context.Context, tenantID string, sourceID string) error
}

// Processor handles job change messages from the fleet backend
type Processor struct {
	logger    ectologger.Logger
	jobRepo   JobStore
	extractor *extractor.Extractor
}

// NewProcessor creates a new job change processor
func NewProcessor(logger ectologger.Logger, jobRepo JobStore) *Processor {
	return &Processor{
		logger:    logger,
		jobRepo:   jobRepo,
		extractor: extractor.New(),
	}
}

// HandleMessage processes a single job change message. Returning an error
// leaves the message uncommitted so it is retried.
func (p *Processor) HandleMessage(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.HandleMessage")
	defer span.End()

	tenantID := msg.GetTenantID()
	jobID := msg.GetJobID()

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id": tenantID,
		"job_id":    jobID,
		"offset":    msg.Offset,
	})

	if tenantID == "" || jobID == "" {
		// Nothing to retry against; skip so the offset can advance.
		log.Warn("Job change message missing tenant or job ID, skipping")
		return nil
	}

	if msg.IsDelete() {
		if err := p.jobRepo.MarkDeleted(ctx, tenantID, jobID); err != nil {
			return err
		}
		log.Info("Job removed from mirror")
		return nil
	}

	job := p.buildJob(tenantID, jobID, msg.JobChange.Job)

	existing, err := p.jobRepo.GetBySourceID(ctx, tenantID, jobID)
	if err != nil {
		return err
	}
	if existing != nil && !fingerprint.HasChanged(existing.Fingerprint, job.Fingerprint) {
		log.Debug("Job unchanged, skipping upsert")
		return nil
	}

	if _, err := p.jobRepo.Upsert(ctx, job); err != nil {
		return err
	}

	log.WithFields(map[string]any{"status": job.Status}).Info("Job mirrored")
	return nil
}

// buildJob maps the loosely typed job payload onto the mirror row. Paths
// cover both the flat column layout from CDC and the nested API layout.
func (p *Processor) buildJob(tenantID string, sourceID string, fields map[string]any) *models.Job {
	job := &models.Job{
		TenantID: tenantID,
		SourceID: sourceID,
	}

	job.JobSiteName = p.extractor.ExtractFirstString(fields, "job_site_name", "jobSiteName", "name")
	job.CustomerName = p.extractor.ExtractFirstString(fields, "customer_name", "customerName", "customer.name")
	job.AddressStreet = p.extractor.ExtractFirstString(fields, "address_street", "address.street", "address")
	job.AddressCity = p.extractor.ExtractFirstString(fields, "address_city", "address.city", "city")
	job.AddressState = p.extractor.ExtractFirstString(fields, "address_state", "address.state", "state")
	job.AddressZip = p.extractor.ExtractFirstString(fields, "address_zip", "address.zip", "zip_code", "zip")

	if status := p.extractor.ExtractFirstString(fields, "status"); status != nil {
		job.Status = *status
	}

	job.DateOut = p.extractTime(fields, "date_out", "dateOut")
	job.CompletedAt = p.extractTime(fields, "completed_at", "completedAt")

	job.Payload = database.JSONB[map[string]any]{Data: fields}
	job.Fingerprint = fingerprint.GenerateWithExclusions(fields, fingerprintExclusions)
	return job
}

func (p *Processor) extractTime(fields map[string]any, paths ...string) *time.Time {
	for _, path := range paths {
		if t := p.extractor.ExtractTime(fields, path); t != nil {
			return t
		}
	}
	return nil
}
