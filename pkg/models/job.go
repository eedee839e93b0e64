package models

import (
	"time"

	"github.com/fleetconnect/matchbook/pkg/database"
)

// JobStatus is the lifecycle status of a rental job in the fleet backend.
type JobStatus = string

const (
	JobStatusOpen       JobStatus = "open"
	JobStatusPending    JobStatus = "pending"
	JobStatusInProgress JobStatus = "in-progress"
	JobStatusCompleted  JobStatus = "completed"
)

// Job is a rental job mirrored from the fleet backend's change stream.
// Field order matches schema: id, tenant_id, source_id, ...
type Job struct {
	ID           string  `json:"id" db:"id"`
	TenantID     string  `json:"tenant_id" db:"tenant_id"`
	SourceID     string  `json:"source_id" db:"source_id"`
	JobSiteName  *string `json:"job_site_name,omitempty" db:"job_site_name"`
	CustomerName *string `json:"customer_name,omitempty" db:"customer_name"`

	AddressStreet *string `json:"address_street,omitempty" db:"address_street"`
	AddressCity   *string `json:"address_city,omitempty" db:"address_city"`
	AddressState  *string `json:"address_state,omitempty" db:"address_state"`
	AddressZip    *string `json:"address_zip,omitempty" db:"address_zip"`

	Status      JobStatus  `json:"status" db:"status"`
	DateOut     *time.Time `json:"date_out,omitempty" db:"date_out"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`

	// Payload keeps the raw change-stream fields for debugging and replay.
	Payload database.JSONB[map[string]any] `json:"-" db:"payload"`

	Fingerprint string     `json:"fingerprint" db:"fingerprint"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// UpsertJobRequest is the request for creating/updating a mirrored job
type UpsertJobRequest struct {
	SourceID      string     `json:"source_id" validate:"required"`
	JobSiteName   *string    `json:"job_site_name,omitempty"`
	CustomerName  *string    `json:"customer_name,omitempty"`
	AddressStreet *string    `json:"address_street,omitempty"`
	AddressCity   *string    `json:"address_city,omitempty"`
	AddressState  *string    `json:"address_state,omitempty"`
	AddressZip    *string    `json:"address_zip,omitempty"`
	Status        JobStatus  `json:"status" validate:"required"`
	DateOut       *time.Time `json:"date_out,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// JobListResponse is the response for listing jobs
type JobListResponse struct {
	Items      []Job `json:"items"`
	TotalCount int   `json:"total_count"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
}
