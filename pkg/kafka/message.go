package kafka

import (
	"encoding/json"
	"time"
)

// JobChangeMessage is a job change event from the fleet backend's change
// stream. The job payload stays loosely typed because field layout varies
// by backend version; the processor extracts what it needs by path.
type JobChangeMessage struct {
	Action    string         `json:"action"` // "upsert" or "delete"
	TenantID  string         `json:"tenant_id"`
	JobID     string         `json:"job_id"`
	Timestamp time.Time      `json:"timestamp"`
	Job       map[string]any `json:"job,omitempty"`
}

// IncomingMessage wraps a raw Kafka message with parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	// Trace context (extracted from Kafka headers)
	TraceParent string
	TraceState  string

	// Parsed content
	JobChange *JobChangeMessage
}

// IsTombstone reports whether the message is a Kafka tombstone (nil value);
// the key identifies the deleted job.
func (m *IncomingMessage) IsTombstone() bool {
	return len(m.Value) == 0
}

// ParseJobChange parses the message value as a job change event. Debezium
// CDC envelopes and plain job change payloads are both accepted.
func (m *IncomingMessage) ParseJobChange() error {
	if env, err := ParseDebeziumMessage(m.Value); err == nil && env.Payload.Op != "" {
		change, err := env.ToJobChange()
		if err != nil {
			return err
		}
		m.JobChange = change
		return nil
	}

	var msg JobChangeMessage
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		return err
	}
	m.JobChange = &msg
	return nil
}

// GetTenantID returns the tenant ID from the message, falling back to the
// tenant_id header.
func (m *IncomingMessage) GetTenantID() string {
	if m.JobChange != nil && m.JobChange.TenantID != "" {
		return m.JobChange.TenantID
	}
	return m.Headers["tenant_id"]
}

// GetJobID returns the fleet backend's job ID, falling back to the message key.
func (m *IncomingMessage) GetJobID() string {
	if m.JobChange != nil && m.JobChange.JobID != "" {
		return m.JobChange.JobID
	}
	return m.Key
}

// IsDelete reports whether the message removes a job, either explicitly or
// as a tombstone.
func (m *IncomingMessage) IsDelete() bool {
	if m.IsTombstone() {
		return true
	}
	return m.JobChange != nil && m.JobChange.Action == "delete"
}
