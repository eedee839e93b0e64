package kafka

import (
	"encoding/json"
	"time"
)

// DebeziumEnvelope is the standard Debezium CDC message format
type DebeziumEnvelope struct {
	Schema  json.RawMessage `json:"schema,omitempty"`
	Payload DebeziumPayload `json:"payload"`
}

// DebeziumPayload contains the before/after state of a row
type DebeziumPayload struct {
	Before json.RawMessage `json:"before"`
	After  json.RawMessage `json:"after"`
	Source DebeziumSource  `json:"source"`
	Op     string          `json:"op"` // c=create, u=update, d=delete, r=read (snapshot)
	TsMs   int64           `json:"ts_ms"`
}

// DebeziumSource contains metadata about the source of the change
type DebeziumSource struct {
	Version   string `json:"version"`
	Connector string `json:"connector"`
	Name      string `json:"name"`
	TsMs      int64  `json:"ts_ms"`
	Snapshot  string `json:"snapshot,omitempty"`
	Db        string `json:"db"`
	Schema    string `json:"schema"`
	Table     string `json:"table"`
	TxId      int64  `json:"txId,omitempty"`
	Lsn       int64  `json:"lsn,omitempty"`
}

// IsCreate returns true if this is a create operation
func (p *DebeziumPayload) IsCreate() bool {
	return p.Op == "c" || p.Op == "r"
}

// IsUpdate returns true if this is an update operation
func (p *DebeziumPayload) IsUpdate() bool {
	return p.Op == "u"
}

// IsDelete returns true if this is a delete operation
func (p *DebeziumPayload) IsDelete() bool {
	return p.Op == "d"
}

// Timestamp returns the event timestamp
func (p *DebeziumPayload) Timestamp() time.Time {
	return time.UnixMilli(p.TsMs)
}

// JobRow is a row from the fleet backend's jobs table as captured by CDC.
// Only identity and lifecycle columns are typed; everything else stays in
// Fields so the processor can extract by path regardless of backend version.
type JobRow struct {
	ID        string
	TenantID  string
	DeletedAt *string
	Fields    map[string]any
}

// UnmarshalJSON keeps the full column set in Fields while lifting the
// identity columns.
func (r *JobRow) UnmarshalJSON(data []byte) error {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	r.Fields = fields
	if v, ok := fields["id"].(string); ok {
		r.ID = v
	}
	if v, ok := fields["tenant_id"].(string); ok {
		r.TenantID = v
	}
	if v, ok := fields["deleted_at"].(string); ok && v != "" {
		r.DeletedAt = &v
	}
	return nil
}

// IsDeleted returns true if the row has been soft-deleted
func (r *JobRow) IsDeleted() bool {
	return r.DeletedAt != nil && *r.DeletedAt != ""
}

// ParseDebeziumMessage parses a raw Kafka message as a Debezium envelope
func ParseDebeziumMessage(data []byte) (*DebeziumEnvelope, error) {
	var envelope DebeziumEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, err
	}
	return &envelope, nil
}

// ParseJobRow parses the After payload as a JobRow. Returns nil for delete
// events where After is null.
func (p *DebeziumPayload) ParseJobRow() (*JobRow, error) {
	if len(p.After) == 0 || string(p.After) == "null" {
		return nil, nil
	}

	var row JobRow
	if err := json.Unmarshal(p.After, &row); err != nil {
		return nil, err
	}
	return &row, nil
}

// ToJobChange converts a Debezium jobs-table event into a JobChangeMessage.
func (e *DebeziumEnvelope) ToJobChange() (*JobChangeMessage, error) {
	msg := &JobChangeMessage{
		Action:    "upsert",
		Timestamp: e.Payload.Timestamp(),
	}

	if e.Payload.IsDelete() {
		msg.Action = "delete"
		// Deletes carry the row in Before; identity is all we need.
		if len(e.Payload.Before) > 0 && string(e.Payload.Before) != "null" {
			var row JobRow
			if err := json.Unmarshal(e.Payload.Before, &row); err != nil {
				return nil, err
			}
			msg.TenantID = row.TenantID
			msg.JobID = row.ID
		}
		return msg, nil
	}

	row, err := e.Payload.ParseJobRow()
	if err != nil {
		return nil, err
	}
	if row == nil {
		return msg, nil
	}

	msg.TenantID = row.TenantID
	msg.JobID = row.ID
	msg.Job = row.Fields
	if row.IsDeleted() {
		msg.Action = "delete"
	}
	return msg, nil
}
