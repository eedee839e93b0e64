package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/fleetconnect/matchbook/pkg/tracing"
)

// Producer handles Kafka event emission
type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
	topic  string
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	requiredAcks := kafka.RequiredAcks(cfg.RequiredAcks)

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           requiredAcks,
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		topic:  cfg.Topic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// InvoiceEvent represents a lifecycle event for a received invoice
type InvoiceEvent struct {
	EventType     string    `json:"event_type"` // invoice.matched, invoice.pending_review, invoice.unmatched, invoice.reviewed
	SchemaVersion string    `json:"schema_version"`
	TenantID      string    `json:"tenant_id"`
	InvoiceID     string    `json:"invoice_id"`
	JobID         *string   `json:"job_id,omitempty"`
	MatchStatus   string    `json:"match_status"`
	Confidence    *string   `json:"confidence,omitempty"`
	Score         int       `json:"score"`
	Timestamp     time.Time `json:"timestamp"`
}

func (event *InvoiceEvent) toMessage(topic string) (kafka.Message, error) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}

	return kafka.Message{
		Topic: topic,
		Key:   []byte(event.InvoiceID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "tenant_id", Value: []byte(event.TenantID)},
			{Key: "match_status", Value: []byte(event.MatchStatus)},
			{Key: "schema_version", Value: []byte(event.SchemaVersion)},
		},
	}, nil
}

// PublishInvoiceEvent publishes an invoice event to Kafka
func (p *Producer) PublishInvoiceEvent(ctx context.Context, event *InvoiceEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishInvoiceEvent")
	defer span.End()

	msg, err := event.toMessage(p.topic)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish invoice event")
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"event_type":   event.EventType,
		"invoice_id":   event.InvoiceID,
		"match_status": event.MatchStatus,
	}).Debug("Published invoice event")

	return nil
}
