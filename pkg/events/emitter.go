// Package events handles event emission for invoice lifecycle changes
package events

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/fleetconnect/matchbook/pkg/kafka"
	"github.com/fleetconnect/matchbook/pkg/models"
	"github.com/fleetconnect/matchbook/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Emitter handles event emission for Matchbook
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitInvoiceReceived emits an event describing how the match landed for a
// newly stored invoice. The event type follows the match status.
func (e *Emitter) EmitInvoiceReceived(ctx context.Context, invoice *models.Invoice) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitInvoiceReceived")
	defer span.End()

	eventType := EventTypeInvoiceUnmatched
	switch invoice.MatchStatus {
	case models.MatchStatusMatched:
		eventType = EventTypeInvoiceMatched
	case models.MatchStatusPendingReview:
		eventType = EventTypeInvoicePendingReview
	}

	event := e.buildEvent(eventType, invoice)
	if err := e.producer.PublishInvoiceEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_type": eventType,
		}).Error("Failed to emit invoice event")
		return err
	}

	return nil
}

// EmitInvoiceReviewed emits an event after a pending match is approved or
// rejected by a reviewer.
func (e *Emitter) EmitInvoiceReviewed(ctx context.Context, invoice *models.Invoice, approved bool) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitInvoiceReviewed")
	defer span.End()

	eventType := EventTypeReviewRejected
	if approved {
		eventType = EventTypeReviewApproved
	}

	event := e.buildEvent(eventType, invoice)
	if err := e.producer.PublishInvoiceEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_type": eventType,
		}).Error("Failed to emit invoice review event")
		return err
	}

	return nil
}

func (e *Emitter) buildEvent(eventType EventType, invoice *models.Invoice) *kafka.InvoiceEvent {
	event := &kafka.InvoiceEvent{
		EventType:     string(eventType),
		SchemaVersion: SchemaVersion,
		TenantID:      invoice.TenantID,
		InvoiceID:     invoice.ID,
		JobID:         invoice.MatchedJobID,
		MatchStatus:   string(invoice.MatchStatus),
	}
	if invoice.MatchConfidence != nil {
		conf := string(*invoice.MatchConfidence)
		event.Confidence = &conf
	}
	if invoice.MatchScore != nil {
		event.Score = *invoice.MatchScore
	}
	return event
}
