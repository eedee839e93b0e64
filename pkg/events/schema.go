package events

// EventType defines the type of event
type EventType string

const (
	// Invoice match outcome events
	EventTypeInvoiceMatched       EventType = "invoice.matched"
	EventTypeInvoicePendingReview EventType = "invoice.pending_review"
	EventTypeInvoiceUnmatched     EventType = "invoice.unmatched"

	// Review events
	EventTypeReviewApproved EventType = "invoice.review.approved"
	EventTypeReviewRejected EventType = "invoice.review.rejected"
)
