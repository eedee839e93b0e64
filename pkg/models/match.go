package models

// MatchConfidence grades how certain the engine is about an invoice-job link.
type MatchConfidence = string

const (
	MatchConfidenceHigh   MatchConfidence = "high"
	MatchConfidenceMedium MatchConfidence = "medium"
	// MatchConfidenceLow is reserved for manually downgraded matches in the
	// review queue; the engine itself never emits it.
	MatchConfidenceLow MatchConfidence = "low"
)

// MatchStatus is the review state stored on the invoice.
type MatchStatus = string

const (
	MatchStatusMatched       MatchStatus = "matched"
	MatchStatusPendingReview MatchStatus = "pending_review"
	MatchStatusUnmatched     MatchStatus = "unmatched"
)

// MatchResult is the selector's verdict for one invoice. JobID and
// Confidence are both set or both nil.
type MatchResult struct {
	JobID      *string          `json:"job_id,omitempty"`
	Confidence *MatchConfidence `json:"confidence,omitempty"`
	Score      int              `json:"score"`
}

// Matched reports whether the selector linked the invoice to a job.
func (r MatchResult) Matched() bool {
	return r.JobID != nil
}

// StatusForConfidence maps a match outcome onto the stored review status.
// High confidence links immediately; anything else that matched waits for a
// human.
func StatusForConfidence(confidence *MatchConfidence) MatchStatus {
	if confidence == nil {
		return MatchStatusUnmatched
	}
	if *confidence == MatchConfidenceHigh {
		return MatchStatusMatched
	}
	return MatchStatusPendingReview
}
