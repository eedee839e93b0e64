// Package matching implements invoice-to-job matching
package matching

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/fleetconnect/matchbook/pkg/models"
	"github.com/fleetconnect/matchbook/pkg/normalizers"
	"github.com/fleetconnect/matchbook/pkg/tracing"
)

// PriorMatchChecker reports whether a job already has a confirmed invoice
// linked to it.
type PriorMatchChecker interface {
	HasConfirmedMatch(ctx context.Context, tenantID, jobID string) (bool, error)
}

// Config contains the scoring weights and thresholds for the match engine.
type Config struct {
	AddressExactPoints    int     // normalized street address is identical
	AddressFuzzyPoints    int     // token similarity above AddressFuzzyThreshold
	AddressFuzzyThreshold float64

	CityPoints int // case-insensitive city equality
	ZipPoints  int // exact zip equality

	SiteNameContainmentPoints int // ship-to name contains/contained by job site name
	SiteNameFuzzyPoints       int // token similarity above SiteNameFuzzyThreshold
	SiteNameFuzzyThreshold    float64

	CustomerPoints int // customer name containment

	DateNearDays   int // invoice date within this many days of date out
	DateNearPoints int
	DateMidDays    int
	DateMidPoints  int
	DateFarDays    int
	DateFarPoints  int

	// Normalizer chains applied to both sides of a comparison before
	// scoring, by registry name. An empty chain compares raw values.
	AddressNormalizers  []string
	CityNormalizers     []string
	ZipNormalizers      []string
	SiteNameNormalizers []string
	CustomerNormalizers []string

	PriorMatchPenalty int // subtracted when the job already has a confirmed match

	MinMatchScore           int // best score below this yields no match
	HighConfidenceThreshold int // at or above links the invoice without review

	// PriorLookupFailOpen controls what happens when the prior-match lookup
	// errors: true scores the candidate without the penalty, false skips the
	// candidate entirely.
	PriorLookupFailOpen bool
}

// DefaultConfig returns the default engine configuration
func DefaultConfig() Config {
	return Config{
		AddressExactPoints:    40,
		AddressFuzzyPoints:    25,
		AddressFuzzyThreshold: 0.6,

		CityPoints: 15,
		ZipPoints:  10,

		SiteNameContainmentPoints: 20,
		SiteNameFuzzyPoints:       10,
		SiteNameFuzzyThreshold:    0.5,

		CustomerPoints: 15,

		AddressNormalizers:  []string{"naddress"},
		CityNormalizers:     []string{"nname"},
		ZipNormalizers:      []string{"nzip"},
		SiteNameNormalizers: []string{"nname"},
		CustomerNormalizers: []string{"nname"},

		DateNearDays:   3,
		DateNearPoints: 15,
		DateMidDays:    7,
		DateMidPoints:  10,
		DateFarDays:    14,
		DateFarPoints:  5,

		PriorMatchPenalty: 50,

		MinMatchScore:           50,
		HighConfidenceThreshold: 70,

		PriorLookupFailOpen: true,
	}
}

// Engine scores invoices against candidate jobs and selects the winner.
type Engine struct {
	logger ectologger.Logger
	scorer *Scorer
	prior  PriorMatchChecker
	config Config
}

// NewEngine creates a new match engine
func NewEngine(logger ectologger.Logger, prior PriorMatchChecker, config Config) *Engine {
	return &Engine{
		logger: logger,
		scorer: NewScorer(),
		prior:  prior,
		config: config,
	}
}

// SelectMatch scores every candidate job and returns the best one, gated by
// MinMatchScore. Jobs must already be filtered to matchable statuses; their
// order decides ties because only a strictly greater score displaces the
// current best. SelectMatch never fails; candidates whose prior-match lookup
// errors degrade per PriorLookupFailOpen.
func (e *Engine) SelectMatch(ctx context.Context, tenantID string, inv *models.InvoiceExtraction, jobs []models.Job) models.MatchResult {
	ctx, span := tracing.StartSpan(ctx, "matching.Engine.SelectMatch")
	defer span.End()

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":       tenantID,
		"candidate_count": len(jobs),
	})

	bestScore := 0
	var bestJob *models.Job

	for i := range jobs {
		job := &jobs[i]

		score := e.ScoreJob(inv, job)

		prior, err := e.prior.HasConfirmedMatch(ctx, tenantID, job.ID)
		if err != nil {
			log.WithError(err).WithFields(map[string]any{"job_id": job.ID}).Warn("prior match lookup failed")
			if !e.config.PriorLookupFailOpen {
				continue
			}
			// fail open: score the candidate without the penalty
		} else if prior {
			score -= e.config.PriorMatchPenalty
		}

		log.WithFields(map[string]any{"job_id": job.ID, "score": score}).Debug("scored candidate job")

		if score > bestScore {
			bestScore = score
			bestJob = job
		}
	}

	if bestJob == nil || bestScore < e.config.MinMatchScore {
		log.WithFields(map[string]any{"best_score": bestScore}).Debug("no candidate met the minimum match score")
		return models.MatchResult{Score: bestScore}
	}

	confidence := models.MatchConfidenceMedium
	if bestScore >= e.config.HighConfidenceThreshold {
		confidence = models.MatchConfidenceHigh
	}

	log.WithFields(map[string]any{
		"job_id":     bestJob.ID,
		"score":      bestScore,
		"confidence": confidence,
	}).Info("selected matching job for invoice")

	jobID := bestJob.ID
	return models.MatchResult{
		JobID:      &jobID,
		Confidence: &confidence,
		Score:      bestScore,
	}
}

// ScoreJob computes the weighted score for one invoice-job pair. Each
// comparison runs both sides through its configured normalizer chain first;
// fields that are missing or normalize to empty contribute nothing.
func (e *Engine) ScoreJob(inv *models.InvoiceExtraction, job *models.Job) int {
	score := 0

	// Street address
	invAddr := normalizers.ApplyChain(deref(inv.ShipToAddress), e.config.AddressNormalizers...)
	jobAddr := normalizers.ApplyChain(deref(job.AddressStreet), e.config.AddressNormalizers...)
	if invAddr != "" && jobAddr != "" {
		if invAddr == jobAddr {
			score += e.config.AddressExactPoints
		} else if e.scorer.TokenSetSimilarity(invAddr, jobAddr) > e.config.AddressFuzzyThreshold {
			score += e.config.AddressFuzzyPoints
		}
	}

	// City
	if city := normalizers.ApplyChain(deref(inv.ShipToCity), e.config.CityNormalizers...); city != "" {
		jobCity := normalizers.ApplyChain(deref(job.AddressCity), e.config.CityNormalizers...)
		if e.scorer.ExactMatch(city, jobCity, false) == 1.0 {
			score += e.config.CityPoints
		}
	}

	// Zip
	if zip := normalizers.ApplyChain(deref(inv.ShipToZip), e.config.ZipNormalizers...); zip != "" {
		if zip == normalizers.ApplyChain(deref(job.AddressZip), e.config.ZipNormalizers...) {
			score += e.config.ZipPoints
		}
	}

	// Ship-to name vs job site name
	if siteName := normalizers.ApplyChain(deref(inv.ShipToName), e.config.SiteNameNormalizers...); siteName != "" {
		jobSite := normalizers.ApplyChain(deref(job.JobSiteName), e.config.SiteNameNormalizers...)
		if e.scorer.Containment(siteName, jobSite) {
			score += e.config.SiteNameContainmentPoints
		} else if e.scorer.TokenSetSimilarity(siteName, jobSite) > e.config.SiteNameFuzzyThreshold {
			score += e.config.SiteNameFuzzyPoints
		}
	}

	// Customer name
	if customer := normalizers.ApplyChain(deref(inv.CustomerName), e.config.CustomerNormalizers...); customer != "" {
		jobCustomer := normalizers.ApplyChain(deref(job.CustomerName), e.config.CustomerNormalizers...)
		if e.scorer.Containment(customer, jobCustomer) {
			score += e.config.CustomerPoints
		}
	}

	// Invoice date vs date out
	if invDate, ok := parseInvoiceDate(deref(inv.InvoiceDate)); ok && job.DateOut != nil {
		score += e.dateProximityPoints(e.scorer.DaysApart(invDate, *job.DateOut))
	}

	return score
}

func (e *Engine) dateProximityPoints(daysApart int) int {
	switch {
	case daysApart <= e.config.DateNearDays:
		return e.config.DateNearPoints
	case daysApart <= e.config.DateMidDays:
		return e.config.DateMidPoints
	case daysApart <= e.config.DateFarDays:
		return e.config.DateFarPoints
	default:
		return 0
	}
}

// invoiceDateLayouts covers the formats vendors actually print.
var invoiceDateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"01/02/2006",
	"1/2/2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

func parseInvoiceDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range invoiceDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
