package matching

import (
	"context"
	"errors"
	"testing"
	"time"

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

type fakePriorChecker struct {
	confirmed map[string]bool
	err       error
}

func (f *fakePriorChecker) HasConfirmedMatch(ctx context.Context, tenantID, jobID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.confirmed[jobID], nil
}

func strPtr(s string) *string { return &s }

// strongInvoice pairs with strongJob for an 80-point score: exact address
// (40), city (15), zip (10), customer containment (15).
func strongInvoice() *models.InvoiceExtraction {
	return &models.InvoiceExtraction{
		ShipToAddress: strPtr("123 Main Street"),
		ShipToCity:    strPtr("Portland"),
		ShipToZip:     strPtr("97201"),
		CustomerName:  strPtr("Acme"),
	}
}

func strongJob(id string) models.Job {
	return models.Job{
		ID:            id,
		AddressStreet: strPtr("123 Main St."),
		AddressCity:   strPtr("portland"),
		AddressZip:    strPtr("97201"),
		CustomerName:  strPtr("Acme Construction"),
		Status:        models.JobStatusCompleted,
	}
}

func TestSelectMatch_ExactAddressHighConfidence(t *testing.T) {
	engine := NewEngine(testLogger(), &fakePriorChecker{}, DefaultConfig())

	result := engine.SelectMatch(context.Background(), "t1", strongInvoice(), []models.Job{strongJob("job-1")})

	require.True(t, result.Matched())
	assert.Equal(t, "job-1", *result.JobID)
	assert.Equal(t, 80, result.Score)
	assert.Equal(t, models.MatchConfidenceHigh, *result.Confidence)
}

func TestSelectMatch_ScoreBoundaries(t *testing.T) {
	tests := []struct {
		name       string
		points     int
		matched    bool
		confidence models.MatchConfidence
	}{
		{"one below the gate", 49, false, ""},
		{"at the gate", 50, true, models.MatchConfidenceMedium},
		{"one below high confidence", 69, true, models.MatchConfidenceMedium},
		{"at high confidence", 70, true, models.MatchConfidenceHigh},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.AddressExactPoints = tc.points

			engine := NewEngine(testLogger(), &fakePriorChecker{}, cfg)

			inv := &models.InvoiceExtraction{ShipToAddress: strPtr("123 Main Street")}
			job := models.Job{ID: "job-1", AddressStreet: strPtr("123 Main St")}

			result := engine.SelectMatch(context.Background(), "t1", inv, []models.Job{job})

			assert.Equal(t, tc.points, result.Score)
			assert.Equal(t, tc.matched, result.Matched())
			if tc.matched {
				require.NotNil(t, result.Confidence)
				assert.Equal(t, tc.confidence, *result.Confidence)
			} else {
				assert.Nil(t, result.Confidence)
			}
		})
	}
}

func TestSelectMatch_BelowGate(t *testing.T) {
	engine := NewEngine(testLogger(), &fakePriorChecker{}, DefaultConfig())

	// Fuzzy address (25) + zip (10) = 45, below the gate.
	inv := &models.InvoiceExtraction{
		ShipToAddress: strPtr("123 Main St"),
		ShipToZip:     strPtr("97201"),
	}
	job := models.Job{
		ID:            "job-1",
		AddressStreet: strPtr("123 Main Street Apt"),
		AddressZip:    strPtr("97201"),
	}

	result := engine.SelectMatch(context.Background(), "t1", inv, []models.Job{job})

	assert.False(t, result.Matched())
	assert.Nil(t, result.JobID)
	assert.Nil(t, result.Confidence)
	assert.Equal(t, 45, result.Score)
}

func TestSelectMatch_NoCandidates(t *testing.T) {
	engine := NewEngine(testLogger(), &fakePriorChecker{}, DefaultConfig())

	result := engine.SelectMatch(context.Background(), "t1", strongInvoice(), nil)

	assert.False(t, result.Matched())
	assert.Equal(t, 0, result.Score)
}

func TestSelectMatch_PriorPenaltyFlipsWinner(t *testing.T) {
	prior := &fakePriorChecker{confirmed: map[string]bool{"job-a": true}}
	engine := NewEngine(testLogger(), prior, DefaultConfig())

	// job-a would score 80 but carries a confirmed match (-50 -> 30);
	// job-b scores 65 and wins.
	jobA := strongJob("job-a")
	jobB := strongJob("job-b")
	jobB.CustomerName = strPtr("Other Co") // drop customer points: 80 -> 65

	result := engine.SelectMatch(context.Background(), "t1", strongInvoice(), []models.Job{jobA, jobB})

	require.True(t, result.Matched())
	assert.Equal(t, "job-b", *result.JobID)
	assert.Equal(t, 65, result.Score)
	assert.Equal(t, models.MatchConfidenceMedium, *result.Confidence)
}

func TestSelectMatch_PriorPenaltyBelowGate(t *testing.T) {
	prior := &fakePriorChecker{confirmed: map[string]bool{"job-1": true}}
	engine := NewEngine(testLogger(), prior, DefaultConfig())

	result := engine.SelectMatch(context.Background(), "t1", strongInvoice(), []models.Job{strongJob("job-1")})

	assert.False(t, result.Matched())
	assert.Equal(t, 30, result.Score)
}

func TestSelectMatch_TieKeepsFirstCandidate(t *testing.T) {
	engine := NewEngine(testLogger(), &fakePriorChecker{}, DefaultConfig())

	jobs := []models.Job{strongJob("job-first"), strongJob("job-second")}

	result := engine.SelectMatch(context.Background(), "t1", strongInvoice(), jobs)

	require.True(t, result.Matched())
	assert.Equal(t, "job-first", *result.JobID)
}

func TestSelectMatch_PriorLookupFailure(t *testing.T) {
	t.Run("fail open scores without the penalty", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.PriorLookupFailOpen = true
		prior := &fakePriorChecker{err: errors.New("connection refused")}
		engine := NewEngine(testLogger(), prior, cfg)

		result := engine.SelectMatch(context.Background(), "t1", strongInvoice(), []models.Job{strongJob("job-1")})

		require.True(t, result.Matched())
		assert.Equal(t, 80, result.Score)
	})

	t.Run("fail closed skips the candidate", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.PriorLookupFailOpen = false
		prior := &fakePriorChecker{err: errors.New("connection refused")}
		engine := NewEngine(testLogger(), prior, cfg)

		result := engine.SelectMatch(context.Background(), "t1", strongInvoice(), []models.Job{strongJob("job-1")})

		assert.False(t, result.Matched())
		assert.Equal(t, 0, result.Score)
	})
}

func TestSelectMatch_Deterministic(t *testing.T) {
	engine := NewEngine(testLogger(), &fakePriorChecker{}, DefaultConfig())

	jobs := []models.Job{strongJob("job-a"), strongJob("job-b"), strongJob("job-c")}

	first := engine.SelectMatch(context.Background(), "t1", strongInvoice(), jobs)
	second := engine.SelectMatch(context.Background(), "t1", strongInvoice(), jobs)

	require.True(t, first.Matched())
	assert.Equal(t, *first.JobID, *second.JobID)
	assert.Equal(t, first.Score, second.Score)
}

func TestScoreJob_EmptyInvoiceFields(t *testing.T) {
	engine := NewEngine(testLogger(), &fakePriorChecker{}, DefaultConfig())

	job := strongJob("job-1")
	assert.Equal(t, 0, engine.ScoreJob(&models.InvoiceExtraction{}, &job))
}

func TestScoreJob_SiteName(t *testing.T) {
	engine := NewEngine(testLogger(), &fakePriorChecker{}, DefaultConfig())

	t.Run("containment", func(t *testing.T) {
		inv := &models.InvoiceExtraction{ShipToName: strPtr("Acme Warehouse")}
		job := models.Job{JobSiteName: strPtr("Warehouse")}
		assert.Equal(t, 20, engine.ScoreJob(inv, &job))
	})

	t.Run("fuzzy overlap", func(t *testing.T) {
		// {acme, main, warehouse} vs {acme, warehouse}: 2/3 over the 0.5 bar
		inv := &models.InvoiceExtraction{ShipToName: strPtr("Acme Main Warehouse")}
		job := models.Job{JobSiteName: strPtr("Acme Warehouse")}
		assert.Equal(t, 10, engine.ScoreJob(inv, &job))
	})

	t.Run("no relation", func(t *testing.T) {
		inv := &models.InvoiceExtraction{ShipToName: strPtr("Acme")}
		job := models.Job{JobSiteName: strPtr("Apex")}
		assert.Equal(t, 0, engine.ScoreJob(inv, &job))
	})
}

func TestScoreJob_NormalizerChains(t *testing.T) {
	engine := NewEngine(testLogger(), &fakePriorChecker{}, DefaultConfig())

	t.Run("zip formatting differences still match", func(t *testing.T) {
		inv := &models.InvoiceExtraction{ShipToZip: strPtr(" 97201 ")}
		job := models.Job{AddressZip: strPtr("97201")}
		assert.Equal(t, 10, engine.ScoreJob(inv, &job))
	})

	t.Run("malformed zip scores nothing even when equal", func(t *testing.T) {
		inv := &models.InvoiceExtraction{ShipToZip: strPtr("9720")}
		job := models.Job{AddressZip: strPtr("9720")}
		assert.Equal(t, 0, engine.ScoreJob(inv, &job))
	})

	t.Run("punctuated customer name still contains", func(t *testing.T) {
		inv := &models.InvoiceExtraction{CustomerName: strPtr("Acme, Inc.")}
		job := models.Job{CustomerName: strPtr("acme inc")}
		assert.Equal(t, 15, engine.ScoreJob(inv, &job))
	})

	t.Run("empty chain compares raw values", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.CustomerNormalizers = nil
		raw := NewEngine(testLogger(), &fakePriorChecker{}, cfg)

		inv := &models.InvoiceExtraction{CustomerName: strPtr("Acme, Inc.")}
		job := models.Job{CustomerName: strPtr("acme inc")}
		assert.Equal(t, 0, raw.ScoreJob(inv, &job))
	})
}

func TestScoreJob_DateProximity(t *testing.T) {
	engine := NewEngine(testLogger(), &fakePriorChecker{}, DefaultConfig())

	dateOut := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		date   string
		points int
	}{
		{"same day", "2026-03-10", 15},
		{"three days", "2026-03-13", 15},
		{"seven days", "2026-03-17", 10},
		{"fourteen days", "2026-03-24", 5},
		{"fifteen days", "2026-03-25", 0},
		{"unparseable date", "soon", 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			inv := &models.InvoiceExtraction{InvoiceDate: strPtr(tc.date)}
			job := models.Job{DateOut: &dateOut}
			assert.Equal(t, tc.points, engine.ScoreJob(inv, &job))
		})
	}
}

func TestScoreJob_DateFormats(t *testing.T) {
	engine := NewEngine(testLogger(), &fakePriorChecker{}, DefaultConfig())

	dateOut := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	job := models.Job{DateOut: &dateOut}

	for _, date := range []string{"2026-03-10", "03/10/2026", "3/10/2026", "March 10, 2026", "Mar 10, 2026"} {
		inv := &models.InvoiceExtraction{InvoiceDate: strPtr(date)}
		assert.Equal(t, 15, engine.ScoreJob(inv, &job), "date format %q", date)
	}
}
