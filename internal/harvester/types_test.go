package harvester

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordIsValid(t *testing.T) {
	t.Run("empty record is invalid", func(t *testing.T) {
		assert.False(t, (&Record{}).IsValid())
	})

	t.Run("nil record is invalid", func(t *testing.T) {
		var r *Record
		assert.False(t, r.IsValid())
	})

	t.Run("single field makes it valid", func(t *testing.T) {
		cases := map[string]Record{
			"ean":    {EAN: "4016779657437"},
			"ral":    {RALCode: "RAL 7035"},
			"width":  {WidthMM: 600},
			"units":  {PackageUnits: 1},
			"weight": {WeightKG: 12.5},
		}
		for name, rec := range cases {
			t.Run(name, func(t *testing.T) {
				assert.True(t, rec.IsValid())
			})
		}
	})
}

func TestRecordCompleteness(t *testing.T) {
	rec := &Record{EAN: "12345678", RALCode: "RAL 9005", WidthMM: 100}
	assert.Equal(t, 3, rec.FilledFields())
	assert.InDelta(t, 3.0/7.0, rec.Completeness(), 1e-9)

	full := &Record{
		EAN: "12345678", RALCode: "RAL 9005",
		WidthMM: 1, HeightMM: 2, DepthMM: 3,
		PackageUnits: 4, WeightKG: 5,
	}
	assert.Equal(t, 7, full.FilledFields())
	assert.True(t, full.HasAllDimensions())
}

func TestAttemptResultSuccessful(t *testing.T) {
	ok := &AttemptResult{Outcome: OutcomeCompleted, Record: &Record{EAN: "12345678"}}
	assert.True(t, ok.Successful())

	noRecord := &AttemptResult{Outcome: OutcomeCompleted}
	assert.False(t, noRecord.Successful())

	failed := &AttemptResult{Outcome: OutcomeFailed, ErrorMessage: "boom"}
	assert.False(t, failed.Successful())
	assert.Zero(t, failed.ConfidenceScore())

	ok.Record.Confidence = 0.6
	assert.InDelta(t, 0.6, ok.ConfidenceScore(), 1e-9)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&TransportError{URL: "http://x", Err: assert.AnError}))
	assert.True(t, IsRetryable(&ExtractionEmptyError{URL: "http://x"}))
	assert.False(t, IsRetryable(&NoStrategyError{URL: "http://x"}))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(nil))
}
