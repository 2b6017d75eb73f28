package aidoc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fisatech/datasheet-harvester/internal/harvester"
)

type fixedClock struct {
	now time.Time
}

func (f fixedClock) Now() time.Time { return f.now }

type fakeAnalyzer struct {
	analysis Analysis
	err      error
	gotDoc   string
}

func (f *fakeAnalyzer) Analyze(_ context.Context, _, document string) (Analysis, error) {
	f.gotDoc = document
	return f.analysis, f.err
}

func pageServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><p>Enclosure, light grey, 300x400x155 mm</p></body></html>`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewRequiresAnalyzer(t *testing.T) {
	_, err := New(Config{}, nil, fixedClock{}, nil)
	assert.Error(t, err)
}

func TestExtractAcceptsConfidentFields(t *testing.T) {
	srv := pageServer(t)
	analyzer := &fakeAnalyzer{analysis: Analysis{
		"ean":           {Value: "4016779657437", Confidence: 0.97},
		"ral_code":      {Value: "RAL 7035", Confidence: 0.92},
		"width_mm":      {Value: "300", Confidence: 0.9},
		"height_mm":     {Value: "400", Confidence: 0.9},
		"depth_mm":      {Value: "155", Confidence: 0.85},
		"weight_kg":     {Value: "4,5", Confidence: 0.88},
		"package_units": {Value: "2", Confidence: 0.81},
	}}

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s, err := New(Config{}, analyzer, fixedClock{now: now}, nil)
	require.NoError(t, err)

	rec, err := s.Extract(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "4016779657437", rec.EAN)
	assert.Equal(t, "RAL 7035", rec.RALCode)
	assert.InDelta(t, 300, rec.WidthMM, 1e-9)
	assert.InDelta(t, 400, rec.HeightMM, 1e-9)
	assert.InDelta(t, 155, rec.DepthMM, 1e-9)
	assert.InDelta(t, 4.5, rec.WeightKG, 1e-9)
	assert.Equal(t, 2, rec.PackageUnits)
	assert.Equal(t, harvester.MethodAIDocument, rec.Method)
	assert.Equal(t, now, rec.ExtractedAt)
	assert.Contains(t, analyzer.gotDoc, "light grey", "analyzer receives the page text")
}

func TestExtractGatesLowConfidenceFields(t *testing.T) {
	srv := pageServer(t)
	analyzer := &fakeAnalyzer{analysis: Analysis{
		"ean":      {Value: "4016779657437", Confidence: 0.95},
		"ral_code": {Value: "RAL 9005", Confidence: 0.4},
		"width_mm": {Value: "300", Confidence: 0.79},
	}}

	s, err := New(Config{}, analyzer, fixedClock{}, nil)
	require.NoError(t, err)

	rec, err := s.Extract(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "4016779657437", rec.EAN)
	assert.Empty(t, rec.RALCode, "low-confidence color proposal is dropped")
	assert.Zero(t, rec.WidthMM, "proposal just under the gate is dropped")
}

func TestExtractAllFieldsGatedIsEmpty(t *testing.T) {
	srv := pageServer(t)
	analyzer := &fakeAnalyzer{analysis: Analysis{
		"ean": {Value: "4016779657437", Confidence: 0.1},
	}}

	s, err := New(Config{}, analyzer, fixedClock{}, nil)
	require.NoError(t, err)

	_, err = s.Extract(context.Background(), srv.URL)
	var empty *harvester.ExtractionEmptyError
	require.ErrorAs(t, err, &empty)
}

func TestExtractAnalyzerFailure(t *testing.T) {
	srv := pageServer(t)
	analyzer := &fakeAnalyzer{err: errors.New("model overloaded")}

	s, err := New(Config{}, analyzer, fixedClock{}, nil)
	require.NoError(t, err)

	_, err = s.Extract(context.Background(), srv.URL)
	var transport *harvester.TransportError
	require.ErrorAs(t, err, &transport)
	assert.True(t, harvester.IsRetryable(err))
}

func TestParseAnalysisToleratesFences(t *testing.T) {
	reply := "Here you go:\n```json\n{\"ean\": {\"value\": \"40167796\", \"confidence\": 0.9}}\n```"
	analysis, err := parseAnalysis(reply)
	require.NoError(t, err)
	assert.Equal(t, "40167796", analysis["ean"].Value)

	_, err = parseAnalysis("no json here")
	assert.Error(t, err)
}
