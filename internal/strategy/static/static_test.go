package static

import (
	"context"
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

const productPage = `<!DOCTYPE html>
<html><body>
<h1>Switch enclosure</h1>
<table>
  <tr><td>EAN</td><td>4016779657437</td></tr>
  <tr><td>Width</td><td>300 mm</td></tr>
  <tr><td>Height</td><td>400 mm</td></tr>
  <tr><td>Depth</td><td>155 mm</td></tr>
  <tr><td>Weight</td><td>4,5 kg</td></tr>
  <tr><td>Finish</td><td>RAL 7035 - Light Grey</td></tr>
</table>
</body></html>`

func TestCanHandle(t *testing.T) {
	s := New(Config{}, fixedClock{}, nil)

	assert.True(t, s.CanHandle("https://example.com/p/1"))
	assert.True(t, s.CanHandle("http://example.com"))
	assert.False(t, s.CanHandle("ftp://example.com"))
	assert.False(t, s.CanHandle("not a url"))
	assert.False(t, s.CanHandle("/relative/path"))
}

func TestExtractProductPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(productPage))
	}))
	defer srv.Close()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := New(Config{Timeout: 5 * time.Second}, fixedClock{now: now}, nil)

	rec, err := s.Extract(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "4016779657437", rec.EAN)
	assert.Equal(t, "RAL 7035", rec.RALCode)
	assert.InDelta(t, 300, rec.WidthMM, 1e-9)
	assert.InDelta(t, 400, rec.HeightMM, 1e-9)
	assert.InDelta(t, 155, rec.DepthMM, 1e-9)
	assert.InDelta(t, 4.5, rec.WeightKG, 1e-9)
	assert.Equal(t, 1, rec.PackageUnits, "package units default to one")
	assert.Equal(t, harvester.MethodStaticHTML, rec.Method)
	assert.Equal(t, srv.URL, rec.SourceURL)
	assert.Equal(t, now, rec.ExtractedAt)
	assert.Greater(t, rec.Confidence, 0.9, "full record with identifier and dimensions scores high")
}

func TestExtractEmptyPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><p>Nothing for sale here.</p></body></html>`))
	}))
	defer srv.Close()

	s := New(Config{Timeout: 5 * time.Second}, fixedClock{}, nil)

	_, err := s.Extract(context.Background(), srv.URL)
	var empty *harvester.ExtractionEmptyError
	require.ErrorAs(t, err, &empty)
	assert.True(t, harvester.IsRetryable(err))
}

func TestExtractServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := New(Config{Timeout: 5 * time.Second}, fixedClock{}, nil)

	_, err := s.Extract(context.Background(), srv.URL)
	var transport *harvester.TransportError
	require.ErrorAs(t, err, &transport)
	assert.True(t, harvester.IsRetryable(err))
}

func TestExtractUnreachableHost(t *testing.T) {
	s := New(Config{Timeout: time.Second}, fixedClock{}, nil)

	_, err := s.Extract(context.Background(), "http://127.0.0.1:1/nope")
	var transport *harvester.TransportError
	require.ErrorAs(t, err, &transport)
}
