// Package aidoc extracts product attributes by handing the page document
// to a language model and gating each returned field on its confidence.
package aidoc

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/fisatech/datasheet-harvester/internal/fields"
	"github.com/fisatech/datasheet-harvester/internal/harvester"
)

const (
	// MinFieldConfidence is the per-field acceptance gate for model output.
	MinFieldConfidence = 0.8
	// DefaultTimeout bounds the page fetch, not the model call.
	DefaultTimeout = 15 * time.Second

	confidence = 0.95
)

// FieldScore is one model-proposed value with its self-reported confidence.
type FieldScore struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// Analysis maps canonical field names (ean, ral_code, width_mm, height_mm,
// depth_mm, weight_kg, package_units) to proposed values.
type Analysis map[string]FieldScore

// Analyzer turns a page document into field proposals. The SDK-backed
// implementation lives in this package; tests substitute fakes.
type Analyzer interface {
	Analyze(ctx context.Context, pageURL, document string) (Analysis, error)
}

// Config controls the document strategy.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Strategy fetches the page, sends its text to the Analyzer, and keeps
// every proposal that clears the confidence gate.
type Strategy struct {
	cfg           Config
	analyzer      Analyzer
	baseCollector *colly.Collector
	clock         harvester.Clock
	logger        *zap.Logger
}

var _ harvester.Strategy = (*Strategy)(nil)

// New builds a Strategy around an Analyzer.
func New(cfg Config, analyzer Analyzer, clock harvester.Clock, logger *zap.Logger) (*Strategy, error) {
	if analyzer == nil {
		return nil, fmt.Errorf("analyzer is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 15 * time.Second,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
	})

	return &Strategy{
		cfg:           cfg,
		analyzer:      analyzer,
		baseCollector: c,
		clock:         clock,
		logger:        logger,
	}, nil
}

// Name implements harvester.Strategy.
func (s *Strategy) Name() string { return "aidoc" }

// Method implements harvester.Strategy.
func (s *Strategy) Method() harvester.Method { return harvester.MethodAIDocument }

// Confidence implements harvester.Strategy.
func (s *Strategy) Confidence() float64 { return confidence }

// CanHandle accepts any absolute http(s) URL; whether this strategy is
// actually chosen is the selector's preference decision.
func (s *Strategy) CanHandle(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Hostname() != ""
}

// Extract fetches the page, asks the analyzer for field proposals, and
// builds a record from the proposals that clear the confidence gate.
func (s *Strategy) Extract(ctx context.Context, rawURL string) (*harvester.Record, error) {
	body, err := s.fetch(ctx, rawURL)
	if err != nil {
		return nil, &harvester.TransportError{URL: rawURL, Err: err}
	}

	doc, err := fields.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, &harvester.TransportError{URL: rawURL, Err: err}
	}

	analysis, err := s.analyzer.Analyze(ctx, rawURL, doc.Text())
	if err != nil {
		return nil, &harvester.TransportError{URL: rawURL, Err: fmt.Errorf("analyze document: %w", err)}
	}

	rec := &harvester.Record{}
	s.applyAnalysis(analysis, rec)
	if !rec.IsValid() {
		return nil, &harvester.ExtractionEmptyError{URL: rawURL}
	}

	fields.ApplyDefaults(rec)
	rec.Confidence = fields.Confidence(rec)
	rec.SourceURL = rawURL
	rec.Method = s.Method()
	rec.ExtractedAt = s.clock.Now()
	return rec, nil
}

func (s *Strategy) applyAnalysis(analysis Analysis, rec *harvester.Record) {
	accepted := func(name string) (string, bool) {
		fs, ok := analysis[name]
		if !ok || fs.Value == "" || fs.Confidence < MinFieldConfidence {
			return "", false
		}
		return fs.Value, true
	}

	if v, ok := accepted("ean"); ok {
		rec.EAN = fields.EAN(v)
	}
	if v, ok := accepted("ral_code"); ok {
		rec.RALCode = fields.RAL(v)
	}
	if v, ok := accepted("width_mm"); ok {
		if f, good := fields.Numeric(v); good {
			rec.WidthMM = f
		}
	}
	if v, ok := accepted("height_mm"); ok {
		if f, good := fields.Numeric(v); good {
			rec.HeightMM = f
		}
	}
	if v, ok := accepted("depth_mm"); ok {
		if f, good := fields.Numeric(v); good {
			rec.DepthMM = f
		}
	}
	if v, ok := accepted("weight_kg"); ok {
		if f, good := fields.Numeric(v); good {
			rec.WeightKG = f
		}
	}
	if v, ok := accepted("package_units"); ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			rec.PackageUnits = n
		}
	}
}

func (s *Strategy) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	collector := s.baseCollector.Clone()
	if s.cfg.UserAgent != "" {
		collector.UserAgent = s.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(s.cfg.Timeout)

	var (
		body     []byte
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("visit failed: %w", err)
		}
		if fetchErr != nil {
			return nil, fmt.Errorf("response failed: %w", fetchErr)
		}
		return body, nil
	}
}
