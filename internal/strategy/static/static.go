// Package static extracts product attributes from server-rendered HTML
// using a plain HTTP fetch.
package static

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/fisatech/datasheet-harvester/internal/fields"
	"github.com/fisatech/datasheet-harvester/internal/harvester"
)

const (
	// DefaultTimeout bounds one HTTP fetch.
	DefaultTimeout = 15 * time.Second
	// DefaultPoolSize is the idle connection pool shared across requests.
	DefaultPoolSize = 25

	confidence = 0.7
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	PoolSize  int
}

// Strategy fetches pages with Colly and parses them with the shared field
// extraction passes. It is the universal fallback: any http(s) URL with a
// host is fair game.
type Strategy struct {
	cfg           Config
	baseCollector *colly.Collector
	clock         harvester.Clock
	logger        *zap.Logger
}

var _ harvester.Strategy = (*Strategy)(nil)

// New builds a Strategy.
func New(cfg Config, clock harvester.Clock, logger *zap.Logger) *Strategy {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DefaultPoolSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport(cfg.PoolSize))

	return &Strategy{
		cfg:           cfg,
		baseCollector: c,
		clock:         clock,
		logger:        logger,
	}
}

// Name implements harvester.Strategy.
func (s *Strategy) Name() string { return "static" }

// Method implements harvester.Strategy.
func (s *Strategy) Method() harvester.Method { return harvester.MethodStaticHTML }

// Confidence implements harvester.Strategy.
func (s *Strategy) Confidence() float64 { return confidence }

// CanHandle accepts any absolute http(s) URL.
func (s *Strategy) CanHandle(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Hostname() != ""
}

// Extract fetches the page and runs the field extraction passes.
func (s *Strategy) Extract(ctx context.Context, rawURL string) (*harvester.Record, error) {
	body, err := s.fetch(ctx, rawURL)
	if err != nil {
		return nil, &harvester.TransportError{URL: rawURL, Err: err}
	}

	doc, err := fields.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, &harvester.TransportError{URL: rawURL, Err: err}
	}

	rec := &harvester.Record{}
	doc.Apply(rec)
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

// fetch executes a single GET on a cloned collector so per-request hooks
// never leak between extractions.
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

func newHTTPTransport(poolSize int) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          poolSize,
		MaxIdleConnsPerHost:   poolSize,
		IdleConnTimeout:       90 * time.Second,
	}
}
