// Package rendered extracts product attributes from JavaScript-heavy pages
// by executing them in headless Chrome.
package rendered

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/fisatech/datasheet-harvester/internal/fields"
	"github.com/fisatech/datasheet-harvester/internal/harvester"
)

const (
	// DefaultNavigationTimeout bounds one page render.
	DefaultNavigationTimeout = 45 * time.Second
	// DefaultMaxParallel bounds concurrent browser tabs.
	DefaultMaxParallel = 2

	confidence = 0.9
)

// jsHeavyMarkers flag hosts that serve client-rendered storefronts where a
// plain fetch returns an empty shell.
var jsHeavyMarkers = []string{
	"angular", "react", "vue", "spa", "shopify", "wix", "squarespace",
}

// Config controls the behavior of the headless strategy.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// Hosts extends the built-in client-rendered host markers.
	Hosts []string
}

// Strategy renders pages with chromedp before running the shared field
// extraction passes.
type Strategy struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
	clock       harvester.Clock
	logger      *zap.Logger
}

var _ harvester.Strategy = (*Strategy)(nil)

// New creates a headless strategy backed by chromedp.
func New(cfg Config, clock harvester.Clock, logger *zap.Logger) (*Strategy, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.MaxParallel == 0 {
		cfg.MaxParallel = DefaultMaxParallel
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = DefaultNavigationTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Strategy{
		cfg:         cfg,
		limiter:     make(chan struct{}, cfg.MaxParallel),
		allocator:   allocCtx,
		allocCancel: allocCancel,
		clock:       clock,
		logger:      logger,
	}, nil
}

// Close cancels the allocator context.
func (s *Strategy) Close() {
	s.allocCancel()
}

// Name implements harvester.Strategy.
func (s *Strategy) Name() string { return "rendered" }

// Method implements harvester.Strategy.
func (s *Strategy) Method() harvester.Method { return harvester.MethodRendered }

// Confidence implements harvester.Strategy.
func (s *Strategy) Confidence() float64 { return confidence }

// CanHandle accepts http(s) URLs whose host carries a client-rendered
// storefront marker.
func (s *Strategy) CanHandle(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, marker := range jsHeavyMarkers {
		if strings.Contains(host, marker) {
			return true
		}
	}
	for _, marker := range s.cfg.Hosts {
		if strings.Contains(host, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}

// Extract renders the page in a browser tab and runs the field extraction
// passes against the settled DOM.
func (s *Strategy) Extract(ctx context.Context, rawURL string) (*harvester.Record, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, &harvester.TransportError{URL: rawURL, Err: err}
	}
	defer s.release()

	taskCtx, taskCancel := chromedp.NewContext(s.allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, s.cfg.NavigationTimeout)
	defer cancel()

	html, err := s.render(taskCtx, rawURL)
	if err != nil {
		return nil, &harvester.TransportError{URL: rawURL, Err: err}
	}

	doc, err := fields.Parse(strings.NewReader(html))
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

func (s *Strategy) render(ctx context.Context, rawURL string) (string, error) {
	var html string
	actions := []chromedp.Action{
		s.networkSetupAction(),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		// Give client frameworks a beat to hydrate the product detail.
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, nil
}

func (s *Strategy) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if s.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(s.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (s *Strategy) acquire(ctx context.Context) error {
	select {
	case s.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("browser slot wait canceled: %w", ctx.Err())
	}
}

func (s *Strategy) release() {
	select {
	case <-s.limiter:
	default:
	}
}
