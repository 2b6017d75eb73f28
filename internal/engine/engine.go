// Package engine orchestrates batch extraction: cache lookup, strategy
// selection, rate limiting, bounded concurrency and retries.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/fisatech/datasheet-harvester/internal/harvester"
	"github.com/fisatech/datasheet-harvester/internal/strategy"
	"github.com/fisatech/datasheet-harvester/internal/telemetry"
)

// Defaults applied when Config fields are zero.
const (
	DefaultConcurrentRequests = 5
	DefaultRetryAttempts      = 3
	DefaultRetryDelay         = time.Second
	DefaultRequestsPerSecond  = 2.0
)

// Config tunes batch processing. It is echoed verbatim in Statistics, so
// the fields carry JSON tags.
type Config struct {
	// ConcurrentRequests caps in-flight extractions per batch.
	ConcurrentRequests int `json:"concurrent_requests"`
	// RetryAttempts is the total number of tries per URL.
	RetryAttempts int `json:"retry_attempts"`
	// RetryDelay is the base backoff; the wait grows linearly with the
	// attempt number.
	RetryDelay time.Duration `json:"retry_delay_ns"`
	// RequestsPerSecond is the per-host rate limit.
	RequestsPerSecond float64 `json:"requests_per_second"`
	// RateBurst is the per-host token bucket depth.
	RateBurst int `json:"rate_burst"`
}

func (c *Config) applyDefaults() {
	if c.ConcurrentRequests <= 0 {
		c.ConcurrentRequests = DefaultConcurrentRequests
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = DefaultRetryAttempts
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = DefaultRequestsPerSecond
	}
}

// ProcessOptions carries per-batch callbacks. Both are optional and are
// invoked from worker goroutines as URLs finish, in completion order.
// OnProgress receives the URL that just finished.
type ProcessOptions struct {
	OnProgress func(done, total int, url string)
	OnResult   func(*harvester.AttemptResult)
}

// Statistics is a point-in-time snapshot of engine counters, including
// the cache hit rate over all lookups and the active configuration.
type Statistics struct {
	Processed    int             `json:"processed"`
	Total        int             `json:"total"`
	Succeeded    int             `json:"succeeded"`
	Failed       int             `json:"failed"`
	CacheHits    int             `json:"cache_hits"`
	CacheMisses  int             `json:"cache_misses"`
	CacheHitRate float64         `json:"cache_hit_rate"`
	Strategies   []strategy.Info `json:"strategies"`
	Config       Config          `json:"config"`
}

// CheckReport is the outcome of a single-URL diagnostic: which strategy
// handled it, whether the result came from the cache, and the attempt
// itself.
type CheckReport struct {
	URL      string                   `json:"url"`
	Strategy string                   `json:"strategy"`
	Method   string                   `json:"method"`
	Cached   bool                     `json:"cached"`
	Attempt  *harvester.AttemptResult `json:"attempt,omitempty"`
}

// Engine processes batches of product URLs into attempt results.
type Engine struct {
	cfg      Config
	selector *strategy.Selector
	cache    harvester.ResultCache
	clock    harvester.Clock
	logger   *zap.Logger
	limiter  *hostLimiter

	done     chan struct{}
	stopOnce sync.Once

	mu          sync.Mutex
	processed   int
	total       int
	succeeded   int
	failed      int
	cacheHits   int
	cacheMisses int
}

// New builds an Engine.
func New(cfg Config, selector *strategy.Selector, cache harvester.ResultCache, clock harvester.Clock, logger *zap.Logger) (*Engine, error) {
	if selector == nil {
		return nil, harvester.ErrNoStrategies
	}
	if cache == nil {
		return nil, fmt.Errorf("result cache is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.applyDefaults()

	return &Engine{
		cfg:      cfg,
		selector: selector,
		cache:    cache,
		clock:    clock,
		logger:   logger,
		limiter:  newHostLimiter(cfg.RequestsPerSecond, cfg.RateBurst),
		done:     make(chan struct{}),
	}, nil
}

// Stop aborts in-flight batches. Safe to call more than once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.done) })
}

// ProcessBatch processes every target and returns exactly one result per
// input, ordered by completion. A canceled context fails the remaining
// targets rather than dropping them.
func (e *Engine) ProcessBatch(ctx context.Context, targets []harvester.Target, opts ProcessOptions) ([]*harvester.AttemptResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-e.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	total := len(targets)
	e.countTargets(total)
	results := make([]*harvester.AttemptResult, 0, total)
	var (
		resultsMu sync.Mutex
		wg        sync.WaitGroup
	)
	sem := semaphore.NewWeighted(int64(e.cfg.ConcurrentRequests))

	collect := func(attempt *harvester.AttemptResult) {
		resultsMu.Lock()
		results = append(results, attempt)
		done := len(results)
		resultsMu.Unlock()

		if opts.OnResult != nil {
			opts.OnResult(attempt)
		}
		if opts.OnProgress != nil {
			opts.OnProgress(done, total, attempt.URL)
		}
	}

	for _, target := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				collect(e.failedAttempt(target, 0, time.Time{}, err))
				return
			}
			defer sem.Release(1)
			collect(e.processOne(ctx, target))
		}()
	}
	wg.Wait()

	e.logger.Info("batch finished",
		zap.Int("targets", total),
		zap.Int("results", len(results)))
	return results, ctx.Err()
}

// processOne runs the full cache/extract/retry pipeline for one target. A
// panicking strategy fails its own URL only.
func (e *Engine) processOne(ctx context.Context, target harvester.Target) (attempt *harvester.AttemptResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("extraction panicked",
				zap.String("url", target.URL), zap.Any("panic", r))
			attempt = e.failedAttempt(target, 0, start, fmt.Errorf("panic: %v", r))
		}
	}()

	if cached, ok := e.cache.Get(ctx, target.URL); ok {
		e.countCache(true)
		hit := *cached
		hit.RowRef = target.RowRef
		e.countResult(hit.Successful())
		return &hit
	}
	e.countCache(false)

	st := e.selector.Select(target.URL)
	attempt = e.extractWithRetries(ctx, st, target, start)
	e.cache.Put(ctx, target.URL, attempt)
	e.countResult(attempt.Successful())
	return attempt
}

func (e *Engine) extractWithRetries(ctx context.Context, st harvester.Strategy, target harvester.Target, start time.Time) *harvester.AttemptResult {
	host := telemetry.SanitizeHost(target.URL)
	var (
		lastErr  error
		attempts int
	)

	for attemptNo := 1; attemptNo <= e.cfg.RetryAttempts; attemptNo++ {
		if err := e.limiter.wait(ctx, target.URL); err != nil {
			lastErr = err
			break
		}
		attempts = attemptNo

		telemetry.IncActiveWorkers()
		extractStart := time.Now()
		rec, err := st.Extract(ctx, target.URL)
		telemetry.ObserveExtraction(string(st.Method()), time.Since(extractStart))
		telemetry.DecActiveWorkers()

		if err == nil {
			telemetry.ObservePage(string(st.Method()), "success")
			return &harvester.AttemptResult{
				URL:            target.URL,
				RowRef:         target.RowRef,
				Outcome:        harvester.OutcomeCompleted,
				Record:         rec,
				Attempts:       attemptNo,
				ElapsedSeconds: time.Since(start).Seconds(),
				Method:         string(st.Method()),
				CreatedAt:      e.clock.Now(),
			}
		}

		lastErr = err
		telemetry.ObservePage(string(st.Method()), "failure")
		if !harvester.IsRetryable(err) {
			break
		}
		if attemptNo == e.cfg.RetryAttempts {
			break
		}

		telemetry.ObserveRetry(host)
		e.logger.Debug("retrying extraction",
			zap.String("url", target.URL),
			zap.Int("attempt", attemptNo),
			zap.Error(err))
		// Linear backoff: delay, 2*delay, 3*delay, ...
		select {
		case <-time.After(e.cfg.RetryDelay * time.Duration(attemptNo)):
		case <-ctx.Done():
			return e.attemptFailure(target, attempts, start, ctx.Err())
		}
	}

	return e.attemptFailure(target, attempts, start, lastErr)
}

func (e *Engine) attemptFailure(target harvester.Target, attempts int, start time.Time, err error) *harvester.AttemptResult {
	msg := "unknown failure"
	if err != nil {
		msg = err.Error()
	}
	e.logger.Warn("extraction failed",
		zap.String("url", target.URL),
		zap.Int("attempts", attempts),
		zap.String("error", msg))
	return &harvester.AttemptResult{
		URL:            target.URL,
		RowRef:         target.RowRef,
		Outcome:        harvester.OutcomeFailed,
		ErrorMessage:   msg,
		Attempts:       attempts,
		ElapsedSeconds: time.Since(start).Seconds(),
		CreatedAt:      e.clock.Now(),
	}
}

func (e *Engine) failedAttempt(target harvester.Target, attempts int, start time.Time, err error) *harvester.AttemptResult {
	elapsed := 0.0
	if !start.IsZero() {
		elapsed = time.Since(start).Seconds()
	}
	msg := "unknown failure"
	if err != nil {
		msg = err.Error()
	}
	e.countResult(false)
	return &harvester.AttemptResult{
		URL:            target.URL,
		RowRef:         target.RowRef,
		Outcome:        harvester.OutcomeFailed,
		ErrorMessage:   msg,
		Attempts:       attempts,
		ElapsedSeconds: elapsed,
		CreatedAt:      e.clock.Now(),
	}
}

// CheckURL runs the full pipeline for a single URL, bypassing batching:
// cache lookup first, then extraction with the selected strategy. The
// fresh result is cached like any batch result.
func (e *Engine) CheckURL(ctx context.Context, url string) CheckReport {
	report := CheckReport{URL: url}
	st := e.selector.Select(url)
	report.Strategy = st.Name()
	report.Method = string(st.Method())

	if cached, ok := e.cache.Get(ctx, url); ok {
		e.countCache(true)
		report.Cached = true
		report.Attempt = cached
		return report
	}
	e.countCache(false)
	e.countTargets(1)

	attempt := e.extractWithRetries(ctx, st, harvester.Target{URL: url}, time.Now())
	e.cache.Put(ctx, url, attempt)
	e.countResult(attempt.Successful())
	report.Attempt = attempt
	return report
}

// Statistics snapshots the engine counters.
func (e *Engine) Statistics() Statistics {
	e.mu.Lock()
	defer e.mu.Unlock()

	hitRate := 0.0
	if lookups := e.cacheHits + e.cacheMisses; lookups > 0 {
		hitRate = float64(e.cacheHits) / float64(lookups)
	}
	return Statistics{
		Processed:    e.processed,
		Total:        e.total,
		Succeeded:    e.succeeded,
		Failed:       e.failed,
		CacheHits:    e.cacheHits,
		CacheMisses:  e.cacheMisses,
		CacheHitRate: hitRate,
		Strategies:   e.selector.Describe(),
		Config:       e.cfg,
	}
}

func (e *Engine) countTargets(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.total += n
}

func (e *Engine) countCache(hit bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if hit {
		e.cacheHits++
	} else {
		e.cacheMisses++
	}
}

func (e *Engine) countResult(success bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.processed++
	if success {
		e.succeeded++
	} else {
		e.failed++
	}
}
