// Package cache composes the memory and disk tiers behind the
// harvester.ResultCache interface the engine consumes.
package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fisatech/datasheet-harvester/internal/cache/disk"
	"github.com/fisatech/datasheet-harvester/internal/cache/memory"
	"github.com/fisatech/datasheet-harvester/internal/harvester"
	"github.com/fisatech/datasheet-harvester/internal/telemetry"
)

// Tiered checks the memory tier first and falls back to the disk tier,
// promoting disk hits into memory. Writes go to disk first so a process
// crash never loses a result that was reported as cached.
type Tiered struct {
	memory *memory.Cache
	disk   *disk.Store
	logger *zap.Logger
}

// NewTiered builds a Tiered cache over the given tiers.
func NewTiered(mem *memory.Cache, store *disk.Store, logger *zap.Logger) *Tiered {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tiered{memory: mem, disk: store, logger: logger}
}

var _ harvester.ResultCache = (*Tiered)(nil)

// Get returns the cached attempt for url, if either tier has it.
func (t *Tiered) Get(ctx context.Context, url string) (*harvester.AttemptResult, bool) {
	if attempt, ok := t.memory.Get(url); ok {
		telemetry.ObserveCacheLookup("memory", "hit")
		return attempt, true
	}
	telemetry.ObserveCacheLookup("memory", "miss")

	attempt, ok := t.disk.Get(ctx, url)
	if !ok {
		telemetry.ObserveCacheLookup("disk", "miss")
		return nil, false
	}
	telemetry.ObserveCacheLookup("disk", "hit")

	// Promote with the disk row's remaining lifetime so the memory copy
	// never outlives the persistent entry.
	var expiresAt time.Time
	if meta, ok := t.disk.Entry(ctx, url); ok {
		expiresAt = meta.ExpiresAt
	}
	t.memory.PutUntil(url, attempt, expiresAt)
	return attempt, true
}

// Put caches the attempt in both tiers. A disk failure is logged and the
// memory tier is still updated so the batch keeps its in-process benefit.
func (t *Tiered) Put(ctx context.Context, url string, attempt *harvester.AttemptResult) {
	if err := t.disk.Put(ctx, url, attempt); err != nil {
		t.logger.Warn("persistent cache write failed",
			zap.String("url", url), zap.Error(err))
	}
	t.memory.Put(url, attempt)
}

// Sweep removes expired disk entries and resets the memory tier so the
// two never disagree about what is cached.
func (t *Tiered) Sweep(ctx context.Context) (int, error) {
	removed, err := t.disk.Sweep(ctx)
	if err != nil {
		return removed, err
	}
	t.memory.Clear()
	return removed, nil
}

// Clear removes disk entries older than the given age and drops the
// memory tier.
func (t *Tiered) Clear(ctx context.Context, olderThan time.Duration) (int, error) {
	removed, err := t.disk.Clear(ctx, olderThan)
	if err != nil {
		return removed, err
	}
	t.memory.Clear()
	return removed, nil
}

// Stats summarizes the persistent tier.
func (t *Tiered) Stats(ctx context.Context) (harvester.CacheStats, error) {
	return t.disk.Stats(ctx)
}

// MemoryStats summarizes the in-process tier.
func (t *Tiered) MemoryStats() memory.Stats {
	return t.memory.Stats()
}
