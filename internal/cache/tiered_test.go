package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fisatech/datasheet-harvester/internal/cache/disk"
	"github.com/fisatech/datasheet-harvester/internal/cache/memory"
	"github.com/fisatech/datasheet-harvester/internal/harvester"
	"github.com/fisatech/datasheet-harvester/internal/hash/sha256"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) advance(d time.Duration) { f.now = f.now.Add(d) }

func newTiered(t *testing.T, clk harvester.Clock) (*Tiered, *memory.Cache, *disk.Store) {
	t.Helper()
	mem := memory.New(memory.Config{Capacity: 10, TTL: 5 * time.Minute}, clk)
	store, err := disk.New(disk.Config{Dir: t.TempDir(), TTL: 24 * time.Hour}, sha256.New(), clk, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewTiered(mem, store, zap.NewNop()), mem, store
}

func attemptFor(url string) *harvester.AttemptResult {
	return &harvester.AttemptResult{
		URL:     url,
		Outcome: harvester.OutcomeCompleted,
		Record:  &harvester.Record{EAN: "4016779657437", SourceURL: url},
	}
}

func TestTieredPutReachesBothTiers(t *testing.T) {
	ctx := context.Background()
	clk := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	tiered, mem, store := newTiered(t, clk)

	tiered.Put(ctx, "https://example.com/p/1", attemptFor("https://example.com/p/1"))

	_, ok := mem.Get("https://example.com/p/1")
	assert.True(t, ok, "memory tier has the entry")
	_, ok = store.Get(ctx, "https://example.com/p/1")
	assert.True(t, ok, "disk tier has the entry")
}

func TestTieredDiskHitIsPromoted(t *testing.T) {
	ctx := context.Background()
	clk := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	tiered, mem, store := newTiered(t, clk)

	// Seed the disk tier only, as if a previous process run cached it.
	require.NoError(t, store.Put(ctx, "https://example.com/p/1", attemptFor("https://example.com/p/1")))

	got, ok := tiered.Get(ctx, "https://example.com/p/1")
	require.True(t, ok)
	assert.Equal(t, "https://example.com/p/1", got.URL)

	_, ok = mem.Get("https://example.com/p/1")
	assert.True(t, ok, "disk hit is promoted into memory")
}

func TestTieredPromotionExpiresWithDiskRow(t *testing.T) {
	ctx := context.Background()
	clk := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	tiered, mem, store := newTiered(t, clk)

	require.NoError(t, store.Put(ctx, "https://example.com/p/1", attemptFor("https://example.com/p/1")))

	// Promote when the disk row has less lifetime left than the memory TTL.
	clk.advance(24*time.Hour - 2*time.Minute)
	_, ok := tiered.Get(ctx, "https://example.com/p/1")
	require.True(t, ok)

	// Past the disk expiry but within the memory tier's 5 minute TTL: the
	// promoted copy must not be served.
	clk.advance(3 * time.Minute)
	_, ok = mem.Get("https://example.com/p/1")
	assert.False(t, ok, "promoted entry must not outlive the disk row")
	_, ok = tiered.Get(ctx, "https://example.com/p/1")
	assert.False(t, ok)
}

func TestTieredMemoryExpiryFallsThroughToDisk(t *testing.T) {
	ctx := context.Background()
	clk := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	tiered, _, _ := newTiered(t, clk)

	tiered.Put(ctx, "https://example.com/p/1", attemptFor("https://example.com/p/1"))
	clk.advance(10 * time.Minute) // past memory TTL, well within disk TTL

	_, ok := tiered.Get(ctx, "https://example.com/p/1")
	assert.True(t, ok, "disk tier serves after the memory entry expires")
}

func TestTieredMiss(t *testing.T) {
	ctx := context.Background()
	clk := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	tiered, _, _ := newTiered(t, clk)

	_, ok := tiered.Get(ctx, "https://example.com/unknown")
	assert.False(t, ok)
}

func TestTieredSweepAndClear(t *testing.T) {
	ctx := context.Background()
	clk := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	tiered, mem, _ := newTiered(t, clk)

	tiered.Put(ctx, "https://example.com/p/1", attemptFor("https://example.com/p/1"))
	clk.advance(25 * time.Hour)
	tiered.Put(ctx, "https://example.com/p/2", attemptFor("https://example.com/p/2"))

	removed, err := tiered.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Zero(t, mem.Len(), "sweep drops the memory tier")

	removed, err = tiered.Clear(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	stats, err := tiered.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Entries)
}
