package memory

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fisatech/datasheet-harvester/internal/harvester"
)

// fakeClock lets tests advance time explicitly.
type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) advance(d time.Duration) { f.now = f.now.Add(d) }

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func attemptFor(url string) *harvester.AttemptResult {
	return &harvester.AttemptResult{
		URL:     url,
		Outcome: harvester.OutcomeCompleted,
		Record:  &harvester.Record{EAN: "4016779657437", SourceURL: url},
	}
}

func TestCacheGetPut(t *testing.T) {
	clk := newFakeClock()
	c := New(Config{Capacity: 10, TTL: time.Minute}, clk)

	_, ok := c.Get("https://a")
	assert.False(t, ok)

	c.Put("https://a", attemptFor("https://a"))
	got, ok := c.Get("https://a")
	require.True(t, ok)
	assert.Equal(t, "https://a", got.URL)
}

func TestCacheTTLExpiry(t *testing.T) {
	clk := newFakeClock()
	c := New(Config{Capacity: 10, TTL: time.Minute}, clk)

	c.Put("https://a", attemptFor("https://a"))
	clk.advance(61 * time.Second)

	_, ok := c.Get("https://a")
	assert.False(t, ok, "expired entry must read as a miss")
	assert.Zero(t, c.Len(), "expired entry must be purged on read")
}

func TestCacheLRUEviction(t *testing.T) {
	clk := newFakeClock()
	c := New(Config{Capacity: 3, TTL: time.Hour}, clk)

	for i := range 3 {
		url := fmt.Sprintf("https://u%d", i)
		c.Put(url, attemptFor(url))
	}

	// Touch u0 so u1 becomes least recently used.
	_, ok := c.Get("https://u0")
	require.True(t, ok)

	c.Put("https://u3", attemptFor("https://u3"))

	_, ok = c.Get("https://u1")
	assert.False(t, ok, "least recently used entry should be evicted")
	_, ok = c.Get("https://u0")
	assert.True(t, ok)
	_, ok = c.Get("https://u3")
	assert.True(t, ok)
}

func TestCachePutUntilHonorsEarlierExpiry(t *testing.T) {
	clk := newFakeClock()
	c := New(Config{Capacity: 10, TTL: 5 * time.Minute}, clk)

	c.PutUntil("https://a", attemptFor("https://a"), clk.Now().Add(time.Minute))
	clk.advance(2 * time.Minute)

	_, ok := c.Get("https://a")
	assert.False(t, ok, "entry must expire at the given time, not the tier TTL")
}

func TestCachePutUntilCapsAtOwnTTL(t *testing.T) {
	clk := newFakeClock()
	c := New(Config{Capacity: 10, TTL: time.Minute}, clk)

	c.PutUntil("https://a", attemptFor("https://a"), clk.Now().Add(time.Hour))
	clk.advance(61 * time.Second)

	_, ok := c.Get("https://a")
	assert.False(t, ok, "a later expiry must still be capped at the tier TTL")

	c.PutUntil("https://b", attemptFor("https://b"), time.Time{})
	got, ok := c.Get("https://b")
	require.True(t, ok, "zero expiry falls back to the tier TTL")
	assert.Equal(t, "https://b", got.URL)
}

func TestCachePutOverwrites(t *testing.T) {
	clk := newFakeClock()
	c := New(Config{Capacity: 3, TTL: time.Hour}, clk)

	c.Put("https://a", attemptFor("https://a"))
	updated := &harvester.AttemptResult{URL: "https://a", Outcome: harvester.OutcomeFailed, ErrorMessage: "nope"}
	c.Put("https://a", updated)

	got, ok := c.Get("https://a")
	require.True(t, ok)
	assert.Equal(t, harvester.OutcomeFailed, got.Outcome)
	assert.Equal(t, 1, c.Len())
}

func TestCacheStats(t *testing.T) {
	clk := newFakeClock()
	c := New(Config{Capacity: 4, TTL: time.Hour}, clk)
	c.Put("https://a", attemptFor("https://a"))

	stats := c.Stats()
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, 4, stats.Capacity)
	assert.InDelta(t, 0.25, stats.Utilization, 1e-9)

	c.Clear()
	assert.Zero(t, c.Len())
}

func TestCacheDefaults(t *testing.T) {
	c := New(Config{}, newFakeClock())
	stats := c.Stats()
	assert.Equal(t, DefaultCapacity, stats.Capacity)
}
