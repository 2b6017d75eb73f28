package harvester

import (
	"context"
	"time"
)

// Strategy is a self-contained algorithm for turning a URL into a Record.
// Implementations fetch the page themselves with whatever transport suits
// them; ordinary HTTP and parse failures come back as errors so the engine
// can apply its retry policy uniformly.
type Strategy interface {
	// Name is a short human-readable identifier.
	Name() string
	// Method tags records produced by this strategy.
	Method() Method
	// CanHandle is a cheap URL-pattern predicate. It must not touch the network.
	CanHandle(url string) bool
	// Confidence is the static reliability rating used for selection.
	Confidence() float64
	// Extract fetches the page and extracts a record. A nil record with a
	// nil error never happens; failures are reported as errors.
	Extract(ctx context.Context, url string) (*Record, error)
}

// ResultCache stores one AttemptResult per URL. Implementations own entry
// lifecycle exclusively; lookups treat expired entries as misses.
type ResultCache interface {
	// Get returns the cached attempt for url, if present and unexpired.
	Get(ctx context.Context, url string) (*AttemptResult, bool)
	// Put caches the attempt. Storage failures are absorbed and logged;
	// callers never see them.
	Put(ctx context.Context, url string, attempt *AttemptResult)
	// Sweep deletes all expired entries and returns the removed count.
	Sweep(ctx context.Context) (int, error)
	// Clear removes entries older than the given age (all entries when zero)
	// and returns the removed count.
	Clear(ctx context.Context, olderThan time.Duration) (int, error)
	// Stats summarizes the persistent tier without touching payloads.
	Stats(ctx context.Context) (CacheStats, error)
}

// Hasher computes digests used as cache keys.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// IDGenerator mints identifiers for submitted batches.
type IDGenerator interface {
	NewID() (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
