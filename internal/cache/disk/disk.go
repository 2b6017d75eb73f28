// Package disk implements the persistent cache tier: a SQLite metadata
// index plus one JSON payload blob per URL hash, sharded into
// subdirectories by hash prefix to bound directory size.
package disk

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"go.uber.org/zap"

	"github.com/fisatech/datasheet-harvester/internal/harvester"
)

// DefaultTTL is the persistent-tier entry lifetime.
const DefaultTTL = 24 * time.Hour

const metadataFile = "cache_metadata.db"

const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	url_hash   TEXT PRIMARY KEY,
	url        TEXT NOT NULL,
	cached_at  TIMESTAMP NOT NULL,
	expires_at TIMESTAMP NOT NULL,
	file_path  TEXT NOT NULL,
	success    BOOLEAN NOT NULL,
	method     TEXT,
	confidence REAL,
	file_size  INTEGER
);
CREATE INDEX IF NOT EXISTS idx_url ON cache_entries(url);
CREATE INDEX IF NOT EXISTS idx_expires_at ON cache_entries(expires_at);
`

// Config locates and sizes the persistent tier.
type Config struct {
	// Dir is the cache root; the metadata index and data/ shards live here.
	Dir string `mapstructure:"dir"`
	// TTL is the entry lifetime; DefaultTTL when zero.
	TTL time.Duration `mapstructure:"ttl"`
}

// Store is the persistent cache tier. SQLite serializes row operations;
// the mutex serializes the write path (blob + row must move together).
type Store struct {
	db     *sql.DB
	dir    string
	ttl    time.Duration
	hasher harvester.Hasher
	clock  harvester.Clock
	logger *zap.Logger

	mu sync.Mutex
}

// New opens (creating if needed) the store rooted at cfg.Dir.
func New(cfg Config, hasher harvester.Hasher, clock harvester.Clock, logger *zap.Logger) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("cache directory is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(filepath.Join(cfg.Dir, "data"), 0o750); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	dsn := filepath.Join(cfg.Dir, metadataFile) + "?_busy_timeout=5000&_journal_mode=WAL"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open cache metadata: %w", err)
	}
	// SQLite works best with a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init cache schema: %w", err)
	}

	return &Store{
		db:     db,
		dir:    cfg.Dir,
		ttl:    cfg.TTL,
		hasher: hasher,
		clock:  clock,
		logger: logger,
	}, nil
}

// Close releases the metadata database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close cache metadata: %w", err)
	}
	return nil
}

func (s *Store) urlHash(url string) (string, error) {
	h, err := s.hasher.Hash([]byte(url))
	if err != nil {
		return "", fmt.Errorf("hash url: %w", err)
	}
	return h, nil
}

// payloadPath shards blobs by the first two hash characters.
func (s *Store) payloadPath(urlHash string) string {
	return filepath.Join(s.dir, "data", urlHash[:2], urlHash+".json")
}

// Get returns the cached attempt for url, if present and unexpired.
// Expired rows and rows whose payload blob is missing or unreadable are
// self-healed by deleting the stray entry.
func (s *Store) Get(ctx context.Context, url string) (*harvester.AttemptResult, bool) {
	urlHash, err := s.urlHash(url)
	if err != nil {
		s.logger.Warn("cache lookup failed", zap.String("url", url), zap.Error(err))
		return nil, false
	}

	var (
		expiresAt time.Time
		filePath  string
	)
	row := s.db.QueryRowContext(ctx,
		`SELECT expires_at, file_path FROM cache_entries WHERE url_hash = ?`, urlHash)
	if err := row.Scan(&expiresAt, &filePath); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("cache metadata read failed", zap.String("url", url), zap.Error(err))
		}
		return nil, false
	}

	if !expiresAt.After(s.clock.Now()) {
		s.remove(ctx, urlHash)
		return nil, false
	}

	payload, err := os.ReadFile(filePath)
	if err != nil {
		s.remove(ctx, urlHash)
		return nil, false
	}

	var attempt harvester.AttemptResult
	if err := json.Unmarshal(payload, &attempt); err != nil {
		s.logger.Warn("cache payload corrupt", zap.String("url", url), zap.Error(err))
		s.remove(ctx, urlHash)
		return nil, false
	}
	return &attempt, true
}

// Put caches the attempt: payload blob first, then the metadata row. A
// failure on either side removes the partial entry and is returned so the
// tiered cache can log it.
func (s *Store) Put(ctx context.Context, url string, attempt *harvester.AttemptResult) error {
	urlHash, err := s.urlHash(url)
	if err != nil {
		return &harvester.CacheIOError{Op: "put", Err: err}
	}

	payload, err := json.Marshal(attempt)
	if err != nil {
		return &harvester.CacheIOError{Op: "put", Err: fmt.Errorf("marshal attempt: %w", err)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	filePath := s.payloadPath(urlHash)
	if err := os.MkdirAll(filepath.Dir(filePath), 0o750); err != nil {
		return &harvester.CacheIOError{Op: "put", Err: err}
	}
	if err := os.WriteFile(filePath, payload, 0o600); err != nil {
		return &harvester.CacheIOError{Op: "put", Err: err}
	}

	cachedAt := s.clock.Now()
	expiresAt := cachedAt.Add(s.ttl)

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO cache_entries
			(url_hash, url, cached_at, expires_at, file_path, success, method, confidence, file_size)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		urlHash, url, cachedAt, expiresAt, filePath,
		attempt.Successful(), attempt.Method, attempt.ConfidenceScore(), int64(len(payload)),
	)
	if err != nil {
		_ = os.Remove(filePath)
		return &harvester.CacheIOError{Op: "put", Err: err}
	}
	return nil
}

// remove deletes the metadata row and payload blob for a hash.
func (s *Store) remove(ctx context.Context, urlHash string) {
	if err := os.Remove(s.payloadPath(urlHash)); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("cache payload remove failed", zap.String("hash", urlHash), zap.Error(err))
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE url_hash = ?`, urlHash); err != nil {
		s.logger.Warn("cache metadata remove failed", zap.String("hash", urlHash), zap.Error(err))
	}
}

// Sweep deletes every expired metadata+payload pair and returns the count.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	return s.removeWhere(ctx, `expires_at < ?`, s.clock.Now())
}

// Clear removes entries cached earlier than olderThan ago; a zero age
// removes everything. Returns the removed count.
func (s *Store) Clear(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return s.removeWhere(ctx, `1 = 1`)
	}
	return s.removeWhere(ctx, `cached_at < ?`, s.clock.Now().Add(-olderThan))
}

func (s *Store) removeWhere(ctx context.Context, where string, args ...any) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT url_hash, file_path FROM cache_entries WHERE `+where, args...)
	if err != nil {
		return 0, &harvester.CacheIOError{Op: "sweep", Err: err}
	}
	defer func() { _ = rows.Close() }()

	type doomed struct{ hash, path string }
	var victims []doomed
	for rows.Next() {
		var d doomed
		if err := rows.Scan(&d.hash, &d.path); err != nil {
			return 0, &harvester.CacheIOError{Op: "sweep", Err: err}
		}
		victims = append(victims, d)
	}
	if err := rows.Err(); err != nil {
		return 0, &harvester.CacheIOError{Op: "sweep", Err: err}
	}

	removed := 0
	for _, v := range victims {
		if err := os.Remove(v.path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("cache payload remove failed", zap.String("hash", v.hash), zap.Error(err))
		}
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM cache_entries WHERE url_hash = ?`, v.hash); err != nil {
			s.logger.Warn("cache metadata remove failed", zap.String("hash", v.hash), zap.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}

// Stats summarizes the metadata index without touching payload blobs.
func (s *Store) Stats(ctx context.Context) (harvester.CacheStats, error) {
	var stats harvester.CacheStats

	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(file_size), 0) FROM cache_entries`)
	if err := row.Scan(&stats.Entries, &stats.SizeBytes); err != nil {
		return stats, &harvester.CacheIOError{Op: "stats", Err: err}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT success, COUNT(*) FROM cache_entries GROUP BY success`)
	if err != nil {
		return stats, &harvester.CacheIOError{Op: "stats", Err: err}
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var (
			success bool
			count   int
		)
		if err := rows.Scan(&success, &count); err != nil {
			return stats, &harvester.CacheIOError{Op: "stats", Err: err}
		}
		if success {
			stats.Successful = count
		} else {
			stats.Failed = count
		}
	}
	if err := rows.Err(); err != nil {
		return stats, &harvester.CacheIOError{Op: "stats", Err: err}
	}

	if stats.Entries > 0 {
		var oldest, newest time.Time
		row = s.db.QueryRowContext(ctx,
			`SELECT MIN(cached_at), MAX(cached_at) FROM cache_entries`)
		if err := row.Scan(&oldest, &newest); err == nil {
			stats.OldestEntry = &oldest
			stats.NewestEntry = &newest
		}
	}
	return stats, nil
}

// Entry returns the metadata row for url without reading the payload.
func (s *Store) Entry(ctx context.Context, url string) (*harvester.CacheEntry, bool) {
	urlHash, err := s.urlHash(url)
	if err != nil {
		return nil, false
	}
	var e harvester.CacheEntry
	row := s.db.QueryRowContext(ctx, `
		SELECT url_hash, url, cached_at, expires_at, success, method, confidence, file_size
		FROM cache_entries WHERE url_hash = ?`, urlHash)
	if err := row.Scan(&e.URLHash, &e.URL, &e.CachedAt, &e.ExpiresAt,
		&e.Success, &e.Method, &e.Confidence, &e.SizeBytes); err != nil {
		return nil, false
	}
	return &e, true
}
