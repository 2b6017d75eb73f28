// Package harvester defines core types shared across subsystems.
package harvester

import "time"

// Method identifies which extraction strategy produced a record.
type Method string

// Extraction methods persisted with every record and attempt.
const (
	MethodStaticHTML Method = "static_html"
	MethodRendered   Method = "rendered_page"
	MethodAIDocument Method = "ai_document"
)

// Target is a single URL to process plus an opaque reference back to the
// row it came from in the ingestion source. Immutable once created.
type Target struct {
	URL    string `json:"url"`
	RowRef string `json:"row_ref,omitempty"`
}

// Record holds the product attributes extracted from one page.
// Dimensions are millimetres, weight is kilograms. A zero value means the
// field was not found; PackageUnits is defaulted to 1 by the field extractor
// when no package information exists anywhere on the page.
type Record struct {
	EAN          string  `json:"ean,omitempty"`
	RALCode      string  `json:"ral_code,omitempty"`
	WidthMM      float64 `json:"width_mm,omitempty"`
	HeightMM     float64 `json:"height_mm,omitempty"`
	DepthMM      float64 `json:"depth_mm,omitempty"`
	PackageUnits int     `json:"package_units,omitempty"`
	WeightKG     float64 `json:"weight_kg,omitempty"`

	Confidence  float64           `json:"confidence"`
	SourceURL   string            `json:"source_url"`
	Method      Method            `json:"method"`
	ExtractedAt time.Time         `json:"extracted_at"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// IsValid reports whether the record carries at least one economically
// meaningful field.
func (r *Record) IsValid() bool {
	if r == nil {
		return false
	}
	return r.EAN != "" || r.RALCode != "" ||
		r.WidthMM != 0 || r.HeightMM != 0 || r.DepthMM != 0 ||
		r.PackageUnits != 0 || r.WeightKG != 0
}

// FilledFields counts how many of the seven canonical fields are populated.
func (r *Record) FilledFields() int {
	if r == nil {
		return 0
	}
	n := 0
	if r.EAN != "" {
		n++
	}
	if r.RALCode != "" {
		n++
	}
	if r.WidthMM != 0 {
		n++
	}
	if r.HeightMM != 0 {
		n++
	}
	if r.DepthMM != 0 {
		n++
	}
	if r.PackageUnits != 0 {
		n++
	}
	if r.WeightKG != 0 {
		n++
	}
	return n
}

// Completeness returns the fraction of canonical fields populated (0..1).
func (r *Record) Completeness() float64 {
	return float64(r.FilledFields()) / 7.0
}

// HasAllDimensions reports whether width, height and depth are all set.
func (r *Record) HasAllDimensions() bool {
	return r != nil && r.WidthMM != 0 && r.HeightMM != 0 && r.DepthMM != 0
}

// Outcome is the terminal state of one URL's extraction attempt.
type Outcome string

// Attempt outcomes.
const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
)

// AttemptResult is the outcome record for one URL's full extraction attempt,
// including retries. Exactly one is produced per input URL per batch.
type AttemptResult struct {
	URL            string    `json:"url"`
	RowRef         string    `json:"row_ref,omitempty"`
	Outcome        Outcome   `json:"outcome"`
	Record         *Record   `json:"record,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	Attempts       int       `json:"attempts"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	Method         string    `json:"method,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Successful reports whether the attempt completed with a usable record.
func (a *AttemptResult) Successful() bool {
	return a != nil && a.Outcome == OutcomeCompleted && a.Record != nil
}

// ConfidenceScore returns the record confidence, or zero for failed attempts.
func (a *AttemptResult) ConfidenceScore() float64 {
	if a == nil || a.Record == nil {
		return 0
	}
	return a.Record.Confidence
}

// CacheEntry is the persistent-tier metadata row kept for every cached
// attempt, queryable without deserializing the payload blob.
type CacheEntry struct {
	URLHash    string    `json:"url_hash"`
	URL        string    `json:"url"`
	CachedAt   time.Time `json:"cached_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	Success    bool      `json:"success"`
	Method     string    `json:"method"`
	Confidence float64   `json:"confidence"`
	SizeBytes  int64     `json:"size_bytes"`
}

// CacheStats summarizes the persistent tier.
type CacheStats struct {
	Entries     int        `json:"entries"`
	Successful  int        `json:"successful"`
	Failed      int        `json:"failed"`
	SizeBytes   int64      `json:"size_bytes"`
	OldestEntry *time.Time `json:"oldest_entry,omitempty"`
	NewestEntry *time.Time `json:"newest_entry,omitempty"`
}
