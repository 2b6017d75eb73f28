// Package fields turns raw page text and markup into typed product
// attributes. All functions follow first-match-wins semantics: a field
// already populated on the record is never overwritten by a later pass.
package fields

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/fisatech/datasheet-harvester/internal/harvester"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	numericRe    = regexp.MustCompile(`\d+\.?\d*`)

	// EAN codes are 8, 13 or 14 digits; longest pattern tried first so a
	// 13-digit code is never truncated to its 8-digit prefix.
	eanPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b\d{14}\b`),
		regexp.MustCompile(`\b\d{13}\b`),
		regexp.MustCompile(`\b\d{8}\b`),
	}
)

// CleanText collapses runs of whitespace into single spaces.
func CleanText(text string) string {
	if text == "" {
		return ""
	}
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
}

// Numeric locates the first numeric token in text, normalizing comma decimal
// separators to dots. The second return is false when no token parses.
func Numeric(text string) (float64, bool) {
	if text == "" {
		return 0, false
	}
	match := numericRe.FindString(strings.ReplaceAll(text, ",", "."))
	if match == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// EAN extracts a product identifier (8/13/14 digit sequence) from text.
func EAN(text string) string {
	if text == "" {
		return ""
	}
	for _, re := range eanPatterns {
		if m := re.FindString(text); m != "" {
			return m
		}
	}
	return ""
}

// Key vocabularies for MatchKeyValue. Romanian spellings come from the
// supplier datasheets this tool was built for.
var (
	eanKeys     = []string{"ean", "barcode", "gtin"}
	colorKeys   = []string{"ral", "color", "colour", "finish", "paint"}
	widthKeys   = []string{"width", "larg"}
	heightKeys  = []string{"height", "înălţime", "inaltime"}
	depthKeys   = []string{"depth", "adânc", "adanc"}
	weightKeys  = []string{"weight", "greutate", "kg"}
	packageKeys = []string{
		"units", "bucăți", "bucati", "buc", "pieces", "pcs", "qty", "quantity",
		"pack", "package", "per package", "per pack", "unit pack", "package size",
	}
)

func keyHasAny(key string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(key, term) {
			return true
		}
	}
	return false
}

// MatchKeyValue inspects one labeled key/value pair and fills in any unset
// record field the pair matches. It reports whether a field was populated.
func MatchKeyValue(key, value string, rec *harvester.Record) bool {
	keyLower := strings.ToLower(key)
	valueClean := CleanText(value)
	matched := false

	if rec.EAN == "" && keyHasAny(keyLower, eanKeys) {
		if ean := EAN(valueClean); ean != "" {
			rec.EAN = ean
			matched = true
		}
	}

	if rec.RALCode == "" && keyHasAny(keyLower, colorKeys) {
		if ral := RAL(valueClean); ral != "" {
			rec.RALCode = ral
			matched = true
		}
	}
	// The value may carry a color code even under an unrelated label.
	if rec.RALCode == "" {
		if ral := RAL(valueClean); ral != "" {
			rec.RALCode = ral
			matched = true
		}
	}

	if rec.WidthMM == 0 && keyHasAny(keyLower, widthKeys) {
		if v, ok := Numeric(valueClean); ok {
			rec.WidthMM = v
			matched = true
		}
	}
	if rec.HeightMM == 0 && keyHasAny(keyLower, heightKeys) {
		if v, ok := Numeric(valueClean); ok {
			rec.HeightMM = v
			matched = true
		}
	}
	if rec.DepthMM == 0 && keyHasAny(keyLower, depthKeys) {
		if v, ok := Numeric(valueClean); ok {
			rec.DepthMM = v
			matched = true
		}
	}

	if rec.PackageUnits == 0 && keyHasAny(keyLower, packageKeys) {
		if v, ok := Numeric(valueClean); ok && v >= 1 {
			rec.PackageUnits = int(v)
			matched = true
		}
	}

	if rec.WeightKG == 0 && keyHasAny(keyLower, weightKeys) {
		if v, ok := Numeric(valueClean); ok {
			rec.WeightKG = v
			matched = true
		}
	}

	return matched
}

// ApplyDefaults fills documented assumptions for fields nothing detected.
// Most products ship individually, so a missing package-unit count becomes 1.
func ApplyDefaults(rec *harvester.Record) {
	if rec.PackageUnits == 0 {
		rec.PackageUnits = 1
	}
}

// Confidence derives a record's confidence score: the fraction of the seven
// canonical fields populated, +0.1 when the identifier is present, +0.1 when
// all three dimensions are present, capped at 1.0.
func Confidence(rec *harvester.Record) float64 {
	score := rec.Completeness()
	if rec.EAN != "" {
		score += 0.1
	}
	if rec.HasAllDimensions() {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}
