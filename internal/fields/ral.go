package fields

import (
	"regexp"
	"sort"
	"strings"
)

// ralPatterns is ordered most to least specific; the first 4-digit match
// wins. Reverse-order ("7035 - RAL") and attribute-style forms come last.
var ralPatterns = []*regexp.Regexp{
	// "RAL 7035 - Light Grey"
	regexp.MustCompile(`(?i)RAL\s*[-\s]?\s*(\d{4})\s*[-–—]\s*[A-Za-z][A-Za-z\s]*`),
	// "RAL 7035 Light Grey"
	regexp.MustCompile(`(?i)RAL\s*[-\s]?\s*(\d{4})\s+[A-Za-z]+`),
	// "RAL Number: 7035"
	regexp.MustCompile(`(?i)RAL\s*(?:Number|Code|Colour|Color)?\s*[:=]?\s*[-\s]?\s*(\d{4})`),
	// "Color: RAL 7035"
	regexp.MustCompile(`(?i)(?:Color|Colour)\s*[:=]\s*RAL\s*[-\s]?\s*(\d{4})`),
	// Bare "RAL 7035" or "RAL-7035"
	regexp.MustCompile(`(?i)RAL\s*[-\s]?\s*(\d{4})`),
	// "7035 - RAL"
	regexp.MustCompile(`(?i)(\d{4})\s*[-–—]\s*RAL`),
	// data-ral="7035", ral-code=7035
	regexp.MustCompile(`(?i)(?:data-ral|ral-code|ral_number)\s*[:=]\s*["']?(\d{4})["']?`),
}

// colorNameToRAL maps common finish names to canonical codes. Used as a
// fallback when a page names the color but never spells out the number.
var colorNameToRAL = map[string]string{
	"grey":       "RAL 7035",
	"gray":       "RAL 7035",
	"light grey": "RAL 7035",
	"light gray": "RAL 7035",
	"silver":     "RAL 9006",
	"anthracite": "RAL 7016",
	"dark grey":  "RAL 7012",
	"dark gray":  "RAL 7012",

	"white":      "RAL 9003",
	"pure white": "RAL 9010",
	"black":      "RAL 9005",
	"red":        "RAL 3020",
	"signal red": "RAL 3001",
	"blue":       "RAL 5015",
	"signal blue": "RAL 5005",
	"green":      "RAL 6029",
	"yellow":     "RAL 1023",
	"orange":     "RAL 2004",

	"beige":  "RAL 1001",
	"cream":  "RAL 9001",
	"ivory":  "RAL 1015",
	"brown":  "RAL 8017",
	"violet": "RAL 4008",
	"pink":   "RAL 3015",

	"stainless steel": "RAL 9006",
	"aluminum":        "RAL 9006",
	"chrome":          "RAL 9006",
	"brass":           "RAL 1036",
	"copper":          "RAL 8004",
}

// colorNamesByLength holds the lookup-table keys longest first, so
// "light grey" matches before "grey".
var colorNamesByLength = func() []string {
	names := make([]string, 0, len(colorNameToRAL))
	for name := range colorNameToRAL {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	return names
}()

var colorNameRes = func() map[string]*regexp.Regexp {
	res := make(map[string]*regexp.Regexp, len(colorNameToRAL))
	for name := range colorNameToRAL {
		res[name] = regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`)
	}
	return res
}()

// RAL extracts a color code from text, returning the canonical "RAL ####"
// form or the empty string. Explicit numbers are tried before the name table.
func RAL(text string) string {
	if text == "" {
		return ""
	}

	for _, re := range ralPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return "RAL " + m[1]
		}
	}

	textLower := strings.ToLower(text)
	for _, name := range colorNamesByLength {
		if !strings.Contains(textLower, name) {
			continue
		}
		if colorNameRes[name].MatchString(textLower) {
			return colorNameToRAL[name]
		}
	}

	return ""
}
