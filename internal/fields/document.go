package fields

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/fisatech/datasheet-harvester/internal/harvester"
)

// Document wraps a parsed HTML page and exposes the extraction passes the
// strategies share. Passes run against independent views of the markup and
// merge into one record with first-match-wins semantics.
type Document struct {
	doc *goquery.Document
}

// Parse reads HTML from r into a Document.
func Parse(r io.Reader) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Document{doc: doc}, nil
}

// Text returns the page's flattened, whitespace-normalized text.
func (d *Document) Text() string {
	return CleanText(d.doc.Text())
}

// Apply runs every extraction pass against the document, filling unset
// fields on rec only.
func (d *Document) Apply(rec *harvester.Record) {
	d.fromTables(rec)
	d.fromLists(rec)
	d.fromText(rec)
	d.fromJSONLD(rec)
	d.fromScripts(rec)
}

// fromTables walks table rows treating the first two cells as a key/value
// pair.
func (d *Document) fromTables(rec *harvester.Record) {
	d.doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td, th")
		if cells.Length() < 2 {
			return
		}
		key := CleanText(cells.Eq(0).Text())
		value := CleanText(cells.Eq(1).Text())
		MatchKeyValue(key, value, rec)
	})
}

// fromLists walks list and definition-list items, splitting "Key: Value"
// entries; bare items are matched on value alone.
func (d *Document) fromLists(rec *harvester.Record) {
	d.doc.Find("ul, ol, dl").Each(func(_ int, list *goquery.Selection) {
		list.Find("li, dt, dd").Each(func(_ int, item *goquery.Selection) {
			text := CleanText(item.Text())
			if key, value, found := strings.Cut(text, ":"); found {
				MatchKeyValue(strings.TrimSpace(key), strings.TrimSpace(value), rec)
				return
			}
			MatchKeyValue("", text, rec)
		})
	})
}

var dimensionRes = []*regexp.Regexp{
	regexp.MustCompile(`(\d+\.?\d*)\s*[x×]\s*(\d+\.?\d*)\s*[x×]\s*(\d+\.?\d*)\s*mm`),
	regexp.MustCompile(`(\d+\.?\d*)\s*mm\s*[x×]\s*(\d+\.?\d*)\s*mm\s*[x×]\s*(\d+\.?\d*)\s*mm`),
}

// colorBearingSelector targets elements whose class or id hints at finish
// or specification content, checked when the flat-text pass finds nothing.
const colorBearingSelector = `[class*="design"], [class*="color"], [class*="colour"], [class*="ral"],` +
	`[id*="design"], [id*="color"], [id*="colour"], [id*="ral"],` +
	`[data-ral], [data-color], [data-colour],` +
	`[class*="spec"], [class*="technical"], [class*="details"]`

// fromText runs identifier, color and dimension regexes over the page's
// flattened text.
func (d *Document) fromText(rec *harvester.Record) {
	text := CleanText(d.doc.Text())

	if rec.EAN == "" {
		rec.EAN = EAN(text)
	}
	if rec.RALCode == "" {
		rec.RALCode = RAL(text)
	}
	if rec.RALCode == "" {
		d.ralFromElements(rec)
	}

	lower := strings.ToLower(text)
	for _, re := range dimensionRes {
		m := re.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		if rec.WidthMM == 0 {
			if v, ok := Numeric(m[1]); ok {
				rec.WidthMM = v
			}
		}
		if rec.HeightMM == 0 {
			if v, ok := Numeric(m[2]); ok {
				rec.HeightMM = v
			}
		}
		if rec.DepthMM == 0 {
			if v, ok := Numeric(m[3]); ok {
				rec.DepthMM = v
			}
		}
		break
	}
}

// ralFromElements checks color-bearing elements and their attributes for a
// code the flat-text pass missed (for example data-ral markup).
func (d *Document) ralFromElements(rec *harvester.Record) {
	d.doc.Find(colorBearingSelector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if ral := RAL(sel.Text()); ral != "" {
			rec.RALCode = ral
			return false
		}
		for _, attr := range sel.Nodes[0].Attr {
			if ral := RAL(attr.Key + "=" + attr.Val); ral != "" {
				rec.RALCode = ral
				return false
			}
		}
		return true
	})
}

// fromJSONLD reads embedded application/ld+json product descriptors.
func (d *Document) fromJSONLD(rec *harvester.Record) {
	d.doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, script *goquery.Selection) {
		var data map[string]any
		if err := json.Unmarshal([]byte(script.Text()), &data); err != nil {
			return
		}
		if t, _ := data["@type"].(string); t != "Product" {
			return
		}
		applyJSONLDProduct(data, rec)
	})
}

func applyJSONLDProduct(data map[string]any, rec *harvester.Record) {
	if rec.EAN == "" {
		// Supplier pages put the order code in "name"; prefer it over "sku".
		if name, ok := data["name"]; ok {
			rec.EAN = jsonString(name)
		} else if sku, ok := data["sku"]; ok {
			rec.EAN = jsonString(sku)
		}
	}

	if rec.WidthMM == 0 {
		if v, ok := Numeric(jsonString(data["width"])); ok {
			rec.WidthMM = v
		}
	}
	if rec.HeightMM == 0 {
		if v, ok := Numeric(jsonString(data["height"])); ok {
			rec.HeightMM = v
		}
	}
	if rec.DepthMM == 0 {
		if v, ok := Numeric(jsonString(data["depth"])); ok {
			rec.DepthMM = v
		}
	}
	if rec.WeightKG == 0 {
		if v, ok := Numeric(jsonString(data["weight"])); ok {
			rec.WeightKG = v
		}
	}

	if rec.RALCode == "" {
		for _, field := range []string{"description", "color", "colour", "finish", "paint", "material", "surface"} {
			if ral := RAL(jsonString(data[field])); ral != "" {
				rec.RALCode = ral
				break
			}
		}
	}
	if rec.RALCode == "" {
		rec.RALCode = ralFromNested(data, 0)
	}

	if offers, ok := data["offers"].(map[string]any); ok && rec.EAN == "" {
		rec.EAN = jsonString(offers["sku"])
	}

	if props, ok := data["additionalProperty"].([]any); ok {
		for _, p := range props {
			prop, ok := p.(map[string]any)
			if !ok {
				continue
			}
			name := jsonString(prop["name"])
			value := jsonString(prop["value"])
			if !MatchKeyValue(name, value, rec) && name != "" && value != "" {
				if rec.Extra == nil {
					rec.Extra = make(map[string]string)
				}
				rec.Extra[name] = value
			}
		}
	}
}

var nestedColorTerms = []string{"color", "colour", "ral", "finish", "paint"}

// ralFromNested searches nested JSON values for a color code, bounded to
// five levels.
func ralFromNested(v any, depth int) string {
	if depth > 5 {
		return ""
	}
	switch val := v.(type) {
	case map[string]any:
		for key, child := range val {
			keyLower := strings.ToLower(key)
			if keyHasAny(keyLower, nestedColorTerms) {
				if ral := RAL(jsonString(child)); ral != "" {
					return ral
				}
			}
			if ral := ralFromNested(child, depth+1); ral != "" {
				return ral
			}
		}
	case []any:
		for _, child := range val {
			if ral := ralFromNested(child, depth+1); ral != "" {
				return ral
			}
		}
	case string:
		return RAL(val)
	}
	return ""
}

func jsonString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

// scriptUnitRes captures package-unit counts assigned to well-known
// JavaScript variables.
var scriptUnitRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)package["']?\s*:\s*["']?(\d+)`),
	regexp.MustCompile(`(?i)packageSize["']?\s*:\s*["']?(\d+)`),
	regexp.MustCompile(`(?i)unitsPerPackage["']?\s*:\s*["']?(\d+)`),
	regexp.MustCompile(`(?i)quantity["']?\s*:\s*["']?(\d+)`),
	regexp.MustCompile(`(?i)packSize["']?\s*:\s*["']?(\d+)`),
	regexp.MustCompile(`(?i)pieces["']?\s*:\s*["']?(\d+)`),
}

// fromScripts scans inline script bodies for package-unit assignments.
// Counts outside 1..1000 are treated as noise.
func (d *Document) fromScripts(rec *harvester.Record) {
	if rec.PackageUnits != 0 {
		return
	}
	d.doc.Find("script:not([src])").EachWithBreak(func(_ int, script *goquery.Selection) bool {
		content := script.Text()
		if content == "" {
			return true
		}
		for _, re := range scriptUnitRes {
			m := re.FindStringSubmatch(content)
			if m == nil {
				continue
			}
			if units, ok := Numeric(m[1]); ok && units >= 1 && units <= 1000 {
				rec.PackageUnits = int(units)
				return false
			}
		}
		return true
	})
}
