package fields

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fisatech/datasheet-harvester/internal/harvester"
)

func TestNumeric(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  float64
		ok    bool
	}{
		{"plain integer", "600 mm", 600, true},
		{"decimal point", "12.5 kg", 12.5, true},
		{"comma separator", "12,5 kg", 12.5, true},
		{"first token wins", "600 x 400", 600, true},
		{"no digits", "unknown", 0, false},
		{"empty", "", 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Numeric(tc.input)
			assert.Equal(t, tc.ok, ok)
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func TestEAN(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"ean-13", "EAN: 4016779657437", "4016779657437"},
		{"ean-8", "code 40167796 listed", "40167796"},
		{"ean-14 preferred over shorter", "10040167796574 and 40167796", "10040167796574"},
		{"embedded digits not matched", "SKU123456789012345", ""},
		{"none", "no codes here", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, EAN(tc.input))
		})
	}
}

func TestMatchKeyValue(t *testing.T) {
	t.Run("dimension vocabulary", func(t *testing.T) {
		rec := &harvester.Record{}
		assert.True(t, MatchKeyValue("Width", "600 mm", rec))
		assert.True(t, MatchKeyValue("Height", "800 mm", rec))
		assert.True(t, MatchKeyValue("Depth", "250 mm", rec))
		assert.Equal(t, 600.0, rec.WidthMM)
		assert.Equal(t, 800.0, rec.HeightMM)
		assert.Equal(t, 250.0, rec.DepthMM)
	})

	t.Run("romanian labels", func(t *testing.T) {
		rec := &harvester.Record{}
		assert.True(t, MatchKeyValue("Largime", "300", rec))
		assert.True(t, MatchKeyValue("Inaltime", "400", rec))
		assert.True(t, MatchKeyValue("Adancime", "150", rec))
		assert.True(t, MatchKeyValue("Greutate", "7,2", rec))
		assert.Equal(t, 300.0, rec.WidthMM)
		assert.Equal(t, 7.2, rec.WeightKG)
	})

	t.Run("first match wins", func(t *testing.T) {
		rec := &harvester.Record{WidthMM: 600}
		MatchKeyValue("Width", "999", rec)
		assert.Equal(t, 600.0, rec.WidthMM)
	})

	t.Run("package units", func(t *testing.T) {
		rec := &harvester.Record{}
		assert.True(t, MatchKeyValue("Pieces per pack", "10", rec))
		assert.Equal(t, 10, rec.PackageUnits)
	})

	t.Run("value-only ral under unrelated key", func(t *testing.T) {
		rec := &harvester.Record{}
		assert.True(t, MatchKeyValue("Surface", "RAL 7016 textured", rec))
		assert.Equal(t, "RAL 7016", rec.RALCode)
	})

	t.Run("ean vocabulary", func(t *testing.T) {
		rec := &harvester.Record{}
		assert.True(t, MatchKeyValue("GTIN", "4016779657437", rec))
		assert.Equal(t, "4016779657437", rec.EAN)
	})
}

func TestApplyDefaults(t *testing.T) {
	rec := &harvester.Record{}
	ApplyDefaults(rec)
	assert.Equal(t, 1, rec.PackageUnits)

	rec = &harvester.Record{PackageUnits: 5}
	ApplyDefaults(rec)
	assert.Equal(t, 5, rec.PackageUnits)
}

func TestConfidence(t *testing.T) {
	t.Run("empty record scores zero", func(t *testing.T) {
		assert.Zero(t, Confidence(&harvester.Record{}))
	})

	t.Run("identifier bonus", func(t *testing.T) {
		rec := &harvester.Record{EAN: "4016779657437"}
		assert.InDelta(t, 1.0/7.0+0.1, Confidence(rec), 1e-9)
	})

	t.Run("dimension bonus", func(t *testing.T) {
		rec := &harvester.Record{WidthMM: 1, HeightMM: 2, DepthMM: 3}
		assert.InDelta(t, 3.0/7.0+0.1, Confidence(rec), 1e-9)
	})

	t.Run("capped at one", func(t *testing.T) {
		rec := &harvester.Record{
			EAN: "4016779657437", RALCode: "RAL 7035",
			WidthMM: 1, HeightMM: 2, DepthMM: 3,
			PackageUnits: 1, WeightKG: 4,
		}
		assert.Equal(t, 1.0, Confidence(rec))
	})
}
