package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fisatech/datasheet-harvester/internal/harvester"
)

type stubStrategy struct {
	name       string
	method     harvester.Method
	confidence float64
	handles    bool
}

func (s *stubStrategy) Name() string               { return s.name }
func (s *stubStrategy) Method() harvester.Method   { return s.method }
func (s *stubStrategy) CanHandle(string) bool      { return s.handles }
func (s *stubStrategy) Confidence() float64        { return s.confidence }
func (s *stubStrategy) Extract(context.Context, string) (*harvester.Record, error) {
	return nil, nil
}

func TestNewSelectorRequiresStrategies(t *testing.T) {
	_, err := NewSelector(false)
	assert.ErrorIs(t, err, harvester.ErrNoStrategies)
}

func TestSelectHighestConfidence(t *testing.T) {
	static := &stubStrategy{name: "static", method: harvester.MethodStaticHTML, confidence: 0.7, handles: true}
	rendered := &stubStrategy{name: "rendered", method: harvester.MethodRendered, confidence: 0.9, handles: true}

	s, err := NewSelector(false, rendered, static)
	require.NoError(t, err)

	assert.Equal(t, "rendered", s.Select("https://example.com").Name())
}

func TestSelectTieGoesToFirstRegistered(t *testing.T) {
	first := &stubStrategy{name: "first", method: harvester.MethodStaticHTML, confidence: 0.7, handles: true}
	second := &stubStrategy{name: "second", method: harvester.MethodStaticHTML, confidence: 0.7, handles: true}

	s, err := NewSelector(false, first, second)
	require.NoError(t, err)

	assert.Equal(t, "first", s.Select("https://example.com").Name())
}

func TestSelectPrefersAI(t *testing.T) {
	static := &stubStrategy{name: "static", method: harvester.MethodStaticHTML, confidence: 0.7, handles: true}
	ai := &stubStrategy{name: "aidoc", method: harvester.MethodAIDocument, confidence: 0.95, handles: true}
	rendered := &stubStrategy{name: "rendered", method: harvester.MethodRendered, confidence: 0.9, handles: true}

	s, err := NewSelector(true, static, rendered, ai)
	require.NoError(t, err)
	assert.Equal(t, "aidoc", s.Select("https://example.com").Name())

	// Without the preference the highest static confidence still wins.
	s, err = NewSelector(false, static, rendered, ai)
	require.NoError(t, err)
	assert.Equal(t, "aidoc", s.Select("https://example.com").Name())
}

func TestSelectFallsBackToLastRegistered(t *testing.T) {
	picky := &stubStrategy{name: "picky", method: harvester.MethodRendered, confidence: 0.9, handles: false}
	fallback := &stubStrategy{name: "fallback", method: harvester.MethodStaticHTML, confidence: 0.7, handles: false}

	s, err := NewSelector(false, picky, fallback)
	require.NoError(t, err)

	assert.Equal(t, "fallback", s.Select("ftp://weird").Name())
}

func TestDescribe(t *testing.T) {
	static := &stubStrategy{name: "static", method: harvester.MethodStaticHTML, confidence: 0.7, handles: true}
	s, err := NewSelector(false, static)
	require.NoError(t, err)

	infos := s.Describe()
	require.Len(t, infos, 1)
	assert.Equal(t, "static", infos[0].Name)
	assert.Equal(t, "static_html", infos[0].Method)
	assert.InDelta(t, 0.7, infos[0].Confidence, 1e-9)
}
