// Package strategy selects which extraction strategy handles a URL.
package strategy

import (
	"github.com/fisatech/datasheet-harvester/internal/harvester"
)

// Info describes one registered strategy for statistics endpoints.
type Info struct {
	Name       string  `json:"name"`
	Method     string  `json:"method"`
	Confidence float64 `json:"confidence"`
}

// Selector holds strategies in registration order. The last registered
// strategy doubles as the fallback when no pattern predicate matches, so
// registries always end with a universal strategy.
type Selector struct {
	strategies []harvester.Strategy
	preferAI   bool
}

// NewSelector builds a Selector. At least one strategy is required.
func NewSelector(preferAI bool, strategies ...harvester.Strategy) (*Selector, error) {
	if len(strategies) == 0 {
		return nil, harvester.ErrNoStrategies
	}
	return &Selector{strategies: strategies, preferAI: preferAI}, nil
}

// Select picks the strategy for url: AI-backed candidates win when
// preferred, otherwise the highest-confidence candidate, ties going to
// the earliest registered. With no candidate at all the last registered
// strategy is the fallback.
func (s *Selector) Select(url string) harvester.Strategy {
	var candidates []harvester.Strategy
	for _, st := range s.strategies {
		if st.CanHandle(url) {
			candidates = append(candidates, st)
		}
	}
	if len(candidates) == 0 {
		return s.strategies[len(s.strategies)-1]
	}

	if s.preferAI {
		for _, st := range candidates {
			if st.Method() == harvester.MethodAIDocument {
				return st
			}
		}
	}

	best := candidates[0]
	for _, st := range candidates[1:] {
		if st.Confidence() > best.Confidence() {
			best = st
		}
	}
	return best
}

// All returns the registered strategies in registration order.
func (s *Selector) All() []harvester.Strategy {
	return s.strategies
}

// Describe lists the registered strategies.
func (s *Selector) Describe() []Info {
	infos := make([]Info, 0, len(s.strategies))
	for _, st := range s.strategies {
		infos = append(infos, Info{
			Name:       st.Name(),
			Method:     string(st.Method()),
			Confidence: st.Confidence(),
		})
	}
	return infos
}
