package signals

import (
	"sort"

	"github.com/danielpatrickdp/magscore/internal/catalog"
)

// #region config

// SmootherConfig holds the moving-window parameters.
type SmootherConfig struct {
	Window int     `koanf:"window"` // observations per weighted window
	Decay  float64 `koanf:"decay"`  // weight multiplier per step back in time, (0, 1]
}

// DefaultSmootherConfig returns a 3-observation window halving weight per step.
func DefaultSmootherConfig() SmootherConfig {
	return SmootherConfig{Window: 3, Decay: 0.5}
}

// #endregion config

// #region smoother

// Smoother dampens raw signal sequences. It holds no state between calls.
type Smoother struct {
	config SmootherConfig
}

// NewSmoother creates a smoother. Out-of-range parameters are clamped.
func NewSmoother(config SmootherConfig) *Smoother {
	if config.Window < 1 {
		config.Window = 1
	}
	if config.Decay <= 0 || config.Decay > 1 {
		config.Decay = 1
	}
	return &Smoother{config: config}
}

type seriesKey struct {
	phase    catalog.Zone
	category catalog.Category
	code     string
}

// Smooth returns one SmoothedSignal per (phase, category, code), ordered by
// phase, category, code. Input order within a key must be chronological.
func (s *Smoother) Smooth(raw []RawSignal) ([]SmoothedSignal, error) {
	groups, keys, err := group(raw)
	if err != nil {
		return nil, err
	}
	out := make([]SmoothedSignal, 0, len(keys))
	for _, k := range keys {
		seq := groups[k]
		last := len(seq) - 1
		out = append(out, SmoothedSignal{
			Category: k.category,
			Code:     k.code,
			Value:    s.weightedAt(seq, last),
			Phase:    k.phase,
			Minute:   seq[last].Minute,
		})
	}
	return out, nil
}

// SmoothSeries returns the running smoothed value at every observation, ordered
// by minute, then phase, category and code.
func (s *Smoother) SmoothSeries(raw []RawSignal) ([]SmoothedPoint, error) {
	groups, keys, err := group(raw)
	if err != nil {
		return nil, err
	}
	var out []SmoothedPoint
	for _, k := range keys {
		seq := groups[k]
		for i := range seq {
			out = append(out, SmoothedPoint{
				Category: k.category,
				Code:     k.code,
				Phase:    k.phase,
				Minute:   seq[i].Minute,
				Value:    s.weightedAt(seq, i),
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Minute < out[j].Minute
	})
	return out, nil
}

// weightedAt averages the window ending at i with weights decay^k, k steps back.
func (s *Smoother) weightedAt(seq []RawSignal, i int) float64 {
	var sum, weights float64
	w := 1.0
	for k := 0; k < s.config.Window && i-k >= 0; k++ {
		sum += w * seq[i-k].Value
		weights += w
		w *= s.config.Decay
	}
	return sum / weights
}

// #endregion smoother

// #region grouping

// group splits raw signals by key, validating chronological order, and returns
// keys sorted by phase, category, code.
func group(raw []RawSignal) (map[seriesKey][]RawSignal, []seriesKey, error) {
	groups := make(map[seriesKey][]RawSignal)
	var keys []seriesKey
	for _, r := range raw {
		k := seriesKey{phase: r.Phase, category: r.Category, code: r.Code}
		seq, seen := groups[k]
		if !seen {
			keys = append(keys, k)
		}
		if n := len(seq); n > 0 && r.Minute < seq[n-1].Minute {
			return nil, nil, &SequenceError{
				Category: r.Category,
				Code:     r.Code,
				Phase:    r.Phase,
				Index:    n,
				Minute:   r.Minute,
				Previous: seq[n-1].Minute,
			}
		}
		groups[k] = append(seq, r)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.phase != b.phase {
			return zoneRank(a.phase) < zoneRank(b.phase)
		}
		if a.category != b.category {
			return a.category < b.category
		}
		return a.code < b.code
	})
	return groups, keys, nil
}

func zoneRank(z catalog.Zone) int {
	for i, known := range catalog.Zones {
		if known == z {
			return i
		}
	}
	return len(catalog.Zones)
}

// #endregion grouping
