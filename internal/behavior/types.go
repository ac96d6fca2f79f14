// Package behavior activates catalog behaviors from convergent smoothed signals.
package behavior

import "github.com/danielpatrickdp/magscore/internal/catalog"

// #region activated-behavior

// SupportingSignal is a convergent signal and the recency factor applied to it.
type SupportingSignal struct {
	Category catalog.Category `json:"category"`
	Code     string           `json:"code"`
	Value    float64          `json:"value"`
	Minute   float64          `json:"minute"`
	Recency  float64          `json:"recency"`
}

// ActivatedBehavior is a behavior that cleared the convergence gate in a phase.
type ActivatedBehavior struct {
	Code          string             `json:"code"`
	Name          string             `json:"name"`
	Category      catalog.Category   `json:"category"`
	Zone          catalog.Zone       `json:"zone"`
	WeightedScore float64            `json:"weighted_score"`
	Multiplier    float64            `json:"multiplier"`
	Supporting    []SupportingSignal `json:"supporting_signals"`
}

// Contradiction is a pair of opposed behaviors active in the same phase.
// Neither is suppressed; the pair is reported for the reader.
type Contradiction struct {
	Zone  catalog.Zone `json:"zone"`
	Codes [2]string    `json:"codes"`
}

// #endregion activated-behavior

// #region config

// RecencyKind selects the recency factor curve.
type RecencyKind string

const (
	RecencyLinear      RecencyKind = "linear"
	RecencyExponential RecencyKind = "exponential"
)

// RecencyConfig shapes how distance from the phase end discounts a signal.
type RecencyConfig struct {
	Kind     RecencyKind `koanf:"kind"`
	Floor    float64     `koanf:"floor"`     // factor at the phase start (linear) or lower bound (exponential)
	HalfLife float64     `koanf:"half_life"` // minutes, exponential only
}

// MinConvergenceFloor is the lowest accepted min_convergence. A single signal
// never activates a behavior.
const MinConvergenceFloor = 2

// Config holds the evaluator constants.
type Config struct {
	MinConvergence   int           `koanf:"min_convergence"`
	BoostConvergence int           `koanf:"boost_convergence"`
	BoostFactor      float64       `koanf:"boost_factor"`
	Recency          RecencyConfig `koanf:"recency"`
	ZoneAgnostic     []string      `koanf:"zone_agnostic"` // extra behavior codes evaluated in every phase
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MinConvergence:   2,
		BoostConvergence: 3,
		BoostFactor:      1.5,
		Recency: RecencyConfig{
			Kind:     RecencyLinear,
			Floor:    0.5,
			HalfLife: 15,
		},
	}
}

// #endregion config
