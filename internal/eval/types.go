package eval

import (
	"github.com/danielpatrickdp/magscore/internal/behavior"
	"github.com/danielpatrickdp/magscore/internal/flow"
	"github.com/danielpatrickdp/magscore/internal/memory"
	"github.com/danielpatrickdp/magscore/internal/pattern"
)

// #region eval-config
// EvalConfig holds the constants the checks compare against.
type EvalConfig struct {
	MinConvergence   int
	BoostConvergence int
	BoostFactor      float64
	RuptureThreshold float64
}

// ConfigFrom derives the checks from the evaluator and segmenter settings.
func ConfigFrom(b behavior.Config, f flow.Config) EvalConfig {
	return EvalConfig{
		MinConvergence:   b.MinConvergence,
		BoostConvergence: b.BoostConvergence,
		BoostFactor:      b.BoostFactor,
		RuptureThreshold: f.Threshold,
	}
}

// #endregion eval-config

// #region eval-input
// Bundle is the analysis output under validation.
type Bundle struct {
	Behaviors []behavior.ActivatedBehavior
	Patterns  []pattern.DetectedPattern
	Ruptures  []flow.RuptureEvent
	History   *memory.HistoricalContext
}

// #endregion eval-input

// #region eval-metric
// EvalMetric captures a single validation check result.
type EvalMetric struct {
	Name  string
	Value float64 // violations found
	Pass  bool
}

// #endregion eval-metric

// #region eval-result
// EvalResult is the output of validation.
type EvalResult struct {
	Passed  bool
	Metrics []EvalMetric
	Reason  string
}

// #endregion eval-result
