// Package eval re-checks an analysis bundle against the engine's invariants
// before it leaves the pipeline.
package eval

import (
	"fmt"

	"github.com/danielpatrickdp/magscore/internal/behavior"
	"github.com/danielpatrickdp/magscore/internal/catalog"
	"github.com/danielpatrickdp/magscore/internal/gate"
	"github.com/danielpatrickdp/magscore/internal/memory"
	"github.com/danielpatrickdp/magscore/internal/pattern"
)

// #region eval-harness
// EvalHarness validates finished bundles.
type EvalHarness struct {
	config EvalConfig
	gate   *gate.Gate
}

// NewEvalHarness creates an eval harness with the given configuration.
func NewEvalHarness(config EvalConfig, g *gate.Gate) *EvalHarness {
	return &EvalHarness{config: config, gate: g}
}

type check struct {
	name string
	run  func(Bundle) []string
}

// Run performs every check and reports each as a metric. The first failure
// becomes the reason.
func (h *EvalHarness) Run(b Bundle) EvalResult {
	checks := []check{
		{"behavior_convergence", h.convergence},
		{"behavior_multiplier", h.multiplier},
		{"behavior_order", behaviorOrder},
		{"pattern_support", patternSupport},
		{"pattern_order", patternOrder},
		{"rupture_threshold", h.ruptureThreshold},
		{"semantic_consistency", semanticConsistency},
		{"neutrality", h.neutrality},
	}

	var metrics []EvalMetric
	var failReasons []string
	for _, c := range checks {
		problems := c.run(b)
		metrics = append(metrics, EvalMetric{Name: c.name, Value: float64(len(problems)), Pass: len(problems) == 0})
		for _, p := range problems {
			failReasons = append(failReasons, c.name+": "+p)
		}
	}

	reason := "all checks passed"
	if len(failReasons) > 0 {
		reason = fmt.Sprintf("eval failed: %s", failReasons[0])
		if len(failReasons) > 1 {
			reason = fmt.Sprintf("eval failed: %d checks: %s", len(failReasons), failReasons[0])
		}
	}
	return EvalResult{Passed: len(failReasons) == 0, Metrics: metrics, Reason: reason}
}

// #endregion eval-harness

// #region behavior-checks

func (h *EvalHarness) convergence(b Bundle) []string {
	var out []string
	for _, ab := range b.Behaviors {
		if len(ab.Supporting) < h.config.MinConvergence {
			out = append(out, fmt.Sprintf("%s/%s active with %d signal(s)", ab.Zone, ab.Code, len(ab.Supporting)))
		}
	}
	return out
}

func (h *EvalHarness) multiplier(b Bundle) []string {
	var out []string
	for _, ab := range b.Behaviors {
		want := 1.0
		if h.config.BoostConvergence > 0 && len(ab.Supporting) >= h.config.BoostConvergence {
			want = h.config.BoostFactor
		}
		if ab.Multiplier != want {
			out = append(out, fmt.Sprintf("%s/%s multiplier %v, want %v", ab.Zone, ab.Code, ab.Multiplier, want))
		}
	}
	return out
}

func behaviorOrder(b Bundle) []string {
	var out []string
	byZone := make(map[catalog.Zone][]behavior.ActivatedBehavior)
	for _, ab := range b.Behaviors {
		byZone[ab.Zone] = append(byZone[ab.Zone], ab)
	}
	for z, list := range byZone {
		for i := 1; i < len(list); i++ {
			prev, cur := list[i-1], list[i]
			if prev.WeightedScore < cur.WeightedScore ||
				(prev.WeightedScore == cur.WeightedScore && prev.Code > cur.Code) {
				out = append(out, fmt.Sprintf("%s: %s before %s", z, prev.Code, cur.Code))
			}
		}
	}
	return out
}

// #endregion behavior-checks

// #region pattern-checks

func patternSupport(b Bundle) []string {
	active := make(map[catalog.Zone]map[string]struct{})
	for _, ab := range b.Behaviors {
		if active[ab.Zone] == nil {
			active[ab.Zone] = make(map[string]struct{})
		}
		active[ab.Zone][ab.Code] = struct{}{}
	}
	var out []string
	for _, p := range b.Patterns {
		for _, code := range p.SupportingBehaviors {
			if _, ok := active[p.Zone][code]; !ok {
				out = append(out, fmt.Sprintf("%s/%s cites inactive %s", p.Zone, p.Code, code))
			}
		}
	}
	return out
}

func patternOrder(b Bundle) []string {
	var out []string
	byZone := make(map[catalog.Zone][]pattern.DetectedPattern)
	for _, p := range b.Patterns {
		byZone[p.Zone] = append(byZone[p.Zone], p)
	}
	for z, list := range byZone {
		for i := 1; i < len(list); i++ {
			prev, cur := list[i-1], list[i]
			pr, cr := catalog.KindRank[prev.Kind], catalog.KindRank[cur.Kind]
			if pr > cr || (pr == cr && prev.Code > cur.Code) {
				out = append(out, fmt.Sprintf("%s: %s before %s", z, prev.Code, cur.Code))
			}
		}
	}
	return out
}

// #endregion pattern-checks

// #region flow-checks

func (h *EvalHarness) ruptureThreshold(b Bundle) []string {
	var out []string
	for _, r := range b.Ruptures {
		if r.Magnitude <= h.config.RuptureThreshold {
			out = append(out, fmt.Sprintf("rupture %v-%v magnitude %.3f not above %.3f", r.FromMinute, r.ToMinute, r.Magnitude, h.config.RuptureThreshold))
		}
	}
	return out
}

// #endregion flow-checks

// #region memory-checks

func semanticConsistency(b Bundle) []string {
	if b.History == nil {
		return nil
	}
	want := memory.Frequencies(b.History.Episodes)
	var out []string
	for code, n := range want {
		if b.History.Frequencies[code] != n {
			out = append(out, fmt.Sprintf("%s frequency %d, episodes say %d", code, b.History.Frequencies[code], n))
		}
	}
	for code, n := range b.History.Frequencies {
		if _, ok := want[code]; !ok && n != 0 {
			out = append(out, fmt.Sprintf("%s frequency %d without episodes", code, n))
		}
	}
	return out
}

// #endregion memory-checks

// #region neutrality

func (h *EvalHarness) neutrality(b Bundle) []string {
	if h.gate == nil {
		return nil
	}
	err := h.gate.CheckStruct("result", b)
	if err == nil {
		return nil
	}
	return []string{err.Error()}
}

// #endregion neutrality
