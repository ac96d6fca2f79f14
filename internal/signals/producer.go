package signals

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/magscore/internal/catalog"
	"github.com/danielpatrickdp/magscore/internal/gate"
)

// #region extractor

// Extractor maps one snapshot of raw statistics to signal values for a category.
// A signal is emitted only when the statistics it needs are present.
type Extractor func(phase catalog.Zone, values map[string]float64) map[string]float64

// DefaultExtractors returns the built-in extractor per statistical category.
func DefaultExtractors() map[catalog.Category]Extractor {
	return map[catalog.Category]Extractor{
		catalog.Stability:  extractStability,
		catalog.Intensity:  extractIntensity,
		catalog.Psychology: extractPsychology,
		catalog.Cohesion:   extractCohesion,
	}
}

// #endregion extractor

// #region producer

// Producer turns raw match statistics into RawSignals.
type Producer struct {
	gate       *gate.Gate
	extractors map[catalog.Category]Extractor
	order      []catalog.Category
}

// NewProducer creates a Producer. A nil extractor map selects DefaultExtractors.
func NewProducer(g *gate.Gate, extractors map[catalog.Category]Extractor) *Producer {
	if extractors == nil {
		extractors = DefaultExtractors()
	}
	order := make([]catalog.Category, 0, len(extractors))
	for c := range extractors {
		order = append(order, c)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	return &Producer{gate: g, extractors: extractors, order: order}
}

// #endregion producer

// #region produce

// Produce gate-checks every statistic name, then runs the category extractors
// concurrently. Output is ordered by category, then phase, then input order,
// so snapshots keep their chronological order per code.
func (p *Producer) Produce(ctx context.Context, stats map[catalog.Zone][]Snapshot) ([]RawSignal, error) {
	phases := make([]catalog.Zone, 0, len(stats))
	for _, z := range catalog.Zones {
		if _, ok := stats[z]; ok {
			phases = append(phases, z)
		}
	}
	if len(phases) != len(stats) {
		for z := range stats {
			if z != catalog.ZoneGlobal && z != catalog.ZoneLast15Min {
				return nil, fmt.Errorf("produce: unknown phase %q", z)
			}
		}
	}

	var violations []gate.Violation
	for _, z := range phases {
		for i, snap := range stats[z] {
			violations = append(violations, p.gate.Scan(fmt.Sprintf("stats.%s[%d].values", z, i), snap.Values)...)
		}
	}
	if len(violations) > 0 {
		return nil, &gate.ForbiddenFieldError{Violations: violations}
	}

	results := make([][]RawSignal, len(p.order))
	g, ctx := errgroup.WithContext(ctx)
	for i, category := range p.order {
		extract := p.extractors[category]
		g.Go(func() error {
			var out []RawSignal
			for _, z := range phases {
				for _, snap := range stats[z] {
					if err := ctx.Err(); err != nil {
						return err
					}
					values := extract(z, snap.Values)
					codes := make([]string, 0, len(values))
					for code := range values {
						codes = append(codes, code)
					}
					sort.Strings(codes)
					for _, code := range codes {
						out = append(out, RawSignal{
							Category: category,
							Code:     code,
							Value:    values[code],
							Phase:    z,
							Minute:   snap.Minute,
						})
					}
				}
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("produce signals: %w", err)
	}

	var all []RawSignal
	for _, r := range results {
		all = append(all, r...)
	}
	return all, nil
}

// #endregion produce

// #region aliases

// statAliases lists accepted alternative names per canonical statistic, in
// lookup order. Providers disagree on naming; the canonical name wins.
var statAliases = map[string][]string{
	"tackles":                 {"tackles_won"},
	"shots_against":           {"shots_conceded"},
	"shots_on_target_against": {"shots_on_target_conceded"},
	"xg_against":              {"expected_goals_against"},
	"blocks":                  {"shots_blocked"},
	"ball_recoveries":         {"recoveries"},
	"duels":                   {"duels_total"},
	"sprints":                 {"sprint_count"},
	"distance_covered":        {"running_distance"},
	"fouls":                   {"fouls_committed"},
	"passes":                  {"passes_total"},
	"pass_accuracy":           {"passes_accuracy"},
	"possession":              {"possession_percentage"},
}

// stat returns the value of a canonical statistic or its first present alias.
func stat(v map[string]float64, name string) (float64, bool) {
	if x, ok := v[name]; ok {
		return x, true
	}
	for _, alias := range statAliases[name] {
		if x, ok := v[alias]; ok {
			return x, true
		}
	}
	return 0, false
}

// #endregion aliases

// #region stability

func extractStability(z catalog.Zone, v map[string]float64) map[string]float64 {
	out := make(map[string]float64)
	interceptions, hasInt := stat(v, "interceptions")
	tackles, hasTck := stat(v, "tackles")
	defensive := interceptions + tackles

	if hasInt || hasTck {
		shots, ok := stat(v, "shots_against")
		if !ok || shots <= 0 {
			shots = 1
		}
		out["high_compactness"] = clamp(defensive / (shots * phaseScale(z, 3, 2)))
	}
	if actions, ok := sumPresent(v, "clearances", "blocks", "saves"); ok {
		out["successful_low_block"] = clamp(actions / phaseScale(z, 20, 10))
	}
	sot, hasSOT := stat(v, "shots_on_target_against")
	if hasSOT {
		out["low_block_drop"] = clamp(sot * phaseScale(z, 1, 1.5) / (defensive + 1))
	}
	if xg, ok := stat(v, "xg_against"); ok {
		out["xg_against_spike"] = clamp(xg / phaseScale(z, 2, 1))
	} else if hasSOT {
		out["xg_against_spike"] = clamp(sot / phaseScale(z, 6, 3))
	}
	return out
}

// #endregion stability

// #region intensity

func extractIntensity(z catalog.Zone, v map[string]float64) map[string]float64 {
	out := make(map[string]float64)
	if rec, ok := stat(v, "ball_recoveries"); ok {
		interceptions, _ := stat(v, "interceptions")
		out["pressing_wave"] = clamp((rec + interceptions) / phaseScale(z, 25, 10))
	}
	duels, hasDuels := stat(v, "duels")
	won, hasWon := stat(v, "duels_won")
	if hasDuels && hasWon && duels > 0 {
		winRatio := won / duels
		out["high_duel_pressure"] = clamp((winRatio - 0.3) / 0.4)
		out["duel_loss_spike"] = clamp((1 - winRatio - 0.3) / 0.4)
	}
	sprints, hasSprints := stat(v, "sprints")
	if km, ok := stat(v, "distance_covered"); ok && hasSprints && km > 0 {
		perKm := sprints / km
		out["running_distance_drop"] = clamp(phaseScale(z, 0.5, 1) - perKm/phaseScale(z, 20, 10))
	}
	if hasSprints {
		out["sprint_drop"] = clamp(1 - sprints/phaseScale(z, 150, 25))
	}
	return out
}

// #endregion intensity

// #region psychology

func extractPsychology(z catalog.Zone, v map[string]float64) map[string]float64 {
	out := make(map[string]float64)
	if fouls, ok := stat(v, "fouls"); ok {
		out["fouls_spike"] = clamp(fouls / phaseScale(z, 20, 6))
	}
	if dissent, ok := stat(v, "dissent"); ok {
		out["protest_pattern"] = clamp(dissent / phaseScale(z, 5, 3))
	}
	yellow, hasYellow := stat(v, "yellow_cards")
	red, hasRed := stat(v, "red_cards")
	if hasYellow || hasRed {
		out["card_pressure"] = clamp((yellow + 2*red) / phaseScale(z, 5, 3))
	}
	if rec, ok := stat(v, "defensive_recoveries"); ok {
		out["high_defensive_recovery"] = clamp(rec / phaseScale(z, 30, 10))
	}
	if pressures, ok := stat(v, "pressures"); ok {
		out["late_pressing_effort"] = clamp(pressures / phaseScale(z, 150, 40))
	}
	return out
}

// #endregion psychology

// #region cohesion

func extractCohesion(_ catalog.Zone, v map[string]float64) map[string]float64 {
	out := make(map[string]float64)
	passes, hasPasses := stat(v, "passes")
	var acc float64
	var hasAcc bool
	if completed, ok := stat(v, "passes_completed"); ok && hasPasses && passes > 0 {
		acc, hasAcc = clamp(completed/passes), true
	} else if pct, ok := stat(v, "pass_accuracy"); ok {
		acc, hasAcc = clamp(fraction(pct)), true
	}
	if hasAcc {
		out["passing_accuracy"] = acc
		out["coordination_loss"] = clamp((0.9 - acc) / 0.3)
	}
	if prog, ok := stat(v, "progressive_passes"); ok && hasPasses && passes > 0 {
		out["collective_movement"] = clamp(prog / passes * 5)
	}
	if poss, ok := stat(v, "possession"); ok {
		out["possession_control"] = clamp(fraction(poss))
	}
	return out
}

// #endregion cohesion

// #region helpers

// phaseScale picks the normalizer for the full match or the closing window.
func phaseScale(z catalog.Zone, global, last15 float64) float64 {
	if z == catalog.ZoneLast15Min {
		return last15
	}
	return global
}

// fraction reads a percentage given either as 0..1 or 0..100.
func fraction(v float64) float64 {
	if v > 1 {
		return v / 100
	}
	return v
}

// sumPresent adds the named statistics; ok is false when none are present.
func sumPresent(v map[string]float64, keys ...string) (float64, bool) {
	var sum float64
	var found bool
	for _, k := range keys {
		if x, ok := stat(v, k); ok {
			sum += x
			found = true
		}
	}
	return sum, found
}

// clamp restricts v to [0, 1].
func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// #endregion helpers
