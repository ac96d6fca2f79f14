package behavior

import (
	"fmt"
	"math"
	"sort"

	"github.com/danielpatrickdp/magscore/internal/catalog"
	"github.com/danielpatrickdp/magscore/internal/signals"
)

// #region evaluator

// Evaluator applies the catalog's activation rules to one phase at a time.
// It is stateless and safe for concurrent use.
type Evaluator struct {
	catalog  *catalog.Catalog
	config   Config
	timeline catalog.Timeline
	agnostic map[string]struct{}
}

// NewEvaluator validates the configuration against the catalog.
func NewEvaluator(c *catalog.Catalog, config Config, timeline catalog.Timeline) (*Evaluator, error) {
	if config.MinConvergence < MinConvergenceFloor {
		return nil, fmt.Errorf("behavior: min_convergence must be >= %d, got %d", MinConvergenceFloor, config.MinConvergence)
	}
	if config.BoostFactor <= 0 {
		return nil, fmt.Errorf("behavior: boost_factor must be > 0, got %v", config.BoostFactor)
	}
	switch config.Recency.Kind {
	case RecencyLinear:
	case RecencyExponential:
		if config.Recency.HalfLife <= 0 {
			return nil, fmt.Errorf("behavior: exponential recency needs a positive half_life")
		}
	default:
		return nil, fmt.Errorf("behavior: unknown recency kind %q", config.Recency.Kind)
	}
	if config.Recency.Floor < 0 || config.Recency.Floor > 1 {
		return nil, fmt.Errorf("behavior: recency floor must be in [0,1], got %v", config.Recency.Floor)
	}
	agnostic := make(map[string]struct{}, len(config.ZoneAgnostic))
	for _, code := range config.ZoneAgnostic {
		if _, ok := c.Behavior(code); !ok {
			return nil, &catalog.ReferenceError{Owner: "behavior.zone_agnostic", Ref: code, Err: catalog.ErrUnknownBehaviorReference}
		}
		agnostic[code] = struct{}{}
	}
	return &Evaluator{catalog: c, config: config, timeline: timeline, agnostic: agnostic}, nil
}

// #endregion evaluator

// #region evaluate

type signalKey struct {
	category catalog.Category
	code     string
}

// Evaluate activates behaviors for phase from its smoothed signals, unioned
// with visual signals of the same phase. Signals from other phases are ignored.
// The result is ordered by weighted score descending, then code ascending.
func (e *Evaluator) Evaluate(phase catalog.Zone, smoothed []signals.SmoothedSignal, visual []signals.RawSignal) ([]ActivatedBehavior, error) {
	present := make(map[signalKey]signals.SmoothedSignal, len(smoothed)+len(visual))
	for _, s := range smoothed {
		if _, ok := e.catalog.Category(s.Category); !ok {
			return nil, fmt.Errorf("evaluate %s/%s: %w: %q", s.Category, s.Code, catalog.ErrUnknownSignalCategory, s.Category)
		}
		if s.Phase == phase {
			present[signalKey{s.Category, s.Code}] = s
		}
	}
	for _, v := range visual {
		if _, ok := e.catalog.Category(v.Category); !ok {
			return nil, fmt.Errorf("evaluate %s/%s: %w: %q", v.Category, v.Code, catalog.ErrUnknownSignalCategory, v.Category)
		}
		if v.Phase != phase {
			continue
		}
		k := signalKey{v.Category, v.Code}
		if prev, ok := present[k]; ok && prev.Minute > v.Minute {
			continue
		}
		present[k] = signals.SmoothedSignal(v)
	}

	var out []ActivatedBehavior
	for _, b := range e.catalog.Behaviors() {
		if !e.eligible(b, phase) {
			continue
		}
		if ab, ok := e.activate(b, phase, present); ok {
			out = append(out, ab)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].WeightedScore != out[j].WeightedScore {
			return out[i].WeightedScore > out[j].WeightedScore
		}
		return out[i].Code < out[j].Code
	})
	return out, nil
}

func (e *Evaluator) eligible(b catalog.Behavior, phase catalog.Zone) bool {
	if b.Zone == phase || b.ZoneAgnostic {
		return true
	}
	_, ok := e.agnostic[b.Code]
	return ok
}

// activate applies the convergence gate, recency weighting and boost to one behavior.
func (e *Evaluator) activate(b catalog.Behavior, phase catalog.Zone, present map[signalKey]signals.SmoothedSignal) (ActivatedBehavior, bool) {
	var support []SupportingSignal
	for _, rule := range b.Rule {
		s, ok := present[signalKey{rule.Category, rule.Code}]
		if !ok || s.Value < rule.Threshold {
			continue
		}
		support = append(support, SupportingSignal{
			Category: s.Category,
			Code:     s.Code,
			Value:    s.Value,
			Minute:   s.Minute,
			Recency:  e.Recency(phase, s.Minute),
		})
	}
	if len(support) < e.config.MinConvergence {
		return ActivatedBehavior{}, false
	}

	var sum float64
	for _, s := range support {
		sum += s.Value * s.Recency
	}
	multiplier := 1.0
	if e.config.BoostConvergence > 0 && len(support) >= e.config.BoostConvergence {
		multiplier = e.config.BoostFactor
	}
	return ActivatedBehavior{
		Code:          b.Code,
		Name:          b.Name,
		Category:      b.Category,
		Zone:          phase,
		WeightedScore: sum * multiplier,
		Multiplier:    multiplier,
		Supporting:    support,
	}, true
}

// #endregion evaluate

// #region recency

// Recency returns the factor for an observation at minute within phase. It is
// 1 at the phase end and never increases with distance from it.
func (e *Evaluator) Recency(phase catalog.Zone, minute float64) float64 {
	start, end := e.timeline.Window(phase)
	span := end - start
	distance := end - minute
	if distance < 0 {
		distance = 0
	}
	if span > 0 && distance > span {
		distance = span
	}
	floor := e.config.Recency.Floor
	switch e.config.Recency.Kind {
	case RecencyExponential:
		return math.Max(floor, math.Pow(0.5, distance/e.config.Recency.HalfLife))
	default:
		if span <= 0 {
			return 1
		}
		return 1 - (1-floor)*distance/span
	}
}

// #endregion recency

// #region contradictions

// Contradictions lists opposed pairs that are both active in the same phase.
// Each pair is reported once, lower code first.
func Contradictions(c *catalog.Catalog, activated []ActivatedBehavior) []Contradiction {
	active := make(map[catalog.Zone]map[string]struct{})
	for _, ab := range activated {
		if active[ab.Zone] == nil {
			active[ab.Zone] = make(map[string]struct{})
		}
		active[ab.Zone][ab.Code] = struct{}{}
	}
	var out []Contradiction
	for _, z := range catalog.Zones {
		codes := active[z]
		for _, b := range c.Behaviors() {
			if b.Contradicts == "" || b.Code > b.Contradicts {
				continue
			}
			_, a := codes[b.Code]
			_, o := codes[b.Contradicts]
			if a && o {
				out = append(out, Contradiction{Zone: z, Codes: [2]string{b.Code, b.Contradicts}})
			}
		}
	}
	return out
}

// #endregion contradictions
