// Package pattern detects catalog combinations of activated behaviors and
// visual presence codes.
package pattern

import (
	"sort"

	"github.com/danielpatrickdp/magscore/internal/behavior"
	"github.com/danielpatrickdp/magscore/internal/catalog"
	"github.com/danielpatrickdp/magscore/internal/signals"
)

// #region types

// DetectedPattern is a combination whose every required code was present in a phase.
type DetectedPattern struct {
	Code                string       `json:"code"`
	Name                string       `json:"name"`
	Kind                catalog.Kind `json:"kind"`
	Zone                catalog.Zone `json:"zone"`
	SupportingBehaviors []string     `json:"supporting_behaviors"`
	SupportingVisuals   []string     `json:"supporting_visuals,omitempty"`
}

// #endregion types

// #region matcher

// Matcher evaluates the pattern table. Reference consistency is settled when
// the catalog loads, so matching itself cannot fail.
type Matcher struct {
	catalog *catalog.Catalog
}

// NewMatcher creates a matcher over c.
func NewMatcher(c *catalog.Catalog) *Matcher {
	return &Matcher{catalog: c}
}

// Match returns every pattern whose required set is contained in the phase's
// activated behavior codes plus its visual presence codes. Patterns are not
// mutually exclusive. Output follows catalog order: kind, then code.
func (m *Matcher) Match(phase catalog.Zone, activated []behavior.ActivatedBehavior, visual []signals.RawSignal) []DetectedPattern {
	present := make(map[string]struct{}, len(activated)+len(visual))
	for _, ab := range activated {
		if ab.Zone == phase {
			present[ab.Code] = struct{}{}
		}
	}
	for _, code := range m.PresenceCodes(phase, visual) {
		present[code] = struct{}{}
	}

	var out []DetectedPattern
	for _, p := range m.catalog.Patterns() {
		if !containsAll(present, p.Required) {
			continue
		}
		dp := DetectedPattern{Code: p.Code, Name: p.Name, Kind: p.Kind, Zone: phase}
		for _, code := range p.Required {
			if m.catalog.IsVisualCode(code) {
				dp.SupportingVisuals = append(dp.SupportingVisuals, code)
			} else {
				dp.SupportingBehaviors = append(dp.SupportingBehaviors, code)
			}
		}
		sort.Strings(dp.SupportingBehaviors)
		sort.Strings(dp.SupportingVisuals)
		out = append(out, dp)
	}
	return out
}

// PresenceCodes discretizes the phase's visual signals. When a family is
// observed more than once the latest observation wins. Codes are sorted.
func (m *Matcher) PresenceCodes(phase catalog.Zone, visual []signals.RawSignal) []string {
	latest := make(map[string]signals.RawSignal)
	for _, v := range visual {
		if v.Category != catalog.Visual || v.Phase != phase {
			continue
		}
		if prev, ok := latest[v.Code]; ok && prev.Minute > v.Minute {
			continue
		}
		latest[v.Code] = v
	}
	codes := make([]string, 0, len(latest))
	for _, v := range latest {
		codes = append(codes, m.catalog.PresenceCode(v.Code, v.Value))
	}
	sort.Strings(codes)
	return codes
}

func containsAll(present map[string]struct{}, required []string) bool {
	if len(required) == 0 {
		return false
	}
	for _, code := range required {
		if _, ok := present[code]; !ok {
			return false
		}
	}
	return true
}

// #endregion matcher
