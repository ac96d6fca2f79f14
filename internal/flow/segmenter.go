// Package flow splits a match timeline into phases and flags abrupt changes
// in the signal profile between consecutive sub-windows.
package flow

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/danielpatrickdp/magscore/internal/catalog"
	"github.com/danielpatrickdp/magscore/internal/signals"
)

// #region types

// ErrIncompleteTimeline: fewer than two populated sub-windows, so no delta exists.
var ErrIncompleteTimeline = errors.New("incomplete timeline")

// ErrInvalidPoint: a point has a non-finite minute or value.
var ErrInvalidPoint = errors.New("invalid timeline point")

// Phase is a named segment of the match clock.
type Phase struct {
	Name  catalog.Zone `json:"name"`
	Start float64      `json:"start"`
	End   float64      `json:"end"`
}

// Profile is the mean smoothed value per category over one sub-window.
// Categories without observations carry the previous window's value forward.
type Profile struct {
	Start  float64                      `json:"start"`
	End    float64                      `json:"end"`
	Values map[catalog.Category]float64 `json:"values"`
}

// RuptureEvent marks a profile change above the configured magnitude.
type RuptureEvent struct {
	Phase                catalog.Zone       `json:"phase"`
	Magnitude            float64            `json:"magnitude"`
	TriggeringCategories []catalog.Category `json:"triggering_categories"`
	FromMinute           float64            `json:"from_minute"`
	ToMinute             float64            `json:"to_minute"`
}

// Flow is the segmenter output.
type Flow struct {
	Phases   []Phase        `json:"phases"`
	Windows  []Profile      `json:"windows"`
	Ruptures []RuptureEvent `json:"ruptures"`
}

// Config holds sub-window and rupture parameters.
type Config struct {
	SubWindow         float64 `koanf:"sub_window"`         // minutes per profile window
	Threshold         float64 `koanf:"threshold"`          // L2 magnitude that counts as a rupture
	CategoryThreshold float64 `koanf:"category_threshold"` // per-category delta that names a trigger
}

// DefaultConfig returns 15-minute windows with a 0.35 rupture threshold.
func DefaultConfig() Config {
	return Config{SubWindow: 15, Threshold: 0.35, CategoryThreshold: 0.2}
}

// #endregion types

// #region segmenter

// Segmenter is stateless and safe for concurrent use.
type Segmenter struct {
	config   Config
	timeline catalog.Timeline
}

// NewSegmenter validates config against the timeline.
func NewSegmenter(config Config, timeline catalog.Timeline) (*Segmenter, error) {
	if config.SubWindow <= 0 {
		return nil, fmt.Errorf("flow: sub_window must be > 0, got %v", config.SubWindow)
	}
	if config.Threshold < 0 || config.CategoryThreshold < 0 {
		return nil, fmt.Errorf("flow: thresholds must be >= 0")
	}
	if timeline.MatchLength <= 0 || timeline.FinalWindow <= 0 || timeline.FinalWindow > timeline.MatchLength {
		return nil, fmt.Errorf("flow: invalid timeline %+v", timeline)
	}
	return &Segmenter{config: config, timeline: timeline}, nil
}

// Phases returns the phases in chronological order. The match end is the
// later of match_length and the last observed minute.
func (s *Segmenter) Phases(points []signals.SmoothedPoint) []Phase {
	return phasesOf(s.extent(points))
}

func phasesOf(t catalog.Timeline) []Phase {
	out := make([]Phase, 0, len(catalog.Zones))
	for _, z := range catalog.Zones {
		start, end := t.Window(z)
		out = append(out, Phase{Name: z, Start: start, End: end})
	}
	return out
}

// extent is the configured timeline stretched over points past full time.
func (s *Segmenter) extent(points []signals.SmoothedPoint) catalog.Timeline {
	t := s.timeline
	for _, p := range points {
		t = t.Through(p.Minute)
	}
	return t
}

// Segment profiles each populated sub-window and emits a rupture for every
// consecutive pair whose delta exceeds the threshold. Adjacent ruptures are
// not merged.
func (s *Segmenter) Segment(points []signals.SmoothedPoint) (Flow, error) {
	for i, p := range points {
		if !finite(p.Minute) || !finite(p.Value) {
			return Flow{}, fmt.Errorf("segment point %d (%s/%s): %w", i, p.Category, p.Code, ErrInvalidPoint)
		}
	}
	t := s.extent(points)
	windows := s.profiles(points, t.MatchLength)
	if len(windows) < 2 {
		return Flow{}, fmt.Errorf("segment %d populated sub-window(s): %w", len(windows), ErrIncompleteTimeline)
	}

	f := Flow{Phases: phasesOf(t), Windows: windows}
	for i := 1; i < len(windows); i++ {
		prev, cur := windows[i-1], windows[i]
		magnitude, triggers := s.delta(prev, cur)
		if magnitude <= s.config.Threshold {
			continue
		}
		f.Ruptures = append(f.Ruptures, RuptureEvent{
			Phase:                phaseOf(t, cur),
			Magnitude:            magnitude,
			TriggeringCategories: triggers,
			FromMinute:           prev.Start,
			ToMinute:             cur.End,
		})
	}
	return f, nil
}

// phaseOf places a window in the closing phase when more than half of it lies
// inside that phase.
func phaseOf(t catalog.Timeline, w Profile) catalog.Zone {
	start, end := t.Window(catalog.ZoneLast15Min)
	overlap := math.Min(w.End, end) - math.Max(w.Start, start)
	if w.End > w.Start && overlap > (w.End-w.Start)/2 {
		return catalog.ZoneLast15Min
	}
	return catalog.ZoneGlobal
}

// #endregion segmenter

// #region profiles

// profiles buckets points into sub-windows of the regulation timeline. Minutes
// past full time fold into the last window, which then ends at matchEnd.
func (s *Segmenter) profiles(points []signals.SmoothedPoint, matchEnd float64) []Profile {
	type acc struct{ sum, n float64 }
	count := int(math.Ceil(s.timeline.MatchLength / s.config.SubWindow))
	buckets := make([]map[catalog.Category]*acc, count)
	first := make(map[catalog.Category]float64)
	for _, p := range points {
		idx := int(math.Floor(p.Minute / s.config.SubWindow))
		if idx < 0 {
			idx = 0
		}
		if idx >= count {
			idx = count - 1
		}
		if buckets[idx] == nil {
			buckets[idx] = make(map[catalog.Category]*acc)
		}
		a := buckets[idx][p.Category]
		if a == nil {
			a = &acc{}
			buckets[idx][p.Category] = a
		}
		a.sum += p.Value
		a.n++
	}

	// seed carry-forward with each category's first observed mean
	for _, b := range buckets {
		for c, a := range b {
			if _, ok := first[c]; !ok {
				first[c] = a.sum / a.n
			}
		}
	}

	var out []Profile
	carry := first
	for i, b := range buckets {
		if b == nil {
			continue
		}
		values := make(map[catalog.Category]float64, len(carry))
		for c, v := range carry {
			values[c] = v
		}
		for c, a := range b {
			values[c] = a.sum / a.n
		}
		start := float64(i) * s.config.SubWindow
		end := math.Min(start+s.config.SubWindow, s.timeline.MatchLength)
		if i == count-1 {
			end = matchEnd
		}
		out = append(out, Profile{Start: start, End: end, Values: values})
		carry = values
	}
	return out
}

// delta returns the L2 distance between profiles and the categories whose
// absolute change reaches the category threshold. The category with the
// largest change is always included.
func (s *Segmenter) delta(prev, cur Profile) (float64, []catalog.Category) {
	var sq, largest float64
	var top catalog.Category
	var triggers []catalog.Category
	for c, v := range cur.Values {
		d := math.Abs(v - prev.Values[c])
		sq += d * d
		if d >= s.config.CategoryThreshold {
			triggers = append(triggers, c)
		}
		if d > largest || (d == largest && d > 0 && c < top) {
			largest, top = d, c
		}
	}
	if len(triggers) == 0 && largest > 0 {
		triggers = append(triggers, top)
	}
	sort.Slice(triggers, func(i, j int) bool { return triggers[i] < triggers[j] })
	return math.Sqrt(sq), triggers
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// #endregion profiles
