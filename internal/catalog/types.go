// Package catalog holds the static behavior and pattern tables. Tables are
// plain data; Load checks them for consistency once and freezes them.
package catalog

import (
	"errors"
	"fmt"
)

// #region enums

// Category identifies a signal family.
type Category string

const (
	Stability  Category = "STB"
	Intensity  Category = "INT"
	Psychology Category = "PSY"
	Cohesion   Category = "COH"
	Visual     Category = "VIS"
)

// Zone names a match phase a behavior is evaluated in.
type Zone string

const (
	ZoneGlobal    Zone = "global"
	ZoneLast15Min Zone = "last_15_min"
)

// Zones lists phases in chronological evaluation order.
var Zones = []Zone{ZoneGlobal, ZoneLast15Min}

// Kind classifies a pattern definition.
type Kind string

const (
	KindTriple Kind = "triple"
	KindDouble Kind = "double"
	KindVisual Kind = "visual"
)

// KindRank orders kinds for output: triple, then double, then visual.
var KindRank = map[Kind]int{KindTriple: 0, KindDouble: 1, KindVisual: 2}

// #endregion enums

// #region entries

// CategoryInfo describes one row of the category table.
type CategoryInfo struct {
	Code   Category `koanf:"code"`
	Name   string   `koanf:"name"`
	Visual bool     `koanf:"visual"` // discretized into presence codes for matching
}

// RuleSignal is one (category, code) pair of an activation rule with its threshold.
type RuleSignal struct {
	Category  Category `koanf:"category" json:"category"`
	Code      string   `koanf:"code" json:"code"`
	Threshold float64  `koanf:"threshold" json:"threshold"`
}

// Behavior is a catalog row: a named activation rule over convergent signals.
type Behavior struct {
	Code         string       `koanf:"code"`
	Name         string       `koanf:"name"`
	Category     Category     `koanf:"category"`
	Zone         Zone         `koanf:"zone"`
	ZoneAgnostic bool         `koanf:"zone_agnostic"`
	Contradicts  string       `koanf:"contradicts"`
	Rule         []RuleSignal `koanf:"rule"`
}

// PatternDefinition is a catalog row: a required set of behavior and visual codes.
type PatternDefinition struct {
	Code     string   `koanf:"code"`
	Name     string   `koanf:"name"`
	Kind     Kind     `koanf:"kind"`
	Required []string `koanf:"required"`
}

// #endregion entries

// #region errors

var (
	// ErrUnknownSignalCategory: a rule references a category missing from the table.
	ErrUnknownSignalCategory = errors.New("unknown signal category")
	// ErrUnknownBehaviorReference: a pattern references a code that is neither a behavior nor a visual code.
	ErrUnknownBehaviorReference = errors.New("unknown behavior reference")
)

// ReferenceError names the catalog row and the reference that failed to resolve.
type ReferenceError struct {
	Owner string // behavior or pattern code
	Ref   string // missing category or code
	Err   error  // one of the sentinels above
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("%s references %q: %v", e.Owner, e.Ref, e.Err)
}

func (e *ReferenceError) Unwrap() error { return e.Err }

// #endregion errors

// #region timeline

// Timeline fixes the match clock used to place phases.
type Timeline struct {
	MatchLength float64 `koanf:"match_length" json:"match_length"` // minutes in regulation
	FinalWindow float64 `koanf:"final_window" json:"final_window"` // minutes in the closing phase
}

// DefaultTimeline is a 90-minute match with a 15-minute closing window.
func DefaultTimeline() Timeline {
	return Timeline{MatchLength: 90, FinalWindow: 15}
}

// Window returns the [start, end] minutes of a phase.
func (t Timeline) Window(z Zone) (start, end float64) {
	if z == ZoneLast15Min {
		return t.MatchLength - t.FinalWindow, t.MatchLength
	}
	return 0, t.MatchLength
}

// Through stretches the match end to minute when play ran past match_length.
// The closing phase moves with it.
func (t Timeline) Through(minute float64) Timeline {
	if minute > t.MatchLength {
		t.MatchLength = minute
	}
	return t
}

// ZoneOf reports the narrowest phase containing minute.
func (t Timeline) ZoneOf(minute float64) Zone {
	if minute >= t.MatchLength-t.FinalWindow {
		return ZoneLast15Min
	}
	return ZoneGlobal
}

// #endregion timeline
