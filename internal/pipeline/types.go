// Package pipeline runs one match through the signal, behavior, pattern, flow
// and memory stages and returns the neutral result bundle.
package pipeline

import (
	"errors"

	"github.com/danielpatrickdp/magscore/internal/behavior"
	"github.com/danielpatrickdp/magscore/internal/catalog"
	"github.com/danielpatrickdp/magscore/internal/flow"
	"github.com/danielpatrickdp/magscore/internal/memory"
	"github.com/danielpatrickdp/magscore/internal/pattern"
	"github.com/danielpatrickdp/magscore/internal/signals"
)

// #region input
// MatchInput is one team's view of a match. Stats are raw statistics keyed by
// phase; Signals and Visual are precomputed observations appended after the
// produced ones.
type MatchInput struct {
	MatchID    string                              `json:"match_id"`
	TeamID     string                              `json:"team_id"`
	MatchIndex int                                 `json:"match_index"`
	Attributes map[string]string                   `json:"attributes,omitempty"`
	Stats      map[catalog.Zone][]signals.Snapshot `json:"stats,omitempty"`
	Signals    []signals.RawSignal                 `json:"signals,omitempty"`
	Visual     []signals.RawSignal                 `json:"visual,omitempty"`
	DryRun     bool                                `json:"dry_run,omitempty"` // analyze without recording
}

// #endregion input

// #region result
// Result is the neutral analysis bundle. History is the team context read
// before this match was recorded.
type Result struct {
	RunID            string                       `json:"run_id"`
	MatchID          string                       `json:"match_id"`
	TeamID           string                       `json:"team_id"`
	Phases           []flow.Phase                 `json:"phases"`
	Behaviors        []behavior.ActivatedBehavior `json:"behaviors"`
	Patterns         []pattern.DetectedPattern    `json:"patterns"`
	Ruptures         []flow.RuptureEvent          `json:"ruptures"`
	Contradictions   []behavior.Contradiction     `json:"contradictions,omitempty"`
	TimelineComplete bool                         `json:"timeline_complete"`
	VisualAvailable  bool                         `json:"visual_available"`
	EpisodeID        string                       `json:"episode_id,omitempty"`
	History          memory.HistoricalContext     `json:"history"`
}

// #endregion result

// #region config
// Config gathers the stage settings.
type Config struct {
	Timeline  catalog.Timeline
	Smoothing signals.SmootherConfig
	Behavior  behavior.Config
	Flow      flow.Config
}

// DefaultConfig returns every stage's defaults.
func DefaultConfig() Config {
	return Config{
		Timeline:  catalog.DefaultTimeline(),
		Smoothing: signals.DefaultSmootherConfig(),
		Behavior:  behavior.DefaultConfig(),
		Flow:      flow.DefaultConfig(),
	}
}

// #endregion config

// #region errors

// ErrInvalidInput: the match input is malformed before any stage runs.
var ErrInvalidInput = errors.New("invalid match input")

// ErrResultRejected: the assembled bundle failed its invariant checks.
var ErrResultRejected = errors.New("result rejected")

// #endregion errors
