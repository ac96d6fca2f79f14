// Package memory keeps a bounded, neutrality-gated history of pattern
// summaries per team and the pattern frequencies derived from it.
package memory

import (
	"errors"
	"time"

	"github.com/danielpatrickdp/magscore/internal/catalog"
)

// #region entries

// RuptureSummary is the stored form of a rupture event.
type RuptureSummary struct {
	Phase      catalog.Zone       `json:"phase"`
	Magnitude  float64            `json:"magnitude"`
	Categories []catalog.Category `json:"categories"`
	FromMinute float64            `json:"from_minute"`
	ToMinute   float64            `json:"to_minute"`
}

// EpisodicEntry is one match's derived summary. It never carries raw statistics.
type EpisodicEntry struct {
	ID         string            `json:"id"`
	TeamID     string            `json:"team_id"`
	MatchIndex int               `json:"match_index"`
	Patterns   []string          `json:"detected_patterns"`
	Ruptures   []RuptureSummary  `json:"rupture_events"`
	Attributes map[string]string `json:"attributes,omitempty"`
	RecordedAt time.Time         `json:"recorded_at"`
}

// HistoricalContext is the read view handed to narrative collaborators.
// Frequencies[code] equals the number of Episodes containing code.
type HistoricalContext struct {
	TeamID      string             `json:"team_id"`
	Episodes    []EpisodicEntry    `json:"episodes"`
	Frequencies map[string]int     `json:"frequencies"`
	Shares      map[string]float64 `json:"shares"`
}

// #endregion entries

// #region allow-lists

// AllowedAttributes are the only attribute keys an entry may carry.
var AllowedAttributes = map[string]struct{}{
	"opposing_style": {},
	"competition":    {},
	"venue_type":     {},
}

// allowedFields are the keys accepted by RecordFields.
var allowedFields = map[string]struct{}{
	"match_index":       {},
	"detected_patterns": {},
	"rupture_events":    {},
	"attributes":        {},
}

var allowedRuptureFields = map[string]struct{}{
	"phase":       {},
	"magnitude":   {},
	"categories":  {},
	"from_minute": {},
	"to_minute":   {},
}

// #endregion allow-lists

// #region config

// Config bounds the per-team history.
type Config struct {
	MaxEpisodes   int    `koanf:"max_episodes"`
	RetentionDays int    `koanf:"retention_days"` // 0 disables age-based purging
	Path          string `koanf:"path"`           // SQLite file; empty keeps history in process
}

// DefaultConfig keeps the last 10 matches for up to a year.
func DefaultConfig() Config {
	return Config{MaxEpisodes: 10, RetentionDays: 365}
}

// #endregion config

// #region errors

var (
	// ErrEmptyTeam: every operation is keyed by a team id.
	ErrEmptyTeam = errors.New("empty team id")
	// ErrClosed: the store was closed.
	ErrClosed = errors.New("memory store closed")
	// ErrDuplicateEpisode: the team already holds an entry with this id.
	ErrDuplicateEpisode = errors.New("duplicate episode id")
)

// #endregion errors
