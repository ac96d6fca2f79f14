package gate

import (
	"errors"
	"fmt"
)

// #region violation-kind
// ViolationKind enumerates the ways a field can fail the neutrality gate.
type ViolationKind string

const (
	ViolationDenylisted ViolationKind = "denylisted"  // exact name match
	ViolationPattern    ViolationKind = "pattern"     // matched a denylist pattern
	ViolationNotAllowed ViolationKind = "not_allowed" // outside a strict allow-list
	ViolationValue      ViolationKind = "value"       // allowed name, malformed value
)

// #endregion violation-kind

// #region violation
// Violation is one offending field found by a scan.
type Violation struct {
	Kind   ViolationKind
	Path   string // dotted location, e.g. "stats.global[2].odds"
	Field  string // field name as submitted
	Reason string
}

// #endregion violation

// #region errors

// ErrForbiddenField is the sentinel every gate rejection unwraps to.
var ErrForbiddenField = errors.New("forbidden field")

// ForbiddenFieldError reports the rejected record. Violations is never empty.
type ForbiddenFieldError struct {
	Violations []Violation
}

func (e *ForbiddenFieldError) Error() string {
	v := e.Violations[0]
	msg := fmt.Sprintf("forbidden field %q at %s: %s", v.Field, v.Path, v.Reason)
	if len(e.Violations) > 1 {
		msg = fmt.Sprintf("%s (+%d more)", msg, len(e.Violations)-1)
	}
	return msg
}

func (e *ForbiddenFieldError) Unwrap() error { return ErrForbiddenField }

// Field returns the first offending field name.
func (e *ForbiddenFieldError) Field() string { return e.Violations[0].Field }

// #endregion errors

// #region gate-config
// Config holds the denylist applied to every record crossing the pipeline boundary.
type Config struct {
	Denylist []string `koanf:"denylist"` // normalized names rejected outright
	Patterns []string `koanf:"patterns"` // regular expressions over normalized names
	Exempt   []string `koanf:"exempt"`   // engine-owned names that pass despite a pattern hit
}

// DefaultConfig returns the outcome/betting denylist plus the opaque-metric blacklist.
func DefaultConfig() Config {
	return Config{
		Denylist: []string{
			// outcome and betting
			"score", "scores", "final_score", "result", "match_result", "winner", "loser",
			"odds", "bet", "betting", "cote", "pari", "prono", "prediction", "outcome",
			// opaque provider metrics
			"momentum", "pressure_index", "attack_strength", "defense_rating", "power_rating",
			"goal_threat", "win_probability", "draw_probability", "loss_probability",
			"match_odds", "implied_probability", "elo_rating", "power_ranking",
			"attack_momentum", "defensive_momentum", "form_index", "predicted_score",
			"expected_points", "dangerous_attacks", "overall_rating", "team_strength",
			"offensive_rating", "defensive_rating_composite",
		},
		Exempt: []string{"weighted_score"},
		Patterns: []string{
			`(^|_)scores?($|_)`,
			`(^|_)results?($|_)`,
			`(^|_)odds($|_)`,
			`(^|_)(bet|bets|betting|wager)($|_)`,
			`probabilit`,
			`(^|_)predict`,
		},
	}
}

// #endregion gate-config
