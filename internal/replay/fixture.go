package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/magscore/internal/memory"
	"github.com/danielpatrickdp/magscore/internal/pipeline"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture: a sequence of
// matches for one or more teams, replayed in order against a fresh store.
type Fixture struct {
	Description     string                  `json:"description"`
	Config          FixtureConfig           `json:"config"`
	Matches         []json.RawMessage       `json:"matches"`
	ExpectedResults []FixtureExpectedResult `json:"expected_results"`
}

// FixtureExpectedResult captures the expected outcome per match.
type FixtureExpectedResult struct {
	MatchID  string   `json:"match_id"`
	Action   string   `json:"action"`
	Patterns []string `json:"patterns,omitempty"`
}

// FixtureConfig overrides selected stage defaults. Zero values keep the default.
type FixtureConfig struct {
	SmoothingWindow  int     `json:"smoothing_window"`
	MinConvergence   int     `json:"min_convergence"`
	RuptureThreshold float64 `json:"rupture_threshold"`
	MaxEpisodes      int     `json:"max_episodes"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// ToReplayConfig applies the overrides to DefaultReplayConfig.
func (fc *FixtureConfig) ToReplayConfig() ReplayConfig {
	c := DefaultReplayConfig()
	if fc.SmoothingWindow > 0 {
		c.Pipeline.Smoothing.Window = fc.SmoothingWindow
	}
	if fc.MinConvergence > 0 {
		c.Pipeline.Behavior.MinConvergence = fc.MinConvergence
	}
	if fc.RuptureThreshold > 0 {
		c.Pipeline.Flow.Threshold = fc.RuptureThreshold
	}
	if fc.MaxEpisodes > 0 {
		c.Memory.MaxEpisodes = fc.MaxEpisodes
	}
	return c
}

// #endregion fixture-loader

// #region config
// ReplayConfig bundles the pipeline and memory settings for a replay run.
type ReplayConfig struct {
	Pipeline pipeline.Config
	Memory   memory.Config
}

// DefaultReplayConfig returns the engine defaults with an in-process store.
func DefaultReplayConfig() ReplayConfig {
	mc := memory.DefaultConfig()
	mc.Path = ""
	return ReplayConfig{
		Pipeline: pipeline.DefaultConfig(),
		Memory:   mc,
	}
}

// #endregion config
