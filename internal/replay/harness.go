package replay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/magscore/internal/catalog"
	"github.com/danielpatrickdp/magscore/internal/gate"
	"github.com/danielpatrickdp/magscore/internal/memory"
	"github.com/danielpatrickdp/magscore/internal/pipeline"
)

// #region types

// Replay actions.
const (
	ActionRecorded = "recorded"
	ActionAnalyzed = "analyzed"
	ActionRejected = "rejected"
)

// ReplayResult captures the outcome of replaying one match.
type ReplayResult struct {
	MatchID  string
	TeamID   string
	Action   string
	Reason   string
	Patterns []string
	Ruptures int

	Result *pipeline.Result // nil when rejected
}

// ReplaySummary provides aggregate stats from a replay run.
type ReplaySummary struct {
	TotalMatches int
	Recorded     int
	Analyzed     int
	Rejected     int
	History      []memory.HistoricalContext
}

// Mismatch is a difference between a replay result and the fixture's expectation.
type Mismatch struct {
	Index    int
	MatchID  string
	Expected FixtureExpectedResult
	Actual   ReplayResult
}

func (m Mismatch) String() string {
	return fmt.Sprintf("match %d (%s): expected action=%s patterns=%v, got action=%s patterns=%v (reason: %s)",
		m.Index, m.MatchID, m.Expected.Action, m.Expected.Patterns, m.Actual.Action, m.Actual.Patterns, m.Actual.Reason)
}

// #endregion types

// #region replay

// Replay runs every match of the fixture, in order, through a pipeline backed by
// a fresh in-process store. Rejected matches do not stop the run. The store is
// returned so callers can inspect the resulting history.
func Replay(ctx context.Context, c *catalog.Catalog, g *gate.Gate, matches []json.RawMessage, config ReplayConfig, logger *zap.Logger) ([]ReplayResult, *memory.Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	store, err := memory.New(memory.NewInProcessBackend(), config.Memory,
		memory.WithGate(g), memory.WithCatalog(c), memory.WithLogger(logger))
	if err != nil {
		return nil, nil, fmt.Errorf("replay store: %w", err)
	}
	p, err := pipeline.New(c, g, store, config.Pipeline, pipeline.WithLogger(logger))
	if err != nil {
		return nil, nil, fmt.Errorf("replay pipeline: %w", err)
	}

	results := make([]ReplayResult, 0, len(matches))
	for _, raw := range matches {
		in, err := pipeline.DecodeInput(g, raw)
		if err != nil {
			results = append(results, ReplayResult{Action: ActionRejected, Reason: err.Error()})
			continue
		}
		res, err := p.Analyze(ctx, in)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return results, store, err
		}
		r := ReplayResult{MatchID: in.MatchID, TeamID: in.TeamID}
		switch {
		case err != nil:
			r.Action, r.Reason = ActionRejected, err.Error()
		case res.EpisodeID != "":
			r.Action = ActionRecorded
		default:
			r.Action = ActionAnalyzed
		}
		if err == nil {
			r.Result = &res
			r.Ruptures = len(res.Ruptures)
			for _, dp := range res.Patterns {
				r.Patterns = append(r.Patterns, dp.Code)
			}
		}
		results = append(results, r)
	}
	return results, store, nil
}

// Summarize computes aggregate stats from replay results and the final history.
func Summarize(ctx context.Context, results []ReplayResult, store *memory.Store) (ReplaySummary, error) {
	s := ReplaySummary{TotalMatches: len(results)}
	for _, r := range results {
		switch r.Action {
		case ActionRecorded:
			s.Recorded++
		case ActionAnalyzed:
			s.Analyzed++
		case ActionRejected:
			s.Rejected++
		}
	}
	history, err := store.Export(ctx)
	if err != nil {
		return s, fmt.Errorf("export history: %w", err)
	}
	s.History = history
	return s, nil
}

// Compare checks results against expectations by position. Patterns are only
// compared when the expectation lists them.
func Compare(results []ReplayResult, expected []FixtureExpectedResult) []Mismatch {
	var out []Mismatch
	for i, exp := range expected {
		var actual ReplayResult
		if i < len(results) {
			actual = results[i]
		}
		if actual.Action != exp.Action || (exp.Patterns != nil && !slices.Equal(actual.Patterns, exp.Patterns)) {
			out = append(out, Mismatch{Index: i, MatchID: exp.MatchID, Expected: exp, Actual: actual})
		}
	}
	return out
}

// #endregion replay
