package replay

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/magscore/internal/catalog"
	"github.com/danielpatrickdp/magscore/internal/gate"
)

func replayFixture(t *testing.T, name string) (*Fixture, []ReplayResult, ReplaySummary) {
	t.Helper()
	f, err := LoadFixture(filepath.Join("testdata", name))
	require.NoError(t, err)

	ctx := context.Background()
	results, store, err := Replay(ctx, catalog.Default(), gate.Default(), f.Matches, f.Config.ToReplayConfig(), nil)
	require.NoError(t, err)
	summary, err := Summarize(ctx, results, store)
	require.NoError(t, err)
	return f, results, summary
}

func TestReplay_SeasonFixture(t *testing.T) {
	f, results, summary := replayFixture(t, "season.json")

	require.Len(t, results, len(f.ExpectedResults))
	for _, m := range Compare(results, f.ExpectedResults) {
		t.Error(m.String())
	}

	assert.Equal(t, 5, summary.TotalMatches)
	assert.Equal(t, 3, summary.Recorded)
	assert.Equal(t, 1, summary.Analyzed)
	assert.Equal(t, 1, summary.Rejected)
}

func TestReplay_HistoryKeepsNewestEpisodes(t *testing.T) {
	_, _, summary := replayFixture(t, "season.json")

	require.Len(t, summary.History, 1)
	hc := summary.History[0]
	assert.Equal(t, "team-north", hc.TeamID)
	require.Len(t, hc.Episodes, 2)
	assert.Equal(t, 2, hc.Episodes[0].MatchIndex)
	assert.Equal(t, 5, hc.Episodes[1].MatchIndex)
	assert.Equal(t, map[string]int{"PTN_04": 1}, hc.Frequencies)
}

func TestReplay_RejectedInputDoesNotStopRun(t *testing.T) {
	matches := []json.RawMessage{
		json.RawMessage(`{"team_id":"t","match_index":1,"win_probability":0.7}`),
		json.RawMessage(`{"team_id":"t","match_index":2}`),
	}
	results, _, err := Replay(context.Background(), catalog.Default(), gate.Default(), matches, DefaultReplayConfig(), nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, ActionRejected, results[0].Action)
	assert.Contains(t, results[0].Reason, "win_probability")
	assert.Equal(t, ActionRecorded, results[1].Action)
}

func TestCompare_ReportsMismatches(t *testing.T) {
	results := []ReplayResult{{MatchID: "a", Action: ActionRecorded, Patterns: []string{"PTN_01"}}}
	expected := []FixtureExpectedResult{
		{MatchID: "a", Action: ActionRecorded, Patterns: []string{"PTN_02"}},
		{MatchID: "b", Action: ActionRecorded},
	}

	mismatches := Compare(results, expected)
	require.Len(t, mismatches, 2)
	assert.Equal(t, "a", mismatches[0].MatchID)
	assert.Contains(t, mismatches[1].String(), "expected action=recorded")
}

func TestFixtureConfigOverrides(t *testing.T) {
	fc := FixtureConfig{SmoothingWindow: 5, MaxEpisodes: 3, RuptureThreshold: 0.5}
	c := fc.ToReplayConfig()
	assert.Equal(t, 5, c.Pipeline.Smoothing.Window)
	assert.Equal(t, 3, c.Memory.MaxEpisodes)
	assert.Equal(t, 0.5, c.Pipeline.Flow.Threshold)
	assert.Equal(t, 2, c.Pipeline.Behavior.MinConvergence)
}

func TestLoadFixture_NotFound(t *testing.T) {
	_, err := LoadFixture("testdata/nonexistent.json")
	assert.Error(t, err)
}

func TestLoadFixture_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not valid json}"), 0o644))

	_, err := LoadFixture(path)
	assert.Error(t, err)
}
