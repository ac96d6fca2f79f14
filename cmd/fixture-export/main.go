// Command fixture-export builds a replay fixture from MatchInput files. Each
// file is replayed in order and its current outcome becomes the expectation,
// so later engine changes show up as replay divergences.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/magscore/internal/catalog"
	"github.com/danielpatrickdp/magscore/internal/gate"
	"github.com/danielpatrickdp/magscore/internal/replay"
)

var (
	outPath     string
	description string
	maxEpisodes int
)

// #region main

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "fixture-export --out fixture.json <match.json>...",
	Short: "Capture current outcomes of match files as a replay fixture",
	Long: `Replay the given MatchInput files in order against a fresh store and write a
fixture whose expected results are the outcomes observed now.

Examples:
  fixture-export --out testdata/season.json n-01.json n-02.json n-03.json`,
	Args:         cobra.MinimumNArgs(1),
	RunE:         run,
	SilenceUsage: true,
}

func init() {
	rootCmd.Flags().StringVar(&outPath, "out", "", "output fixture JSON path")
	rootCmd.Flags().StringVar(&description, "description", "", "fixture description")
	rootCmd.Flags().IntVar(&maxEpisodes, "max-episodes", 0, "history bound written into the fixture config (0 keeps the default)")
	_ = rootCmd.MarkFlagRequired("out")
}

// #endregion main

// #region export

func run(cmd *cobra.Command, args []string) error {
	matches := make([]json.RawMessage, 0, len(args))
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if !json.Valid(data) {
			return fmt.Errorf("%s: not valid JSON", path)
		}
		matches = append(matches, json.RawMessage(data))
	}

	f := replay.Fixture{
		Description: description,
		Config:      replay.FixtureConfig{MaxEpisodes: maxEpisodes},
		Matches:     matches,
	}
	if f.Description == "" {
		f.Description = fmt.Sprintf("captured outcomes of %d matches", len(matches))
	}

	results, _, err := replay.Replay(cmd.Context(), catalog.Default(), gate.Default(), matches, f.Config.ToReplayConfig(), nil)
	if err != nil {
		return err
	}
	for i, r := range results {
		exp := replay.FixtureExpectedResult{MatchID: r.MatchID, Action: r.Action}
		if r.Action != replay.ActionRejected {
			exp.Patterns = append([]string{}, r.Patterns...)
		}
		f.ExpectedResults = append(f.ExpectedResults, exp)
		if r.Action == replay.ActionRejected {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: rejected: %s\n", args[i], r.Reason)
		}
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(outPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write fixture: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d matches to %s\n", len(matches), outPath)
	return nil
}

// #endregion export
