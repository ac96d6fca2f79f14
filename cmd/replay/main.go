// Command replay runs a match fixture through a fresh pipeline and compares
// the outcome with the fixture's expectations.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/magscore/internal/catalog"
	"github.com/danielpatrickdp/magscore/internal/gate"
	"github.com/danielpatrickdp/magscore/internal/replay"
)

var (
	catalogPath string
	showHistory bool
)

// #region main

// errDiverged signals a non-zero exit without an extra error line.
type errDiverged int

func (e errDiverged) Error() string { return fmt.Sprintf("%d results diverge", int(e)) }

func main() {
	if err := rootCmd.Execute(); err != nil {
		if _, ok := err.(errDiverged); ok {
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

var rootCmd = &cobra.Command{
	Use:   "replay <fixture.json>",
	Short: "Replay a match fixture and compare outcomes",
	Long: `Replay every match of a fixture in order against a fresh in-process store.
Exit code 0 when all outcomes match, 1 on divergence, 2 on error.`,
	Args:          cobra.ExactArgs(1),
	RunE:          run,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.Flags().StringVar(&catalogPath, "catalog", "", "YAML catalog override")
	rootCmd.Flags().BoolVar(&showHistory, "history", false, "print the final per-team history as JSON")
}

// #endregion main

// #region run
func run(cmd *cobra.Command, args []string) error {
	f, err := replay.LoadFixture(args[0])
	if err != nil {
		return err
	}
	cat := catalog.Default()
	if catalogPath != "" {
		if cat, err = catalog.LoadFile(catalogPath); err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	results, store, err := replay.Replay(ctx, cat, gate.Default(), f.Matches, f.Config.ToReplayConfig(), nil)
	if err != nil {
		return err
	}
	summary, err := replay.Summarize(ctx, results, store)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	diverge := printComparison(out, results, f.ExpectedResults)
	fmt.Fprintf(out, "\nRecorded %d, analyzed %d, rejected %d of %d matches\n",
		summary.Recorded, summary.Analyzed, summary.Rejected, summary.TotalMatches)

	if showHistory {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary.History); err != nil {
			return err
		}
	}
	if diverge > 0 {
		return errDiverged(diverge)
	}
	return nil
}

// #endregion run

// #region output

// printComparison outputs a comparison table and returns the number of diverging rows.
func printComparison(w io.Writer, results []replay.ReplayResult, expected []replay.FixtureExpectedResult) int {
	fmt.Fprintf(w, "%-10s| %-10s| %-10s| %-28s| %s\n", "Match", "Expected", "Replayed", "Patterns", "Match")
	fmt.Fprintf(w, "%-10s+%-11s+%-11s+%-29s+%s\n",
		"----------", "-----------", "-----------", "-----------------------------", "------")

	bad := make(map[int]struct{})
	for _, m := range replay.Compare(results, expected) {
		bad[m.Index] = struct{}{}
	}
	for i, r := range results {
		exp, id := "-", r.MatchID
		if i < len(expected) {
			exp = expected[i].Action
			if id == "" {
				id = expected[i].MatchID
			}
		}
		status := "OK"
		if _, ok := bad[i]; ok {
			status = "DIFF"
		}
		fmt.Fprintf(w, "%-10s| %-10s| %-10s| %-28s| %s\n", id, exp, r.Action, strings.Join(r.Patterns, ","), status)
	}
	missing := 0
	if len(expected) > len(results) {
		missing = len(expected) - len(results)
	}
	fmt.Fprintf(w, "\nSummary: %d total, %d match, %d diverge\n",
		len(results), len(results)-len(bad)+missing, len(bad))
	return len(bad)
}

// #endregion output
