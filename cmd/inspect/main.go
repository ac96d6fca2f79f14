// Command inspect reads a magscore SQLite history: per-team episodes,
// pattern frequencies and the analysis run log.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/magscore/internal/logging"
	"github.com/danielpatrickdp/magscore/internal/memory"
)

var (
	dbPath  string
	last    int
	jsonOut bool
	attrKey string
)

// #region main

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Inspect a magscore history database",
	Long: `inspect reads the episodes, semantic frequencies and analysis log stored
by magscored in a SQLite file (memory.path).

Examples:
  inspect --db history.db teams
  inspect --db history.db history team-north --last 5
  inspect --db history.db history team-north --attr opposing_style=high_press
  inspect --db history.db runs --json`,
	SilenceUsage: true,
}

var teamsCmd = &cobra.Command{
	Use:   "teams",
	Short: "List teams with retained episodes",
	Args:  cobra.NoArgs,
	RunE:  runTeams,
}

var historyCmd = &cobra.Command{
	Use:   "history <team>",
	Short: "Show a team's recent episodes and pattern frequencies",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show recent analysis runs",
	Args:  cobra.NoArgs,
	RunE:  runRuns,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print every team's historical context as JSON",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

var clearCmd = &cobra.Command{
	Use:   "clear <team>",
	Short: "Delete a team's episodes and frequencies",
	Args:  cobra.ExactArgs(1),
	RunE:  runClear,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "path to the history SQLite file")
	_ = rootCmd.MarkPersistentFlagRequired("db")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output as JSON instead of table")
	historyCmd.Flags().IntVar(&last, "last", 10, "show N most recent episodes")
	historyCmd.Flags().StringVar(&attrKey, "attr", "", "filter episodes by attribute, key=value")
	runsCmd.Flags().IntVar(&last, "last", 20, "show N most recent runs")
	rootCmd.AddCommand(teamsCmd, historyCmd, runsCmd, exportCmd, clearCmd)
}

func openStore() (*memory.Store, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	cfg := memory.DefaultConfig()
	cfg.Path = dbPath
	return memory.Open(cfg)
}

// #endregion main

// #region teams
func runTeams(cmd *cobra.Command, _ []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	teams, err := store.Backend().Teams(cmd.Context())
	if err != nil {
		return err
	}
	if jsonOut {
		return writeJSON(cmd.OutOrStdout(), teams)
	}
	for _, t := range teams {
		fmt.Fprintln(cmd.OutOrStdout(), t)
	}
	return nil
}

// #endregion teams

// #region history
func runHistory(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, team := cmd.Context(), args[0]
	var episodes []memory.EpisodicEntry
	if attrKey != "" {
		key, value, ok := strings.Cut(attrKey, "=")
		if !ok {
			return fmt.Errorf("--attr must be key=value")
		}
		episodes, err = store.ByAttribute(ctx, team, key, value)
	} else {
		episodes, err = store.Recent(ctx, team, last)
	}
	if err != nil {
		return err
	}
	hc, err := store.HistoricalContext(ctx, team)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOut {
		return writeJSON(out, map[string]any{
			"episodes":    episodes,
			"frequencies": hc.Frequencies,
			"shares":      hc.Shares,
		})
	}

	fmt.Fprintf(out, "%-8s| %-20s| %-24s| %-8s| %s\n", "Index", "Recorded", "Patterns", "Ruptures", "Attributes")
	fmt.Fprintf(out, "%-8s+%-21s+%-25s+%-9s+%s\n", "--------", "---------------------", "-------------------------", "---------", "----------")
	for _, e := range episodes {
		fmt.Fprintf(out, "%-8d| %-20s| %-24s| %-8d| %s\n",
			e.MatchIndex, e.RecordedAt.Format("2006-01-02 15:04:05"), strings.Join(e.Patterns, ","), len(e.Ruptures), formatAttrs(e.Attributes))
	}

	codes := make([]string, 0, len(hc.Frequencies))
	for code := range hc.Frequencies {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool {
		if hc.Frequencies[codes[i]] != hc.Frequencies[codes[j]] {
			return hc.Frequencies[codes[i]] > hc.Frequencies[codes[j]]
		}
		return codes[i] < codes[j]
	})
	fmt.Fprintf(out, "\n%-12s| %-6s| %s\n", "Pattern", "Count", "Share")
	for _, code := range codes {
		fmt.Fprintf(out, "%-12s| %-6d| %.2f\n", code, hc.Frequencies[code], hc.Shares[code])
	}
	return nil
}

func formatAttrs(attrs map[string]string) string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+attrs[k])
	}
	return strings.Join(parts, " ")
}

// #endregion history

// #region runs
func runRuns(cmd *cobra.Command, _ []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	sb, ok := store.Backend().(*memory.SQLiteBackend)
	if !ok {
		return fmt.Errorf("runs need a SQLite history")
	}
	runLog, err := logging.NewRunLog(sb.DB())
	if err != nil {
		return err
	}
	runs, err := runLog.Recent(cmd.Context(), last)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOut {
		return writeJSON(out, runs)
	}
	fmt.Fprintf(out, "%-36s| %-12s| %-14s| %-9s| %s\n", "Run", "Match", "Team", "Decision", "Counts / Reason")
	for _, r := range runs {
		detail := r.CountsJSON
		if r.Reason != "" {
			detail = r.Reason
		}
		fmt.Fprintf(out, "%-36s| %-12s| %-14s| %-9s| %s\n", r.RunID, r.MatchID, r.TeamID, r.Decision, detail)
	}
	return nil
}

// #endregion runs

// #region export-clear
func runExport(cmd *cobra.Command, _ []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	all, err := store.Export(cmd.Context())
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), all)
}

func runClear(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Clear(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", args[0])
	return nil
}

// #endregion export-clear

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
