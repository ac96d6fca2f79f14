package logging

import "time"

// #region run-decision
// Decision values written to analysis_log.
const (
	DecisionAnalyzed = "analyzed" // result returned, nothing recorded
	DecisionRecorded = "recorded" // result returned and episode stored
	DecisionRejected = "rejected" // input or result refused
)

// #endregion run-decision

// #region run-entry
// RunEntry is a single row in the analysis_log table.
type RunEntry struct {
	RunID      string
	MatchID    string
	TeamID     string
	Decision   string
	Reason     string
	CountsJSON string
	CreatedAt  time.Time
}

// RunCounts is serialized into analysis_log.counts_json.
type RunCounts struct {
	Signals   int `json:"signals"`
	Behaviors int `json:"behaviors"`
	Patterns  int `json:"patterns"`
	Ruptures  int `json:"ruptures"`
	Visual    int `json:"visual"`
}

// #endregion run-entry
