package logging

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS analysis_log (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id       TEXT NOT NULL,
	match_id     TEXT,
	team_id      TEXT,
	decision     TEXT NOT NULL,
	reason       TEXT,
	counts_json  TEXT,
	created_at   TEXT NOT NULL
);
`

// #endregion schema

// #region run-log
// RunLog appends provenance rows. A nil *RunLog discards writes.
type RunLog struct {
	db *sql.DB
}

// NewRunLog migrates the analysis_log table on db.
func NewRunLog(db *sql.DB) (*RunLog, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate analysis_log: %w", err)
	}
	return &RunLog{db: db}, nil
}

// Log writes a run entry.
func (l *RunLog) Log(ctx context.Context, entry RunEntry) error {
	if l == nil {
		return nil
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO analysis_log (run_id, match_id, team_id, decision, reason, counts_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.RunID,
		nullIfEmpty(entry.MatchID),
		nullIfEmpty(entry.TeamID),
		entry.Decision,
		nullIfEmpty(entry.Reason),
		nullIfEmpty(entry.CountsJSON),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log run: %w", err)
	}
	return nil
}

// Recent returns the latest entries, newest first.
func (l *RunLog) Recent(ctx context.Context, limit int) ([]RunEntry, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT run_id, match_id, team_id, decision, reason, counts_json, created_at
		 FROM analysis_log ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunEntry
	for rows.Next() {
		var e RunEntry
		var matchID, teamID, reason, counts sql.NullString
		var created string
		if err := rows.Scan(&e.RunID, &matchID, &teamID, &e.Decision, &reason, &counts, &created); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		e.MatchID = matchID.String
		e.TeamID = teamID.String
		e.Reason = reason.String
		e.CountsJSON = counts.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// #endregion run-log

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
