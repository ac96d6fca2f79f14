package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS episodes (
	id              TEXT NOT NULL,
	team_id         TEXT NOT NULL,
	seq             INTEGER NOT NULL,
	match_index     INTEGER NOT NULL,
	patterns_json   TEXT NOT NULL,
	ruptures_json   TEXT NOT NULL,
	attributes_json TEXT,
	recorded_at     TEXT NOT NULL,
	PRIMARY KEY (team_id, id)
);

CREATE INDEX IF NOT EXISTS idx_episodes_team ON episodes(team_id, seq);

CREATE TABLE IF NOT EXISTS semantic_frequency (
	team_id       TEXT NOT NULL,
	pattern_code  TEXT NOT NULL,
	count         INTEGER NOT NULL,
	PRIMARY KEY (team_id, pattern_code)
);
`

// #endregion schema

// #region backend

// SQLiteBackend stores histories in a SQLite file. Each Replace runs in one transaction.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens a SQLite database and runs migrations.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

// Close closes the underlying database connection.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (b *SQLiteBackend) DB() *sql.DB {
	return b.db
}

// #endregion backend

// #region load

// Load reads a team's entries in insertion order.
func (b *SQLiteBackend) Load(ctx context.Context, teamID string) ([]EpisodicEntry, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT id, match_index, patterns_json, ruptures_json, attributes_json, recorded_at
		 FROM episodes WHERE team_id = ? ORDER BY seq ASC`, teamID,
	)
	if err != nil {
		return nil, fmt.Errorf("load episodes: %w", err)
	}
	defer rows.Close()

	var out []EpisodicEntry
	for rows.Next() {
		e := EpisodicEntry{TeamID: teamID}
		var patternsJSON, rupturesJSON, recordedStr string
		var attrsJSON sql.NullString
		if err := rows.Scan(&e.ID, &e.MatchIndex, &patternsJSON, &rupturesJSON, &attrsJSON, &recordedStr); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		if err := json.Unmarshal([]byte(patternsJSON), &e.Patterns); err != nil {
			return nil, fmt.Errorf("unmarshal patterns %s: %w", e.ID, err)
		}
		if err := json.Unmarshal([]byte(rupturesJSON), &e.Ruptures); err != nil {
			return nil, fmt.Errorf("unmarshal ruptures %s: %w", e.ID, err)
		}
		if attrsJSON.Valid {
			if err := json.Unmarshal([]byte(attrsJSON.String), &e.Attributes); err != nil {
				return nil, fmt.Errorf("unmarshal attributes %s: %w", e.ID, err)
			}
		}
		e.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedStr)
		if err != nil {
			return nil, fmt.Errorf("parse recorded_at %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Frequencies reads the persisted frequency rows for a team.
func (b *SQLiteBackend) Frequencies(ctx context.Context, teamID string) (map[string]int, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT pattern_code, count FROM semantic_frequency WHERE team_id = ?`, teamID,
	)
	if err != nil {
		return nil, fmt.Errorf("load frequencies: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var code string
		var n int
		if err := rows.Scan(&code, &n); err != nil {
			return nil, fmt.Errorf("scan frequency: %w", err)
		}
		out[code] = n
	}
	return out, rows.Err()
}

// Teams lists every team with stored entries.
func (b *SQLiteBackend) Teams(ctx context.Context) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT DISTINCT team_id FROM episodes ORDER BY team_id`)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// #endregion load

// #region replace

// Replace swaps a team's entries and frequency rows atomically.
func (b *SQLiteBackend) Replace(ctx context.Context, teamID string, episodes []EpisodicEntry, frequencies map[string]int) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM episodes WHERE team_id = ?`, teamID); err != nil {
		return fmt.Errorf("delete episodes: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM semantic_frequency WHERE team_id = ?`, teamID); err != nil {
		return fmt.Errorf("delete frequencies: %w", err)
	}

	for seq, e := range episodes {
		patternsJSON, err := json.Marshal(nonNil(e.Patterns))
		if err != nil {
			return fmt.Errorf("marshal patterns: %w", err)
		}
		rupturesJSON, err := json.Marshal(e.Ruptures)
		if err != nil {
			return fmt.Errorf("marshal ruptures: %w", err)
		}
		var attrsPtr interface{}
		if len(e.Attributes) > 0 {
			attrsJSON, err := json.Marshal(e.Attributes)
			if err != nil {
				return fmt.Errorf("marshal attributes: %w", err)
			}
			attrsPtr = string(attrsJSON)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO episodes (id, team_id, seq, match_index, patterns_json, ruptures_json, attributes_json, recorded_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, teamID, seq, e.MatchIndex, string(patternsJSON), string(rupturesJSON), attrsPtr,
			e.RecordedAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("insert episode %s: %w", e.ID, err)
		}
	}

	for code, n := range frequencies {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO semantic_frequency (team_id, pattern_code, count) VALUES (?, ?, ?)`,
			teamID, code, n,
		)
		if err != nil {
			return fmt.Errorf("insert frequency %s: %w", code, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// #endregion replace
