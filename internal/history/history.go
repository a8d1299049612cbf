// Package history persists status transitions to SQLite.
//
// The transition log answers "when did this session last need attention"
// and feeds the `aoe-status history` subcommand. WAL mode plus a busy
// timeout makes it safe to share the file across aoe processes.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/agent-of-empires/aoe/internal/status"
)

// Transition is one recorded status change.
type Transition struct {
	ID       int64                 `json:"id"`
	Session  string                `json:"session"`
	Tool     status.Tool           `json:"tool"`
	From     status.Status         `json:"from"`
	To       status.Status         `json:"to"`
	Evidence *status.MatchEvidence `json:"evidence,omitempty"`
	At       time.Time             `json:"at"`
}

// Store is a SQLite-backed transition log.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS status_transitions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session     TEXT NOT NULL,
	tool        TEXT NOT NULL,
	from_status TEXT NOT NULL,
	to_status   TEXT NOT NULL,
	evidence    TEXT,
	at          INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transitions_session_at
	ON status_transitions(session, at DESC);
`

// Open creates or opens the transition database at dbPath.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("history: mkdir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}

	// WAL mode: concurrent readers while the poller writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: wal mode: %w", err)
	}
	// Wait up to 5s if another process holds a lock.
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: busy timeout: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Record appends one transition. Evidence is stored as JSON; nil evidence
// stores NULL.
func (s *Store) Record(ctx context.Context, session string, tool status.Tool, from, to status.Status, evidence *status.MatchEvidence) error {
	var evJSON sql.NullString
	if evidence != nil {
		data, err := json.Marshal(evidence)
		if err != nil {
			return fmt.Errorf("history: marshal evidence: %w", err)
		}
		evJSON = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO status_transitions (session, tool, from_status, to_status, evidence, at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		session, string(tool), string(from), string(to), evJSON, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("history: record: %w", err)
	}
	return nil
}

// Recent returns the newest transitions, newest first. An empty session
// selects across all sessions.
func (s *Store) Recent(ctx context.Context, session string, limit int) ([]Transition, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, session, tool, from_status, to_status, evidence, at
		FROM status_transitions`
	args := []any{}
	if session != "" {
		query += ` WHERE session = ?`
		args = append(args, session)
	}
	query += ` ORDER BY at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var tr Transition
		var tool, from, to string
		var evJSON sql.NullString
		var at int64
		if err := rows.Scan(&tr.ID, &tr.Session, &tool, &from, &to, &evJSON, &at); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		tr.Tool = status.Tool(tool)
		tr.From = status.Status(from)
		tr.To = status.Status(to)
		tr.At = time.Unix(at, 0)
		if evJSON.Valid {
			var ev status.MatchEvidence
			if err := json.Unmarshal([]byte(evJSON.String), &ev); err == nil {
				tr.Evidence = &ev
			}
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

// Prune deletes transitions older than the cutoff and returns how many
// rows were removed.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).Unix()
	res, err := s.db.ExecContext(ctx, `DELETE FROM status_transitions WHERE at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("history: prune: %w", err)
	}
	return res.RowsAffected()
}

// Close checkpoints WAL and closes the database.
func (s *Store) Close() error {
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}
