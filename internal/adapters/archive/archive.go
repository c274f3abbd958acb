// Package archive persists finished session reports in SQLite so they stay
// queryable after the live session is evicted.
package archive

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/okian/combatlink/internal/domain/report"
	"github.com/okian/combatlink/pkg/metrics"
)

//go:embed schema.sql
var schemaSQL string

var ErrNotFound = errors.New("report not archived")

// Entry is one row of the archive listing.
type Entry struct {
	SessionID    string    `json:"session_id"`
	SavedAt      time.Time `json:"saved_at"`
	Events       int       `json:"events"`
	Attributed   int       `json:"attributed"`
	Unattributed int       `json:"unattributed"`
	Unconsumed   int       `json:"unconsumed"`
	Rate         float64   `json:"attribution_rate"`
}

// Store is the SQLite report archive.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates or opens the archive at path, in WAL mode with a single
// writer connection.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to archive: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save stores r, replacing any earlier report of the same session.
func (s *Store) Save(ctx context.Context, r report.Report) error { //nolint:gocritic // hugeParam
	body, err := json.Marshal(r)
	if err != nil {
		metrics.RecordArchiveWrite("error")
		return fmt.Errorf("encode report %s: %w", r.SessionID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reports (session_id, saved_at, events, attributed, unattributed, unconsumed, rate, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET
			saved_at = excluded.saved_at,
			events = excluded.events,
			attributed = excluded.attributed,
			unattributed = excluded.unattributed,
			unconsumed = excluded.unconsumed,
			rate = excluded.rate,
			body = excluded.body`,
		r.SessionID, s.now().UnixMilli(), r.Events, r.Attributed, r.Unattributed, r.Unconsumed, r.Rate, string(body),
	)
	if err != nil {
		metrics.RecordArchiveWrite("error")
		return fmt.Errorf("save report %s: %w", r.SessionID, err)
	}
	metrics.RecordArchiveWrite("ok")
	return nil
}

// Load returns the archived report of sessionID or ErrNotFound.
func (s *Store) Load(ctx context.Context, sessionID string) (report.Report, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM reports WHERE session_id = ?`, sessionID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return report.Report{}, ErrNotFound
	}
	if err != nil {
		return report.Report{}, fmt.Errorf("load report %s: %w", sessionID, err)
	}

	var r report.Report
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return report.Report{}, fmt.Errorf("decode report %s: %w", sessionID, err)
	}
	return r, nil
}

// List returns the most recently saved reports, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, saved_at, events, attributed, unattributed, unconsumed, rate
		FROM reports
		ORDER BY saved_at DESC, session_id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var savedAt int64
		if err := rows.Scan(&e.SessionID, &savedAt, &e.Events, &e.Attributed, &e.Unattributed, &e.Unconsumed, &e.Rate); err != nil {
			return nil, fmt.Errorf("scan report row: %w", err)
		}
		e.SavedAt = time.UnixMilli(savedAt).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	return out, nil
}
