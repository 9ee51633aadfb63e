// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/foliostream/folio/internal/persistence/sqlite"
)

const sqliteSchemaVersion = 1

// Sqlite is a durable Store backed by a single SQLite file.
type Sqlite struct {
	db *sql.DB
}

func NewSqlite(dbPath string) (*Sqlite, error) {
	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	s := &Sqlite{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("session store: migration failed: %w", err)
	}
	return s, nil
}

// DB exposes the underlying handle for integrity checks.
func (s *Sqlite) DB() *sql.DB { return s.db }

func (s *Sqlite) Close() error { return s.db.Close() }

func (s *Sqlite) migrate() error {
	var current int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return err
	}
	if current >= sqliteSchemaVersion {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		doc_id TEXT NOT NULL,
		state TEXT NOT NULL,
		last_error TEXT NOT NULL DEFAULT '',
		recoverable INTEGER NOT NULL DEFAULT 0,
		created_at_unix INTEGER NOT NULL,
		updated_at_unix INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS session_transitions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		from_state TEXT NOT NULL,
		to_state TEXT NOT NULL,
		cause TEXT NOT NULL,
		at_unix INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at_unix);
	CREATE INDEX IF NOT EXISTS idx_transitions_session ON session_transitions(session_id, id);
	`
	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", sqliteSchemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Sqlite) PutSession(ctx context.Context, rec *SessionRecord) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO sessions (session_id, doc_id, state, last_error, recoverable, created_at_unix, updated_at_unix)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		doc_id = excluded.doc_id,
		state = excluded.state,
		last_error = excluded.last_error,
		recoverable = excluded.recoverable,
		updated_at_unix = excluded.updated_at_unix`,
		rec.SessionID, rec.DocID, rec.State, rec.LastError, boolToInt(rec.Recoverable),
		rec.CreatedAtUnix, rec.UpdatedAtUnix)
	return err
}

func (s *Sqlite) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT session_id, doc_id, state, last_error, recoverable, created_at_unix, updated_at_unix
	FROM sessions WHERE session_id = ?`, id)
	return scanSession(row)
}

func (s *Sqlite) UpdateSession(ctx context.Context, id string, fn func(*SessionRecord) error) (*SessionRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
	SELECT session_id, doc_id, state, last_error, recoverable, created_at_unix, updated_at_unix
	FROM sessions WHERE session_id = ?`, id)
	rec, err := scanSession(row)
	if err != nil {
		return nil, err
	}
	if err := fn(rec); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
	UPDATE sessions SET doc_id = ?, state = ?, last_error = ?, recoverable = ?, updated_at_unix = ?
	WHERE session_id = ?`,
		rec.DocID, rec.State, rec.LastError, boolToInt(rec.Recoverable), rec.UpdatedAtUnix, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Sqlite) ListSessions(ctx context.Context) ([]*SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT session_id, doc_id, state, last_error, recoverable, created_at_unix, updated_at_unix
	FROM sessions ORDER BY created_at_unix, session_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var recoverable int
		if err := rows.Scan(&rec.SessionID, &rec.DocID, &rec.State, &rec.LastError,
			&recoverable, &rec.CreatedAtUnix, &rec.UpdatedAtUnix); err != nil {
			return nil, err
		}
		rec.Recoverable = recoverable != 0
		list = append(list, &rec)
	}
	return list, rows.Err()
}

func (s *Sqlite) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM session_transitions WHERE session_id = ?", id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE session_id = ?", id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Sqlite) AppendTransition(ctx context.Context, tr TransitionRecord) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO session_transitions (session_id, from_state, to_state, cause, at_unix)
	VALUES (?, ?, ?, ?, ?)`,
		tr.SessionID, tr.From, tr.To, tr.Cause, tr.AtUnix)
	return err
}

func (s *Sqlite) Transitions(ctx context.Context, sessionID string) ([]TransitionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT session_id, from_state, to_state, cause, at_unix
	FROM session_transitions WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []TransitionRecord
	for rows.Next() {
		var tr TransitionRecord
		if err := rows.Scan(&tr.SessionID, &tr.From, &tr.To, &tr.Cause, &tr.AtUnix); err != nil {
			return nil, err
		}
		list = append(list, tr)
	}
	return list, rows.Err()
}

func scanSession(row *sql.Row) (*SessionRecord, error) {
	var rec SessionRecord
	var recoverable int
	err := row.Scan(&rec.SessionID, &rec.DocID, &rec.State, &rec.LastError,
		&recoverable, &rec.CreatedAtUnix, &rec.UpdatedAtUnix)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.Recoverable = recoverable != 0
	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
