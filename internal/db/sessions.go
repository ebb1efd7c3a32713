package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned when a session id is unknown.
var ErrSessionNotFound = errors.New("session not found")

// Session is one run of the live tracker.
type Session struct {
	ID       string
	Started  time.Time
	Ended    time.Time // zero while the session is open
	Output   string
	Units    string
	Model    string
	HSVRange string
	Notes    string
}

// StartSession stores s and returns it with its id and start time filled in.
func (db *DB) StartSession(ctx context.Context, s Session) (Session, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Started.IsZero() {
		s.Started = time.Now()
	}
	s.Started = s.Started.UTC()

	_, err := db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, started_unix, output, units, model, hsv_range, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID, toUnix(s.Started), s.Output, s.Units, s.Model, s.HSVRange, s.Notes)
	if err != nil {
		return Session{}, fmt.Errorf("failed to start session: %w", err)
	}
	return s, nil
}

// EndSession stamps the end time of an open session.
func (db *DB) EndSession(ctx context.Context, id string, at time.Time) error {
	res, err := db.ExecContext(ctx, `UPDATE sessions SET ended_unix = ? WHERE session_id = ?`, toUnix(at), id)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

// Session returns one session by id.
func (db *DB) Session(ctx context.Context, id string) (Session, error) {
	row := db.QueryRowContext(ctx, sessionSelect+` WHERE session_id = ?`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, err
}

// Sessions lists every session, most recent first.
func (db *DB) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := db.QueryContext(ctx, sessionSelect+` ORDER BY started_unix DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

const sessionSelect = `
	SELECT session_id, started_unix, ended_unix, output, units,
	       COALESCE(model, ''), COALESCE(hsv_range, ''), COALESCE(notes, '')
	FROM sessions`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (Session, error) {
	var (
		s       Session
		started float64
		ended   sql.NullFloat64
	)
	if err := sc.Scan(&s.ID, &started, &ended, &s.Output, &s.Units, &s.Model, &s.HSVRange, &s.Notes); err != nil {
		return Session{}, err
	}
	s.Started = fromUnix(started)
	if ended.Valid {
		s.Ended = fromUnix(ended.Float64)
	}
	return s, nil
}
