// Package sqlite persists events, timers and actions in a SQLite database
// through the pure-Go modernc.org/sqlite driver.
//
// Instants are stored as zone-less TEXT in naive.Layout so that the wall
// clock reading round-trips unchanged. NULL is the zero instant.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tizano/tanstack-wedding-timers-sub000/pkg/naive"
	"github.com/tizano/tanstack-wedding-timers-sub000/pkg/runshow"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	current_timer_id TEXT,
	completed_at     TEXT
);
CREATE TABLE IF NOT EXISTS timers (
	id                 TEXT PRIMARY KEY,
	event_id           TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
	ordinal            INTEGER NOT NULL,
	name               TEXT NOT NULL,
	duration_minutes   INTEGER NOT NULL DEFAULT 0,
	scheduled_start_at TEXT,
	is_manual          INTEGER NOT NULL DEFAULT 0,
	started_at         TEXT,
	completed_at       TEXT,
	status             TEXT NOT NULL DEFAULT 'PENDING',
	UNIQUE (event_id, ordinal)
);
CREATE TABLE IF NOT EXISTS actions (
	id                     TEXT PRIMARY KEY,
	timer_id               TEXT NOT NULL REFERENCES timers(id) ON DELETE CASCADE,
	ordinal                INTEGER NOT NULL,
	type                   TEXT NOT NULL,
	trigger_offset_minutes INTEGER NOT NULL DEFAULT 0,
	urls                   TEXT NOT NULL DEFAULT '[]',
	display_duration_sec   INTEGER NOT NULL DEFAULT 0,
	executed_at            TEXT,
	status                 TEXT NOT NULL DEFAULT 'PENDING'
);
CREATE INDEX IF NOT EXISTS timers_event_ordinal ON timers(event_id, ordinal);
CREATE INDEX IF NOT EXISTS actions_timer_ordinal ON actions(timer_id, ordinal);
`

const (
	eventColumns  = `id, name, current_timer_id, completed_at`
	timerColumns  = `id, event_id, ordinal, name, duration_minutes, scheduled_start_at, is_manual, started_at, completed_at, status`
	actionColumns = `id, timer_id, ordinal, type, trigger_offset_minutes, urls, display_duration_sec, executed_at, status`
)

// Store is a runshow.Store backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for a throwaway database.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("error: cannot open timer database: %w", err)
	}
	// A single connection keeps writes serialised and lets ":memory:"
	// databases survive across calls.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("error: failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func instantArg(i naive.Instant) any {
	if i.IsZero() {
		return nil
	}
	return i.String()
}

func scanInstant(ns sql.NullString) (naive.Instant, error) {
	if !ns.Valid || ns.String == "" {
		return naive.Instant{}, nil
	}
	return naive.Parse(ns.String)
}

func stringArg(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func scanEvent(row scanner) (*runshow.Event, error) {
	var (
		e         runshow.Event
		current   sql.NullString
		completed sql.NullString
	)
	if err := row.Scan(&e.ID, &e.Name, &current, &completed); err != nil {
		return nil, err
	}
	e.CurrentTimerID = current.String
	var err error
	if e.CompletedAt, err = scanInstant(completed); err != nil {
		return nil, err
	}
	return &e, nil
}

func scanTimer(row scanner) (*runshow.Timer, error) {
	var (
		t                        runshow.Timer
		scheduled, started, done sql.NullString
		status                   string
	)
	if err := row.Scan(&t.ID, &t.EventID, &t.Ordinal, &t.Name, &t.DurationMinutes,
		&scheduled, &t.IsManual, &started, &done, &status); err != nil {
		return nil, err
	}
	t.Status = runshow.Status(status)
	var err error
	if t.ScheduledStartAt, err = scanInstant(scheduled); err != nil {
		return nil, err
	}
	if t.StartedAt, err = scanInstant(started); err != nil {
		return nil, err
	}
	if t.CompletedAt, err = scanInstant(done); err != nil {
		return nil, err
	}
	return &t, nil
}

func scanAction(row scanner) (*runshow.Action, error) {
	var (
		a        runshow.Action
		typ      string
		urls     string
		executed sql.NullString
		status   string
	)
	if err := row.Scan(&a.ID, &a.TimerID, &a.Ordinal, &typ, &a.TriggerOffsetMinutes,
		&urls, &a.DisplayDurationSec, &executed, &status); err != nil {
		return nil, err
	}
	a.Type = runshow.ActionType(typ)
	a.Status = runshow.Status(status)
	if err := json.Unmarshal([]byte(urls), &a.URLs); err != nil {
		return nil, fmt.Errorf("action %q: bad urls column: %w", a.ID, err)
	}
	var err error
	if a.ExecutedAt, err = scanInstant(executed); err != nil {
		return nil, err
	}
	return &a, nil
}

func urlsArg(urls []string) (string, error) {
	if urls == nil {
		urls = []string{}
	}
	b, err := json.Marshal(urls)
	return string(b), err
}

// InsertEvent adds an event.
func (s *Store) InsertEvent(ctx context.Context, e *runshow.Event) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO events (`+eventColumns+`) VALUES (?, ?, ?, ?)`,
		e.ID, e.Name, stringArg(e.CurrentTimerID), instantArg(e.CompletedAt))
	if err != nil {
		return fmt.Errorf("insert event %q: %w", e.ID, err)
	}
	return nil
}

// InsertTimer adds a timer. A missing status defaults to PENDING.
func (s *Store) InsertTimer(ctx context.Context, t *runshow.Timer) error {
	if t.Status == "" {
		t.Status = runshow.StatusPending
	}
	if _, err := s.FindEvent(ctx, t.EventID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO timers (`+timerColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.EventID, t.Ordinal, t.Name, t.DurationMinutes, instantArg(t.ScheduledStartAt),
		t.IsManual, instantArg(t.StartedAt), instantArg(t.CompletedAt), string(t.Status))
	if err != nil {
		return fmt.Errorf("insert timer %q: %w", t.ID, err)
	}
	return nil
}

// InsertAction adds an action. A missing status defaults to PENDING.
func (s *Store) InsertAction(ctx context.Context, a *runshow.Action) error {
	if a.Status == "" {
		a.Status = runshow.StatusPending
	}
	if _, err := s.FindTimer(ctx, a.TimerID); err != nil {
		return err
	}
	urls, err := urlsArg(a.URLs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO actions (`+actionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.TimerID, a.Ordinal, string(a.Type), a.TriggerOffsetMinutes, urls,
		a.DisplayDurationSec, instantArg(a.ExecutedAt), string(a.Status))
	if err != nil {
		return fmt.Errorf("insert action %q: %w", a.ID, err)
	}
	return nil
}

// ListEvents returns every event ordered by id.
func (s *Store) ListEvents(ctx context.Context) ([]*runshow.Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM events ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*runshow.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) FindEvent(ctx context.Context, id string) (*runshow.Event, error) {
	return findEvent(ctx, s.db, id)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func findEvent(ctx context.Context, q querier, id string) (*runshow.Event, error) {
	e, err := scanEvent(q.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, runshow.NotFound("event", id)
	}
	return e, err
}

func findTimer(ctx context.Context, q querier, id string) (*runshow.Timer, error) {
	t, err := scanTimer(q.QueryRowContext(ctx, `SELECT `+timerColumns+` FROM timers WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, runshow.NotFound("timer", id)
	}
	return t, err
}

func findAction(ctx context.Context, q querier, id string) (*runshow.Action, error) {
	a, err := scanAction(q.QueryRowContext(ctx, `SELECT `+actionColumns+` FROM actions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, runshow.NotFound("action", id)
	}
	return a, err
}

// inTx runs fn in a transaction, rolling back on error.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) UpdateEvent(ctx context.Context, id string, p runshow.EventPatch) (*runshow.Event, error) {
	var out *runshow.Event
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		e, err := findEvent(ctx, tx, id)
		if err != nil {
			return err
		}
		p.Apply(e)
		if _, err := tx.ExecContext(ctx, `UPDATE events SET current_timer_id = ?, completed_at = ? WHERE id = ?`,
			stringArg(e.CurrentTimerID), instantArg(e.CompletedAt), id); err != nil {
			return err
		}
		out = e
		return nil
	})
	return out, err
}

func (s *Store) FindTimer(ctx context.Context, id string) (*runshow.Timer, error) {
	return findTimer(ctx, s.db, id)
}

func (s *Store) FindTimersByEvent(ctx context.Context, eventID string) ([]*runshow.Timer, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+timerColumns+` FROM timers WHERE event_id = ? ORDER BY ordinal`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*runshow.Timer
	for rows.Next() {
		t, err := scanTimer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) FindNextTimer(ctx context.Context, eventID string, afterOrdinal int) (*runshow.Timer, error) {
	t, err := scanTimer(s.db.QueryRowContext(ctx,
		`SELECT `+timerColumns+` FROM timers WHERE event_id = ? AND ordinal > ? ORDER BY ordinal LIMIT 1`,
		eventID, afterOrdinal))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

func writeTimer(ctx context.Context, q querier, t *runshow.Timer, where string, args ...any) (int64, error) {
	res, err := q.ExecContext(ctx, `UPDATE timers SET name = ?, duration_minutes = ?, scheduled_start_at = ?,
		is_manual = ?, started_at = ?, completed_at = ?, status = ? WHERE `+where,
		append([]any{t.Name, t.DurationMinutes, instantArg(t.ScheduledStartAt), t.IsManual,
			instantArg(t.StartedAt), instantArg(t.CompletedAt), string(t.Status)}, args...)...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) UpdateTimer(ctx context.Context, id string, p runshow.TimerPatch) (*runshow.Timer, error) {
	var out *runshow.Timer
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		t, err := findTimer(ctx, tx, id)
		if err != nil {
			return err
		}
		p.Apply(t)
		if _, err := writeTimer(ctx, tx, t, `id = ?`, id); err != nil {
			return err
		}
		out = t
		return nil
	})
	return out, err
}

// TransitionTimer applies p only while the stored status is still from.
// The guard is part of the UPDATE so concurrent writers cannot both win.
func (s *Store) TransitionTimer(ctx context.Context, id string, from runshow.Status, p runshow.TimerPatch) (*runshow.Timer, bool, error) {
	var (
		out     *runshow.Timer
		applied bool
	)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		t, err := findTimer(ctx, tx, id)
		if err != nil {
			return err
		}
		if t.Status != from {
			out = t
			return nil
		}
		p.Apply(t)
		n, err := writeTimer(ctx, tx, t, `id = ? AND status = ?`, id, string(from))
		if err != nil {
			return err
		}
		if n == 0 {
			out, err = findTimer(ctx, tx, id)
			return err
		}
		out, applied = t, true
		return nil
	})
	return out, applied, err
}

func (s *Store) FindAction(ctx context.Context, id string) (*runshow.Action, error) {
	return findAction(ctx, s.db, id)
}

func (s *Store) FindActionsByTimer(ctx context.Context, timerID string) ([]*runshow.Action, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+actionColumns+` FROM actions WHERE timer_id = ? ORDER BY ordinal`, timerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*runshow.Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) UpdateAction(ctx context.Context, id string, p runshow.ActionPatch) (*runshow.Action, error) {
	var out *runshow.Action
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		a, err := findAction(ctx, tx, id)
		if err != nil {
			return err
		}
		p.Apply(a)
		urls, err := urlsArg(a.URLs)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE actions SET type = ?, trigger_offset_minutes = ?, urls = ?,
			display_duration_sec = ?, executed_at = ?, status = ? WHERE id = ?`,
			string(a.Type), a.TriggerOffsetMinutes, urls, a.DisplayDurationSec,
			instantArg(a.ExecutedAt), string(a.Status), id); err != nil {
			return err
		}
		out = a
		return nil
	})
	return out, err
}

var _ runshow.Store = (*Store)(nil)
