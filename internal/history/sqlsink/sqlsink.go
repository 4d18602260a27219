// Package sqlsink stores lifecycle events in a SQL table. The sqlite and
// postgres history sinks share it and differ only by Dialect.
package sqlsink

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/loykin/devstack/internal/history"
)

type Dialect struct {
	// TimeType is the column type of occurred_at.
	TimeType string
	// Bind returns the n-th (1-based) placeholder.
	Bind func(n int) string
}

var (
	SQLite   = Dialect{TimeType: "TIMESTAMP", Bind: func(int) string { return "?" }}
	Postgres = Dialect{TimeType: "TIMESTAMPTZ", Bind: func(n int) string { return "$" + strconv.Itoa(n) }}
)

const table = "lifecycle_history"

type Table struct {
	db *sql.DB
	d  Dialect
}

// Open takes ownership of db and creates the table when missing.
func Open(ctx context.Context, db *sql.DB, d Dialect) (*Table, error) {
	t := &Table{db: db, d: d}
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s(
			occurred_at %s NOT NULL,
			event TEXT NOT NULL,
			kind TEXT NOT NULL,
			id TEXT NOT NULL,
			pid INTEGER NOT NULL,
			status TEXT NOT NULL,
			message TEXT
		);`, table, d.TimeType),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_id ON %[1]s(id, occurred_at);`, table),
	}
	for _, q := range stmts {
		if _, err := db.ExecContext(ctx, q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("history schema: %w", err)
		}
	}
	return t, nil
}

func (t *Table) binds(n int) string {
	p := make([]string, n)
	for i := range p {
		p[i] = t.d.Bind(i + 1)
	}
	return strings.Join(p, ", ")
}

func (t *Table) Send(ctx context.Context, e history.Event) error {
	var msg any
	if e.Message != "" {
		msg = e.Message
	}
	q := fmt.Sprintf(`INSERT INTO %s(occurred_at, event, kind, id, pid, status, message) VALUES(%s);`, table, t.binds(7))
	_, err := t.db.ExecContext(ctx, q, e.OccurredAt.UTC(), string(e.Type), e.Kind, e.ID, e.PID, e.Status, msg)
	return err
}

// Recent returns the newest events for id, newest first. An empty id
// matches every entity; limit <= 0 means 100.
func (t *Table) Recent(ctx context.Context, id string, limit int) ([]history.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	var b strings.Builder
	fmt.Fprintf(&b, `SELECT occurred_at, event, kind, id, pid, status, COALESCE(message, '') FROM %s`, table)
	var args []any
	if id != "" {
		args = append(args, id)
		fmt.Fprintf(&b, ` WHERE id=%s`, t.d.Bind(len(args)))
	}
	args = append(args, limit)
	fmt.Fprintf(&b, ` ORDER BY occurred_at DESC LIMIT %s;`, t.d.Bind(len(args)))

	rows, err := t.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []history.Event
	for rows.Next() {
		var (
			e   history.Event
			typ string
		)
		if err := rows.Scan(&e.OccurredAt, &typ, &e.Kind, &e.ID, &e.PID, &e.Status, &e.Message); err != nil {
			return nil, err
		}
		e.Type = history.EventType(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns the number of stored events for id.
func (t *Table) Count(ctx context.Context, id string) (int, error) {
	var n int
	q := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE id=%s;`, table, t.d.Bind(1))
	err := t.db.QueryRowContext(ctx, q, id).Scan(&n)
	return n, err
}

func (t *Table) Close() error {
	if t.db == nil {
		return nil
	}
	return t.db.Close()
}
