package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/loykin/devstack/internal/history/sqlsink"
)

// Sink keeps history events in a local SQLite file and can read them back.
type Sink struct {
	*sqlsink.Table
}

// New opens "sqlite:///path/to/file.db", "sqlite://:memory:" or a bare path.
func New(dsn string) (*Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if len(dsn) >= len("sqlite://") && strings.EqualFold(dsn[:len("sqlite://")], "sqlite://") {
		dsn = dsn[len("sqlite://"):]
	}
	if dsn == "" {
		return nil, errors.New("empty SQLite DSN")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// one writer; also keeps ":memory:" a single database
	db.SetMaxOpenConns(1)
	t, err := sqlsink.Open(context.Background(), db, sqlsink.SQLite)
	if err != nil {
		return nil, err
	}
	return &Sink{Table: t}, nil
}
