package factory

import (
	"errors"
	"strings"

	"github.com/loykin/devstack/internal/store"
	fs "github.com/loykin/devstack/internal/store/file"
	pg "github.com/loykin/devstack/internal/store/postgres"
	sq "github.com/loykin/devstack/internal/store/sqlite"
)

// NewFromDSN selects a store implementation based on DSN.
// Supported:
//   - sqlite:   "sqlite://<path>" or a bare filepath
//   - postgres: DSN starting with "postgres://" or "postgresql://"
//   - file:     "file://<path>" or a path ending in ".json"
func NewFromDSN(dsn string) (store.Store, error) {
	d := strings.TrimSpace(dsn)
	ld := strings.ToLower(d)
	if ld == "" {
		return nil, errors.New("empty DSN")
	}
	switch {
	case strings.HasPrefix(ld, "postgres://"), strings.HasPrefix(ld, "postgresql://"):
		return pg.New(d)
	case strings.HasPrefix(ld, "sqlite://"):
		return sq.New(d[len("sqlite://"):])
	case strings.HasPrefix(ld, "file://"):
		return fs.New(d[len("file://"):])
	case strings.HasSuffix(ld, ".json"):
		return fs.New(d)
	}
	return sq.New(d)
}
