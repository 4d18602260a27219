package sqlsink

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/loykin/devstack/internal/history"
)

func TestBinds(t *testing.T) {
	pg := &Table{d: Postgres}
	assert.Equal(t, "$1, $2, $3", pg.binds(3))
	lite := &Table{d: SQLite}
	assert.Equal(t, "?, ?", lite.binds(2))
}

func TestTableCountAndLimit(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	ctx := context.Background()
	tbl, err := Open(ctx, db, SQLite)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tbl.Close() })

	base := time.Now().Add(-time.Hour)
	for i := range 5 {
		require.NoError(t, tbl.Send(ctx, history.Event{
			Type: history.EventRestart, OccurredAt: base.Add(time.Duration(i) * time.Minute),
			Kind: "service", ID: "nginx", PID: 100 + i, Status: "running",
		}))
	}
	n, err := tbl.Count(ctx, "nginx")
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	got, err := tbl.Recent(ctx, "nginx", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 104, got[0].PID)
	assert.Empty(t, got[0].Message)

	n, err = tbl.Count(ctx, "other")
	require.NoError(t, err)
	assert.Zero(t, n)
}
