package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/devstack/internal/history"
)

func TestSinkSendAndRecent(t *testing.T) {
	s, err := New("sqlite://" + filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, s.Send(ctx, history.Event{Type: history.EventStart, OccurredAt: base, Kind: "service", ID: "mariadb", PID: 55, Status: "running"}))
	require.NoError(t, s.Send(ctx, history.Event{Type: history.EventStop, OccurredAt: base.Add(time.Second), Kind: "service", ID: "mariadb", Status: "stopped", Message: "manual"}))
	require.NoError(t, s.Send(ctx, history.Event{Type: history.EventStart, OccurredAt: base, Kind: "project", ID: "p1", PID: 77, Status: "running"}))

	got, err := s.Recent(ctx, "mariadb", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, history.EventStop, got[0].Type)
	assert.Equal(t, "manual", got[0].Message)
	assert.Equal(t, 55, got[1].PID)

	all, err := s.Recent(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSinkEmptyDSN(t *testing.T) {
	_, err := New("sqlite://")
	assert.Error(t, err)
}
