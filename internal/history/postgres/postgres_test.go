package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpg "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/loykin/devstack/internal/history"
)

func TestPostgresSink_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()
	ctr, err := tcpg.Run(ctx,
		"postgres:15-alpine",
		tcpg.WithDatabase("testdb"),
		tcpg.WithUsername("testuser"),
		tcpg.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = ctr.Terminate(ctx) })

	connStr, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	sink, err := New(connStr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sink.Close() })

	require.NoError(t, sink.Send(ctx, history.Event{Type: history.EventStart, OccurredAt: time.Now(), Kind: "service", ID: "apache", PID: 1234, Status: "running"}))
	require.NoError(t, sink.Send(ctx, history.Event{Type: history.EventStop, OccurredAt: time.Now(), Kind: "service", ID: "apache", Status: "stopped"}))
	n, err := sink.Count(ctx, "apache")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := sink.Recent(ctx, "apache", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, history.EventStop, got[0].Type)
}
