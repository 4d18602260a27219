package portscan

import (
	"context"
	"net"
	"os"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListeners(t *testing.T) {
	m := Listeners([]Entry{
		{Port: 80, PID: 10, State: StateListen},
		{Port: 80, PID: 11, State: StateListen},
		{Port: 3306, PID: 0, State: StateListen},
		{Port: 5000, PID: 12, State: "ESTABLISHED"},
	})
	assert.Equal(t, map[int]int{80: 10}, m)
}

func TestSystemFindsOwnListener(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("connection table ownership is only reliable on linux")
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()
	port := ln.Addr().(*net.TCPAddr).Port

	entries, err := System{}.Scan(context.Background())
	require.NoError(t, err)
	pid, ok := Listeners(entries)[port]
	require.True(t, ok, "port %d not in scan", port)
	assert.Equal(t, os.Getpid(), pid)
}

func TestStatic(t *testing.T) {
	s := Static{{Port: 1, PID: 2, State: StateListen}}
	got, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
