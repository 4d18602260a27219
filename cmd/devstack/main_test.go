package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/devstack/internal/config"
	"github.com/loykin/devstack/internal/logger"
	"github.com/loykin/devstack/pkg/client"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := buildRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func stubDaemon(t *testing.T) string {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/services", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]client.Service{
			{ID: "mariadb", Status: "running", PID: 77, Ownership: "adopted", Port: 3306},
			{ID: "apache", Status: "not-installed", ErrorMessage: "executable not found: /opt/httpd"},
		})
	})
	mux.HandleFunc("POST /api/services/{id}/start", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(client.Service{ID: r.PathValue("id"), Status: "running", PID: 88})
	})
	mux.HandleFunc("GET /api/services/{id}/health", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(client.Health{Healthy: false, Message: "connection refused"})
	})
	mux.HandleFunc("POST /api/projects", func(w http.ResponseWriter, r *http.Request) {
		var p client.Project
		_ = json.NewDecoder(r.Body).Decode(&p)
		p.ID = "0b8f0c4e-1111-4222-8333-444455556666"
		if p.Type == "" {
			p.Type = "node"
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(p)
	})
	mux.HandleFunc("POST /api/projects/{id}/stop", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"project not found"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv.URL + "/api"
}

func TestHelpMentionsCommands(t *testing.T) {
	out, err := run(t, "--help")
	require.NoError(t, err)
	for _, sub := range []string{"serve", "service", "project", "detect", "cleanup"} {
		assert.Contains(t, out, sub)
	}
}

func TestServiceListTable(t *testing.T) {
	api := stubDaemon(t)
	out, err := run(t, "--api-url", api, "service", "list")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "adopted")
	assert.Contains(t, lines[2], "executable not found")
}

func TestServiceStartAndHealth(t *testing.T) {
	api := stubDaemon(t)
	out, err := run(t, "--api-url", api, "service", "start", "php")
	require.NoError(t, err)
	assert.Equal(t, "php running (pid 88)\n", out)

	_, err = run(t, "--api-url", api, "service", "health", "php")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestProjectAdd(t *testing.T) {
	api := stubDaemon(t)
	dir := t.TempDir()
	out, err := run(t, "--api-url", api, "--json", "project", "add", dir, "--port", "3000", "--env", "DEBUG=1")
	require.NoError(t, err)
	var p client.Project
	require.NoError(t, json.Unmarshal([]byte(out), &p))
	assert.Equal(t, filepath.Base(dir), p.Name)
	assert.Equal(t, 3000, p.Port)
	assert.Equal(t, map[string]string{"DEBUG": "1"}, p.EnvVars)

	_, err = run(t, "--api-url", api, "project", "add", filepath.Join(dir, "missing"))
	assert.Error(t, err)
	_, err = run(t, "--api-url", api, "project", "add", dir, "--type", "cobol")
	assert.Error(t, err)
	_, err = run(t, "--api-url", api, "project", "add", dir, "--env", "=x")
	assert.Error(t, err)
}

func TestProjectStopNotFound(t *testing.T) {
	api := stubDaemon(t)
	_, err := run(t, "--api-url", api, "project", "stop", "abc")
	assert.ErrorIs(t, err, client.ErrNotFound)
}

func TestDetectRunsLocally(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manage.py"), nil, 0o644))
	out, err := run(t, "detect", dir)
	require.NoError(t, err)
	assert.Contains(t, out, ": django (default command: python manage.py runserver)")
}

func TestLogPathsFollowProcessWriters(t *testing.T) {
	cfg := &config.Config{Log: logger.Config{File: logger.FileConfig{Dir: "/var/log/devstack"}}}
	paths := logPaths(cfg, "p1")
	assert.Equal(t, "/var/log/devstack/p1.stdout.log", paths[""])
	assert.Equal(t, "/var/log/devstack/p1.stderr.log", paths["err "])

	cfg.Log.File.StderrPath = "/tmp/all.err"
	assert.Equal(t, "/tmp/all.err", logPaths(cfg, "p1")["err "])
}

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func TestFollowLogs(t *testing.T) {
	dir := t.TempDir()
	stdout := filepath.Join(dir, "p.stdout.log")
	stderr := filepath.Join(dir, "p.stderr.log")
	require.NoError(t, os.WriteFile(stdout, []byte("old line\n"), 0o644))
	require.NoError(t, os.WriteFile(stderr, nil, 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	var out syncBuffer
	done := make(chan error, 1)
	go func() { done <- followLogs(ctx, &out, map[string]string{"": stdout, "err ": stderr}) }()

	// give the tailers time to seek to the end; then append
	time.Sleep(300 * time.Millisecond)
	appendLine := func(path, line string) {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
		require.NoError(t, err)
		_, err = f.WriteString(line + "\n")
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}
	appendLine(stdout, "ready in 120 ms")
	appendLine(stderr, "warning: deprecated")

	require.Eventually(t, func() bool {
		s := out.String()
		return strings.Contains(s, "ready in 120 ms\n") && strings.Contains(s, "err warning: deprecated\n")
	}, 5*time.Second, 50*time.Millisecond)
	assert.NotContains(t, out.String(), "old line")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("followLogs did not return after cancel")
	}
}
