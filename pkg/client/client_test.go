package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Client, *[]string) {
	t.Helper()
	var seen []string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/services", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]Service{{ID: "mariadb", Status: "running", PID: 42, Ownership: "adopted"}})
	})
	mux.HandleFunc("POST /api/services/{id}/{action}", func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.PathValue("action")+" "+r.PathValue("id"))
		if r.PathValue("id") == "nginx" {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "service not found: nginx"})
			return
		}
		_ = json.NewEncoder(w).Encode(Service{ID: r.PathValue("id"), Status: "running"})
	})
	mux.HandleFunc("POST /api/projects", func(w http.ResponseWriter, r *http.Request) {
		var p Project
		_ = json.NewDecoder(r.Body).Decode(&p)
		p.ID = "7d3c5d8e-0000-4000-8000-000000000001"
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(p)
	})
	mux.HandleFunc("POST /api/projects/{id}/stop", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	mux.HandleFunc("GET /api/projects/{id}/logs", func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, "logs n="+r.URL.Query().Get("n"))
		_, _ = w.Write([]byte(`[{"time":"2024-01-01T00:00:00Z","level":"WARN","source":"p","message":"deprecated"}]`))
	})
	mux.HandleFunc("GET /api/cleanup", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"lines":["killed stale service php (pid 9)"]}`))
	})
	mux.HandleFunc("GET /api/detect", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"path query param must be an absolute path without traversal"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL + "/api"}), &seen
}

func TestServices(t *testing.T) {
	c, seen := newTestServer(t)
	ctx := context.Background()
	assert.True(t, c.IsReachable(ctx))

	list, err := c.Services(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "adopted", list[0].Ownership)

	svc, err := c.ServiceAction(ctx, "apache", "restart")
	require.NoError(t, err)
	assert.Equal(t, "running", svc.Status)

	_, err = c.ServiceAction(ctx, "nginx", "start")
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)

	_, err = c.ServiceAction(ctx, "apache", "reload")
	assert.Error(t, err)
	assert.Equal(t, []string{"restart apache", "start nginx"}, *seen)
}

func TestProjects(t *testing.T) {
	c, seen := newTestServer(t)
	ctx := context.Background()

	p, err := c.AddProject(ctx, Project{Name: "shop", Path: "/src/shop", Port: 3000})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, 3000, p.Port)

	info, err := c.ProjectAction(ctx, p.ID, "stop")
	require.NoError(t, err)
	assert.Nil(t, info)

	lines, err := c.Logs(ctx, p.ID, 20)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "WARN", lines[0].Level)
	assert.Contains(t, *seen, "logs n=20")

	cleanup, err := c.Cleanup(ctx)
	require.NoError(t, err)
	assert.Len(t, cleanup, 1)

	_, err = c.Detect(ctx, "relative")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API error (400)")
}

func TestUnreachable(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1/api"})
	assert.False(t, c.IsReachable(context.Background()))
	_, err := c.Services(context.Background())
	assert.Error(t, err)
}
