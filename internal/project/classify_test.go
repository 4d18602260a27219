package project

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/loykin/devstack/internal/framework"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		typ     framework.Type
		line    string
		want    Milestone
		percent int
	}{
		{framework.Vite, "  VITE v5.2.0  ready in 312 ms", MilestoneLaunched, -1},
		{framework.Vue, "  ➜  Local:   http://localhost:5173/", MilestoneLaunched, -1},
		{framework.Svelte, "\x1b[32m➜\x1b[0m  Local: http://localhost:5173/", MilestoneLaunched, -1},
		{framework.Vite, "optimizing dependencies...", MilestoneCompiling, -1},
		{framework.Next, " ✓ Ready in 2.1s", MilestoneLaunched, -1},
		{framework.Next, " ✓ Compiled / in 1.2s", MilestoneProgress, -1},
		{framework.Next, "Compiling /page ...", MilestoneCompiling, -1},
		{framework.Angular, "** Angular Live Development Server is listening on localhost:4200 **", MilestoneLaunched, -1},
		{framework.React, "webpack compiled successfully", MilestoneLaunched, -1},
		{framework.Tauri, "   Compiling tauri v1.5.4", MilestoneCompiling, -1},
		{framework.Tauri, "    Finished dev [unoptimized + debuginfo] target(s) in 41.2s", MilestoneProgress, -1},
		{framework.Tauri, "     Running `target/debug/app`", MilestoneLaunched, -1},
		{framework.Tauri, "error[E0425]: cannot find value `x` in this scope", MilestoneError, -1},
		{framework.Tauri, "Building [=======>      ] 120/300: serde", MilestoneCompiling, -1},
		{framework.Django, "Starting development server at http://0.0.0.0:8000/", MilestoneLaunched, -1},
		{framework.Django, "Watching for file changes with StatReloader", MilestoneStarting, -1},
		{framework.Flask, " * Running on http://127.0.0.1:5000", MilestoneLaunched, -1},
		{framework.FastAPI, "INFO:     Uvicorn running on http://127.0.0.1:8000 (Press CTRL+C to quit)", MilestoneLaunched, -1},
		{framework.FastAPI, "Traceback (most recent call last):", MilestoneError, -1},
		{framework.PHP, "[Mon Jan 1 10:00:00 2026] PHP 8.3.0 Development Server (http://localhost:8000) started", MilestoneLaunched, -1},
		{framework.Laravel, "   INFO  Server running on [http://127.0.0.1:8000].", MilestoneLaunched, -1},
		{framework.Node, "Error: listen EADDRINUSE: address already in use :::3000", MilestoneError, -1},
		{framework.Node, "npm ERR! missing script: dev", MilestoneError, -1},
		{framework.Node, "server listening on port 3000", MilestoneLaunched, -1},
		{framework.Electron, "building main bundle 45%", MilestoneCompiling, 45},
		{framework.Unknown, "downloading 73% done", MilestoneProgress, 73},
	}
	for _, c := range cases {
		got, ok := Classify(c.typ, c.line)
		if assert.True(t, ok, "%s %q", c.typ, c.line) {
			assert.Equal(t, c.want, got.Milestone, "%s %q", c.typ, c.line)
			assert.Equal(t, c.percent, got.Percent, "%s %q", c.typ, c.line)
		}
	}
}

func TestClassifyIgnoresNoise(t *testing.T) {
	for _, line := range []string{"", "   ", "GET / 200 3ms", "warning: unused variable", "hmr update /src/App.vue"} {
		_, ok := Classify(framework.Vite, line)
		assert.False(t, ok, "%q", line)
	}
}

func TestClassifyStripsANSI(t *testing.T) {
	c, ok := Classify(framework.Vite, "\x1b[1m\x1b[32mVITE\x1b[0m ready in 90 ms")
	assert.True(t, ok)
	assert.Equal(t, "VITE ready in 90 ms", c.Line)
}
