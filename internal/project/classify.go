package project

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/loykin/devstack/internal/framework"
)

// Milestone is a build or launch stage recognized in process output.
type Milestone string

const (
	MilestoneStarting  Milestone = "starting"
	MilestoneCompiling Milestone = "compiling"
	MilestoneProgress  Milestone = "progress"
	MilestoneLaunched  Milestone = "launched"
	MilestoneError     Milestone = "error"
)

type rule struct {
	m        Milestone
	prefixes []string
	contains []string
}

func (r rule) match(lower string) bool {
	for _, p := range r.prefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	for _, c := range r.contains {
		if strings.Contains(lower, c) {
			return true
		}
	}
	return false
}

var (
	percent = regexp.MustCompile(`\b(\d{1,3})%`)
	ansi    = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)
)

// Common failure markers of every toolchain.
var errorRule = rule{m: MilestoneError,
	prefixes: []string{"error", "npm err!", "traceback", "fatal", "panic:"},
	contains: []string{"eaddrinuse", "address already in use", "command not found", "is not recognized as an internal", "fatal error", "parse error", "module not found", "cannot find module"},
}

var viteRules = []rule{
	{m: MilestoneLaunched, contains: []string{"ready in", "local:", "localhost:"}},
	{m: MilestoneCompiling, contains: []string{"building", "compiling", "transforming", "optimizing dependencies", "pre-bundling"}},
}

var rules = map[framework.Type][]rule{
	framework.Next: {
		{m: MilestoneLaunched, contains: []string{"ready in", "ready -", "started server on", "local:"}},
		{m: MilestoneCompiling, contains: []string{"compiling", "creating an optimized"}},
		{m: MilestoneProgress, contains: []string{"compiled", "starting..."}},
	},
	framework.Nuxt: {
		{m: MilestoneLaunched, contains: []string{"local:", "listening on", "ready in"}},
		{m: MilestoneCompiling, contains: []string{"building", "compiling"}},
		{m: MilestoneProgress, contains: []string{"built in", "vite client built", "vite server built"}},
	},
	framework.Angular: {
		{m: MilestoneLaunched, contains: []string{"compiled successfully", "live development server is listening", "local:"}},
		{m: MilestoneCompiling, contains: []string{"building", "generating browser application bundles", "compiling"}},
		{m: MilestoneProgress, contains: []string{"initial chunk files"}},
	},
	framework.React: {
		{m: MilestoneLaunched, contains: []string{"compiled successfully", "webpack compiled", "you can now view", "ready in", "local:"}},
		{m: MilestoneCompiling, contains: []string{"starting the development server", "compiling"}},
	},
	framework.Tauri: {
		{m: MilestoneCompiling, prefixes: []string{"compiling", "building", "downloading", "updating crates.io"}},
		{m: MilestoneProgress, prefixes: []string{"finished", "info watching"}, contains: []string{"ready in", "local:"}},
		{m: MilestoneLaunched, prefixes: []string{"running `", "running target"}},
	},
	framework.Electron: {
		{m: MilestoneLaunched, contains: []string{"starting electron", "electron app", "app ready"}},
		{m: MilestoneProgress, contains: []string{"ready in", "local:", "compiled successfully"}},
		{m: MilestoneCompiling, contains: []string{"building", "compiling"}},
	},
	framework.Django: {
		{m: MilestoneLaunched, contains: []string{"starting development server at", "quit the server with"}},
		{m: MilestoneProgress, contains: []string{"performing system checks", "system check identified"}},
		{m: MilestoneStarting, contains: []string{"watching for file changes"}},
	},
	framework.Flask: {
		{m: MilestoneLaunched, contains: []string{"running on http"}},
		{m: MilestoneStarting, contains: []string{"serving flask app", "restarting with"}},
		{m: MilestoneProgress, contains: []string{"debugger is active"}},
	},
	framework.FastAPI: {
		{m: MilestoneLaunched, contains: []string{"uvicorn running on", "application startup complete"}},
		{m: MilestoneStarting, contains: []string{"started reloader process", "will watch for changes"}},
		{m: MilestoneProgress, contains: []string{"waiting for application startup", "started server process"}},
	},
	framework.PHP: {
		{m: MilestoneLaunched, contains: []string{"development server", "listening on"}},
	},
	framework.Laravel: {
		{m: MilestoneLaunched, contains: []string{"server running on", "development server started"}},
		{m: MilestoneCompiling, contains: []string{"vite", "building"}},
	},
	framework.Static: {
		{m: MilestoneLaunched, contains: []string{"serving!", "accepting connections", "available on", "local:"}},
	},
	framework.Node: {
		{m: MilestoneLaunched, contains: []string{"listening on", "server running", "server started", "ready in", "local:", "localhost:"}},
		{m: MilestoneCompiling, contains: []string{"compiling", "building"}},
	},
}

func init() {
	for _, t := range []framework.Type{framework.Vite, framework.Vue, framework.Svelte, framework.Astro, framework.Remix} {
		rules[t] = viteRules
	}
	rules[framework.Unknown] = rules[framework.Node]
}

// Classification is the milestone a line maps to.
type Classification struct {
	Milestone Milestone
	Percent   int // -1 when the line carries no percentage
	Line      string
}

// Classify maps one output line to a milestone. ok is false for lines that
// carry no signal.
func Classify(t framework.Type, line string) (Classification, bool) {
	clean := strings.TrimSpace(ansi.ReplaceAllString(line, ""))
	if clean == "" {
		return Classification{}, false
	}
	lower := strings.ToLower(strings.TrimLeft(clean, "➜✓✔ >-*•"))
	lower = strings.TrimSpace(lower)
	c := Classification{Line: clean, Percent: -1}

	if errorRule.match(lower) || isErrorLine(t, clean) {
		c.Milestone = MilestoneError
		return c, true
	}
	for _, r := range rules[t] {
		if r.match(lower) {
			c.Milestone = r.m
			if r.m == MilestoneProgress || r.m == MilestoneCompiling {
				c.Percent = percentOf(clean)
			}
			return c, true
		}
	}
	if p := percentOf(clean); p >= 0 {
		c.Milestone, c.Percent = MilestoneProgress, p
		return c, true
	}
	return Classification{}, false
}

// isErrorLine catches type specific failures the common rule misses. Rust
// diagnostics look like "error[E0425]: ...".
func isErrorLine(t framework.Type, line string) bool {
	switch t {
	case framework.Tauri:
		return strings.HasPrefix(line, "error[") || strings.HasPrefix(line, "error:")
	case framework.Django, framework.Flask, framework.FastAPI:
		return strings.Contains(line, "Error:") && !strings.Contains(line, "0 errors")
	}
	return false
}

func percentOf(line string) int {
	m := percent.FindStringSubmatch(line)
	if m == nil {
		return -1
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n > 100 {
		return -1
	}
	return n
}
