package framework

import (
	"strconv"
	"strings"
)

// Invocation is the concrete command line and the environment overlay for a
// project start.
type Invocation struct {
	Command string
	Env     map[string]string
}

// injector rewrites a command line so the dev server binds port. It must
// leave commands that already name a port untouched.
type injector func(fields []string, port int) []string

type rule struct {
	inject injector
	// extra env beyond PORT
	env func(port int) map[string]string
	// noPort suppresses the PORT variable
	noPort bool
}

var rules = map[Type]rule{
	Vite:     {inject: scriptFlag("--port")},
	Vue:      {inject: scriptFlag("--port")},
	Svelte:   {inject: scriptFlag("--port")},
	Astro:    {inject: scriptFlag("--port")},
	Remix:    {inject: scriptFlag("--port")},
	Nuxt:     {inject: scriptFlag("--port")},
	Angular:  {inject: scriptFlag("--port")},
	React:    {inject: reactFlag},
	Next:     {inject: scriptFlag("-p", "--port")},
	Node:     {inject: nodeFlag},
	Django:   {inject: djangoAddr},
	Flask:    {inject: flaskFlag, env: func(p int) map[string]string { return map[string]string{"FLASK_RUN_PORT": strconv.Itoa(p)} }},
	FastAPI:  {inject: uvicornFlag},
	PHP:      {inject: phpAddr},
	Laravel:  {inject: phpAddr},
	Tauri:    {noPort: true},
	Electron: {noPort: true},
}

// Build derives the invocation for a project of type t. The port is only
// injected when the command does not already carry one, so Build applied to
// its own output is a no-op. A port <= 0 disables injection entirely.
// Desktop shells never get a port: their embedded dev server config is
// authoritative and a mismatched port leaves the native window waiting.
func Build(t Type, command string, port int) Invocation {
	inv := Invocation{Command: strings.TrimSpace(command), Env: map[string]string{}}
	if port <= 0 {
		return inv
	}
	r := rules[t]
	if !r.noPort && !t.Desktop() {
		inv.Env["PORT"] = strconv.Itoa(port)
	}
	if r.env != nil {
		for k, v := range r.env(port) {
			inv.Env[k] = v
		}
	}
	if r.inject == nil || inv.Command == "" {
		return inv
	}
	fields := strings.Fields(inv.Command)
	out := r.inject(fields, port)
	if !sameFields(out, fields) {
		inv.Command = strings.Join(out, " ")
	}
	return inv
}

func sameFields(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func hasFlag(fields []string, flags ...string) bool {
	for _, f := range fields {
		for _, want := range flags {
			if f == want || strings.HasPrefix(f, want+"=") {
				return true
			}
			// -p3000 style short flags
			if len(want) == 2 && want[0] == '-' && len(f) > 2 && strings.HasPrefix(f, want) && isDigits(f[2:]) {
				return true
			}
		}
	}
	return false
}

func contains(fields []string, tok string) bool {
	for _, f := range fields {
		if f == tok {
			return true
		}
	}
	return false
}

func indexOf(fields []string, tok string) int {
	for i, f := range fields {
		if f == tok {
			return i
		}
	}
	return -1
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// needsSeparator reports whether extra flags must follow "--" to reach the
// underlying script. npm swallows flags otherwise; yarn, pnpm and bun
// forward them.
func needsSeparator(fields []string) bool {
	if len(fields) == 0 || fields[0] != "npm" {
		return false
	}
	return !contains(fields, "--")
}

// scriptFlag returns an injector that appends the first flag with the port,
// adding the npm separator when needed. Any of flags counts as present.
func scriptFlag(flags ...string) injector {
	return func(fields []string, port int) []string {
		if hasFlag(fields, flags...) {
			return fields
		}
		out := append([]string(nil), fields...)
		if needsSeparator(fields) {
			out = append(out, "--")
		}
		return append(out, flags[0], strconv.Itoa(port))
	}
}

// reactFlag handles create-react-app, which reads PORT and rejects --port,
// and falls back to the Vite rule for everything else.
func reactFlag(fields []string, port int) []string {
	for _, f := range fields {
		if strings.Contains(f, "react-scripts") {
			return fields
		}
	}
	return scriptFlag("--port")(fields, port)
}

// nodeFlag only touches package manager scripts; plain "node server.js"
// gets PORT through the environment.
func nodeFlag(fields []string, port int) []string {
	if len(fields) == 0 {
		return fields
	}
	switch fields[0] {
	case "npm", "yarn", "pnpm", "bun":
		return scriptFlag("--port")(fields, port)
	}
	return fields
}

func djangoAddr(fields []string, port int) []string {
	i := indexOf(fields, "runserver")
	if i < 0 {
		return fields
	}
	if i+1 < len(fields) {
		next := fields[i+1]
		if strings.Contains(next, ":") || isDigits(next) {
			return fields
		}
	}
	out := make([]string, 0, len(fields)+1)
	out = append(out, fields[:i+1]...)
	out = append(out, "0.0.0.0:"+strconv.Itoa(port))
	return append(out, fields[i+1:]...)
}

func flaskFlag(fields []string, port int) []string {
	i := indexOf(fields, "flask")
	if i < 0 || !contains(fields[i:], "run") || hasFlag(fields, "--port", "-p") {
		return fields
	}
	return append(append([]string(nil), fields...), "--port", strconv.Itoa(port))
}

func uvicornFlag(fields []string, port int) []string {
	if !contains(fields, "uvicorn") && !contains(fields, "fastapi") {
		return fields
	}
	if hasFlag(fields, "--port") {
		return fields
	}
	return append(append([]string(nil), fields...), "--port", strconv.Itoa(port))
}

// phpAddr covers "php artisan serve" and the built-in "php -S host" server.
// A -S argument that already has host:port is kept.
func phpAddr(fields []string, port int) []string {
	if contains(fields, "artisan") && contains(fields, "serve") {
		if hasFlag(fields, "--port") {
			return fields
		}
		return append(append([]string(nil), fields...), "--port="+strconv.Itoa(port))
	}
	i := indexOf(fields, "-S")
	if i < 0 {
		return fields
	}
	if i+1 >= len(fields) {
		out := append([]string(nil), fields...)
		return append(out, "localhost:"+strconv.Itoa(port))
	}
	if strings.Contains(fields[i+1], ":") {
		return fields
	}
	out := append([]string(nil), fields...)
	out[i+1] = fields[i+1] + ":" + strconv.Itoa(port)
	return out
}
