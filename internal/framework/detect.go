package framework

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

type packageJSON struct {
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
	Scripts         map[string]string `json:"scripts"`
}

func (p packageJSON) has(name string) bool {
	if _, ok := p.Dependencies[name]; ok {
		return true
	}
	_, ok := p.DevDependencies[name]
	return ok
}

func (p packageJSON) hasPrefix(prefix string) bool {
	for _, m := range []map[string]string{p.Dependencies, p.DevDependencies} {
		for k := range m {
			if strings.HasPrefix(k, prefix) {
				return true
			}
		}
	}
	return false
}

// nodeOrder is checked top to bottom; meta-frameworks come before the
// libraries they are built on.
var nodeOrder = []struct {
	t     Type
	match func(packageJSON) bool
}{
	{Tauri, func(p packageJSON) bool { return p.hasPrefix("@tauri-apps/") }},
	{Electron, func(p packageJSON) bool { return p.has("electron") }},
	{Next, func(p packageJSON) bool { return p.has("next") }},
	{Nuxt, func(p packageJSON) bool { return p.has("nuxt") }},
	{Remix, func(p packageJSON) bool { return p.hasPrefix("@remix-run/") }},
	{Astro, func(p packageJSON) bool { return p.has("astro") }},
	{Angular, func(p packageJSON) bool { return p.has("@angular/core") }},
	{Svelte, func(p packageJSON) bool { return p.has("svelte") || p.has("@sveltejs/kit") }},
	{Vue, func(p packageJSON) bool { return p.has("vue") }},
	{React, func(p packageJSON) bool { return p.has("react-scripts") }},
	{Vite, func(p packageJSON) bool { return p.has("vite") }},
	{React, func(p packageJSON) bool { return p.has("react") }},
}

// Detect guesses the project type from the files in dir.
func Detect(dir string) Type {
	exists := func(name string) bool {
		_, err := os.Stat(filepath.Join(dir, name))
		return err == nil
	}
	if exists(filepath.Join("src-tauri", "tauri.conf.json")) {
		return Tauri
	}
	if b, err := os.ReadFile(filepath.Join(dir, "package.json")); err == nil {
		var pkg packageJSON
		if json.Unmarshal(b, &pkg) == nil {
			for _, c := range nodeOrder {
				if c.match(pkg) {
					return c.t
				}
			}
		}
		return Node
	}
	if exists("manage.py") {
		return Django
	}
	if exists("artisan") {
		return Laravel
	}
	if t := detectPython(dir); t != Unknown {
		return t
	}
	if exists("composer.json") || exists("index.php") {
		return PHP
	}
	if exists("index.html") {
		return Static
	}
	return Unknown
}

func detectPython(dir string) Type {
	var text strings.Builder
	for _, name := range []string{"requirements.txt", "pyproject.toml", "Pipfile"} {
		if b, err := os.ReadFile(filepath.Join(dir, name)); err == nil {
			text.Write(b)
			text.WriteByte('\n')
		}
	}
	deps := strings.ToLower(text.String())
	switch {
	case strings.Contains(deps, "django"):
		return Django
	case strings.Contains(deps, "fastapi"):
		return FastAPI
	case strings.Contains(deps, "flask"):
		return Flask
	}
	return Unknown
}
