// Package framework knows how developer projects are launched: which family
// a project belongs to, how its dev server takes a port and what command
// starts it by default.
package framework

import "strings"

// Type is the framework or runtime family of a project.
type Type string

const (
	Node     Type = "node"
	Vite     Type = "vite"
	React    Type = "react"
	Vue      Type = "vue"
	Svelte   Type = "svelte"
	Angular  Type = "angular"
	Next     Type = "next"
	Nuxt     Type = "nuxt"
	Astro    Type = "astro"
	Remix    Type = "remix"
	Django   Type = "django"
	Flask    Type = "flask"
	FastAPI  Type = "fastapi"
	PHP      Type = "php"
	Laravel  Type = "laravel"
	Static   Type = "static"
	Tauri    Type = "tauri"
	Electron Type = "electron"
	Unknown  Type = "unknown"
)

var allTypes = []Type{
	Node, Vite, React, Vue, Svelte, Angular, Next, Nuxt, Astro, Remix,
	Django, Flask, FastAPI, PHP, Laravel, Static, Tauri, Electron, Unknown,
}

// Types lists every known type.
func Types() []Type { return append([]Type(nil), allTypes...) }

// ParseType maps a user supplied name onto a Type. Unrecognized names yield
// Unknown.
func ParseType(s string) Type {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "nextjs", "next.js":
		return Next
	case "nuxtjs", "nuxt.js":
		return Nuxt
	case "sveltekit":
		return Svelte
	case "nodejs", "node.js":
		return Node
	case "python-fastapi":
		return FastAPI
	}
	for _, t := range allTypes {
		if string(t) == s {
			return t
		}
	}
	return Unknown
}

// Desktop reports whether the type wraps its dev server in a native shell.
// Those projects own their port configuration.
func (t Type) Desktop() bool { return t == Tauri || t == Electron }

// Python reports whether the type runs on a Python toolchain.
func (t Type) Python() bool { return t == Django || t == Flask || t == FastAPI }

// DefaultCommand returns the usual start command for t, or "" when there is
// none.
func DefaultCommand(t Type) string {
	switch t {
	case Vite, Vue, Svelte, Astro, Remix, Nuxt, Next, Node:
		return "npm run dev"
	case React, Angular, Electron:
		return "npm start"
	case Tauri:
		return "npm run tauri dev"
	case Django:
		return "python manage.py runserver"
	case Flask:
		return "flask run"
	case FastAPI:
		return "uvicorn main:app --reload"
	case Laravel:
		return "php artisan serve"
	case PHP:
		return "php -S localhost"
	case Static:
		return "npx serve ."
	}
	return ""
}
