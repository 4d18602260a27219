package framework

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildInjectsPort(t *testing.T) {
	cases := []struct {
		name string
		t    Type
		in   string
		port int
		want string
	}{
		{"vite npm script", Vite, "npm run dev", 5173, "npm run dev -- --port 5173"},
		{"vite direct", Vite, "vite", 5173, "vite --port 5173"},
		{"vite pnpm", Vue, "pnpm dev", 5173, "pnpm dev --port 5173"},
		{"vite existing separator", Svelte, "npm run dev -- --host", 5173, "npm run dev -- --host --port 5173"},
		{"next", Next, "npm run dev", 3000, "npm run dev -- -p 3000"},
		{"next already has port", Next, "next dev --port 4000", 3000, "next dev --port 4000"},
		{"angular ng serve", Angular, "ng serve", 4200, "ng serve --port 4200"},
		{"cra", React, "react-scripts start", 3000, "react-scripts start"},
		{"node plain", Node, "node server.js", 8080, "node server.js"},
		{"node script", Node, "npm run dev", 8080, "npm run dev -- --port 8080"},
		{"django", Django, "python manage.py runserver", 8000, "python manage.py runserver 0.0.0.0:8000"},
		{"django addr present", Django, "python manage.py runserver 127.0.0.1:9000", 8000, "python manage.py runserver 127.0.0.1:9000"},
		{"django bare port", Django, "python manage.py runserver 9000", 8000, "python manage.py runserver 9000"},
		{"django flag after", Django, "python manage.py runserver --noreload", 8000, "python manage.py runserver 0.0.0.0:8000 --noreload"},
		{"flask", Flask, "flask run", 5000, "flask run --port 5000"},
		{"fastapi", FastAPI, "uvicorn main:app --reload", 8000, "uvicorn main:app --reload --port 8000"},
		{"artisan", Laravel, "php artisan serve", 8000, "php artisan serve --port=8000"},
		{"php builtin host only", PHP, "php -S localhost", 8000, "php -S localhost:8000"},
		{"php builtin addr", PHP, "php -S 127.0.0.1:9000 -t public", 8000, "php -S 127.0.0.1:9000 -t public"},
		{"unknown", Unknown, "make serve", 8000, "make serve"},
		{"static", Static, "npx serve .", 8000, "npx serve ."},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Build(c.t, c.in, c.port)
			assert.Equal(t, c.want, got.Command)
		})
	}
}

func TestBuildIdempotent(t *testing.T) {
	for _, typ := range Types() {
		cmd := DefaultCommand(typ)
		first := Build(typ, cmd, 4321)
		second := Build(typ, first.Command, 4321)
		assert.Equal(t, first.Command, second.Command, "type %s", typ)
		assert.Equal(t, first.Env, second.Env, "type %s", typ)
	}
}

func TestBuildTauriUntouched(t *testing.T) {
	inv := Build(Tauri, "npm run tauri dev", 1420)
	assert.Equal(t, "npm run tauri dev", inv.Command)
	assert.NotContains(t, inv.Env, "PORT")

	inv = Build(Electron, "npm start", 3000)
	assert.Equal(t, "npm start", inv.Command)
	assert.Empty(t, inv.Env)
}

func TestBuildFlaskEnv(t *testing.T) {
	inv := Build(Flask, "flask run", 5000)
	assert.Equal(t, "flask run --port 5000", inv.Command)
	require.Contains(t, inv.Env, "FLASK_RUN_PORT")
	assert.Equal(t, "5000", inv.Env["FLASK_RUN_PORT"])
	assert.Equal(t, "5000", inv.Env["PORT"])
}

func TestBuildNoPort(t *testing.T) {
	inv := Build(Vite, "npm run dev", 0)
	assert.Equal(t, "npm run dev", inv.Command)
	assert.Empty(t, inv.Env)
}

func TestParseType(t *testing.T) {
	assert.Equal(t, Next, ParseType("Next.js"))
	assert.Equal(t, Django, ParseType(" django "))
	assert.Equal(t, Unknown, ParseType("cobol"))
	assert.True(t, Tauri.Desktop())
	assert.False(t, Vite.Desktop())
}
