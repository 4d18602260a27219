package framework

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func TestDetect(t *testing.T) {
	cases := []struct {
		name  string
		files map[string]string
		want  Type
	}{
		{"next", map[string]string{"package.json": `{"dependencies":{"next":"14","react":"18"}}`}, Next},
		{"vite react", map[string]string{"package.json": `{"devDependencies":{"vite":"5"},"dependencies":{"react":"18"}}`}, Vite},
		{"cra", map[string]string{"package.json": `{"dependencies":{"react":"18","react-scripts":"5"}}`}, React},
		{"tauri", map[string]string{"package.json": `{}`, "src-tauri/tauri.conf.json": `{}`}, Tauri},
		{"electron", map[string]string{"package.json": `{"devDependencies":{"electron":"30"}}`}, Electron},
		{"plain node", map[string]string{"package.json": `{"dependencies":{"express":"4"}}`}, Node},
		{"django", map[string]string{"manage.py": ""}, Django},
		{"laravel", map[string]string{"artisan": "", "composer.json": "{}"}, Laravel},
		{"fastapi", map[string]string{"requirements.txt": "fastapi==0.110\nuvicorn\n"}, FastAPI},
		{"flask", map[string]string{"pyproject.toml": "dependencies = [\"Flask\"]"}, Flask},
		{"php", map[string]string{"index.php": "<?php"}, PHP},
		{"static", map[string]string{"index.html": "<html>"}, Static},
		{"empty", nil, Unknown},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range c.files {
				writeFile(t, dir, name, content)
			}
			assert.Equal(t, c.want, Detect(dir))
		})
	}
}
