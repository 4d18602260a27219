package service

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogPrefersInstalledCandidate(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix candidate paths")
	}
	root := t.TempDir()
	installed := filepath.Join(root, "mariadb", "bin", "mysqld")
	descs := DefaultCatalog(root, func(p string) bool { return p == installed })

	byID := map[string]Descriptor{}
	for _, d := range descs {
		byID[d.ID] = d
	}
	require.Len(t, byID, 4)
	assert.Equal(t, installed, byID["mariadb"].Executable)
	assert.Equal(t, filepath.Join(root, "apache", "bin", "httpd"), byID["apache"].Executable, "first candidate kept when none exists")
	assert.Equal(t, []string{"php", "mariadb"}, byID["phpmyadmin"].DependsOn)
	assert.Equal(t, []string{"-b", "127.0.0.1:9000"}, byID["php"].Args)
	assert.Contains(t, byID["phpmyadmin"].Args, filepath.Join(root, "phpmyadmin"))
}

func TestDefaultCatalogIsValidGraph(t *testing.T) {
	descs := DefaultCatalog(t.TempDir(), func(string) bool { return false })
	sup, err := New(context.Background(), descs, Options{Spawner: newFakeSpawner(), ExecutableExists: func(string) bool { return false }})
	require.NoError(t, err)
	for _, in := range sup.List() {
		assert.Equal(t, StatusNotInstalled, in.Status, in.ID)
	}
	err = sup.Start(context.Background(), "phpmyadmin")
	assert.ErrorIs(t, err, ErrExecutableMissing)
}

func TestLocateGlob(t *testing.T) {
	dir := t.TempDir()
	pattern := filepath.Join(dir, "php-*", "php-cgi")
	want := filepath.Join(dir, "php-8.3.1", "php-cgi")
	older := filepath.Join(dir, "php-8.1.0", "php-cgi")
	for _, p := range []string{want, older} {
		writeFile(t, p)
	}
	assert.Equal(t, want, locate([]string{pattern}, Exists), "newest version sorts first")
	assert.Equal(t, "/nowhere/php-cgi", locate([]string{"/nowhere/php-cgi", pattern + "x"}, Exists))
}

func TestWithPortMovesLoopbackAddresses(t *testing.T) {
	byID := map[string]Descriptor{}
	for _, d := range DefaultCatalog("", func(string) bool { return false }) {
		byID[d.ID] = d
	}

	apache := byID["apache"].WithPort(8080)
	assert.Equal(t, 8080, apache.Port)
	assert.Equal(t, "http://127.0.0.1:8080/", apache.HealthCheck.Endpoint)
	assert.Equal(t, []int{443}, apache.AdditionalPorts)

	pma := byID["phpmyadmin"].WithPort(8090)
	assert.Equal(t, "http://127.0.0.1:8090/", pma.HealthCheck.Endpoint)
	assert.Equal(t, []string{"-S", "127.0.0.1:8090"}, pma.Args[:2])
	assert.Equal(t, "127.0.0.1:8081", byID["phpmyadmin"].Args[1], "original args untouched")

	php := byID["php"].WithPort(9100)
	assert.Equal(t, []string{"-b", "127.0.0.1:9100"}, php.Args)
	assert.Equal(t, "127.0.0.1:9100", php.HealthCheck.Endpoint)
}

func TestRebindKeepsLongerPorts(t *testing.T) {
	assert.Equal(t, "127.0.0.1:8081 127.0.0.1:90", rebind("127.0.0.1:8081 127.0.0.1:80", "127.0.0.1:80", "127.0.0.1:90"))
	assert.Equal(t, "x", rebind("x", "127.0.0.1:80", "127.0.0.1:90"))
}
