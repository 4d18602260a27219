package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, p string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\n"), 0o755))
}

func TestTopoOrder(t *testing.T) {
	byID, err := validate([]Descriptor{svc("phpmyadmin", "php", "mariadb"), svc("php"), svc("mariadb"), svc("apache", "php")})
	require.NoError(t, err)
	order, err := topoOrder(byID)
	require.NoError(t, err)

	pos := map[string]int{}
	for i, id := range order {
		pos[id] = i
	}
	assert.Less(t, pos["php"], pos["phpmyadmin"])
	assert.Less(t, pos["mariadb"], pos["phpmyadmin"])
	assert.Less(t, pos["php"], pos["apache"])
	assert.Len(t, order, 4)
}

func TestCycleMessageNamesPath(t *testing.T) {
	_, err := validate([]Descriptor{svc("a", "b"), svc("b", "a")})
	require.ErrorIs(t, err, ErrDependencyCycle)
	assert.Contains(t, err.Error(), "a -> b -> a")
}
