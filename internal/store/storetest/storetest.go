// Package storetest holds the behavior every store.Store must share.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/devstack/internal/store"
)

// Run checks the get/set/delete contract against s.
func Run(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.EnsureSchema(ctx))
	require.NoError(t, s.EnsureSchema(ctx), "schema creation must be repeatable")

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.Set(ctx, "session", []byte(`{"a":1}`)))
	got, err := s.Get(ctx, "session")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(got))

	require.NoError(t, s.Set(ctx, "session", []byte(`{"a":2}`)))
	got, err = s.Get(ctx, "session")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":2}`, string(got))

	require.NoError(t, s.Delete(ctx, "session"))
	require.NoError(t, s.Delete(ctx, "session"), "deleting a missing key is fine")
	_, err = s.Get(ctx, "session")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
