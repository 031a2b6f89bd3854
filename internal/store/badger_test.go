package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBadger_Contract(t *testing.T) {
	b, err := NewBadger(":memory:")
	require.NoError(t, err)
	defer b.Close()

	exerciseKV(t, b)
}

func TestBadger_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	b, err := NewBadger(dir)
	require.NoError(t, err)
	require.NoError(t, b.Set(ctx, "nriit_users", []byte(`[{"id":"1"}]`)))
	require.NoError(t, b.Close())
	assert.Error(t, b.Ping(ctx))

	b, err = NewBadger(dir)
	require.NoError(t, err)
	defer b.Close()
	v, ok, err := b.Get(ctx, "nriit_users")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `[{"id":"1"}]`, string(v))
}
