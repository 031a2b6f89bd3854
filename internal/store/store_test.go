package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseKV runs the contract every backend must satisfy.
func exerciseKV(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := kv.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set(ctx, "a", []byte(`[{"id":"1"}]`)))
	v, ok, err := kv.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `[{"id":"1"}]`, string(v))

	require.NoError(t, kv.Set(ctx, "a", []byte(`[]`)))
	v, ok, err = kv.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "[]", string(v))

	require.NoError(t, kv.Delete(ctx, "a"))
	_, ok, err = kv.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Delete(ctx, "never-set"))
	assert.NoError(t, kv.Ping(ctx))
}

func TestMemory_Contract(t *testing.T) {
	exerciseKV(t, NewMemory())
}

func TestStore_ReadMissingCollectionIsEmpty(t *testing.T) {
	s := New(NewMemory(), "test")

	records, err := s.Read(context.Background(), "users")
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestStore_WriteThenReadPreservesOrder(t *testing.T) {
	mem := NewMemory()
	s := New(mem, "test")
	ctx := context.Background()

	in := []json.RawMessage{
		json.RawMessage(`{"id":"b"}`),
		json.RawMessage(`{"id":"a"}`),
		json.RawMessage(`{"id":"c"}`),
	}
	require.NoError(t, s.Write(ctx, "classes", in))

	out, err := s.Read(ctx, "classes")
	require.NoError(t, err)
	require.Len(t, out, 3)
	for i := range in {
		assert.JSONEq(t, string(in[i]), string(out[i]))
	}
	assert.Contains(t, mem.Keys(), "test_classes")
}

func TestStore_CorruptBlob(t *testing.T) {
	mem := NewMemory()
	s := New(mem, "test")
	ctx := context.Background()
	require.NoError(t, mem.Set(ctx, "test_slots", []byte("{not json")))

	_, err := s.Read(ctx, "slots")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestStore_RawValues(t *testing.T) {
	s := New(NewMemory(), "")
	ctx := context.Background()
	assert.Equal(t, DefaultNamespace, s.Namespace())
	assert.Equal(t, "nriit_db_initialized", s.Key("db_initialized"))

	require.NoError(t, s.Set(ctx, "db_initialized", []byte("true")))
	v, ok, err := s.Get(ctx, "db_initialized")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "true", string(v))

	require.NoError(t, s.Remove(ctx, "db_initialized"))
	_, ok, err = s.Get(ctx, "db_initialized")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		s, err := Open(ctx, Options{Backend: "memory", Namespace: "ns"})
		require.NoError(t, err)
		defer s.Close()
		assert.Equal(t, "memory", s.Backend())
		assert.Equal(t, "ns_users", s.Key("users"))
	})

	t.Run("badger in memory by default", func(t *testing.T) {
		s, err := Open(ctx, Options{})
		require.NoError(t, err)
		defer s.Close()
		assert.Equal(t, "badger", s.Backend())
		assert.NoError(t, s.Ping(ctx))
	})

	t.Run("sqlite", func(t *testing.T) {
		s, err := Open(ctx, Options{Backend: "sqlite", SQLitePath: ":memory:"})
		require.NoError(t, err)
		defer s.Close()
		assert.Equal(t, "sqlite", s.Backend())
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := Open(ctx, Options{Backend: "floppy"})
		assert.ErrorIs(t, err, ErrUnknownBackend)
	})
}
