package history

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)
	key := SessionKey("gemini", "Lyra")

	require.NoError(t, store.Save(ctx, key, json.RawMessage(turnBasedTranscript)))
	got, err := store.Load(ctx, key)
	require.NoError(t, err)
	assert.JSONEq(t, turnBasedTranscript, string(got))

	// Save replaces the whole record.
	require.NoError(t, store.Save(ctx, key, json.RawMessage(roleContentTranscript)))
	got, err = store.Load(ctx, key)
	require.NoError(t, err)
	assert.JSONEq(t, roleContentTranscript, string(got))
}

func TestSQLiteStore_LoadMissingReturnsNil(t *testing.T) {
	got, err := newTestSQLiteStore(t).Load(context.Background(), "openai-Nobody")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteStore_ClearIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)
	key := SessionKey("openai", "Nova")

	require.NoError(t, store.Save(ctx, key, json.RawMessage(roleContentTranscript)))
	require.NoError(t, store.Clear(ctx, key))
	require.NoError(t, store.Clear(ctx, key))

	got, err := store.Load(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteStore_KeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	require.NoError(t, store.Save(ctx, "gemini-Lyra", json.RawMessage(turnBasedTranscript)))
	require.NoError(t, store.Save(ctx, "openai-Lyra", json.RawMessage(roleContentTranscript)))
	require.NoError(t, store.Clear(ctx, "gemini-Lyra"))

	got, err := store.Load(ctx, "openai-Lyra")
	require.NoError(t, err)
	assert.JSONEq(t, roleContentTranscript, string(got))
}
