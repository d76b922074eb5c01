package backup

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tardiness/internal/arrival"
	"tardiness/internal/kvstore"
	"tardiness/internal/schedule"
	"tardiness/internal/student"
)

func seedStore(t *testing.T) kvstore.Store {
	t.Helper()
	ctx := context.Background()
	store := kvstore.NewMemory()

	reg, err := schedule.NewRegistry(ctx, store)
	require.NoError(t, err)
	cls, err := reg.Add(ctx, "CM2", nil)
	require.NoError(t, err)
	dir, err := student.NewDirectory(ctx, store)
	require.NoError(t, err)
	st, err := dir.Add(ctx, "Amal", cls.ID, "")
	require.NoError(t, err)
	led, err := arrival.NewLedger(ctx, store, reg)
	require.NoError(t, err)
	res, err := led.Mark(ctx, st.ID, cls.ID, "2024-01-15", "12:45")
	require.NoError(t, err)
	require.True(t, res.Created)

	return store
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t)
	mgr := NewManager(store)

	bundle, err := mgr.Export(ctx)
	require.NoError(t, err)

	// Importing into a fresh store reproduces the identical snapshot.
	target := kvstore.NewMemory()
	res, err := NewManager(target).Import(ctx, bundle)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, res.Error)

	original, err := store.ExportAll(ctx)
	require.NoError(t, err)
	imported, err := target.ExportAll(ctx)
	require.NoError(t, err)
	require.Len(t, imported, len(original))
	for key, want := range original {
		assert.JSONEq(t, string(want), string(imported[key]), "key %s", key)
	}
}

func TestImportMalformedJSON(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t)
	mgr := NewManager(store)

	before, err := store.ExportAll(ctx)
	require.NoError(t, err)

	res, err := mgr.Import(ctx, []byte("{not json"))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)

	// The store is left unmodified.
	after, err := store.ExportAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestImportRejectsWrongShape(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t)
	mgr := NewManager(store)

	before, err := store.ExportAll(ctx)
	require.NoError(t, err)

	// "students" mapped to a string is valid JSON but structurally wrong;
	// the whole bundle is rejected, including the valid keys.
	bundle := map[string]json.RawMessage{
		"classes":  json.RawMessage(`[]`),
		"students": json.RawMessage(`"oops"`),
		"arrivals": json.RawMessage(`[]`),
	}
	payload, err := json.Marshal(bundle)
	require.NoError(t, err)

	res, err := mgr.Import(ctx, payload)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "students")

	after, err := store.ExportAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestImportOverwritesExistingKeys(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t)
	mgr := NewManager(store)

	payload := []byte(`{"classes":[],"students":[],"arrivals":[]}`)
	res, err := mgr.Import(ctx, payload)
	require.NoError(t, err)
	require.True(t, res.Success)

	raw, err := store.Get(ctx, kvstore.KeyStudents)
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(raw))
}
