package store_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alcoveio/alcove/internal/logging"
	"github.com/alcoveio/alcove/internal/workbench/store"
)

func testCtx() context.Context {
	logger := logging.NewFromConfigValues("debug", "console")
	return logging.WithContext(context.Background(), logger)
}

func openTestStore(t *testing.T) (*store.Store, *sql.DB) {
	t.Helper()
	ctx := testCtx()
	dbPath := filepath.Join(t.TempDir(), "alcove.sqlite")

	db, err := store.NewConnection(ctx, dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(db) })

	return store.New(db), db
}

func TestStoreSaveAndGet(t *testing.T) {
	ctx := testCtx()
	st, _ := openTestStore(t)

	updatedAt := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)
	require.NoError(t, st.Save(ctx, store.ViewState{
		ViewType:  "deps.graph",
		Title:     "Dependency Graph",
		State:     json.RawMessage(`{"zoom":2}`),
		UpdatedAt: updatedAt,
	}))

	got, err := st.Get(ctx, "deps.graph")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "deps.graph", got.ViewType)
	assert.Equal(t, "Dependency Graph", got.Title)
	assert.JSONEq(t, `{"zoom":2}`, string(got.State))
	assert.True(t, got.UpdatedAt.Equal(updatedAt))
}

func TestStoreGetMissingReturnsNil(t *testing.T) {
	ctx := testCtx()
	st, _ := openTestStore(t)

	got, err := st.Get(ctx, "never.saved")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStoreSaveOverwrites(t *testing.T) {
	ctx := testCtx()
	st, _ := openTestStore(t)

	require.NoError(t, st.Save(ctx, store.ViewState{
		ViewType: "deps.graph",
		State:    json.RawMessage(`{"zoom":1}`),
	}))
	require.NoError(t, st.Save(ctx, store.ViewState{
		ViewType: "deps.graph",
		Title:    "Graph",
		State:    json.RawMessage(`{"zoom":3}`),
	}))

	got, err := st.Get(ctx, "deps.graph")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Graph", got.Title)
	assert.JSONEq(t, `{"zoom":3}`, string(got.State))

	states, err := st.List(ctx)
	require.NoError(t, err)
	assert.Len(t, states, 1)
}

func TestStoreSaveNilState(t *testing.T) {
	ctx := testCtx()
	st, _ := openTestStore(t)

	require.NoError(t, st.Save(ctx, store.ViewState{ViewType: "scratch.pad"}))

	got, err := st.Get(ctx, "scratch.pad")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.State)
}

func TestStoreDelete(t *testing.T) {
	ctx := testCtx()
	st, _ := openTestStore(t)

	require.NoError(t, st.Save(ctx, store.ViewState{
		ViewType: "deps.graph",
		State:    json.RawMessage(`{}`),
	}))
	require.NoError(t, st.Delete(ctx, "deps.graph"))

	got, err := st.Get(ctx, "deps.graph")
	require.NoError(t, err)
	assert.Nil(t, got)

	// Deleting again is a no-op.
	require.NoError(t, st.Delete(ctx, "deps.graph"))
}

func TestStoreList(t *testing.T) {
	ctx := testCtx()
	st, _ := openTestStore(t)

	for _, viewType := range []string{"zeta.view", "alpha.view", "mid.view"} {
		require.NoError(t, st.Save(ctx, store.ViewState{
			ViewType: viewType,
			State:    json.RawMessage(`{}`),
		}))
	}

	states, err := st.List(ctx)
	require.NoError(t, err)
	require.Len(t, states, 3)
	assert.Equal(t, "alpha.view", states[0].ViewType)
	assert.Equal(t, "mid.view", states[1].ViewType)
	assert.Equal(t, "zeta.view", states[2].ViewType)
}

func TestStorePurgeOlderThan(t *testing.T) {
	ctx := testCtx()
	st, _ := openTestStore(t)

	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	fresh := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, st.Save(ctx, store.ViewState{
		ViewType: "stale.view", State: json.RawMessage(`{}`), UpdatedAt: old,
	}))
	require.NoError(t, st.Save(ctx, store.ViewState{
		ViewType: "live.view", State: json.RawMessage(`{}`), UpdatedAt: fresh,
	}))

	deleted, err := st.PurgeOlderThan(ctx, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	states, err := st.List(ctx)
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, "live.view", states[0].ViewType)
}

func TestMigrationStatus(t *testing.T) {
	_, db := openTestStore(t)

	version, err := store.GetMigrationStatus(db)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, version, int64(1))
}
