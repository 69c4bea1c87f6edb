package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/landform-io/landform/internal/ir"
)

func setupSQLiteStore(t *testing.T) (*SQLiteStore, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Init(context.Background()))
	t.Cleanup(func() { store.Close() })
	return store, path
}

func TestSQLiteStore_LoadEmpty(t *testing.T) {
	store, _ := setupSQLiteStore(t)

	records, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSQLiteStore_CommitAndLoad(t *testing.T) {
	store, path := setupSQLiteStore(t)
	ctx := context.Background()

	rec := &ir.Record{
		Kind:       "aws:S3.Bucket",
		Name:       "artifacts",
		ProviderID: "arn:aws:s3:::ml-artifacts",
		Attrs: map[string]any{
			"bucketName": "ml-artifacts",
			"versioning": true,
		},
		Outputs: map[string]any{
			"arn": "arn:aws:s3:::ml-artifacts",
		},
		Dependencies: []string{"aws:KMS.Key/state"},
		Hash:         ir.HashAttrs(map[string]any{"bucketName": "ml-artifacts", "versioning": true}),
		Status:       ir.StatusApplied,
		AppliedAt:    time.Now().UTC(),
	}
	require.NoError(t, store.CommitOne(ctx, rec))
	require.NoError(t, store.Close())

	// Reopen to prove the commit was durable.
	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, reopened.Init(ctx))
	defer reopened.Close()

	records, err := reopened.Load(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)

	got := records[ir.Key{Kind: "aws:S3.Bucket", Name: "artifacts"}]
	require.NotNil(t, got)
	assert.Equal(t, rec.ProviderID, got.ProviderID)
	assert.Equal(t, "ml-artifacts", got.Attrs["bucketName"])
	assert.Equal(t, true, got.Attrs["versioning"])
	assert.Equal(t, rec.Outputs, got.Outputs)
	assert.Equal(t, rec.Dependencies, got.Dependencies)
	assert.Equal(t, rec.Hash, got.Hash)
	assert.Equal(t, ir.StatusApplied, got.Status)
	assert.WithinDuration(t, rec.AppliedAt, got.AppliedAt, time.Second)
}

func TestSQLiteStore_CommitOverwrites(t *testing.T) {
	store, _ := setupSQLiteStore(t)
	ctx := context.Background()

	rec := &ir.Record{
		Kind:      "null:Resource",
		Name:      "a",
		Status:    ir.StatusPending,
		AppliedAt: time.Now().UTC(),
	}
	require.NoError(t, store.CommitOne(ctx, rec))

	rec.Status = ir.StatusApplied
	rec.ProviderID = "null-a"
	rec.Outputs = map[string]any{"id": "null-a"}
	require.NoError(t, store.CommitOne(ctx, rec))

	records, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	got := records[ir.Key{Kind: "null:Resource", Name: "a"}]
	assert.Equal(t, ir.StatusApplied, got.Status)
	assert.Equal(t, "null-a", got.ProviderID)
}

func TestSQLiteStore_RemoveOne(t *testing.T) {
	store, _ := setupSQLiteStore(t)
	ctx := context.Background()

	rec := &ir.Record{Kind: "null:Resource", Name: "a", Status: ir.StatusApplied, AppliedAt: time.Now().UTC()}
	require.NoError(t, store.CommitOne(ctx, rec))

	require.NoError(t, store.RemoveOne(ctx, rec.Key()))

	records, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)

	// Removing an absent key is not an error.
	require.NoError(t, store.RemoveOne(ctx, ir.Key{Kind: "null:Resource", Name: "nope"}))
}

func TestSQLiteStore_RunLog(t *testing.T) {
	store, _ := setupSQLiteStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Minute)
	for i, id := range []string{"run-1", "run-2", "run-3"} {
		run := &Run{
			ID:         id,
			Op:         "apply",
			Status:     "completed",
			Applied:    i,
			StartedAt:  base.Add(time.Duration(i) * time.Second),
			FinishedAt: base.Add(time.Duration(i)*time.Second + 500*time.Millisecond),
		}
		require.NoError(t, store.SaveRun(ctx, run))
	}

	runs, err := store.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-3", runs[0].ID)
	assert.Equal(t, "run-2", runs[1].ID)
	assert.Equal(t, 2, runs[0].Applied)
}

func TestSQLiteStore_Lock(t *testing.T) {
	store, _ := setupSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, store.Lock(ctx))

	err := store.Lock(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked by another process")

	require.NoError(t, store.Unlock(ctx))
	require.NoError(t, store.Lock(ctx))
	require.NoError(t, store.Unlock(ctx))
}
