package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/mirror-pond/internal/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func sampleSnapshot() *Snapshot {
	at := domain.NewTimestamp(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	snap := NewSnapshot()
	snap.Vows["traveler_abc"] = []domain.Vow{
		{Text: "I vow to walk the narrow path", Timestamp: at, Context: "ctx", Hash: "1a2b3c4d", Stage: 1},
	}
	snap.Reflections["traveler_abc"] = []domain.Reflection{
		{Query: "q", Response: "r", Mode: "reflect", Encryption: "1635", Timestamp: at, Hash: "deadbeef"},
	}
	snap.Metadata["traveler_abc"] = MetadataRecord{
		FirstSeen:        at,
		LastSeen:         at,
		InteractionCount: 3,
		ModesUsed:        []string{"reflect", "scroll"},
		TotalVows:        1,
	}
	return snap
}

func timestampComparer() cmp.Option {
	return cmp.Comparer(func(a, b domain.Timestamp) bool { return a.Equal(b.Time) })
}

func TestJSONFileMissingIsEmpty(t *testing.T) {
	t.Parallel()

	repo, err := NewJSONFile(filepath.Join(t.TempDir(), "none.json"))
	require.NoError(t, err)

	snap, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Vows)
	assert.NotNil(t, snap.Metadata)
}

func TestJSONFileRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "pond_memory.json")
	repo, err := NewJSONFile(path)
	require.NoError(t, err)

	want := sampleSnapshot()
	require.NoError(t, repo.Save(context.Background(), want))

	got, err := repo.Load(context.Background())
	require.NoError(t, err)
	if diff := cmp.Diff(want, got, timestampComparer()); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestJSONFileToleratesPartialSections(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "partial.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"user_vows":{"traveler_x":[{"text":"I vow to rest","vow_hash":"abcd1234","lotus_stage":1}]}}`), 0o600))

	repo, err := NewJSONFile(path)
	require.NoError(t, err)
	snap, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Vows["traveler_x"], 1)
	assert.NotNil(t, snap.Reflections)
	assert.NotNil(t, snap.Metadata)
}

func TestJSONFileCorruptReturnsError(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o600))

	repo, err := NewJSONFile(path)
	require.NoError(t, err)
	_, err = repo.Load(context.Background())
	assert.Error(t, err)
}

func TestSQLiteRoundTrip(t *testing.T) {
	t.Parallel()

	repo, err := NewSQLite(filepath.Join(t.TempDir(), "pond.db"))
	require.NoError(t, err)
	defer func() { _ = repo.Close() }()

	ctx := context.Background()
	empty, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty.Vows)

	want := sampleSnapshot()
	require.NoError(t, repo.Save(ctx, want))
	// Overwrite keeps a single row.
	require.NoError(t, repo.Save(ctx, want))

	got, err := repo.Load(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got, timestampComparer()); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}
	require.NoError(t, repo.Ping(ctx))
}

func TestNewSQLiteFailureReleasesPool(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	// A directory cannot be opened as a database file.
	_, err := NewSQLite(t.TempDir())
	require.Error(t, err)
}

func TestOpenSelectsBackend(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	repo, err := Open(ctx, BackendJSON, filepath.Join(dir, "memory.json"), "")
	require.NoError(t, err)
	assert.IsType(t, &JSONFile{}, repo)
	require.NoError(t, repo.Close())

	repo, err = Open(ctx, BackendSQLite, "", filepath.Join(dir, "memory.db"))
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, repo)
	require.NoError(t, repo.Close())

	_, err = Open(ctx, "redis", "", "")
	assert.ErrorContains(t, err, "unknown memory backend")
}
