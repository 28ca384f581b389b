package snapshotstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/memoryd/internal/memory"
)

func testSnapshot() *memory.Snapshot {
	return &memory.Snapshot{
		Version: 1,
		Rollups: []*memory.Rollup{
			{ID: "r1", Summary: "Bob's birthday is July 15.", SourceLogIDs: []string{"l1", "l2"}},
		},
		Articles: []*memory.Article{
			{ID: "a1", Title: "Bob's birthday", Body: "Bob was born on July 15.", RollupIDs: []string{"r1"}},
		},
	}
}

func TestStore_SaveAndLoad(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir(), nil)
	require.NoError(t, err)

	require.NoError(t, store.Save(testSnapshot()))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Version)
	require.Len(t, loaded.Rollups, 1)
	assert.Equal(t, "r1", loaded.Rollups[0].ID)
	assert.Equal(t, []string{"l1", "l2"}, loaded.Rollups[0].SourceLogIDs)
	require.Len(t, loaded.Articles, 1)
	assert.Equal(t, "Bob's birthday", loaded.Articles[0].Title)
}

func TestStore_LoadWithoutSnapshot(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir(), nil)
	require.NoError(t, err)

	_, err = store.Load()
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_SaveOverwrites(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir(), nil)
	require.NoError(t, err)

	require.NoError(t, store.Save(testSnapshot()))

	second := testSnapshot()
	second.Articles[0].Body = "Bob's birthday is August 2."
	require.NoError(t, store.Save(second))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "Bob's birthday is August 2.", loaded.Articles[0].Body)
}

func TestStore_NoTempFilesLeftBehind(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewStore(dir, nil)
	require.NoError(t, err)

	require.NoError(t, store.Save(testSnapshot()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "snapshot.json", entries[0].Name())
}

func TestStore_SaveNil(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir(), nil)
	require.NoError(t, err)
	assert.ErrorIs(t, store.Save(nil), ErrSnapshotIO)
}

func TestStore_LoadCorruptFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewStore(dir, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "snapshot.json"), []byte("{not json"), 0600))

	_, err = store.Load()
	assert.ErrorIs(t, err, ErrSnapshotIO)
}

func TestNewStore_CreatesDirectory(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "snapshots")
	store, err := NewStore(dir, nil)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, store.Path(), filepath.Join(dir, "snapshot.json"))
}

func TestNewStore_EmptyDir(t *testing.T) {
	t.Parallel()

	_, err := NewStore("", nil)
	assert.Error(t, err)
}
