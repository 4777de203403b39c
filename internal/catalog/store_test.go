package catalog

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func testPackage(checksum, name string) *Package {
	pkg := &Package{
		Date:     "2013.06.01",
		Name:     name,
		Checksum: checksum,
		Location: "n/" + name,
		Device:   "mako",
		Message:  "test build",
		Size:     180 * 1024 * 1024,
		Count:    1,
	}
	pkg.ResetDownloadFields()
	return pkg
}

func TestStore_UpsertIgnoresExisting(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Upsert(Nightly, testPackage("aaa", "update-1.zip")))

	// Simulate the tracker having written download state.
	pkg, err := store.Find(Nightly, "aaa")
	require.NoError(t, err)
	pkg.DownloadHandle = 7
	pkg.DownloadState = StateRunning
	pkg.DownloadProgress = 42
	require.NoError(t, store.UpdateDownloadFields(pkg))

	// A second upsert with different metadata must not touch the row.
	changed := testPackage("aaa", "renamed.zip")
	require.NoError(t, store.Upsert(Nightly, changed))

	got, err := store.Find(Nightly, "aaa")
	require.NoError(t, err)
	assert.Equal(t, "update-1.zip", got.Name)
	assert.Equal(t, int64(7), got.DownloadHandle)
	assert.Equal(t, StateRunning, got.DownloadState)
	assert.Equal(t, 42, got.DownloadProgress)

	packages, err := store.List(Nightly)
	require.NoError(t, err)
	assert.Len(t, packages, 1)
}

func TestStore_RemoveAbsentIsSilent(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.Remove(Release, "does-not-exist"))
}

func TestStore_ListKeepsInsertionOrder(t *testing.T) {
	store := newTestStore(t)

	for i := 0; i < 5; i++ {
		pkg := testPackage(fmt.Sprintf("sum-%d", i), fmt.Sprintf("update-%d.zip", i))
		require.NoError(t, store.Upsert(Testing, pkg))
	}

	packages, err := store.List(Testing)
	require.NoError(t, err)
	require.Len(t, packages, 5)
	for i, pkg := range packages {
		assert.Equal(t, fmt.Sprintf("update-%d.zip", i), pkg.Name)
	}
}

func TestStore_UpdateDownloadFieldsIsFieldScoped(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Upsert(Nightly, testPackage("bbb", "update.zip")))

	pkg, err := store.Find(Nightly, "bbb")
	require.NoError(t, err)
	pkg.Name = "clobbered.zip" // must not be written
	pkg.LocalChecksum = "bbb"
	pkg.DownloadHandle = 3
	pkg.DownloadState = StateSucceeded
	pkg.DownloadProgress = 100
	require.NoError(t, store.UpdateDownloadFields(pkg))

	got, err := store.Find(Nightly, "bbb")
	require.NoError(t, err)
	assert.Equal(t, "update.zip", got.Name)
	assert.Equal(t, "bbb", got.LocalChecksum)
	assert.Equal(t, int64(3), got.DownloadHandle)
	assert.Equal(t, StateSucceeded, got.DownloadState)
	assert.Equal(t, 100, got.DownloadProgress)
}

func TestStore_UpdateDownloadFieldsMissingRow(t *testing.T) {
	store := newTestStore(t)

	pkg := testPackage("zzz", "ghost.zip")
	pkg.Category = Nightly
	assert.ErrorIs(t, store.UpdateDownloadFields(pkg), ErrNotFound)
}

func TestStore_FindByHandle(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Upsert(Nightly, testPackage("n1", "nightly.zip")))
	require.NoError(t, store.Upsert(Addon, testPackage("a1", "addon.zip")))

	pkg, err := store.Find(Addon, "a1")
	require.NoError(t, err)
	pkg.DownloadHandle = 42
	pkg.DownloadState = StateRunning
	require.NoError(t, store.UpdateDownloadFields(pkg))

	got, err := store.FindByHandle(42)
	require.NoError(t, err)
	assert.Equal(t, "a1", got.Checksum)
	assert.Equal(t, Addon, got.Category)

	_, err = store.FindByHandle(999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ListActive(t *testing.T) {
	store := newTestStore(t)

	states := map[string]DownloadState{
		"p1": StateNone,
		"p2": StatePending,
		"p3": StateRunning,
		"p4": StatePaused,
		"p5": StateSucceeded,
		"p6": StateFailed,
	}
	for checksum, state := range states {
		require.NoError(t, store.Upsert(Release, testPackage(checksum, checksum+".zip")))
		pkg, err := store.Find(Release, checksum)
		require.NoError(t, err)
		pkg.DownloadState = state
		pkg.DownloadHandle = 1
		require.NoError(t, store.UpdateDownloadFields(pkg))
	}

	active, err := store.ListActive()
	require.NoError(t, err)
	require.Len(t, active, 3)
	for _, pkg := range active {
		assert.True(t, pkg.DownloadState.Active(), "state %s", pkg.DownloadState)
	}
}
