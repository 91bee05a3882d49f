package hlscache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		CacheRoot:  t.TempDir(),
		Enabled:    true,
		MaxEntries: 2,
		MaxAge:     time.Hour,
	}.WithDefaultValues()
}

func newTestStore(t *testing.T) *CacheStore {
	t.Helper()
	store, err := NewCacheStore(testConfig(t), zerolog.Nop(), noopMetrics())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func mkWorkDir(t *testing.T, root string) string {
	t.Helper()
	dir := filepath.Join(root, "wd-"+time.Now().Format("150405.000000000"))
	require.NoError(t, os.MkdirAll(dir, 0o755))
	return dir
}

func TestCacheStore_PutGet(t *testing.T) {
	store := newTestStore(t)
	dir := mkWorkDir(t, store.config.CacheRoot)

	key := CacheKey("item/default_default")
	store.Put(key, dir)

	entry, ok := store.Get(key)
	require.True(t, ok)
	assert.Equal(t, dir, entry.WorkDir)
}

func TestCacheStore_Get_MissWhenAbsent(t *testing.T) {
	store := newTestStore(t)
	_, ok := store.Get("nope")
	assert.False(t, ok)
}

func TestCacheStore_Get_EvictsWhenWorkDirVanishes(t *testing.T) {
	store := newTestStore(t)
	dir := mkWorkDir(t, store.config.CacheRoot)
	key := CacheKey("item/default_default")
	store.Put(key, dir)

	require.NoError(t, os.RemoveAll(dir))

	_, ok := store.Get(key)
	assert.False(t, ok)
}

func TestCacheStore_Get_EvictsWhenExpired(t *testing.T) {
	store := newTestStore(t)
	store.config.MaxAge = time.Millisecond
	dir := mkWorkDir(t, store.config.CacheRoot)
	key := CacheKey("item/default_default")
	store.Put(key, dir)

	time.Sleep(5 * time.Millisecond)

	_, ok := store.Get(key)
	assert.False(t, ok)
}

func TestCacheStore_FIFOEvictionAtCapacity(t *testing.T) {
	store := newTestStore(t) // MaxEntries: 2

	dirA := mkWorkDir(t, store.config.CacheRoot)
	dirB := mkWorkDir(t, store.config.CacheRoot)
	dirC := mkWorkDir(t, store.config.CacheRoot)

	store.Put("a", dirA)
	store.Put("b", dirB)
	store.Put("c", dirC) // over capacity: "a" (FIFO head) must go

	_, ok := store.Get("a")
	assert.False(t, ok, "oldest entry should have been evicted")

	_, ok = store.Get("b")
	assert.True(t, ok)
	_, ok = store.Get("c")
	assert.True(t, ok)

	assert.Eventually(t, func() bool {
		_, err := os.Stat(dirA)
		return os.IsNotExist(err)
	}, time.Second, 10*time.Millisecond, "evicted work dir should be removed")
}

func TestCacheStore_Remove(t *testing.T) {
	store := newTestStore(t)
	dir := mkWorkDir(t, store.config.CacheRoot)
	store.Put("k", dir)

	store.Remove("k")

	_, ok := store.Get("k")
	assert.False(t, ok)
}

func TestCacheStore_SweepExpired(t *testing.T) {
	store := newTestStore(t)
	store.config.MaxAge = time.Millisecond
	dir := mkWorkDir(t, store.config.CacheRoot)
	store.Put("k", dir)

	time.Sleep(5 * time.Millisecond)
	store.SweepExpired()

	store.mu.Lock()
	_, present := store.entries["k"]
	store.mu.Unlock()
	assert.False(t, present)
}

func TestCacheStore_ReloadsSurvivingEntriesFromSnapshot(t *testing.T) {
	config := testConfig(t)

	store, err := NewCacheStore(config, zerolog.Nop(), noopMetrics())
	require.NoError(t, err)

	dir := mkWorkDir(t, config.CacheRoot)
	store.Put("k", dir)
	require.NoError(t, store.Close())

	reopened, err := NewCacheStore(config, zerolog.Nop(), noopMetrics())
	require.NoError(t, err)
	defer reopened.Close()

	entry, ok := reopened.Get("k")
	require.True(t, ok)
	assert.Equal(t, dir, entry.WorkDir)
}

func TestCacheStore_SnapshotDropsVanishedWorkDirsOnReload(t *testing.T) {
	config := testConfig(t)

	store, err := NewCacheStore(config, zerolog.Nop(), noopMetrics())
	require.NoError(t, err)

	dir := mkWorkDir(t, config.CacheRoot)
	store.Put("k", dir)
	require.NoError(t, store.Close())
	require.NoError(t, os.RemoveAll(dir))

	reopened, err := NewCacheStore(config, zerolog.Nop(), noopMetrics())
	require.NoError(t, err)
	defer reopened.Close()

	_, ok := reopened.Get("k")
	assert.False(t, ok)
}

func TestCacheStore_Disabled(t *testing.T) {
	config := testConfig(t)
	config.Enabled = false

	store, err := NewCacheStore(config, zerolog.Nop(), noopMetrics())
	require.NoError(t, err)

	store.Put("k", "/whatever")
	_, ok := store.Get("k")
	assert.False(t, ok)
}
