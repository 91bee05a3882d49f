package library

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, data string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
}

func TestMemoryIndex_ScanFindsAudioFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Artist", "Album", "01.flac"), "x")
	writeFile(t, filepath.Join(root, "Artist", "Album", "cover.jpg"), "x")

	idx := NewMemoryIndex(root, zerolog.Nop())
	require.NoError(t, idx.Scan())

	assert.Equal(t, 1, idx.Count())

	src, ok := idx.Lookup("/Artist/Album/01.flac")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(root, "Artist", "Album", "01.flac"), src.AbsolutePath)

	_, ok = idx.Lookup("/Artist/Album/cover.jpg")
	assert.False(t, ok)
}

func TestMemoryIndex_LookupMiss(t *testing.T) {
	idx := NewMemoryIndex(t.TempDir(), zerolog.Nop())
	_, ok := idx.Lookup("/nothing")
	assert.False(t, ok)
}

func TestMemoryIndex_WatchIndexesNewFile(t *testing.T) {
	root := t.TempDir()
	idx := NewMemoryIndex(root, zerolog.Nop())
	require.NoError(t, idx.Scan())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, idx.Watch(ctx))
	defer idx.Close()

	writeFile(t, filepath.Join(root, "new.mp3"), "x")

	assert.Eventually(t, func() bool {
		_, ok := idx.Lookup("/new.mp3")
		return ok
	}, time.Second, 10*time.Millisecond)
}

func TestMemoryIndex_WatchRemovesDeletedFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "track.mp3")
	writeFile(t, path, "x")

	idx := NewMemoryIndex(root, zerolog.Nop())
	require.NoError(t, idx.Scan())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, idx.Watch(ctx))
	defer idx.Close()

	require.NoError(t, os.Remove(path))

	assert.Eventually(t, func() bool {
		_, ok := idx.Lookup("/track.mp3")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestSnapshot_RoundTrip(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.flac"), "x")

	idx := NewMemoryIndex(root, zerolog.Nop())
	require.NoError(t, idx.Scan())

	snapshotPath := filepath.Join(t.TempDir(), "index.json")
	require.NoError(t, idx.SaveSnapshot(snapshotPath))

	loaded, err := LoadSnapshot(snapshotPath)
	require.NoError(t, err)
	require.Contains(t, loaded, ItemId("/a.flac"))
}

func TestSnapshot_DropsVanishedEntries(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.flac")
	writeFile(t, path, "x")

	idx := NewMemoryIndex(root, zerolog.Nop())
	require.NoError(t, idx.Scan())

	snapshotPath := filepath.Join(t.TempDir(), "index.json")
	require.NoError(t, idx.SaveSnapshot(snapshotPath))
	require.NoError(t, os.Remove(path))

	loaded, err := LoadSnapshot(snapshotPath)
	require.NoError(t, err)
	assert.NotContains(t, loaded, ItemId("/a.flac"))
}
