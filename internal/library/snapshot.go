package library

import (
	"encoding/json"
	"os"

	"github.com/google/renameio/v2"
)

// snapshotEntry is the on-disk shape of one index.json row.
type snapshotEntry struct {
	Id           ItemId `json:"id"`
	AbsolutePath string `json:"absolutePath"`
}

// SaveSnapshot persists the current index atomically: a crash mid-write
// leaves the previous snapshot intact rather than a half-written file,
// mirroring ManuGH-xg2g's renameio-based playlist/XMLTV writers.
func (idx *MemoryIndex) SaveSnapshot(path string) error {
	idx.mu.RLock()
	entries := make([]snapshotEntry, 0, len(idx.items))
	for id, src := range idx.items {
		entries = append(entries, snapshotEntry{Id: id, AbsolutePath: src.AbsolutePath})
	}
	idx.mu.RUnlock()

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}

	pendingFile, err := renameio.NewPendingFile(path)
	if err != nil {
		return err
	}
	defer func() { _ = pendingFile.Cleanup() }()

	if _, err := pendingFile.Write(data); err != nil {
		return err
	}

	return pendingFile.CloseAtomicallyReplace()
}

// LoadSnapshot reads a previously saved index.json, dropping any entry
// whose source file no longer exists so a stale snapshot can never warm
// the index with a dangling path — the same self-healing discipline
// CacheStore applies to its own durable hint.
func LoadSnapshot(path string) (map[ItemId]MediaSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var entries []snapshotEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	items := make(map[ItemId]MediaSource, len(entries))
	for _, e := range entries {
		if _, err := os.Stat(e.AbsolutePath); err != nil {
			continue
		}
		items[e.Id] = MediaSource{AbsolutePath: e.AbsolutePath}
	}

	return items, nil
}
