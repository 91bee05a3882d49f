package library

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// MemoryIndex is an in-memory, filesystem-backed Index: a one-time walk of
// root populates it, and an fsnotify watcher keeps it current afterward.
// Grounded on ManuGH-xg2g's library.Scanner (WalkDir + symlink-confinement
// check) and its proxy.WaitForFile watcher idiom.
type MemoryIndex struct {
	logger zerolog.Logger
	root   string

	mu    sync.RWMutex
	items map[ItemId]MediaSource

	watcher *fsnotify.Watcher
	stop    chan struct{}
	done    chan struct{}
}

func NewMemoryIndex(root string, logger zerolog.Logger) *MemoryIndex {
	return &MemoryIndex{
		logger: logger.With().Str("component", "library").Logger(),
		root:   root,
		items:  map[ItemId]MediaSource{},
	}
}

func (idx *MemoryIndex) Lookup(item ItemId) (MediaSource, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	src, ok := idx.items[item]
	return src, ok
}

// Count reports the number of indexed items (for /healthz and tests).
func (idx *MemoryIndex) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.items)
}

// Seed replaces the index contents wholesale, used to warm-start from a
// snapshot before the first full Scan completes.
func (idx *MemoryIndex) Seed(items map[ItemId]MediaSource) {
	idx.mu.Lock()
	idx.items = items
	idx.mu.Unlock()
}

// Scan walks root and rebuilds the index from scratch. Symlinks are
// resolved and confinement-checked so a link that escapes root is skipped
// rather than followed.
func (idx *MemoryIndex) Scan() error {
	rootResolved, err := filepath.EvalSymlinks(idx.root)
	if err != nil {
		return err
	}
	rootResolved = filepath.Clean(rootResolved)

	fresh := map[ItemId]MediaSource{}

	err = filepath.WalkDir(idx.root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			idx.logger.Warn().Err(walkErr).Str("path", path).Msg("library scan: walk error")
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !audioExtensions[strings.ToLower(filepath.Ext(d.Name()))] {
			return nil
		}

		resolved, err := filepath.EvalSymlinks(path)
		if err != nil {
			idx.logger.Debug().Err(err).Str("path", path).Msg("library scan: unresolvable symlink, skipping")
			return nil
		}
		rel, err := filepath.Rel(rootResolved, resolved)
		if err != nil || strings.HasPrefix(rel, "..") {
			idx.logger.Warn().Str("path", path).Msg("library scan: path escapes root, skipping")
			return nil
		}

		id := itemIdFor(rel)
		fresh[id] = MediaSource{AbsolutePath: resolved}
		return nil
	})
	if err != nil {
		return err
	}

	idx.mu.Lock()
	idx.items = fresh
	idx.mu.Unlock()

	idx.logger.Info().Int("items", len(fresh)).Msg("library scan complete")
	return nil
}

// Watch starts an fsnotify watcher over root and every subdirectory,
// applying incremental updates as files come and go. It returns once the
// watcher is installed; updates happen in a background goroutine until
// Close is called.
func (idx *MemoryIndex) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	err = filepath.WalkDir(idx.root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if d.IsDir() {
			if err := watcher.Add(path); err != nil {
				idx.logger.Warn().Err(err).Str("path", path).Msg("library watch: add directory failed")
			}
		}
		return nil
	})
	if err != nil {
		_ = watcher.Close()
		return err
	}

	idx.watcher = watcher
	idx.stop = make(chan struct{})
	idx.done = make(chan struct{})

	go idx.watchLoop(ctx)

	return nil
}

func (idx *MemoryIndex) watchLoop(ctx context.Context) {
	defer close(idx.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-idx.stop:
			return
		case event, ok := <-idx.watcher.Events:
			if !ok {
				return
			}
			idx.handleEvent(event)
		case err, ok := <-idx.watcher.Errors:
			if !ok {
				return
			}
			idx.logger.Warn().Err(err).Msg("library watch: watcher error")
		}
	}
}

func (idx *MemoryIndex) handleEvent(event fsnotify.Event) {
	switch {
	case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
		info, err := os.Stat(event.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			if err := idx.watcher.Add(event.Name); err != nil {
				idx.logger.Warn().Err(err).Str("path", event.Name).Msg("library watch: add new directory failed")
			}
			return
		}
		if !audioExtensions[strings.ToLower(filepath.Ext(event.Name))] {
			return
		}
		idx.indexFile(event.Name)
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		idx.removeFile(event.Name)
	}
}

func (idx *MemoryIndex) indexFile(path string) {
	rel, err := filepath.Rel(idx.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}
	id := itemIdFor(rel)

	idx.mu.Lock()
	idx.items[id] = MediaSource{AbsolutePath: path}
	idx.mu.Unlock()
}

func (idx *MemoryIndex) removeFile(path string) {
	rel, err := filepath.Rel(idx.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}
	id := itemIdFor(rel)

	idx.mu.Lock()
	delete(idx.items, id)
	idx.mu.Unlock()
}

func itemIdFor(rel string) ItemId {
	return "/" + filepath.ToSlash(rel)
}

// Close stops the watcher goroutine and blocks until it has exited.
func (idx *MemoryIndex) Close() error {
	if idx.watcher == nil {
		return nil
	}
	close(idx.stop)
	<-idx.done
	return idx.watcher.Close()
}
