package hlscache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
)

// CacheStore maps CacheKey to CacheEntry, persists segments on disk, and
// enforces the size cap and per-entry TTL of spec.md §4.1.
//
// FIFO (insertion order), not LRU: a completed transcode is as useful later
// as now, and first-used-wins protects popular playlists from a burst of
// novel items. lastAccessedAt is recorded but never drives eviction.
//
// The registry's badger snapshot (grounded on ManuGH-xg2g's internal/cache)
// is a hint, not a source of truth: every entry loaded from it is still
// re-validated by isComplete/os.Stat before being trusted, so a crash that
// leaves the snapshot stale can never surface a torn cache entry.
type CacheStore struct {
	logger zerolog.Logger
	config Config

	mu      sync.Mutex
	order   []CacheKey
	entries map[CacheKey]*CacheEntry
	seq     int64

	db      *badger.DB
	metrics *metrics
}

type storeSnapshot struct {
	WorkDir   string    `json:"workDir"`
	CreatedAt time.Time `json:"createdAt"`
	Seq       int64     `json:"seq"`
}

// NewCacheStore opens (or reuses) the durable metadata snapshot under
// cacheRoot/.metadata and loads whatever entries survive validation.
func NewCacheStore(config Config, logger zerolog.Logger, m *metrics) (*CacheStore, error) {
	s := &CacheStore{
		logger:  logger.With().Str("submodule", "cachestore").Logger(),
		config:  config,
		entries: map[CacheKey]*CacheEntry{},
		metrics: m,
	}

	if !config.Enabled {
		return s, nil
	}

	if err := os.MkdirAll(config.CacheRoot, 0o755); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(filepath.Join(config.CacheRoot, ".metadata")).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	s.db = db

	s.loadSnapshot()
	return s, nil
}

// loadSnapshot rehydrates order+entries from badger, re-validating each
// entry against the filesystem. Anything that no longer checks out is
// dropped rather than carried forward, per the self-healing rationale of
// spec.md §4.1.
func (s *CacheStore) loadSnapshot() {
	type loaded struct {
		key CacheKey
		snap storeSnapshot
	}
	var all []loaded

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := CacheKey(item.KeyCopy(nil))

			var snap storeSnapshot
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &snap)
			})
			if err != nil {
				continue
			}
			all = append(all, loaded{key: key, snap: snap})
		}
		return nil
	})
	if err != nil {
		s.logger.Err(err).Msg("unable to read cache metadata snapshot")
		return
	}

	sort.Slice(all, func(i, j int) bool { return all[i].snap.Seq < all[j].snap.Seq })

	for _, l := range all {
		if _, err := os.Stat(l.snap.WorkDir); err != nil {
			continue
		}
		s.entries[l.key] = &CacheEntry{
			Key:       l.key,
			WorkDir:   l.snap.WorkDir,
			CreatedAt: l.snap.CreatedAt,
		}
		s.order = append(s.order, l.key)
		if l.snap.Seq >= s.seq {
			s.seq = l.snap.Seq + 1
		}
	}

	s.logger.Info().Int("entries", len(s.order)).Msg("loaded cache metadata snapshot")
}

func (s *CacheStore) persist(key CacheKey, entry *CacheEntry, seq int64) {
	if s.db == nil {
		return
	}

	data, err := json.Marshal(storeSnapshot{WorkDir: entry.WorkDir, CreatedAt: entry.CreatedAt, Seq: seq})
	if err != nil {
		return
	}

	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	}); err != nil {
		s.logger.Err(err).Str("key", string(key)).Msg("unable to persist cache metadata")
	}
}

func (s *CacheStore) forget(key CacheKey) {
	if s.db == nil {
		return
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	}); err != nil {
		s.logger.Err(err).Str("key", string(key)).Msg("unable to forget cache metadata")
	}
}

// Get returns the entry for key if its WorkDir still exists and the entry
// hasn't expired; otherwise the entry (if any) is evicted and Get reports
// absent. The completeness check sets entry.Complete: an entry that fails
// it is returned as Pending (Complete == false) and is not evicted.
func (s *CacheStore) Get(key CacheKey) (*CacheEntry, bool) {
	if !s.config.Enabled {
		return nil, false
	}

	s.mu.Lock()
	entry, ok := s.entries[key]
	s.mu.Unlock()

	if !ok {
		s.metrics.cacheMissesTotal.Inc()
		return nil, false
	}

	if _, err := os.Stat(entry.WorkDir); err != nil {
		s.evict(key, "workdir vanished")
		s.metrics.cacheMissesTotal.Inc()
		return nil, false
	}

	if time.Since(entry.CreatedAt) > s.config.MaxAge {
		s.evict(key, "ttl expired")
		s.metrics.cacheMissesTotal.Inc()
		return nil, false
	}

	complete := isComplete(entry.WorkDir)

	s.mu.Lock()
	entry.LastAccessedAt = time.Now()
	entry.Complete = complete
	s.mu.Unlock()

	if !complete {
		// Pending entries are still a legitimate hit: the caller (Streamer)
		// distinguishes Pending from Complete and decides whether to await
		// the in-flight job or treat this as absent.
		s.metrics.cacheHitsTotal.Inc()
		return entry, true
	}

	s.metrics.cacheHitsTotal.Inc()
	return entry, true
}

// Put records (or replaces) the entry for key. If the key was already
// present and points at a different WorkDir, the old WorkDir is scheduled
// for deletion. If the registry now exceeds maxEntries, the FIFO head is
// evicted.
func (s *CacheStore) Put(key CacheKey, workDir string) *CacheEntry {
	s.mu.Lock()

	if old, ok := s.entries[key]; ok {
		s.removeFromOrderLocked(key)
		if old.WorkDir != workDir {
			s.scheduleDelete(old.WorkDir)
			s.metrics.cacheEvictionsTotal.Inc()
		}
	}

	entry := &CacheEntry{
		Key:       key,
		WorkDir:   workDir,
		CreatedAt: time.Now(),
	}
	s.entries[key] = entry
	s.order = append(s.order, key)

	seq := s.seq
	s.seq++

	var victimKey CacheKey
	var victim *CacheEntry
	if s.config.MaxEntries > 0 && len(s.order) > s.config.MaxEntries {
		victimKey = s.order[0]
		s.order = s.order[1:]
		victim = s.entries[victimKey]
		delete(s.entries, victimKey)
	}

	s.mu.Unlock()

	s.persist(key, entry, seq)

	if victim != nil {
		s.scheduleDelete(victim.WorkDir)
		s.forget(victimKey)
		s.metrics.cacheEvictionsTotal.Inc()
		s.logger.Debug().Str("key", string(victimKey)).Msg("evicted FIFO head over capacity")
	}

	return entry
}

// Remove explicitly evicts key.
func (s *CacheStore) Remove(key CacheKey) {
	s.evict(key, "explicit removal")
}

func (s *CacheStore) evict(key CacheKey, reason string) {
	s.mu.Lock()
	entry, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.entries, key)
	s.removeFromOrderLocked(key)
	s.mu.Unlock()

	s.scheduleDelete(entry.WorkDir)
	s.forget(key)
	s.metrics.cacheEvictionsTotal.Inc()
	s.logger.Debug().Str("key", string(key)).Str("reason", reason).Msg("evicted cache entry")
}

func (s *CacheStore) removeFromOrderLocked(key CacheKey) {
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

// SweepExpired evicts entries whose TTL has elapsed or whose WorkDir has
// vanished out-of-band.
func (s *CacheStore) SweepExpired() {
	s.mu.Lock()
	var expired []CacheKey
	now := time.Now()
	for key, entry := range s.entries {
		if now.Sub(entry.CreatedAt) > s.config.MaxAge {
			expired = append(expired, key)
			continue
		}
		if _, err := os.Stat(entry.WorkDir); err != nil {
			expired = append(expired, key)
		}
	}
	s.mu.Unlock()

	for _, key := range expired {
		s.evict(key, "ttl sweep")
	}
}

// scheduleDelete removes a WorkDir best-effort and asynchronously: failures
// are logged and never block progress, per spec.md §4.1.
func (s *CacheStore) scheduleDelete(workDir string) {
	if workDir == "" {
		return
	}
	go func() {
		if err := os.RemoveAll(workDir); err != nil {
			s.logger.Err(err).Str("dir", workDir).Msg("failed to remove cache work directory")
		}
	}()
}

// Close releases the badger handle, if any.
func (s *CacheStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
