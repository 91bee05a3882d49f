package hlscache

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// LibraryIndex resolves an ItemId to the media file backing it. It is
// satisfied by internal/library.Index; declared here so hlscache never
// imports it directly.
type LibraryIndex interface {
	Lookup(item ItemId) (MediaSource, bool)
}

// Streamer is the façade the HTTP layer talks to: it ties CacheStore,
// JobRegistry and ReadinessProbe together into the two operations spec.md
// §4.5 names, GeneratePlaylist and ServeSegment.
type Streamer struct {
	logger    zerolog.Logger
	config    Config
	store     *CacheStore
	registry  *JobRegistry
	readiness *ReadinessProbe
	library   LibraryIndex
	metrics   *metrics
}

func NewStreamer(config Config, store *CacheStore, registry *JobRegistry, readiness *ReadinessProbe, library LibraryIndex, m *metrics, logger zerolog.Logger) *Streamer {
	return &Streamer{
		logger:    logger.With().Str("submodule", "streamer").Logger(),
		config:    config,
		store:     store,
		registry:  registry,
		readiness: readiness,
		library:   library,
		metrics:   m,
	}
}

// GeneratePlaylist returns the rewritten playlist text for item+variant,
// starting (or reusing) a transcode as needed and blocking until enough
// output exists to answer the request, per spec.md §4.5.
func (s *Streamer) GeneratePlaylist(ctx context.Context, item ItemId, variant Variant, pathBase string) (string, error) {
	key := newCacheKey(item, variant)

	entry, hit := s.store.Get(key)
	if hit && entry.Complete {
		return s.readAndRewrite(entry.WorkDir, key, pathBase)
	}

	source, ok := s.library.Lookup(item)
	if !ok {
		return "", newError(KindItemNotFound, "resolve library item", nil)
	}
	if _, err := os.Stat(source.AbsolutePath); err != nil {
		return "", newError(KindSourceMissing, "stat source media", err)
	}

	var workDir string
	if hit {
		workDir = entry.WorkDir
	} else {
		workDir = filepath.Join(s.config.CacheRoot, string(key))
		if err := os.MkdirAll(workDir, 0o755); err != nil {
			return "", newError(KindUnknown, "create work directory", err)
		}
		s.store.Put(key, workDir)
	}

	argv := BuildArgv(
		ArgvInput{
			MediaPath:   source.AbsolutePath,
			IsCueTrack:  source.IsCueTrack,
			CueStart:    source.CueStartSeconds,
			CueDuration: source.CueDurationSeconds,
		},
		ArgvOutput{
			BitrateKbps:   variant.BitrateKbps,
			OutputDir:     workDir,
			SegmentTarget: s.config.SegmentDuration,
		},
	)

	handle := s.registry.EnsureRunning(ctx, SpawnSpec{
		ItemId:  item,
		Variant: variant,
		WorkDir: workDir,
		Argv:    argv,
	})

	s.watchCompletion(key, handle)

	if err := s.readiness.Await(workDir, handle); err != nil {
		if KindOf(err) == KindReadinessTimeout {
			handle.cancel()
			s.store.Remove(key)
		}
		return "", err
	}

	return s.readAndRewrite(workDir, key, pathBase)
}

// watchCompletion refreshes the cache entry's Complete flag as soon as the
// backing job finishes, so a subsequent request doesn't have to re-derive
// completeness from a stale in-flight state.
func (s *Streamer) watchCompletion(key CacheKey, handle *JobHandle) {
	go func() {
		handle.Wait(context.Background())
		s.store.Get(key)
	}()
}

func (s *Streamer) readAndRewrite(workDir string, key CacheKey, pathBase string) (string, error) {
	raw, err := os.ReadFile(filepath.Join(workDir, playlistFileName))
	if err != nil {
		return "", newError(KindUnknown, "read playlist", err)
	}
	return rewritePlaylist(string(raw), key, pathBase), nil
}

// ParseSegmentRequest decodes the raw (percent-encoded) "key" query value
// the rewritten playlist embeds, yielding the path under cacheRoot that
// ServeSegment resolves — per spec.md §4.5/§6 this is the full
// "<cacheKey>/<segment>" path, not split apart; ServeSegment never needs to
// recognize a CacheKey to serve the bytes behind it.
func ParseSegmentRequest(rawKey string) (string, error) {
	decoded, err := unescapeKey(rawKey)
	if err != nil {
		return "", newError(KindSegmentNotFound, "decode segment key", err)
	}
	if decoded == "" {
		return "", newError(KindSegmentNotFound, "decode segment key", nil)
	}
	return decoded, nil
}

// ServeSegment resolves relPath (the key under cacheRoot) to an on-disk
// path, per spec.md §4.5/§6: join directly against cacheRoot, canonicalize,
// and reject anything that is not a descendant of cacheRoot — *before*
// ever consulting the cache index, so an attacker-controlled key can never
// reach PathEscape only by accident of whether it happens to collide with
// a live CacheEntry.
func (s *Streamer) ServeSegment(relPath string) (path string, mime string, err error) {
	absCacheRoot, err := filepath.Abs(s.config.CacheRoot)
	if err != nil {
		return "", "", newError(KindUnknown, "resolve cache root", err)
	}
	if resolved, err := filepath.EvalSymlinks(absCacheRoot); err == nil {
		absCacheRoot = resolved
	}

	absCandidate, err := filepath.Abs(filepath.Join(absCacheRoot, relPath))
	if err != nil {
		return "", "", newError(KindUnknown, "resolve segment path", err)
	}
	if !strings.HasPrefix(absCandidate, absCacheRoot+string(filepath.Separator)) {
		return "", "", newError(KindPathEscape, "validate segment path", nil)
	}

	info, err := os.Stat(absCandidate)
	if err != nil {
		return "", "", newError(KindSegmentNotFound, "stat segment", err)
	}

	// Re-canonicalize now that the candidate is known to exist, to catch a
	// symlink planted inside a WorkDir that would otherwise resolve outside
	// cacheRoot despite passing the lexical check above.
	if resolved, err := filepath.EvalSymlinks(absCandidate); err == nil {
		if !strings.HasPrefix(resolved, absCacheRoot+string(filepath.Separator)) {
			return "", "", newError(KindPathEscape, "validate resolved segment path", nil)
		}
		absCandidate = resolved
	}

	s.metrics.segmentBytesServed.Add(float64(info.Size()))

	return absCandidate, mimeTypeFor(absCandidate), nil
}

// Close releases the store's durable metadata handle and cancels any
// in-flight jobs.
func (s *Streamer) Close() error {
	s.registry.Shutdown()
	return s.store.Close()
}
